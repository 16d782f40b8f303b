package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/veranda-labs/canvass/internal/geo"
)

const (
	livePositionKeyPrefix = "live:pos:"
	liveRepsKey           = "live:reps"
)

// LiveStoreConfig describes the dependencies for the live_positions
// collection.
type LiveStoreConfig struct {
	Client *redis.Client
	TTL    time.Duration
	Logger *zap.Logger
}

// LiveStore keeps one mutable position record per rep in redis. Records
// expire after the freshness TTL; graceful sign-off merges active=false
// instead of deleting, so the dashboard can distinguish "signed off" from
// "went silent".
type LiveStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

type livePositionRecord struct {
	RepID     string    `json:"repId"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Accuracy  float64   `json:"accuracy,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Active    bool      `json:"active"`
}

// NewLiveStore constructs the redis-backed live_positions collection.
func NewLiveStore(cfg LiveStoreConfig) (*LiveStore, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("store: redis client is required")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LiveStore{client: cfg.Client, ttl: ttl, logger: logger}, nil
}

// MergePosition upserts the rep's latest position and refreshes its TTL.
func (s *LiveStore) MergePosition(ctx context.Context, position geo.RepPosition) error {
	record := livePositionRecord{
		RepID:     position.RepID,
		Lat:       position.Fix.Lat,
		Lng:       position.Fix.Lng,
		Accuracy:  position.Fix.Accuracy,
		Timestamp: position.Fix.Timestamp.UTC(),
		Active:    position.Active,
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("store: encoding live position: %w", err)
	}
	if err := s.client.Set(ctx, livePositionKeyPrefix+position.RepID, payload, s.ttl).Err(); err != nil {
		return err
	}
	if err := s.client.SAdd(ctx, liveRepsKey, position.RepID).Err(); err != nil {
		s.logger.Warn("live rep set update failed", zap.Error(err))
	}
	if err := s.client.Expire(ctx, liveRepsKey, s.ttl).Err(); err != nil {
		s.logger.Warn("live rep set expire failed", zap.Error(err))
	}
	return nil
}

// ListPositions returns the current live position records. Expired entries
// are simply absent.
func (s *LiveStore) ListPositions(ctx context.Context) ([]geo.RepPosition, error) {
	repIDs, err := s.client.SMembers(ctx, liveRepsKey).Result()
	if err != nil {
		return nil, err
	}
	positions := make([]geo.RepPosition, 0, len(repIDs))
	for _, repID := range repIDs {
		raw, err := s.client.Get(ctx, livePositionKeyPrefix+repID).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, err
		}
		var record livePositionRecord
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			s.logger.Warn("discarding malformed live position",
				zap.String("rep_id", repID),
				zap.Error(err))
			continue
		}
		positions = append(positions, geo.RepPosition{
			RepID: record.RepID,
			Fix: geo.Fix{
				Lat:       record.Lat,
				Lng:       record.Lng,
				Accuracy:  record.Accuracy,
				Timestamp: record.Timestamp,
			},
			Active: record.Active,
		})
	}
	return positions, nil
}
