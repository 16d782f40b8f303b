// Package syncer drains the durable local queue into the remote store
// whenever connectivity allows. Delivery is at-least-once; the remote
// collections are keyed for idempotent replay, so retries are harmless.
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/veranda-labs/canvass/internal/geo"
	"github.com/veranda-labs/canvass/internal/queue"
	"github.com/veranda-labs/canvass/internal/shift"
)

// ErrRemoteConflict indicates a merge-write lost to a concurrent
// administrative edit. The local view is stale by design, so the entry is
// logged and discarded rather than retried.
var ErrRemoteConflict = errors.New("syncer: remote record superseded by administrative edit")

// RemoteStore is the contract of the remote collections consumed by the
// reconciler. Upserts are idempotent by the client-generated id; summary and
// position writes are merges of known fields, never full-document replaces.
type RemoteStore interface {
	UpsertDoorEvent(ctx context.Context, event shift.DoorEvent) error
	MergeShiftSummary(ctx context.Context, summary shift.Summary) error
	MergeLivePosition(ctx context.Context, position geo.RepPosition) error
}

// Config describes the dependencies for a Reconciler.
type Config struct {
	Queue     *queue.Store
	Remote    RemoteStore
	Mirror    RemoteStore
	Interval  time.Duration
	BatchSize int
	Logger    *zap.Logger
}

// Reconciler owns the queue-to-remote sync loop. A Mirror, when configured,
// receives best-effort copies; its failures never block the primary path.
type Reconciler struct {
	queue     *queue.Store
	remote    RemoteStore
	mirror    RemoteStore
	interval  time.Duration
	batchSize int
	logger    *zap.Logger
	kick      chan struct{}
}

// NewReconciler constructs a Reconciler.
func NewReconciler(cfg Config) (*Reconciler, error) {
	if cfg.Queue == nil {
		return nil, fmt.Errorf("syncer: queue is required")
	}
	if cfg.Remote == nil {
		return nil, fmt.Errorf("syncer: remote store is required")
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		queue:     cfg.Queue,
		remote:    cfg.Remote,
		mirror:    cfg.Mirror,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
		kick:      make(chan struct{}, 1),
	}, nil
}

// Notify signals that connectivity is available. It never blocks; multiple
// signals before the loop wakes coalesce into one drain.
func (r *Reconciler) Notify() {
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

// Run drains reactively on connectivity signals and periodically as a
// safety net, until the context is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.kick:
		case <-ticker.C:
		}
		if _, err := r.DrainOnce(ctx); err != nil {
			r.logger.Warn("sync drain failed", zap.Error(err))
		}
	}
}

// DrainOnce pushes pending entries to the remote store until the queue is
// empty or nothing in the current batch succeeds. It returns how many
// entries were acknowledged and removed.
func (r *Reconciler) DrainOnce(ctx context.Context) (int, error) {
	total := 0
	for {
		entries, err := r.queue.Drain(r.batchSize)
		if err != nil {
			return total, err
		}
		if len(entries) == 0 {
			return total, nil
		}

		acked := make([]string, 0, len(entries))
		for _, entry := range entries {
			if err := ctx.Err(); err != nil {
				// In-flight work cancelled by navigation or shutdown:
				// everything unacknowledged stays queued for next session.
				break
			}
			err := r.push(ctx, entry)
			switch {
			case err == nil:
				acked = append(acked, entry.EntryID)
			case errors.Is(err, ErrRemoteConflict):
				r.logger.Warn("queue entry superseded remotely, discarding",
					zap.String("entry_id", entry.EntryID),
					zap.String("kind", string(entry.Kind)))
				acked = append(acked, entry.EntryID)
			default:
				r.logger.Warn("queue entry sync failed, will retry",
					zap.String("entry_id", entry.EntryID),
					zap.Error(err))
				if markErr := r.queue.MarkFailed(entry.EntryID, err); markErr != nil {
					r.logger.Error("recording sync failure", zap.Error(markErr))
				}
			}
		}

		if len(acked) > 0 {
			if err := r.queue.MarkSynced(acked); err != nil {
				return total, err
			}
			total += len(acked)
		}
		if len(acked) < len(entries) {
			// Something in this batch is stuck; stop until the next cycle.
			return total, nil
		}
	}
}

func (r *Reconciler) push(ctx context.Context, entry queue.Entry) error {
	switch entry.Kind {
	case queue.EntryKindDoorEvent:
		var event shift.DoorEvent
		if err := json.Unmarshal([]byte(entry.PayloadJSON), &event); err != nil {
			return fmt.Errorf("syncer: decoding door event %s: %w", entry.EntryID, err)
		}
		if err := r.remote.UpsertDoorEvent(ctx, event); err != nil {
			return err
		}
		r.mirrorDoorEvent(ctx, event)
		return nil
	case queue.EntryKindShiftSummary:
		var summary shift.Summary
		if err := json.Unmarshal([]byte(entry.PayloadJSON), &summary); err != nil {
			return fmt.Errorf("syncer: decoding shift summary %s: %w", entry.EntryID, err)
		}
		if err := r.remote.MergeShiftSummary(ctx, summary); err != nil {
			return err
		}
		r.mirrorShiftSummary(ctx, summary)
		return nil
	default:
		return fmt.Errorf("syncer: unknown queue entry kind %q", entry.Kind)
	}
}

// PushLivePosition merges the rep's latest position into the remote store.
// Live positions are ephemeral and never queued: a lost update is replaced
// by the next sample.
func (r *Reconciler) PushLivePosition(ctx context.Context, position geo.RepPosition) error {
	if err := r.remote.MergeLivePosition(ctx, position); err != nil {
		return err
	}
	if r.mirror != nil {
		if err := r.mirror.MergeLivePosition(ctx, position); err != nil {
			r.logger.Warn("live position mirror failed", zap.Error(err))
		}
	}
	return nil
}

func (r *Reconciler) mirrorDoorEvent(ctx context.Context, event shift.DoorEvent) {
	if r.mirror == nil {
		return
	}
	if err := r.mirror.UpsertDoorEvent(ctx, event); err != nil {
		r.logger.Warn("door event mirror failed",
			zap.String("event_id", event.ID),
			zap.Error(err))
	}
}

func (r *Reconciler) mirrorShiftSummary(ctx context.Context, summary shift.Summary) {
	if r.mirror == nil {
		return
	}
	if err := r.mirror.MergeShiftSummary(ctx, summary); err != nil {
		r.logger.Warn("shift summary mirror failed",
			zap.String("shift_id", summary.ShiftID),
			zap.Error(err))
	}
}
