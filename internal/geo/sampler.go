package geo

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Source abstracts the device location API. Implementations return
// ErrPositionUnavailable (possibly wrapped) when no fix can be acquired.
type Source interface {
	Current(ctx context.Context) (Fix, error)
}

// SamplerConfig describes the dependencies for a Sampler.
type SamplerConfig struct {
	Source   Source
	Interval time.Duration
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Sampler produces position fixes on a fixed interval or on demand. Run may
// be started, cancelled, and started again; each Run call opens a fresh
// stream.
type Sampler struct {
	source   Source
	interval time.Duration
	clock    func() time.Time
	logger   *zap.Logger
}

// NewSampler constructs a Sampler.
func NewSampler(cfg SamplerConfig) (*Sampler, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("geo: location source is required")
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sampler{
		source:   cfg.Source,
		interval: interval,
		clock:    clock,
		logger:   logger,
	}, nil
}

// Sample acquires a single fix on demand, stamping it with the sampler clock
// when the source left the timestamp unset.
func (s *Sampler) Sample(ctx context.Context) (Fix, error) {
	fix, err := s.source.Current(ctx)
	if err != nil {
		return Fix{}, fmt.Errorf("%w: %v", ErrPositionUnavailable, err)
	}
	if fix.Timestamp.IsZero() {
		fix.Timestamp = s.clock().UTC()
	}
	return fix, nil
}

// Run emits fixes on the configured interval until the context is cancelled,
// then closes the returned channel. Acquisition failures are logged and the
// tick is skipped; the stream never carries a fabricated fix.
func (s *Sampler) Run(ctx context.Context) <-chan Fix {
	stream := make(chan Fix, 1)
	go func() {
		defer close(stream)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fix, err := s.Sample(ctx)
				if err != nil {
					s.logger.Warn("position sample failed", zap.Error(err))
					continue
				}
				select {
				case stream <- fix:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return stream
}
