// Package client assembles the rep-side daemon: the shift machine, the
// durable queue, the position sampler, and the sync reconciler, behind one
// session facade that serializes every mutation.
package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/veranda-labs/canvass/internal/config"
	"github.com/veranda-labs/canvass/internal/geo"
	"github.com/veranda-labs/canvass/internal/queue"
	"github.com/veranda-labs/canvass/internal/remote"
	"github.com/veranda-labs/canvass/internal/shift"
	"github.com/veranda-labs/canvass/internal/syncer"
)

// SessionConfig describes the dependencies for a client Session.
type SessionConfig struct {
	Config config.ClientConfig
	Source geo.Source
	Clock  func() time.Time
	Logger *zap.Logger
}

// Session is the long-lived client context. Every mutating call enqueues its
// records locally before the reconciler attempts any network delivery, so
// killing the process at any point loses nothing.
type Session struct {
	cfg        config.ClientConfig
	queue      *queue.Store
	machine    *shift.Machine
	reconciler *syncer.Reconciler
	sampler    *geo.Sampler
	clock      func() time.Time
	logger     *zap.Logger

	mu sync.Mutex
}

// NewSession opens the local store, restores any persisted shift, and wires
// the sync pipeline. The caller owns the lifecycle: Run for the background
// loops, Close when done.
func NewSession(cfg SessionConfig) (*Session, error) {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	store, err := queue.Open(cfg.Config.DatabasePath, logger)
	if err != nil {
		return nil, fmt.Errorf("client: opening local queue: %w", err)
	}

	remoteClient, err := remote.NewClient(remote.ClientConfig{
		BaseURL: cfg.Config.SyncBaseURL,
		RepID:   cfg.Config.RepID,
		Token:   cfg.Config.SyncToken,
		Logger:  logger,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	reconciler, err := syncer.NewReconciler(syncer.Config{
		Queue:     store,
		Remote:    remoteClient,
		Interval:  cfg.Config.SyncInterval,
		BatchSize: cfg.Config.DrainBatchSize,
		Logger:    logger,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	machine, err := shift.NewMachine(shift.MachineConfig{
		Clock:      clock,
		IDProvider: shift.NewUUIDProvider(),
		Rates: shift.Rates{
			AutoPauseThreshold: cfg.Config.AutoPauseThreshold,
			PayRatePerHour:     cfg.Config.PayRatePerHour,
			MileageRatePerMile: cfg.Config.MileageRatePerMile,
		},
		Training:  cfg.Config.Training,
		Snapshots: store,
		Logger:    logger,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	session := &Session{
		cfg:        cfg.Config,
		queue:      store,
		machine:    machine,
		reconciler: reconciler,
		clock:      clock,
		logger:     logger,
	}

	if cfg.Source != nil {
		sampler, err := geo.NewSampler(geo.SamplerConfig{
			Source:   cfg.Source,
			Interval: cfg.Config.SampleInterval,
			Clock:    clock,
			Logger:   logger,
		})
		if err != nil {
			store.Close()
			return nil, err
		}
		session.sampler = sampler
	}

	if err := session.restore(); err != nil {
		store.Close()
		return nil, err
	}
	return session, nil
}

// restore resumes a persisted open shift after a crash or restart.
func (s *Session) restore() error {
	restored, found, err := s.queue.LoadShift(s.cfg.RepID)
	if err != nil {
		return fmt.Errorf("client: restoring shift snapshot: %w", err)
	}
	if !found || restored.Ended() {
		return nil
	}
	if err := s.machine.Resume(restored); err != nil {
		return err
	}
	s.logger.Info("restored open shift from snapshot",
		zap.String("shift_id", restored.ShiftID),
		zap.Int("door_events", len(restored.DoorEvents)))
	return nil
}

// Run drives the background loops: the reconciler and, when a location
// source is configured, the position sampler. It blocks until the context is
// cancelled.
func (s *Session) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.reconciler.Run(ctx)
	}()
	s.reconciler.Notify()

	if s.sampler != nil {
		fixes := s.sampler.Run(ctx)
		for fix := range fixes {
			s.ApplyFix(ctx, fix)
		}
	} else {
		<-ctx.Done()
	}
	wg.Wait()
}

// StartShift opens a new shift for the configured rep.
func (s *Session) StartShift() (*shift.Shift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	opened, err := s.machine.Start(s.cfg.RepID, s.cfg.TerritoryID)
	if err != nil {
		return nil, err
	}
	if err := s.enqueueSummaryLocked(); err != nil {
		return nil, err
	}
	s.reconciler.Notify()
	return opened, nil
}

// RecordDoor logs a door outcome, queues it for delivery, and refreshes the
// pending summary snapshot.
func (s *Session) RecordDoor(params shift.DoorParams) (*shift.DoorEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, err := s.machine.RecordDoor(params)
	if err != nil {
		return nil, err
	}
	current := s.machine.Current()
	if err := s.queue.EnqueueDoorEvent(*event, s.cfg.RepID, current.CalendarDate); err != nil {
		return nil, fmt.Errorf("client: queueing door event: %w", err)
	}
	if err := s.enqueueSummaryLocked(); err != nil {
		return nil, err
	}
	s.reconciler.Notify()
	return event, nil
}

// PauseShift opens a manual pause.
func (s *Session) PauseShift() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.machine.SetManualPause(); err != nil {
		return err
	}
	return s.enqueueSummaryLocked()
}

// ResumeShift closes the open manual pause.
func (s *Session) ResumeShift() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.machine.ClearManualPause(); err != nil {
		return err
	}
	return s.enqueueSummaryLocked()
}

// EndShift closes the shift, queues the final summary, and signs the rep off
// the live map with a best-effort active=false merge.
func (s *Session) EndShift(ctx context.Context) (shift.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	summary, err := s.machine.End()
	if err != nil {
		return shift.Summary{}, err
	}
	if err := s.queue.EnqueueShiftSummary(summary); err != nil {
		return shift.Summary{}, fmt.Errorf("client: queueing final summary: %w", err)
	}
	s.reconciler.Notify()

	signOff := geo.RepPosition{
		RepID:  s.cfg.RepID,
		Fix:    geo.Fix{Timestamp: s.clock().UTC()},
		Active: false,
	}
	if err := s.reconciler.PushLivePosition(ctx, signOff); err != nil {
		// Sign-off is cosmetic; the freshness window evicts the marker anyway.
		s.logger.Warn("live sign-off failed", zap.Error(err))
	}
	return summary, nil
}

// ApplyFix feeds one position fix into mileage accounting and the live map.
func (s *Session) ApplyFix(ctx context.Context, fix geo.Fix) {
	s.mu.Lock()
	state := s.machine.State()
	if state == shift.StateActive || state == shift.StatePaused {
		if err := s.machine.AdvancePosition(fix); err != nil {
			s.logger.Warn("advancing position failed", zap.Error(err))
		}
	}
	s.mu.Unlock()

	if state != shift.StateActive && state != shift.StatePaused {
		return
	}
	position := geo.RepPosition{RepID: s.cfg.RepID, Fix: fix, Active: true}
	if err := s.reconciler.PushLivePosition(ctx, position); err != nil {
		s.logger.Debug("live position push failed", zap.Error(err))
	}
}

// Sync drains the queue once, outside the background loop. Useful on
// connectivity-restored signals and in shutdown paths.
func (s *Session) Sync(ctx context.Context) (int, error) {
	return s.reconciler.DrainOnce(ctx)
}

// State reports the shift lifecycle state.
func (s *Session) State() shift.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.State()
}

// CurrentShift returns the shift owned by the session, which may be nil.
func (s *Session) CurrentShift() *shift.Shift {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Current()
}

// Summary derives the live accounting view of the open shift.
func (s *Session) Summary() (shift.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Summary()
}

// Pending counts queue entries awaiting remote acknowledgement.
func (s *Session) Pending() (int64, error) {
	return s.queue.Pending()
}

// Close releases the local store.
func (s *Session) Close() error {
	return s.queue.Close()
}

// enqueueSummaryLocked refreshes the pending summary snapshot for the open
// shift. Callers hold s.mu.
func (s *Session) enqueueSummaryLocked() error {
	summary, err := s.machine.Summary()
	if err != nil {
		return err
	}
	if err := s.queue.EnqueueShiftSummary(summary); err != nil {
		return fmt.Errorf("client: queueing summary snapshot: %w", err)
	}
	return nil
}
