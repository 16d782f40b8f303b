package shift

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/veranda-labs/canvass/internal/geo"
)

// IDProvider issues client-generated, globally unique identifiers.
type IDProvider interface {
	NewID() (string, error)
}

// SnapshotStore persists the current shift locally. The snapshot write
// happens before any network attempt: local durability precedes network
// durability.
type SnapshotStore interface {
	SaveShift(s *Shift) error
}

// MachineConfig describes the dependencies for a shift Machine.
type MachineConfig struct {
	Clock      func() time.Time
	IDProvider IDProvider
	Rates      Rates
	Training   bool
	Snapshots  SnapshotStore
	Logger     *zap.Logger
}

// Machine owns the lifecycle of a single shift. All mutations run
// synchronously start-to-finish on the caller's goroutine; the surrounding
// session serializes them.
type Machine struct {
	clock     func() time.Time
	ids       IDProvider
	rates     Rates
	training  bool
	snapshots SnapshotStore
	logger    *zap.Logger

	current  *Shift
	odometer *geo.Odometer
}

// NewMachine constructs a shift Machine in the Idle state.
func NewMachine(cfg MachineConfig) (*Machine, error) {
	if cfg.IDProvider == nil {
		return nil, fmt.Errorf("shift: id provider is required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Machine{
		clock:     clock,
		ids:       cfg.IDProvider,
		rates:     cfg.Rates,
		training:  cfg.Training,
		snapshots: cfg.Snapshots,
		logger:    logger,
		odometer:  geo.NewOdometer(),
	}, nil
}

// State reports the current lifecycle state.
func (m *Machine) State() State {
	switch {
	case m.current == nil:
		return StateIdle
	case m.current.Ended():
		return StateEnded
	case m.current.OpenPause() != nil:
		return StatePaused
	default:
		return StateActive
	}
}

// Current returns the shift owned by this machine, which may be nil.
func (m *Machine) Current() *Shift {
	return m.current
}

// Start opens a new shift. It fails with ErrAlreadyActive while a shift is
// open, and persists the fresh shift locally before returning.
func (m *Machine) Start(repID, territoryID string) (*Shift, error) {
	if m.current != nil && !m.current.Ended() {
		return nil, ErrAlreadyActive
	}
	id, err := m.ids.NewID()
	if err != nil {
		return nil, fmt.Errorf("shift: generating shift id: %w", err)
	}
	now := m.clock().UTC()
	m.current = &Shift{
		ShiftID:          id,
		RepID:            repID,
		TerritoryID:      territoryID,
		CalendarDate:     now.Format("2006-01-02"),
		StartTime:        now,
		LastActivityTime: now,
		Training:         m.training,
	}
	m.odometer.Reset()
	if err := m.persist(); err != nil {
		return nil, err
	}
	m.logger.Info("shift started",
		zap.String("shift_id", id),
		zap.String("rep_id", repID))
	return m.current, nil
}

// Resume restores a shift snapshot after a process restart. Accumulated
// mileage is kept; the odometer reference fix is gone, so the first fix
// after resume contributes no distance.
func (m *Machine) Resume(s *Shift) error {
	if s == nil {
		return fmt.Errorf("shift: cannot resume a nil shift")
	}
	if m.current != nil && !m.current.Ended() {
		return ErrAlreadyActive
	}
	m.current = s
	m.odometer.Reset()
	m.logger.Info("shift resumed",
		zap.String("shift_id", s.ShiftID),
		zap.Float64("mileage", s.Mileage))
	return nil
}

// DoorParams carries the inputs for a logged door outcome.
type DoorParams struct {
	Status      DoorStatus
	Position    geo.Fix
	HouseNumber string
	RoadName    string
	Note        string
}

// RecordDoor appends a DoorEvent, advances the activity cursor, and updates
// mileage from the previous known position. Recording while paused closes
// the open pause at the event timestamp: a logged door proves activity
// resumed.
func (m *Machine) RecordDoor(params DoorParams) (*DoorEvent, error) {
	if err := m.requireOpen(); err != nil {
		return nil, err
	}
	id, err := m.ids.NewID()
	if err != nil {
		return nil, fmt.Errorf("shift: generating event id: %w", err)
	}
	now := m.clock().UTC()
	timestamp := params.Position.Timestamp
	if timestamp.IsZero() {
		timestamp = now
	}

	if pause := m.current.OpenPause(); pause != nil {
		closedAt := timestamp
		pause.End = &closedAt
	}

	event := DoorEvent{
		ID:          id,
		ShiftID:     m.current.ShiftID,
		Timestamp:   timestamp,
		Status:      params.Status,
		Position:    params.Position,
		HouseNumber: params.HouseNumber,
		RoadName:    params.RoadName,
		Note:        params.Note,
	}
	m.current.DoorEvents = append(m.current.DoorEvents, event)
	m.current.LastActivityTime = timestamp
	if !params.Position.Zero() {
		m.advanceMileage(params.Position)
	}
	if err := m.persist(); err != nil {
		return nil, err
	}
	return &m.current.DoorEvents[len(m.current.DoorEvents)-1], nil
}

// AdvancePosition feeds a periodic position fix into mileage accounting.
// Fixes are not activity: they never move LastActivityTime, and mileage only
// accrues while the shift is Active.
func (m *Machine) AdvancePosition(fix geo.Fix) error {
	if err := m.requireOpen(); err != nil {
		return err
	}
	if m.State() != StateActive {
		return nil
	}
	m.advanceMileage(fix)
	return m.persist()
}

// SetManualPause opens an explicit pause. Manual pauses are authoritative
// and always fully deducted from paid time.
func (m *Machine) SetManualPause() error {
	if err := m.requireOpen(); err != nil {
		return err
	}
	if m.current.OpenPause() != nil {
		return ErrAlreadyPaused
	}
	m.current.Pauses = append(m.current.Pauses, Pause{
		Start:  m.clock().UTC(),
		Reason: PauseReasonManual,
	})
	return m.persist()
}

// ClearManualPause closes the open manual pause.
func (m *Machine) ClearManualPause() error {
	if err := m.requireOpen(); err != nil {
		return err
	}
	pause := m.current.OpenPause()
	if pause == nil {
		return ErrNotPaused
	}
	closedAt := m.clock().UTC()
	pause.End = &closedAt
	return m.persist()
}

// End closes the shift: any open pause is closed, the end time is set, and
// the final summary is derived. The shift is terminal afterwards.
func (m *Machine) End() (Summary, error) {
	if err := m.requireOpen(); err != nil {
		return Summary{}, err
	}
	now := m.clock().UTC()
	if pause := m.current.OpenPause(); pause != nil {
		closedAt := now
		pause.End = &closedAt
	}
	endedAt := now
	m.current.EndTime = &endedAt
	summary := Summarize(m.current, m.rates, now)
	if err := m.persist(); err != nil {
		return Summary{}, err
	}
	m.logger.Info("shift ended",
		zap.String("shift_id", m.current.ShiftID),
		zap.Int("doors", summary.Doors),
		zap.Int("active_minutes", summary.ActiveMinutes))
	return summary, nil
}

// Summary derives the current accounting view without mutating anything.
func (m *Machine) Summary() (Summary, error) {
	if m.current == nil {
		return Summary{}, ErrNoActiveShift
	}
	return Summarize(m.current, m.rates, m.clock().UTC()), nil
}

func (m *Machine) advanceMileage(fix geo.Fix) {
	before := m.odometer.Total()
	after := m.odometer.Advance(fix)
	m.current.Mileage += after - before
}

func (m *Machine) requireOpen() error {
	if m.current == nil {
		return ErrNoActiveShift
	}
	if m.current.Ended() {
		return ErrShiftEnded
	}
	return nil
}

func (m *Machine) persist() error {
	if m.snapshots == nil {
		return nil
	}
	if err := m.snapshots.SaveShift(m.current); err != nil {
		return fmt.Errorf("shift: persisting snapshot: %w", err)
	}
	return nil
}
