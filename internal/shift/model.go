// Package shift owns the rep-side shift lifecycle: the state machine, pause
// bookkeeping, mileage, and derived time accounting.
package shift

import (
	"errors"
	"time"

	"github.com/veranda-labs/canvass/internal/geo"
)

var (
	// ErrAlreadyActive indicates a shift is already open for this client.
	ErrAlreadyActive = errors.New("shift: a shift is already active")
	// ErrShiftEnded indicates the shift is terminal and accepts no further events.
	ErrShiftEnded = errors.New("shift: shift has ended")
	// ErrNoActiveShift indicates no shift is currently open.
	ErrNoActiveShift = errors.New("shift: no active shift")
	// ErrNotPaused indicates there is no manual pause to clear.
	ErrNotPaused = errors.New("shift: no open manual pause")
	// ErrAlreadyPaused indicates a manual pause is already open.
	ErrAlreadyPaused = errors.New("shift: manual pause already open")
)

// State enumerates the shift lifecycle states.
type State string

const (
	StateIdle   State = "idle"
	StateActive State = "active"
	StatePaused State = "paused"
	StateEnded  State = "ended"
)

// DoorStatus enumerates logged door outcomes.
type DoorStatus string

const (
	// DoorStatusNoAnswer records a door with no answer.
	DoorStatusNoAnswer DoorStatus = "X"
	// DoorStatusNoSale records an answered door with no sale.
	DoorStatusNoSale DoorStatus = "O"
	// DoorStatusSignUp records a completed sign-up.
	DoorStatusSignUp DoorStatus = "SignUp"
)

// PauseReason distinguishes explicit pauses from derived inactivity.
type PauseReason string

const (
	PauseReasonManual PauseReason = "manual"
	// PauseReasonInactivity only appears in derived views. Inactivity is
	// recomputed from the event history and never stored as a Pause.
	PauseReasonInactivity PauseReason = "inactivity"
)

// Pause is a closed or open span of explicitly paused time. Stored pauses
// are always manual; pauses for a shift never overlap.
type Pause struct {
	Start  time.Time   `json:"start"`
	End    *time.Time  `json:"end,omitempty"`
	Reason PauseReason `json:"reason"`
}

// DoorEvent is an immutable logged outcome at a position and time. The id is
// client-generated, globally unique, and reused as the remote idempotency key.
type DoorEvent struct {
	ID          string     `json:"id"`
	ShiftID     string     `json:"shiftId"`
	Timestamp   time.Time  `json:"timestamp"`
	Status      DoorStatus `json:"status"`
	Position    geo.Fix    `json:"position"`
	HouseNumber string     `json:"houseNumber,omitempty"`
	RoadName    string     `json:"roadName,omitempty"`
	Note        string     `json:"note,omitempty"`
}

// Shift is one continuous work session for a rep. A rep may start several
// shifts in a day, so the key is the start event, not the calendar date.
// EndTime is nil while active; once set the shift is immutable except for
// administrative corrections, and the remote copy becomes authoritative for
// reads.
type Shift struct {
	ShiftID          string      `json:"shiftId"`
	RepID            string      `json:"repId"`
	TerritoryID      string      `json:"territoryId"`
	CalendarDate     string      `json:"calendarDate"`
	StartTime        time.Time   `json:"startTime"`
	EndTime          *time.Time  `json:"endTime,omitempty"`
	Pauses           []Pause     `json:"pauses"`
	DoorEvents       []DoorEvent `json:"doorEvents"`
	Mileage          float64     `json:"mileage"`
	LastActivityTime time.Time   `json:"lastActivityTime"`
	Training         bool        `json:"training"`
}

// OpenPause returns the currently open pause, if any.
func (s *Shift) OpenPause() *Pause {
	for i := range s.Pauses {
		if s.Pauses[i].End == nil {
			return &s.Pauses[i]
		}
	}
	return nil
}

// Ended reports whether the shift is terminal.
func (s *Shift) Ended() bool {
	return s.EndTime != nil
}

// Counts tallies door outcomes for the shift.
func (s *Shift) Counts() (doors, noAnswer, noSale, signUps int) {
	for _, event := range s.DoorEvents {
		doors++
		switch event.Status {
		case DoorStatusNoAnswer:
			noAnswer++
		case DoorStatusNoSale:
			noSale++
		case DoorStatusSignUp:
			signUps++
		}
	}
	return doors, noAnswer, noSale, signUps
}
