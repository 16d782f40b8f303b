// Package replay drives the dashboard timeline for a single shift. It is
// pure presentation state: no remote effects, and no state shared with the
// live feed.
package replay

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/veranda-labs/canvass/internal/shift"
)

const defaultTickInterval = 600 * time.Millisecond

// EngineConfig describes the inputs for a replay Engine.
type EngineConfig struct {
	Events       []shift.DoorEvent
	TickInterval time.Duration
}

// Engine replays an ordered event sequence against a cursor. Events are
// sorted by timestamp ascending with ties broken by their original order.
type Engine struct {
	mu      sync.Mutex
	events  []shift.DoorEvent
	cursor  int
	playing bool
	tick    time.Duration
}

// NewEngine constructs a replay engine positioned at the first event.
func NewEngine(cfg EngineConfig) *Engine {
	events := make([]shift.DoorEvent, len(cfg.Events))
	copy(events, cfg.Events)
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
	tick := cfg.TickInterval
	if tick <= 0 {
		tick = defaultTickInterval
	}
	return &Engine{events: events, tick: tick}
}

// Play starts advancing the cursor on each tick. Playing an empty or
// already-finished sequence is a no-op.
func (e *Engine) Play() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.events) == 0 || e.cursor >= len(e.events)-1 {
		return
	}
	e.playing = true
}

// Pause stops cursor advancement without moving it.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.playing = false
}

// Reset stops playback and rewinds the cursor to the first event.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.playing = false
	e.cursor = 0
}

// Seek jumps the cursor to the given index, clamped to the valid range.
// Seeking is idempotent and may move forward or backward freely.
func (e *Engine) Seek(index int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.events) == 0 {
		e.cursor = 0
		return
	}
	if index < 0 {
		index = 0
	}
	if index > len(e.events)-1 {
		index = len(e.events) - 1
	}
	e.cursor = index
}

// Tick advances the cursor by one while playing. Reaching the last event
// auto-stops playback.
func (e *Engine) Tick() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.playing {
		return
	}
	if e.cursor < len(e.events)-1 {
		e.cursor++
	}
	if e.cursor >= len(e.events)-1 {
		e.playing = false
	}
}

// Run ticks the engine on its fixed interval until the context is
// cancelled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Tick()
		}
	}
}

// Cursor returns the current cursor position.
func (e *Engine) Cursor() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cursor
}

// Playing reports whether the cursor is advancing.
func (e *Engine) Playing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing
}

// Len returns the number of events in the sequence.
func (e *Engine) Len() int {
	return len(e.events)
}

// Current returns the event under the cursor.
func (e *Engine) Current() (shift.DoorEvent, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.events) == 0 {
		return shift.DoorEvent{}, false
	}
	return e.events[e.cursor], true
}

// Emphasized reports whether the event at index should be emphasized:
// events up to the cursor are, later ones are de-emphasized.
func (e *Engine) Emphasized(index int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return index >= 0 && index <= e.cursor
}

// Events returns the sorted sequence driving the replay.
func (e *Engine) Events() []shift.DoorEvent {
	events := make([]shift.DoorEvent, len(e.events))
	copy(events, e.events)
	return events
}
