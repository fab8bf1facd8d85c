// Package button debounces a physical button input and classifies
// press duration into discrete events, per spec.md §4.5's ButtonInput
// contract. It is grounded on
// original_source/HW_esp32C6/main/button_manager.c's debounce/duration
// thresholds, translated from a 10ms-poll loop into an edge-driven
// state machine appropriate for a Go GPIO interrupt callback.
package button

import (
	"sync"
	"time"
)

// Event is one of the classified button events, mirroring
// button_manager.h's button_event_t.
type Event int

const (
	EventNone Event = iota
	Press         // < 1s
	LongPress     // 1s – 3s
	VeryLongPress // >= 3s
	Release
)

func (e Event) String() string {
	switch e {
	case Press:
		return "press"
	case LongPress:
		return "long_press"
	case VeryLongPress:
		return "very_long_press"
	case Release:
		return "release"
	default:
		return "none"
	}
}

const (
	// DebounceWindow matches button_manager.c's 50ms debounce.
	DebounceWindow = 50 * time.Millisecond
	// LongPressThreshold matches BUTTON's 1s long-press boundary.
	LongPressThreshold = 1 * time.Second
	// VeryLongPressThreshold matches the 3s very-long-press boundary.
	VeryLongPressThreshold = 3 * time.Second
	// FactoryResetConfirmWindow is the supplemented two-stage confirm:
	// a second VeryLongPress within this window of the first actually
	// arms a factory reset, rather than a single VeryLongPress doing it
	// unconfirmed.
	FactoryResetConfirmWindow = 5 * time.Second
)

// RawPin is the hardware collaborator reporting raw, undebounced button
// level changes. Like netctl.Radio and relay.GPIOPin, this is an
// external-collaborator contract — no GPIO library exists anywhere in
// the retrieval pack.
type RawPin interface {
	// Pressed reports the pin's current raw (undebounced) level: true
	// when physically pressed.
	Pressed() bool
}

// Debouncer consumes raw level samples (via Sample, called at whatever
// frequency the embedding application polls RawPin) and emits classified
// Events through a registered callback, plus tracks factory-reset-confirm
// arming state.
type Debouncer struct {
	mu sync.Mutex

	pin RawPin
	cb  func(Event)

	stableLevel bool
	candidate   bool
	candidateAt time.Time
	pressedAt   time.Time

	resetArmedAt time.Time
	resetArmed   bool
}

// New constructs a Debouncer over pin.
func New(pin RawPin) *Debouncer {
	return &Debouncer{pin: pin}
}

// OnEvent registers the callback invoked for each classified event. Only
// one callback is supported, matching button_manager.h's single
// button_set_callback slot.
func (d *Debouncer) OnEvent(cb func(Event)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cb = cb
}

// Sample reads the raw pin and advances the debounce/classification state
// machine. Call this from a poll loop or GPIO interrupt handler.
func (d *Debouncer) Sample(now time.Time) {
	raw := d.pin.Pressed()

	d.mu.Lock()
	if raw != d.candidate {
		d.candidate = raw
		d.candidateAt = now
	}
	if d.candidate != d.stableLevel && now.Sub(d.candidateAt) >= DebounceWindow {
		d.stableLevel = d.candidate
		if d.stableLevel {
			d.pressedAt = now
		} else {
			dur := now.Sub(d.pressedAt)
			d.emitReleaseLocked(now, dur)
		}
	}
	d.mu.Unlock()
}

func (d *Debouncer) emitReleaseLocked(now time.Time, heldFor time.Duration) {
	var ev Event
	switch {
	case heldFor >= VeryLongPressThreshold:
		ev = VeryLongPress
	case heldFor >= LongPressThreshold:
		ev = LongPress
	default:
		ev = Press
	}

	armed := false
	if ev == VeryLongPress {
		if d.resetArmed && now.Sub(d.resetArmedAt) <= FactoryResetConfirmWindow {
			armed = true
			d.resetArmed = false
		} else {
			d.resetArmed = true
			d.resetArmedAt = now
		}
	} else {
		d.resetArmed = false
	}

	cb := d.cb
	if cb == nil {
		return
	}
	go cb(ev)
	go cb(Release)
	if armed {
		go cb(FactoryResetConfirmed)
	}
}

// FactoryResetConfirmed is delivered to the OnEvent callback, alongside
// (not instead of) VeryLongPress, only on the second VeryLongPress within
// FactoryResetConfirmWindow of the first.
const FactoryResetConfirmed Event = 100

// IsPressed reports the current debounced level, mirroring
// button_is_pressed().
func (d *Debouncer) IsPressed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stableLevel
}

// PressDuration reports how long the button has been held, mirroring
// button_get_press_duration(); zero when not pressed.
func (d *Debouncer) PressDuration(now time.Time) time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.stableLevel {
		return 0
	}
	return now.Sub(d.pressedAt)
}
