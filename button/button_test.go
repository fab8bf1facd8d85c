package button

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// listen registers a buffered channel as d's event callback. It must be
// called before the samples that produce the events: events classified
// while no callback is registered are not delivered.
func listen(d *Debouncer) chan Event {
	ch := make(chan Event, 16)
	d.OnEvent(func(e Event) { ch <- e })
	return ch
}

func collectEvents(t *testing.T, ch chan Event, n int) []Event {
	t.Helper()
	var got []Event
	deadline := time.After(2 * time.Second)
	for len(got) < n {
		select {
		case e := <-ch:
			got = append(got, e)
		case <-deadline:
			t.Fatalf("timed out waiting for %d events, got %v", n, got)
		}
	}
	return got
}

func TestDebounce_ShortPress(t *testing.T) {
	pin := NewSimulatedPin()
	d := New(pin)
	ch := listen(d)

	base := time.Now()
	pin.SetPressed(true)
	d.Sample(base)
	d.Sample(base.Add(DebounceWindow + time.Millisecond))

	pin.SetPressed(false)
	d.Sample(base.Add(300 * time.Millisecond))
	d.Sample(base.Add(300*time.Millisecond + DebounceWindow + time.Millisecond))

	events := collectEvents(t, ch, 2)
	assert.Contains(t, events, Press)
	assert.Contains(t, events, Release)
}

func TestDebounce_LongPress(t *testing.T) {
	pin := NewSimulatedPin()
	d := New(pin)
	ch := listen(d)

	base := time.Now()
	pin.SetPressed(true)
	d.Sample(base)
	d.Sample(base.Add(DebounceWindow + time.Millisecond))

	pin.SetPressed(false)
	held := base.Add(1500 * time.Millisecond)
	d.Sample(held)
	d.Sample(held.Add(DebounceWindow + time.Millisecond))

	events := collectEvents(t, ch, 2)
	assert.Contains(t, events, LongPress)
}

func TestDebounce_VeryLongPress_RequiresSecondToConfirmReset(t *testing.T) {
	pin := NewSimulatedPin()
	d := New(pin)
	ch := listen(d)
	base := time.Now()

	pressRelease := func(start time.Time, holdFor time.Duration) time.Time {
		pin.SetPressed(true)
		d.Sample(start)
		d.Sample(start.Add(DebounceWindow + time.Millisecond))
		pin.SetPressed(false)
		end := start.Add(holdFor)
		d.Sample(end)
		d.Sample(end.Add(DebounceWindow + time.Millisecond))
		return end.Add(DebounceWindow + time.Millisecond)
	}

	pressRelease(base, 3500*time.Millisecond)
	firstEvents := collectEvents(t, ch, 2)
	assert.Contains(t, firstEvents, VeryLongPress)
	assert.NotContains(t, firstEvents, FactoryResetConfirmed, "single very-long-press must not arm a reset")
}

func TestDebounce_VeryLongPress_ConfirmedWithinWindow(t *testing.T) {
	pin := NewSimulatedPin()
	d := New(pin)
	ch := make(chan Event, 32)
	d.OnEvent(func(e Event) { ch <- e })

	base := time.Now()
	pressRelease := func(start time.Time, holdFor time.Duration) time.Time {
		pin.SetPressed(true)
		d.Sample(start)
		d.Sample(start.Add(DebounceWindow + time.Millisecond))
		pin.SetPressed(false)
		end := start.Add(holdFor)
		d.Sample(end)
		d.Sample(end.Add(DebounceWindow + time.Millisecond))
		return end.Add(DebounceWindow + time.Millisecond)
	}

	// The window runs from the first VeryLongPress release to the second:
	// 3.2s hold + 1s gap + 3.2s hold puts the second release 4.25s after
	// the first, inside FactoryResetConfirmWindow.
	next := pressRelease(base, 3200*time.Millisecond)
	pressRelease(next.Add(1*time.Second), 3200*time.Millisecond)

	// VeryLongPress, Release, VeryLongPress, Release, FactoryResetConfirmed
	// arrive from separate goroutines in no fixed order.
	var got []Event
	deadline := time.After(2 * time.Second)
	for len(got) < 5 {
		select {
		case e := <-ch:
			got = append(got, e)
		case <-deadline:
			t.Fatalf("timed out, got %v", got)
		}
	}
	require.Contains(t, got, FactoryResetConfirmed)
}

func TestPressDuration_ZeroWhenReleased(t *testing.T) {
	pin := NewSimulatedPin()
	d := New(pin)
	assert.Equal(t, time.Duration(0), d.PressDuration(time.Now()))
}

func TestIsPressed_ReflectsDebouncedLevel(t *testing.T) {
	pin := NewSimulatedPin()
	d := New(pin)
	base := time.Now()

	pin.SetPressed(true)
	d.Sample(base)
	assert.False(t, d.IsPressed(), "should not register until debounce window elapses")

	d.Sample(base.Add(DebounceWindow + time.Millisecond))
	assert.True(t, d.IsPressed())
}
