// Package timesource models the TimeSource external collaborator of
// spec.md §4.5: a monotonic millisecond clock, an optional NTP-synced wall
// clock, and a synced flag. The scheduler depends only on this interface so
// its deadline arithmetic can be driven by a fake clock in tests.
package timesource

import "time"

// TimeSource is the thin contract the core consumes; the real
// implementation on hardware reads an NTP-disciplined RTC, but nothing in
// this module depends on that detail.
type TimeSource interface {
	// MonotonicMillis returns a monotonically non-decreasing millisecond
	// counter. It must never run backwards, even across an underlying
	// clock wrap — see scheduler.Scheduler's clock-wrap handling, which
	// defends against the wrap this interface's real implementation can
	// still exhibit on embedded hardware.
	MonotonicMillis() int64
	// WallClock returns the current wall-clock time, or the zero time and
	// false when NTP sync has never completed.
	WallClock() (time.Time, bool)
	// IsSynced reports whether the wall clock has been NTP-disciplined at
	// least once since boot.
	IsSynced() bool
}

// System is the default TimeSource backed by the Go runtime's monotonic
// clock reading (via time.Now().Sub), which does not wrap within any
// realistic device uptime — the wrap-handling branch in
// scheduler.Scheduler exists for the embedded RTC this stands in for, and
// is exercised directly in tests via FakeSource rather than by provoking a
// real wrap here.
type System struct {
	start time.Time
}

// NewSystem returns a System anchored at the current instant.
func NewSystem() *System {
	return &System{start: time.Now()}
}

func (s *System) MonotonicMillis() int64 {
	return time.Since(s.start).Milliseconds()
}

func (s *System) WallClock() (time.Time, bool) {
	return time.Now(), true
}

func (s *System) IsSynced() bool { return true }

// FakeSource is a manually-advanced clock for deterministic tests of
// scheduler deadline arithmetic, including simulated monotonic wraparound.
type FakeSource struct {
	millis int64
	synced bool
	wall   time.Time
}

// NewFake returns a FakeSource starting at millis.
func NewFake(millis int64) *FakeSource {
	return &FakeSource{millis: millis, wall: time.Unix(0, 0)}
}

func (f *FakeSource) MonotonicMillis() int64 { return f.millis }

// Advance moves the fake clock forward by delta milliseconds (delta may be
// negative to simulate a backward jump, e.g. clock wraparound).
func (f *FakeSource) Advance(delta int64) { f.millis += delta }

// Set pins the fake clock to an exact value, used to simulate wraparound
// directly.
func (f *FakeSource) Set(millis int64) { f.millis = millis }

func (f *FakeSource) WallClock() (time.Time, bool) { return f.wall, f.synced }

func (f *FakeSource) IsSynced() bool { return f.synced }

// SetSynced toggles the NTP-synced flag for tests.
func (f *FakeSource) SetSynced(synced bool) { f.synced = synced }
