package scheduler

import (
	"testing"

	"github.com/lebensspur/sentinel/internal/logger"
	"github.com/lebensspur/sentinel/internal/timesource"
	"github.com/lebensspur/sentinel/internal/types"
)

// fakeStore is an in-memory Store for tests, avoiding a bbolt dependency.
type fakeStore struct {
	settings types.TimerSettings
	runtime  types.TimerRuntime
}

func (f *fakeStore) LoadTimerSettings() (types.TimerSettings, error) { return f.settings, nil }
func (f *fakeStore) SaveTimerSettings(v types.TimerSettings) error   { f.settings = v; return nil }
func (f *fakeStore) LoadRuntime() (types.TimerRuntime, error)        { return f.runtime, nil }
func (f *fakeStore) SaveRuntime(v types.TimerRuntime) error          { f.runtime = v; return nil }

func newTestScheduler(t *testing.T) (*Scheduler, *fakeStore, *timesource.FakeSource) {
	t.Helper()
	store := &fakeStore{settings: types.TimerSettings{Unit: types.UnitMinutes, TotalValue: 10, AlarmCount: 2, Enabled: true}}
	clock := timesource.NewFake(0)
	s, err := New(store, clock, logger.New("test"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, store, clock
}

func TestConfigureAndReset(t *testing.T) {
	s, _, clock := newTestScheduler(t)

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	snap := s.Snapshot()
	if !snap.TimerActive || snap.RemainingSecond != 600 {
		t.Fatalf("unexpected snapshot after start: %+v", snap)
	}

	clock.Advance(120_000) // 2 minutes
	if err := s.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	snap = s.Snapshot()
	if snap.RemainingSecond != 480 {
		t.Fatalf("expected 480s remaining, got %d", snap.RemainingSecond)
	}

	if err := s.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	snap = s.Snapshot()
	if !snap.TimerActive || snap.RemainingSecond != 600 || snap.NextAlarmIndex != 0 {
		t.Fatalf("reset did not restart cleanly: %+v", snap)
	}
}

func TestMidIntervalReconfigure_StillFits(t *testing.T) {
	s, _, clock := newTestScheduler(t)
	_ = s.Start() // total=600s

	clock.Advance(300_000) // elapsed 300s
	_ = s.Tick()

	if err := s.Configure(types.TimerSettings{Unit: types.UnitMinutes, TotalValue: 20, AlarmCount: 2, Enabled: true}); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	snap := s.Snapshot()
	// new total 1200s, elapsed 300s already spent -> remaining 900s.
	if snap.RemainingSecond != 900 {
		t.Fatalf("expected 900s remaining after reconfigure, got %d", snap.RemainingSecond)
	}
	if !snap.TimerActive {
		t.Fatalf("expected timer to remain active")
	}
}

func TestMidIntervalReconfigure_PastNewSchedule(t *testing.T) {
	s, _, clock := newTestScheduler(t)
	_ = s.Start() // total=600s

	clock.Advance(500_000) // elapsed 500s
	_ = s.Tick()

	// Shrink total to 5 minutes (300s) -- already exceeded by elapsed time.
	if err := s.Configure(types.TimerSettings{Unit: types.UnitMinutes, TotalValue: 5, AlarmCount: 1, Enabled: true}); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	snap := s.Snapshot()
	if snap.TimerActive {
		t.Fatalf("expected timer to stop rather than fire immediately: %+v", snap)
	}
	if snap.RemainingSecond != 300 {
		t.Fatalf("expected remaining reset to new total 300s, got %d", snap.RemainingSecond)
	}
}

func TestRestartMidFinal_PreservesFinalState(t *testing.T) {
	store := &fakeStore{
		settings: types.TimerSettings{Unit: types.UnitMinutes, TotalValue: 10, AlarmCount: 1, Enabled: true},
		runtime: types.TimerRuntime{
			TimerActive:     false,
			FinalTriggered:  true,
			RemainingSecond: 0,
			FinalGroupsSent: [types.MaxGroups]bool{true, false, false},
		},
	}
	clock := timesource.NewFake(0)
	s, err := New(store, clock, logger.New("test"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	snap := s.Snapshot()
	if !snap.FinalTriggered {
		t.Fatalf("expected final_triggered to survive restart")
	}
	if snap.RemainingSecond != 0 {
		t.Fatalf("expected remaining to stay 0 for a final-triggered restart, got %d", snap.RemainingSecond)
	}
	if !snap.FinalGroupsSent[0] || snap.FinalGroupsSent[1] {
		t.Fatalf("expected per-group dedup flags to survive restart: %+v", snap.FinalGroupsSent)
	}
}

func TestClockWrapToleratedAsRebase(t *testing.T) {
	s, _, clock := newTestScheduler(t)
	_ = s.Start()

	// Simulate the wrap case the rebase branch handles: now jumps past
	// deadline+clockWrapGrace (deadline is 600_000) without any tick having
	// run through the ordinary overdue window, so the deadline is rebased
	// instead of the timer firing.
	clock.Set(1_000 + clockWrapGrace.Milliseconds() + 600_000)
	if err := s.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	snap := s.Snapshot()
	if !snap.TimerActive {
		t.Fatalf("expected timer to remain active after wrap rebase")
	}
	if snap.RemainingSecond != 600 {
		t.Fatalf("expected rebase to restore full remaining time, got %d", snap.RemainingSecond)
	}
}

func TestAlarmDueAndAcknowledge(t *testing.T) {
	store := &fakeStore{settings: types.TimerSettings{Unit: types.UnitMinutes, TotalValue: 10, AlarmCount: 2, Enabled: true}}
	clock := timesource.NewFake(0)
	s, _ := New(store, clock, logger.New("test"))
	_ = s.Start()

	sched := BuildSchedule(store.settings)
	clock.Advance(sched.OffsetsSeconds[0] * 1000)
	_ = s.Tick()

	idx, due := s.AlarmDue()
	if !due || idx != 0 {
		t.Fatalf("expected alarm 0 due, got idx=%d due=%v", idx, due)
	}

	// Acknowledging the wrong index must not advance.
	_ = s.AcknowledgeAlarm(1)
	idx, due = s.AlarmDue()
	if !due || idx != 0 {
		t.Fatalf("out-of-order ack must not advance index")
	}

	if err := s.AcknowledgeAlarm(0); err != nil {
		t.Fatalf("AcknowledgeAlarm: %v", err)
	}
	_, due = s.AlarmDue()
	if due {
		t.Fatalf("alarm 0 should no longer be due immediately after ack")
	}
}

func TestDispatchFinalGroup_DedupsAcrossCalls(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	_ = s.Start()

	calls := 0
	send := func() error { calls++; return nil }

	if err := s.DispatchFinalGroup(0, send); err != nil {
		t.Fatalf("DispatchFinalGroup: %v", err)
	}
	if err := s.DispatchFinalGroup(0, send); err != nil {
		t.Fatalf("DispatchFinalGroup (repeat): %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected send to run exactly once, ran %d times", calls)
	}
}

func TestDispatchFinalGroup_FailureLeavesPending(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	_ = s.Start()

	failing := true
	send := func() error {
		if failing {
			return errTransient
		}
		return nil
	}

	if err := s.DispatchFinalGroup(1, send); err == nil {
		t.Fatalf("expected transient failure to propagate")
	}
	failing = false
	if err := s.DispatchFinalGroup(1, send); err != nil {
		t.Fatalf("expected retry to succeed: %v", err)
	}
	if err := s.DispatchFinalGroup(1, send); err != nil {
		t.Fatalf("expected second retry to be deduped away: %v", err)
	}
}

func TestAcknowledgeFinalClearsEpisode(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	_ = s.Start()
	_ = s.DispatchFinalGroup(0, func() error { return nil })

	if err := s.AcknowledgeFinal(); err != nil {
		t.Fatalf("AcknowledgeFinal: %v", err)
	}
	snap := s.Snapshot()
	if snap.FinalTriggered {
		t.Fatalf("expected final_triggered cleared")
	}
	if snap.FinalGroupsSent[0] {
		t.Fatalf("expected dedup flags cleared for the next episode")
	}
}

func TestPauseResume(t *testing.T) {
	s, _, clock := newTestScheduler(t)
	_ = s.Start()

	clock.Advance(60_000)
	if err := s.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	snap := s.Snapshot()
	if !snap.Paused || snap.RemainingSecond != 540 {
		t.Fatalf("unexpected paused snapshot: %+v", snap)
	}

	// Time passing while paused must not consume remaining time.
	clock.Advance(120_000)
	_ = s.Tick()
	snap = s.Snapshot()
	if snap.RemainingSecond != 540 {
		t.Fatalf("expected remaining frozen at 540 while paused, got %d", snap.RemainingSecond)
	}

	if err := s.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	snap = s.Snapshot()
	if snap.Paused || snap.RemainingSecond != 540 {
		t.Fatalf("unexpected snapshot after resume: %+v", snap)
	}
}

// errTransient is a sentinel used only to exercise DispatchFinalGroup's
// failure path above.
type transientErr struct{}

func (transientErr) Error() string { return "transient failure" }

var errTransient = transientErr{}
