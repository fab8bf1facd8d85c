package scheduler

import (
	"testing"

	"github.com/lebensspur/sentinel/internal/types"
)

func TestBuildSchedule_Clustered(t *testing.T) {
	// 30 minutes, 3 alarms: total=1800s, step=60s, n=3, total >= step*(n+1)=240.
	s := types.TimerSettings{Unit: types.UnitMinutes, TotalValue: 30, AlarmCount: 3}
	sched := BuildSchedule(s)

	if sched.Count != 3 {
		t.Fatalf("expected 3 alarms, got %d", sched.Count)
	}
	want := []int64{1800 - 180, 1800 - 120, 1800 - 60}
	for i, off := range want {
		if sched.OffsetsSeconds[i] != off {
			t.Errorf("offset[%d] = %d, want %d", i, sched.OffsetsSeconds[i], off)
		}
	}
}

func TestBuildSchedule_EvenlySpread(t *testing.T) {
	// 2 minutes, 5 alarms: total=120s, step=60s, n=5, step*(n+1)=360 > total.
	s := types.TimerSettings{Unit: types.UnitMinutes, TotalValue: 2, AlarmCount: 5}
	sched := BuildSchedule(s)

	if sched.Count != 5 {
		t.Fatalf("expected 5 alarms, got %d", sched.Count)
	}
	for i := 1; i < len(sched.OffsetsSeconds); i++ {
		if sched.OffsetsSeconds[i] <= sched.OffsetsSeconds[i-1] {
			t.Errorf("offsets not strictly increasing at %d: %v", i, sched.OffsetsSeconds)
		}
	}
	for _, off := range sched.OffsetsSeconds {
		if off <= 0 || off >= s.TotalSeconds() {
			t.Errorf("offset %d out of (0, total) range", off)
		}
	}
}

func TestBuildSchedule_TooShortForEvenOneAlarm(t *testing.T) {
	s := types.TimerSettings{Unit: types.UnitMinutes, TotalValue: 1, AlarmCount: 5}
	sched := BuildSchedule(s)
	if sched.Count != 0 {
		t.Fatalf("expected 0 alarms when total <= step, got %d", sched.Count)
	}
}

func TestBuildSchedule_ZeroAlarms(t *testing.T) {
	s := types.TimerSettings{Unit: types.UnitMinutes, TotalValue: 10, AlarmCount: 0}
	sched := BuildSchedule(s)
	if sched.Count != 0 || sched.OffsetsSeconds != nil {
		t.Fatalf("expected empty schedule, got %+v", sched)
	}
}

func TestBuildSchedule_ClampsAboveMax(t *testing.T) {
	s := types.TimerSettings{Unit: types.UnitMinutes, TotalValue: 60, AlarmCount: 999}
	sched := BuildSchedule(s)
	if sched.Count != types.MaxAlarms {
		t.Fatalf("expected clamp to %d, got %d", types.MaxAlarms, sched.Count)
	}
}
