// Package scheduler implements the Countdown Scheduler of spec.md §4.1: the
// monotonic deadline arithmetic, alarm-point generation, pause/resume, and
// restart-surviving persistence described there. Structurally it follows
// the original scheduler package — a mutex-guarded struct with a Logger
// field, load-from-store-on-construction, and persist-on-every-mutation —
// generalized from cron/interval job bookkeeping to countdown deadline
// bookkeeping.
package scheduler

import "github.com/lebensspur/sentinel/internal/types"

// BuildSchedule derives an AlarmSchedule from settings, per spec.md §4.1:
//
//	step  = 1 unit in seconds
//	total = total_value * step
//	n     = min(alarm_count, MaxAlarms)
//
// If total <= step, n collapses to 0 (too short an interval to fit even one
// warning before the final). Otherwise, when total >= step*(n+1) the n
// offsets cluster within the final n units, one unit apart:
//
//	offset[i] = total - (n-i)*step   for i in [0, n)
//
// Otherwise (a short interval relative to n), offsets are evenly spread
// across the interval:
//
//	offset[i] = total*(i+1)/(n+1)
//
// All offsets are strictly less than total and strictly increasing.
func BuildSchedule(settings types.TimerSettings) types.AlarmSchedule {
	step := settings.Unit.Seconds()
	total := settings.TotalSeconds()

	n := settings.AlarmCount
	if n > types.MaxAlarms {
		n = types.MaxAlarms
	}
	if n < 0 {
		n = 0
	}

	if total <= step {
		n = 0
	}

	if n == 0 {
		return types.AlarmSchedule{Count: 0, OffsetsSeconds: nil}
	}

	offsets := make([]int64, n)
	if total >= step*int64(n+1) {
		for i := 0; i < n; i++ {
			offsets[i] = total - int64(n-i)*step
		}
	} else {
		for i := 0; i < n; i++ {
			offsets[i] = total * int64(i+1) / int64(n+1)
		}
	}

	return types.AlarmSchedule{Count: n, OffsetsSeconds: offsets}
}
