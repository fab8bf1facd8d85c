package scheduler

import (
	"sync"
	"time"

	"github.com/lebensspur/sentinel/internal/logger"
	"github.com/lebensspur/sentinel/internal/timesource"
	"github.com/lebensspur/sentinel/internal/types"
)

// clockWrapGrace bounds how far "now" may run past a stale deadline and
// still count as a genuine overdue condition (remaining collapses to 0); a
// larger gap is treated as a monotonic clock wraparound and the deadline is
// rebased. See recomputeRemainingLocked's clock-wrap handling, spec.md
// §4.1.
const clockWrapGrace = time.Hour

// persistInterval is the minimum cadence of periodic runtime persistence
// while the timer is active, per spec.md §4.1 ("at least every 60 s").
const persistInterval = 60 * time.Second

// Store is the slice of configstore.Store the scheduler depends on. It is
// declared narrowly here so tests can supply an in-memory fake without
// pulling in bbolt.
type Store interface {
	LoadTimerSettings() (types.TimerSettings, error)
	SaveTimerSettings(types.TimerSettings) error
	LoadRuntime() (types.TimerRuntime, error)
	SaveRuntime(types.TimerRuntime) error
}

// Scheduler owns TimerSettings, TimerRuntime, and the derived AlarmSchedule
// exclusively (spec.md §3 Ownership) and serializes every mutation behind a
// single mutex (spec.md §5).
type Scheduler struct {
	mu sync.Mutex

	store Store
	clock timesource.TimeSource
	log   logger.Logger

	settings types.TimerSettings
	runtime  types.TimerRuntime
	schedule types.AlarmSchedule

	lastPersistMs int64
}

// New constructs a Scheduler, loading persisted settings and runtime from
// store and rebasing the deadline against the current monotonic clock per
// spec.md §4.1's restart semantics.
func New(store Store, clock timesource.TimeSource, log logger.Logger) (*Scheduler, error) {
	settings, err := store.LoadTimerSettings()
	if err != nil {
		return nil, err
	}
	settings.Clamp()

	runtime, err := store.LoadRuntime()
	if err != nil {
		return nil, err
	}

	s := &Scheduler{
		store:    store,
		clock:    clock,
		log:      log,
		settings: settings,
		runtime:  runtime,
		schedule: BuildSchedule(settings),
	}
	s.recoverOnLoad()
	return s, nil
}

// recoverOnLoad applies spec.md §4.1's load-time clamp and deadline rebase.
// A remaining value of zero or less, or above total, is clamped to total, unless the
// runtime is mid-final (final_triggered) in which case remaining=0 is the
// correct, intentional terminal value and must not be clobbered — see
// DESIGN.md for this Open-Question resolution.
func (s *Scheduler) recoverOnLoad() {
	total := s.settings.TotalSeconds()
	if !s.runtime.FinalTriggered {
		if s.runtime.RemainingSecond <= 0 || s.runtime.RemainingSecond > total {
			s.runtime.RemainingSecond = total
		}
	}
	if s.runtime.TimerActive {
		now := s.clock.MonotonicMillis()
		s.runtime.DeadlineMillis = now + s.runtime.RemainingSecond*1000
	}
	s.lastPersistMs = s.clock.MonotonicMillis()
}

func (s *Scheduler) persistLocked() error {
	s.lastPersistMs = s.clock.MonotonicMillis()
	if err := s.store.SaveRuntime(s.runtime); err != nil {
		s.log.Errorf("persist runtime: %v", err)
		return err
	}
	return nil
}

// Configure replaces settings, per spec.md §4.1: if the timer was running,
// elapsed time is rebased against the new total; if the new total has
// already elapsed, the timer enters reset-but-not-started rather than
// firing immediately.
func (s *Scheduler) Configure(settings types.TimerSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings.Clamp()
	newSchedule := BuildSchedule(settings)

	if s.runtime.TimerActive {
		oldTotal := s.settings.TotalSeconds()
		elapsedOld := oldTotal - s.runtime.RemainingSecond
		if elapsedOld < 0 {
			elapsedOld = 0
		}
		newTotal := settings.TotalSeconds()

		if elapsedOld >= newTotal {
			s.runtime.TimerActive = false
			s.runtime.Paused = false
			s.runtime.RemainingSecond = newTotal
			s.runtime.NextAlarmIndex = 0
		} else {
			s.runtime.RemainingSecond = newTotal - elapsedOld
			now := s.clock.MonotonicMillis()
			s.runtime.DeadlineMillis = now + s.runtime.RemainingSecond*1000

			nextIdx := 0
			for nextIdx < newSchedule.Count && newSchedule.OffsetsSeconds[nextIdx] <= elapsedOld {
				nextIdx++
			}
			s.runtime.NextAlarmIndex = nextIdx
		}
	}

	s.settings = settings
	s.schedule = newSchedule
	if err := s.store.SaveTimerSettings(settings); err != nil {
		s.log.Errorf("persist settings: %v", err)
		return err
	}
	s.log.Infof("configured: unit=%v total=%d alarms=%d", settings.Unit, settings.TotalValue, settings.AlarmCount)
	return s.persistLocked()
}

// Start begins a fresh countdown. Precondition: settings.Enabled and the
// timer is not already active.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.settings.Enabled || s.runtime.TimerActive {
		return nil
	}
	s.startLocked()
	s.log.Infof("timer started: total=%ds alarms=%d", s.settings.TotalSeconds(), s.schedule.Count)
	return s.persistLocked()
}

func (s *Scheduler) startLocked() {
	total := s.settings.TotalSeconds()
	now := s.clock.MonotonicMillis()
	s.runtime = types.TimerRuntime{
		TimerActive:     true,
		Paused:          false,
		DeadlineMillis:  now + total*1000,
		RemainingSecond: total,
		NextAlarmIndex:  0,
		FinalTriggered:  false,
	}
}

// Pause freezes the countdown, recomputing RemainingSecond from the current
// monotonic time first. Only valid while running and not already paused.
func (s *Scheduler) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.runtime.TimerActive || s.runtime.Paused {
		return nil
	}
	s.recomputeRemainingLocked()
	s.runtime.Paused = true
	s.log.Infof("timer paused: remaining=%ds", s.runtime.RemainingSecond)
	return s.persistLocked()
}

// Resume rebases the deadline from the frozen RemainingSecond. Only valid
// while paused.
func (s *Scheduler) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.runtime.Paused {
		return nil
	}
	now := s.clock.MonotonicMillis()
	s.runtime.DeadlineMillis = now + s.runtime.RemainingSecond*1000
	s.runtime.Paused = false
	s.log.Infof("timer resumed: remaining=%ds", s.runtime.RemainingSecond)
	return s.persistLocked()
}

// Reset unconditionally restarts the countdown (the "alive signal" path),
// clearing final state and per-group dedup flags, without requiring
// settings.Enabled.
func (s *Scheduler) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.startLocked()
	s.log.Infof("timer reset")
	return s.persistLocked()
}

// recomputeRemainingLocked applies spec.md §4.1's clock-wrap-tolerant
// deadline arithmetic:
//
//   - deadline > now: ordinary case, remaining = (deadline-now)/1000.
//   - now > deadline+grace: treat as a monotonic wraparound, rebase the
//     deadline forward rather than reporting a false overdue condition.
//   - otherwise (deadline <= now <= deadline+grace): legitimately overdue,
//     remaining collapses to 0.
func (s *Scheduler) recomputeRemainingLocked() {
	if !s.runtime.TimerActive || s.runtime.Paused {
		return
	}
	now := s.clock.MonotonicMillis()
	deadline := s.runtime.DeadlineMillis

	switch {
	case deadline > now:
		s.runtime.RemainingSecond = (deadline - now) / 1000
	case now > deadline+clockWrapGrace.Milliseconds():
		s.runtime.DeadlineMillis = now + s.runtime.RemainingSecond*1000
	default:
		s.runtime.RemainingSecond = 0
	}

	total := s.settings.TotalSeconds()
	if s.runtime.RemainingSecond > total {
		s.runtime.RemainingSecond = total
	}
	if s.runtime.RemainingSecond < 0 {
		s.runtime.RemainingSecond = 0
	}
}

// Tick recomputes remaining time and, on reaching zero, transitions to
// final_triggered. Idempotent — safe to call at any rate >= 1 Hz. It also
// performs the periodic >=60s persistence spec.md §4.1 requires while the
// timer is active.
func (s *Scheduler) Tick() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.runtime.TimerActive || s.runtime.Paused {
		return nil
	}

	wasZero := s.runtime.RemainingSecond == 0
	s.recomputeRemainingLocked()

	if s.runtime.RemainingSecond == 0 && !wasZero {
		s.runtime.FinalTriggered = true
		s.runtime.TimerActive = false
		s.log.Infof("final triggered")
		return s.persistLocked()
	}

	now := s.clock.MonotonicMillis()
	if now-s.lastPersistMs >= persistInterval.Milliseconds() {
		return s.persistLocked()
	}
	return nil
}

// AlarmDue returns the next un-acknowledged alarm index and true iff
// elapsed time has reached that index's offset.
func (s *Scheduler) AlarmDue() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.runtime.TimerActive || s.runtime.Paused {
		return 0, false
	}
	if s.runtime.NextAlarmIndex >= s.schedule.Count {
		return 0, false
	}
	total := s.settings.TotalSeconds()
	elapsed := total - s.runtime.RemainingSecond
	idx := s.runtime.NextAlarmIndex
	if elapsed >= s.schedule.OffsetsSeconds[idx] {
		return idx, true
	}
	return 0, false
}

// AcknowledgeAlarm advances NextAlarmIndex by one, but only when i matches
// the current index exactly — out-of-order or duplicate acknowledgements
// leave state unchanged, guaranteeing strict monotonic progress.
func (s *Scheduler) AcknowledgeAlarm(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i != s.runtime.NextAlarmIndex {
		return nil
	}
	s.runtime.NextAlarmIndex++
	s.log.Infof("alarm %d acknowledged", i)
	return s.persistLocked()
}

// AcknowledgeFinal clears final_triggered and the per-group dedup flags,
// ending the current final-escalation episode.
func (s *Scheduler) AcknowledgeFinal() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runtime.FinalTriggered = false
	s.runtime.FinalGroupsSent = [types.MaxGroups]bool{}
	s.log.Infof("final acknowledged")
	return s.persistLocked()
}

// DispatchFinalGroup runs send for group g unless that group's final mail
// has already been confirmed delivered in this episode, then atomically
// records success. The check is taken under the scheduler mutex and
// released before send runs; success is recorded under the mutex again
// immediately afterward — per spec.md §5, dedup is "checked-then-marked"
// under the lock but never batched across groups, and send must not hold
// the lock across a blocking network call.
func (s *Scheduler) DispatchFinalGroup(g int, send func() error) error {
	if pending := s.groupPending(g); !pending {
		return nil
	}
	if err := send(); err != nil {
		return err
	}
	return s.MarkGroupSent(g)
}

func (s *Scheduler) groupPending(g int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g < 0 || g >= types.MaxGroups {
		return false
	}
	return !s.runtime.FinalGroupsSent[g]
}

// MarkGroupSent flips FinalGroupsSent[g] and persists immediately, so a
// reboot mid-final does not redeliver an already-confirmed group (spec.md
// §4.2 dedup-against-restart).
func (s *Scheduler) MarkGroupSent(g int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g < 0 || g >= types.MaxGroups {
		return nil
	}
	s.runtime.FinalGroupsSent[g] = true
	return s.persistLocked()
}

// Status is a read-only snapshot for the HTTP surface and Supervisor
// logging.
type Status struct {
	Settings        types.TimerSettings
	TimerActive     bool
	Paused          bool
	RemainingSecond int64
	NextAlarmIndex  int
	FinalTriggered  bool
	FinalGroupsSent [types.MaxGroups]bool
	Schedule        types.AlarmSchedule
}

// Snapshot returns the current state for read-only consumers.
func (s *Scheduler) Snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Settings:        s.settings,
		TimerActive:     s.runtime.TimerActive,
		Paused:          s.runtime.Paused,
		RemainingSecond: s.runtime.RemainingSecond,
		NextAlarmIndex:  s.runtime.NextAlarmIndex,
		FinalTriggered:  s.runtime.FinalTriggered,
		FinalGroupsSent: s.runtime.FinalGroupsSent,
		Schedule:        s.schedule,
	}
}

// Settings returns the current TimerSettings.
func (s *Scheduler) Settings() types.TimerSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}
