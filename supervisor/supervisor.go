// Package supervisor wires the Scheduler, MailAgent, and NetController
// together into the 1 Hz main loop spec.md §4.4 describes, and routes the
// alive signal and factory-reset inputs from ButtonInput/WebRouter/remote
// GET into Scheduler and ConfigStore operations.
package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lebensspur/sentinel/internal/logger"
	"github.com/lebensspur/sentinel/internal/types"
	"github.com/lebensspur/sentinel/mail"
	"github.com/lebensspur/sentinel/netctl"
	"github.com/lebensspur/sentinel/relay"
	"github.com/lebensspur/sentinel/scheduler"
)

// WarningAckTimeout bounds how long Supervisor waits for at least one
// mail group to succeed on an alarm before acknowledging anyway, per
// spec.md §4.4's livelock guard.
const WarningAckTimeout = 60 * time.Second

// netHealthRecheckInterval matches spec.md §4.4's "net health re-check
// every ~30s".
const netHealthRecheckInterval = 30 * time.Second

// ConfigStore is the slice of internal/configstore.Store the Supervisor
// needs directly (beyond what Scheduler/MailAgent already hold), for
// factory reset.
type ConfigStore interface {
	EraseAll() error
}

// Rebooter performs the actual device reboot after a factory reset. Like
// netctl.Radio/relay.GPIOPin, this is an external-collaborator contract —
// a real embedding application reboots via an OS syscall or MCU reset
// vector, neither of which has a portable library in the retrieval pack.
type Rebooter interface {
	Reboot()
}

// Supervisor is the orchestration core of spec.md §4.4: it owns no
// business state itself, holding references to Scheduler, mail.Agent, and
// netctl.NetController and driving their operations in response to the
// 1Hz tick and external inputs.
type Supervisor struct {
	mu sync.Mutex

	sched  *scheduler.Scheduler
	mailer *mail.Agent
	net    *netctl.NetController
	relay  *relay.Controller
	store  ConfigStore
	reboot Rebooter
	log    logger.Logger

	// RelayFiresOnMailFailure keeps the relay as the mechanical fallback
	// even when every final-mail group failed, per spec.md §9's Open
	// Question resolution (default true).
	RelayFiresOnMailFailure bool

	lastNetRecheck time.Time

	dailyCronExpr string
	dailySchedule cron.Schedule
	nextDaily     time.Time

	stopCh chan struct{}
}

// New constructs a Supervisor wiring the given components. RelayFiresOnMailFailure
// defaults to true.
func New(sched *scheduler.Scheduler, mailer *mail.Agent, net *netctl.NetController, relayCtl *relay.Controller, store ConfigStore, reboot Rebooter, log logger.Logger) *Supervisor {
	return &Supervisor{
		sched:                   sched,
		mailer:                  mailer,
		net:                     net,
		relay:                   relayCtl,
		store:                   store,
		reboot:                  reboot,
		log:                     log,
		RelayFiresOnMailFailure: true,
		stopCh:                  make(chan struct{}),
	}
}

// Run drives the 1Hz loop until ctx is canceled or Stop is called.
func (s *Supervisor) Run(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// Stop ends a running Run loop.
func (s *Supervisor) Stop() {
	close(s.stopCh)
}

func (s *Supervisor) tick(ctx context.Context) {
	if err := s.sched.Tick(); err != nil {
		s.log.Errorf("supervisor: scheduler tick: %v", err)
	}

	s.mu.Lock()
	needsNetCheck := time.Since(s.lastNetRecheck) >= netHealthRecheckInterval
	if needsNetCheck {
		s.lastNetRecheck = time.Now()
	}
	s.mu.Unlock()
	if needsNetCheck {
		go s.net.EnsureConnected(ctx, false)
	}

	s.checkDailyStatus()

	snap := s.sched.Snapshot()
	if snap.FinalTriggered {
		s.handleFinal(ctx)
		return
	}
	if idx, due := s.sched.AlarmDue(); due {
		s.handleAlarmDue(ctx, idx)
	}
}

// checkDailyStatus dispatches the daily_status mail when due, per the
// supplemented feature in SPEC_FULL.md: Supervisor is the only
// collaborator holding both MailAgent's cron expression and Scheduler's
// live remaining countdown, so it — not MailAgent — owns the schedule.
func (s *Supervisor) checkDailyStatus() {
	expr := s.mailer.DailyStatusCronExpr()
	if expr == "" {
		return
	}
	if expr != s.dailyCronExpr {
		sched, err := cron.ParseStandard(expr)
		if err != nil {
			s.log.Errorf("supervisor: invalid daily_status_cron %q: %v", expr, err)
			s.dailyCronExpr = expr
			s.dailySchedule = nil
			return
		}
		s.dailyCronExpr = expr
		s.dailySchedule = sched
		s.nextDaily = sched.Next(time.Now())
		s.mailer.SetNextDailyTime(s.nextDaily)
		return
	}
	if s.dailySchedule == nil {
		return
	}
	now := time.Now()
	if now.Before(s.nextDaily) {
		return
	}
	remainingMinutes := float64(s.sched.Snapshot().RemainingSecond) / 60
	s.mailer.EnqueueDailyStatus(remainingMinutes)
	s.nextDaily = s.dailySchedule.Next(now)
	s.mailer.SetNextDailyTime(s.nextDaily)
}

// HandleAliveSignal processes an alive signal arriving from ButtonInput
// (short press), WebRouter (/api/timer/reset), or a remote GET — all
// three share the same reset-plus-best-effort-notification behavior per
// spec.md §4.4.
func (s *Supervisor) HandleAliveSignal(ctx context.Context) error {
	if err := s.sched.Reset(); err != nil {
		return err
	}
	s.enqueueResetNotification()
	return nil
}

func (s *Supervisor) enqueueResetNotification() {
	s.mailer.EnqueueToAllEnabledGroups(types.PriorityNormal, types.TemplateReset, types.DispatchContext{AlarmIndex: -1})
}

func (s *Supervisor) handleAlarmDue(ctx context.Context, idx int) {
	s.net.EnsureConnected(ctx, true)

	ackCtx, cancel := context.WithTimeout(ctx, WarningAckTimeout)
	defer cancel()

	dispatchCtx := types.DispatchContext{AlarmIndex: idx}
	succeeded := s.mailer.SendWarningSync(ackCtx, dispatchCtx)
	if !succeeded {
		s.log.Errorf("supervisor: alarm %d — no mail group succeeded within %s, acknowledging to avoid livelock", idx, WarningAckTimeout)
	}
	if err := s.sched.AcknowledgeAlarm(idx); err != nil {
		s.log.Errorf("supervisor: acknowledge alarm %d: %v", idx, err)
	}
}

func (s *Supervisor) handleFinal(ctx context.Context) {
	s.net.EnsureConnected(ctx, true)

	dispatchCtx := types.DispatchContext{IsFinal: true}
	anyFailed := false
	for g := 0; g < types.MaxGroups; g++ {
		err := s.sched.DispatchFinalGroup(g, func() error {
			return s.mailer.SendFinalSync(g, dispatchCtx)
		})
		if err != nil {
			anyFailed = true
			s.log.Errorf("supervisor: final group %d dispatch failed: %v", g, err)
		}
	}

	if !anyFailed || s.RelayFiresOnMailFailure {
		if err := s.relay.Trigger(ctx); err != nil {
			s.log.Errorf("supervisor: relay trigger failed: %v", err)
		}
	}

	if err := s.sched.AcknowledgeFinal(); err != nil {
		s.log.Errorf("supervisor: acknowledge final: %v", err)
	}
}

// FactoryReset erases all persisted configuration and reboots the
// device, per spec.md §4.4's "Factory reset via WebRouter →
// ConfigStore.erase_all() → reboot".
func (s *Supervisor) FactoryReset() error {
	if err := s.store.EraseAll(); err != nil {
		return err
	}
	s.log.Infof("supervisor: factory reset, rebooting")
	s.reboot.Reboot()
	return nil
}
