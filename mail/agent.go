package mail

import (
	"context"
	"sync"
	"time"

	"github.com/expr-lang/expr/vm"
	"github.com/google/uuid"

	"github.com/lebensspur/sentinel/internal/errkind"
	"github.com/lebensspur/sentinel/internal/logger"
	"github.com/lebensspur/sentinel/internal/types"
)

// sendTimeout bounds one delivery attempt (dial + auth + DATA), including
// all retries the Resilience policy performs underneath it.
const sendTimeout = 15 * time.Second

// MailResult is the outcome of a SendSync/TestConnection call, per
// spec.md §4.2.
type MailResult struct {
	Sent bool
	Err  error
}

// Stats is a read-only snapshot of MailAgent activity, for the HTTP
// status surface.
type Stats struct {
	QueueDepth    int
	Sent          int64
	Failed        int64
	Dropped       int64
	LastError     string
	LastSentAt    time.Time
	CircuitOpen   bool
	NextDailyTime time.Time // set by Supervisor, which owns daily_status scheduling
}

// Agent is the MailAgent of spec.md §4.2: a bounded priority queue fed by
// Enqueue, drained by a single background worker that renders, gates by
// SendIf, sends with retry/circuit-breaking, and fires an optional
// per-group GET callback on success. Structurally it follows the
// teacher's worker.go (persistent loop draining a queue) and
// resilience.go (breaker+retry around the send), generalized from a
// CSV-batch campaign to one device's handful of alert groups.
type Agent struct {
	mu   sync.Mutex
	cond *sync.Cond

	cfg      types.MailConfig
	deviceID string

	q          queue
	templates  *templateCache
	predicates [types.MaxGroups]*vm.Program

	resilience *Resilience
	callback   *callbackClient

	log   logger.Logger
	stats Stats

	stopped bool
}

// New constructs an Agent for cfg. Predicates are compiled eagerly so a
// malformed SendIf expression surfaces at configure-time rather than on
// the next alarm.
func New(cfg types.MailConfig, deviceID string, log logger.Logger) (*Agent, error) {
	a := &Agent{
		cfg:        cfg,
		deviceID:   deviceID,
		templates:  newTemplateCache(),
		resilience: NewResilience(5, 60*time.Second),
		callback:   newCallbackClient(),
		log:        log,
	}
	a.cond = sync.NewCond(&a.mu)
	if err := a.compilePredicatesLocked(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Agent) compilePredicatesLocked() error {
	for i := range a.cfg.Groups {
		p, err := CompilePredicate(a.cfg.Groups[i].SendIf)
		if err != nil {
			return err
		}
		a.predicates[i] = p
	}
	return nil
}

// DailyStatusCronExpr returns the configured daily_status cron
// expression, or "" if the feature is disabled. Supervisor owns actually
// scheduling against it, since it is the only collaborator holding both
// MailAgent and Scheduler (the status mail needs the latter's remaining
// countdown).
func (a *Agent) DailyStatusCronExpr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg.DailyStatusCron
}

// EnqueueDailyStatus queues the daily_status template for every enabled
// group with remainingMinutes populated, per SPEC_FULL.md's supplemented
// "still counting down, N minutes remaining" status mail. Called by
// Supervisor, which is the only component with both the cron schedule
// (held here) and the live countdown remaining (held by Scheduler).
func (a *Agent) EnqueueDailyStatus(remainingMinutes float64) {
	a.EnqueueToAllEnabledGroups(types.PriorityLow, types.TemplateDailyStatus, types.DispatchContext{AlarmIndex: -1, RemainingMinutes: remainingMinutes})
}

// SetNextDailyTime records the next scheduled daily_status fire time for
// status reporting; Supervisor calls this after recomputing its
// schedule.
func (a *Agent) SetNextDailyTime(t time.Time) {
	a.mu.Lock()
	a.stats.NextDailyTime = t
	a.mu.Unlock()
}

// EnqueueToAllEnabledGroups queues kind for every currently-enabled group
// at priority, tagged with dispatchCtx for SendIf evaluation and template
// rendering. Used for the daily_status dispatch and for the best-effort
// reset_notification Supervisor sends on every alive signal (spec.md
// §4.4).
func (a *Agent) EnqueueToAllEnabledGroups(priority types.Priority, kind types.TemplateKind, dispatchCtx types.DispatchContext) {
	a.mu.Lock()
	groups := a.cfg.Groups
	a.mu.Unlock()

	for i, g := range groups {
		if !g.Enabled {
			continue
		}
		a.Enqueue(Item{
			ID:       uuid.NewString(),
			Priority: priority,
			Template: kind,
			Origin:   types.Origin{GroupIndex: i, AlarmIndex: dispatchCtx.AlarmIndex, IsFinal: dispatchCtx.IsFinal},
			Group:    g,
			Context:  dispatchCtx,
		})
	}
}

// Reconfigure swaps in a new MailConfig, recompiling predicates.
// Supervisor picks up a changed DailyStatusCron on its own next check via
// DailyStatusCronExpr. In-flight or already-queued items keep the group
// snapshot they were enqueued with.
func (a *Agent) Reconfigure(cfg types.MailConfig) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	prev := a.cfg
	a.cfg = cfg
	if err := a.compilePredicatesLocked(); err != nil {
		a.cfg = prev
		return err
	}
	return nil
}

// Start launches the background worker goroutine that drains the queue.
func (a *Agent) Start() {
	go a.workerLoop()
}

// Stop signals the worker to exit after its current send.
func (a *Agent) Stop() {
	a.mu.Lock()
	a.stopped = true
	a.mu.Unlock()
	a.cond.Broadcast()
}

// Enqueue adds it to the bounded queue, returning false if it was
// dropped per the overflow policy in queue.go.
func (a *Agent) Enqueue(it Item) bool {
	a.mu.Lock()
	it.EnqueuedAt = time.Now()
	ok := a.q.enqueue(it)
	if !ok {
		a.stats.Dropped++
	}
	a.mu.Unlock()
	a.cond.Signal()
	return ok
}

// Snapshot returns current queue and delivery statistics.
func (a *Agent) Snapshot() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.stats
	s.QueueDepth = a.q.len()
	s.CircuitOpen = a.resilience.BreakerState() == Open
	return s
}

func (a *Agent) workerLoop() {
	for {
		a.mu.Lock()
		for a.q.len() == 0 && !a.stopped {
			a.cond.Wait()
		}
		if a.stopped {
			a.mu.Unlock()
			return
		}
		item, ok := a.q.dequeue()
		cfg := a.cfg
		predicate := a.predicates[item.Origin.GroupIndex]
		a.mu.Unlock()

		if !ok {
			continue
		}
		a.deliver(cfg, predicate, item)
	}
}

func (a *Agent) deliver(cfg types.MailConfig, predicate *vm.Program, item Item) {
	pass, err := EvalPredicate(predicate, item.Context)
	if err != nil {
		a.log.Warnf("send_if evaluation failed for group %d: %v", item.Origin.GroupIndex, err)
		return
	}
	if !pass {
		a.log.Infof("group %d skipped by send_if", item.Origin.GroupIndex)
		return
	}

	subject, body, err := a.templates.render(item.Group, item.Template, a.deviceID, item.Context)
	if err != nil {
		a.recordFailure(err)
		return
	}

	msg := Rendered{Subject: subject, Body: body, Recipients: item.Group.Recipients, Attachments: item.Group.Attachments}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	err = a.resilience.Execute(ctx, func() error { return deliver(cfg, msg, a.log) })
	if err != nil {
		a.recordFailure(err)
		return
	}
	a.recordSuccess()

	if item.Group.GetURL != "" {
		if cbErr := a.callback.notify(ctx, item.Group.GetURL); cbErr != nil {
			a.log.Warnf("callback for group %d failed: %v", item.Origin.GroupIndex, cbErr)
		}
	}
}

// SendFinalSync delivers group groupIdx's final-escalation message
// synchronously, bypassing the bounded queue entirely. The final alert is
// the one message spec.md §4.2 never allows the overflow policy to drop;
// it is meant to be called from scheduler.Scheduler.DispatchFinalGroup,
// which already serializes the check-then-mark dedup around this call.
func (a *Agent) SendFinalSync(groupIdx int, dispatchCtx types.DispatchContext) error {
	a.mu.Lock()
	if groupIdx < 0 || groupIdx >= len(a.cfg.Groups) {
		a.mu.Unlock()
		return nil
	}
	group := a.cfg.Groups[groupIdx]
	predicate := a.predicates[groupIdx]
	cfg := a.cfg
	a.mu.Unlock()

	if !group.Enabled {
		return nil
	}
	pass, err := EvalPredicate(predicate, dispatchCtx)
	if err != nil {
		a.log.Warnf("send_if evaluation failed for final group %d: %v", groupIdx, err)
		return err
	}
	if !pass {
		a.log.Infof("final group %d skipped by send_if", groupIdx)
		return nil
	}

	subject, body, err := a.templates.render(group, types.TemplateAlarm, a.deviceID, dispatchCtx)
	if err != nil {
		a.recordFailure(err)
		return err
	}
	msg := Rendered{Subject: subject, Body: body, Recipients: group.Recipients, Attachments: group.Attachments}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	if err := a.resilience.Execute(ctx, func() error { return deliver(cfg, msg, a.log) }); err != nil {
		a.recordFailure(err)
		return err
	}
	a.recordSuccess()

	if group.GetURL != "" {
		if cbErr := a.callback.notify(ctx, group.GetURL); cbErr != nil {
			a.log.Warnf("callback for final group %d failed: %v", groupIdx, cbErr)
		}
	}
	return nil
}

// SendSync renders and delivers msg for group groupIdx immediately,
// bypassing the queue and the circuit breaker/retry policy — spec.md
// §4.2's "used for Test Connection" path, where the caller wants to know
// synchronously whether delivery worked, not have it silently retried in
// the background.
func (a *Agent) SendSync(ctx context.Context, groupIdx int, kind types.TemplateKind, dispatchCtx types.DispatchContext) MailResult {
	a.mu.Lock()
	if groupIdx < 0 || groupIdx >= len(a.cfg.Groups) {
		a.mu.Unlock()
		return MailResult{Err: errkind.New(errkind.ConfigInvalid, nil)}
	}
	group := a.cfg.Groups[groupIdx]
	cfg := a.cfg
	a.mu.Unlock()

	if ctx.Err() != nil {
		return MailResult{Err: ctx.Err()}
	}
	subject, body, err := a.templates.render(group, kind, a.deviceID, dispatchCtx)
	if err != nil {
		return MailResult{Err: err}
	}
	msg := Rendered{Subject: subject, Body: body, Recipients: group.Recipients, Attachments: group.Attachments}

	if err := deliver(cfg, msg, a.log); err != nil {
		return MailResult{Err: err}
	}
	return MailResult{Sent: true}
}

// TestConnection attempts an SMTP handshake (dial, EHLO, STARTTLS/implicit
// TLS, AUTH) without sending a message body, per spec.md §4.2.
func (a *Agent) TestConnection(ctx context.Context) MailResult {
	a.mu.Lock()
	cfg := a.cfg
	a.mu.Unlock()

	if ctx.Err() != nil {
		return MailResult{Err: ctx.Err()}
	}
	client, err := connect(cfg)
	if err != nil {
		return MailResult{Err: err}
	}
	defer client.Close()
	return MailResult{Sent: true}
}

// SendWarningSync dispatches the warning template to every enabled group
// synchronously (spec.md §4.4's `send_to_all_enabled_groups(warning)`),
// trying every enabled group in turn and returning true if at least one
// of them succeeded. It respects
// ctx's deadline — Supervisor passes a 60s budget so a persistently
// unreachable mail server cannot livelock the warning-acknowledge path.
func (a *Agent) SendWarningSync(ctx context.Context, dispatchCtx types.DispatchContext) bool {
	a.mu.Lock()
	groups := a.cfg.Groups
	predicates := a.predicates
	cfg := a.cfg
	a.mu.Unlock()

	anySucceeded := false
	for i, group := range groups {
		if ctx.Err() != nil {
			break
		}
		if !group.Enabled {
			continue
		}
		pass, err := EvalPredicate(predicates[i], dispatchCtx)
		if err != nil {
			a.log.Warnf("send_if evaluation failed for group %d: %v", i, err)
			continue
		}
		if !pass {
			continue
		}

		subject, body, err := a.templates.render(group, types.TemplateWarning, a.deviceID, dispatchCtx)
		if err != nil {
			a.recordFailure(err)
			continue
		}
		msg := Rendered{Subject: subject, Body: body, Recipients: group.Recipients, Attachments: group.Attachments}

		attemptCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		err = a.resilience.Execute(attemptCtx, func() error { return deliver(cfg, msg, a.log) })
		cancel()
		if err != nil {
			a.recordFailure(err)
			continue
		}
		a.recordSuccess()
		anySucceeded = true

		if group.GetURL != "" {
			if cbErr := a.callback.notify(ctx, group.GetURL); cbErr != nil {
				a.log.Warnf("callback for group %d failed: %v", i, cbErr)
			}
		}
	}
	return anySucceeded
}

func (a *Agent) recordSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stats.Sent++
	a.stats.LastSentAt = time.Now()
}

func (a *Agent) recordFailure(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stats.Failed++
	a.stats.LastError = err.Error()
	a.log.Errorf("mail delivery failed: %v", err)
}
