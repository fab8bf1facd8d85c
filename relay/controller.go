package relay

import (
	"context"
	"sync"
	"time"

	"github.com/lebensspur/sentinel/internal/logger"
)

// State is one of the relay's lifecycle states, mirroring
// relay_manager.c's relay_state_t.
type State int

const (
	Idle State = iota
	Delay
	Active
	Pulsing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Delay:
		return "delay"
	case Active:
		return "active"
	case Pulsing:
		return "pulsing"
	default:
		return "unknown"
	}
}

// Config mirrors relay_config_t: inverted polarity, an optional
// pre-trigger delay, an optional auto-off duration, and an optional pulse
// mode, per spec.md §4.5's `configure(inverted, delay_s, duration_s,
// pulse{on_ms, off_ms})`.
type Config struct {
	Inverted        bool
	DelaySeconds    uint32
	DurationSeconds uint32 // 0 = stays on until explicitly turned off
	PulseEnabled    bool
	PulseOnMs       uint32
	PulseOffMs      uint32
}

// DefaultConfig mirrors RELAY_CONFIG_DEFAULT().
func DefaultConfig() Config {
	return Config{PulseOnMs: 500, PulseOffMs: 500}
}

// Status is a read-only snapshot, mirroring relay_status_t.
type Status struct {
	State        State
	EnergyOutput bool
	PulseCount   uint32
	TriggerCount uint32
}

// Controller owns a relay's GPIO-level output and pulse/delay/duration
// timing. Unlike relay_manager.c's relay_tick() (driven by a caller loop
// at arbitrary frequency because ESP-IDF's cheapest portable timer is a
// polled one), Controller schedules its own transitions with
// time.AfterFunc — idiomatic Go has no reason to poll when it has real
// timers.
type Controller struct {
	mu sync.Mutex

	pin GPIOPin
	log logger.Logger
	cfg Config

	state   State
	pending []*time.Timer

	pulseCount   uint32
	triggerCount uint32
}

// New constructs a Controller over pin, starting Idle with cfg.
func New(pin GPIOPin, cfg Config, log logger.Logger) *Controller {
	return &Controller{pin: pin, cfg: cfg, log: log, state: Idle}
}

// Configure replaces the relay's timing configuration. Timers already
// scheduled keep their durations, but a cycle still in its delay phase
// activates with the new configuration, and every later pin write uses
// the new Inverted setting.
func (c *Controller) Configure(cfg Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = cfg
}

// Status returns a snapshot of the controller's state and counters.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		State:        c.state,
		EnergyOutput: c.energyOutputLocked(),
		PulseCount:   c.pulseCount,
		TriggerCount: c.triggerCount,
	}
}

func (c *Controller) energyOutputLocked() bool {
	return c.state == Active || c.state == Pulsing
}

// Trigger starts the configured cycle: wait DelaySeconds, then go Active
// (or Pulsing, if enabled), then auto-off after DurationSeconds if
// non-zero. This is the operation Supervisor calls on final escalation
// per spec.md §4.4.
func (c *Controller) Trigger(ctx context.Context) error {
	c.mu.Lock()
	c.cancelPendingLocked()
	cfg := c.cfg
	c.triggerCount++
	c.mu.Unlock()

	if cfg.DelaySeconds > 0 {
		c.setState(Delay)
		c.schedule(time.Duration(cfg.DelaySeconds)*time.Second, func() {
			_ = c.activate(context.Background())
		})
		return nil
	}
	return c.activate(ctx)
}

func (c *Controller) activate(ctx context.Context) error {
	c.mu.Lock()
	cfg := c.cfg
	c.mu.Unlock()

	if cfg.PulseEnabled {
		c.setState(Pulsing)
		c.startPulseLoop(cfg)
	} else {
		c.setState(Active)
		if err := c.setLevel(ctx, true); err != nil {
			return err
		}
	}

	if cfg.DurationSeconds > 0 {
		c.schedule(time.Duration(cfg.DurationSeconds)*time.Second, func() {
			_ = c.Off(context.Background())
		})
	}
	return nil
}

func (c *Controller) startPulseLoop(cfg Config) {
	onDur := time.Duration(cfg.PulseOnMs) * time.Millisecond
	offDur := time.Duration(cfg.PulseOffMs) * time.Millisecond

	var step func(on bool)
	step = func(on bool) {
		c.mu.Lock()
		if c.state != Pulsing {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		_ = c.setLevel(context.Background(), on)
		if on {
			c.mu.Lock()
			c.pulseCount++
			c.mu.Unlock()
		}

		next := offDur
		if !on {
			next = onDur
		}
		c.schedule(next, func() { step(!on) })
	}
	step(true)
}

// On immediately energizes the relay, skipping any configured delay, per
// relay_on()'s semantics.
func (c *Controller) On(ctx context.Context) error {
	c.mu.Lock()
	c.cancelPendingLocked()
	c.mu.Unlock()
	c.setState(Active)
	return c.setLevel(ctx, true)
}

// Off de-energizes the relay and cancels any pending delay/duration/pulse
// timers.
func (c *Controller) Off(ctx context.Context) error {
	c.mu.Lock()
	c.cancelPendingLocked()
	c.mu.Unlock()
	c.setState(Idle)
	return c.setLevel(ctx, false)
}

func (c *Controller) setLevel(ctx context.Context, energized bool) error {
	c.mu.Lock()
	inverted := c.cfg.Inverted
	c.mu.Unlock()

	gpioHigh := energized
	if inverted {
		gpioHigh = !energized
	}
	err := c.pin.SetLevel(ctx, gpioHigh)
	if err != nil {
		c.log.Errorf("relay: set level failed: %v", err)
	}
	return err
}

func (c *Controller) schedule(d time.Duration, fn func()) {
	t := time.AfterFunc(d, fn)
	c.mu.Lock()
	c.pending = append(c.pending, t)
	c.mu.Unlock()
}

func (c *Controller) cancelPendingLocked() {
	for _, t := range c.pending {
		t.Stop()
	}
	c.pending = nil
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}
