package mail

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/lebensspur/sentinel/internal/errkind"
)

// CircuitState is the current state of a CircuitBreaker.
type CircuitState int

const (
	Closed CircuitState = iota
	Open
	HalfOpen
)

// ErrorClass buckets SMTP failures for retry and circuit-breaking
// decisions.
type ErrorClass int

const (
	ClassUnknown ErrorClass = iota
	ClassNetwork
	ClassAuth
	ClassQuota
	ClassTemporary
	ClassPermanent
)

// classifier maps common SMTP/network error text to an ErrorClass.
type classifier struct {
	patterns map[string]ErrorClass
}

func newClassifier() *classifier {
	return &classifier{patterns: map[string]ErrorClass{
		"connection refused":  ClassNetwork,
		"timeout":             ClassNetwork,
		"no such host":        ClassNetwork,
		"authentication":      ClassAuth,
		"quota":               ClassQuota,
		"rate limit":          ClassQuota,
		"temporary":           ClassTemporary,
		"mailbox unavailable": ClassTemporary,
		"invalid recipient":   ClassPermanent,
		"permanent failure":   ClassPermanent,
	}}
}

func (c *classifier) classify(err error) ErrorClass {
	if err == nil {
		return ClassUnknown
	}
	switch errkind.KindOf(err) {
	case errkind.SmtpTransient:
		return ClassTemporary
	case errkind.SmtpPermanent:
		return ClassPermanent
	case errkind.AuthRejected:
		return ClassAuth
	case errkind.NoNetwork:
		return ClassNetwork
	}
	s := strings.ToLower(err.Error())
	for pattern, class := range c.patterns {
		if strings.Contains(s, pattern) {
			return class
		}
	}
	return ClassUnknown
}

// ErrCircuitOpen is returned by CircuitBreaker.Call when the breaker is
// tripped and the cooldown has not yet elapsed.
var ErrCircuitOpen = errors.New("mail: circuit breaker is open")

// CircuitBreaker trips after MaxFailures consecutive send failures and
// holds the line open for Timeout before allowing a single trial send
// (half-open); a trial failure reopens it for twice as long.
type CircuitBreaker struct {
	mu sync.Mutex

	maxFailures int
	timeout     time.Duration

	state       CircuitState
	failures    int
	nextAttempt time.Time
	classifier  *classifier
}

// NewCircuitBreaker constructs a CircuitBreaker. Defaults: 5 consecutive
// failures trips it, 60s cooldown.
func NewCircuitBreaker(maxFailures int, timeout time.Duration) *CircuitBreaker {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &CircuitBreaker{maxFailures: maxFailures, timeout: timeout, classifier: newClassifier()}
}

// Call runs fn with circuit-breaker protection.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if !cb.allow() {
		return ErrCircuitOpen
	}
	err := fn()
	if err != nil {
		cb.recordFailure()
		return err
	}
	cb.recordSuccess()
	return nil
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case Closed:
		return true
	case Open:
		if time.Now().After(cb.nextAttempt) {
			cb.state = HalfOpen
			return true
		}
		return false
	default: // HalfOpen
		return true
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = Closed
	cb.failures = 0
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures++
	if cb.state == HalfOpen {
		cb.state = Open
		cb.nextAttempt = time.Now().Add(2 * cb.timeout)
		return
	}
	if cb.failures >= cb.maxFailures {
		cb.state = Open
		cb.nextAttempt = time.Now().Add(cb.timeout)
	}
}

// State reports the breaker's current state, for status reporting.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// RetryPolicy retries a send with exponential backoff and jitter,
// bailing out early on non-retryable error classes (auth, permanent).
type RetryPolicy struct {
	MaxRetries    int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	classifier    *classifier
}

// DefaultRetryPolicy implements the bounded exponential backoff of
// spec.md §4.2: delay is min(2^attempt * 1s, 30s), so a 1s base doubling
// each retry and capped at 30s.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxRetries:    3,
		BaseDelay:     1 * time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
		classifier:    newClassifier(),
	}
}

func (rp *RetryPolicy) retryable(class ErrorClass) bool {
	switch class {
	case ClassNetwork, ClassTemporary, ClassQuota:
		return true
	default:
		return false
	}
}

// Retry runs fn up to MaxRetries+1 times, sleeping with jittered
// exponential backoff between attempts, stopping early on success or a
// non-retryable error.
func (rp *RetryPolicy) Retry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= rp.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(float64(rp.BaseDelay) * math.Pow(rp.BackoffFactor, float64(attempt-1)))
			if delay > rp.MaxDelay {
				delay = rp.MaxDelay
			}
			jitterMax := int64(delay) / 4
			if jitterMax <= 0 {
				jitterMax = 1
			}
			jitterNs, _ := rand.Int(rand.Reader, big.NewInt(jitterMax))
			delay += time.Duration(jitterNs.Int64())

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !rp.retryable(rp.classifier.classify(err)) {
			return err
		}
	}
	return lastErr
}

// Resilience combines a CircuitBreaker and RetryPolicy into the single
// send-path guard MailAgent uses for every delivery attempt.
type Resilience struct {
	breaker *CircuitBreaker
	retry   *RetryPolicy
}

// NewResilience builds a Resilience with the default retry policy and a
// circuit breaker tuned by maxFailures/timeout.
func NewResilience(maxFailures int, timeout time.Duration) *Resilience {
	return &Resilience{breaker: NewCircuitBreaker(maxFailures, timeout), retry: DefaultRetryPolicy()}
}

// Execute runs fn behind both the retry policy and the circuit breaker:
// retries happen inside a single breaker-guarded call, so a streak of
// retried failures still counts as one failure toward tripping the
// breaker only once retries are exhausted.
func (r *Resilience) Execute(ctx context.Context, fn func() error) error {
	return r.breaker.Call(func() error {
		return r.retry.Retry(ctx, fn)
	})
}

// BreakerState reports the underlying circuit breaker's state.
func (r *Resilience) BreakerState() CircuitState { return r.breaker.State() }
