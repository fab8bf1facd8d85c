package relay

import (
	"context"
	"sync"
)

// SimulatedPin is an in-memory GPIOPin used by tests and by cmd/sentineld
// when no real GPIO library is wired in.
type SimulatedPin struct {
	mu   sync.Mutex
	high bool
	sets int
}

// NewSimulatedPin builds a SimulatedPin starting low.
func NewSimulatedPin() *SimulatedPin {
	return &SimulatedPin{}
}

func (p *SimulatedPin) SetLevel(ctx context.Context, high bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.high = high
	p.sets++
	return nil
}

// High reports the pin's current simulated level.
func (p *SimulatedPin) High() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.high
}

// SetCount returns how many times SetLevel has been called, useful for
// asserting pulse counts in tests.
func (p *SimulatedPin) SetCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sets
}
