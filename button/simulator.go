package button

import "sync"

// SimulatedPin is an in-memory RawPin for tests.
type SimulatedPin struct {
	mu      sync.Mutex
	pressed bool
}

// NewSimulatedPin builds a SimulatedPin starting released.
func NewSimulatedPin() *SimulatedPin {
	return &SimulatedPin{}
}

// SetPressed drives the simulated raw level.
func (p *SimulatedPin) SetPressed(pressed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pressed = pressed
}

func (p *SimulatedPin) Pressed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pressed
}
