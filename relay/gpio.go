// Package relay drives the alarm relay output: trigger-with-delay,
// auto-off after a duration, and an optional pulse mode, per spec.md
// §4.5's RelayDriver contract. It is grounded on
// original_source/HW_esp32C6/main/relay_manager.c's state machine
// (Idle → Delay → Active/Pulsing → Idle) translated from ESP-IDF's
// tick-driven timers to Go's native time.AfterFunc scheduling.
package relay

import "context"

// GPIOPin is the hardware collaborator a Controller drives — a single
// digital output pin. Like netctl.Radio, this is an external-collaborator
// contract: no GPIO library exists anywhere in the retrieval pack, so
// production wiring (e.g. periph.io, or a board-specific SDK) is left to
// the embedding application, while this package ships SimulatedPin for
// tests.
type GPIOPin interface {
	// SetLevel drives the pin high (true) or low (false).
	SetLevel(ctx context.Context, high bool) error
}
