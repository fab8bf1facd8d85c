// Package ota tracks OTA scheduling and post-boot health-ping
// confirmation bookkeeping. The firmware transport itself (downloading an
// image, writing the inactive partition, rebooting) remains the external
// OtaUpdater contract per spec.md §1/§4.5; this package only owns the
// small durable counters that decide whether a just-applied update gets
// confirmed or rolled back, per SPEC_FULL.md's Supplemented Features.
package ota

import (
	"sync"
	"time"

	"github.com/lebensspur/sentinel/internal/types"
)

// MaxUnconfirmedBoots is the "3 strikes" rollback threshold mentioned by
// /data/ota_state.json's startupCheckDone/unconfirmed-boot bookkeeping.
const MaxUnconfirmedBoots = 3

// Store is the persistence the State needs, satisfied by
// internal/configstore.Store.
type Store interface {
	LoadOtaState() (types.OtaState, error)
	SaveOtaState(types.OtaState) error
}

// Updater is the external OtaUpdater collaborator: it performs the actual
// HTTPS download, inactive-partition write, pending-verify mark, and
// reboot. Like netctl.Radio and relay.GPIOPin, no such library exists in
// the retrieval pack — production wiring is left to the embedding
// application.
type Updater interface {
	// CheckAndApply downloads url (or a configured default) if it
	// describes a newer image, writes it to the inactive partition,
	// marks it pending-verify, and reboots. Returns without rebooting if
	// no update was applied.
	CheckAndApply(url string) error
}

// State wraps the persisted OTA bookkeeping: whether this boot has run
// its post-update health check yet, and how many boots have passed
// without that check completing (the bootloader's own rollback timer is
// external; this counter is the application-level mirror of it per
// spec.md's "must be confirmed ... or the bootloader rolls back").
type State struct {
	mu    sync.Mutex
	store Store
	state types.OtaState
}

// New loads persisted OTA state from store, or zero-value defaults if
// absent.
func New(store Store) (*State, error) {
	loaded, err := store.LoadOtaState()
	if err != nil {
		return nil, err
	}
	return &State{store: store, state: loaded}, nil
}

// RecordBoot is called once at startup. If the previous boot left
// PendingVerify set without Confirm having been called, it increments
// UnconfirmedBoots; at MaxUnconfirmedBoots, RecordBoot reports that the
// embedding application should treat this as a rollback signal (the real
// partition rollback already happened at the bootloader level — this is
// only the application's own record of it).
func (s *State) RecordBoot() (shouldRollback bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.PendingVerify {
		s.state.UnconfirmedBoots++
		if s.state.UnconfirmedBoots >= MaxUnconfirmedBoots {
			s.state.PendingVerify = false
			s.state.UnconfirmedBoots = 0
			shouldRollback = true
		}
	}
	s.state.StartupCheckDone = false
	return shouldRollback, s.store.SaveOtaState(s.state)
}

// MarkApplied records that an update was just applied and this boot
// needs confirmation before the unconfirmed-boot counter can reset.
func (s *State) MarkApplied() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.PendingVerify = true
	s.state.UnconfirmedBoots = 0
	return s.store.SaveOtaState(s.state)
}

// Confirm is the post-boot health ping: it clears PendingVerify and
// resets the unconfirmed-boot counter, meaning this boot is considered
// good.
func (s *State) Confirm() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.PendingVerify = false
	s.state.UnconfirmedBoots = 0
	s.state.StartupCheckDone = true
	return s.store.SaveOtaState(s.state)
}

// RecordCheck stamps LastCheck with now, called after each scheduled or
// manual update check regardless of outcome.
func (s *State) RecordCheck(now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.LastCheck = now
	return s.store.SaveOtaState(s.state)
}

// Snapshot returns a copy of the current OTA state.
func (s *State) Snapshot() types.OtaState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
