package netctl

import (
	"context"
	"sync"
	"time"

	"github.com/lebensspur/sentinel/internal/types"
)

// Simulator is an in-memory Radio used by tests and by cmd/sentineld
// when no real WiFi driver is wired in. It models a fixed set of
// reachable SSIDs and an internet-reachable flag, so NetController's
// state machine can be exercised deterministically.
type Simulator struct {
	mu sync.Mutex

	visible      []ScanResult
	reachableSSID map[string]bool
	internetUp   bool

	apActive bool
	apSSID   string
	staIP    string
}

// NewSimulator builds a Simulator with no visible networks and internet
// reachability on, matching the common "everything configured correctly"
// test fixture; tests call its Set* methods to model failure.
func NewSimulator() *Simulator {
	return &Simulator{
		reachableSSID: make(map[string]bool),
		internetUp:    true,
	}
}

// SetVisible replaces the set of APs Scan reports.
func (s *Simulator) SetVisible(results []ScanResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visible = results
}

// SetReachable controls whether ConnectSTA succeeds for ssid.
func (s *Simulator) SetReachable(ssid string, reachable bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reachableSSID[ssid] = reachable
}

// SetInternetUp controls ProbeInternet's return value.
func (s *Simulator) SetInternetUp(up bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.internetUp = up
}

func (s *Simulator) Scan(ctx context.Context) ([]ScanResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ScanResult, len(s.visible))
	copy(out, s.visible)
	return out, nil
}

func (s *Simulator) ConnectSTA(ctx context.Context, cred types.NetworkCredential, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.reachableSSID[cred.SSID] {
		return errUnreachable
	}
	s.staIP = "192.168.1.50"
	return nil
}

func (s *Simulator) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staIP = ""
	return nil
}

func (s *Simulator) StartAP(ctx context.Context, ssid, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apActive = true
	s.apSSID = ssid
	return nil
}

func (s *Simulator) StopAP(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apActive = false
	return nil
}

func (s *Simulator) ProbeInternet(ctx context.Context, timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.internetUp
}

func (s *Simulator) CurrentIP() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.staIP != "" {
		return s.staIP
	}
	if s.apActive {
		return "192.168.4.1"
	}
	return ""
}
