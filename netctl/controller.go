// Package netctl drives the device's WiFi connectivity: station
// association to a configured primary/secondary network, open-network and
// AP fallback, and post-connect mDNS advertisement. It mirrors the
// Scheduler/MailAgent pattern of the rest of this module — a mutex-guarded
// struct over an external-collaborator contract (Radio) — generalized from
// the scheduler/mail orchestration style to network-connection
// orchestration, per SPEC_FULL.md §4.3.
package netctl

import (
	"context"
	"sync"
	"time"

	"github.com/lebensspur/sentinel/internal/deviceid"
	"github.com/lebensspur/sentinel/internal/errkind"
	"github.com/lebensspur/sentinel/internal/logger"
	"github.com/lebensspur/sentinel/internal/ratelimit"
	"github.com/lebensspur/sentinel/internal/types"
)

// errUnreachable is returned by a Radio when station association or DHCP
// does not complete; Simulator uses it directly, real drivers should wrap
// their own failure via errkind.Wrapf(errkind.NoNetwork, ...).
var errUnreachable = errkind.New(errkind.NoNetwork, nil)

// State is one of NetController's connection-lifecycle states, per
// spec.md §4.3.
type State int

const (
	Idle State = iota
	ScanningKnown
	ConnectingPrimary
	ConnectingSecondary
	ConnectingOpen
	ConnectingManufacturer
	Connected
	ApFallback
	VerifyingInternet
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case ScanningKnown:
		return "scanning_known"
	case ConnectingPrimary:
		return "connecting_primary"
	case ConnectingSecondary:
		return "connecting_secondary"
	case ConnectingOpen:
		return "connecting_open"
	case ConnectingManufacturer:
		return "connecting_manufacturer"
	case Connected:
		return "connected"
	case ApFallback:
		return "ap_fallback"
	case VerifyingInternet:
		return "verifying_internet"
	default:
		return "unknown"
	}
}

// Which identifies which configured network a Connected state attached to.
type Which int

const (
	WhichNone Which = iota
	WhichPrimary
	WhichSecondary
	WhichOpen
	WhichManufacturer
)

const (
	attemptsPerNetwork  = 3
	interAttemptPause   = 2 * time.Second
	perAttemptTimeout   = 15 * time.Second
	aggressiveTimeout   = 15 * time.Second
	internetProbeBudget = 30 * time.Second
	scanCacheTTL        = 5 * time.Second
	apPassword          = "sentinel-setup"

	// manufacturerSSID/manufacturerPassword stand in for the firmware's
	// compile-time MANUFACTURER_SSID/MANUFACTURER_PASSWORD constants
	// (network_manager.cpp's connectToManufacturer), which aren't present
	// in this retrieval pack. A real deployment overrides these with the
	// device's actual provisioning credentials.
	manufacturerSSID     = "LebensSpur-Service"
	manufacturerPassword = "ls-manufacturer-setup"
)

// NetController owns WiFi connectivity state for the device.
type NetController struct {
	mu sync.Mutex

	radio    Radio
	log      logger.Logger
	limiter  *ratelimit.RateLimiter
	deviceID string

	cfg   types.WiFiConfig
	state State
	which Which

	scanCache    []ScanResult
	scanCachedAt time.Time

	mdns        *Advertiser
	mdnsUp      bool
	onConnected []func(Which)
}

// New constructs a NetController. radio is the hardware collaborator;
// scans and DNS probes are paced through internal/ratelimit so a flapping
// link cannot spin the radio.
func New(radio Radio, deviceID string, log logger.Logger) *NetController {
	if deviceID == "" {
		deviceID = deviceid.Unknown
	}
	return &NetController{
		radio:    radio,
		log:      log,
		limiter:  ratelimit.NewRateLimiter(2, 2),
		deviceID: deviceID,
		mdns:     NewAdvertiser(log),
		state:    Idle,
	}
}

// SetConfig replaces the connectivity configuration. It does not itself
// trigger a reconnect; the next EnsureConnected call picks it up.
func (n *NetController) SetConfig(cfg types.WiFiConfig) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cfg = cfg
}

// OnConnected registers fn to be called, outside the lock, each time a
// station connection is established (including reconnects).
func (n *NetController) OnConnected(fn func(Which)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onConnected = append(n.onConnected, fn)
}

// State reports the current connection state and which network, if any,
// is active.
func (n *NetController) State() (State, Which) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state, n.which
}

// Scan lists visible access points, serving from a 5s cache unless
// aggressive mode (via EnsureConnected) has invalidated it.
func (n *NetController) Scan(ctx context.Context) ([]ScanResult, error) {
	n.mu.Lock()
	if time.Since(n.scanCachedAt) < scanCacheTTL && n.scanCache != nil {
		cached := n.scanCache
		n.mu.Unlock()
		return cached, nil
	}
	n.mu.Unlock()

	if err := n.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	results, err := n.radio.Scan(ctx)
	if err != nil {
		return nil, errkind.Wrapf(errkind.NoNetwork, err, "scan")
	}

	n.mu.Lock()
	n.scanCache = results
	n.scanCachedAt = time.Now()
	n.mu.Unlock()
	return results, nil
}

// EnsureConnected drives the full connection algorithm from spec.md §4.3:
// try primary then secondary (each up to attemptsPerNetwork attempts),
// fall back to open networks if allowed, and finally bring up the setup
// AP. It is idempotent — calling it while already Connected is a cheap
// no-op unless aggressive is set. Aggressive mode also drops the scan
// cache and uses aggressiveTimeout per attempt. In both modes each
// network gets up to attemptsPerNetwork attempts, stopping at the first
// success; aggressiveTimeout and perAttemptTimeout are both 15s, so the
// per-attempt timeout is the same in either mode.
func (n *NetController) EnsureConnected(ctx context.Context, aggressive bool) bool {
	n.mu.Lock()
	cfg := n.cfg
	alreadyConnected := n.state == Connected
	n.mu.Unlock()

	if alreadyConnected && !aggressive {
		return true
	}

	if aggressive {
		n.mu.Lock()
		n.scanCache = nil
		n.mu.Unlock()
	}

	timeout := perAttemptTimeout
	if aggressive {
		timeout = aggressiveTimeout
	}

	if cfg.Primary.SSID != "" {
		n.setState(ConnectingPrimary, WhichNone)
		if n.connectWithRetries(ctx, cfg.Primary, timeout) {
			return n.finishStationConnect(ctx, WhichPrimary)
		}
	}

	if cfg.Secondary.SSID != "" {
		n.setState(ConnectingSecondary, WhichNone)
		if n.connectWithRetries(ctx, cfg.Secondary, timeout) {
			return n.finishStationConnect(ctx, WhichSecondary)
		}
	}

	if cfg.AllowOpenNetworks {
		n.setState(ScanningKnown, WhichNone)
		if n.tryOpenNetworks(ctx) {
			return n.finishStationConnect(ctx, WhichOpen)
		}

		if cfg.AllowManufacturerFallback {
			n.setState(ConnectingManufacturer, WhichNone)
			if n.tryManufacturerNetwork(ctx) {
				return n.finishStationConnect(ctx, WhichManufacturer)
			}
		}
	}

	n.bringUpFallbackAP(ctx)
	return false
}

func (n *NetController) connectWithRetries(ctx context.Context, cred types.NetworkCredential, timeout time.Duration) bool {
	for attempt := 0; attempt < attemptsPerNetwork; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		err := n.radio.ConnectSTA(attemptCtx, cred, timeout)
		cancel()
		if err == nil {
			return true
		}
		n.log.Warnf("netctl: connect %s attempt %d/%d failed: %v", cred.SSID, attempt+1, attemptsPerNetwork, err)
		if attempt < attemptsPerNetwork-1 {
			select {
			case <-time.After(interAttemptPause):
			case <-ctx.Done():
				return false
			}
		}
	}
	return false
}

func (n *NetController) tryOpenNetworks(ctx context.Context) bool {
	results, err := n.Scan(ctx)
	if err != nil {
		n.log.Warnf("netctl: scan for open networks failed: %v", err)
		return false
	}
	n.setState(ConnectingOpen, WhichNone)
	for _, r := range results {
		if !r.Open {
			continue
		}
		cred := types.NetworkCredential{SSID: r.SSID}
		probeCtx, cancel := context.WithTimeout(ctx, perAttemptTimeout)
		err := n.radio.ConnectSTA(probeCtx, cred, perAttemptTimeout)
		cancel()
		if err != nil {
			continue
		}
		if n.verifyInternet(ctx) {
			return true
		}
		_ = n.radio.Disconnect(ctx)
	}
	return false
}

// tryManufacturerNetwork attempts the undocumented manufacturer-provisioned
// SSID, gated by cfg.AllowManufacturerFallback. Grounded on
// network_manager.cpp's connectToManufacturer(): a scan for MANUFACTURER_SSID
// specifically, tried only after ordinary open networks have failed, never
// before a configured primary/secondary network.
func (n *NetController) tryManufacturerNetwork(ctx context.Context) bool {
	results, err := n.Scan(ctx)
	if err != nil {
		n.log.Warnf("netctl: scan for manufacturer network failed: %v", err)
		return false
	}
	found := false
	for _, r := range results {
		if r.SSID == manufacturerSSID {
			found = true
			break
		}
	}
	if !found {
		return false
	}

	cred := types.NetworkCredential{SSID: manufacturerSSID, Password: manufacturerPassword}
	probeCtx, cancel := context.WithTimeout(ctx, perAttemptTimeout)
	err = n.radio.ConnectSTA(probeCtx, cred, perAttemptTimeout)
	cancel()
	if err != nil {
		n.log.Warnf("netctl: manufacturer connect failed: %v", err)
		return false
	}
	if n.verifyInternet(ctx) {
		return true
	}
	_ = n.radio.Disconnect(ctx)
	return false
}

func (n *NetController) verifyInternet(ctx context.Context) bool {
	n.setState(VerifyingInternet, WhichNone)
	deadline := time.Now().Add(internetProbeBudget)
	for _, host := range wellKnownProbeHosts {
		_ = host // not passed on: Radio.ProbeInternet picks its own probe targets
	}
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return false
	}
	if err := n.limiter.Wait(ctx); err != nil {
		return false
	}
	return n.radio.ProbeInternet(ctx, remaining)
}

func (n *NetController) finishStationConnect(ctx context.Context, which Which) bool {
	if !n.verifyInternet(ctx) {
		_ = n.radio.Disconnect(ctx)
		return false
	}
	n.setState(Connected, which)
	n.startMDNS(which)

	n.mu.Lock()
	callbacks := append([]func(Which){}, n.onConnected...)
	n.mu.Unlock()
	for _, cb := range callbacks {
		cb(which)
	}
	return true
}

func (n *NetController) bringUpFallbackAP(ctx context.Context) {
	n.mu.Lock()
	apEnabled := n.cfg.APModeEnabled
	n.mu.Unlock()
	if !apEnabled {
		n.setState(Idle, WhichNone)
		return
	}

	ssid := "LS-" + n.deviceID
	if err := n.radio.StartAP(ctx, ssid, apPassword); err != nil {
		n.log.Errorf("netctl: AP fallback failed: %v", err)
		n.setState(Idle, WhichNone)
		return
	}
	n.setState(ApFallback, WhichNone)
	n.startMDNS(WhichNone)
}

func (n *NetController) startMDNS(which Which) {
	n.mu.Lock()
	hostname := n.cfg.MDNSHostname
	if hostname == "" {
		hostname = "ls-" + n.deviceID
	}
	mode := "station"
	switch which {
	case WhichNone:
		mode = "ap-fallback"
	case WhichManufacturer:
		mode = "manufacturer"
	}
	up := n.mdnsUp
	n.mu.Unlock()

	if up {
		_ = n.mdns.Stop()
	}
	rec := ServiceRecord{Hostname: hostname, Port: 80, Mode: mode}
	if err := n.mdns.Start(rec); err != nil {
		n.log.Warnf("netctl: mdns start failed: %v", err)
		return
	}
	n.mu.Lock()
	n.mdnsUp = true
	n.mu.Unlock()
}

func (n *NetController) setState(s State, which Which) {
	n.mu.Lock()
	n.state = s
	n.which = which
	n.mu.Unlock()
}

// CurrentIP returns the active station or AP IP address, or "" when idle.
func (n *NetController) CurrentIP() string {
	return n.radio.CurrentIP()
}
