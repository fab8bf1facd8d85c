package netctl

import (
	"context"
	"time"

	"github.com/lebensspur/sentinel/internal/types"
)

// ScanResult is one access point observed during a scan.
type ScanResult struct {
	SSID string
	RSSI int
	Open bool
}

// Radio is the hardware collaborator NetController drives — the
// station/AP radio itself. Like RelayDriver and ButtonInput, this is an
// external-collaborator contract (spec.md §4.5's pattern): the real
// implementation talks to a WiFi chipset or OS network manager that has
// no equivalent in this retrieval pack, so production wiring is left to
// the embedding application while this module ships a Simulator for
// tests and local development.
type Radio interface {
	// Scan lists currently visible access points.
	Scan(ctx context.Context) ([]ScanResult, error)
	// ConnectSTA attempts to associate with cred as a station, failing if
	// association or DHCP does not complete within timeout.
	ConnectSTA(ctx context.Context, cred types.NetworkCredential, timeout time.Duration) error
	// Disconnect tears down any active station association.
	Disconnect(ctx context.Context) error
	// StartAP brings up a local access point named ssid.
	StartAP(ctx context.Context, ssid, password string) error
	// StopAP tears down the access point.
	StopAP(ctx context.Context) error
	// ProbeInternet reports whether outbound DNS resolution succeeds
	// within timeout, used to confirm real internet reachability beyond
	// mere station association.
	ProbeInternet(ctx context.Context, timeout time.Duration) bool
	// CurrentIP returns the station or AP IP currently assigned, or "".
	CurrentIP() string
}

// wellKnownProbeHosts names three well-known hosts for an internet
// reachability check. NetController does not hand this list to the
// Radio: ProbeInternet takes only a timeout, and which hosts it resolves
// is up to the Radio implementation.
var wellKnownProbeHosts = []string{"one.one.one.one", "dns.google", "resolver1.opendns.com"}
