package netctl

import (
	"context"
	"testing"
	"time"

	"github.com/lebensspur/sentinel/internal/logger"
	"github.com/lebensspur/sentinel/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(primarySSID, secondarySSID string) types.WiFiConfig {
	return types.WiFiConfig{
		Primary:           types.NetworkCredential{SSID: primarySSID, Password: "pw"},
		Secondary:         types.NetworkCredential{SSID: secondarySSID, Password: "pw"},
		AllowOpenNetworks: true,
		APModeEnabled:     true,
	}
}

func TestEnsureConnected_PrimarySucceeds(t *testing.T) {
	sim := NewSimulator()
	sim.SetReachable("home", true)
	nc := New(sim, "TESTDEV01", logger.New("test"))
	nc.SetConfig(testConfig("home", "backup"))

	ok := nc.EnsureConnected(context.Background(), false)
	require.True(t, ok)

	state, which := nc.State()
	assert.Equal(t, Connected, state)
	assert.Equal(t, WhichPrimary, which)
}

func TestEnsureConnected_FallsBackToSecondary(t *testing.T) {
	sim := NewSimulator()
	sim.SetReachable("backup", true)
	nc := New(sim, "TESTDEV02", logger.New("test"))
	nc.SetConfig(testConfig("home", "backup"))

	ok := nc.EnsureConnected(context.Background(), false)
	require.True(t, ok)

	_, which := nc.State()
	assert.Equal(t, WhichSecondary, which)
}

func TestEnsureConnected_FallsBackToOpenNetwork(t *testing.T) {
	sim := NewSimulator()
	sim.SetVisible([]ScanResult{{SSID: "coffee-shop", Open: true}})
	sim.SetReachable("coffee-shop", true)
	nc := New(sim, "TESTDEV03", logger.New("test"))
	nc.SetConfig(testConfig("home", "backup"))

	ok := nc.EnsureConnected(context.Background(), false)
	require.True(t, ok)

	_, which := nc.State()
	assert.Equal(t, WhichOpen, which)
}

func TestEnsureConnected_AllFail_BringsUpAP(t *testing.T) {
	sim := NewSimulator()
	nc := New(sim, "TESTDEV04", logger.New("test"))
	nc.SetConfig(testConfig("home", "backup"))

	ok := nc.EnsureConnected(context.Background(), false)
	assert.False(t, ok)

	state, _ := nc.State()
	assert.Equal(t, ApFallback, state)
	assert.Equal(t, "192.168.4.1", nc.CurrentIP())
}

func TestEnsureConnected_NoInternetAfterAssociation_Fails(t *testing.T) {
	sim := NewSimulator()
	sim.SetReachable("home", true)
	sim.SetInternetUp(false)
	nc := New(sim, "TESTDEV05", logger.New("test"))
	nc.SetConfig(testConfig("home", ""))
	nc.cfg.AllowOpenNetworks = false

	ok := nc.EnsureConnected(context.Background(), false)
	assert.False(t, ok)
}

func TestEnsureConnected_IdempotentWhenAlreadyConnected(t *testing.T) {
	sim := NewSimulator()
	sim.SetReachable("home", true)
	nc := New(sim, "TESTDEV06", logger.New("test"))
	nc.SetConfig(testConfig("home", "backup"))

	require.True(t, nc.EnsureConnected(context.Background(), false))
	require.True(t, nc.EnsureConnected(context.Background(), false))
}

func TestOnConnected_CallbackFires(t *testing.T) {
	sim := NewSimulator()
	sim.SetReachable("home", true)
	nc := New(sim, "TESTDEV07", logger.New("test"))
	nc.SetConfig(testConfig("home", "backup"))

	fired := make(chan Which, 1)
	nc.OnConnected(func(w Which) { fired <- w })

	require.True(t, nc.EnsureConnected(context.Background(), false))
	select {
	case w := <-fired:
		assert.Equal(t, WhichPrimary, w)
	case <-time.After(time.Second):
		t.Fatal("callback did not fire")
	}
}

func TestScan_CachesResults(t *testing.T) {
	sim := NewSimulator()
	sim.SetVisible([]ScanResult{{SSID: "net-a"}})
	nc := New(sim, "TESTDEV08", logger.New("test"))

	first, err := nc.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 1)

	sim.SetVisible([]ScanResult{{SSID: "net-a"}, {SSID: "net-b"}})
	second, err := nc.Scan(context.Background())
	require.NoError(t, err)
	assert.Len(t, second, 1, "cached result should still be served within TTL")
}
