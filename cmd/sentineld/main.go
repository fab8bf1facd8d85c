// Command sentineld is the dead-man's-switch daemon: it wires
// configstore, scheduler, mail, netctl, relay, button, ota, and
// supervisor together behind the webrouter HTTP control surface. A
// thin composition root, no business logic of its own.
package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/lebensspur/sentinel/button"
	"github.com/lebensspur/sentinel/internal/configstore"
	"github.com/lebensspur/sentinel/internal/deviceid"
	"github.com/lebensspur/sentinel/internal/logger"
	"github.com/lebensspur/sentinel/internal/timesource"
	"github.com/lebensspur/sentinel/mail"
	"github.com/lebensspur/sentinel/netctl"
	"github.com/lebensspur/sentinel/ota"
	"github.com/lebensspur/sentinel/relay"
	"github.com/lebensspur/sentinel/scheduler"
	"github.com/lebensspur/sentinel/supervisor"
	"github.com/lebensspur/sentinel/webrouter"
)

func main() {
	flags := parseFlags()
	log := logger.New("sentineld")

	if err := logger.SetLevel(flags.LogLevel); err != nil {
		log.Errorf("invalid --log-level %q, keeping default: %v", flags.LogLevel, err)
	}

	deviceID := flags.DeviceID
	if deviceID == "" {
		deviceID = deriveDeviceID(log)
	}
	log.Infof("starting sentineld: device_id=%s listen=%s data_dir=%s", deviceID, flags.ListenAddr, flags.DataDir)

	store, err := configstore.Open(filepath.Join(flags.DataDir, "sentinel.db"))
	if err != nil {
		log.Errorf("open config store: %v", err)
		os.Exit(1)
	}
	defer store.Close()

	clock := timesource.NewSystem()

	timerSettings, err := store.LoadTimerSettings()
	if err != nil {
		log.Errorf("load timer settings: %v", err)
		os.Exit(1)
	}
	sched, err := scheduler.New(store, clock, logger.New("scheduler"))
	if err != nil {
		log.Errorf("construct scheduler: %v", err)
		os.Exit(1)
	}
	if err := sched.Configure(timerSettings); err != nil {
		log.Errorf("configure scheduler from persisted settings: %v", err)
	} else if err := sched.Start(); err != nil {
		log.Errorf("start scheduler: %v", err)
	}

	mailCfg, err := store.LoadMailConfig()
	if err != nil {
		log.Errorf("load mail config: %v", err)
		os.Exit(1)
	}
	mailer, err := mail.New(mailCfg, deviceID, logger.New("mail"))
	if err != nil {
		log.Errorf("construct mail agent: %v", err)
		os.Exit(1)
	}
	mailer.Start()
	defer mailer.Stop()

	wifiCfg, err := store.LoadWiFiConfig()
	if err != nil {
		log.Errorf("load wifi config: %v", err)
		os.Exit(1)
	}
	// No WiFi-radio driver exists in the retrieval pack (spec.md §4.5
	// treats Radio as an external collaborator implemented by the
	// embedding platform); sentineld runs against the in-memory
	// Simulator until a real Radio is wired in by a platform build.
	if !flags.Simulated {
		log.Warnf("no hardware Radio binding available in this build; running against netctl.Simulator")
	}
	radio := netctl.NewSimulator()
	netCtl := netctl.New(radio, deviceID, logger.New("netctl"))
	netCtl.SetConfig(wifiCfg)

	// Same story for GPIOPin/RawPin — relay and button drivers are
	// external collaborators with no portable Go library, so sentineld
	// runs them against in-memory simulators.
	relayPin := relay.NewSimulatedPin()
	relayCtl := relay.New(relayPin, relay.DefaultConfig(), logger.New("relay"))

	otaState, err := ota.New(store)
	if err != nil {
		log.Errorf("construct ota state: %v", err)
		os.Exit(1)
	}

	sup := supervisor.New(sched, mailer, netCtl, relayCtl, store, noopRebooter{}, logger.New("supervisor"))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go sup.Run(ctx)
	go netCtl.EnsureConnected(ctx, false)
	go runButton(ctx, sched, sup, logger.New("button"))

	router := webrouter.NewRouter(webrouter.Deps{
		Config:     store,
		Scheduler:  sched,
		Mailer:     mailer,
		Net:        netCtl,
		Relay:      relayCtl,
		Ota:        otaState,
		Supervisor: sup,
		DeviceID:   deviceID,
		Version:    version,
		Log:        logger.New("webrouter"),
	})

	srv := &http.Server{Addr: flags.ListenAddr, Handler: router}
	go func() {
		log.Infof("http control surface listening on %s", flags.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Infof("shutting down")
	sup.Stop()
	_ = srv.Shutdown(context.Background())
}

// version is overridden at build time via -ldflags.
var version = "dev"

// noopRebooter satisfies supervisor.Rebooter for builds with no platform
// reboot vector wired in; a real deployment supplies one backed by the
// host's reboot syscall or MCU reset.
type noopRebooter struct{}

func (noopRebooter) Reboot() {}

// runButton polls a button.Debouncer at its debounce window and routes
// classified events into Scheduler/Supervisor: Press is the alive signal,
// LongPress pauses the countdown, and a confirmed VeryLongPress (two
// presses within the confirm window) erases configuration, per
// SPEC_FULL.md's supplemented button semantics. Like Radio/GPIOPin, no
// real RawPin exists in the retrieval pack, so this runs against
// button.SimulatedPin until a platform build wires in real hardware.
func runButton(ctx context.Context, sched *scheduler.Scheduler, sup *supervisor.Supervisor, log logger.Logger) {
	pin := button.NewSimulatedPin()
	deb := button.New(pin)
	deb.OnEvent(func(ev button.Event) {
		switch ev {
		case button.Press:
			if err := sup.HandleAliveSignal(ctx); err != nil {
				log.Errorf("alive signal from button press: %v", err)
			}
		case button.LongPress:
			if err := sched.Pause(); err != nil {
				log.Errorf("pause from button long-press: %v", err)
			}
		case button.FactoryResetConfirmed:
			log.Warnf("factory reset confirmed via button")
			if err := sup.FactoryReset(); err != nil {
				log.Errorf("factory reset from button: %v", err)
			}
		}
	})

	ticker := time.NewTicker(button.DebounceWindow)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			deb.Sample(now)
		}
	}
}

// deriveDeviceID mirrors the original firmware's device_id.c: derive a
// stable ID from the first interface with a real hardware MAC address.
func deriveDeviceID(log logger.Logger) string {
	ifaces, err := net.Interfaces()
	if err != nil {
		log.Warnf("enumerate interfaces for device id: %v", err)
		return deviceid.Unknown
	}
	for _, iface := range ifaces {
		if len(iface.HardwareAddr) == 6 {
			return deviceid.FromMAC(iface.HardwareAddr)
		}
	}
	return deviceid.Unknown
}
