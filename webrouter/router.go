package webrouter

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lebensspur/sentinel/internal/logger"
	"github.com/lebensspur/sentinel/internal/types"
	"github.com/lebensspur/sentinel/mail"
	"github.com/lebensspur/sentinel/netctl"
	"github.com/lebensspur/sentinel/ota"
	"github.com/lebensspur/sentinel/relay"
	"github.com/lebensspur/sentinel/scheduler"
)

// sessionTTL bounds how long a /api/login cookie stays valid.
const sessionTTL = 24 * time.Hour

// ConfigStore is the slice of internal/configstore.Store the control
// surface needs for reading and writing each persisted settings file named
// in spec.md §6.
type ConfigStore interface {
	LoadTimerSettings() (types.TimerSettings, error)
	SaveTimerSettings(types.TimerSettings) error
	LoadMailConfig() (types.MailConfig, error)
	SaveMailConfig(types.MailConfig) error
	LoadWiFiConfig() (types.WiFiConfig, error)
	SaveWiFiConfig(types.WiFiConfig) error
	LoadAPISettings() (types.ApiSettings, error)
	SaveAPISettings(types.ApiSettings) error
}

// Supervisor is the narrow slice of supervisor.Supervisor the router needs:
// alive-signal handling and factory reset.
type Supervisor interface {
	HandleAliveSignal(ctx context.Context) error
	FactoryReset() error
}

// Deps bundles every collaborator the control-plane surface of spec.md §6
// routes requests into. Router holds no state of its own beyond these
// references, the same thin-orchestrator shape Supervisor uses.
type Deps struct {
	Config     ConfigStore
	Scheduler  *scheduler.Scheduler
	Mailer     *mail.Agent
	Net        *netctl.NetController
	Relay      *relay.Controller
	Ota        *ota.State
	Supervisor Supervisor
	DeviceID   string
	Version    string
	Log        logger.Logger
}

// NewRouter builds the chi.Router implementing spec.md §6's HTTP control
// surface, guarded by authMiddleware for every route except /api/login.
func NewRouter(d Deps) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	h := &handlers{d: d}

	r.Post("/api/login", h.login)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware(h.apiSettings))

		r.Get("/api/device/info", h.deviceInfo)
		r.Get("/api/status", h.status)
		r.Post("/api/reboot", h.reboot)
		r.Post("/api/factory-reset", h.factoryReset)
		r.Post("/api/logout", h.logout)

		r.Get("/api/timer", h.getTimer)
		r.Post("/api/timer", h.setTimer)
		r.Post("/api/timer/reset", h.resetTimer)
		r.Post("/api/timer/pause", h.pauseTimer)
		r.Post("/api/timer/resume", h.resumeTimer)

		r.Get("/api/mail", h.getMail)
		r.Post("/api/mail", h.setMail)
		r.Post("/api/mail/test", h.testMail)

		r.Get("/api/wifi", h.getWiFi)
		r.Post("/api/wifi", h.setWiFi)
		r.Get("/api/wifi/scan", h.scanWiFi)

		r.Get("/api/relay", h.getRelay)
		r.Post("/api/relay", h.setRelay)
		r.Post("/api/relay/trigger", h.triggerRelay)

		r.Get("/api/config/api-settings", h.getAPISettings)
		r.Post("/api/config/api-settings", h.setAPISettings)

		r.Get("/api/ota", h.getOta)
		r.Post("/api/ota/url", h.setOtaURL)
	})

	return r
}
