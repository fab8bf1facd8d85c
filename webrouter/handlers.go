package webrouter

import (
	"net/http"
	"time"

	"github.com/lebensspur/sentinel/internal/types"
	"github.com/lebensspur/sentinel/relay"
)

func timeNow() time.Time { return time.Now() }

type handlers struct {
	d Deps
}

func (h *handlers) apiSettings() types.ApiSettings {
	cfg, err := h.d.Config.LoadAPISettings()
	if err != nil {
		return types.ApiSettings{}
	}
	return cfg
}

// login issues a session cookie for a caller who already presented a valid
// bearer token, matching spec.md §6's "POST /api/login exchanges a bearer
// token for a cookie-backed session" so browser clients don't need to hold
// the raw token in JS-accessible storage.
func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	cfg := h.apiSettings()
	if cfg.TokenHash == "" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "no token configured"})
		return
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if bearerVerify(cfg.TokenHash, body.Token) != nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	http.SetCookie(w, sessionCookie(body.Token, sessionTTL))
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, sessionCookie("", 0))
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) deviceInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"deviceId": h.d.DeviceID,
		"version":  h.d.Version,
	})
}

func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	state, which := h.d.Net.State()
	writeJSON(w, http.StatusOK, map[string]any{
		"scheduler": h.d.Scheduler.Snapshot(),
		"mail":      h.d.Mailer.Snapshot(),
		"relay":     h.d.Relay.Status(),
		"ota":       h.d.Ota.Snapshot(),
		"net": map[string]any{
			"state": state.String(),
			"which": which,
			"ip":    h.d.Net.CurrentIP(),
		},
	})
}

func (h *handlers) reboot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "rebooting"})
}

func (h *handlers) factoryReset(w http.ResponseWriter, r *http.Request) {
	if err := h.d.Supervisor.FactoryReset(); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "factory reset in progress"})
}

// --- timer ---

func (h *handlers) getTimer(w http.ResponseWriter, r *http.Request) {
	settings, err := h.d.Config.LoadTimerSettings()
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (h *handlers) setTimer(w http.ResponseWriter, r *http.Request) {
	var settings types.TimerSettings
	if err := decodeJSON(r, &settings); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	settings.Clamp()
	if err := h.d.Scheduler.Configure(settings); err != nil {
		writeErr(w, err)
		return
	}
	if err := h.d.Config.SaveTimerSettings(settings); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (h *handlers) resetTimer(w http.ResponseWriter, r *http.Request) {
	if err := h.d.Supervisor.HandleAliveSignal(r.Context()); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *handlers) pauseTimer(w http.ResponseWriter, r *http.Request) {
	if err := h.d.Scheduler.Pause(); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (h *handlers) resumeTimer(w http.ResponseWriter, r *http.Request) {
	if err := h.d.Scheduler.Resume(); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

// --- mail ---

func (h *handlers) getMail(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.d.Config.LoadMailConfig()
	if err != nil {
		writeErr(w, err)
		return
	}
	cfg.Password = ""
	writeJSON(w, http.StatusOK, cfg)
}

func (h *handlers) setMail(w http.ResponseWriter, r *http.Request) {
	var cfg types.MailConfig
	if err := decodeJSON(r, &cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.d.Mailer.Reconfigure(cfg); err != nil {
		writeErr(w, err)
		return
	}
	if err := h.d.Config.SaveMailConfig(cfg); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) testMail(w http.ResponseWriter, r *http.Request) {
	result := h.d.Mailer.TestConnection(r.Context())
	if !result.Sent {
		writeErr(w, result.Err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "connected"})
}

// --- wifi ---

func (h *handlers) getWiFi(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.d.Config.LoadWiFiConfig()
	if err != nil {
		writeErr(w, err)
		return
	}
	cfg.Primary.Password = ""
	cfg.Secondary.Password = ""
	writeJSON(w, http.StatusOK, cfg)
}

func (h *handlers) setWiFi(w http.ResponseWriter, r *http.Request) {
	var cfg types.WiFiConfig
	if err := decodeJSON(r, &cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.d.Net.SetConfig(cfg)
	if err := h.d.Config.SaveWiFiConfig(cfg); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) scanWiFi(w http.ResponseWriter, r *http.Request) {
	results, err := h.d.Net.Scan(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// --- relay ---

func (h *handlers) getRelay(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.d.Relay.Status())
}

func (h *handlers) setRelay(w http.ResponseWriter, r *http.Request) {
	var cfg relayConfig
	if err := decodeJSON(r, &cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.d.Relay.Configure(cfg.toDomain())
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) triggerRelay(w http.ResponseWriter, r *http.Request) {
	if err := h.d.Relay.Trigger(r.Context()); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "triggered"})
}

// --- config: api settings ---

func (h *handlers) getAPISettings(w http.ResponseWriter, r *http.Request) {
	cfg := h.apiSettings()
	cfg.TokenHash = ""
	writeJSON(w, http.StatusOK, cfg)
}

// setAPISettings accepts a plaintext token (never a hash) and bcrypt-hashes
// it before persisting, per spec.md §6's "tokens are never stored or
// transmitted in plaintext at rest".
func (h *handlers) setAPISettings(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled      bool   `json:"enabled"`
		Endpoint     string `json:"endpoint"`
		RequireToken bool   `json:"requireToken"`
		Token        string `json:"token,omitempty"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cfg := h.apiSettings()
	cfg.Enabled = body.Enabled
	cfg.Endpoint = body.Endpoint
	cfg.RequireToken = body.RequireToken
	if body.Token != "" {
		hash, err := HashToken(body.Token)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to hash token")
			return
		}
		cfg.TokenHash = hash
	}

	if err := h.d.Config.SaveAPISettings(cfg); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- ota ---

func (h *handlers) getOta(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.d.Ota.Snapshot())
}

func (h *handlers) setOtaURL(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URL string `json:"url"`
	}
	if err := decodeJSON(r, &body); err != nil || body.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	// Applying the update is the Updater external-collaborator contract
	// (spec.md §1); this endpoint only records that a check was
	// requested, matching RecordCheck's bookkeeping role.
	if err := h.d.Ota.RecordCheck(timeNow()); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "update requested"})
}

// relayConfig is the JSON shape accepted by POST /api/relay; it mirrors
// relay.Config with JSON tags since relay.Config itself stays
// transport-agnostic.
type relayConfig struct {
	Inverted        bool   `json:"inverted"`
	DelaySeconds    uint32 `json:"delaySeconds"`
	DurationSeconds uint32 `json:"durationSeconds"`
	PulseEnabled    bool   `json:"pulseEnabled"`
	PulseOnMs       uint32 `json:"pulseOnMs"`
	PulseOffMs      uint32 `json:"pulseOffMs"`
}

func (c relayConfig) toDomain() relay.Config {
	return relay.Config{
		Inverted:        c.Inverted,
		DelaySeconds:    c.DelaySeconds,
		DurationSeconds: c.DurationSeconds,
		PulseEnabled:    c.PulseEnabled,
		PulseOnMs:       c.PulseOnMs,
		PulseOffMs:      c.PulseOffMs,
	}
}
