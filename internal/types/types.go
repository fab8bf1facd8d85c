// Package types holds the data model shared across the scheduler, mail,
// network, and supervisor packages: settings the user configures, runtime
// state the scheduler owns, and the small value types that flow between
// components.
package types

import "time"

// TimeUnit is the granularity a TimerSettings interval is expressed in.
type TimeUnit int

const (
	UnitMinutes TimeUnit = iota
	UnitHours
	UnitDays
)

// Seconds returns the number of seconds in one unit of u.
func (u TimeUnit) Seconds() int64 {
	switch u {
	case UnitMinutes:
		return 60
	case UnitHours:
		return 3600
	case UnitDays:
		return 86400
	default:
		return 60
	}
}

const (
	// MaxAlarms is the maximum number of warning points within an interval.
	MaxAlarms = 10
	// MaxGroups is the maximum number of mail recipient groups.
	MaxGroups = 3
	// MaxRecipientsPerGroup bounds a group's recipient list.
	MaxRecipientsPerGroup = 10
	// MaxAttachmentsPerGroup bounds a group's stored attachment paths.
	MaxAttachmentsPerGroup = 5
)

// TimerSettings is the user-chosen countdown period.
type TimerSettings struct {
	Unit       TimeUnit `json:"unit"`
	TotalValue int      `json:"totalValue"` // [1, 60]
	AlarmCount int      `json:"alarmCount"` // [0, MaxAlarms]
	Enabled    bool     `json:"enabled"`
}

// TotalSeconds returns the full countdown length in seconds.
func (s TimerSettings) TotalSeconds() int64 {
	return int64(s.TotalValue) * s.Unit.Seconds()
}

// Clamp normalizes out-of-range fields in place, matching the bounds spec.md
// §3 places on TimerSettings.
func (s *TimerSettings) Clamp() {
	if s.TotalValue < 1 {
		s.TotalValue = 1
	}
	if s.TotalValue > 60 {
		s.TotalValue = 60
	}
	if s.AlarmCount < 0 {
		s.AlarmCount = 0
	}
	if s.AlarmCount > MaxAlarms {
		s.AlarmCount = MaxAlarms
	}
}

// TimerRuntime is persisted transient scheduler state — it must survive a
// restart so a running countdown, an in-progress alarm escalation, and the
// per-group final-dispatch dedup ledger are not lost on reboot.
type TimerRuntime struct {
	TimerActive     bool  `json:"timerActive"`
	Paused          bool  `json:"paused"`
	DeadlineMillis  int64 `json:"deadlineMillis"` // monotonic milliseconds
	RemainingSecond int64 `json:"remainingSeconds"`
	NextAlarmIndex  int   `json:"nextAlarmIndex"`
	FinalTriggered  bool  `json:"finalTriggered"`
	// FinalGroupsSent[i] is true once group i's final mail has been
	// confirmed delivered for the current final-escalation episode.
	FinalGroupsSent [MaxGroups]bool `json:"finalGroupsSent"`
}

// AlarmSchedule is the derived, non-persisted set of warning offsets within
// an interval, generated fresh from TimerSettings by scheduler.BuildSchedule.
type AlarmSchedule struct {
	Count          int
	OffsetsSeconds []int64 // ascending, each in (0, total), pairwise distinct
}

// MailGroup is a named set of recipients sharing a subject/body template and
// an optional callback URL, per spec.md §3.
type MailGroup struct {
	Name        string   `json:"name"`
	Enabled     bool     `json:"enabled"`
	Subject     string   `json:"subject"`
	Body        string   `json:"body"`
	GetURL      string   `json:"getUrl,omitempty"`
	Recipients  []string `json:"recipients"`
	Attachments []string `json:"attachments"`
	// SendIf is an optional expr-lang predicate evaluated against
	// DispatchContext; an empty string means "always send". See
	// mail.CompilePredicate.
	SendIf string `json:"sendIf,omitempty"`
}

// MailConfig holds SMTP connection settings and the configured recipient
// groups.
type MailConfig struct {
	Host       string               `json:"host"`
	Port       int                  `json:"port"` // default 465
	Username   string               `json:"username"`
	Password   string               `json:"password"`
	SenderName string               `json:"senderName"`
	Groups     [MaxGroups]MailGroup `json:"groups"`

	// DailyStatusCron, if non-empty, schedules the daily_status template
	// via a standard cron expression (supplemented feature, see
	// SPEC_FULL.md).
	DailyStatusCron string `json:"dailyStatusCron,omitempty"`
}

// StaticIPConfig is the optional static-IP assignment for one WiFi network.
type StaticIPConfig struct {
	Enabled bool   `json:"enabled"`
	IP      string `json:"ip,omitempty"`
	Gateway string `json:"gateway,omitempty"`
	Subnet  string `json:"subnet,omitempty"`
	DNS     string `json:"dns,omitempty"`
}

// NetworkCredential is one configured SSID/password pair plus its optional
// static IP assignment.
type NetworkCredential struct {
	SSID     string         `json:"ssid"`
	Password string         `json:"password"`
	Static   StaticIPConfig `json:"static"`
}

// WiFiConfig is the full NetController connectivity configuration.
type WiFiConfig struct {
	Primary   NetworkCredential `json:"primary"`
	Secondary NetworkCredential `json:"secondary"`

	MDNSHostname string `json:"mdnsHostname,omitempty"`

	AllowOpenNetworks bool `json:"allowOpenNetworks"`
	// AllowManufacturerFallback opts into trying an undocumented
	// manufacturer SSID after ordinary open networks. Off by default —
	// see SPEC_FULL.md Open Questions.
	AllowManufacturerFallback bool `json:"allowManufacturerFallback"`
	APModeEnabled             bool `json:"apModeEnabled"` // default true when absent
}

// ApiSettings controls the remote-GET alive-signal endpoint.
type ApiSettings struct {
	Enabled      bool   `json:"enabled"`
	Endpoint     string `json:"endpoint"`
	RequireToken bool   `json:"requireToken"`
	// TokenHash is the bcrypt hash of the bearer token; the plaintext
	// token is never persisted.
	TokenHash string `json:"tokenHash,omitempty"`
}

// OtaState tracks OTA scheduling and post-boot health-ping confirmation
// bookkeeping (supplemented feature, see SPEC_FULL.md).
type OtaState struct {
	LastCheck        time.Time `json:"lastCheck"`
	StartupCheckDone bool      `json:"startupCheckDone"`
	UnconfirmedBoots int       `json:"unconfirmedBoots"`
	PendingVerify    bool      `json:"pendingVerify"`
}

// Priority orders mail queue items; lower value sends first.
type Priority int

const (
	PriorityHigh   Priority = 1
	PriorityNormal Priority = 3
	PriorityLow    Priority = 5
)

// TemplateKind identifies which built-in message template to compose.
type TemplateKind int

const (
	TemplateTest TemplateKind = iota
	TemplateWarning
	TemplateAlarm
	TemplateReset
	TemplateDailyStatus
)

// Origin identifies the dedup tuple a mail item was enqueued for, so restart
// recovery and per-group success bookkeeping can key off it.
type Origin struct {
	GroupIndex int
	AlarmIndex int // -1 when the item is not tied to a specific warning point
	IsFinal    bool
}

// DispatchContext is the small environment a group's SendIf predicate is
// evaluated against.
type DispatchContext struct {
	AlarmIndex       int
	IsFinal          bool
	RemainingMinutes float64
}
