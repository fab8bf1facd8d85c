// Package errkind classifies the error taxonomy of spec.md §7 so callers
// above a component boundary (principally Supervisor and webrouter) can
// branch on *kind* rather than parsing error strings, while the underlying
// error still carries a wrapped cause via github.com/pkg/errors.
package errkind

import "github.com/pkg/errors"

// Kind is one of the named error categories from spec.md §7.
type Kind int

const (
	Unknown Kind = iota
	ConfigInvalid
	ConfigIOError
	SchedulerBusy
	NoNetwork
	DNSFailed
	SmtpTransient
	SmtpPermanent
	QueueFull
	AuthRejected
	Timeout
	HardwareFault
)

func (k Kind) String() string {
	switch k {
	case ConfigInvalid:
		return "ConfigInvalid"
	case ConfigIOError:
		return "ConfigIOError"
	case SchedulerBusy:
		return "SchedulerBusy"
	case NoNetwork:
		return "NoNetwork"
	case DNSFailed:
		return "DnsFailed"
	case SmtpTransient:
		return "SmtpTransient"
	case SmtpPermanent:
		return "SmtpPermanent"
	case QueueFull:
		return "QueueFull"
	case AuthRejected:
		return "AuthRejected"
	case Timeout:
		return "Timeout"
	case HardwareFault:
		return "HardwareFault"
	default:
		return "Unknown"
	}
}

// Error pairs a Kind with a wrapped cause and, for SMTP kinds, the response
// code observed on the wire.
type Error struct {
	Kind     Kind
	SMTPCode int
	cause    error
}

func (e *Error) Error() string {
	if e.cause == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.cause.Error()
}

func (e *Error) Unwrap() error { return e.cause }

// New wraps err under the given kind. A nil err still produces a non-nil
// *Error carrying only the kind, useful for sentinel comparisons.
func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, cause: err}
}

// Wrapf wraps err with an additional message under the given kind, matching
// the errors.Wrapf call sites used throughout the storage layer.
func Wrapf(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, cause: errors.Wrapf(err, format, args...)}
}

// SMTP builds a SmtpTransient or SmtpPermanent error from an observed SMTP
// response code, following the 4xx/5xx convention of RFC 5321: 5xx is
// permanent, everything else retryable.
func SMTP(code int, err error) *Error {
	kind := SmtpTransient
	if code >= 500 {
		kind = SmtpPermanent
	}
	return &Error{Kind: kind, SMTPCode: code, cause: err}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, or Unknown if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// HTTPStatus maps a Kind to the status code spec.md §7 prescribes for
// user-visible HTTP responses.
func HTTPStatus(kind Kind) int {
	switch kind {
	case ConfigInvalid, QueueFull:
		return 400
	case AuthRejected:
		return 401
	default:
		return 500
	}
}
