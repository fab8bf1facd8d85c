// Package logger provides the structured logger shared by every component,
// backed by github.com/sirupsen/logrus with per-component fields.
package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the minimal interface every component depends on: the same
// Infof/Warnf/Errorf shape used throughout the scheduler and mail
// packages, so components can be wired without an adapter layer.
type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

var base = newBase()

func newBase() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.JSONFormatter{})
	if lvl, err := logrus.ParseLevel(os.Getenv("SENTINEL_LOG_LEVEL")); err == nil {
		l.SetLevel(lvl)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
	return l
}

// SetLevel overrides the process-wide log level, used by cmd/sentineld's
// --log-level flag.
func SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	base.SetLevel(lvl)
	return nil
}

type componentLogger struct {
	entry *logrus.Entry
}

// New returns a Logger scoped to the named component, e.g. "scheduler",
// "mail", "netctl".
func New(component string) Logger {
	return &componentLogger{entry: base.WithField("component", component)}
}

func (c *componentLogger) Infof(format string, args ...any)  { c.entry.Infof(format, args...) }
func (c *componentLogger) Warnf(format string, args ...any)  { c.entry.Warnf(format, args...) }
func (c *componentLogger) Errorf(format string, args ...any) { c.entry.Errorf(format, args...) }
