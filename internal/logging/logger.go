// Package logging provides the structured logger used across the oracle.
package logging

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

type contextKey string

const cycleIDKey contextKey = "cycle_id"

// Logger wraps a logrus logger with a fixed service field.
type Logger struct {
	*logrus.Logger
	service string
}

// Config holds logger configuration.
type Config struct {
	Service string
	Level   string // debug, info, warn, error
	Format  string // text or json
	Output  io.Writer
}

// New creates a new logger.
func New(cfg Config) *Logger {
	l := logrus.New()

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}
	l.SetOutput(output)

	level, err := logrus.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if strings.EqualFold(cfg.Format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	service := cfg.Service
	if service == "" {
		service = "oracle"
	}

	return &Logger{Logger: l, service: service}
}

// NewDefault creates an info-level text logger for the given service.
func NewDefault(service string) *Logger {
	return New(Config{Service: service})
}

// NewDiscard creates a logger that drops everything. Intended for tests.
func NewDiscard() *Logger {
	return New(Config{Service: "test", Output: io.Discard})
}

// WithContext returns an entry carrying the service name and any cycle id
// stored in ctx.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("service", l.service)
	if ctx == nil {
		return entry
	}
	entry = entry.WithContext(ctx)
	if id := CycleID(ctx); id != "" {
		entry = entry.WithField(string(cycleIDKey), id)
	}
	return entry
}

// WithFields returns an entry carrying the service name and fields.
func (l *Logger) WithFields(fields map[string]any) *logrus.Entry {
	return l.Logger.WithField("service", l.service).WithFields(fields)
}

// WithError returns an entry carrying the service name and err.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithField("service", l.service).WithError(err)
}

// =============================================================================
// Context helpers
// =============================================================================

// WithCycleID returns a copy of ctx carrying the relay cycle id.
func WithCycleID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, cycleIDKey, id)
}

// CycleID returns the relay cycle id stored in ctx, if any.
func CycleID(ctx context.Context) string {
	id, _ := ctx.Value(cycleIDKey).(string)
	return id
}
