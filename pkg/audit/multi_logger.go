package audit

import (
	"context"
)

// MultiLogger fans events out to several loggers. A failing destination
// never blocks the others; the first error is returned.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger creates a logger writing to every destination.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

// Log logs an audit event to all configured loggers
func (m *MultiLogger) Log(ctx context.Context, event *Event) error {
	var firstErr error
	for _, logger := range m.loggers {
		if err := logger.Log(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close closes all loggers, returning the first error.
func (m *MultiLogger) Close() error {
	var firstErr error
	for _, logger := range m.loggers {
		if err := logger.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
