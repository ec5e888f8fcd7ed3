// Package audit defines the best-effort audit sink port.
package audit

import (
	"context"
	"errors"

	"github.com/Strob0t/agentrouter/internal/domain/event"
)

// Logger records audit events. Callers treat failures as non-fatal.
type Logger interface {
	Log(ctx context.Context, ev event.Event) error
}

// LoggerFunc adapts a function to Logger.
type LoggerFunc func(ctx context.Context, ev event.Event) error

// Log calls f.
func (f LoggerFunc) Log(ctx context.Context, ev event.Event) error { return f(ctx, ev) }

// Multi fans an event out to every sink and joins their errors.
type Multi []Logger

// Log writes ev to all sinks, continuing past failures.
func (m Multi) Log(ctx context.Context, ev event.Event) error {
	var errs []error
	for _, l := range m {
		if l == nil {
			continue
		}
		if err := l.Log(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Appender is the persistence side of an audit sink.
type Appender interface {
	AppendAudit(ctx context.Context, ev *event.Event) error
}

// FromStore adapts a store that appends audit rows to Logger.
func FromStore(s Appender) Logger {
	return LoggerFunc(func(ctx context.Context, ev event.Event) error {
		return s.AppendAudit(ctx, &ev)
	})
}
