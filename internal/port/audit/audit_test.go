package audit_test

import (
	"context"
	"errors"
	"testing"

	"github.com/Strob0t/agentrouter/internal/domain/event"
	"github.com/Strob0t/agentrouter/internal/port/audit"
)

func TestMulti_ContinuesPastFailures(t *testing.T) {
	errSink := errors.New("sink down")
	var calls int
	ok := audit.LoggerFunc(func(context.Context, event.Event) error {
		calls++
		return nil
	})
	bad := audit.LoggerFunc(func(context.Context, event.Event) error {
		calls++
		return errSink
	})

	m := audit.Multi{bad, nil, ok}
	err := m.Log(context.Background(), event.Event{Type: event.TypeReviewEscalated})
	if !errors.Is(err, errSink) {
		t.Fatalf("expected joined sink error, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected both sinks to be called, got %d", calls)
	}
}

type appender struct{ got []*event.Event }

func (a *appender) AppendAudit(_ context.Context, ev *event.Event) error {
	a.got = append(a.got, ev)
	return nil
}

func TestFromStore(t *testing.T) {
	a := &appender{}
	l := audit.FromStore(a)
	if err := l.Log(context.Background(), event.Event{ID: "e1", Type: event.TypeReviewEscalated}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(a.got) != 1 || a.got[0].ID != "e1" {
		t.Fatalf("expected event e1 to be appended, got %+v", a.got)
	}
}
