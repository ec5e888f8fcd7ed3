package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
)

// hijackRecorder is a recorder that can be hijacked, like a real HTTP/1 writer.
type hijackRecorder struct {
	*httptest.ResponseRecorder
	hijacked bool
}

func (h *hijackRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h.hijacked = true
	return nil, nil, nil
}

func TestLogger_KeepsHijackAndFlush(t *testing.T) {
	inner := &hijackRecorder{ResponseRecorder: httptest.NewRecorder()}
	h := Logger(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		f, ok := w.(http.Flusher)
		if !ok {
			t.Fatal("wrapped writer lost http.Flusher")
		}
		f.Flush()
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Fatal("wrapped writer lost http.Hijacker")
		}
		_, _, _ = hj.Hijack()
	}))

	h.ServeHTTP(inner, httptest.NewRequest(http.MethodGet, "/ws", http.NoBody))

	if !inner.Flushed {
		t.Error("flush did not reach the underlying writer")
	}
	if !inner.hijacked {
		t.Error("hijack did not reach the underlying writer")
	}
}

func TestLogger_RecordsStatusAndLevel(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	h := Logger(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream"))
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/agents", http.NoBody).WithContext(context.Background())
	h.ServeHTTP(httptest.NewRecorder(), req)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log record: %v (%q)", err, buf.String())
	}
	if rec["level"] != "WARN" {
		t.Errorf("level = %v, want WARN", rec["level"])
	}
	if rec["status"] != float64(http.StatusBadGateway) {
		t.Errorf("status = %v, want %d", rec["status"], http.StatusBadGateway)
	}
	if rec["bytes"] != float64(len("upstream")) {
		t.Errorf("bytes = %v, want %d", rec["bytes"], len("upstream"))
	}
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders(http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	for _, kv := range securityHeaders {
		if got := rec.Header().Get(kv[0]); got != kv[1] {
			t.Errorf("%s = %q, want %q", kv[0], got, kv[1])
		}
	}
}

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		origin     string
		method     string
		wantStatus int
		wantOrigin string
		wantCreds  string
	}{
		{"preflight", "http://localhost:3000", http.MethodOptions, http.StatusNoContent, "http://localhost:3000", "true"},
		{"simple request", "http://localhost:3000", http.MethodGet, http.StatusOK, "http://localhost:3000", "true"},
		{"wildcard without credentials", "*", http.MethodGet, http.StatusOK, "*", ""},
		{"disabled", "", http.MethodGet, http.StatusOK, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			CORS(tt.origin)(next).ServeHTTP(rec, httptest.NewRequest(tt.method, "/api/v1/agents", http.NoBody))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("allow origin = %q, want %q", got, tt.wantOrigin)
			}
			if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != tt.wantCreds {
				t.Errorf("allow credentials = %q, want %q", got, tt.wantCreds)
			}
		})
	}
}
