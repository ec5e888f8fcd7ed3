package http

import (
	"context"
	"net/http"
	"time"
)

// healthTimeout bounds each dependency check.
const healthTimeout = 2 * time.Second

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

type healthStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// HealthHandler reports process health. Any failing check turns the response
// into 503 "degraded".
func HealthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := healthStatus{Status: "ok", Checks: make(map[string]string, len(checks))}
		code := http.StatusOK

		for name, check := range checks {
			ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
			err := check(ctx)
			cancel()
			if err != nil {
				status.Checks[name] = err.Error()
				status.Status = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			status.Checks[name] = "ok"
		}
		writeJSON(w, code, status)
	}
}
