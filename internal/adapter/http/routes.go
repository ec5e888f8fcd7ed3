package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RouteOptions holds the optional pieces mounted next to the REST API.
type RouteOptions struct {
	// DispatchLimit wraps POST /api/v1/dispatch when set.
	DispatchLimit func(http.Handler) http.Handler
	// LiveFeed serves GET /ws when set.
	LiveFeed http.HandlerFunc
	// MCP is mounted at /mcp when set.
	MCP http.Handler
	// Health serves GET /health when set.
	Health http.HandlerFunc
}

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers, opts RouteOptions) {
	if opts.Health != nil {
		r.Get("/health", opts.Health)
	}
	if opts.LiveFeed != nil {
		r.Get("/ws", opts.LiveFeed)
	}
	if opts.MCP != nil {
		r.Handle("/mcp", opts.MCP)
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Version
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Dispatch
		if opts.DispatchLimit != nil {
			r.With(opts.DispatchLimit).Post("/dispatch", h.Dispatch)
		} else {
			r.Post("/dispatch", h.Dispatch)
		}

		// Agents
		r.Get("/agents", h.ListAgents)
		r.Get("/agents/health", h.AgentHealth)
		r.Get("/agents/{id}", h.GetAgent)

		// Outputs
		r.Get("/outputs/{id}", h.GetOutput)

		// Reviews
		r.Get("/reviews", h.ListReviews)
		r.Post("/reviews", h.CreateReview)
		r.Get("/reviews/{id}", h.GetReview)
		r.Patch("/reviews/{id}", h.UpdateReview)
		r.Post("/reviews/{id}/approve", h.ApproveReview)
		r.Post("/reviews/{id}/reject", h.RejectReview)
		r.Post("/reviews/{id}/escalate", h.EscalateReview)
		r.Post("/reviews/{id}/claim", h.ClaimReview)
	})
}
