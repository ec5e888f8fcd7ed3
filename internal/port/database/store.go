// Package database defines the database store port (interface).
package database

import (
	"context"

	"github.com/Strob0t/agentrouter/internal/domain/event"
	"github.com/Strob0t/agentrouter/internal/domain/output"
	"github.com/Strob0t/agentrouter/internal/domain/review"
)

// OutputStore persists captured AI outputs.
type OutputStore interface {
	CreateOutput(ctx context.Context, req *output.CreateRequest) (*output.AIOutput, error)
	GetOutput(ctx context.Context, id string) (*output.AIOutput, error)

	// SetOutputConfidence sets the confidence of an output that has none yet.
	// Returns domain.ErrConflict if a confidence is already stored and
	// domain.ErrNotFound if the output does not exist.
	SetOutputConfidence(ctx context.Context, id string, confidence float64) error
}

// ReviewStore persists review records.
type ReviewStore interface {
	CreateReview(ctx context.Context, req *review.CreateRequest) (*review.Record, error)
	GetReview(ctx context.Context, id string) (*review.Record, error)
	ListReviews(ctx context.Context, f review.Filter) ([]review.Record, error)

	// UpdateReview writes r only if the stored status still equals prev.
	// Returns domain.ErrConflict when the status moved underneath the caller.
	UpdateReview(ctx context.Context, r *review.Record, prev review.Status) error

	// ClaimReview assigns reviewerID if the record is pending and unclaimed.
	// Returns nil, nil when the claim lost.
	ClaimReview(ctx context.Context, id, reviewerID string) (*review.Record, error)
}

// AuditStore appends audit events.
type AuditStore interface {
	AppendAudit(ctx context.Context, ev *event.Event) error
}

// Store is the port interface for database operations.
type Store interface {
	OutputStore
	ReviewStore
	AuditStore
}
