package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Strob0t/agentrouter/internal/domain"
	"github.com/Strob0t/agentrouter/internal/domain/event"
	"github.com/Strob0t/agentrouter/internal/domain/review"
	"github.com/Strob0t/agentrouter/internal/port/broadcast"
	"github.com/Strob0t/agentrouter/internal/port/database"
)

// maxUpdateRetries bounds reload-and-retry rounds when a concurrent writer
// moves a review underneath UpdateStatus.
const maxUpdateRetries = 3

// ReviewService manages the human-review queue.
type ReviewService struct {
	store database.ReviewStore
	hub   broadcast.Broadcaster
	now   func() time.Time
}

// NewReviewService creates a ReviewService.
func NewReviewService(store database.ReviewStore, hub broadcast.Broadcaster) *ReviewService {
	if hub == nil {
		hub = broadcast.Nop{}
	}
	return &ReviewService{store: store, hub: hub, now: time.Now}
}

// Create inserts a pending review for an output.
func (s *ReviewService) Create(ctx context.Context, req *review.CreateRequest) (*review.Record, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	r, err := s.store.CreateReview(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create review: %w", err)
	}
	slog.InfoContext(ctx, "review created", "review_id", r.ID, "output_id", r.OutputID)
	s.hub.BroadcastEvent(ctx, string(event.TypeReviewCreated), r)
	return r, nil
}

// Get returns a review by ID.
func (s *ReviewService) Get(ctx context.Context, id string) (*review.Record, error) {
	return s.store.GetReview(ctx, id)
}

// List returns reviews, newest first.
func (s *ReviewService) List(ctx context.Context, f review.Filter) ([]review.Record, error) {
	if err := f.Normalize(); err != nil {
		return nil, err
	}
	return s.store.ListReviews(ctx, f)
}

// UpdateStatus moves a review to req.Status through the transition table.
// Repeating the current status is a no-op that returns the unchanged record.
func (s *ReviewService) UpdateStatus(ctx context.Context, req *review.UpdateRequest) (*review.Record, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	for range maxUpdateRetries {
		r, err := s.store.GetReview(ctx, req.ID)
		if err != nil {
			return nil, err
		}
		prev := r.Status

		changed, err := r.Transition(req, s.now())
		if err != nil {
			return nil, err
		}
		if !changed {
			return r, nil
		}

		err = s.store.UpdateReview(ctx, r, prev)
		if errors.Is(err, domain.ErrConflict) {
			slog.DebugContext(ctx, "review changed concurrently, retrying", "review_id", req.ID)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("update review %s: %w", req.ID, err)
		}

		slog.InfoContext(ctx, "review status changed", "review_id", r.ID, "from", prev, "to", r.Status)
		s.hub.BroadcastEvent(ctx, string(event.TypeReviewStatusChanged), r)
		return r, nil
	}
	return nil, fmt.Errorf("update review %s: %w", req.ID, domain.ErrConflict)
}

// Approve moves a review to approved.
func (s *ReviewService) Approve(ctx context.Context, id string, reviewerID, notes *string) (*review.Record, error) {
	return s.UpdateStatus(ctx, &review.UpdateRequest{ID: id, Status: review.StatusApproved, ReviewerID: reviewerID, Notes: notes})
}

// Reject moves a review to rejected.
func (s *ReviewService) Reject(ctx context.Context, id string, reviewerID, notes *string) (*review.Record, error) {
	return s.UpdateStatus(ctx, &review.UpdateRequest{ID: id, Status: review.StatusRejected, ReviewerID: reviewerID, Notes: notes})
}

// Escalate moves a pending review to escalated.
func (s *ReviewService) Escalate(ctx context.Context, id string, reviewerID, notes *string) (*review.Record, error) {
	return s.UpdateStatus(ctx, &review.UpdateRequest{ID: id, Status: review.StatusEscalated, ReviewerID: reviewerID, Notes: notes})
}

// Claim assigns reviewerID to a pending, unclaimed review. It returns nil
// without error when the review is no longer claimable.
func (s *ReviewService) Claim(ctx context.Context, id, reviewerID string) (*review.Record, error) {
	if id == "" {
		return nil, review.ErrIDRequired
	}
	if reviewerID == "" {
		return nil, review.ErrReviewerRequired
	}

	r, err := s.store.ClaimReview(ctx, id, reviewerID)
	if err != nil {
		return nil, fmt.Errorf("claim review %s: %w", id, err)
	}
	if r == nil {
		// Distinguish a lost claim from a missing review.
		if _, err := s.store.GetReview(ctx, id); err != nil {
			return nil, err
		}
		slog.InfoContext(ctx, "review already claimed", "review_id", id, "reviewer_id", reviewerID)
		return nil, nil
	}
	slog.InfoContext(ctx, "review claimed", "review_id", id, "reviewer_id", reviewerID)
	return r, nil
}
