// Package review defines the human-review record for captured outputs and
// the guarded state machine that governs it.
package review

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle state of a review record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusEscalated Status = "escalated"
)

var (
	ErrInvalidTransition = errors.New("invalid review status transition")
	ErrInvalidStatus     = errors.New("invalid review status")
	ErrOutputIDRequired  = errors.New("output_id is required")
	ErrIDRequired        = errors.New("review id is required")
	ErrReviewerRequired  = errors.New("reviewer_id is required")
)

// transitions is the complete set of allowed status changes. Terminal states
// have no entry.
var transitions = map[Status][]Status{
	StatusPending:   {StatusApproved, StatusRejected, StatusEscalated},
	StatusEscalated: {StatusApproved, StatusRejected},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusEscalated:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// CanTransition reports whether from → to is allowed.
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Record is a review of one captured output.
type Record struct {
	ID         string    `json:"id"`
	OutputID   string    `json:"output_id"`
	Status     Status    `json:"status"`
	ReviewerID *string   `json:"reviewer_id"`
	Notes      *string   `json:"notes"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Claimed reports whether a reviewer has been assigned.
func (r *Record) Claimed() bool {
	return r.ReviewerID != nil && *r.ReviewerID != ""
}

// Transition applies an update to r in place. A same-status update is a
// no-op and returns changed=false. Reviewer and notes are merged only when
// provided.
func (r *Record) Transition(req *UpdateRequest, now time.Time) (changed bool, err error) {
	if req.Status == r.Status {
		return false, nil
	}
	if !CanTransition(r.Status, req.Status) {
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, req.Status)
	}
	r.Status = req.Status
	if req.ReviewerID != nil {
		r.ReviewerID = req.ReviewerID
	}
	if req.Notes != nil {
		r.Notes = req.Notes
	}
	r.UpdatedAt = now
	return true, nil
}

// CreateRequest holds the fields for submitting a review.
type CreateRequest struct {
	OutputID string  `json:"output_id"`
	Notes    *string `json:"notes,omitempty"`
}

// Validate checks the create request.
func (r *CreateRequest) Validate() error {
	if strings.TrimSpace(r.OutputID) == "" {
		return ErrOutputIDRequired
	}
	return nil
}

// UpdateRequest holds a requested status change.
type UpdateRequest struct {
	ID         string  `json:"id"`
	Status     Status  `json:"status"`
	ReviewerID *string `json:"reviewer_id,omitempty"`
	Notes      *string `json:"notes,omitempty"`
}

// Validate checks the update request.
func (r *UpdateRequest) Validate() error {
	if r.ID == "" {
		return ErrIDRequired
	}
	if !r.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, r.Status)
	}
	return nil
}

// Filter narrows review listings.
type Filter struct {
	Status Status
	Limit  int
}

// DefaultListLimit caps listings when no limit is given.
const DefaultListLimit = 100

// Normalize applies defaults and validates the status filter.
func (f *Filter) Normalize() error {
	if f.Status != "" && !f.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, f.Status)
	}
	if f.Limit <= 0 || f.Limit > 1000 {
		f.Limit = DefaultListLimit
	}
	return nil
}
