package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Strob0t/agentrouter/internal/domain"
	"github.com/Strob0t/agentrouter/internal/domain/review"
)

const reviewColumns = `id, output_id, status, reviewer_id, notes, created_at, updated_at`

// CreateReview inserts a pending review. Referencing an unknown output
// returns domain.ErrNotFound.
func (s *Store) CreateReview(ctx context.Context, req *review.CreateRequest) (*review.Record, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO reviews (output_id, status, notes)
		 VALUES ($1, $2, $3)
		 RETURNING `+reviewColumns,
		req.OutputID, string(review.StatusPending), nullIfEmpty(req.Notes))

	r, err := scanReview(row)
	if err != nil {
		return nil, notFoundWrap(err, "create review for output %s", req.OutputID)
	}
	return &r, nil
}

// GetReview retrieves a review by ID.
func (s *Store) GetReview(ctx context.Context, id string) (*review.Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+reviewColumns+` FROM reviews WHERE id = $1`, id)

	r, err := scanReview(row)
	if err != nil {
		return nil, notFoundWrap(err, "get review %s", id)
	}
	return &r, nil
}

// ListReviews returns reviews newest first, optionally filtered by status.
func (s *Store) ListReviews(ctx context.Context, f review.Filter) ([]review.Record, error) {
	if err := f.Normalize(); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+reviewColumns+` FROM reviews
		 WHERE ($1 = '' OR status = $1)
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`, string(f.Status), f.Limit)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	result := []review.Record{}
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// UpdateReview writes status, reviewer, notes and updated_at only if the
// stored status still equals prev.
func (s *Store) UpdateReview(ctx context.Context, r *review.Record, prev review.Status) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE reviews SET status = $2, reviewer_id = $3, notes = $4, updated_at = $5
		 WHERE id = $1 AND status = $6`,
		r.ID, string(r.Status), r.ReviewerID, r.Notes, r.UpdatedAt, string(prev))
	if err != nil {
		return notFoundWrap(err, "update review %s", r.ID)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	if _, err := s.GetReview(ctx, r.ID); err != nil {
		return err
	}
	return fmt.Errorf("update review %s: status is no longer %s: %w", r.ID, prev, domain.ErrConflict)
}

// ClaimReview assigns reviewerID to a pending, unclaimed review in a single
// conditional update. Returns nil, nil when no row qualified.
func (s *Store) ClaimReview(ctx context.Context, id, reviewerID string) (*review.Record, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE reviews SET reviewer_id = $2, updated_at = now()
		 WHERE id = $1 AND status = $3 AND (reviewer_id IS NULL OR reviewer_id = '')
		 RETURNING `+reviewColumns,
		id, reviewerID, string(review.StatusPending))

	r, err := scanReview(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim review %s: %w", id, err)
	}
	return &r, nil
}

func scanReview(row scannable) (review.Record, error) {
	var r review.Record
	var status string
	err := row.Scan(&r.ID, &r.OutputID, &status, &r.ReviewerID, &r.Notes, &r.CreatedAt, &r.UpdatedAt)
	r.Status = review.Status(status)
	return r, err
}
