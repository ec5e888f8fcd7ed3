package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/agentrouter/internal/domain"
	"github.com/Strob0t/agentrouter/internal/domain/event"
	"github.com/Strob0t/agentrouter/internal/domain/output"
	"github.com/Strob0t/agentrouter/internal/port/database"
)

var _ database.Store = (*Store)(nil)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Outputs ---

const outputColumns = `id, prompt, executor_label, output, confidence, created_at`

func (s *Store) CreateOutput(ctx context.Context, req *output.CreateRequest) (*output.AIOutput, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO ai_outputs (prompt, executor_label, output, confidence)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+outputColumns,
		req.Prompt, req.ExecutorLabel, jsonOrNull(req.Output), req.Confidence)

	o, err := scanOutput(row)
	if err != nil {
		return nil, fmt.Errorf("create output: %w", err)
	}
	return &o, nil
}

func (s *Store) GetOutput(ctx context.Context, id string) (*output.AIOutput, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+outputColumns+` FROM ai_outputs WHERE id = $1`, id)

	o, err := scanOutput(row)
	if err != nil {
		return nil, notFoundWrap(err, "get output %s", id)
	}
	return &o, nil
}

// SetOutputConfidence writes the confidence only while it is still NULL, so
// a single scoring pass wins.
func (s *Store) SetOutputConfidence(ctx context.Context, id string, confidence float64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE ai_outputs SET confidence = $2 WHERE id = $1 AND confidence IS NULL`,
		id, confidence)
	if err != nil {
		return notFoundWrap(err, "set output confidence %s", id)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM ai_outputs WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("set output confidence %s: %w", id, err)
	}
	if !exists {
		return fmt.Errorf("set output confidence %s: %w", id, domain.ErrNotFound)
	}
	return fmt.Errorf("set output confidence %s: already scored: %w", id, domain.ErrConflict)
}

func scanOutput(row scannable) (output.AIOutput, error) {
	var o output.AIOutput
	var raw []byte
	err := row.Scan(&o.ID, &o.Prompt, &o.ExecutorLabel, &raw, &o.Confidence, &o.CreatedAt)
	o.Output = raw
	return o, err
}

// --- Audit ---

func (s *Store) AppendAudit(ctx context.Context, ev *event.Event) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO audit_log (id, type, payload, request_id, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		ev.ID, string(ev.Type), jsonOrNull(ev.Payload), ev.RequestID, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("append audit %s: %w", ev.Type, err)
	}
	return nil
}
