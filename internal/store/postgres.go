// Package store persists the board's transition audit trail in Postgres.
// Writes are best-effort; a slow or unavailable database never blocks a
// board operation.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"fulfillment-board/internal/models"
)

// Store wraps pgxpool for Postgres persistence.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a pooled connection to Postgres.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// AppendTransition records one transition attempt and its outcome
// (applied, confirmed, rolled_back, blocked).
func (s *Store) AppendTransition(ctx context.Context, a models.TransitionAudit) error {
	if s == nil {
		return errors.New("store not configured")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO transition_audit (order_id, from_status, to_status, outcome, detail, recorded_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`, a.OrderID, a.FromStatus, a.ToStatus, a.Outcome, a.Detail)
	return err
}

// History returns the most recent transitions for one order, newest first.
func (s *Store) History(ctx context.Context, orderID string, limit int) ([]models.TransitionAudit, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT order_id, from_status, to_status, outcome, detail, recorded_at
		FROM transition_audit
		WHERE order_id = $1
		ORDER BY recorded_at DESC
		LIMIT $2
	`, orderID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []models.TransitionAudit
	for rows.Next() {
		var a models.TransitionAudit
		var detail pgtype.Text
		if err := rows.Scan(&a.OrderID, &a.FromStatus, &a.ToStatus, &a.Outcome, &detail, &a.Recorded); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		if detail.Valid {
			a.Detail = detail.String
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
