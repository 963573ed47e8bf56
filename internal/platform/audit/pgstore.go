package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore writes entries to the audit_log table created by
// migrations/001_audit_log.sql.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) Record(ctx context.Context, e Entry) error {
	Stamp(&e)

	const query = `
		INSERT INTO audit_log (
			id, recorded_at, user_id, role, source, method,
			resource, resource_id, action, outcome, status_code, error, request_id
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`

	_, err := s.pool.Exec(ctx, query,
		e.ID, e.Time, e.UserID, e.Role, e.Source, e.Method,
		e.Resource, e.ResourceID, e.Action, string(e.Outcome), e.StatusCode, e.Error, e.RequestID,
	)
	if err != nil {
		return fmt.Errorf("audit: insert entry: %w", err)
	}
	return nil
}

func (s *PGStore) List(ctx context.Context, f Filter) ([]Entry, error) {
	f.normalize()

	var where []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if f.Resource != "" {
		add("lower(resource) = lower($%d)", f.Resource)
	}
	if f.Outcome != "" {
		add("outcome = $%d", string(f.Outcome))
	}
	if !f.Since.IsZero() {
		add("recorded_at >= $%d", f.Since)
	}

	query := `SELECT id, recorded_at, user_id, role, source, method,
		resource, resource_id, action, outcome, status_code, error, request_id
		FROM audit_log`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, f.Limit)
	query += fmt.Sprintf(" ORDER BY recorded_at DESC LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: query entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var outcome string
		if err := rows.Scan(&e.ID, &e.Time, &e.UserID, &e.Role, &e.Source, &e.Method,
			&e.Resource, &e.ResourceID, &e.Action, &outcome, &e.StatusCode, &e.Error, &e.RequestID); err != nil {
			return nil, fmt.Errorf("audit: scan entry: %w", err)
		}
		e.Outcome = Outcome(outcome)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: iterate entries: %w", err)
	}
	return out, nil
}
