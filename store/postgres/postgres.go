// Package postgres implements avicenna.InteractionStore using PostgreSQL.
//
// The Store accepts an externally-owned *pgxpool.Pool via constructor
// injection. The caller creates and closes the pool.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	avicenna "github.com/avicenna-ai/avicenna"
)

// Store implements avicenna.InteractionStore backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ avicenna.InteractionStore = (*Store)(nil)

// New creates a Store using an existing pgxpool.Pool.
// The caller owns the pool and is responsible for closing it.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Init creates the tables and indexes if they do not exist.
// Safe to call multiple times.
func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS interactions (
			id               TEXT PRIMARY KEY,
			case_id          TEXT NOT NULL,
			tenant_id        TEXT NOT NULL,
			user_id          TEXT NOT NULL,
			request_payload  JSONB NOT NULL,
			response_payload JSONB NOT NULL,
			model            TEXT NOT NULL DEFAULT '',
			latency_ms       BIGINT NOT NULL DEFAULT 0,
			created_at       BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS interactions_scope_idx
			ON interactions (tenant_id, user_id, case_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS settings (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: init schema: %w", err)
		}
	}
	return nil
}

// Close is a no-op; the pool is owned by the caller.
func (s *Store) Close() error { return nil }

// AppendInteraction stores one interaction row.
func (s *Store) AppendInteraction(ctx context.Context, it avicenna.Interaction) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO interactions
			(id, case_id, tenant_id, user_id, request_payload, response_payload, model, latency_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		it.ID, it.CaseID, it.TenantID, it.UserID,
		string(it.RequestPayload), string(it.ResponsePayload),
		it.Model, it.LatencyMS, it.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: append interaction: %w", err)
	}
	return nil
}

// ListInteractions returns all interactions for the tenant+user+case scope,
// oldest first. Ties on created_at break on id, which is time-ordered.
func (s *Store) ListInteractions(ctx context.Context, tenantID, userID, caseID string) ([]avicenna.Interaction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, case_id, tenant_id, user_id, request_payload, response_payload, model, latency_ms, created_at
		FROM interactions
		WHERE tenant_id = $1 AND user_id = $2 AND case_id = $3
		ORDER BY created_at ASC, id ASC`, tenantID, userID, caseID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list interactions: %w", err)
	}
	defer rows.Close()

	var out []avicenna.Interaction
	for rows.Next() {
		var it avicenna.Interaction
		var req, resp []byte
		if err := rows.Scan(&it.ID, &it.CaseID, &it.TenantID, &it.UserID,
			&req, &resp, &it.Model, &it.LatencyMS, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan interaction: %w", err)
		}
		it.RequestPayload = req
		it.ResponsePayload = resp
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate interactions: %w", err)
	}
	return out, nil
}

// LatestCaseID returns the case ID of the most recent interaction for the
// tenant+user scope, or "" when the user has no interactions yet.
func (s *Store) LatestCaseID(ctx context.Context, tenantID, userID string) (string, error) {
	var caseID string
	err := s.pool.QueryRow(ctx, `
		SELECT case_id FROM interactions
		WHERE tenant_id = $1 AND user_id = $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, tenantID, userID).Scan(&caseID)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("postgres: latest case: %w", err)
	}
	return caseID, nil
}

// GetSetting returns the stored value for key, or "" when unset.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("postgres: get setting: %w", err)
	}
	return value, nil
}

// SetSetting stores or replaces the value for key.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, key, value)
	if err != nil {
		return fmt.Errorf("postgres: set setting: %w", err)
	}
	return nil
}
