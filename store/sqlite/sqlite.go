// Package sqlite implements avicenna.InteractionStore backed by a local
// SQLite file. Request and response payloads are stored as raw JSON text,
// so the reconstruction engine sees exactly what the handler persisted.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	avicenna "github.com/avicenna-ai/avicenna"
	_ "modernc.org/sqlite"
)

// Store implements avicenna.InteractionStore on a SQLite database.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ avicenna.InteractionStore = (*Store)(nil)

// Option configures a SQLite Store.
type Option func(*Store)

// WithLogger sets a structured logger for the store. Default: discard.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New creates a Store using a local SQLite file at dbPath.
// It opens a pool with SetMaxOpenConns(1) so all goroutines serialize
// through one connection, avoiding SQLITE_BUSY from concurrent writers.
func New(dbPath string, opts ...Option) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("sqlite: interaction store opened", "path", dbPath)
	return s
}

// Init creates the schema if it does not exist.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS interactions (
			id               TEXT PRIMARY KEY,
			case_id          TEXT NOT NULL,
			tenant_id        TEXT NOT NULL,
			user_id          TEXT NOT NULL,
			request_payload  TEXT NOT NULL,
			response_payload TEXT NOT NULL,
			model            TEXT NOT NULL DEFAULT '',
			latency_ms       INTEGER NOT NULL DEFAULT 0,
			created_at       INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_interactions_scope
			ON interactions (tenant_id, user_id, case_id, created_at);
		CREATE TABLE IF NOT EXISTS settings (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("sqlite: init schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// AppendInteraction stores one interaction row.
func (s *Store) AppendInteraction(ctx context.Context, it avicenna.Interaction) error {
	start := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO interactions
			(id, case_id, tenant_id, user_id, request_payload, response_payload, model, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		it.ID, it.CaseID, it.TenantID, it.UserID,
		string(it.RequestPayload), string(it.ResponsePayload),
		it.Model, it.LatencyMS, it.CreatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: append interaction: %w", err)
	}
	s.logger.Debug("sqlite: interaction appended",
		"interaction_id", it.ID, "case_id", it.CaseID, "duration", time.Since(start))
	return nil
}

// ListInteractions returns all interactions for the tenant+user+case scope,
// oldest first. Ties on created_at break on id, which is time-ordered.
func (s *Store) ListInteractions(ctx context.Context, tenantID, userID, caseID string) ([]avicenna.Interaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, case_id, tenant_id, user_id, request_payload, response_payload, model, latency_ms, created_at
		FROM interactions
		WHERE tenant_id = ? AND user_id = ? AND case_id = ?
		ORDER BY created_at ASC, id ASC`, tenantID, userID, caseID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list interactions: %w", err)
	}
	defer rows.Close()

	var out []avicenna.Interaction
	for rows.Next() {
		var it avicenna.Interaction
		var req, resp string
		if err := rows.Scan(&it.ID, &it.CaseID, &it.TenantID, &it.UserID,
			&req, &resp, &it.Model, &it.LatencyMS, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan interaction: %w", err)
		}
		it.RequestPayload = []byte(req)
		it.ResponsePayload = []byte(resp)
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate interactions: %w", err)
	}
	return out, nil
}

// LatestCaseID returns the case ID of the most recent interaction for the
// tenant+user scope, or "" when the user has no interactions yet.
func (s *Store) LatestCaseID(ctx context.Context, tenantID, userID string) (string, error) {
	var caseID string
	err := s.db.QueryRowContext(ctx, `
		SELECT case_id FROM interactions
		WHERE tenant_id = ? AND user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, tenantID, userID).Scan(&caseID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("sqlite: latest case: %w", err)
	}
	return caseID, nil
}

// GetSetting returns the stored value for key, or "" when unset.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("sqlite: get setting: %w", err)
	}
	return value, nil
}

// SetSetting stores or replaces the value for key.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("sqlite: set setting: %w", err)
	}
	return nil
}

var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
