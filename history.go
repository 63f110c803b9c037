package avicenna

import "context"

// InteractionStore persists request/response pairs and serves them back in
// creation order. The reconstruction engine only reads; handlers append one
// interaction after each LLM call.
type InteractionStore interface {
	// AppendInteraction stores one interaction. ID and CreatedAt are
	// assigned by the caller.
	AppendInteraction(ctx context.Context, it Interaction) error

	// ListInteractions returns all interactions for the tenant+user+case
	// scope, ordered by creation time ascending.
	ListInteractions(ctx context.Context, tenantID, userID, caseID string) ([]Interaction, error)

	// LatestCaseID returns the most recently used case ID for the
	// tenant+user scope, or "" when none exists.
	LatestCaseID(ctx context.Context, tenantID, userID string) (string, error)

	// --- Key-value settings ---
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error

	// --- Lifecycle ---
	Init(ctx context.Context) error
	Close() error
}
