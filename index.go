package avicenna

import "context"

// VectorIndex abstracts a collection-oriented vector store with cosine
// distance and tenant-scoped search. Implementations must apply the tenant
// filter inside the store (server-side where the backend supports it), not
// by post-filtering a mixed result set.
type VectorIndex interface {
	// EnsureCollection creates a cosine-distance collection of the given
	// dimension if absent. Idempotent; must be called (or verified) before
	// first use of a collection.
	EnsureCollection(ctx context.Context, name string, dimension int) error

	// Upsert writes points into the collection, overwriting any existing
	// point with the same ID. No-op on an empty slice.
	Upsert(ctx context.Context, collection string, points []Point) error

	// Search returns up to limit results ranked by similarity, filtered to
	// the given tenant. An empty result is not an error; connectivity and
	// availability failures surface as *ErrDependency.
	Search(ctx context.Context, collection string, vector []float32, tenantID string, limit int) ([]SearchResult, error)
}

// VerifyTenant checks retrieved payloads against the requesting tenant.
// Adapters call it before returning results; a mismatch means the
// store-side filter failed, and the whole result set is discarded rather
// than ever returning cross-tenant data.
func VerifyTenant(tenantID string, payloads ...Payload) error {
	for _, p := range payloads {
		if p.TenantID != tenantID {
			return ErrTenantIsolation
		}
	}
	return nil
}
