package avicenna

import (
	"context"
	"fmt"
	"math"
	"sync"
)

// PoolEmbedder wraps an EmbeddingProvider with a bounded worker pool and
// unit-length normalization. Embedding inference must not monopolize the
// request path: at most workers calls run concurrently, and callers waiting
// for a slot honor context cancellation. Every returned vector is
// L2-normalized, so dot product equals cosine similarity downstream.
type PoolEmbedder struct {
	inner EmbeddingProvider
	sem   chan struct{}

	// warmup runs once before the first embedding call, guarded so
	// concurrent first calls do not double-initialize.
	warmup func(ctx context.Context) error
	mu     sync.Mutex
	warmed bool
}

var _ EmbeddingProvider = (*PoolEmbedder)(nil)

// PoolOption configures a PoolEmbedder.
type PoolOption func(*PoolEmbedder)

// WithWorkers sets the maximum number of concurrent embedding calls.
// Default is 2.
func WithWorkers(n int) PoolOption {
	return func(p *PoolEmbedder) {
		if n > 0 {
			p.sem = make(chan struct{}, n)
		}
	}
}

// WithWarmup sets a one-time initialization hook (e.g. a probe request that
// loads the remote model). It runs before the first embedding call; a
// failure is returned to that caller and retried on the next call.
func WithWarmup(fn func(ctx context.Context) error) PoolOption {
	return func(p *PoolEmbedder) { p.warmup = fn }
}

// NewPoolEmbedder wraps inner with bounded concurrency and normalization.
func NewPoolEmbedder(inner EmbeddingProvider, opts ...PoolOption) *PoolEmbedder {
	p := &PoolEmbedder{
		inner: inner,
		sem:   make(chan struct{}, 2),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Name returns the wrapped provider's name.
func (p *PoolEmbedder) Name() string { return p.inner.Name() }

// Dimensions returns the wrapped provider's vector size.
func (p *PoolEmbedder) Dimensions() int { return p.inner.Dimensions() }

// Embed acquires a worker slot, delegates to the wrapped provider, and
// normalizes the result. Embed(nil) returns an empty slice without calling
// the provider. Failures are all-or-nothing and surface as *ErrDependency.
func (p *PoolEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	if err := p.ensureWarm(ctx); err != nil {
		return nil, &ErrDependency{Service: "embedding", Err: err}
	}

	select {
	case p.sem <- struct{}{}:
		defer func() { <-p.sem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	vecs, err := p.inner.Embed(ctx, texts)
	if err != nil {
		return nil, &ErrDependency{Service: "embedding", Err: err}
	}
	if len(vecs) != len(texts) {
		return nil, &ErrDependency{
			Service: "embedding",
			Err:     fmt.Errorf("got %d vectors for %d texts", len(vecs), len(texts)),
		}
	}
	for _, v := range vecs {
		NormalizeVector(v)
	}
	return vecs, nil
}

// ensureWarm runs the warmup hook exactly once across concurrent callers.
func (p *PoolEmbedder) ensureWarm(ctx context.Context) error {
	if p.warmup == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.warmed {
		return nil
	}
	if err := p.warmup(ctx); err != nil {
		return err
	}
	p.warmed = true
	return nil
}

// NormalizeVector scales v to unit L2 length in place. Zero vectors are
// left unchanged.
func NormalizeVector(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
}
