package observer

import (
	"context"
	"time"

	avicenna "github.com/avicenna-ai/avicenna"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ObservedIndex wraps an avicenna.VectorIndex with OTEL instrumentation.
// Search is the hot path and carries the full set of metrics; EnsureCollection
// and Upsert only get spans.
type ObservedIndex struct {
	inner avicenna.VectorIndex
	inst  *Instruments
}

var _ avicenna.VectorIndex = (*ObservedIndex)(nil)

// WrapIndex returns an instrumented vector index.
func WrapIndex(inner avicenna.VectorIndex, inst *Instruments) *ObservedIndex {
	return &ObservedIndex{inner: inner, inst: inst}
}

func (o *ObservedIndex) EnsureCollection(ctx context.Context, name string, dimension int) error {
	ctx, span := o.inst.Tracer.Start(ctx, "index.ensure_collection", trace.WithAttributes(
		AttrCollection.String(name),
		AttrEmbedDimensions.Int(dimension),
	))
	defer span.End()

	err := o.inner.EnsureCollection(ctx, name, dimension)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (o *ObservedIndex) Upsert(ctx context.Context, collection string, points []avicenna.Point) error {
	ctx, span := o.inst.Tracer.Start(ctx, "index.upsert", trace.WithAttributes(
		AttrCollection.String(collection),
		AttrPointCount.Int(len(points)),
	))
	defer span.End()

	err := o.inner.Upsert(ctx, collection, points)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (o *ObservedIndex) Search(ctx context.Context, collection string, vector []float32, tenantID string, limit int) ([]avicenna.SearchResult, error) {
	ctx, span := o.inst.Tracer.Start(ctx, "index.search", trace.WithAttributes(
		AttrCollection.String(collection),
		AttrTenantID.String(tenantID),
	))
	defer span.End()
	start := time.Now()

	results, err := o.inner.Search(ctx, collection, vector, tenantID, limit)

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(AttrResultCount.Int(len(results)))

	o.inst.SearchRequests.Add(ctx, 1, metric.WithAttributes(
		AttrCollection.String(collection),
		attribute.String("status", status),
	))
	o.inst.SearchDuration.Record(ctx, durationMs, metric.WithAttributes(
		AttrCollection.String(collection),
	))

	return results, err
}
