package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/lp-tools/lpmigrate/internal/storage"
	"github.com/lp-tools/lpmigrate/internal/types"
)

const storageScopeName = "github.com/lp-tools/lpmigrate/storage"

// InstrumentedStore wraps storage.Store with OTel tracing and metrics.
type InstrumentedStore struct {
	inner  storage.Store
	tracer trace.Tracer
	ops    metric.Int64Counter
	dur    metric.Float64Histogram
	errs   metric.Int64Counter
	rows   metric.Int64Counter
}

var _ storage.Store = (*InstrumentedStore)(nil)

// WrapStore returns s decorated with OTel instrumentation.
// When telemetry is disabled, s is returned as-is with zero overhead.
// A store that supports Commit keeps supporting it.
func WrapStore(s storage.Store, enabled bool) storage.Store {
	if !enabled {
		return s
	}
	m := Meter(storageScopeName)
	ops, _ := m.Int64Counter("lpmigrate.cache.operations",
		metric.WithDescription("Total cache operations executed"),
	)
	dur, _ := m.Float64Histogram("lpmigrate.cache.operation.duration",
		metric.WithDescription("Cache operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("lpmigrate.cache.errors",
		metric.WithDescription("Total cache operation errors"),
	)
	rows, _ := m.Int64Counter("lpmigrate.cache.rows.written",
		metric.WithDescription("Cache rows upserted"),
	)
	is := &InstrumentedStore{
		inner:  s,
		tracer: Tracer(storageScopeName),
		ops:    ops,
		dur:    dur,
		errs:   errs,
		rows:   rows,
	}
	if c, ok := s.(storage.Committer); ok {
		return &instrumentedCommitter{InstrumentedStore: is, committer: c}
	}
	return is
}

// op starts a span and records a metric for the named cache operation.
func (s *InstrumentedStore) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	all := append([]attribute.KeyValue{attribute.String("db.operation", name)}, attrs...)
	ctx, span := s.tracer.Start(ctx, "cache."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	s.ops.Add(ctx, 1, metric.WithAttributes(attribute.String("db.operation", name)))
	return ctx, span, time.Now()
}

// done ends the span, records duration and optional error.
func (s *InstrumentedStore) done(ctx context.Context, span trace.Span, name string, start time.Time, err error) {
	opAttr := metric.WithAttributes(attribute.String("db.operation", name))
	s.dur.Record(ctx, float64(time.Since(start).Milliseconds()), opAttr)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.errs.Add(ctx, 1, opAttr)
	}
	span.End()
}

func (s *InstrumentedStore) Rows(ctx context.Context, project string, filter types.Filter) ([]types.CacheRow, error) {
	ctx, span, t := s.op(ctx, "Rows",
		attribute.String("lp.project", project),
		attribute.String("lp.filter", filter.String()),
	)
	rows, err := s.inner.Rows(ctx, project, filter)
	if err == nil {
		span.SetAttributes(attribute.Int("db.result.count", len(rows)))
	}
	s.done(ctx, span, "Rows", t, err)
	return rows, err
}

func (s *InstrumentedStore) Upsert(ctx context.Context, rows []types.CacheRow) error {
	ctx, span, t := s.op(ctx, "Upsert", attribute.Int("db.row.count", len(rows)))
	err := s.inner.Upsert(ctx, rows)
	if err == nil {
		s.rows.Add(ctx, int64(len(rows)))
	}
	s.done(ctx, span, "Upsert", t, err)
	return err
}

func (s *InstrumentedStore) GetMeta(ctx context.Context, key string) (string, error) {
	ctx, span, t := s.op(ctx, "GetMeta", attribute.String("db.meta.key", key))
	v, err := s.inner.GetMeta(ctx, key)
	s.done(ctx, span, "GetMeta", t, err)
	return v, err
}

func (s *InstrumentedStore) SetMeta(ctx context.Context, key, value string) error {
	ctx, span, t := s.op(ctx, "SetMeta", attribute.String("db.meta.key", key))
	err := s.inner.SetMeta(ctx, key, value)
	s.done(ctx, span, "SetMeta", t, err)
	return err
}

func (s *InstrumentedStore) Close() error {
	return s.inner.Close()
}

type instrumentedCommitter struct {
	*InstrumentedStore
	committer storage.Committer
}

func (s *instrumentedCommitter) Commit(ctx context.Context, message string) error {
	ctx, span, t := s.op(ctx, "Commit")
	err := s.committer.Commit(ctx, message)
	s.done(ctx, span, "Commit", t, err)
	return err
}
