package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/lp-tools/lpmigrate/internal/tracker"
	"github.com/lp-tools/lpmigrate/internal/types"
)

const remoteScopeName = "github.com/lp-tools/lpmigrate/remote"

// InstrumentedRemote wraps tracker.Remote with OTel tracing and metrics.
// Every call gets a span and is counted in lpmigrate.remote.* metrics.
type InstrumentedRemote struct {
	inner  tracker.Remote
	tracer trace.Tracer
	calls  metric.Int64Counter
	dur    metric.Float64Histogram
	errs   metric.Int64Counter
}

var _ tracker.Remote = (*InstrumentedRemote)(nil)

// WrapRemote returns r decorated with instrumentation from the global
// providers. When telemetry is disabled, r is returned as-is.
func WrapRemote(r tracker.Remote, enabled bool) tracker.Remote {
	if !enabled {
		return r
	}
	return NewInstrumentedRemote(r, Tracer(remoteScopeName), Meter(remoteScopeName))
}

// NewInstrumentedRemote decorates r with the given tracer and meter.
func NewInstrumentedRemote(r tracker.Remote, tracer trace.Tracer, m metric.Meter) *InstrumentedRemote {
	calls, _ := m.Int64Counter("lpmigrate.remote.calls",
		metric.WithDescription("Total remote API calls"),
	)
	dur, _ := m.Float64Histogram("lpmigrate.remote.call.duration",
		metric.WithDescription("Remote API call duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("lpmigrate.remote.errors",
		metric.WithDescription("Total failed remote API calls"),
	)
	return &InstrumentedRemote{inner: r, tracer: tracer, calls: calls, dur: dur, errs: errs}
}

func (r *InstrumentedRemote) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	all := append([]attribute.KeyValue{attribute.String("lp.operation", name)}, attrs...)
	ctx, span := r.tracer.Start(ctx, "remote."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	r.calls.Add(ctx, 1, metric.WithAttributes(attribute.String("lp.operation", name)))
	return ctx, span, time.Now()
}

func (r *InstrumentedRemote) done(ctx context.Context, span trace.Span, name string, start time.Time, err error) {
	opAttr := metric.WithAttributes(attribute.String("lp.operation", name))
	r.dur.Record(ctx, float64(time.Since(start).Milliseconds()), opAttr)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.errs.Add(ctx, 1, opAttr)
	}
	span.End()
}

func (r *InstrumentedRemote) Project(ctx context.Context, name string) (*types.Project, error) {
	ctx, span, t := r.op(ctx, "Project", attribute.String("lp.project", name))
	v, err := r.inner.Project(ctx, name)
	r.done(ctx, span, "Project", t, err)
	return v, err
}

func (r *InstrumentedRemote) Milestone(ctx context.Context, project, name string) (*types.Milestone, error) {
	ctx, span, t := r.op(ctx, "Milestone",
		attribute.String("lp.project", project),
		attribute.String("lp.milestone", name),
	)
	v, err := r.inner.Milestone(ctx, project, name)
	r.done(ctx, span, "Milestone", t, err)
	return v, err
}

func (r *InstrumentedRemote) Series(ctx context.Context, project, name string) (*types.Series, error) {
	ctx, span, t := r.op(ctx, "Series",
		attribute.String("lp.project", project),
		attribute.String("lp.series", name),
	)
	v, err := r.inner.Series(ctx, project, name)
	r.done(ctx, span, "Series", t, err)
	return v, err
}

func (r *InstrumentedRemote) Issue(ctx context.Context, id int) (*types.Issue, error) {
	ctx, span, t := r.op(ctx, "Issue", attribute.Int("lp.issue.id", id))
	v, err := r.inner.Issue(ctx, id)
	if err == nil {
		span.SetAttributes(attribute.Int("lp.entry.count", len(v.Entries)))
	}
	r.done(ctx, span, "Issue", t, err)
	return v, err
}

func (r *InstrumentedRemote) AddEntry(ctx context.Context, issue *types.Issue, target string) (*types.Entry, error) {
	ctx, span, t := r.op(ctx, "AddEntry",
		attribute.Int("lp.issue.id", issue.ID),
		attribute.String("lp.target", target),
	)
	v, err := r.inner.AddEntry(ctx, issue, target)
	r.done(ctx, span, "AddEntry", t, err)
	return v, err
}

func (r *InstrumentedRemote) SaveEntry(ctx context.Context, entry *types.Entry) error {
	ctx, span, t := r.op(ctx, "SaveEntry",
		attribute.Int("lp.issue.id", entry.IssueID),
		attribute.String("lp.target", entry.Target),
	)
	err := r.inner.SaveEntry(ctx, entry)
	r.done(ctx, span, "SaveEntry", t, err)
	return err
}

func (r *InstrumentedRemote) SearchEntries(ctx context.Context, project string, opts tracker.SearchOptions) ([]*types.Entry, error) {
	ctx, span, t := r.op(ctx, "SearchEntries", attribute.String("lp.project", project))
	v, err := r.inner.SearchEntries(ctx, project, opts)
	if err == nil {
		span.SetAttributes(attribute.Int("lp.result.count", len(v)))
	}
	r.done(ctx, span, "SearchEntries", t, err)
	return v, err
}

func (r *InstrumentedRemote) WebLink(id int) string {
	return r.inner.WebLink(id)
}
