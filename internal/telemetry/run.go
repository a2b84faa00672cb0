package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const runScopeName = "github.com/lp-tools/lpmigrate/migrate"

// RunMetrics counts migration outcomes per project and milestone. A nil
// *RunMetrics records nothing.
type RunMetrics struct {
	migrated metric.Int64Counter
	failed   metric.Int64Counter
	skipped  metric.Int64Counter
}

// NewRunMetrics creates the run counters on m; nil m uses the global meter.
func NewRunMetrics(m metric.Meter) *RunMetrics {
	if m == nil {
		m = Meter(runScopeName)
	}
	migrated, _ := m.Int64Counter("lpmigrate.issues.migrated",
		metric.WithDescription("Issues retargeted to the new milestone"),
	)
	failed, _ := m.Int64Counter("lpmigrate.issues.failed",
		metric.WithDescription("Issues whose migration failed"),
	)
	skipped, _ := m.Int64Counter("lpmigrate.issues.skipped",
		metric.WithDescription("Candidate issues left alone"),
	)
	return &RunMetrics{migrated: migrated, failed: failed, skipped: skipped}
}

func unitAttrs(project, milestone string) metric.AddOption {
	return metric.WithAttributes(
		attribute.String("lp.project", project),
		attribute.String("lp.milestone", milestone),
	)
}

// Migrated records one migrated issue.
func (m *RunMetrics) Migrated(ctx context.Context, project, milestone string) {
	if m == nil {
		return
	}
	m.migrated.Add(ctx, 1, unitAttrs(project, milestone))
}

// Failed records one failed issue.
func (m *RunMetrics) Failed(ctx context.Context, project, milestone string) {
	if m == nil {
		return
	}
	m.failed.Add(ctx, 1, unitAttrs(project, milestone))
}

// Skipped records one skipped issue.
func (m *RunMetrics) Skipped(ctx context.Context, project, milestone string) {
	if m == nil {
		return
	}
	m.skipped.Add(ctx, 1, unitAttrs(project, milestone))
}
