package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/lp-tools/lpmigrate/internal/storage"
	"github.com/lp-tools/lpmigrate/internal/storage/memory"
	"github.com/lp-tools/lpmigrate/internal/tracker/trackertest"
	"github.com/lp-tools/lpmigrate/internal/types"
)

func counterTotal(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "%s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func TestInitDisabled(t *testing.T) {
	shutdown, err := Init(context.Background(), Options{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitStdout(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT", "")
	t.Cleanup(func() {
		_, _ = Init(context.Background(), Options{})
	})

	var buf bytes.Buffer
	shutdown, err := Init(context.Background(), Options{
		Enabled:     true,
		Stdout:      true,
		ServiceName: "lpmigrate",
		Version:     "test",
		Writer:      &buf,
	})
	require.NoError(t, err)

	_, span := Tracer("").Start(context.Background(), "probe")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "probe")
}

func TestInstrumentedRemote(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	fake := trackertest.New()
	fake.AddProject("fuel", "9.0")
	fake.AddIssue(&types.Issue{ID: 100, Entries: []*types.Entry{
		{Target: "fuel", Status: types.StatusNew},
	}})

	r := NewInstrumentedRemote(fake, tp.Tracer("test"), mp.Meter("test"))

	p, err := r.Project(ctx, "fuel")
	require.NoError(t, err)
	assert.Equal(t, "9.0", p.Focus)

	issue, err := r.Issue(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, issue.Entries, 1)

	_, err = r.Issue(ctx, 404)
	require.Error(t, err)

	assert.Equal(t, "https://bugs.example.test/bugs/100", r.WebLink(100))

	assert.EqualValues(t, 3, counterTotal(t, reader, "lpmigrate.remote.calls"))
	assert.EqualValues(t, 1, counterTotal(t, reader, "lpmigrate.remote.errors"))

	spans := sr.Ended()
	require.Len(t, spans, 3)
	assert.Equal(t, "remote.Project", spans[0].Name())
	assert.Equal(t, "remote.Issue", spans[1].Name())
	assert.Equal(t, codes.Error, spans[2].Status().Code)
}

func TestWrapRemoteDisabled(t *testing.T) {
	fake := trackertest.New()
	assert.Same(t, fake, WrapRemote(fake, false))
}

type committingStore struct {
	*memory.Store
	messages []string
}

func (s *committingStore) Commit(_ context.Context, message string) error {
	s.messages = append(s.messages, message)
	return nil
}

func TestWrapStore(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	t.Cleanup(func() { otel.SetMeterProvider(prev) })

	inner := &committingStore{Store: memory.New()}
	s := WrapStore(inner, true)

	rows := []types.CacheRow{
		{BugID: 1, Project: "fuel", Target: "fuel", Status: string(types.StatusNew)},
		{BugID: 2, Project: "fuel", Target: "fuel/9.0", Status: string(types.StatusConfirmed)},
	}
	require.NoError(t, s.Upsert(ctx, rows))

	got, err := s.Rows(ctx, "fuel", types.Filter{})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = s.GetMeta(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	c, ok := s.(storage.Committer)
	require.True(t, ok)
	require.NoError(t, c.Commit(ctx, "import fuel"))
	assert.Equal(t, []string{"import fuel"}, inner.messages)

	assert.EqualValues(t, 4, counterTotal(t, reader, "lpmigrate.cache.operations"))
	assert.EqualValues(t, 1, counterTotal(t, reader, "lpmigrate.cache.errors"))
	assert.EqualValues(t, 2, counterTotal(t, reader, "lpmigrate.cache.rows.written"))
}

func TestWrapStoreDisabled(t *testing.T) {
	inner := memory.New()
	assert.Same(t, inner, WrapStore(inner, false))
}

func TestRunMetrics(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	m := NewRunMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test"))

	m.Migrated(ctx, "fuel", "9.0")
	m.Migrated(ctx, "fuel", "9.0")
	m.Failed(ctx, "fuel", "9.0")
	m.Skipped(ctx, "nova", "1.1")

	assert.EqualValues(t, 2, counterTotal(t, reader, "lpmigrate.issues.migrated"))
	assert.EqualValues(t, 1, counterTotal(t, reader, "lpmigrate.issues.failed"))
	assert.EqualValues(t, 1, counterTotal(t, reader, "lpmigrate.issues.skipped"))

	var nilMetrics *RunMetrics
	assert.NotPanics(t, func() { nilMetrics.Failed(ctx, "fuel", "9.0") })
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "b", firstNonEmpty("", "b", "c"))
	assert.Equal(t, "", firstNonEmpty("", ""))
}
