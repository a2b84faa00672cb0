package ui

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPlainHandler(buf *bytes.Buffer, level slog.Level) *Handler {
	color := false
	return NewHandler(buf, &HandlerOptions{Level: level, Color: &color})
}

func TestHandlerFormat(t *testing.T) {
	var buf bytes.Buffer
	h := newPlainHandler(&buf, slog.LevelDebug)

	r := slog.NewRecord(time.Date(2026, 10, 15, 9, 4, 5, 0, time.UTC), slog.LevelInfo, "Actions done", 0)
	r.AddAttrs(slog.Int("issue", 1234), slog.String("actions", "UPDATE fuel/9.0"))
	require.NoError(t, h.Handle(context.Background(), r))

	assert.Equal(t, "[09:04:05 INFO   ] Actions done issue=1234 actions=\"UPDATE fuel/9.0\"\n", buf.String())
}

func TestHandlerLevels(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(newPlainHandler(&buf, slog.LevelInfo))

	log.Debug("hidden")
	log.Info("shown")
	log.Warn("careful")
	log.Error("failed", "err", errors.New("boom"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], " INFO   ] shown")
	assert.Contains(t, lines[1], " WARNING] careful")
	assert.Contains(t, lines[2], " ERROR  ] failed err=boom")
}

func TestHandlerAttrsAndGroups(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(newPlainHandler(&buf, slog.LevelInfo)).
		With("project", "fuel").
		WithGroup("run").
		With("dry_run", true)

	log.Info("start", "took", 1500*time.Millisecond, slog.Group("stats", "migrated", 2), "empty", "")

	out := buf.String()
	assert.Contains(t, out, "] start project=fuel run.dry_run=true run.took=1.5s run.stats.migrated=2 run.empty=\"\"\n")
}

func TestHandlerEnabled(t *testing.T) {
	var level slog.LevelVar
	level.Set(slog.LevelWarn)
	h := NewHandler(&bytes.Buffer{}, &HandlerOptions{Level: &level})

	assert.False(t, h.Enabled(context.Background(), slog.LevelInfo))
	level.Set(slog.LevelDebug)
	assert.True(t, h.Enabled(context.Background(), slog.LevelDebug))
}

func TestMarkdownTable(t *testing.T) {
	got := MarkdownTable([]string{"Project", "Milestone"}, [][]string{{"fuel", "6.9|x"}})
	assert.Equal(t, "| Project | Milestone |\n| --- | --- |\n| fuel | 6.9\\|x |\n", got)
}

func TestRenderMarkdownPlainWithoutColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	assert.Equal(t, "# title\n", RenderMarkdown("# title\n"))
}
