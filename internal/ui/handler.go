package ui

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

// HandlerOptions configures a Handler.
type HandlerOptions struct {
	// Level is the minimum level logged; nil means info.
	Level slog.Leveler

	// Color forces colour on or off. Nil detects it from the writer and the
	// NO_COLOR / CLICOLOR conventions.
	Color *bool
}

// Handler is a slog.Handler writing one line per record:
//
//	[15:04:05 INFO   ] Actions done issue=1234 actions="UPDATE fuel/9.0"
type Handler struct {
	mu     *sync.Mutex
	w      io.Writer
	level  slog.Leveler
	styles levelStyles
	attrs  string // preformatted attrs from WithAttrs
	group  string // dotted group prefix
}

var _ slog.Handler = (*Handler)(nil)

// NewHandler creates a Handler writing to w.
func NewHandler(w io.Writer, opts *HandlerOptions) *Handler {
	if opts == nil {
		opts = &HandlerOptions{}
	}
	level := opts.Level
	if level == nil {
		level = slog.LevelInfo
	}
	color := shouldUseColorFor(w)
	if opts.Color != nil {
		color = *opts.Color
	}
	return &Handler{
		mu:     &sync.Mutex{},
		w:      w,
		level:  level,
		styles: newLevelStyles(NewRenderer(w, color)),
	}
}

// NewLogger returns a logger writing to w at the given level.
func NewLogger(w io.Writer, level slog.Leveler) *slog.Logger {
	return slog.New(NewHandler(w, &HandlerOptions{Level: level}))
}

func (h *Handler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level.Level()
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString("[")
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	b.WriteString(ts.Format(time.TimeOnly))
	b.WriteString(" ")
	b.WriteString(h.styles.forLevel(r.Level).Render(fmt.Sprintf("%-7s", levelLabel(r.Level))))
	b.WriteString("] ")
	b.WriteString(r.Message)
	b.WriteString(h.attrs)
	r.Attrs(func(a slog.Attr) bool {
		appendAttr(&b, h.group, a)
		return true
	})
	b.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	var b strings.Builder
	b.WriteString(h.attrs)
	for _, a := range attrs {
		appendAttr(&b, h.group, a)
	}
	h2 := *h
	h2.attrs = b.String()
	return &h2
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	h2.group = h.group + name + "."
	return &h2
}

func appendAttr(b *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		if a.Key != "" {
			prefix += a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			appendAttr(b, prefix, ga)
		}
		return
	}
	b.WriteString(" ")
	b.WriteString(prefix)
	b.WriteString(a.Key)
	b.WriteString("=")
	b.WriteString(quoteValue(formatValue(a.Value)))
}

func formatValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	case slog.KindDuration:
		return v.Duration().Round(time.Millisecond).String()
	default:
		return v.String()
	}
}

// quoteValue quotes values that would not read back as one token.
func quoteValue(s string) string {
	if s == "" {
		return `""`
	}
	if strings.ContainsAny(s, " \t\n\"=") {
		return strconv.Quote(s)
	}
	return s
}
