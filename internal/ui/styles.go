// Package ui provides terminal output for lpmigrate: the log handler, level
// colours, the run summary and the execute confirmation.
// Uses the Ayu color theme with adaptive light/dark mode support.
package ui

import (
	"log/slog"

	"github.com/charmbracelet/lipgloss"
)

// Ayu theme color palette
// Dark: https://terminalcolors.com/themes/ayu/dark/
// Light: https://terminalcolors.com/themes/ayu/light/
var (
	ColorPass = lipgloss.AdaptiveColor{
		Light: "#86b300", // ayu light bright green
		Dark:  "#c2d94c", // ayu dark bright green
	}
	ColorWarn = lipgloss.AdaptiveColor{
		Light: "#f2ae49", // ayu light bright yellow
		Dark:  "#ffb454", // ayu dark bright yellow
	}
	ColorFail = lipgloss.AdaptiveColor{
		Light: "#f07171", // ayu light bright red
		Dark:  "#f07178", // ayu dark bright red
	}
	ColorMuted = lipgloss.AdaptiveColor{
		Light: "#828c99", // ayu light muted
		Dark:  "#6c7680", // ayu dark muted
	}
	ColorAccent = lipgloss.AdaptiveColor{
		Light: "#399ee6", // ayu light bright blue
		Dark:  "#59c2ff", // ayu dark bright blue
	}
)

// levelStyles are the level label styles of the log handler, bound to a
// renderer so the colour profile follows the output stream.
type levelStyles struct {
	debug, info, warn, err, muted lipgloss.Style
}

func newLevelStyles(r *lipgloss.Renderer) levelStyles {
	return levelStyles{
		debug: r.NewStyle().Foreground(ColorMuted),
		info:  r.NewStyle().Foreground(ColorAccent),
		warn:  r.NewStyle().Foreground(ColorWarn),
		err:   r.NewStyle().Bold(true).Foreground(ColorFail),
		muted: r.NewStyle().Foreground(ColorMuted),
	}
}

func (s levelStyles) forLevel(l slog.Level) lipgloss.Style {
	switch {
	case l >= slog.LevelError:
		return s.err
	case l >= slog.LevelWarn:
		return s.warn
	case l >= slog.LevelInfo:
		return s.info
	default:
		return s.debug
	}
}

// levelLabel names levels the way release scripts traditionally do.
func levelLabel(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "ERROR"
	case l >= slog.LevelWarn:
		return "WARNING"
	case l >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}
