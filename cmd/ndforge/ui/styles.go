// Package ui renders build progress and reports for the ndforge CLI.
package ui

import (
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Palette
var (
	LightForeground = lipgloss.Color("#101F38")
	LightMuted      = lipgloss.Color("#6b7280")
	DarkForeground  = lipgloss.Color("#f2f2f2")
	DarkMuted       = lipgloss.Color("#9ca3af")

	Destructive = lipgloss.Color("#e53935")
	Success     = lipgloss.Color("#8BC34A")
	Warning     = lipgloss.Color("#FFC107")
	Info        = lipgloss.Color("#2196F3")
)

// Theme holds the current color scheme.
type Theme struct {
	Foreground lipgloss.Color
	Muted      lipgloss.Color
	IsDark     bool
}

// LightTheme returns the light mode theme.
func LightTheme() Theme {
	return Theme{Foreground: LightForeground, Muted: LightMuted}
}

// DarkTheme returns the dark mode theme.
func DarkTheme() Theme {
	return Theme{Foreground: DarkForeground, Muted: DarkMuted, IsDark: true}
}

// DetectTheme picks a theme from COLORFGBG or NDFORGE_DARK_MODE.
func DetectTheme() Theme {
	if parts := strings.Split(os.Getenv("COLORFGBG"), ";"); len(parts) == 2 {
		if bg, err := strconv.Atoi(parts[1]); err == nil && ((bg >= 0 && bg <= 6) || bg == 8) {
			return DarkTheme()
		}
	}
	if os.Getenv("NDFORGE_DARK_MODE") == "1" {
		return DarkTheme()
	}
	return LightTheme()
}

// Styles holds the styles used by CLI output.
type Styles struct {
	Theme Theme

	Title   lipgloss.Style
	Body    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style
}

// NewStyles creates styles for theme.
func NewStyles(theme Theme) Styles {
	return Styles{
		Theme:   theme,
		Title:   lipgloss.NewStyle().Foreground(theme.Foreground).Bold(true),
		Body:    lipgloss.NewStyle().Foreground(theme.Foreground),
		Muted:   lipgloss.NewStyle().Foreground(theme.Muted),
		Success: lipgloss.NewStyle().Foreground(Success).Bold(true),
		Error:   lipgloss.NewStyle().Foreground(Destructive).Bold(true),
		Warning: lipgloss.NewStyle().Foreground(Warning),
		Info:    lipgloss.NewStyle().Foreground(Info),
	}
}

// DefaultStyles returns styles for the detected theme.
func DefaultStyles() Styles {
	return NewStyles(DetectTheme())
}
