// Package ui is the interactive AURA chat screen.
package ui

import (
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Theme holds the current color scheme.
type Theme struct {
	Foreground lipgloss.Color
	Primary    lipgloss.Color
	Accent     lipgloss.Color
	Muted      lipgloss.Color
	Border     lipgloss.Color
	IsDark     bool
}

var (
	Destructive = lipgloss.Color("#e53935")
	Success     = lipgloss.Color("#43a047")
)

func LightTheme() Theme {
	return Theme{
		Foreground: lipgloss.Color("#1b1f3b"),
		Primary:    lipgloss.Color("#5b4bdb"),
		Accent:     lipgloss.Color("#0f9d8a"),
		Muted:      lipgloss.Color("#8a8fa3"),
		Border:     lipgloss.Color("#d5d8e2"),
	}
}

func DarkTheme() Theme {
	return Theme{
		Foreground: lipgloss.Color("#eceef5"),
		Primary:    lipgloss.Color("#9d8fff"),
		Accent:     lipgloss.Color("#4fd1b8"),
		Muted:      lipgloss.Color("#6b7089"),
		Border:     lipgloss.Color("#2d3147"),
		IsDark:     true,
	}
}

// DetectTheme picks dark mode from COLORFGBG or AURA_DARK_MODE=1, light otherwise.
func DetectTheme() Theme {
	if fgbg := os.Getenv("COLORFGBG"); fgbg != "" {
		parts := strings.Split(fgbg, ";")
		if bg, err := strconv.Atoi(parts[len(parts)-1]); err == nil {
			if (bg >= 0 && bg <= 6) || bg == 8 {
				return DarkTheme()
			}
		}
	}
	if os.Getenv("AURA_DARK_MODE") == "1" {
		return DarkTheme()
	}
	return LightTheme()
}

// Styles holds the styled components of the chat screen.
type Styles struct {
	Theme Theme

	Header  lipgloss.Style
	Footer  lipgloss.Style
	Muted   lipgloss.Style
	User    lipgloss.Style
	Bot     lipgloss.Style
	Error   lipgloss.Style
	Success lipgloss.Style
	Prompt  lipgloss.Style
	Spinner lipgloss.Style
	Overlay lipgloss.Style
}

func NewStyles(theme Theme) Styles {
	return Styles{
		Theme: theme,

		Header: lipgloss.NewStyle().
			Background(theme.Primary).
			Foreground(lipgloss.Color("#ffffff")).
			Padding(0, 2).
			Bold(true),

		Footer: lipgloss.NewStyle().
			Foreground(theme.Muted).
			Padding(0, 2),

		Muted: lipgloss.NewStyle().
			Foreground(theme.Muted),

		User: lipgloss.NewStyle().
			Foreground(theme.Accent).
			Bold(true),

		Bot: lipgloss.NewStyle().
			Foreground(theme.Primary).
			Bold(true),

		Error: lipgloss.NewStyle().
			Foreground(Destructive),

		Success: lipgloss.NewStyle().
			Foreground(Success),

		Prompt: lipgloss.NewStyle().
			Foreground(theme.Accent).
			Bold(true),

		Spinner: lipgloss.NewStyle().
			Foreground(theme.Accent),

		Overlay: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(theme.Primary).
			Padding(1, 3),
	}
}

// DefaultStyles returns styles for the detected theme.
func DefaultStyles() Styles {
	return NewStyles(DetectTheme())
}
