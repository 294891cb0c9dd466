// Package ui holds terminal output helpers shared by the CLI commands.
package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/steveyegge/authcap/internal/supervisor"
)

var (
	colorOK    = lipgloss.Color("76")
	colorWarn  = lipgloss.Color("214")
	colorError = lipgloss.Color("196")
	colorMuted = lipgloss.Color("242")
	colorInfo  = lipgloss.Color("39")
)

var (
	SuccessStyle = lipgloss.NewStyle().Foreground(colorOK).Bold(true)
	WarningStyle = lipgloss.NewStyle().Foreground(colorWarn)
	ErrorStyle   = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	DimStyle     = lipgloss.NewStyle().Foreground(colorMuted)
	InfoStyle    = lipgloss.NewStyle().Foreground(colorInfo)
	BoldStyle    = lipgloss.NewStyle().Bold(true)
)

// InitColor configures lipgloss for the current output.
func InitColor() {
	if ShouldUseColor() {
		lipgloss.SetColorProfile(termenv.EnvColorProfile())
		return
	}
	lipgloss.SetColorProfile(termenv.Ascii)
}

// PhaseStyle returns the style used to render a supervisor phase.
func PhaseStyle(p supervisor.Phase) lipgloss.Style {
	switch p {
	case supervisor.PhaseRunning, supervisor.PhaseStarting:
		return InfoStyle
	case supervisor.PhaseClosing:
		return WarningStyle
	case supervisor.PhaseError:
		return ErrorStyle
	default:
		return DimStyle
	}
}

// Icon returns the emoji when enabled, else the plain fallback.
func Icon(emoji, plain string) string {
	if ShouldUseEmoji() {
		return emoji
	}
	return plain
}

// ResultLine renders a control result as one line.
func ResultLine(res supervisor.Result) string {
	if res.OK {
		return SuccessStyle.Render(Icon("✓", "ok")) + " " + string(res.Message)
	}
	line := ErrorStyle.Render(Icon("✗", "error")) + " " + string(res.Message)
	if res.Error != "" {
		line += DimStyle.Render(fmt.Sprintf(" (%s)", res.Error))
	}
	return line
}
