package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	focus "github.com/vogtb/go-spreadsheet/focus"
)

var (
	colorPass   = lipgloss.AdaptiveColor{Light: "#86b300", Dark: "#c2d94c"}
	colorWarn   = lipgloss.AdaptiveColor{Light: "#f2ae49", Dark: "#ffb454"}
	colorFail   = lipgloss.AdaptiveColor{Light: "#f07171", Dark: "#f07178"}
	colorMuted  = lipgloss.AdaptiveColor{Light: "#828c99", Dark: "#6c7680"}
	colorAccent = lipgloss.AdaptiveColor{Light: "#399ee6", Dark: "#59c2ff"}

	successStyle = lipgloss.NewStyle().Foreground(colorPass).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(colorWarn).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(colorFail).Bold(true)
	infoStyle    = lipgloss.NewStyle().Foreground(colorAccent)
	dimStyle     = lipgloss.NewStyle().Foreground(colorMuted)
	boldStyle    = lipgloss.NewStyle().Bold(true)
)

func printSuccess(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", successStyle.Render("✓"), fmt.Sprintf(format, args...))
}

func printWarning(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", warningStyle.Render("⚠ Warning:"), fmt.Sprintf(format, args...))
}

func printFailure(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", errorStyle.Render("✗"), fmt.Sprintf(format, args...))
}

// printKV prints an aligned "key  value" line
func printKV(w io.Writer, key string, value any) {
	fmt.Fprintf(w, "  %s %v\n", dimStyle.Width(14).Render(key), value)
}

// formatValue renders a cell value, error values highlighted
func formatValue(v focus.Primitive) string {
	text := focus.FormatValue(v)
	if _, ok := v.(*focus.SpreadsheetError); ok {
		return errorStyle.Render(text)
	}
	return infoStyle.Render(text)
}
