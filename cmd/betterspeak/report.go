package main

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/MrWong99/betterspeak/internal/detect"
	"github.com/MrWong99/betterspeak/pkg/classifier"
)

var (
	accent = lipgloss.Color("#00ff9f")
	dim    = lipgloss.Color("#6e7681")
	warn   = lipgloss.Color("#ffb86c")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(accent)
	labelStyle = lipgloss.NewStyle().Foreground(dim).Width(14)
	valueStyle = lipgloss.NewStyle().Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(warn)
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(0, 2)
)

// renderReport formats the result of one detection run. saved is the
// location of the saved recording, or empty.
func renderReport(m detect.SessionMetrics, saved string) string {
	row := func(label, value string) string {
		return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), valueStyle.Render(value))
	}

	lines := []string{titleStyle.Render("BetterSpeak report"), ""}
	for _, t := range classifier.Types {
		lines = append(lines, row(capitalize(t.String()), fmt.Sprint(m.Count(t))))
	}
	lines = append(lines,
		row("Total", fmt.Sprint(m.Total)),
		row("Syllables", fmt.Sprint(m.Syllables)),
		row("PSS", formatPSS(m)),
		"",
		row("Audio", m.Audio.Round(100*time.Millisecond).String()),
		row("Chunks", fmt.Sprint(m.Chunks)),
		row("Run", m.RunID),
	)
	if saved != "" {
		lines = append(lines, row("Saved to", saved))
	}
	if m.Degraded {
		lines = append(lines, "", warnStyle.Render("Some classifiers failed; their counts are zero:"))
		failed := make([]string, 0, len(m.Errors))
		for t := range m.Errors {
			failed = append(failed, string(t))
		}
		slices.Sort(failed)
		for _, t := range failed {
			lines = append(lines, warnStyle.Render("  "+t+": "+m.Errors[classifier.Type(t)]))
		}
	}

	return boxStyle.Render(strings.Join(lines, "\n"))
}

func formatPSS(m detect.SessionMetrics) string {
	if !m.PSSValid {
		return "n/a (no syllables)"
	}
	return fmt.Sprintf("%.2f%%", m.PSS)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
