package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Tone picks the value color of a summary row.
type Tone int

const (
	ToneNormal Tone = iota
	ToneGood
	ToneBad
	ToneDim
)

type SummaryRow struct {
	Label string
	Value string
	Tone  Tone
}

// RenderSummary draws rows as a two-column table between horizontal rules.
func RenderSummary(title string, rows []SummaryRow) string {
	labelWidth := 0
	valueWidth := lipgloss.Width(title)
	for _, row := range rows {
		if w := lipgloss.Width(row.Label); w > labelWidth {
			labelWidth = w
		}
		if w := lipgloss.Width(row.Value); w > valueWidth {
			valueWidth = w
		}
	}

	hline := dimStyle.Render(strings.Repeat("-", labelWidth+valueWidth+3))
	lines := []string{}
	if title != "" {
		lines = append(lines, titleStyle.Render(title))
	}
	lines = append(lines, hline)

	for _, row := range rows {
		label := padRight(row.Label, labelWidth)
		value := padRight(row.Value, valueWidth)
		line := fmt.Sprintf("%s | %s", labelStyle.Render(label), toneStyle(row.Tone).Render(value))
		lines = append(lines, line)
	}

	lines = append(lines, hline)
	return strings.Join(lines, "\n")
}

// RenderList draws a heading followed by one bullet per item.
func RenderList(heading string, items []string) string {
	if len(items) == 0 {
		return ""
	}
	lines := []string{warnStyle.Render(heading)}
	for _, item := range items {
		lines = append(lines, "  "+dimStyle.Render("•")+" "+item)
	}
	return strings.Join(lines, "\n")
}

func padRight(s string, width int) string {
	if w := lipgloss.Width(s); w < width {
		return s + strings.Repeat(" ", width-w)
	}
	return s
}

func toneStyle(t Tone) lipgloss.Style {
	switch t {
	case ToneGood:
		return goodStyle
	case ToneBad:
		return badStyle
	case ToneDim:
		return dimStyle
	default:
		return valueStyle
	}
}
