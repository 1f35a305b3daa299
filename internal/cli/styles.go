// Package cli renders match results, jobs and progress for the terminal.
package cli

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/Veraticus/boq-price-match/internal/model"
)

// Confidence bands used when colouring scores.
const (
	HighConfidence   = 0.7
	MediumConfidence = 0.4
)

var (
	// PrimaryColor is safety orange.
	PrimaryColor = lipgloss.Color("#FF8C42")
	goodColor    = lipgloss.Color("#4ECDC4")
	cautionColor = lipgloss.Color("#FFE66D")
	badColor     = lipgloss.Color("#FF6B6B")
	noteColor    = lipgloss.Color("#95E1D3")
	mutedColor   = lipgloss.Color("#666666")
	ruleColor    = lipgloss.Color("#333")

	TitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(PrimaryColor).MarginBottom(1)
	SuccessStyle = lipgloss.NewStyle().Foreground(goodColor)
	WarningStyle = lipgloss.NewStyle().Foreground(cautionColor)
	ErrorStyle   = lipgloss.NewStyle().Foreground(badColor)
	InfoStyle    = lipgloss.NewStyle().Foreground(noteColor)
	SubtleStyle  = lipgloss.NewStyle().Foreground(mutedColor)

	// BoxStyle frames a single match or job summary.
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ruleColor).
			Padding(0, 1)

	TableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(PrimaryColor).
				BorderStyle(lipgloss.NormalBorder()).
				BorderBottom(true).
				BorderForeground(ruleColor)

	TableCellStyle = lipgloss.NewStyle().PaddingRight(2)
)

const (
	SuccessIcon = "✓"
	ErrorIcon   = "✗"
	WarningIcon = "⚠️"
	InfoIcon    = "ℹ️"
	CraneIcon   = "🏗️"
	BrainIcon   = "🧠"
)

// FormatSuccess prefixes message with a check mark.
func FormatSuccess(message string) string {
	return SuccessStyle.Render(SuccessIcon + " " + message)
}

func FormatError(message string) string {
	return ErrorStyle.Render(ErrorIcon + " " + message)
}

func FormatWarning(message string) string {
	return WarningStyle.Render(WarningIcon + " " + message)
}

func FormatInfo(message string) string {
	return InfoStyle.Render(InfoIcon + " " + message)
}

// FormatTitle renders a heading with the crane icon.
func FormatTitle(title string) string {
	return TitleStyle.Render(CraneIcon + " " + title)
}

// RenderBox renders content under a title inside a rounded border.
func RenderBox(title, content string) string {
	heading := TitleStyle.UnsetMargins().Render(title)
	return BoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, heading, content))
}

func confidenceStyle(c float64) lipgloss.Style {
	switch {
	case c >= HighConfidence:
		return SuccessStyle
	case c >= MediumConfidence:
		return WarningStyle
	default:
		return ErrorStyle
	}
}

func statusStyle(s model.JobStatus) lipgloss.Style {
	switch s {
	case model.JobCompleted:
		return SuccessStyle
	case model.JobFailed:
		return ErrorStyle
	default:
		return InfoStyle
	}
}
