// Package tui implements the terminal views of casewright: a live watch of a
// case's checkpoint and an interactive picker for steps the classifier could
// not assign a kind to.
package tui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/ormasoftchile/casewright/pkg/model"
)

// Step status glyphs convey meaning without relying on color alone.
const (
	GlyphPending    = "○"
	GlyphInProgress = "▸"
	GlyphSucceeded  = "✓"
	GlyphFailed     = "✗"
	GlyphBlocked    = "?"
)

var (
	colorGreen  = lipgloss.Color("42")
	colorRed    = lipgloss.Color("196")
	colorYellow = lipgloss.Color("214")
	colorBlue   = lipgloss.Color("39")
	colorCyan   = lipgloss.Color("51")
	colorDim    = lipgloss.Color("240")
	colorWhite  = lipgloss.Color("255")
)

var headerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorCyan).
	Padding(0, 1)

var stateBadgeStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("0")).
	Background(colorYellow).
	Padding(0, 1)

var (
	stepNormal = lipgloss.NewStyle().
			Foreground(colorWhite)

	stepCurrent = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorYellow)

	stepPassed = lipgloss.NewStyle().
			Foreground(colorGreen)

	stepFailed = lipgloss.NewStyle().
			Foreground(colorRed)

	stepBlocked = lipgloss.NewStyle().
			Foreground(colorYellow).
			Faint(true)

	cursorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan)
)

var (
	panelBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorDim).
			Padding(0, 1)

	panelTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan)

	detailLabelStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(colorBlue)

	detailValueStyle = lipgloss.NewStyle().
				Foreground(colorWhite)

	kindStyle = lipgloss.NewStyle().
			Foreground(colorDim)
)

var (
	keyStyle = lipgloss.NewStyle().
			Foreground(colorCyan).
			Bold(true)

	keyDescStyle = lipgloss.NewStyle().
			Foreground(colorDim)
)

var errorStyle = lipgloss.NewStyle().
	Foreground(colorRed).
	Bold(true)

var spinnerStyle = lipgloss.NewStyle().
	Foreground(colorYellow)

// glyph returns the status glyph and style for a step.
func glyph(s model.Step) (string, lipgloss.Style) {
	switch s.Status {
	case model.StatusSucceeded:
		return GlyphSucceeded, stepPassed
	case model.StatusFailed:
		return GlyphFailed, stepFailed
	case model.StatusInProgress:
		return GlyphInProgress, stepCurrent
	}
	if s.Action == model.ActionUnknown {
		return GlyphBlocked, stepBlocked
	}
	return GlyphPending, stepNormal
}

// stateStyle colors the case state badge.
func stateStyle(state model.CaseState) lipgloss.Style {
	switch state {
	case model.StateComplete:
		return stateBadgeStyle.Background(colorGreen)
	case model.StateHalted:
		return stateBadgeStyle.Background(colorRed)
	case model.StateNotStarted:
		return stateBadgeStyle.Background(colorDim)
	}
	return stateBadgeStyle
}
