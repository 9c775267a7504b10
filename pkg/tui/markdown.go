package tui

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/ormasoftchile/casewright/pkg/checkpoint"
	"github.com/ormasoftchile/casewright/pkg/model"
)

// RenderMarkdown converts markdown to styled terminal output wrapped at
// width columns; width 0 disables wrapping. The raw input is returned when
// rendering fails.
func RenderMarkdown(md string, width int) string {
	if strings.TrimSpace(md) == "" {
		return md
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	// Glamour adds trailing newlines.
	return strings.TrimRight(out, "\n")
}

// RenderRecord renders a checkpoint's checklist for the terminal.
func RenderRecord(rec *model.CheckpointRecord, width int) string {
	return RenderMarkdown(checkpoint.RenderChecklist(rec), width)
}
