package tui

import (
	"fmt"
	"io"

	"github.com/mattn/go-runewidth"
	"github.com/ormasoftchile/casewright/pkg/checkpoint"
	"github.com/ormasoftchile/casewright/pkg/model"
)

const (
	idColumn    = 24
	nameColumn  = 32
	stateColumn = 10
)

// WriteSummaries prints the active cases as an aligned table. Column widths
// are measured in terminal cells so wide characters stay aligned.
func WriteSummaries(w io.Writer, sums []checkpoint.Summary) error {
	if len(sums) == 0 {
		_, err := fmt.Fprintln(w, "no active cases")
		return err
	}
	if _, err := fmt.Fprintf(w, "  %s %s %s %7s %5s  %s\n",
		cell("CASE", idColumn), cell("NAME", nameColumn), cell("STATE", stateColumn),
		"STEPS", "REV", "UPDATED"); err != nil {
		return err
	}
	for _, s := range sums {
		if _, err := fmt.Fprintf(w, "%s %s %s %s %7s %5d  %s\n",
			stateGlyph(s.State),
			cell(s.CaseID, idColumn), cell(s.Name, nameColumn), cell(string(s.State), stateColumn),
			fmt.Sprintf("%d/%d", s.Done, s.Total), s.Revision,
			s.UpdatedAt.Local().Format("2006-01-02 15:04")); err != nil {
			return err
		}
	}
	return nil
}

func cell(s string, width int) string {
	return runewidth.FillRight(runewidth.Truncate(s, width, "…"), width)
}

func stateGlyph(s model.CaseState) string {
	switch s {
	case model.StateComplete:
		return GlyphSucceeded
	case model.StateHalted:
		return GlyphFailed
	case model.StateRunning:
		return GlyphInProgress
	case model.StateBlocked:
		return GlyphBlocked
	}
	return GlyphPending
}
