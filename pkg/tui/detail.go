package tui

import (
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/ormasoftchile/casewright/pkg/model"
	"github.com/ormasoftchile/casewright/pkg/phrase"
)

// detailView renders everything known about one step.
func detailView(s model.Step, width int) string {
	valueW := max(width-16, 20)
	var b strings.Builder
	row := func(label, value string) {
		if value == "" {
			return
		}
		b.WriteString(detailLabelStyle.Render(runewidth.FillRight(label, 12)))
		b.WriteString(detailValueStyle.Render(runewidth.Truncate(value, valueW, "…")))
		b.WriteString("\n")
	}

	b.WriteString(panelTitle.Render("Step " + strconv.Itoa(s.Index)))
	b.WriteString("\n")
	row("Description", phrase.Collapse(s.Description))
	kind := string(s.Action)
	if s.KindSource != "" {
		kind += " (" + s.KindSource + ")"
	}
	row("Kind", kind)
	row("Status", string(s.Status))
	row("Data", s.TestData)
	row("Expected", s.ExpectedResult)
	for i, e := range s.DiscoveredElements {
		label := ""
		if i == 0 {
			label = "Elements"
		}
		b.WriteString(detailLabelStyle.Render(runewidth.FillRight(label, 12)))
		b.WriteString(detailValueStyle.Render(runewidth.Truncate(e.String(), valueW, "…")))
		b.WriteString("\n")
	}
	row("Observed", s.ObservedBehavior)
	if s.ResolvedMethod != nil {
		row("Method", s.ResolvedMethod.Reference)
	}
	for _, n := range s.Notes {
		row("Note", n)
	}
	return strings.TrimRight(b.String(), "\n")
}
