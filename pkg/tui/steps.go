package tui

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/ormasoftchile/casewright/pkg/model"
	"github.com/ormasoftchile/casewright/pkg/phrase"
)

// stepsPanel renders the scrollable step list of a case.
type stepsPanel struct {
	steps  []model.Step
	cursor int // highlighted step, -1 before the first record arrives
	width  int
	height int
	offset int // scroll offset
}

func newStepsPanel() stepsPanel {
	return stepsPanel{cursor: -1}
}

// SetSteps replaces the step list. The cursor keeps its position; on the
// first call it lands on the first step that is not yet done.
func (p *stepsPanel) SetSteps(steps []model.Step) {
	p.steps = steps
	if p.cursor < 0 {
		p.cursor = 0
		for i, s := range steps {
			if s.Status != model.StatusSucceeded {
				p.cursor = i
				break
			}
		}
	}
	if p.cursor >= len(steps) {
		p.cursor = len(steps) - 1
	}
	p.ensureVisible()
}

// Selected returns the highlighted step.
func (p *stepsPanel) Selected() (model.Step, bool) {
	if p.cursor < 0 || p.cursor >= len(p.steps) {
		return model.Step{}, false
	}
	return p.steps[p.cursor], true
}

func (p *stepsPanel) CursorUp() {
	if p.cursor > 0 {
		p.cursor--
		p.ensureVisible()
	}
}

func (p *stepsPanel) CursorDown() {
	if p.cursor < len(p.steps)-1 {
		p.cursor++
		p.ensureVisible()
	}
}

func (p *stepsPanel) ensureVisible() {
	h := p.visibleRows()
	if p.cursor < p.offset {
		p.offset = p.cursor
	}
	if p.cursor >= p.offset+h {
		p.offset = p.cursor - h + 1
	}
	if p.offset < 0 {
		p.offset = 0
	}
}

func (p *stepsPanel) visibleRows() int {
	if p.height <= 0 {
		return len(p.steps)
	}
	return p.height
}

// View renders the visible rows as "▸ ✓  3. Description      Kind".
func (p *stepsPanel) View() string {
	if len(p.steps) == 0 {
		return keyDescStyle.Render("  no steps")
	}
	width := p.width
	if width <= 0 {
		width = 80
	}
	kindW := 0
	for _, s := range p.steps {
		kindW = max(kindW, runewidth.StringWidth(string(s.Action)))
	}
	// cursor(2) glyph(2) index(5) gap(1) kind
	descW := max(width-2-2-5-1-kindW, 10)

	end := min(p.offset+p.visibleRows(), len(p.steps))
	var b strings.Builder
	for i := p.offset; i < end; i++ {
		s := p.steps[i]
		g, style := glyph(s)
		marker := "  "
		if i == p.cursor {
			marker = cursorStyle.Render("> ")
		}
		desc := runewidth.FillRight(runewidth.Truncate(phrase.Collapse(s.Description), descW, "…"), descW)
		line := fmt.Sprintf("%s %3d. %s ", g, s.Index, desc)
		b.WriteString(marker + style.Render(line) + kindStyle.Render(string(s.Action)))
		if i < end-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}
