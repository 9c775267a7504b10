package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/ormasoftchile/casewright/pkg/model"
	"github.com/ormasoftchile/casewright/pkg/phrase"
)

// Assignment is one kind chosen in the picker.
type Assignment struct {
	Index int
	Kind  model.ActionKind
}

// KindPicker walks through a case's Unknown steps and asks for a kind for
// each. It only collects choices; the caller commits them.
type KindPicker struct {
	caseID    string
	steps     []model.Step
	pos       int
	cursor    int
	chosen    map[int]model.ActionKind
	cancelled bool
	width     int
}

// NewKindPicker creates a picker over the Unknown steps of tc.
func NewKindPicker(tc *model.TestCase) KindPicker {
	var unknown []model.Step
	for _, s := range tc.Steps {
		if s.Action == model.ActionUnknown {
			unknown = append(unknown, s)
		}
	}
	return KindPicker{
		caseID: tc.ID,
		steps:  unknown,
		chosen: make(map[int]model.ActionKind),
		width:  80,
	}
}

// Assignments returns the chosen kinds ordered by step index.
func (p KindPicker) Assignments() []Assignment {
	out := make([]Assignment, 0, len(p.chosen))
	for idx, k := range p.chosen {
		out = append(out, Assignment{Index: idx, Kind: k})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Cancelled reports whether the picker was left with esc or q.
func (p KindPicker) Cancelled() bool { return p.cancelled }

// Done reports whether every step has been answered or skipped.
func (p KindPicker) Done() bool { return p.pos >= len(p.steps) }

func (p KindPicker) Init() tea.Cmd {
	if p.Done() {
		return tea.Quit
	}
	return nil
}

func (p KindPicker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		p.width = msg.Width
		return p, nil
	case tea.KeyMsg:
		if p.Done() {
			return p, tea.Quit
		}
		switch {
		case key.Matches(msg, keys.Cancel), key.Matches(msg, keys.Quit):
			p.cancelled = true
			return p, tea.Quit
		case key.Matches(msg, keys.Up):
			if p.cursor > 0 {
				p.cursor--
			}
		case key.Matches(msg, keys.Down):
			if p.cursor < len(model.ActionKinds)-1 {
				p.cursor++
			}
		case key.Matches(msg, keys.Choose):
			return p.choose(model.ActionKinds[p.cursor])
		case key.Matches(msg, keys.Skip):
			return p.advance()
		default:
			s := msg.String()
			if len(s) == 1 && s[0] >= '1' && int(s[0]-'1') < len(model.ActionKinds) {
				return p.choose(model.ActionKinds[s[0]-'1'])
			}
		}
	}
	return p, nil
}

func (p KindPicker) choose(k model.ActionKind) (tea.Model, tea.Cmd) {
	p.chosen[p.steps[p.pos].Index] = k
	return p.advance()
}

func (p KindPicker) advance() (tea.Model, tea.Cmd) {
	p.pos++
	p.cursor = 0
	if p.Done() {
		return p, tea.Quit
	}
	return p, nil
}

func (p KindPicker) View() string {
	if p.Done() {
		return ""
	}
	s := p.steps[p.pos]
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("Classify %s", p.caseID)))
	b.WriteString(keyDescStyle.Render(fmt.Sprintf("  step %d of %d unknown", p.pos+1, len(p.steps))))
	b.WriteString("\n\n")
	b.WriteString(detailView(s, p.width-4))
	b.WriteString("\n\n")
	for i, k := range model.ActionKinds {
		line := fmt.Sprintf("%d. %s", i+1, k)
		if i == p.cursor {
			b.WriteString(cursorStyle.Render("> " + line))
		} else {
			b.WriteString("  " + stepNormal.Render(line))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(keyBarText(true))
	return b.String()
}

// Summary lists the assignments in one line each, for printing after the
// picker exits.
func (p KindPicker) Summary() string {
	var b strings.Builder
	for _, a := range p.Assignments() {
		desc := ""
		for _, s := range p.steps {
			if s.Index == a.Index {
				desc = phrase.Collapse(s.Description)
			}
		}
		fmt.Fprintf(&b, "%s step %d -> %s  %s\n", GlyphSucceeded, a.Index, a.Kind, keyDescStyle.Render(desc))
	}
	return b.String()
}
