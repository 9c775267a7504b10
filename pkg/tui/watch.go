package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/ormasoftchile/casewright/pkg/model"
)

// Loader fetches the latest committed record of the watched case. A nil
// record means nothing has been committed yet.
type Loader func(ctx context.Context) (*model.CheckpointRecord, error)

// DefaultInterval is the polling interval of the watch view.
const DefaultInterval = time.Second

type recordMsg struct {
	rec *model.CheckpointRecord
	err error
}

type tickMsg time.Time

// Watch follows the checkpoint of one case, refreshing on every tick. It
// never writes.
type Watch struct {
	ctx      context.Context
	caseID   string
	load     Loader
	interval time.Duration

	rec     *model.CheckpointRecord
	err     error
	steps   stepsPanel
	spinner spinner.Model
	width   int
	height  int
}

// NewWatch creates a watch view for caseID.
func NewWatch(ctx context.Context, caseID string, load Loader, interval time.Duration) Watch {
	if interval <= 0 {
		interval = DefaultInterval
	}
	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = spinnerStyle
	return Watch{
		ctx:      ctx,
		caseID:   caseID,
		load:     load,
		interval: interval,
		steps:    newStepsPanel(),
		spinner:  sp,
		width:    80,
	}
}

// Record returns the last record received.
func (m Watch) Record() *model.CheckpointRecord { return m.rec }

func (m Watch) Init() tea.Cmd {
	return tea.Batch(m.fetch(), m.spinner.Tick)
}

func (m Watch) fetch() tea.Cmd {
	return func() tea.Msg {
		rec, err := m.load(m.ctx)
		return recordMsg{rec: rec, err: err}
	}
}

func (m Watch) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Watch) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Up):
			m.steps.CursorUp()
		case key.Matches(msg, keys.Down):
			m.steps.CursorDown()
		case key.Matches(msg, keys.Refresh):
			return m, m.fetch()
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		return m, nil

	case recordMsg:
		m.err = msg.err
		if msg.err == nil && msg.rec != nil {
			m.rec = msg.rec
			m.steps.SetSteps(msg.rec.Case.Steps)
		}
		return m, m.tick()

	case tickMsg:
		return m, m.fetch()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// layout gives the step list whatever the header, detail panel and key bar
// leave over.
func (m *Watch) layout() {
	m.steps.width = m.width - 4
	if m.height > 0 {
		m.steps.height = max(m.height-16, 3)
	}
	m.steps.ensureVisible()
}

func (m Watch) View() string {
	var b strings.Builder

	header := headerStyle.Render("casewright watch " + m.caseID)
	if m.rec != nil {
		state := m.rec.Case.State()
		done, total := m.rec.Case.Progress()
		header += " " + stateStyle(state).Render(string(state)) +
			keyDescStyle.Render(fmt.Sprintf("  %d/%d steps  rev %d", done, total, m.rec.Revision))
		if state == model.StateRunning {
			header += " " + m.spinner.View()
		}
	}
	b.WriteString(header)
	b.WriteString("\n")

	if m.rec == nil {
		b.WriteString(m.spinner.View() + keyDescStyle.Render(" waiting for the first checkpoint of "+m.caseID))
		b.WriteString("\n")
	} else {
		b.WriteString(panelBorder.Width(max(m.width-2, 20)).Render(m.steps.View()))
		b.WriteString("\n")
		if s, ok := m.steps.Selected(); ok {
			b.WriteString(panelBorder.Width(max(m.width-2, 20)).Render(detailView(s, m.width-4)))
			b.WriteString("\n")
		}
	}

	if m.err != nil {
		b.WriteString(errorStyle.Render("✗ " + m.err.Error()))
		b.WriteString("\n")
	}
	b.WriteString(lipgloss.NewStyle().Padding(0, 1).Render(keyBarText(false)))
	return b.String()
}
