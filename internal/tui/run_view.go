// Package tui renders a live view of one pipeline run. It follows The Elm
// Architecture: the controller's observer feeds RunState snapshots in as
// messages, and the view re-renders the phase ladder on each one.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/courtside/internal/domain"
	"github.com/kingrea/courtside/internal/pipeline"
)

var (
	titleStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	phaseDoneStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50"))
	phaseActive     = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true)
	phasePending    = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	errStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	detailTextStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
)

var phaseOrder = []pipeline.Phase{
	pipeline.PhaseScrape,
	pipeline.PhaseResearch,
	pipeline.PhaseModel,
	pipeline.PhasePick,
	pipeline.PhaseSize,
	pipeline.PhaseCompliance,
	pipeline.PhaseApprove,
	pipeline.PhaseFinalize,
}

// StateMsg delivers a controller snapshot. The runner's observer wraps
// each RunState in one of these and Sends it to the program.
type StateMsg pipeline.RunState

// RunResultMsg delivers the terminal outcome of the run.
type RunResultMsg struct {
	Review domain.CardReview
	Err    error
}

// Model is the bubbletea model for the run view.
type Model struct {
	spinner spinner.Model
	current pipeline.RunState
	started bool
	done    bool
	review  domain.CardReview
	err     error
	cancel  func()
}

// New builds a run view. cancel is invoked when the user quits mid-run so
// the controller drains; it may be nil.
func New(cancel func()) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = phaseActive
	return Model{spinner: sp, cancel: cancel}
}

// Init starts the spinner.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles snapshots, the run result, and quit keys.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case StateMsg:
		m.current = pipeline.RunState(msg)
		m.started = true
		return m, nil
	case RunResultMsg:
		m.done = true
		m.review = msg.Review
		m.err = msg.Err
		return m, tea.Quit
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// Done reports whether the run finished while the view was up.
func (m Model) Done() bool { return m.done }

// View renders the phase ladder and, once finished, the card summary.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("COURTSIDE") + "  " + detailTextStyle.Render(m.current.Date))
	b.WriteString("\n\n")

	if !m.started {
		b.WriteString(m.spinner.View() + " starting run…\n")
		return b.String()
	}

	reached := phaseIndex(m.current.Phase)
	for i, phase := range phaseOrder {
		switch {
		case m.done || i < reached:
			b.WriteString("  " + phaseDoneStyle.Render("✓ "+string(phase)))
		case i == reached:
			b.WriteString("  " + m.spinner.View() + phaseActive.Render(string(phase)))
		default:
			b.WriteString("  " + phasePending.Render("· "+string(phase)))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(detailTextStyle.Render(fmt.Sprintf(
		"iteration %d · %d games · %d picks · %d unresolved",
		m.current.Iteration+1, m.current.Games, m.current.Picks, len(m.current.Unresolved))))
	b.WriteString("\n")

	if m.current.Err != "" {
		b.WriteString(errStyle.Render("run degraded: "+m.current.Err) + "\n")
	}

	if m.done {
		b.WriteString("\n" + m.summary())
	} else {
		b.WriteString(detailTextStyle.Render("\npress q to cancel\n"))
	}
	return b.String()
}

func (m Model) summary() string {
	if m.err != nil {
		return errStyle.Render("run failed: "+m.err.Error()) + "\n"
	}
	var b strings.Builder
	if m.review.Err != "" {
		b.WriteString(errStyle.Render("finalized with error: "+m.review.Err) + "\n")
		return b.String()
	}
	b.WriteString(titleStyle.Render(fmt.Sprintf("CARD · %d approved · %d rejected", len(m.review.Approved), len(m.review.Rejected))))
	b.WriteString("\n")
	for _, p := range m.review.Approved {
		marker := "  "
		if p.BestBet {
			marker = "★ "
		}
		b.WriteString(fmt.Sprintf("%s%s %+d  %.1fu\n", marker, p.Selection, p.Odds, p.Units))
	}
	if m.review.Notes != "" {
		b.WriteString(detailTextStyle.Render(m.review.Notes) + "\n")
	}
	return b.String()
}

func phaseIndex(p pipeline.Phase) int {
	for i, phase := range phaseOrder {
		if phase == p {
			return i
		}
	}
	return 0
}
