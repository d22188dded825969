package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	track "mcfetch/internal/progress"
)

const (
	tickInterval = 100 * time.Millisecond
	maxWidth     = 80
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	unitStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

type tickMsg time.Time

// ErrMsg stops the view and shows err. Send it with tea.Program.Send when
// the session fails before the tracker can finish.
type ErrMsg struct{ Err error }

// Model renders a tracker: a batch bar, the "N/M files, K failed" line and
// the files currently in flight.
type Model struct {
	title     string
	tracker   *track.Tracker
	snap      track.Snapshot
	bar       progress.Model
	width     int
	maxActive int
	quitting  bool
	err       error
}

// NewModel creates a model polling tracker.
func NewModel(title string, tracker *track.Tracker) Model {
	return Model{
		title:     title,
		tracker:   tracker,
		bar:       progress.New(progress.WithDefaultGradient()),
		width:     maxWidth,
		maxActive: 8,
	}
}

func (m Model) Init() tea.Cmd {
	return tickCmd()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width - 4
		if m.width > maxWidth {
			m.width = maxWidth
		}
		m.bar.Width = m.width
		return m, nil

	case ErrMsg:
		m.err = msg.Err
		m.quitting = true
		return m, tea.Quit

	case tickMsg:
		if m.tracker == nil {
			return m, tickCmd()
		}
		m.snap = m.tracker.Snapshot()
		if m.snap.State == track.StateFinished {
			m.quitting = true
			return m, tea.Quit
		}
		return m, tickCmd()

	default:
		return m, nil
	}
}

func (m Model) View() string {
	if m.err != nil {
		return fmt.Sprintf("Error: %v\n", m.err)
	}
	if m.tracker == nil {
		return "Initializing...\n"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("  ")
	b.WriteString(statusStyle.Render(m.snap.State.String()))
	b.WriteString("\n\n")
	b.WriteString(m.bar.ViewAs(m.snap.Percent()))
	b.WriteString("\n")

	summary := Summary(m.snap)
	if m.snap.Failed > 0 {
		summary = failStyle.Render(summary)
	}
	b.WriteString(summary)
	b.WriteString("\n")

	if !m.quitting {
		for i, u := range m.snap.Active {
			if i == m.maxActive {
				b.WriteString(unitStyle.Render(fmt.Sprintf("  ... and %d more", len(m.snap.Active)-i)))
				b.WriteString("\n")
				break
			}
			b.WriteString(unitStyle.Render(unitLine(u, m.width)))
			b.WriteString("\n")
		}
	}

	return lipgloss.NewStyle().Padding(1).Render(b.String())
}

// Summary formats the counters the way both observers print them.
func Summary(s track.Snapshot) string {
	return fmt.Sprintf("%d/%d files, %d failed", s.Completed, s.Total, s.Failed)
}

func unitLine(u track.UnitSnapshot, width int) string {
	size := humanize.Bytes(u.BytesDone)
	if u.BytesTotal > 0 {
		size += " / " + humanize.Bytes(u.BytesTotal)
	}
	room := width - len(size) - 4
	return "  " + shorten(u.Label, room) + "  " + size
}

// shorten keeps the tail of s, where file names live.
func shorten(s string, n int) string {
	if n <= 3 || len(s) <= n {
		return s
	}
	return "..." + s[len(s)-(n-3):]
}

func tickCmd() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
