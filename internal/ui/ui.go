package ui

import (
	"fmt"
	"strings"

	"github.com/LosAICode/neurogen-client/internal/track"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	WatchView ViewState = iota
	ResultView
)

// Model represents the TUI application state.
type Model struct {
	taskID   string
	updates  <-chan track.Update
	terminal <-chan track.TerminalNotice
	cancel   func(taskID string) error

	view      ViewState
	width     int
	current   track.Update
	notice    *track.TerminalNotice
	advisory  string
	cancelled bool

	spin spinner.Model
	bar  progress.Model
	help help.Model
	keys keyMap
}

// keyMap defines the key bindings for the TUI.
type keyMap struct {
	cancel key.Binding
	quit   key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		cancel: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "cancel task"),
		),
		quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.cancel, k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.cancel, k.quit}}
}

// NewModel creates a new TUI model for watching one task. The channels are fed
// by the engine's subscriptions; cancel routes a cancellation request back
// into the engine.
func NewModel(taskID string, updates <-chan track.Update, terminal <-chan track.TerminalNotice, cancel func(taskID string) error) *Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = NewStyle("#7D56F4")

	return &Model{
		taskID:   taskID,
		updates:  updates,
		terminal: terminal,
		cancel:   cancel,
		view:     WatchView,
		bar:      progress.New(progress.WithDefaultGradient()),
		spin:     sp,
		help:     help.New(),
		keys:     newKeyMap(),
	}
}

// Init starts the spinner and begins draining the session channels.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.waitForUpdate(), m.waitForTerminal())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		w := msg.Width - 8
		if w > 60 {
			w = 60
		}
		if w > 0 {
			m.bar.Width = w
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "c":
			if m.view == WatchView && m.cancel != nil && !m.cancelled {
				m.cancelled = true
				return m, m.requestCancel()
			}
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		pm, cmd := m.bar.Update(msg)
		m.bar = pm.(progress.Model)
		return m, cmd

	case updateMsg:
		m.current = track.Update(msg)
		if m.current.Advisory != "" {
			m.advisory = m.current.Advisory
		}
		return m, tea.Batch(
			m.bar.SetPercent(m.current.DisplayProgress/100),
			m.waitForUpdate(),
		)

	case terminalMsg:
		notice := track.TerminalNotice(msg)
		m.notice = &notice
		m.view = ResultView
		pct := 1.0
		if notice.Outcome != track.Completed && notice.Final.HasProgress() {
			pct = notice.Final.Progress / 100
		}
		return m, m.bar.SetPercent(pct)

	case cancelResultMsg:
		if msg.err != nil {
			m.cancelled = false
			m.advisory = fmt.Sprintf("cancel failed: %v", msg.err)
		} else {
			m.advisory = "cancellation requested"
		}
		return m, nil
	}

	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case ResultView:
		return m.renderResult()
	default:
		return m.renderWatch()
	}
}

func (m *Model) renderWatch() string {
	var b strings.Builder

	b.WriteString(styles.title.Render(fmt.Sprintf("Tracking task %s", m.taskID)))
	b.WriteString("\n\n")

	status := m.current.Status.String()
	if m.current.Status == track.Stalled {
		status = styles.warn.Render(status)
	}
	b.WriteString(fmt.Sprintf("%s %s\n\n", m.spin.View(), status))

	b.WriteString(m.bar.View())
	b.WriteString(fmt.Sprintf("  %.1f%%\n", m.current.DisplayProgress))

	if m.current.Message != "" {
		b.WriteString(fmt.Sprintf("\n%s\n", m.current.Message))
	}

	b.WriteString(fmt.Sprintf("\nlink: %s\n", m.renderHealth()))

	if m.advisory != "" {
		b.WriteString(fmt.Sprintf("\n%s\n", styles.warn.Render(m.advisory)))
	}

	b.WriteString("\n" + m.help.ShortHelpView(m.keys.ShortHelp()))
	return b.String()
}

func (m *Model) renderHealth() string {
	q := m.current.Health.Quality
	label := q.String()
	switch q {
	case track.QualityExcellent, track.QualityGood:
		return styles.ok.Render(label)
	case track.QualityPoor:
		return styles.warn.Render(label)
	case track.QualityDisconnected:
		return styles.err.Render(label + " (polling)")
	default:
		return styles.help.Render(label)
	}
}

func (m *Model) renderResult() string {
	n := m.notice
	if n == nil {
		return styles.err.Render("No result available\n\nPress q to quit")
	}

	var title string
	switch n.Outcome {
	case track.Completed:
		title = styles.ok.Render("✓ Task complete")
	case track.Cancelled:
		title = styles.warn.Render("Task cancelled")
	default:
		title = styles.err.Render("✗ Task failed")
	}

	var b strings.Builder
	b.WriteString(title)
	b.WriteString(fmt.Sprintf("\n\nTask: %s (%s)\n", n.TaskID, n.TaskType))
	if n.Final.Message != "" {
		b.WriteString(fmt.Sprintf("Message: %s\n", n.Final.Message))
	}
	if n.Final.OutputRef != "" {
		b.WriteString(fmt.Sprintf("Output: %s\n", n.Final.OutputRef))
	}
	if n.Incomplete {
		b.WriteString(styles.warn.Render("\nResolved without a final server status; output may be incomplete.\n"))
	}

	b.WriteString("\n" + m.help.ShortHelpView([]key.Binding{m.keys.quit}))
	return b.String()
}

func (m *Model) waitForUpdate() tea.Cmd {
	return func() tea.Msg {
		u, ok := <-m.updates
		if !ok {
			return nil
		}
		return updateMsg(u)
	}
}

func (m *Model) waitForTerminal() tea.Cmd {
	return func() tea.Msg {
		n, ok := <-m.terminal
		if !ok {
			return nil
		}
		return terminalMsg(n)
	}
}

func (m *Model) requestCancel() tea.Cmd {
	taskID := m.taskID
	cancel := m.cancel
	return func() tea.Msg {
		return cancelResultMsg{err: cancel(taskID)}
	}
}
