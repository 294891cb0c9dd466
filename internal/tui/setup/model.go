// Package setup is the operator TUI for a running capture: it shows the
// supervisor status live and sends continue and cancel.
package setup

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/steveyegge/authcap/internal/supervisor"
)

// pollInterval is how often status is refreshed when no event stream is
// attached.
const pollInterval = 2 * time.Second

// requestTimeout bounds each control request.
const requestTimeout = 10 * time.Second

// Controller is the control surface the TUI drives.
type Controller interface {
	Continue(ctx context.Context) (supervisor.Result, error)
	Cancel(ctx context.Context) (supervisor.Result, error)
	Status(ctx context.Context) (supervisor.Status, error)
}

// Model is the bubbletea model for the setup TUI.
type Model struct {
	ctrl   Controller
	events <-chan supervisor.Event

	width int

	status    supervisor.Status
	hasStatus bool
	message   string
	failed    bool
	err       error

	keys     KeyMap
	help     help.Model
	showHelp bool
	spinner  spinner.Model
}

// New creates the model. events may be nil, in which case status is polled.
func New(ctrl Controller, events <-chan supervisor.Event) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	return &Model{
		ctrl:    ctrl,
		events:  events,
		keys:    DefaultKeyMap(),
		help:    help.New(),
		spinner: s,
	}
}

// statusMsg carries a fetched status.
type statusMsg struct {
	status supervisor.Status
	err    error
}

// eventMsg carries one streamed event. ok is false when the stream closed.
type eventMsg struct {
	event supervisor.Event
	ok    bool
}

// resultMsg carries the outcome of continue or cancel.
type resultMsg struct {
	result supervisor.Result
	err    error
}

type tickMsg time.Time

// Init initializes the model.
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		m.fetchStatus(),
		m.spinner.Tick,
		tea.SetWindowTitle("authcap setup"),
	}
	if m.events != nil {
		cmds = append(cmds, m.waitForEvent())
	} else {
		cmds = append(cmds, m.tick())
	}
	return tea.Batch(cmds...)
}

func (m *Model) fetchStatus() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		st, err := m.ctrl.Status(ctx)
		return statusMsg{status: st, err: err}
	}
}

func (m *Model) waitForEvent() tea.Cmd {
	events := m.events
	return func() tea.Msg {
		ev, ok := <-events
		return eventMsg{event: ev, ok: ok}
	}
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *Model) sendContinue() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		res, err := m.ctrl.Continue(ctx)
		return resultMsg{result: res, err: err}
	}
}

func (m *Model) sendCancel() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		res, err := m.ctrl.Cancel(ctx)
		return resultMsg{result: res, err: err}
	}
}

// Update handles messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.showHelp = !m.showHelp
			m.help.ShowAll = m.showHelp
			return m, nil
		case key.Matches(msg, m.keys.Continue):
			return m, m.sendContinue()
		case key.Matches(msg, m.keys.Cancel):
			return m, m.sendCancel()
		case key.Matches(msg, m.keys.Refresh):
			return m, m.fetchStatus()
		}
		return m, nil

	case statusMsg:
		m.err = msg.err
		if msg.err == nil {
			m.status = msg.status
			m.hasStatus = true
		}
		return m, nil

	case eventMsg:
		if !msg.ok {
			m.events = nil
			return m, m.tick()
		}
		m.err = nil
		m.status = msg.event.Status
		m.hasStatus = true
		return m, m.waitForEvent()

	case resultMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.message = string(msg.result.Message)
		if msg.result.Error != "" {
			m.message += ": " + msg.result.Error
		}
		m.failed = !msg.result.OK
		// Events refresh the view when streaming; otherwise fetch now.
		if m.events == nil {
			return m, m.fetchStatus()
		}
		return m, nil

	case tickMsg:
		if m.events != nil {
			return m, nil
		}
		return m, tea.Batch(m.fetchStatus(), m.tick())

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}
