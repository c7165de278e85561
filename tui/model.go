package tui

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"videoforge/batch"
)

// Phase represents the current application state
type Phase int

const (
	PhaseRunning Phase = iota
	PhaseCancelling
	PhaseDone
)

// EventMsg wraps one Manager event for the Bubble Tea loop.
type EventMsg struct {
	Event batch.Event
}

// Model is the Bubble Tea model for the TUI
type Model struct {
	Manager *batch.Manager

	Phase       Phase
	Jobs        []batch.Job
	Overall     float64
	Stats       batch.Stats
	OverallBar  progress.Model
	JobBar      progress.Model
	LogViewport viewport.Model
	ShowLogs    bool
	Width       int
	Height      int
	StartTime   time.Time
	logLines    []string
}

// NewModel creates a new TUI model
func NewModel(mgr *batch.Manager) Model {
	overall := progress.New(
		progress.WithGradient("#7C3AED", "#10B981"),
		progress.WithWidth(50),
		progress.WithoutPercentage(),
	)
	jobBar := progress.New(
		progress.WithGradient("#06B6D4", "#10B981"),
		progress.WithWidth(30),
		progress.WithoutPercentage(),
	)

	vp := viewport.New(80, 12)
	vp.SetContent("")

	return Model{
		Manager:     mgr,
		Phase:       PhaseRunning,
		Jobs:        mgr.Jobs(),
		OverallBar:  overall,
		JobBar:      jobBar,
		LogViewport: vp,
		StartTime:   time.Now(),
	}
}

// Init starts the batch and begins consuming its events.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tea.EnterAltScreen,
		m.startBatch(),
	)
}

func (m Model) startBatch() tea.Cmd {
	return func() tea.Msg {
		m.Manager.Start()
		return EventMsg{Event: <-m.Manager.Events()}
	}
}

func (m Model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		return EventMsg{Event: <-m.Manager.Events()}
	}
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.Phase == PhaseDone {
				return m, tea.Quit
			}
			m.Manager.CancelAll()
			m.Phase = PhaseCancelling
		case "c":
			if m.Phase == PhaseRunning {
				m.Manager.CancelCurrent()
			}
		case "l":
			m.ShowLogs = !m.ShowLogs
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.OverallBar.Width = msg.Width - 20
		m.LogViewport.Width = msg.Width - 4

		logHeight := msg.Height - len(m.Jobs) - 14
		if logHeight < 3 {
			logHeight = 3
		}
		m.LogViewport.Height = logHeight

	case EventMsg:
		switch ev := msg.Event.(type) {
		case batch.JobStarted:
			m.Jobs = m.Manager.Jobs()

		case batch.JobProgress:
			if ev.Index < len(m.Jobs) {
				m.Jobs[ev.Index].Progress = ev.Fraction
			}
			m.Overall = ev.Overall

		case batch.JobLog:
			m.logLines = append(m.logLines, ev.Line)
			if len(m.logLines) > 400 {
				m.logLines = m.logLines[len(m.logLines)-400:]
			}
			m.LogViewport.SetContent(strings.Join(m.logLines, "\n"))
			m.LogViewport.GotoBottom()

		case batch.JobFinished:
			m.Jobs = m.Manager.Jobs()

		case batch.BatchDone:
			m.Phase = PhaseDone
			m.Stats = ev.Stats
			m.Jobs = m.Manager.Jobs()
			return m, nil
		}
		cmds = append(cmds, m.waitForEvent())
	}

	if m.ShowLogs {
		var cmd tea.Cmd
		m.LogViewport, cmd = m.LogViewport.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}
