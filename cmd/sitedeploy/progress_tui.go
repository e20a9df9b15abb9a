package main

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/openmined/sitedeploy/internal/sync"
)

type statusMsg string

type syncDoneMsg struct {
	result *sync.SyncResult
	err    error
}

type progressModel struct {
	spinner spinner.Model
	lines   <-chan string
	cancel  context.CancelFunc

	line   string
	done   bool
	result *sync.SyncResult
	err    error
}

func newProgressModel(lines <-chan string, cancel context.CancelFunc) progressModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = cyan

	return progressModel{
		spinner: s,
		lines:   lines,
		cancel:  cancel,
		line:    "Syncing...",
	}
}

func waitForStatus(lines <-chan string) tea.Cmd {
	return func() tea.Msg {
		line, ok := <-lines
		if !ok {
			return nil
		}
		return statusMsg(line)
	}
}

func (m progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForStatus(m.lines))
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case statusMsg:
		m.line = string(msg)
		return m, waitForStatus(m.lines)

	case syncDoneMsg:
		m.done = true
		m.result, m.err = msg.result, msg.err
		return m, tea.Quit

	case tea.KeyMsg:
		// the sync winds down on cancel and reports back with syncDoneMsg
		if msg.String() == "ctrl+c" {
			m.line = "Cancelling..."
			m.cancel()
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m progressModel) View() string {
	if m.done {
		return ""
	}
	return m.spinner.View() + " " + m.line + "\n"
}

// runWithSpinner renders status lines behind a spinner while the engine runs.
func runWithSpinner(ctx context.Context, engine *sync.SyncEngine, in io.Reader, out io.Writer) (*sync.SyncResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := engine.Status().Subscribe()
	defer engine.Status().Unsubscribe(lines)

	p := tea.NewProgram(newProgressModel(lines, cancel), tea.WithInput(in), tea.WithOutput(out))

	done := make(chan syncDoneMsg, 1)
	go func() {
		result, err := engine.RunSync(ctx)
		msg := syncDoneMsg{result: result, err: err}
		done <- msg
		p.Send(msg)
	}()

	if _, err := p.Run(); err != nil {
		slog.Debug("progress ui stopped", "error", err)
		cancel()
	}
	msg := <-done
	return msg.result, msg.err
}

// runPlain logs status lines instead of drawing them.
func runPlain(ctx context.Context, engine *sync.SyncEngine) (*sync.SyncResult, error) {
	lines := engine.Status().Subscribe()
	logged := make(chan struct{})
	go func() {
		defer close(logged)
		for line := range lines {
			if strings.HasPrefix(line, "Uploading ") {
				continue
			}
			slog.Debug("status", "line", line)
		}
	}()

	result, err := engine.RunSync(ctx)
	engine.Status().Unsubscribe(lines)
	<-logged
	return result, err
}
