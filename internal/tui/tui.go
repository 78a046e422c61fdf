// Package tui shows a spinner while a long step, such as the agent call, runs.
package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

var (
	labelStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("78"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("197"))
	faintStyle   = lipgloss.NewStyle().Faint(true)
)

type doneMsg struct{ err error }

type state int

const (
	stateRunning state = iota
	stateDone
	stateFailed
	stateCancelled
)

// Model is the bubbletea model for a single spinner line. The task runs with
// a context that ctrl+c cancels; the program only exits once the task returns.
type Model struct {
	label   string
	task    func(context.Context) error
	ctx     context.Context
	cancel  context.CancelFunc
	spinner spinner.Model
	state   state
	err     error
}

func New(ctx context.Context, label string, task func(context.Context) error) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	ctx, cancel := context.WithCancel(ctx)
	return Model{label: label, task: task, ctx: ctx, cancel: cancel, spinner: s}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.run)
}

func (m Model) run() tea.Msg {
	return doneMsg{err: m.task(m.ctx)}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" && m.state == stateRunning {
			m.state = stateCancelled
			m.cancel()
		}
	case doneMsg:
		m.err = msg.err
		if m.state == stateRunning {
			m.state = stateDone
			if msg.err != nil {
				m.state = stateFailed
			}
		}
		m.cancel()
		return m, tea.Quit
	default:
		if m.state == stateRunning {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
	}
	return m, nil
}

func (m Model) View() string {
	switch m.state {
	case stateRunning:
		return fmt.Sprintf("%s %s\n", m.spinner.View(), labelStyle.Render(m.label))
	case stateDone:
		return successStyle.Render("✓ "+m.label) + "\n"
	case stateFailed:
		return errorStyle.Render("✗ "+m.label) + "\n"
	default:
		return faintStyle.Render(m.label+" (cancelling)") + "\n"
	}
}

// ErrCancelled is returned when the user interrupts the spinner.
var ErrCancelled = errors.New("cancelled")

// Run runs task, animating a spinner on stderr when it is a terminal and
// animate is set. The task's error is returned unchanged. When the user
// presses ctrl+c the task's context is cancelled and, once the task has
// returned, ErrCancelled is reported.
func Run(ctx context.Context, label string, animate bool, task func(context.Context) error) error {
	if !animate || !isTerminal(os.Stderr) {
		return task(ctx)
	}
	return runProgram(New(ctx, label, task), os.Stderr)
}

func runProgram(m Model, out io.Writer, opts ...tea.ProgramOption) error {
	defer m.cancel()
	opts = append([]tea.ProgramOption{tea.WithOutput(out)}, opts...)
	final, err := tea.NewProgram(m, opts...).Run()
	if err != nil {
		return err
	}
	fm := final.(Model)
	if fm.state == stateCancelled {
		return ErrCancelled
	}
	return fm.err
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
