// Package agent calls the external generator that turns a prompt into free-form text.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/steve-dickinson/ai-modernisation-factory/internal/config"
	"github.com/steve-dickinson/ai-modernisation-factory/internal/shell"
	"github.com/steve-dickinson/ai-modernisation-factory/model"
)

const (
	ModePrompt      = "prompt"
	ModeInteractive = "interactive"
)

// Agent produces raw text for a prompt. The text is untrusted.
type Agent interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// CLIAgent runs an assistant CLI such as `copilot` in the target tree.
type CLIAgent struct {
	runner        shell.Runner
	log           *zap.Logger
	command       string
	mode          string
	dir           string
	timeout       time.Duration
	minLength     int
	previewLength int
}

// NewCLIAgent configures a CLIAgent from cfg.
func NewCLIAgent(runner shell.Runner, cfg config.Config, log *zap.Logger) *CLIAgent {
	if log == nil {
		log = zap.NewNop()
	}
	return &CLIAgent{
		runner:        runner,
		log:           log,
		command:       cfg.Agent.Command,
		mode:          cfg.Agent.Mode,
		dir:           cfg.TargetDir,
		timeout:       cfg.AgentTimeout(),
		minLength:     cfg.Agent.MinResponseLength,
		previewLength: cfg.Agent.StdoutPreviewLength,
	}
}

// WithMode returns a copy of the agent using mode.
func (a *CLIAgent) WithMode(mode string) *CLIAgent {
	cp := *a
	cp.mode = mode
	return &cp
}

// Generate runs the CLI and returns its stdout. Timeouts, non-zero exits and
// blank or too-short output are errors; nothing is salvaged from a timed-out run.
func (a *CLIAgent) Generate(ctx context.Context, prompt string) (string, error) {
	cmd := shell.Command{Name: a.command, Dir: a.dir, Timeout: a.timeout}
	switch a.mode {
	case ModePrompt, "":
		cmd.Args = []string{"-p", prompt}
	case ModeInteractive:
		cmd.Args = []string{"-i"}
		cmd.Stdin = prompt + "\n"
	default:
		return "", fmt.Errorf("unknown agent mode: %s", a.mode)
	}

	// The prompt can be long; log the command without it.
	display := a.command + " -p <prompt>"
	if a.mode == ModeInteractive {
		display = a.command + " -i"
	}
	a.log.Info("calling agent", zap.String("cmd", display), zap.Int("prompt_bytes", len(prompt)), zap.Duration("timeout", a.timeout))

	res, err := a.runner.Run(ctx, cmd)
	if err != nil {
		kind := model.ErrExternalAgentFailed
		if res.TimedOut || errors.Is(err, shell.ErrTimeout) {
			kind = model.ErrExternalAgentTimeout
		}
		return "", &model.AgentError{
			Kind:     kind,
			Command:  display,
			ExitCode: res.ExitCode,
			Stderr:   res.Stderr,
			Preview:  model.Preview(res.Stdout, a.previewLength),
		}
	}
	if res.ExitCode != 0 {
		return "", &model.AgentError{
			Kind:     model.ErrExternalAgentFailed,
			Command:  display,
			ExitCode: res.ExitCode,
			Stderr:   res.Stderr,
			Preview:  model.Preview(res.Stdout, a.previewLength),
		}
	}

	if err := checkResponse(res.Stdout, a.minLength); err != nil {
		return "", &model.AgentError{
			Kind:    err,
			Command: display,
			Stderr:  res.Stderr,
			Preview: model.Preview(res.Stdout, a.previewLength),
		}
	}
	a.log.Debug("agent responded", zap.Int("bytes", len(res.Stdout)), zap.Duration("took", res.Duration))
	return res.Stdout, nil
}

func checkResponse(out string, minLength int) error {
	trimmed := strings.TrimSpace(out)
	if trimmed == "" || len(trimmed) < minLength {
		return model.ErrExternalAgentEmptyResponse
	}
	return nil
}

// New selects the backend named by cfg.Agent.Backend.
func New(ctx context.Context, runner shell.Runner, cfg config.Config, log *zap.Logger) (Agent, error) {
	switch cfg.Agent.Backend {
	case "copilot", "":
		return NewCLIAgent(runner, cfg, log), nil
	case "gemini":
		return NewGeminiAgent(ctx, cfg, log)
	default:
		return nil, fmt.Errorf("unknown agent backend: %s", cfg.Agent.Backend)
	}
}
