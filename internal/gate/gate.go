// Package gate runs the target project's standards checks and drives the fix loop.
package gate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/steve-dickinson/ai-modernisation-factory/internal/config"
	"github.com/steve-dickinson/ai-modernisation-factory/internal/shell"
	"github.com/steve-dickinson/ai-modernisation-factory/model"
)

// Gate checks required files, installs dependencies and runs the declared npm scripts.
type Gate struct {
	runner   shell.Runner
	log      *zap.Logger
	dir      string
	required []string
	steps    []string
	install  bool
	timeout  time.Duration
	attempt  model.GateAttempt
}

func New(runner shell.Runner, cfg config.Config, log *zap.Logger) *Gate {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gate{
		runner:   runner,
		log:      log,
		dir:      cfg.TargetDir,
		required: cfg.Gate.RequiredFiles,
		steps:    cfg.Gate.Steps,
		install:  cfg.Gate.InstallDependencies,
		timeout:  cfg.GateCommandTimeout(),
	}
}

// Run executes the gate once. A failing step yields *model.CommandFailedError;
// missing required files yield *model.MissingFilesError.
func (g *Gate) Run(ctx context.Context) error {
	g.attempt = model.GateAttempt{}

	var missing []string
	for _, f := range g.required {
		if _, err := os.Stat(filepath.Join(g.dir, f)); errors.Is(err, os.ErrNotExist) {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return &model.MissingFilesError{Files: missing}
	}

	scripts, hasPackage, err := readScripts(filepath.Join(g.dir, "package.json"))
	if err != nil {
		return err
	}
	if !hasPackage {
		g.log.Info("no package.json, skipping npm steps", zap.String("dir", g.dir))
		g.attempt = model.GateAttempt{Passed: true}
		return nil
	}

	if g.install {
		if err := g.installDependencies(ctx); err != nil {
			return err
		}
	}

	for _, step := range g.steps {
		if _, ok := scripts[step]; !ok {
			g.log.Debug("script not declared, skipping", zap.String("step", step))
			continue
		}
		if err := g.runStep(ctx, step, []string{"run", step}); err != nil {
			return err
		}
	}
	g.attempt.Passed = true
	return nil
}

func (g *Gate) installDependencies(ctx context.Context) error {
	if exists(filepath.Join(g.dir, "node_modules")) {
		return nil
	}
	args := []string{"install"}
	if exists(filepath.Join(g.dir, "package-lock.json")) {
		args = []string{"ci"}
	}
	return g.runStep(ctx, "install", args)
}

func (g *Gate) runStep(ctx context.Context, step string, args []string) error {
	cmd := shell.Command{Name: "npm", Args: args, Dir: g.dir, Timeout: g.timeout, Passthrough: true}
	g.log.Info("running gate step", zap.String("cmd", cmd.String()))

	res, err := g.runner.Run(ctx, cmd)
	g.attempt = model.GateAttempt{Command: cmd.String(), ExitStatus: res.ExitCode, Output: res.Combined}
	if err != nil && !errors.Is(err, shell.ErrTimeout) {
		return fmt.Errorf("failed to run %s: %w", cmd, err)
	}
	if err != nil || res.ExitCode != 0 {
		output := res.Combined
		if err != nil {
			output += "\n" + err.Error()
		}
		g.attempt.Output = output
		return &model.CommandFailedError{
			Step:       step,
			Command:    cmd.String(),
			ExitStatus: res.ExitCode,
			Output:     output,
		}
	}
	return nil
}

// readScripts returns the scripts map of package.json. A missing file is not an error.
func readScripts(path string) (map[string]json.RawMessage, bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var pkg struct {
		Scripts map[string]json.RawMessage `json:"scripts"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, true, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return pkg.Scripts, true, nil
}

// LastAttempt describes the last command run by the most recent Run.
func (g *Gate) LastAttempt() model.GateAttempt { return g.attempt }

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
