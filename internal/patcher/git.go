package patcher

import (
	"context"
	"fmt"
	"strings"

	"github.com/steve-dickinson/ai-modernisation-factory/internal/shell"
)

// Git runs the read-only and branch-level git commands the pipeline needs.
type Git struct {
	runner shell.Runner
	dir    string
}

// NewGit creates a Git helper rooted at dir.
func NewGit(runner shell.Runner, dir string) *Git {
	return &Git{runner: runner, dir: dir}
}

// ChangeSummary is what `git diff` reports after an apply.
type ChangeSummary struct {
	Stat  string
	Files []string
}

// ChangeSummary collects `git diff --stat` and `git diff --name-only`.
func (g *Git) ChangeSummary(ctx context.Context) (ChangeSummary, error) {
	stat, err := g.output(ctx, "diff", "--stat")
	if err != nil {
		return ChangeSummary{}, err
	}
	names, err := g.output(ctx, "diff", "--name-only")
	if err != nil {
		return ChangeSummary{}, err
	}

	var files []string
	for _, l := range strings.Split(names, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			files = append(files, l)
		}
	}
	return ChangeSummary{Stat: strings.TrimRight(stat, "\n"), Files: files}, nil
}

// CheckoutBranch creates or resets branch name at HEAD and switches to it.
func (g *Git) CheckoutBranch(ctx context.Context, name string) error {
	res, err := g.runner.Run(ctx, shell.Command{Name: "git", Args: []string{"checkout", "-B", name}, Dir: g.dir, Passthrough: true})
	if err != nil {
		return fmt.Errorf("failed to checkout branch %s: %w", name, err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("failed to checkout branch %s (exit %d): %s", name, res.ExitCode, strings.TrimSpace(res.Combined))
	}
	return nil
}

// Toplevel returns the root of the repository containing the tree.
func (g *Git) Toplevel(ctx context.Context) (string, error) {
	out, err := g.output(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (g *Git) output(ctx context.Context, args ...string) (string, error) {
	cmd := shell.Command{Name: "git", Args: args, Dir: g.dir}
	res, err := g.runner.Run(ctx, cmd)
	if err != nil {
		return "", fmt.Errorf("%s: %w", cmd, err)
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("%s failed (exit %d): %s", cmd, res.ExitCode, strings.TrimSpace(res.Combined))
	}
	return res.Stdout, nil
}
