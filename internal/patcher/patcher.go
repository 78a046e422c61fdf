package patcher

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/steve-dickinson/ai-modernisation-factory/internal/shell"
	"github.com/steve-dickinson/ai-modernisation-factory/model"
)

// Applier applies saved patch files to a working tree with git.
type Applier struct {
	runner shell.Runner
	dir    string
	log    *zap.Logger
	// root and prefix are set when the tree is a subdirectory of its repository.
	root   string
	prefix string
	// Relaxed adds --3way when the validator warned about placeholder hashes.
	Relaxed bool
}

// NewApplier creates an Applier rooted at dir.
func NewApplier(runner shell.Runner, dir string, log *zap.Logger) *Applier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Applier{runner: runner, dir: dir, log: log}
}

// UseRepoRoot makes git run from top, the root of the repository holding the
// tree, with patch paths prefixed by the tree's location inside it. git apply
// started in a subdirectory would otherwise resolve paths against the root.
func (a *Applier) UseRepoRoot(top string) error {
	dir, err := realPath(a.dir)
	if err != nil {
		return err
	}
	root, err := realPath(top)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("tree %s is not inside repository %s", a.dir, top)
	}
	if rel == "." {
		a.root, a.prefix = "", ""
		return nil
	}
	a.root, a.prefix = root, filepath.ToSlash(rel)
	a.log.Debug("applying from repository root", zap.String("root", root), zap.String("directory", a.prefix))
	return nil
}

// realPath makes p absolute and resolves symlinks when p exists.
func realPath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return abs, nil
}

func (a *Applier) workDir() string {
	if a.root != "" {
		return a.root
	}
	return a.dir
}

// Apply dry-runs the patch and, only if that succeeds, applies it with
// whitespace fixing. The tree is never touched when the dry run fails.
func (a *Applier) Apply(ctx context.Context, patchPath string, report model.ValidationReport) error {
	name := a.relative(patchPath)
	args := []string{"apply"}
	if a.Relaxed && report.HasPlaceholderHashes() {
		a.log.Info("placeholder hashes present, using three-way apply", zap.String("patch", name))
		args = append(args, "--3way")
	}

	check := append(append([]string{}, args...), "--check", name)
	if err := a.git(ctx, check, false, model.ErrDryRunApplyFailed, patchPath); err != nil {
		return err
	}

	apply := append(append([]string{}, args...), "--whitespace=fix", name)
	if err := a.git(ctx, apply, true, model.ErrApplyFailed, patchPath); err != nil {
		return err
	}
	a.log.Info("patch applied", zap.String("patch", name))
	return nil
}

// Reverse undoes a previously applied patch, again dry-running first.
func (a *Applier) Reverse(ctx context.Context, patchPath string) error {
	name := a.relative(patchPath)
	if err := a.git(ctx, []string{"apply", "-R", "--check", name}, false, model.ErrDryRunApplyFailed, patchPath); err != nil {
		return err
	}
	if err := a.git(ctx, []string{"apply", "-R", name}, true, model.ErrApplyFailed, patchPath); err != nil {
		return err
	}
	a.log.Info("patch reversed", zap.String("patch", name))
	return nil
}

func (a *Applier) git(ctx context.Context, args []string, passthrough bool, kind error, patchPath string) error {
	if a.prefix != "" && len(args) > 0 && args[0] == "apply" {
		args = append([]string{"apply", "--directory=" + a.prefix}, args[1:]...)
	}
	cmd := shell.Command{Name: "git", Args: args, Dir: a.workDir(), Passthrough: passthrough}
	res, err := a.runner.Run(ctx, cmd)
	if err != nil {
		return &model.ApplyError{
			Kind:      kind,
			PatchPath: patchPath,
			Output:    strings.TrimSpace(res.Combined + "\n" + err.Error()),
			Guidance:  a.guidance(patchPath),
		}
	}
	if res.ExitCode != 0 {
		a.log.Warn("git apply failed",
			zap.String("cmd", cmd.String()),
			zap.Int("exit", res.ExitCode))
		output := res.Stderr
		if strings.TrimSpace(output) == "" {
			output = res.Combined
		}
		return &model.ApplyError{
			Kind:      kind,
			PatchPath: patchPath,
			Output:    output,
			Guidance:  a.guidance(patchPath),
		}
	}
	return nil
}

func (a *Applier) guidance(patchPath string) []string {
	name := a.relative(patchPath)
	apply := "git apply --reject"
	if a.prefix != "" {
		apply += " --directory=" + a.prefix
	}
	return []string{
		fmt.Sprintf("Review the patch file: %s", name),
		fmt.Sprintf("Apply manually: cd %s && %s %s", a.workDir(), apply, name),
		"Regenerate with better context",
	}
}

// relative returns patchPath relative to the directory git runs in when it
// lives inside the tree. Relative paths are taken as relative to the tree.
func (a *Applier) relative(patchPath string) string {
	rel := patchPath
	if filepath.IsAbs(patchPath) {
		if a.dir == "" {
			return patchPath
		}
		dir, err := filepath.Abs(a.dir)
		if err != nil {
			return patchPath
		}
		rel, err = filepath.Rel(dir, patchPath)
		if err != nil || strings.HasPrefix(rel, "..") {
			return patchPath
		}
	}
	if a.prefix != "" {
		return filepath.Join(filepath.FromSlash(a.prefix), rel)
	}
	return rel
}
