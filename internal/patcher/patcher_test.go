package patcher

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steve-dickinson/ai-modernisation-factory/internal/shell"
	"github.com/steve-dickinson/ai-modernisation-factory/internal/shell/shelltest"
	"github.com/steve-dickinson/ai-modernisation-factory/model"
)

func TestApplierDryRunThenApply(t *testing.T) {
	fake := &shelltest.Fake{}
	a := NewApplier(fake, "/work", nil)

	require.NoError(t, a.Apply(context.Background(), "/work/.modernise.patch", model.ValidationReport{Valid: true}))
	assert.Equal(t, []string{
		"git apply --check .modernise.patch",
		"git apply --whitespace=fix .modernise.patch",
	}, fake.Lines())
	assert.False(t, fake.Calls[0].Passthrough)
	assert.True(t, fake.Calls[1].Passthrough)
	assert.Equal(t, "/work", fake.Calls[1].Dir)
}

func TestApplierDryRunFailureSkipsRealApply(t *testing.T) {
	fake := (&shelltest.Fake{}).On("git apply --check", shelltest.Response{
		Result: shell.Result{ExitCode: 1, Stderr: "error: patch failed: src/a.js:1\n", Combined: "error: patch failed: src/a.js:1\n"},
	})
	a := NewApplier(fake, "/work", nil)

	err := a.Apply(context.Background(), "/work/.modernise.patch", model.ValidationReport{Valid: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrDryRunApplyFailed))
	assert.False(t, errors.Is(err, model.ErrApplyFailed))
	assert.Len(t, fake.Calls, 1, "real apply must not run after a failed dry run")

	var ae *model.ApplyError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, "/work/.modernise.patch", ae.PatchPath)
	assert.Contains(t, err.Error(), "Patch content saved to: /work/.modernise.patch")
	assert.Contains(t, err.Error(), "error: patch failed: src/a.js:1")
	assert.Contains(t, err.Error(), "git apply --reject .modernise.patch")
}

func TestApplierRealApplyFailure(t *testing.T) {
	fake := (&shelltest.Fake{}).On("git apply --whitespace=fix", shelltest.Exit(128, "fatal: corrupt patch"))
	a := NewApplier(fake, "/work", nil)

	err := a.Apply(context.Background(), ".modernise.patch", model.ValidationReport{Valid: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrApplyFailed))
}

func TestApplierRelaxedMode(t *testing.T) {
	fake := &shelltest.Fake{}
	a := NewApplier(fake, "/work", nil)
	a.Relaxed = true

	warned := model.ValidationReport{Valid: true, Warnings: []string{"Warning: placeholder"}}
	require.NoError(t, a.Apply(context.Background(), ".modernise.patch", warned))
	require.NoError(t, a.Apply(context.Background(), ".modernise.patch", model.ValidationReport{Valid: true}))
	assert.Equal(t, []string{
		"git apply --3way --check .modernise.patch",
		"git apply --3way --whitespace=fix .modernise.patch",
		"git apply --check .modernise.patch",
		"git apply --whitespace=fix .modernise.patch",
	}, fake.Lines())
}

func TestApplierReverse(t *testing.T) {
	fake := &shelltest.Fake{}
	a := NewApplier(fake, "/work", nil)
	require.NoError(t, a.Reverse(context.Background(), ".modernise/history/p.patch"))
	assert.Equal(t, []string{
		"git apply -R --check .modernise/history/p.patch",
		"git apply -R .modernise/history/p.patch",
	}, fake.Lines())
}

func TestApplierRunnerError(t *testing.T) {
	fake := (&shelltest.Fake{}).On("git", shelltest.Fail("git not found"))
	a := NewApplier(fake, "/work", nil)
	err := a.Apply(context.Background(), "p.patch", model.ValidationReport{})
	require.ErrorIs(t, err, model.ErrDryRunApplyFailed)
	assert.Contains(t, err.Error(), "git not found")
}

func TestGitChangeSummary(t *testing.T) {
	fake := (&shelltest.Fake{}).
		On("git diff --stat", shelltest.Exit(0, " src/a.js | 2 +-\n 1 file changed\n")).
		On("git diff --name-only", shelltest.Exit(0, "src/a.js\n\ntest/a.test.js\n"))
	g := NewGit(fake, "/work")

	sum, err := g.ChangeSummary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, " src/a.js | 2 +-\n 1 file changed", sum.Stat)
	assert.Equal(t, []string{"src/a.js", "test/a.test.js"}, sum.Files)
}

func TestGitCheckoutBranch(t *testing.T) {
	fake := (&shelltest.Fake{}).On("git checkout", shelltest.Exit(1, "fatal: not a git repository"))
	g := NewGit(fake, "/work")
	err := g.CheckoutBranch(context.Background(), "modernise/slice-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a git repository")
	assert.Equal(t, []string{"git checkout -B modernise/slice-1"}, fake.Lines())
}

// TestApplierWithGit exercises the whole chain against a real repository.
func TestApplierWithGit(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	dir := t.TempDir()
	runGit := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}
	runGit("init", "-q")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "a.js"), []byte("const a = 1\nmodule.exports = a\n"), 0o644))
	runGit("add", ".")
	runGit("-c", "user.email=t@example.com", "-c", "user.name=t", "commit", "-q", "-m", "init")

	raw := "diff --git a/src/a.js b/src/a.js\n--- a/src/a.js\n+++ b/src/a.js\n@@ -1,7 +1,9 @@\n-const a = 1\n+const a = 2\n module.exports = a\n"
	doc := RepairHunkHeaders(Parse(raw))
	report := Validate(doc)
	require.True(t, report.Valid, report.FatalIssues)
	require.NoError(t, CheckAllowed(doc, defaultAllow))

	patchPath := filepath.Join(dir, ".modernise.patch")
	require.NoError(t, os.WriteFile(patchPath, []byte(doc.String()), 0o644))

	runner := shell.NewExecRunner(nil).WithOutput(io.Discard, io.Discard)
	a := NewApplier(runner, dir, nil)
	require.NoError(t, a.Apply(context.Background(), patchPath, report))

	got, err := os.ReadFile(filepath.Join(dir, "src", "a.js"))
	require.NoError(t, err)
	assert.Equal(t, "const a = 2\nmodule.exports = a\n", string(got))

	sum, err := NewGit(runner, dir).ChangeSummary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"src/a.js"}, sum.Files)

	// Applying twice fails the dry run and leaves the tree alone.
	err = a.Apply(context.Background(), patchPath, report)
	require.ErrorIs(t, err, model.ErrDryRunApplyFailed)

	require.NoError(t, a.Reverse(context.Background(), patchPath))
	got, err = os.ReadFile(filepath.Join(dir, "src", "a.js"))
	require.NoError(t, err)
	assert.Equal(t, "const a = 1\nmodule.exports = a\n", string(got))
}

func TestGitWritesRenameTarget(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	dir := t.TempDir()
	runGit := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}
	runGit("init", "-q")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "a.js"), []byte("const a = 1\n"), 0o644))
	runGit("add", ".")
	runGit("-c", "user.email=t@example.com", "-c", "user.name=t", "commit", "-q", "-m", "init")

	raw := "diff --git a/src/a.js b/src/a.js\nsimilarity index 100%\nrename from src/a.js\nrename to evil/a.js\n"
	doc := Parse(raw)
	report := Validate(doc)
	require.True(t, report.Valid, report.FatalIssues)
	require.ErrorIs(t, CheckAllowed(doc, defaultAllow), model.ErrDisallowedPath)
	assert.Contains(t, report.TouchedPaths, "evil/a.js")

	// git writes to the "rename to" path, which is why the guard has to see it.
	patchPath := filepath.Join(dir, ".modernise.patch")
	require.NoError(t, os.WriteFile(patchPath, []byte(doc.String()), 0o644))
	runner := shell.NewExecRunner(nil).WithOutput(io.Discard, io.Discard)
	require.NoError(t, NewApplier(runner, dir, nil).Apply(context.Background(), patchPath, report))

	_, err := os.Stat(filepath.Join(dir, "evil", "a.js"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "src", "a.js"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestApplierUseRepoRoot(t *testing.T) {
	fake := &shelltest.Fake{}
	a := NewApplier(fake, "/repo/services/api", nil)
	require.NoError(t, a.UseRepoRoot("/repo"))

	require.NoError(t, a.Apply(context.Background(), "/repo/services/api/.modernise.patch", model.ValidationReport{Valid: true}))
	require.NoError(t, a.Reverse(context.Background(), ".modernise/history/p.patch"))
	assert.Equal(t, []string{
		"git apply --directory=services/api --check services/api/.modernise.patch",
		"git apply --directory=services/api --whitespace=fix services/api/.modernise.patch",
		"git apply --directory=services/api -R --check services/api/.modernise/history/p.patch",
		"git apply --directory=services/api -R services/api/.modernise/history/p.patch",
	}, fake.Lines())
	for _, c := range fake.Calls {
		assert.Equal(t, "/repo", c.Dir)
	}

	require.Error(t, NewApplier(fake, "/elsewhere", nil).UseRepoRoot("/repo"))

	same := NewApplier(fake, "/repo", nil)
	require.NoError(t, same.UseRepoRoot("/repo"))
	assert.Empty(t, same.prefix)
}

func TestApplierFromRepositorySubdirectoryWithGit(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	repo := t.TempDir()
	runGit := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = repo
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}
	runGit("init", "-q")
	tree := filepath.Join(repo, "svc")
	require.NoError(t, os.MkdirAll(filepath.Join(tree, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(tree, "src", "a.js"), []byte("const a = 1\n"), 0o644))
	runGit("add", ".")
	runGit("-c", "user.email=t@example.com", "-c", "user.name=t", "commit", "-q", "-m", "init")

	runner := shell.NewExecRunner(nil).WithOutput(io.Discard, io.Discard)
	top, err := NewGit(runner, tree).Toplevel(context.Background())
	require.NoError(t, err)

	a := NewApplier(runner, tree, nil)
	require.NoError(t, a.UseRepoRoot(top))

	doc := Parse("diff --git a/src/a.js b/src/a.js\n--- a/src/a.js\n+++ b/src/a.js\n@@ -1 +1 @@\n-const a = 1\n+const a = 2\n")
	patchPath := filepath.Join(tree, ".modernise.patch")
	require.NoError(t, os.WriteFile(patchPath, []byte(doc.String()), 0o644))
	require.NoError(t, a.Apply(context.Background(), patchPath, Validate(doc)))

	got, err := os.ReadFile(filepath.Join(tree, "src", "a.js"))
	require.NoError(t, err)
	assert.Equal(t, "const a = 2\n", string(got))
}
