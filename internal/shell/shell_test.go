package shell

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func requireSh(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestExecRunnerCapturesOutput(t *testing.T) {
	requireSh(t)
	r := NewExecRunner(nil)

	res, err := r.Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "echo out; echo err 1>&2"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "out\n", res.Stdout)
	assert.Equal(t, "err\n", res.Stderr)
	assert.Contains(t, res.Combined, "out\n")
	assert.Contains(t, res.Combined, "err\n")
	assert.False(t, res.TimedOut)
}

func TestExecRunnerNonZeroExitIsNotAnError(t *testing.T) {
	requireSh(t)
	r := NewExecRunner(nil)

	res, err := r.Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "echo boom 1>&2; exit 3"}})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "boom\n", res.Combined)
}

func TestExecRunnerStdinAndDir(t *testing.T) {
	requireSh(t)
	dir := t.TempDir()
	r := NewExecRunner(nil)

	res, err := r.Run(context.Background(), Command{
		Name:  "sh",
		Args:  []string{"-c", "cat; pwd"},
		Dir:   dir,
		Stdin: "hello\n",
	})
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(res.Stdout), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "hello", lines[0])
	assert.Contains(t, lines[1], strings.TrimPrefix(dir, "/private"))
}

func TestExecRunnerTimeout(t *testing.T) {
	requireSh(t)
	r := NewExecRunner(nil)

	res, err := r.Run(context.Background(), Command{
		Name:    "sh",
		Args:    []string{"-c", "exec sleep 5"},
		Timeout: 50 * time.Millisecond,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.True(t, res.TimedOut)
	assert.Equal(t, -1, res.ExitCode)
}

func TestExecRunnerPassthrough(t *testing.T) {
	requireSh(t)
	var out, errOut bytes.Buffer
	r := NewExecRunner(nil).WithOutput(&out, &errOut)

	res, err := r.Run(context.Background(), Command{
		Name:        "sh",
		Args:        []string{"-c", "echo visible; echo warn 1>&2"},
		Passthrough: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "visible\n", out.String())
	assert.Equal(t, "warn\n", errOut.String())
	assert.Equal(t, "visible\n", res.Stdout)
}

func TestExecRunnerMissingBinary(t *testing.T) {
	r := NewExecRunner(nil)
	_, err := r.Run(context.Background(), Command{Name: "definitely-not-a-real-binary-xyz"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrTimeout))

	_, err = r.Run(context.Background(), Command{})
	require.Error(t, err)
}

func TestCommandString(t *testing.T) {
	assert.Equal(t, "git apply --check p.patch", Command{Name: "git", Args: []string{"apply", "--check", "p.patch"}}.String())
	assert.Equal(t, "npm", Command{Name: "npm"}.String())
}
