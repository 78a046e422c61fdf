// Package shell runs external commands with a deadline and captured output.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const waitDelay = 2 * time.Second

// ErrTimeout is returned when a command is killed because its deadline passed.
var ErrTimeout = errors.New("command timed out")

// Command describes one external process invocation.
type Command struct {
	Name  string
	Args  []string
	Dir   string
	Stdin string
	// Timeout of zero means no deadline beyond the caller's context.
	Timeout time.Duration
	// Passthrough mirrors stdout and stderr to the terminal while still capturing them.
	Passthrough bool
}

// String renders the command line for messages and logs.
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result is what a finished command produced. A non-zero exit is not an error:
// callers inspect ExitCode.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	// Combined interleaves stdout and stderr in write order.
	Combined string
	Duration time.Duration
	TimedOut bool
}

// Runner runs commands. Implementations must be safe to call sequentially from one goroutine.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// ExecRunner runs commands on the host with os/exec.
type ExecRunner struct {
	log    *zap.Logger
	stdout io.Writer
	stderr io.Writer
}

// NewExecRunner creates a runner that mirrors passthrough output to the process's stdio.
func NewExecRunner(log *zap.Logger) *ExecRunner {
	if log == nil {
		log = zap.NewNop()
	}
	return &ExecRunner{log: log, stdout: os.Stdout, stderr: os.Stderr}
}

// WithOutput returns a copy of the runner that mirrors passthrough output to the given writers.
func (r *ExecRunner) WithOutput(stdout, stderr io.Writer) *ExecRunner {
	cp := *r
	cp.stdout, cp.stderr = stdout, stderr
	return &cp
}

// Run executes cmd. The returned error is non-nil only when the process could
// not be started or was killed by its deadline.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	if cmd.Name == "" {
		return Result{ExitCode: -1}, fmt.Errorf("command name is required")
	}

	execCtx := ctx
	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	c := exec.CommandContext(execCtx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	// Grandchildren can hold the output pipes open after the process is killed.
	c.WaitDelay = waitDelay
	if cmd.Stdin != "" {
		c.Stdin = strings.NewReader(cmd.Stdin)
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	combined := &lockedBuffer{}
	outWriters := []io.Writer{&stdoutBuf, combined}
	errWriters := []io.Writer{&stderrBuf, combined}
	if cmd.Passthrough {
		outWriters = append(outWriters, r.stdout)
		errWriters = append(errWriters, r.stderr)
	}
	c.Stdout = io.MultiWriter(outWriters...)
	c.Stderr = io.MultiWriter(errWriters...)

	r.log.Debug("running command",
		zap.String("cmd", cmd.String()),
		zap.String("dir", cmd.Dir),
		zap.Duration("timeout", cmd.Timeout),
		zap.Bool("passthrough", cmd.Passthrough))

	start := time.Now()
	err := c.Run()
	res := Result{
		ExitCode: 0,
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
		Combined: combined.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		if cmd.Timeout > 0 && errors.Is(execCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			res.ExitCode = -1
			res.TimedOut = true
			r.log.Warn("command timed out", zap.String("cmd", cmd.String()), zap.Duration("timeout", cmd.Timeout))
			return res, fmt.Errorf("%w after %s: %s", ErrTimeout, cmd.Timeout, cmd)
		}
		if ctx.Err() != nil {
			res.ExitCode = -1
			return res, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			r.log.Debug("command exited non-zero",
				zap.String("cmd", cmd.String()),
				zap.Int("exit", res.ExitCode),
				zap.Duration("took", res.Duration))
			return res, nil
		}
		res.ExitCode = -1
		return res, fmt.Errorf("failed to run %s: %w", cmd.Name, err)
	}

	r.log.Debug("command finished", zap.String("cmd", cmd.String()), zap.Duration("took", res.Duration))
	return res, nil
}

// lockedBuffer lets the stdout and stderr copy goroutines share one buffer.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
