// Package shelltest provides a scripted shell.Runner for tests.
package shelltest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/steve-dickinson/ai-modernisation-factory/internal/shell"
)

// Response is the canned outcome for a command line.
type Response struct {
	Result shell.Result
	Err    error
	// Do runs before the response is returned, e.g. to touch files.
	Do func(cmd shell.Command)
}

// Fake matches commands by the prefix of their rendered command line.
// Unmatched commands succeed with empty output.
type Fake struct {
	mu        sync.Mutex
	responses []match
	Calls     []shell.Command
}

type match struct {
	prefix string
	queue  []Response
}

// On registers responses for commands whose line starts with prefix. Multiple
// responses are served in order; the last one repeats.
func (f *Fake) On(prefix string, responses ...Response) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, match{prefix: prefix, queue: responses})
	return f
}

func (f *Fake) Run(_ context.Context, cmd shell.Command) (shell.Result, error) {
	f.mu.Lock()
	f.Calls = append(f.Calls, cmd)
	line := cmd.String()
	var resp *Response
	for i := range f.responses {
		m := &f.responses[i]
		if !strings.HasPrefix(line, m.prefix) || len(m.queue) == 0 {
			continue
		}
		r := m.queue[0]
		if len(m.queue) > 1 {
			m.queue = m.queue[1:]
		}
		resp = &r
		break
	}
	f.mu.Unlock()

	if resp == nil {
		return shell.Result{}, nil
	}
	if resp.Do != nil {
		resp.Do(cmd)
	}
	return resp.Result, resp.Err
}

// Lines returns the rendered command lines seen so far.
func (f *Fake) Lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.Calls))
	for i, c := range f.Calls {
		out[i] = c.String()
	}
	return out
}

// Exit builds a Response for a command that exited with code and output.
func Exit(code int, output string) Response {
	return Response{Result: shell.Result{ExitCode: code, Stdout: output, Combined: output}}
}

// Fail builds a Response for a command that could not run.
func Fail(format string, a ...any) Response {
	return Response{Result: shell.Result{ExitCode: -1}, Err: fmt.Errorf(format, a...)}
}
