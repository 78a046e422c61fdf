package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoJSONFound                = errors.New("no valid JSON found")
	ErrNoDiffFound                = errors.New("no unified diff found")
	ErrMalformedHunkHeader        = errors.New("malformed hunk header")
	ErrInvalidDiff                = errors.New("invalid diff")
	ErrSchemaValidationFailed     = errors.New("schema validation failed")
	ErrDisallowedPath             = errors.New("patch touched disallowed files")
	ErrDryRunApplyFailed          = errors.New("patch does not apply cleanly")
	ErrApplyFailed                = errors.New("failed to apply patch")
	ErrValidationCommandFailed    = errors.New("validation command failed")
	ErrGateExhausted              = errors.New("gate attempts exhausted")
	ErrMissingRequiredFiles       = errors.New("required files missing")
	ErrExternalAgentTimeout       = errors.New("external agent timed out")
	ErrExternalAgentEmptyResponse = errors.New("external agent returned an empty response")
	ErrExternalAgentFailed        = errors.New("external agent invocation failed")
)

// NoDiffFoundError carries a bounded preview of the text that held no diff.
type NoDiffFoundError struct {
	Preview string
}

func (e *NoDiffFoundError) Error() string {
	return fmt.Sprintf("%s\n\nPreview:\n%s", ErrNoDiffFound, e.Preview)
}

func (e *NoDiffFoundError) Is(target error) bool { return target == ErrNoDiffFound }

// DiffValidationError wraps a failed ValidationReport.
type DiffValidationError struct {
	Report ValidationReport
}

func (e *DiffValidationError) Error() string {
	return "generated patch has validation errors:\n" + bulletList(e.Report.FatalIssues)
}

func (e *DiffValidationError) Is(target error) bool {
	if target == ErrInvalidDiff {
		return true
	}
	if target == ErrMalformedHunkHeader {
		for _, issue := range e.Report.FatalIssues {
			if strings.HasPrefix(issue, "Malformed hunk header") {
				return true
			}
		}
	}
	return false
}

// SchemaError lists every schema violation of an extracted document.
type SchemaError struct {
	Schema string
	Issues []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s (%s):\n%s", ErrSchemaValidationFailed, e.Schema, bulletList(e.Issues))
}

func (e *SchemaError) Is(target error) bool { return target == ErrSchemaValidationFailed }

// DisallowedPathError lists every destination path outside the allowlist.
type DisallowedPathError struct {
	Paths   []string
	Allowed []string
}

func (e *DisallowedPathError) Error() string {
	return fmt.Sprintf("%s:\n%s\nallowed prefixes: %s", ErrDisallowedPath, bulletList(e.Paths), strings.Join(e.Allowed, ", "))
}

func (e *DisallowedPathError) Is(target error) bool { return target == ErrDisallowedPath }

// ApplyError is returned when git refuses a patch, either on the dry run or the real apply.
type ApplyError struct {
	Kind      error
	PatchPath string
	Output    string
	Guidance  []string
}

func (e *ApplyError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	b.WriteString("\n\nPatch content saved to: ")
	b.WriteString(e.PatchPath)
	if out := strings.TrimSpace(e.Output); out != "" {
		b.WriteString("\n\nGit apply error:\n")
		b.WriteString(out)
	}
	if len(e.Guidance) > 0 {
		b.WriteString("\n\nSuggestions:\n")
		for i, g := range e.Guidance {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, g)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (e *ApplyError) Unwrap() error { return e.Kind }

// CommandFailedError is a failed validation step. Output is the combined
// stdout and stderr of the command, verbatim.
type CommandFailedError struct {
	Step       string
	Command    string
	ExitStatus int
	Output     string
}

func (e *CommandFailedError) Error() string {
	return fmt.Sprintf("Gate failed on %s (exit %d)\n\n%s", e.Command, e.ExitStatus, e.Output)
}

func (e *CommandFailedError) Is(target error) bool { return target == ErrValidationCommandFailed }

// GateExhaustedError is returned once the attempt budget is spent.
type GateExhaustedError struct {
	Attempts int
	Last     *CommandFailedError
}

func (e *GateExhaustedError) Error() string {
	return fmt.Sprintf("%s after %d attempt(s): %s", ErrGateExhausted, e.Attempts, e.Last.Error())
}

func (e *GateExhaustedError) Is(target error) bool { return target == ErrGateExhausted }

func (e *GateExhaustedError) Unwrap() error { return e.Last }

// MissingFilesError lists required project files that are absent.
type MissingFilesError struct {
	Files []string
}

func (e *MissingFilesError) Error() string {
	return fmt.Sprintf("standards gate failed (%s):\n%s", ErrMissingRequiredFiles, bulletList(e.Files))
}

func (e *MissingFilesError) Is(target error) bool { return target == ErrMissingRequiredFiles }

// AgentError describes a failed external agent invocation.
type AgentError struct {
	Kind     error
	Command  string
	ExitCode int
	Stderr   string
	Preview  string
}

func (e *AgentError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Kind, e.Command)
	if e.ExitCode != 0 {
		fmt.Fprintf(&b, " (exit %d)", e.ExitCode)
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		b.WriteString("\n\n--- agent stderr ---\n")
		b.WriteString(s)
	}
	if s := strings.TrimSpace(e.Preview); s != "" {
		b.WriteString("\n\n--- agent stdout (preview) ---\n")
		b.WriteString(s)
	}
	return b.String()
}

func (e *AgentError) Unwrap() error { return e.Kind }

// Preview truncates s to at most n bytes without splitting a UTF-8 sequence.
func Preview(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8Start(s[cut]) {
		cut--
	}
	return s[:cut]
}

func utf8Start(b byte) bool { return b&0xC0 != 0x80 }

func bulletList(items []string) string {
	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = "- " + it
	}
	return strings.Join(lines, "\n")
}
