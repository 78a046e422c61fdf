package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/steve-dickinson/ai-modernisation-factory/model"
)

var (
	HeaderColor  = color.New(color.FgBlue, color.Bold)
	InfoColor    = color.New(color.FgCyan)
	SuccessColor = color.New(color.FgGreen)
	WarningColor = color.New(color.FgYellow)
	ErrorColor   = color.New(color.FgRed)
	PathColor    = color.New(color.FgYellow)
	FaintColor   = color.New(color.Faint)
)

// Output is where messages go. Results meant for piping are written to stdout by the caller.
var Output io.Writer = os.Stderr

func Header(format string, a ...interface{}) {
	HeaderColor.Fprintf(Output, format+"\n", a...)
}

func Info(format string, a ...interface{}) {
	InfoColor.Fprintf(Output, format+"\n", a...)
}

func Success(format string, a ...interface{}) {
	SuccessColor.Fprintf(Output, format+"\n", a...)
}

func Warning(format string, a ...interface{}) {
	WarningColor.Fprintf(Output, format+"\n", a...)
}

func Error(format string, a ...interface{}) {
	ErrorColor.Fprintf(Output, format+"\n", a...)
}

func Path(format string, a ...interface{}) {
	PathColor.Fprintf(Output, "  "+format+"\n", a...)
}

// --- Summaries ---

func PrintSummary(s model.Summary) {
	Header("\n--- Modernise Summary ---")
	if s.Message != "" {
		Info(s.Message)
	}
	if s.RunID != "" {
		FaintColor.Fprintf(Output, "run %s\n", s.RunID)
	}

	if len(s.Touched) > 0 {
		Success("Patched %d file(s):", len(s.Touched))
		for _, f := range s.Touched {
			Path("- %s", f)
		}
	}
	for _, w := range s.Warnings {
		Warning(w)
	}
	if s.ChangeStat != "" {
		Info("\nChanges:")
		fmt.Fprintln(Output, s.ChangeStat)
	}

	if len(s.Attempts) > 0 {
		Info("\nGate attempts:")
		for _, a := range s.Attempts {
			cmd := a.Command
			if cmd == "" {
				cmd = "standards gate"
			}
			if a.Passed {
				Success("  %d. %s: passed", a.Index, cmd)
			} else {
				Error("  %d. %s: failed (exit %d)", a.Index, cmd, a.ExitStatus)
			}
		}
	}

	Info("\nArtifacts:")
	if s.PatchPath != "" {
		Path("- %s", s.PatchPath)
	}
	if s.FixPatchPath != "" {
		Path("- %s", s.FixPatchPath)
	}
}

func PrintHistorySummary(action, runID string, patches []string) {
	Header("\n--- %s Summary ---", strings.ToUpper(action[:1])+action[1:])
	if len(patches) == 0 {
		Info("No patches in run %s.", runID)
		return
	}
	Success("%s %d patch(es) of run %s:", strings.ToUpper(action[:1])+action[1:], len(patches), runID)
	for _, p := range patches {
		Path("- %s", p)
	}
}

// Suggestions prints numbered hints, e.g. for a patch with placeholder hashes.
func Suggestions(lines []string) {
	if len(lines) == 0 {
		return
	}
	Warning("\nSuggestions:")
	for _, l := range lines {
		fmt.Fprintf(Output, "  %s\n", l)
	}
}
