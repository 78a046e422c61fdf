package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/steve-dickinson/ai-modernisation-factory/cli"
	"github.com/steve-dickinson/ai-modernisation-factory/internal/app"
	"github.com/steve-dickinson/ai-modernisation-factory/internal/config"
	"github.com/steve-dickinson/ai-modernisation-factory/internal/nvim"
	"github.com/steve-dickinson/ai-modernisation-factory/internal/source"
	"github.com/steve-dickinson/ai-modernisation-factory/internal/state"
	"github.com/steve-dickinson/ai-modernisation-factory/internal/ui"
)

var (
	flags  cli.Flags
	cfg    config.Config
	logger *zap.Logger
	editor *nvim.Manager

	inputPath  string
	schemaPath string
	checkDiff  bool
	promptFile string
	branch     string
)

var rootCmd = &cobra.Command{
	Use:   "modernise",
	Short: "Turn agent output into validated artifacts and safely applied patches",
	Long: `modernise extracts JSON documents and unified diffs from free-form generator
output, repairs and validates the diffs, applies them to the target repository
under a path allowlist, and runs the project's standards gate, asking the agent
for corrective patches when lint or tests fail.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = flags.Load(cmd.Flags())
		if err != nil {
			return err
		}
		logger, err = cli.NewLogger(cfg.Logging)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		editor.Close()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var jsonCmd = &cobra.Command{
	Use:   "json",
	Short: "Extract the JSON document from generator output",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		text, err := readInput()
		if err != nil {
			return err
		}
		doc, err := a.ExtractDocument(text, schemaPath)
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(doc.Value, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

var fixDiffCmd = &cobra.Command{
	Use:   "fix-diff",
	Short: "Extract the diff from generator output and print it with repaired hunk headers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		text, err := readInput()
		if err != nil {
			return err
		}
		out, report, err := a.FixDiff(text, checkDiff)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), out)
		if checkDiff {
			for _, w := range report.Warnings {
				ui.Warning(w)
			}
			ui.Success("Diff is valid and touches %d allowed file(s)", len(report.TouchedPaths))
		}
		return nil
	},
}

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply the diff in generator output, then run the standards gate",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(true)
		if err != nil {
			return err
		}
		text, err := readInput()
		if err != nil {
			return err
		}
		summary, err := a.ApplyText(cmd.Context(), text)
		ui.PrintSummary(summary)
		return err
	},
}

var implementCmd = &cobra.Command{
	Use:   "implement",
	Short: "Ask the agent for a patch and apply it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt, err := os.ReadFile(promptFile)
		if err != nil {
			return fmt.Errorf("failed to read prompt: %w", err)
		}
		a, err := newApp(true)
		if err != nil {
			return err
		}
		summary, err := a.Implement(cmd.Context(), string(prompt), branch)
		if summary.RunID != "" {
			ui.PrintSummary(summary)
		}
		return err
	},
}

var gateCmd = &cobra.Command{
	Use:   "gate",
	Short: "Run the standards gate once",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		if err := a.Gate(cmd.Context()); err != nil {
			return err
		}
		ui.Success("Standards gate passed")
		return nil
	},
}

var undoCmd = &cobra.Command{
	Use:   "undo",
	Short: "Reverse the patches applied by the last run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(true)
		if err != nil {
			return err
		}
		entry, err := a.Undo(cmd.Context())
		if errors.Is(err, state.ErrNothingToUndo) {
			ui.Warning("Nothing to undo.")
			return nil
		}
		if err != nil {
			return err
		}
		ui.PrintHistorySummary("undo", entry.RunID, patchFiles(entry))
		return nil
	},
}

var redoCmd = &cobra.Command{
	Use:   "redo",
	Short: "Re-apply the patches of the last undone run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(true)
		if err != nil {
			return err
		}
		entry, err := a.Redo(cmd.Context())
		if errors.Is(err, state.ErrNothingToRedo) {
			ui.Warning("Nothing to redo.")
			return nil
		}
		if err != nil {
			return err
		}
		ui.PrintHistorySummary("redo", entry.RunID, patchFiles(entry))
		return nil
	},
}

func init() {
	flags.Register(rootCmd.PersistentFlags())

	for _, c := range []*cobra.Command{jsonCmd, fixDiffCmd, applyCmd} {
		c.Flags().StringVarP(&inputPath, "input", "i", "", "Read generator output from a file instead of stdin or the clipboard.")
	}
	jsonCmd.Flags().StringVar(&schemaPath, "schema", "", "JSON Schema file the document must satisfy.")
	fixDiffCmd.Flags().BoolVar(&checkDiff, "check", false, "Also validate the diff and check it against the path allowlist.")
	implementCmd.Flags().StringVarP(&promptFile, "prompt-file", "p", "", "File holding the prompt for the agent.")
	implementCmd.Flags().StringVarP(&branch, "branch", "b", "", "Check out this branch before applying.")
	_ = implementCmd.MarkFlagRequired("prompt-file")

	rootCmd.AddCommand(jsonCmd, fixDiffCmd, applyCmd, implementCmd, gateCmd, undoCmd, redoCmd)
}

// newApp builds the App. withEditor connects to a surrounding Neovim so
// buffers reload after the tree changes.
func newApp(withEditor bool) (*app.App, error) {
	opts := app.Options{}
	if withEditor {
		var err error
		editor, err = nvim.Connect(nvim.Address(), cfg.TargetDir, logger)
		if err != nil {
			logger.Warn("not reloading editor buffers", zap.Error(err))
		} else if editor != nil {
			opts.Editor = editor
		}
	}
	return app.New(cfg, logger, opts)
}

func readInput() (string, error) {
	text, err := source.New(inputPath).Content()
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("no input: pass --input, pipe text on stdin or copy it to the clipboard")
	}
	return text, nil
}

func patchFiles(e state.Entry) []string {
	out := make([]string, len(e.Patches))
	for i, p := range e.Patches {
		out[i] = filepath.Join(cfg.TargetDir, state.DirName, state.HistoryDir, p.File)
	}
	return out
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.Error("Error: %v", err)
		var de *app.DetailedError
		if errors.As(err, &de) {
			fmt.Fprintf(os.Stderr, "\n--- Stack Trace ---\n%s\n", de.Stack)
		}
		stop()
		os.Exit(1)
	}
}
