package app

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/steve-dickinson/ai-modernisation-factory/internal/agent"
	"github.com/steve-dickinson/ai-modernisation-factory/internal/artifact"
	"github.com/steve-dickinson/ai-modernisation-factory/internal/config"
	"github.com/steve-dickinson/ai-modernisation-factory/internal/fs"
	"github.com/steve-dickinson/ai-modernisation-factory/internal/gate"
	"github.com/steve-dickinson/ai-modernisation-factory/internal/nvim"
	"github.com/steve-dickinson/ai-modernisation-factory/internal/parser"
	"github.com/steve-dickinson/ai-modernisation-factory/internal/patcher"
	"github.com/steve-dickinson/ai-modernisation-factory/internal/schema"
	"github.com/steve-dickinson/ai-modernisation-factory/internal/shell"
	"github.com/steve-dickinson/ai-modernisation-factory/internal/state"
	"github.com/steve-dickinson/ai-modernisation-factory/internal/tui"
	"github.com/steve-dickinson/ai-modernisation-factory/internal/ui"
	"github.com/steve-dickinson/ai-modernisation-factory/model"
)

// App orchestrates the pipeline for one target tree.
type App struct {
	cfg      config.Config
	log      *zap.Logger
	runner   shell.Runner
	agent    agent.Agent
	files    *artifact.FileStore
	store    artifact.Store
	history  *state.Manager
	applier  *patcher.Applier
	git      *patcher.Git
	gate     gate.Validator
	schemas  *schema.Registry
	resolver *fs.PathResolver
	editor   *nvim.Manager
	newID    func() string
	rooted   bool
}

// DetailedError enhances a standard error with a stack trace.
type DetailedError struct {
	Err   error
	Stack []byte
}

func (e *DetailedError) Error() string {
	return e.Err.Error()
}

func (e *DetailedError) Unwrap() error { return e.Err }

// Options replaces collaborators, mostly for tests. Zero values get the real ones.
type Options struct {
	Runner shell.Runner
	Agent  agent.Agent
	Store  artifact.Store
	Gate   gate.Validator
	Editor *nvim.Manager
	NewID  func() string
}

// New creates an App. cfg must already be validated.
func New(cfg config.Config, log *zap.Logger, opts Options) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	runner := opts.Runner
	if runner == nil {
		runner = shell.NewExecRunner(log)
	}

	files, store, err := artifact.New(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize artifact store: %w", err)
	}
	if opts.Store != nil {
		store = opts.Store
	}

	history, err := state.New(cfg.TargetDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize state manager: %w", err)
	}
	schemas, err := schema.NewRegistry(schema.DefaultCacheSize)
	if err != nil {
		return nil, err
	}

	applier := patcher.NewApplier(runner, cfg.TargetDir, log)
	applier.Relaxed = cfg.Patch.RelaxedOnPlaceholder

	var g gate.Validator = gate.New(runner, cfg, log)
	if opts.Gate != nil {
		g = opts.Gate
	}
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	return &App{
		cfg:      cfg,
		log:      log,
		runner:   runner,
		agent:    opts.Agent,
		files:    files,
		store:    store,
		history:  history,
		applier:  applier,
		git:      patcher.NewGit(runner, cfg.TargetDir),
		gate:     g,
		schemas:  schemas,
		resolver: fs.NewPathResolver(cfg.TargetDir),
		editor:   opts.Editor,
		newID:    newID,
	}, nil
}

// recoverPanic turns a panic into a *DetailedError carrying the stack.
func recoverPanic(err *error) {
	if r := recover(); r != nil {
		*err = &DetailedError{
			Err:   fmt.Errorf("internal panic: %v", r),
			Stack: debug.Stack(),
		}
	}
}

// ExtractDocument finds the JSON value in text and, when schemaPath is set,
// validates it against that schema.
func (a *App) ExtractDocument(text, schemaPath string) (doc model.ExtractedJSON, err error) {
	defer recoverPanic(&err)

	doc, err = parser.ExtractJSON(text,
		parser.TaggedJSON{Open: a.cfg.JSON.OpenTag, Close: a.cfg.JSON.CloseTag},
		parser.BracketScan{},
	)
	if err != nil {
		return doc, err
	}
	a.log.Debug("extracted json", zap.String("source", string(doc.Source)), zap.Int("offset", doc.Offset))
	if schemaPath == "" {
		return doc, nil
	}
	return doc, a.schemas.ValidateFile(schemaPath, doc.Value)
}

// FixDiff extracts and repairs the diff in text without touching the tree.
// With check set the result is also validated and run through the path guard.
func (a *App) FixDiff(text string, check bool) (out string, report model.ValidationReport, err error) {
	defer recoverPanic(&err)

	doc, err := a.prepare(text)
	if err != nil {
		return "", report, err
	}
	out = doc.String()
	if !check {
		return out, report, nil
	}
	report, err = a.check(doc)
	return out, report, err
}

// prepare extracts, repairs and optionally relocates the diff in text.
func (a *App) prepare(text string) (*patcher.Document, error) {
	raw, err := parser.DiffExtractor{PreviewLength: a.cfg.Agent.DebugPreviewLength}.Extract(text)
	if err != nil {
		return nil, err
	}
	doc := patcher.RepairHunkHeaders(patcher.Parse(raw))
	if a.cfg.Patch.RelocateHunks {
		relocated, moved, err := patcher.RelocateHunks(doc, a.resolver.ReadLines)
		if err != nil {
			a.log.Warn("hunk relocation skipped", zap.Error(err))
		} else {
			doc = relocated
			a.log.Debug("relocated hunks", zap.Int("moved", moved))
		}
	}
	return doc, nil
}

// check validates doc and applies the path guard.
func (a *App) check(doc *patcher.Document) (model.ValidationReport, error) {
	report := patcher.Validate(doc)
	if !report.Valid {
		return report, &model.DiffValidationError{Report: report}
	}
	for _, w := range report.Warnings {
		a.log.Warn("diff warning", zap.String("warning", w))
	}
	if err := patcher.CheckAllowed(doc, a.cfg.Patch.AllowedPaths); err != nil {
		return report, err
	}
	return report, nil
}

// run is the per-invocation state shared by the primary patch and its fixes.
type run struct {
	id      string
	summary model.Summary
	applied []state.Patch
}

type patchNames struct {
	kind  string
	raw   string
	final string
}

// applyPatch takes raw agent text through save raw, repair, save, validate,
// guard and apply. Saved artifacts are kept whatever the outcome.
func (a *App) applyPatch(ctx context.Context, r *run, text string, names patchNames) (model.ValidationReport, error) {
	var report model.ValidationReport
	if err := a.store.Put(ctx, r.id, names.raw, []byte(text)); err != nil {
		return report, err
	}

	doc, err := a.prepare(text)
	if err != nil {
		return report, err
	}
	patch := []byte(doc.String())
	if err := a.store.Put(ctx, r.id, names.final, patch); err != nil {
		return report, err
	}
	patchPath := a.files.Path(names.final)
	a.log.Info("saved patch", zap.String("path", patchPath), zap.String("kind", names.kind))

	report, err = a.check(doc)
	if err != nil {
		return report, err
	}
	if report.HasPlaceholderHashes() {
		for _, w := range report.Warnings {
			ui.Warning(w)
		}
		ui.Suggestions(patcher.Suggestions(report))
	}

	existing, created := a.resolver.Classify(report.TouchedPaths)
	a.log.Debug("patch targets", zap.Strings("modify", existing), zap.Strings("create", created))

	if err := a.applier.Apply(ctx, patchPath, report); err != nil {
		return report, err
	}
	r.applied = append(r.applied, state.Patch{Kind: names.kind, Name: names.final, Content: patch})
	r.summary.Touched = appendUnique(r.summary.Touched, report.TouchedPaths...)
	r.summary.Warnings = append(r.summary.Warnings, report.Warnings...)

	if err := a.editor.Reload(report.TouchedPaths); err != nil {
		a.log.Warn("editor reload failed", zap.Error(err))
	}
	return report, nil
}

// ApplyText runs the full pipeline on generator output and then the gate loop.
func (a *App) ApplyText(ctx context.Context, text string) (summary model.Summary, err error) {
	defer recoverPanic(&err)

	r := &run{id: a.newID()}
	r.summary.RunID = r.id
	defer func() { summary = a.finish(ctx, r, err) }()

	a.locateRepo(ctx)
	ui.Info("Applying patch (run %s)", r.id)
	r.summary.PatchPath = a.files.Path(a.cfg.Patch.Filename)
	if _, err := a.applyPatch(ctx, r, text, patchNames{kind: "patch", raw: a.cfg.Patch.RawFilename, final: a.cfg.Patch.Filename}); err != nil {
		return r.summary, err
	}
	ui.Success("Patch applied")

	m, err := gate.Loop{
		Gate:        a.gate,
		Fixer:       &fixer{app: a, run: r},
		MaxAttempts: a.cfg.Gate.MaxAttempts,
		Label:       "run " + r.id,
		Log:         a.log,
	}.Run(ctx)
	r.summary.Attempts = m.Attempts()
	if err != nil {
		return r.summary, err
	}
	r.summary.Message = "Patch applied and standards gate passed"
	return r.summary, nil
}

// finish records history and the change summary for whatever got applied.
func (a *App) finish(ctx context.Context, r *run, runErr error) model.Summary {
	if len(r.applied) > 0 {
		if err := a.history.Write(r.id, r.applied); err != nil {
			a.log.Warn("failed to record history", zap.Error(err))
		}
		if cs, err := a.git.ChangeSummary(ctx); err != nil {
			a.log.Debug("no change summary", zap.Error(err))
		} else {
			r.summary.ChangeStat = cs.Stat
		}
	}
	if runErr != nil && r.summary.Message == "" {
		r.summary.Message = "Run failed"
	}
	return r.summary
}

// fixer feeds corrective patches from the agent back through the pipeline.
type fixer struct {
	app *App
	run *run
}

func (f *fixer) Generate(ctx context.Context, prompt string) (string, error) {
	return f.app.generate(ctx, prompt, "Generating fix patch")
}

func (f *fixer) Apply(ctx context.Context, text string) error {
	a := f.app
	f.run.summary.FixPatchPath = a.files.Path(a.cfg.Patch.FixFilename)
	_, err := a.applyPatch(ctx, f.run, text, patchNames{kind: "fix", raw: a.cfg.Patch.FixRawFilename, final: a.cfg.Patch.FixFilename})
	return err
}

// generate calls the agent behind a spinner.
func (a *App) generate(ctx context.Context, prompt, label string) (string, error) {
	ag, err := a.agentFor(ctx)
	if err != nil {
		return "", err
	}
	var out string
	err = tui.Run(ctx, label, !a.cfg.UI.NoAnimation, func(ctx context.Context) error {
		var genErr error
		out, genErr = ag.Generate(ctx, prompt)
		return genErr
	})
	if err != nil {
		return "", err
	}
	a.log.Debug("agent output", zap.String("preview", model.Preview(out, a.cfg.Agent.DebugPreviewLength)))
	return out, nil
}

func (a *App) agentFor(ctx context.Context) (agent.Agent, error) {
	if a.agent != nil {
		return a.agent, nil
	}
	ag, err := agent.New(ctx, a.runner, a.cfg, a.log)
	if err != nil {
		return nil, err
	}
	a.agent = ag
	return ag, nil
}

// Implement optionally checks out branch, asks the agent for a patch and applies it.
func (a *App) Implement(ctx context.Context, prompt, branch string) (summary model.Summary, err error) {
	defer recoverPanic(&err)

	if branch != "" {
		ui.Info("Checking out branch %s", branch)
		if err := a.git.CheckoutBranch(ctx, branch); err != nil {
			return summary, err
		}
	}
	text, err := a.generate(ctx, prompt, "Generating patch")
	if err != nil {
		return summary, err
	}
	return a.ApplyText(ctx, text)
}

// Gate runs the standards gate once, without fixes.
func (a *App) Gate(ctx context.Context) (err error) {
	defer recoverPanic(&err)
	return a.gate.Run(ctx)
}

// Undo reverses the patches of the most recent run.
func (a *App) Undo(ctx context.Context) (entry state.Entry, err error) {
	defer recoverPanic(&err)

	a.locateRepo(ctx)
	entry, err = a.history.Undo(func(paths []string) error {
		for i, p := range paths {
			if err := a.applier.Reverse(ctx, p); err != nil {
				return reapply(ctx, a.applier, paths[:i], err)
			}
		}
		return nil
	})
	if err == nil {
		a.reload()
	}
	return entry, err
}

// Redo re-applies the patches of the last undone run.
func (a *App) Redo(ctx context.Context) (entry state.Entry, err error) {
	defer recoverPanic(&err)

	a.locateRepo(ctx)
	entry, err = a.history.Redo(func(paths []string) error {
		for i, p := range paths {
			if err := a.applier.Apply(ctx, p, model.ValidationReport{Valid: true}); err != nil {
				return rereverse(ctx, a.applier, paths[:i], err)
			}
		}
		return nil
	})
	if err == nil {
		a.reload()
	}
	return entry, err
}

// locateRepo points the applier at the repository root when the target is a
// subdirectory of it. Outside a repository git apply works on the tree as is.
func (a *App) locateRepo(ctx context.Context) {
	if a.rooted {
		return
	}
	a.rooted = true
	top, err := a.git.Toplevel(ctx)
	if err != nil || top == "" {
		a.log.Debug("repository root not found", zap.Error(err))
		return
	}
	if err := a.applier.UseRepoRoot(top); err != nil {
		a.log.Warn("not applying from repository root", zap.Error(err))
	}
}

// reapply restores patches that were already reversed when a later one failed.
func reapply(ctx context.Context, ap *patcher.Applier, done []string, cause error) error {
	for i := len(done) - 1; i >= 0; i-- {
		if err := ap.Apply(ctx, done[i], model.ValidationReport{Valid: true}); err != nil {
			return errors.Join(cause, fmt.Errorf("tree left partially reverted: %w", err))
		}
	}
	return cause
}

func rereverse(ctx context.Context, ap *patcher.Applier, done []string, cause error) error {
	for i := len(done) - 1; i >= 0; i-- {
		if err := ap.Reverse(ctx, done[i]); err != nil {
			return errors.Join(cause, fmt.Errorf("tree left partially re-applied: %w", err))
		}
	}
	return cause
}

func (a *App) reload() {
	if err := a.editor.Reload(nil); err != nil {
		a.log.Warn("editor reload failed", zap.Error(err))
	}
}

func appendUnique(list []string, items ...string) []string {
	seen := make(map[string]bool, len(list))
	for _, s := range list {
		seen[s] = true
	}
	for _, s := range items {
		if !seen[s] {
			seen[s] = true
			list = append(list, s)
		}
	}
	return list
}
