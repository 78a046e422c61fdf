// Package modernise exposes the extraction and diff repair steps as a library,
// without touching a repository.
package modernise

import (
	"fmt"

	"github.com/steve-dickinson/ai-modernisation-factory/internal/config"
	"github.com/steve-dickinson/ai-modernisation-factory/internal/parser"
	"github.com/steve-dickinson/ai-modernisation-factory/internal/patcher"
	"github.com/steve-dickinson/ai-modernisation-factory/internal/schema"
	"github.com/steve-dickinson/ai-modernisation-factory/model"
)

// Config for using modernise as a library.
type Config struct {
	// AllowedPaths are the path prefixes a diff may touch. Empty means the default allowlist.
	AllowedPaths []string
	// SchemaPath, when set, is the JSON Schema an extracted document must satisfy.
	SchemaPath string
}

func (c Config) allowed() []string {
	if len(c.AllowedPaths) == 0 {
		return config.Default().Patch.AllowedPaths
	}
	return c.AllowedPaths
}

// ExtractJSON returns the JSON document embedded in agent output.
func ExtractJSON(text string, cfg Config) (any, error) {
	doc, err := parser.ExtractJSON(text)
	if err != nil {
		return nil, err
	}
	if cfg.SchemaPath != "" {
		reg, err := schema.NewRegistry(0)
		if err != nil {
			return nil, err
		}
		if err := reg.ValidateFile(cfg.SchemaPath, doc.Value); err != nil {
			return nil, err
		}
	}
	return doc.Value, nil
}

// PrepareDiff extracts the diff from agent output, repairs its hunk headers and
// checks it. The repaired diff is returned together with the report, even when
// the report is invalid.
func PrepareDiff(text string, cfg Config) (string, model.ValidationReport, error) {
	raw, err := parser.ExtractDiff(text)
	if err != nil {
		return "", model.ValidationReport{}, err
	}
	doc := patcher.RepairHunkHeaders(patcher.Parse(raw))
	out := doc.String()

	report := patcher.Validate(doc)
	if !report.Valid {
		return out, report, &model.DiffValidationError{Report: report}
	}
	if err := patcher.CheckAllowed(doc, cfg.allowed()); err != nil {
		return out, report, fmt.Errorf("diff rejected: %w", err)
	}
	return out, report, nil
}
