// Package source reads the raw generator output the pipeline works on.
package source

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/atotto/clipboard"

	"github.com/steve-dickinson/ai-modernisation-factory/internal/ui"
)

// Provider reads from a file when one is named, else piped stdin, else the clipboard.
type Provider struct {
	InputPath string
	Stdin     *os.File
	// Clipboard is swapped in tests.
	Clipboard func() (string, error)
}

func New(inputPath string) *Provider {
	return &Provider{InputPath: inputPath, Stdin: os.Stdin, Clipboard: clipboard.ReadAll}
}

// Content returns the raw text. An empty result is not an error; callers decide.
func (p *Provider) Content() (string, error) {
	if p.InputPath != "" {
		ui.Header("--- Reading from %s ---", p.InputPath)
		data, err := os.ReadFile(p.InputPath)
		if err != nil {
			return "", fmt.Errorf("failed to read input: %w", err)
		}
		return string(data), nil
	}

	if p.Stdin != nil && isPiped(p.Stdin) {
		ui.Header("--- Reading from stdin ---")
		data, err := io.ReadAll(p.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read from stdin: %w", err)
		}
		return string(data), nil
	}

	ui.Header("--- Reading from clipboard ---")
	content, err := p.Clipboard()
	if err != nil {
		return "", fmt.Errorf("failed to read from clipboard: %w", err)
	}
	if strings.TrimSpace(content) == "" {
		ui.Warning("Clipboard is empty. Nothing to process.")
		return "", nil
	}
	return content, nil
}

func isPiped(f *os.File) bool {
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return stat.Mode()&os.ModeCharDevice == 0
}
