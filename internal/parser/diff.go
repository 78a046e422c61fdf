package parser

import (
	"strings"

	"github.com/steve-dickinson/ai-modernisation-factory/model"
)

const (
	diffHeaderPrefix = "diff --git"

	DefaultDiffPreviewLength = 1200
)

// subHeaderPrefixes are the lines that may follow a real "diff --git" header
// within the next three lines.
var subHeaderPrefixes = []string{"index ", "new file mode", "deleted file mode", "--- "}

// continuationKeywords are line starts that are never the tail of a soft-wrapped header.
var continuationKeywords = []string{
	"diff", "index", "---", "+++", "@@", "new", "deleted", "similarity",
	"dissimilarity", "rename", "copy", "old mode", "Binary",
}

// DiffStrategy locates the start of a unified diff inside free-form text and
// returns the raw, not yet normalised, diff body.
type DiffStrategy interface {
	FindDiff(text string) (string, bool)
}

// DefaultDiffStrategies is the fenced-first, header-scan-second chain.
func DefaultDiffStrategies() []DiffStrategy {
	return []DiffStrategy{FencedDiff{}, HeaderScan{}}
}

// DiffExtractor isolates exactly one unified diff from text.
type DiffExtractor struct {
	Strategies []DiffStrategy
	// PreviewLength bounds the text preview carried by NoDiffFoundError.
	PreviewLength int
}

// ExtractDiff runs the given strategies (or the defaults) with the default preview length.
func ExtractDiff(text string, strategies ...DiffStrategy) (string, error) {
	return DiffExtractor{Strategies: strategies}.Extract(text)
}

// Extract returns the first diff found by the strategies, normalised so that
// wrapped file headers are rejoined and the result ends with exactly one newline.
func (e DiffExtractor) Extract(text string) (string, error) {
	strategies := e.Strategies
	if len(strategies) == 0 {
		strategies = DefaultDiffStrategies()
	}
	for _, s := range strategies {
		if raw, ok := s.FindDiff(text); ok {
			return normaliseDiff(raw), nil
		}
	}

	n := e.PreviewLength
	if n <= 0 {
		n = DefaultDiffPreviewLength
	}
	return "", &model.NoDiffFoundError{Preview: model.Preview(text, n)}
}

// FencedDiff takes the interior of the first markdown fenced block, unlabelled
// or labelled "diff", whose first line is a diff file header.
type FencedDiff struct{}

func (FencedDiff) FindDiff(text string) (string, bool) {
	if !strings.Contains(text, "```") {
		return "", false
	}
	blocks, err := ExtractCodeBlocks([]byte(text))
	if err != nil {
		return "", false
	}
	for _, b := range blocks {
		if b.Lang != "" && b.Lang != "diff" {
			continue
		}
		if strings.HasPrefix(b.Content, diffHeaderPrefix) {
			return b.Content, true
		}
	}
	return "", false
}

// HeaderScan finds the first "diff --git" line followed within three lines by a
// recognised sub-header, and takes everything from there up to a closing fence.
type HeaderScan struct{}

func (HeaderScan) FindDiff(text string) (string, bool) {
	lines := strings.Split(text, "\n")
	start := -1
	for i, line := range lines {
		if !strings.HasPrefix(line, diffHeaderPrefix) {
			continue
		}
		if hasSubHeader(lines[i+1 : min(i+4, len(lines))]) {
			start = i
			break
		}
	}
	if start == -1 {
		return "", false
	}

	body := lines[start:]
	for i := 1; i < len(body); i++ {
		if strings.HasPrefix(strings.TrimSpace(body[i]), "```") {
			body = body[:i]
			break
		}
	}
	return strings.Join(body, "\n"), true
}

func hasSubHeader(lines []string) bool {
	for _, l := range lines {
		for _, p := range subHeaderPrefixes {
			if strings.HasPrefix(l, p) {
				return true
			}
		}
	}
	return false
}

func normaliseDiff(raw string) string {
	lines := strings.Split(raw, "\n")
	out := make([]string, 0, len(lines))
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if strings.HasPrefix(line, diffHeaderPrefix+" ") && i+1 < len(lines) && isWrappedTail(lines[i+1]) {
			line = strings.TrimRight(line, " ") + " " + strings.TrimLeft(lines[i+1], " ")
			i++
		}
		out = append(out, line)
	}
	return strings.TrimRight(strings.Join(out, "\n"), "\r\n") + "\n"
}

func isWrappedTail(next string) bool {
	if strings.TrimSpace(next) == "" {
		return false
	}
	for _, k := range continuationKeywords {
		if strings.HasPrefix(next, k) {
			return false
		}
	}
	return true
}
