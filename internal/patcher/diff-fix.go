package patcher

import (
	"fmt"
	"strings"

	"github.com/steve-dickinson/ai-modernisation-factory/model"
)

// FixHunkHeaders parses text, repairs every hunk header and renders the result.
func FixHunkHeaders(text string) string {
	return RepairHunkHeaders(Parse(text)).String()
}

// RepairHunkHeaders returns a copy of doc in which each well-formed hunk header
// declares the counts its body actually has. Headers that already agree are
// left byte-identical. In a new-file section only the first hunk header is
// kept; the bodies of later hunks are folded into it. Malformed headers are
// left for the validator to report.
func RepairHunkHeaders(doc *Document) *Document {
	out := doc.Clone()
	for fi := range out.Files {
		f := &out.Files[fi]
		f.Hunks = mergeNewFileHunks(f)
		for hi := range f.Hunks {
			repairHunk(&f.Hunks[hi])
		}
	}
	return out
}

func mergeNewFileHunks(f *model.FileChange) []model.Hunk {
	if !f.IsNew || len(f.Hunks) < 2 {
		return f.Hunks
	}
	merged := []model.Hunk{f.Hunks[0]}
	for _, h := range f.Hunks[1:] {
		if h.Malformed {
			merged = append(merged, h)
			continue
		}
		prev := &merged[len(merged)-1]
		prev.Lines = append(prev.Lines, h.Lines...)
	}
	return merged
}

func repairHunk(h *model.Hunk) {
	if h.Malformed {
		return
	}
	oldCount, newCount := Tally(h.Lines)
	if h.OldStart == 0 {
		oldCount = 0
	}
	if h.NewStart == 0 {
		newCount = 0
	}
	if h.OldCount == oldCount && h.NewCount == newCount {
		return
	}
	h.OldCount, h.NewCount = oldCount, newCount
	h.Header = buildHunkHeader(h.OldStart, oldCount, h.NewStart, newCount, h.HeaderContext)
}

func buildHunkHeader(oldStart, oldLines, newStart, newLines int, context string) string {
	return fmt.Sprintf("@@ %s %s @@%s", formatRange('-', oldStart, oldLines), formatRange('+', newStart, newLines), context)
}

func formatRange(sign byte, start, count int) string {
	switch {
	case start == 0:
		return string(sign) + "0,0"
	case count == 1:
		return fmt.Sprintf("%c%d", sign, start)
	default:
		return fmt.Sprintf("%c%d,%d", sign, start, count)
	}
}

// RelocateHunks moves each hunk's start lines to where its context and removed
// lines actually occur in the current file. readLines returns the current
// content of a path relative to the tree root; new files are skipped. Hunks
// whose block cannot be found keep their declared position. It returns the
// number of hunks that moved.
func RelocateHunks(doc *Document, readLines func(path string) ([]string, error)) (*Document, int, error) {
	out := doc.Clone()
	moved := 0
	for fi := range out.Files {
		f := &out.Files[fi]
		if f.IsNew || len(f.Hunks) == 0 {
			continue
		}
		source, err := readLines(f.SourcePath)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to read %s for hunk relocation: %w", f.SourcePath, err)
		}

		lineDiffOffset := 0
		for hi := range f.Hunks {
			h := &f.Hunks[hi]
			if h.Malformed {
				continue
			}
			oldLines, newLines := Tally(h.Lines)
			oldStart := matchBlock(source, getTargetBlock(h.Lines))
			if oldStart != -1 {
				oldStart = max(1, oldStart-leadingBlankTargets(h.Lines))
			}
			if oldStart != -1 && oldStart != h.OldStart {
				h.OldStart = oldStart
				h.NewStart = oldStart + lineDiffOffset
				h.OldCount, h.NewCount = oldLines, newLines
				h.Header = buildHunkHeader(h.OldStart, oldLines, h.NewStart, newLines, h.HeaderContext)
				moved++
			}
			lineDiffOffset += newLines - oldLines
		}
	}
	return out, moved, nil
}

// getTargetBlock creates a search pattern from a hunk. It uses only lines that
// must already be in the source file (context and removed lines) and ignores
// empty ones so matching survives whitespace-only drift.
func getTargetBlock(lines []model.HunkLine) []string {
	var block []string
	for _, l := range lines {
		if l.Kind != model.LineContext && l.Kind != model.LineRemove {
			continue
		}
		if strings.TrimSpace(l.Text) != "" {
			block = append(block, l.Text)
		}
	}
	return block
}

// leadingBlankTargets counts the blank context lines a hunk opens with; they
// are not part of the search pattern but do shift its start.
func leadingBlankTargets(lines []model.HunkLine) int {
	n := 0
	for _, l := range lines {
		if l.Kind == model.LineAdd || l.Kind == model.LineNoNewline {
			continue
		}
		if l.Kind == model.LineBlank || strings.TrimSpace(l.Text) == "" {
			n++
			continue
		}
		break
	}
	return n
}

// normalizeLineForMatching trims a line and collapses internal whitespace runs.
func normalizeLineForMatching(line string) string {
	return strings.Join(strings.Fields(line), " ")
}

// matchBlock finds the 1-based line at which block starts within source,
// comparing whitespace-normalised lines and skipping empty source lines.
// It returns -1 when there is no match.
func matchBlock(source, block []string) int {
	if len(block) == 0 {
		return -1
	}

	normalizedBlock := make([]string, len(block))
	for i, line := range block {
		normalizedBlock[i] = normalizeLineForMatching(line)
	}

	var filteredSource []string
	var originalLineNumbers []int
	for i, line := range source {
		normalizedLine := normalizeLineForMatching(line)
		if normalizedLine != "" {
			filteredSource = append(filteredSource, normalizedLine)
			originalLineNumbers = append(originalLineNumbers, i+1)
		}
	}

	for i := 0; i <= len(filteredSource)-len(normalizedBlock); i++ {
		match := true
		for j := 0; j < len(normalizedBlock); j++ {
			if filteredSource[i+j] != normalizedBlock[j] {
				match = false
				break
			}
		}
		if match {
			return originalLineNumbers[i]
		}
	}
	return -1
}
