package patcher

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/steve-dickinson/ai-modernisation-factory/model"
)

var indexLineRegex = regexp.MustCompile(`^index ([0-9a-fA-F]+)\.\.([0-9a-fA-F]+)`)

// Validate runs the structural pre-flight check on a parsed diff. It never
// mutates doc. Placeholder index hashes are warnings; everything else is fatal.
func Validate(doc *Document) model.ValidationReport {
	var report model.ValidationReport

	if len(doc.Files) == 0 {
		report.FatalIssues = append(report.FatalIssues, "No valid diff header found (must start with 'diff --git')")
		return report
	}

	for i, line := range doc.Preamble {
		if strings.HasPrefix(line, "@@") && !hunkHeaderRegex.MatchString(line) {
			report.FatalIssues = append(report.FatalIssues, fmt.Sprintf("Malformed hunk header at line %d: %s", i+1, line))
		}
	}

	for _, f := range doc.Files {
		if m := fileHeaderRegex.FindStringSubmatch(f.HeaderLine); m != nil {
			report.Files = append(report.Files, m[2])
		}
		for _, h := range f.ExtendedHeaders {
			if w := placeholderWarning(f, h); w != "" {
				report.Warnings = append(report.Warnings, w)
			}
		}
		for _, h := range f.Hunks {
			if h.Malformed {
				report.FatalIssues = append(report.FatalIssues, fmt.Sprintf("Malformed hunk header at line %d: %s", h.LineNo, h.Header))
			}
		}
	}

	if len(report.Files) == 0 {
		report.FatalIssues = append(report.FatalIssues, "No files found in diff")
	}

	report.TouchedPaths = doc.TouchedPaths()
	sort.Strings(report.TouchedPaths)
	report.Valid = len(report.FatalIssues) == 0
	return report
}

// ValidateText parses text and validates it.
func ValidateText(text string) model.ValidationReport {
	return Validate(Parse(text))
}

func placeholderWarning(f model.FileChange, line string) string {
	m := indexLineRegex.FindStringSubmatch(line)
	if m == nil {
		return ""
	}
	oldHash, newHash := m[1], m[2]
	bad := isSequentialHash(oldHash) || isSequentialHash(newHash) ||
		(isZeroHash(oldHash) && !f.IsNew) ||
		(isZeroHash(newHash) && !f.IsDeleted)
	if !bad {
		return ""
	}
	path := f.DestPath
	if path == "" || path == devNull {
		path = f.SourcePath
	}
	if path == "" {
		path = "unknown file"
	}
	return fmt.Sprintf("Warning: %s has placeholder SHA (%s..%s). This may cause 'git apply' to fail. Consider regenerating patch.", path, oldHash, newHash)
}

func isZeroHash(h string) bool {
	return strings.Trim(h, "0") == ""
}

// isSequentialHash matches made-up hashes such as 1234567 or abcdef0: every
// digit is one more than the previous, wrapping from f to 0.
func isSequentialHash(h string) bool {
	if len(h) < 7 {
		return false
	}
	const digits = "0123456789abcdef"
	h = strings.ToLower(h)
	prev := strings.IndexByte(digits, h[0])
	for i := 1; i < len(h); i++ {
		cur := strings.IndexByte(digits, h[i])
		if cur != (prev+1)%len(digits) {
			return false
		}
		prev = cur
	}
	return true
}

// Suggestions returns remediation hints for a report with warnings.
func Suggestions(report model.ValidationReport) []string {
	if !report.HasPlaceholderHashes() {
		return nil
	}
	return []string{
		"Patch contains placeholder SHAs. To fix:",
		"1. Ensure the prompt includes the current file content",
		"2. Instruct the agent to use actual file content for proper diff generation",
		"3. Consider using 'git diff' on applied changes rather than generated diffs",
	}
}
