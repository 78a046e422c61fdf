package model

import "encoding/json"

// JSONSource records which extraction strategy produced a JSON value.
type JSONSource string

const (
	SourceTagged JSONSource = "tagged"
	SourceScan   JSONSource = "scan"
)

// ExtractedJSON is a parsed JSON value found inside free-form text.
type ExtractedJSON struct {
	Value  any
	Raw    json.RawMessage
	Source JSONSource
	// Offset is the byte offset of Raw within the original text.
	Offset int
}

// LineKind classifies a line inside a hunk body.
type LineKind int

const (
	LineContext LineKind = iota
	LineAdd
	LineRemove
	// LineNoNewline is the "\ No newline at end of file" marker.
	LineNoNewline
	LineBlank
	// LineOther is anything without a recognised prefix. It is tallied as context.
	LineOther
)

// HunkLine is one body line of a hunk, stored without its prefix character.
type HunkLine struct {
	Kind LineKind
	Text string
}

// Hunk is one @@ block of a file section.
type Hunk struct {
	OldStart      int
	OldCount      int
	NewStart      int
	NewCount      int
	HeaderContext string
	// Header is the header line exactly as it will be rendered.
	Header string
	// LineNo is the 1-based line of the header in the parsed text.
	LineNo    int
	Malformed bool
	Lines     []HunkLine
}

// FileChange is one "diff --git" section of a unified diff.
type FileChange struct {
	SourcePath string
	DestPath   string
	// HeaderPath is the b/ path named on the "diff --git" line.
	HeaderPath string
	// RenameTo and CopyTo come from "rename to" and "copy to" extended headers.
	RenameTo        string
	CopyTo          string
	IsNew           bool
	IsDeleted       bool
	HeaderLine      string
	ExtendedHeaders []string
	Hunks           []Hunk
}

// ValidationReport is the result of the structural pre-flight check on a diff.
type ValidationReport struct {
	Valid        bool
	FatalIssues  []string
	Warnings     []string
	TouchedPaths []string
	Files        []string
}

// HasPlaceholderHashes reports whether the validator flagged placeholder index hashes.
func (r ValidationReport) HasPlaceholderHashes() bool {
	return len(r.Warnings) > 0
}

// GateAttempt records one run of the validation gate.
type GateAttempt struct {
	Index      int
	Command    string
	ExitStatus int
	Output     string
	Passed     bool
}

// Summary holds the results of a pipeline run for display.
type Summary struct {
	RunID        string
	PatchPath    string
	FixPatchPath string
	Touched      []string
	Warnings     []string
	ChangeStat   string
	Attempts     []GateAttempt
	Message      string
}
