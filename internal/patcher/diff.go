package patcher

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/steve-dickinson/ai-modernisation-factory/model"
)

const devNull = "/dev/null"

var (
	hunkHeaderRegex = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@(.*)$`)
	fileHeaderRegex = regexp.MustCompile(`^diff --git a/(.*) b/(.*)$`)
)

// Document is a unified diff parsed once into file sections and hunks.
// Rendering an unmodified Document reproduces the parsed text exactly.
type Document struct {
	// Preamble holds any lines before the first file header.
	Preamble        []string
	Files           []model.FileChange
	TrailingNewline bool
}

// Parse splits text into file sections. It never fails: lines it cannot
// classify are kept verbatim so that validation can report on them.
func Parse(text string) *Document {
	doc := &Document{TrailingNewline: strings.HasSuffix(text, "\n")}
	if text == "" {
		return doc
	}

	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	for i, line := range lines {
		if strings.HasPrefix(line, "diff --git") {
			doc.Files = append(doc.Files, newFileChange(line))
			continue
		}
		if len(doc.Files) == 0 {
			doc.Preamble = append(doc.Preamble, line)
			continue
		}

		f := &doc.Files[len(doc.Files)-1]
		switch {
		case strings.HasPrefix(line, "@@"):
			f.Hunks = append(f.Hunks, parseHunkHeader(line, i+1))
		case len(f.Hunks) == 0:
			applyExtendedHeader(f, line)
		default:
			h := &f.Hunks[len(f.Hunks)-1]
			h.Lines = append(h.Lines, classifyLine(line))
		}
	}
	return doc
}

func newFileChange(header string) model.FileChange {
	f := model.FileChange{HeaderLine: header}
	if m := fileHeaderRegex.FindStringSubmatch(header); m != nil {
		f.SourcePath = m[1]
		f.DestPath = m[2]
		f.HeaderPath = m[2]
	}
	return f
}

func applyExtendedHeader(f *model.FileChange, line string) {
	f.ExtendedHeaders = append(f.ExtendedHeaders, line)
	switch {
	case strings.HasPrefix(line, "new file mode"):
		f.IsNew = true
	case strings.HasPrefix(line, "deleted file mode"):
		f.IsDeleted = true
	case strings.HasPrefix(line, "rename from "):
		f.SourcePath = gitPath(line[len("rename from "):])
	case strings.HasPrefix(line, "rename to "):
		f.RenameTo = gitPath(line[len("rename to "):])
		f.DestPath = f.RenameTo
	case strings.HasPrefix(line, "copy from "):
		f.SourcePath = gitPath(line[len("copy from "):])
	case strings.HasPrefix(line, "copy to "):
		f.CopyTo = gitPath(line[len("copy to "):])
		f.DestPath = f.CopyTo
	case strings.HasPrefix(line, "--- "):
		f.SourcePath = markerPath(line[4:], "a/")
		if f.SourcePath == devNull {
			f.IsNew = true
		}
	case strings.HasPrefix(line, "+++ "):
		f.DestPath = markerPath(line[4:], "b/")
		if f.DestPath == devNull {
			f.IsDeleted = true
		}
	}
}

// gitPath unquotes a C-style quoted path as git writes names with unusual characters.
func gitPath(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, `"`) {
		if u, err := strconv.Unquote(s); err == nil {
			return u
		}
	}
	return s
}

// markerPath strips the a/ or b/ prefix and any tab-separated timestamp.
func markerPath(s, prefix string) string {
	if i := strings.IndexByte(s, '\t'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)
	if s == devNull {
		return s
	}
	return strings.TrimPrefix(s, prefix)
}

func parseHunkHeader(line string, lineNo int) model.Hunk {
	h := model.Hunk{Header: line, LineNo: lineNo}
	m := hunkHeaderRegex.FindStringSubmatch(line)
	if m == nil {
		h.Malformed = true
		return h
	}
	h.OldStart, _ = strconv.Atoi(m[1])
	h.OldCount = parseCount(m[2])
	h.NewStart, _ = strconv.Atoi(m[3])
	h.NewCount = parseCount(m[4])
	h.HeaderContext = m[5]
	return h
}

func parseCount(s string) int {
	if s == "" {
		return 1
	}
	n, _ := strconv.Atoi(s)
	return n
}

func classifyLine(line string) model.HunkLine {
	if line == "" {
		return model.HunkLine{Kind: model.LineBlank}
	}
	switch line[0] {
	case ' ':
		return model.HunkLine{Kind: model.LineContext, Text: line[1:]}
	case '+':
		return model.HunkLine{Kind: model.LineAdd, Text: line[1:]}
	case '-':
		return model.HunkLine{Kind: model.LineRemove, Text: line[1:]}
	case '\\':
		return model.HunkLine{Kind: model.LineNoNewline, Text: line[1:]}
	default:
		return model.HunkLine{Kind: model.LineOther, Text: line}
	}
}

func renderLine(l model.HunkLine) string {
	switch l.Kind {
	case model.LineContext:
		return " " + l.Text
	case model.LineAdd:
		return "+" + l.Text
	case model.LineRemove:
		return "-" + l.Text
	case model.LineNoNewline:
		return "\\" + l.Text
	case model.LineBlank:
		return ""
	default:
		return l.Text
	}
}

// String renders the document back to unified diff text.
func (d *Document) String() string {
	var lines []string
	lines = append(lines, d.Preamble...)
	for _, f := range d.Files {
		lines = append(lines, f.HeaderLine)
		lines = append(lines, f.ExtendedHeaders...)
		for _, h := range f.Hunks {
			lines = append(lines, h.Header)
			for _, l := range h.Lines {
				lines = append(lines, renderLine(l))
			}
		}
	}
	out := strings.Join(lines, "\n")
	if d.TrailingNewline {
		out += "\n"
	}
	return out
}

// Clone returns a deep copy so that repairs never alias the parsed input.
func (d *Document) Clone() *Document {
	cp := &Document{
		Preamble:        append([]string(nil), d.Preamble...),
		Files:           make([]model.FileChange, len(d.Files)),
		TrailingNewline: d.TrailingNewline,
	}
	for i, f := range d.Files {
		f.ExtendedHeaders = append([]string(nil), f.ExtendedHeaders...)
		hunks := make([]model.Hunk, len(f.Hunks))
		for j, h := range f.Hunks {
			h.Lines = append([]model.HunkLine(nil), h.Lines...)
			hunks[j] = h
		}
		f.Hunks = hunks
		cp.Files[i] = f
	}
	return cp
}

// TouchedPaths returns every path a file section can write: the header b/
// path, the +++ path and any rename or copy target. Plain deletions write
// nothing and are skipped.
func (d *Document) TouchedPaths() []string {
	seen := make(map[string]struct{})
	var paths []string
	for _, f := range d.Files {
		candidates := []string{f.RenameTo, f.CopyTo}
		if !f.IsDeleted {
			candidates = append([]string{f.HeaderPath, f.DestPath}, candidates...)
		}
		for _, p := range candidates {
			if p == "" || p == devNull {
				continue
			}
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			paths = append(paths, p)
		}
	}
	return paths
}

// Tally returns the old and new line counts a hunk body implies. Context and
// unprefixed lines count on both sides. Blank lines count as context unless
// nothing but blanks and no-newline markers follow them in the hunk.
func Tally(lines []model.HunkLine) (oldCount, newCount int) {
	last := -1
	for i, l := range lines {
		if l.Kind != model.LineBlank && l.Kind != model.LineNoNewline {
			last = i
		}
	}
	for i, l := range lines {
		switch l.Kind {
		case model.LineRemove:
			oldCount++
		case model.LineAdd:
			newCount++
		case model.LineContext, model.LineOther:
			oldCount++
			newCount++
		case model.LineBlank:
			if i < last {
				oldCount++
				newCount++
			}
		}
	}
	return oldCount, newCount
}
