package patcher

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steve-dickinson/ai-modernisation-factory/model"
)

const twoFileDiff = `diff --git a/src/a.js b/src/a.js
index 83db48f..bf269f4 100644
--- a/src/a.js
+++ b/src/a.js
@@ -1,3 +1,3 @@ function a() {
 const x = 1
-const y = 2
+const y = 3
 module.exports = { x, y }
\ No newline at end of file
diff --git a/test/new.test.js b/test/new.test.js
new file mode 100644
index 0000000..e69de29
--- /dev/null
+++ b/test/new.test.js
@@ -0,0 +1,2 @@
+test('a', () => {})
+
`

func TestParseStructure(t *testing.T) {
	doc := Parse(twoFileDiff)
	require.Len(t, doc.Files, 2)

	a := doc.Files[0]
	assert.Equal(t, "src/a.js", a.SourcePath)
	assert.Equal(t, "src/a.js", a.DestPath)
	assert.False(t, a.IsNew)
	require.Len(t, a.Hunks, 1)
	h := a.Hunks[0]
	assert.Equal(t, 1, h.OldStart)
	assert.Equal(t, 3, h.OldCount)
	assert.Equal(t, 1, h.NewStart)
	assert.Equal(t, 3, h.NewCount)
	assert.Equal(t, " function a() {", h.HeaderContext)
	assert.Equal(t, 5, h.LineNo)

	wantKinds := []model.LineKind{model.LineContext, model.LineRemove, model.LineAdd, model.LineContext, model.LineNoNewline}
	var gotKinds []model.LineKind
	for _, l := range h.Lines {
		gotKinds = append(gotKinds, l.Kind)
	}
	if diff := cmp.Diff(wantKinds, gotKinds); diff != "" {
		t.Errorf("line kinds mismatch (-want +got):\n%s", diff)
	}

	n := doc.Files[1]
	assert.True(t, n.IsNew)
	assert.Equal(t, "/dev/null", n.SourcePath)
	assert.Equal(t, "test/new.test.js", n.DestPath)
	require.Len(t, n.Hunks, 1)
	assert.Equal(t, 0, n.Hunks[0].OldStart)
	assert.Equal(t, 0, n.Hunks[0].OldCount)
}

func TestParseRenderIsLossless(t *testing.T) {
	inputs := []string{
		twoFileDiff,
		"",
		"\n",
		"prose before\ndiff --git a/x b/x\n@@ broken header\n+added\n",
		"diff --git a/x b/x\n--- a/x\n+++ b/x\n@@ -1 +1 @@\n-a\n+b",
		"diff --git a/x b/x\r\n--- a/x\r\n+++ b/x\r\n@@ -1 +1 @@\r\n-a\r\n+b\r\n",
	}
	for _, in := range inputs {
		assert.Equal(t, in, Parse(in).String())
	}
}

func TestParseDeletedFile(t *testing.T) {
	doc := Parse("diff --git a/src/old.js b/src/old.js\ndeleted file mode 100644\nindex e69de29..0000000\n--- a/src/old.js\n+++ /dev/null\n@@ -1 +0,0 @@\n-gone\n")
	require.Len(t, doc.Files, 1)
	assert.True(t, doc.Files[0].IsDeleted)
	assert.Equal(t, "/dev/null", doc.Files[0].DestPath)
	assert.Empty(t, doc.TouchedPaths())
}

func TestParseUsesHeaderPathsWithoutMarkers(t *testing.T) {
	doc := Parse("diff --git a/docs/old.md b/docs/new.md\nsimilarity index 100%\nrename from docs/old.md\nrename to docs/new.md\n")
	require.Len(t, doc.Files, 1)
	assert.Equal(t, "docs/old.md", doc.Files[0].SourcePath)
	assert.Equal(t, []string{"docs/new.md"}, doc.TouchedPaths())
}

func TestParseRenameAndCopyTargets(t *testing.T) {
	doc := Parse("diff --git a/src/a.js b/src/a.js\nsimilarity index 100%\nrename from src/a.js\nrename to evil/a.js\n" +
		"diff --git a/src/c.js b/src/d.js\nsimilarity index 100%\ncopy from src/c.js\ncopy to src/d.js\n")
	require.Len(t, doc.Files, 2)
	assert.Equal(t, "src/a.js", doc.Files[0].SourcePath)
	assert.Equal(t, "evil/a.js", doc.Files[0].RenameTo)
	assert.Equal(t, "evil/a.js", doc.Files[0].DestPath)
	assert.Equal(t, "src/d.js", doc.Files[1].CopyTo)
	assert.Equal(t, []string{"src/a.js", "evil/a.js", "src/d.js"}, doc.TouchedPaths())
}

func TestCloneDoesNotAlias(t *testing.T) {
	doc := Parse(twoFileDiff)
	cp := doc.Clone()
	cp.Files[0].Hunks[0].Lines[0].Text = "changed"
	cp.Files[0].ExtendedHeaders[0] = "changed"
	assert.Equal(t, twoFileDiff, doc.String())
}

func TestTally(t *testing.T) {
	tests := []struct {
		name    string
		lines   []model.HunkLine
		old, nw int
	}{
		{
			name:  "context add remove",
			lines: []model.HunkLine{{Kind: model.LineContext}, {Kind: model.LineRemove}, {Kind: model.LineAdd}, {Kind: model.LineAdd}},
			old:   2, nw: 3,
		},
		{
			name:  "no newline marker is not counted",
			lines: []model.HunkLine{{Kind: model.LineRemove}, {Kind: model.LineNoNewline}, {Kind: model.LineAdd}, {Kind: model.LineNoNewline}},
			old:   1, nw: 1,
		},
		{
			name:  "unprefixed noise counts as context",
			lines: []model.HunkLine{{Kind: model.LineOther, Text: "x"}, {Kind: model.LineAdd}},
			old:   1, nw: 2,
		},
		{
			name:  "interior blank counts, trailing blank does not",
			lines: []model.HunkLine{{Kind: model.LineContext}, {Kind: model.LineBlank}, {Kind: model.LineAdd}, {Kind: model.LineBlank}, {Kind: model.LineBlank}},
			old:   2, nw: 3,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			old, nw := Tally(tt.lines)
			assert.Equal(t, tt.old, old)
			assert.Equal(t, tt.nw, nw)
		})
	}
}
