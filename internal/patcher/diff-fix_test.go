package patcher

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixHunkHeadersCorrectsCounts(t *testing.T) {
	in := `diff --git a/src/app.js b/src/app.js
index 83db48f..bf269f4 100644
--- a/src/app.js
+++ b/src/app.js
@@ -1,5 +1,9 @@ const app
 const a = 1
-const b = 2
+const b = 3
+const c = 4
`
	got := FixHunkHeaders(in)
	assert.Contains(t, got, "\n@@ -1,2 +1,3 @@ const app\n")
	assert.Equal(t, strings.Replace(in, "@@ -1,5 +1,9 @@", "@@ -1,2 +1,3 @@", 1), got)
}

func TestFixHunkHeadersIsNoOpOnCorrectDiff(t *testing.T) {
	in := `diff --git a/src/a.js b/src/a.js
--- a/src/a.js
+++ b/src/a.js
@@ -1,3 +1,3 @@
 one
-two
+TWO
 three
@@ -10 +10 @@ tail
-x
+y
diff --git a/src/b.js b/src/b.js
--- a/src/b.js
+++ b/src/b.js
@@ -4,0 +5,2 @@
+added
+more
`
	assert.Equal(t, in, FixHunkHeaders(in))
}

func TestFixHunkHeadersCompactForm(t *testing.T) {
	in := "diff --git a/src/a.js b/src/a.js\n--- a/src/a.js\n+++ b/src/a.js\n@@ -3,4 +3,4 @@\n-old\n+new\n"
	got := FixHunkHeaders(in)
	assert.Contains(t, got, "\n@@ -3 +3 @@\n")
}

func TestFixHunkHeadersZeroStartUsesExplicitForm(t *testing.T) {
	in := "diff --git a/src/n.js b/src/n.js\nnew file mode 100644\n--- /dev/null\n+++ b/src/n.js\n@@ -0 +1,7 @@\n+a\n+b\n"
	got := FixHunkHeaders(in)
	assert.Contains(t, got, "\n@@ -0,0 +1,2 @@\n")
}

func TestFixHunkHeadersMergesNewFileHunks(t *testing.T) {
	in := `diff --git a/src/n.js b/src/n.js
new file mode 100644
--- /dev/null
+++ b/src/n.js
@@ -0,0 +1,2 @@
+line 1
+line 2
@@ -0,0 +3,2 @@
+line 3
+line 4
diff --git a/src/m.js b/src/m.js
--- a/src/m.js
+++ b/src/m.js
@@ -1 +1 @@
-a
+b
@@ -5 +5 @@
-c
+d
`
	got := FixHunkHeaders(in)
	assert.Equal(t, 1, strings.Count(got[:strings.Index(got, "diff --git a/src/m.js")], "@@ -"))
	assert.Contains(t, got, "@@ -0,0 +1,4 @@\n+line 1\n+line 2\n+line 3\n+line 4\n")
	// Hunks of modified files are never merged.
	assert.Contains(t, got, "@@ -1 +1 @@\n-a\n+b\n@@ -5 +5 @@\n")

	doc := RepairHunkHeaders(Parse(in))
	require.Len(t, doc.Files[0].Hunks, 1)
	assert.Equal(t, 4, doc.Files[0].Hunks[0].NewCount)
}

func TestFixHunkHeadersLeavesMalformedHeaders(t *testing.T) {
	in := "diff --git a/src/a.js b/src/a.js\n--- a/src/a.js\n+++ b/src/a.js\n@@ one two @@\n-a\n+b\n"
	assert.Equal(t, in, FixHunkHeaders(in))
	report := ValidateText(FixHunkHeaders(in))
	assert.False(t, report.Valid)
}

func TestRepairDoesNotMutateInput(t *testing.T) {
	in := "diff --git a/src/a.js b/src/a.js\n--- a/src/a.js\n+++ b/src/a.js\n@@ -1,9 +1,9 @@\n-a\n+b\n"
	doc := Parse(in)
	_ = RepairHunkHeaders(doc)
	assert.Equal(t, in, doc.String())
}

func TestNoisyTextEndToEnd(t *testing.T) {
	// Header claims three new lines when the body has two.
	in := "diff --git a/src/x.js b/src/x.js\nindex 1a2b3c4..5d6e7f8 100644\n--- a/src/x.js\n+++ b/src/x.js\n@@ -1,2 +1,3 @@\n keep\n-drop\n+add\n"
	doc := RepairHunkHeaders(Parse(in))
	assert.Equal(t, "@@ -1,2 +1,2 @@", doc.Files[0].Hunks[0].Header)
	report := Validate(doc)
	assert.True(t, report.Valid)
	assert.Empty(t, report.FatalIssues)
}

func TestRelocateHunks(t *testing.T) {
	source := []string{"package main", "", "import \"fmt\"", "", "func main() {", "\tfmt.Println(\"hi\")", "}"}
	in := "diff --git a/main.go b/main.go\n--- a/main.go\n+++ b/main.go\n@@ -1,3 +1,3 @@\n func main() {\n-\tfmt.Println(\"hi\")\n+\tfmt.Println(\"hello\")\n }\n"

	doc, moved, err := RelocateHunks(Parse(in), func(path string) ([]string, error) {
		assert.Equal(t, "main.go", path)
		return source, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, moved)
	assert.Equal(t, "@@ -5,3 +5,3 @@", doc.Files[0].Hunks[0].Header)
}

func TestRelocateHunksSkipsNewFilesAndUnknownBlocks(t *testing.T) {
	in := "diff --git a/n.go b/n.go\nnew file mode 100644\n--- /dev/null\n+++ b/n.go\n@@ -0,0 +1 @@\n+x\n" +
		"diff --git a/m.go b/m.go\n--- a/m.go\n+++ b/m.go\n@@ -2 +2 @@\n-missing\n+y\n"
	calls := 0
	doc, moved, err := RelocateHunks(Parse(in), func(path string) ([]string, error) {
		calls++
		return []string{"a", "b"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, moved)
	assert.Equal(t, in, doc.String())

	_, _, err = RelocateHunks(Parse(in), func(string) ([]string, error) { return nil, errors.New("nope") })
	require.Error(t, err)
}

func TestMatchBlockIgnoresWhitespace(t *testing.T) {
	source := []string{"a", "", "  b   c", "d"}
	assert.Equal(t, 3, matchBlock(source, []string{"b c", "d"}))
	assert.Equal(t, -1, matchBlock(source, []string{"x"}))
	assert.Equal(t, -1, matchBlock(source, nil))
}
