package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steve-dickinson/ai-modernisation-factory/internal/parser"
	"github.com/steve-dickinson/ai-modernisation-factory/model"
)

const sliceSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["id", "title", "files"],
  "properties": {
    "id": {"type": "string", "pattern": "^slice-[0-9]+$"},
    "title": {"type": "string", "minLength": 1},
    "files": {"type": "array", "items": {"type": "string"}},
    "priority": {"type": "integer", "minimum": 1}
  }
}`

func extract(t *testing.T, text string) any {
	t.Helper()
	got, err := parser.ExtractJSON(text)
	require.NoError(t, err)
	return got.Value
}

func TestValidateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slice.schema.json")
	require.NoError(t, os.WriteFile(path, []byte(sliceSchema), 0o644))
	r, err := NewRegistry(0)
	require.NoError(t, err)

	ok := extract(t, `Here it is: <json>{"id":"slice-1","title":"Login","files":["src/login.js"],"priority":2}</json>`)
	require.NoError(t, r.ValidateFile(path, ok))

	bad := extract(t, `{"id":"S1","files":[1],"priority":0}`)
	err = r.ValidateFile(path, bad)
	require.ErrorIs(t, err, model.ErrSchemaValidationFailed)

	var se *model.SchemaError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "slice.schema.json", se.Schema)
	assert.GreaterOrEqual(t, len(se.Issues), 4, se.Issues)
	assert.Contains(t, err.Error(), "/id")
	assert.Contains(t, err.Error(), "/files/0")
	assert.Contains(t, err.Error(), "/priority")
}

func TestCompileCachesByContent(t *testing.T) {
	r, err := NewRegistry(2)
	require.NoError(t, err)

	a, err := r.Compile("a.json", []byte(sliceSchema))
	require.NoError(t, err)
	b, err := r.Compile("b.json", []byte(sliceSchema))
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, 1, r.cache.Len())
}

func TestCompileErrors(t *testing.T) {
	r, err := NewRegistry(1)
	require.NoError(t, err)

	_, err = r.Compile("broken.json", []byte(`{"type": `))
	assert.Error(t, err)

	_, err = r.Compile("wrong.json", []byte(`{"type": 12}`))
	assert.Error(t, err)

	_, err = r.Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
