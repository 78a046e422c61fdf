// Package schema validates extracted JSON documents against JSON Schema files.
package schema

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/steve-dickinson/ai-modernisation-factory/model"
)

const (
	baseURL          = "https://modernise.local/schemas/"
	DefaultCacheSize = 32
)

// Registry compiles schemas once and keeps them in an LRU keyed by content.
type Registry struct {
	cache *lru.Cache[string, *jsonschema.Schema]
}

func NewRegistry(size int) (*Registry, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, *jsonschema.Schema](size)
	if err != nil {
		return nil, err
	}
	return &Registry{cache: cache}, nil
}

// Load reads and compiles the schema file at path.
func (r *Registry) Load(path string) (*jsonschema.Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema %s: %w", path, err)
	}
	return r.Compile(filepath.Base(path), data)
}

// Compile compiles a schema document. name only affects error messages and the resource URL.
func (r *Registry) Compile(name string, data []byte) (*jsonschema.Schema, error) {
	sum := sha256.Sum256(data)
	key := hex.EncodeToString(sum[:])
	if s, ok := r.cache.Get(key); ok {
		return s, nil
	}

	url := baseURL + name
	c := jsonschema.NewCompiler()
	c.AssertFormat = true
	if err := c.AddResource(url, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("invalid schema %s: %w", name, err)
	}
	s, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema %s: %w", name, err)
	}
	r.cache.Add(key, s)
	return s, nil
}

// Validate checks value against s and reports every violation as a *model.SchemaError.
func Validate(s *jsonschema.Schema, name string, value any) error {
	err := s.Validate(value)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return &model.SchemaError{Schema: name, Issues: []string{err.Error()}}
	}
	var issues []string
	collect(ve, &issues)
	sort.Strings(issues)
	return &model.SchemaError{Schema: name, Issues: issues}
}

// ValidateFile loads the schema at path and validates value against it.
func (r *Registry) ValidateFile(path string, value any) error {
	s, err := r.Load(path)
	if err != nil {
		return err
	}
	return Validate(s, filepath.Base(path), value)
}

// collect keeps the leaves of the cause tree, which name the actual violations.
func collect(ve *jsonschema.ValidationError, out *[]string) {
	if len(ve.Causes) == 0 {
		loc := ve.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		*out = append(*out, fmt.Sprintf("%s: %s", loc, ve.Message))
		return
	}
	for _, c := range ve.Causes {
		collect(c, out)
	}
}
