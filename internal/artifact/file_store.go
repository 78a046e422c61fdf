package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileStore writes artifacts under fixed names in the target tree so they can
// be inspected and applied by hand. The run ID does not affect the location;
// a later run overwrites the files of an earlier one.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Path returns where name is stored.
func (s *FileStore) Path(name string) string {
	return filepath.Join(s.dir, name)
}

func (s *FileStore) Put(_ context.Context, runID, name string, content []byte) error {
	_, name, err := checkKey(runID, name)
	if err != nil {
		return err
	}
	if filepath.IsAbs(name) || strings.Contains(name, "..") {
		return fmt.Errorf("artifact name must be relative to the target: %s", name)
	}
	p := s.Path(name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", p, err)
	}
	if err := os.WriteFile(p, content, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", p, err)
	}
	return nil
}

func (s *FileStore) Get(_ context.Context, runID, name string) ([]byte, error) {
	_, name, err := checkKey(runID, name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

// List returns the patch files currently present at the top of the target.
func (s *FileStore) List(_ context.Context, runID string) ([]string, error) {
	if strings.TrimSpace(runID) == "" {
		return nil, fmt.Errorf("run_id is required")
	}
	matches, err := filepath.Glob(filepath.Join(s.dir, "*.patch"))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, filepath.Base(m))
	}
	sort.Strings(out)
	return out, nil
}
