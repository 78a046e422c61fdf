// Package fs holds small file helpers shared by the pipeline.
package fs

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// SHA256 returns the hex digest of data.
func SHA256(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// FileSHA256 returns the hex digest of the file at path.
func FileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Exists reports whether path can be stat'ed.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// PathResolver maps diff paths onto the target tree.
type PathResolver struct {
	root string
}

func NewPathResolver(root string) *PathResolver {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return &PathResolver{root: root}
}

// Resolve joins a slash-separated diff path onto the root.
func (r *PathResolver) Resolve(diffPath string) string {
	return filepath.Join(r.root, filepath.FromSlash(diffPath))
}

// ReadLines returns the lines of a file in the target tree without line terminators.
func (r *PathResolver) ReadLines(diffPath string) ([]string, error) {
	f, err := os.Open(r.Resolve(diffPath))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		lines = append(lines, strings.TrimSuffix(sc.Text(), "\r"))
	}
	return lines, sc.Err()
}

// Classify splits destination paths into ones that already exist and ones that do not.
func (r *PathResolver) Classify(paths []string) (existing, missing []string) {
	for _, p := range paths {
		if Exists(r.Resolve(p)) {
			existing = append(existing, p)
		} else {
			missing = append(missing, p)
		}
	}
	return existing, missing
}
