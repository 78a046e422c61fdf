package patcher

import (
	"path"
	"strings"

	"github.com/steve-dickinson/ai-modernisation-factory/model"
)

// CheckAllowed fails with a DisallowedPathError listing every destination path
// of doc that does not start with one of the allowed prefixes. One offender
// rejects the whole patch.
func CheckAllowed(doc *Document, allow []string) error {
	return CheckPaths(doc.TouchedPaths(), allow)
}

// CheckPaths applies the allowlist to a set of tree-relative paths.
func CheckPaths(paths, allow []string) error {
	var bad []string
	for _, p := range paths {
		if !IsAllowed(p, allow) {
			bad = append(bad, p)
		}
	}
	if len(bad) > 0 {
		return &model.DisallowedPathError{Paths: bad, Allowed: allow}
	}
	return nil
}

// IsAllowed reports whether p, once cleaned, starts with an allowed prefix.
// Absolute paths and paths that climb out of the tree never match.
func IsAllowed(p string, allow []string) bool {
	if p == "" || strings.HasPrefix(p, "/") {
		return false
	}
	clean := path.Clean(p)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return false
	}
	for _, prefix := range allow {
		if prefix == "" {
			continue
		}
		if strings.HasPrefix(clean, prefix) {
			return true
		}
	}
	return false
}
