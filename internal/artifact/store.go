// Package artifact persists the patch files a run produces.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Store keeps run artifacts keyed by run ID and file name.
type Store interface {
	Put(ctx context.Context, runID, name string, content []byte) error
	Get(ctx context.Context, runID, name string) ([]byte, error)
	List(ctx context.Context, runID string) ([]string, error)
}

var ErrNotFound = errors.New("artifact not found")

func checkKey(runID, name string) (string, string, error) {
	runID = strings.TrimSpace(runID)
	name = strings.TrimSpace(name)
	if runID == "" {
		return "", "", fmt.Errorf("run_id is required")
	}
	if name == "" {
		return "", "", fmt.Errorf("name is required")
	}
	return runID, name, nil
}

func objectKey(runID, name string) string {
	return strings.TrimSpace(runID) + "/" + strings.TrimLeft(strings.TrimSpace(name), "/")
}
