// Package nvim asks a running Neovim to reload buffers for files a patch changed.
package nvim

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/neovim/go-client/nvim"
	"go.uber.org/zap"
)

// Manager holds a connection to a listening Neovim instance.
type Manager struct {
	nvim *nvim.Nvim
	root string
	log  *zap.Logger
}

// Address returns the socket of the Neovim the process runs under, if any.
func Address() string {
	if addr := os.Getenv("NVIM"); addr != "" {
		return addr
	}
	return os.Getenv("NVIM_LISTEN_ADDRESS")
}

// Connect dials addr. Paths given to Reload are resolved against root.
// An empty addr yields a nil Manager, which is valid and does nothing.
func Connect(addr, root string, log *zap.Logger) (*Manager, error) {
	if addr == "" {
		return nil, nil
	}
	if log == nil {
		log = zap.NewNop()
	}
	v, err := nvim.Dial(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nvim at %s: %w", addr, err)
	}
	return &Manager{nvim: v, root: root, log: log}, nil
}

// Reload runs :checktime on the buffers open for paths so unmodified ones
// pick up the patched files. With no paths every buffer is checked.
func (m *Manager) Reload(paths []string) error {
	if m == nil {
		return nil
	}
	if len(paths) == 0 {
		if err := m.nvim.Command("checktime"); err != nil {
			return fmt.Errorf("nvim checktime: %w", err)
		}
		return nil
	}

	names := absPaths(m.root, paths)
	bufs := make([]int, len(names))
	b := m.nvim.NewBatch()
	for i, name := range names {
		b.Call("bufnr", &bufs[i], name)
	}
	if err := b.Execute(); err != nil {
		return fmt.Errorf("nvim bufnr: %w", err)
	}

	cmds := checktimeCommands(bufs)
	if len(cmds) == 0 {
		return nil
	}
	b = m.nvim.NewBatch()
	for _, c := range cmds {
		b.Command(c)
	}
	if err := b.Execute(); err != nil {
		return fmt.Errorf("nvim checktime: %w", err)
	}
	m.log.Debug("reloaded nvim buffers", zap.Strings("paths", paths), zap.Ints("buffers", bufs))
	return nil
}

func absPaths(root string, paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		if !filepath.IsAbs(p) {
			p = filepath.Join(root, p)
		}
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		out[i] = p
	}
	return out
}

// checktimeCommands skips paths with no buffer, which bufnr reports as -1.
func checktimeCommands(bufs []int) []string {
	var cmds []string
	for _, n := range bufs {
		if n > 0 {
			cmds = append(cmds, fmt.Sprintf("checktime %d", n))
		}
	}
	return cmds
}

func (m *Manager) Close() {
	if m != nil && m.nvim != nil {
		m.nvim.Close()
	}
}
