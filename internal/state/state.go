// Package state records applied patch sets so a run can be undone and redone.
package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/steve-dickinson/ai-modernisation-factory/internal/fs"
)

const (
	DirName       = ".modernise"
	stateFileName = "state"
	HistoryDir    = "history"
)

var (
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")
	ErrTampered      = errors.New("history patch does not match its recorded hash")
)

// Patch is a patch that was applied to the target tree.
type Patch struct {
	// Kind is "patch" for the primary patch and "fix" for corrective ones.
	Kind    string
	Name    string
	Content []byte
}

// Record is a stored copy of an applied patch.
type Record struct {
	Kind string
	File string
	Hash string
}

// Entry is one pipeline run.
type Entry struct {
	Timestamp int64
	RunID     string
	Patches   []Record
}

type State struct {
	History      []Entry
	CurrentIndex int
}

// Manager owns .modernise/state and the patch copies under .modernise/history.
type Manager struct {
	StateDir   string
	statePath  string
	historyDir string
	state      *State
	now        func() time.Time
}

// New loads the state kept in root, creating the directory when needed.
func New(root string) (*Manager, error) {
	stateDir := filepath.Join(root, DirName)
	historyDir := filepath.Join(stateDir, HistoryDir)
	if err := os.MkdirAll(historyDir, 0755); err != nil {
		return nil, fmt.Errorf("could not create state directory: %w", err)
	}
	m := &Manager{
		StateDir:   stateDir,
		statePath:  filepath.Join(stateDir, stateFileName),
		historyDir: historyDir,
		now:        time.Now,
	}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) load() error {
	m.state = &State{CurrentIndex: -1}
	data, err := os.ReadFile(m.statePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	content := strings.ReplaceAll(string(data), "\r\n", "\n")
	blocks := strings.Split(content, "\n\n")
	if strings.TrimSpace(blocks[0]) == "" {
		return nil
	}

	index, err := strconv.Atoi(strings.TrimSpace(blocks[0]))
	if err != nil {
		return fmt.Errorf("invalid state file: could not parse current index: %w", err)
	}
	m.state.CurrentIndex = index

	for _, block := range blocks[1:] {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		lines := strings.Split(block, "\n")
		if len(lines) < 2 {
			return fmt.Errorf("invalid state file: incomplete entry")
		}
		ts, err := strconv.ParseInt(lines[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid state file: could not parse timestamp from '%s': %w", lines[0], err)
		}
		entry := Entry{Timestamp: ts, RunID: lines[1]}
		recs := lines[2:]
		if len(recs)%3 != 0 {
			return fmt.Errorf("invalid state file: incomplete patch record in run %s", entry.RunID)
		}
		for i := 0; i < len(recs); i += 3 {
			entry.Patches = append(entry.Patches, Record{Kind: recs[i], File: recs[i+1], Hash: recs[i+2]})
		}
		m.state.History = append(m.state.History, entry)
	}
	if m.state.CurrentIndex >= len(m.state.History) || m.state.CurrentIndex < -1 {
		return fmt.Errorf("invalid state file: index %d out of range", m.state.CurrentIndex)
	}
	return nil
}

func (m *Manager) save() error {
	blocks := []string{strconv.Itoa(m.state.CurrentIndex)}
	for _, entry := range m.state.History {
		lines := []string{strconv.FormatInt(entry.Timestamp, 10), entry.RunID}
		for _, r := range entry.Patches {
			lines = append(lines, r.Kind, r.File, r.Hash)
		}
		blocks = append(blocks, strings.Join(lines, "\n"))
	}
	if err := os.WriteFile(m.statePath, []byte(strings.Join(blocks, "\n\n")+"\n"), 0644); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

// Write stores copies of patches as a new entry. Entries after the current
// one are discarded, as after an undo.
func (m *Manager) Write(runID string, patches []Patch) error {
	entry := Entry{Timestamp: m.now().UTC().Unix(), RunID: runID}
	for i, p := range patches {
		file := fmt.Sprintf("%s-%d-%s", runID, i+1, strings.TrimPrefix(p.Name, "."))
		if err := os.WriteFile(filepath.Join(m.historyDir, file), p.Content, 0644); err != nil {
			return fmt.Errorf("failed to store %s: %w", p.Name, err)
		}
		entry.Patches = append(entry.Patches, Record{Kind: p.Kind, File: file, Hash: fs.SHA256(p.Content)})
	}

	m.state.History = append(m.state.History[:m.state.CurrentIndex+1], entry)
	m.state.CurrentIndex = len(m.state.History) - 1
	return m.save()
}

// Undo passes the patches of the current entry, newest first, to reverse and
// moves back one entry once reverse succeeds.
func (m *Manager) Undo(reverse func(paths []string) error) (Entry, error) {
	if m.state.CurrentIndex < 0 {
		return Entry{}, ErrNothingToUndo
	}
	entry := m.state.History[m.state.CurrentIndex]
	paths, err := m.verified(entry)
	if err != nil {
		return entry, err
	}
	for i, j := 0, len(paths)-1; i < j; i, j = i+1, j-1 {
		paths[i], paths[j] = paths[j], paths[i]
	}
	if err := reverse(paths); err != nil {
		return entry, err
	}
	m.state.CurrentIndex--
	return entry, m.save()
}

// Redo passes the patches of the next entry, in apply order, to apply and
// moves forward once apply succeeds.
func (m *Manager) Redo(apply func(paths []string) error) (Entry, error) {
	next := m.state.CurrentIndex + 1
	if next >= len(m.state.History) {
		return Entry{}, ErrNothingToRedo
	}
	entry := m.state.History[next]
	paths, err := m.verified(entry)
	if err != nil {
		return entry, err
	}
	if err := apply(paths); err != nil {
		return entry, err
	}
	m.state.CurrentIndex = next
	return entry, m.save()
}

// Entries returns the recorded runs, oldest first, and the current index.
func (m *Manager) Entries() ([]Entry, int) {
	return append([]Entry(nil), m.state.History...), m.state.CurrentIndex
}

func (m *Manager) verified(entry Entry) ([]string, error) {
	paths := make([]string, 0, len(entry.Patches))
	for _, r := range entry.Patches {
		p := filepath.Join(m.historyDir, r.File)
		hash, err := fs.FileSHA256(p)
		if err != nil {
			return nil, fmt.Errorf("history patch %s: %w", r.File, err)
		}
		if hash != r.Hash {
			return nil, fmt.Errorf("%w: %s", ErrTampered, r.File)
		}
		paths = append(paths, p)
	}
	return paths, nil
}
