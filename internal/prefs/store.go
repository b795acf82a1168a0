package prefs

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"nextbus/internal/countdown"
	"nextbus/internal/schedule"
)

// FileStore keeps a Selection as a small JSON document on disk.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string { return s.path }

type document struct {
	RouteID   string `json:"routeId"`
	Direction string `json:"direction"`
	StopIndex *int   `json:"stopIndex"`
}

// Load returns the stored selection. ok is false when nothing usable is
// stored; bad fields inside a readable document fall back to defaults.
func (s *FileStore) Load() (countdown.Selection, bool) {
	def := countdown.DefaultSelection()
	b, err := os.ReadFile(s.path)
	if err != nil {
		return def, false
	}
	var doc document
	if err := json.Unmarshal(b, &doc); err != nil {
		return def, false
	}

	sel := def
	if id := strings.TrimSpace(doc.RouteID); id != "" {
		sel.RouteID = id
	}
	if d, ok := schedule.ParseDirection(doc.Direction); ok {
		sel.Direction = d
	}
	if doc.StopIndex != nil && *doc.StopIndex > 0 {
		sel.StopIndex = *doc.StopIndex
	}
	return sel, true
}

// Save writes sel atomically.
func (s *FileStore) Save(sel countdown.Selection) error {
	stop := sel.StopIndex
	b, err := json.MarshalIndent(document{
		RouteID:   sel.RouteID,
		Direction: string(sel.Direction),
		StopIndex: &stop,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode prefs: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("create prefs dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".prefs-*.json")
	if err != nil {
		return fmt.Errorf("create temp prefs: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if _, err := tmp.Write(append(b, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write prefs: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close prefs: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace prefs: %w", err)
	}
	return nil
}
