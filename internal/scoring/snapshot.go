package scoring

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

const snapshotVersion = 1

type snapshotFile struct {
	Version int                          `json:"version"`
	SavedAt time.Time                    `json:"saved_at"`
	Decay   float64                      `json:"decay_per_day"`
	Scopes  map[string]map[string]*entry `json:"scopes"`
}

// Load replaces the model's state with the snapshot at path. A missing
// file leaves the model empty, which is the cold-start case.
func (m *Model) Load(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read score snapshot: %w", err)
	}

	var snap snapshotFile
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("parse score snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return fmt.Errorf("score snapshot version %d not supported", snap.Version)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if snap.Scopes == nil {
		snap.Scopes = make(map[string]map[string]*entry)
	}
	m.scopes = snap.Scopes
	m.dirty = false
	return nil
}

// Save writes the model atomically via a temp file rename. Save is a no-op
// when nothing changed since the last save or load.
func (m *Model) Save(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.dirty {
		return nil
	}

	snap := snapshotFile{
		Version: snapshotVersion,
		SavedAt: time.Now().UTC(),
		Decay:   m.decayPerDay,
		Scopes:  m.scopes,
	}
	payload, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal score snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return fmt.Errorf("write score snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename score snapshot: %w", err)
	}
	m.dirty = false
	return nil
}
