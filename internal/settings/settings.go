// Package settings persists the small plugin state record (enabled flag,
// surface preferences, saved surface id) as TOML inside the vault.
package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"sync"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/starford/canvasfocus/internal/storage"
)

// DefaultFile is the state file name inside the state folder.
const DefaultFile = "state.toml"

// State is the persisted record. Only Enabled and SavedSurfaceID are read
// back by Load; the other fields are written for reference and always come
// from the configuration.
type State struct {
	Enabled         bool   `toml:"enabled"`
	PinnedByDefault bool   `toml:"pinned_by_default"`
	FocusOnOpen     bool   `toml:"focus_on_open"`
	SavedSurfaceID  string `toml:"saved_surface_id"`
	ScratchPath     string `toml:"scratch_path"`
}

// Store holds the live state and writes it back on every change.
type Store struct {
	fs     storage.Provider
	path   string
	logger *slog.Logger

	mu    sync.Mutex
	state State
}

// Load reads the state file at path. The surface preferences and scratch path
// always come from defaults (the configuration owns them); the enabled flag
// and saved surface id come from the file when it exists. A missing or
// unreadable file leaves defaults in place.
func Load(fsys storage.Provider, path string, defaults State, logger *slog.Logger) *Store {
	s := &Store{fs: fsys, path: path, logger: logger, state: defaults}

	data, err := fsys.Read(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("settings: read failed", slog.String("path", path), slog.String("error", err.Error()))
		}
		return s
	}
	saved := defaults
	if err := toml.Unmarshal(data, &saved); err != nil {
		logger.Warn("settings: decode failed, using defaults", slog.String("path", path), slog.String("error", err.Error()))
		return s
	}
	s.state.Enabled = saved.Enabled
	s.state.SavedSurfaceID = strings.TrimSpace(saved.SavedSurfaceID)
	return s
}

// State returns a snapshot of the current record.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Enabled reports whether the focus behavior is switched on.
func (s *Store) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Enabled
}

// SetEnabled records the flag and persists it.
func (s *Store) SetEnabled(on bool) error {
	return s.update(func(st *State) { st.Enabled = on })
}

// SurfaceID returns the persisted focus surface identity, or "".
func (s *Store) SurfaceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.SavedSurfaceID
}

// SetSurfaceID records the focus surface identity and persists it.
func (s *Store) SetSurfaceID(id string) error {
	return s.update(func(st *State) { st.SavedSurfaceID = id })
}

func (s *Store) update(fn func(*State)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.state
	fn(&s.state)
	if s.state == prev {
		return nil
	}
	return s.saveLocked()
}

// Save writes the current record.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	data, err := toml.Marshal(s.state)
	if err != nil {
		return fmt.Errorf("settings: marshal: %w", err)
	}
	if err := s.fs.Write(s.path, data); err != nil {
		return fmt.Errorf("settings: write %s: %w", s.path, err)
	}
	return nil
}
