package settings

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/canvasfocus/internal/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

var defaults = State{
	Enabled:         true,
	PinnedByDefault: true,
	FocusOnOpen:     false,
	ScratchPath:     "canvas-focus-temp",
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	_, store := testutil.TestVault(t)
	s := Load(store, ".canvasfocus/state.toml", defaults, quietLogger())
	if s.State() != defaults {
		t.Errorf("state = %+v, want %+v", s.State(), defaults)
	}
}

func TestLoad_CorruptFileUsesDefaults(t *testing.T) {
	dir, store := testutil.TestVault(t)
	_ = os.WriteFile(filepath.Join(dir, "state.toml"), []byte("enabled = [oops"), 0o644)
	s := Load(store, "state.toml", defaults, quietLogger())
	if s.State() != defaults {
		t.Errorf("state = %+v, want defaults", s.State())
	}
}

func TestRoundTripKeepsFlagAndSurface(t *testing.T) {
	dir, store := testutil.TestVault(t)
	path := ".canvasfocus/state.toml"

	s := Load(store, path, defaults, quietLogger())
	if err := s.SetEnabled(false); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	if err := s.SetSurfaceID("abc-123"); err != nil {
		t.Fatalf("SetSurfaceID: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, path))
	if err != nil {
		t.Fatalf("state file not written: %v", err)
	}
	if !strings.Contains(string(data), "saved_surface_id") || !strings.Contains(string(data), "abc-123") {
		t.Errorf("state file = %q", data)
	}

	// Preferences follow the new defaults, persisted fields follow the file.
	next := defaults
	next.FocusOnOpen = true
	s2 := Load(store, path, next, quietLogger())
	st := s2.State()
	if st.Enabled || st.SavedSurfaceID != "abc-123" || !st.FocusOnOpen {
		t.Errorf("reloaded state = %+v", st)
	}
}

func TestUpdateUnchangedDoesNotWrite(t *testing.T) {
	dir, store := testutil.TestVault(t)
	s := Load(store, "state.toml", defaults, quietLogger())
	if err := s.SetEnabled(true); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "state.toml")); !os.IsNotExist(err) {
		t.Errorf("unchanged update should not write, stat err = %v", err)
	}
}

func TestLoad_ConfigOwnedFieldsComeFromDefaults(t *testing.T) {
	dir, store := testutil.TestVault(t)
	_ = os.WriteFile(filepath.Join(dir, "state.toml"), []byte(
		"enabled = false\npinned_by_default = false\nfocus_on_open = true\nscratch_path = \"elsewhere\"\nsaved_surface_id = \"s1\"\n"), 0o644)

	got := Load(store, "state.toml", defaults, quietLogger()).State()
	want := defaults
	want.Enabled = false
	want.SavedSurfaceID = "s1"
	if got != want {
		t.Errorf("state = %+v, want %+v", got, want)
	}
}
