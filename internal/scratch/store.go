// Package scratch manages the folder of temporary documents that back free-text
// canvas nodes while they are edited in the focus surface.
package scratch

import (
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/starford/canvasfocus/internal/apperr"
	"github.com/starford/canvasfocus/internal/storage"
)

const docPrefix = "node-"

// Store owns the scratch area. No other component writes into it.
type Store struct {
	fs     storage.Provider
	dir    string
	logger *slog.Logger
}

// New creates a Store rooted at dir (relative to the vault).
func New(fs storage.Provider, dir string, logger *slog.Logger) *Store {
	return &Store{
		fs:     fs,
		dir:    strings.Trim(path.Clean("/"+dir), "/"),
		logger: logger,
	}
}

// Dir returns the scratch folder relative to the vault root.
func (s *Store) Dir() string { return s.dir }

// EnsureArea makes sure the scratch folder exists. Failures are logged and
// reported as false so callers can skip text-node sync instead of failing.
func (s *Store) EnsureArea() bool {
	if err := s.fs.MkdirAll(s.dir); err != nil {
		s.logger.Error("scratch: ensure area failed",
			slog.String("dir", s.dir),
			slog.String("error", err.Error()))
		return false
	}
	return true
}

// PathFor returns the deterministic document path for a node.
func (s *Store) PathFor(nodeID string) string {
	return path.Join(s.dir, docPrefix+segment(nodeID)+".md")
}

// Contains reports whether p lives inside the scratch area.
func (s *Store) Contains(p string) bool {
	p = path.Clean(strings.ReplaceAll(p, "\\", "/"))
	return strings.HasPrefix(p, s.dir+"/")
}

// Get looks up the document for nodeID.
func (s *Store) Get(nodeID string) (string, bool) {
	p := s.PathFor(nodeID)
	ok, err := s.fs.Exists(p)
	if err != nil {
		s.logger.Warn("scratch: lookup failed", slog.String("path", p), slog.String("error", err.Error()))
		return "", false
	}
	return p, ok
}

// Create writes a new document holding content. An existing document is left
// untouched and its path returned.
func (s *Store) Create(nodeID, content string) (string, error) {
	if p, ok := s.Get(nodeID); ok {
		return p, nil
	}
	p := s.PathFor(nodeID)
	if err := s.fs.Write(p, []byte(content)); err != nil {
		return "", fmt.Errorf("scratch: create %s: %w", p, err)
	}
	s.logger.Debug("scratch: created", slog.String("path", p))
	return p, nil
}

// Read returns the full content of a scratch document.
func (s *Store) Read(p string) (string, error) {
	data, err := s.fs.Read(p)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Write replaces the full content of a scratch document.
func (s *Store) Write(p, content string) error {
	if !s.Contains(p) {
		return fmt.Errorf("scratch: %s is outside %s: %w", p, s.dir, apperr.ErrNotFound)
	}
	return s.fs.Write(p, []byte(content))
}

// Delete removes one scratch document.
func (s *Store) Delete(p string) error {
	if !s.Contains(p) {
		return fmt.Errorf("scratch: %s is outside %s: %w", p, s.dir, apperr.ErrNotFound)
	}
	return s.fs.Delete(p)
}

// Sweep deletes every document in the scratch area. It keeps going past
// individual failures and returns them joined.
func (s *Store) Sweep() (int, error) {
	metas, err := s.fs.List(s.dir)
	if err != nil {
		s.logger.Warn("scratch: sweep list failed", slog.String("error", err.Error()))
		return 0, err
	}
	var (
		removed int
		errs    []error
	)
	for _, m := range metas {
		if err := s.fs.Delete(m.Path); err != nil {
			s.logger.Warn("scratch: sweep delete failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			errs = append(errs, err)
			continue
		}
		removed++
	}
	s.logger.Info("scratch: swept", slog.Int("removed", removed), slog.Int("failed", len(errs)))
	return removed, errors.Join(errs...)
}

// segment makes a node identifier safe to use as a single path segment.
// Letters, digits and '-' pass through; every other byte becomes '_' plus two
// hex digits, so distinct ids never share a document.
func segment(id string) string {
	if id == "" {
		return "_"
	}
	const hex = "0123456789abcdef"
	var b strings.Builder
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-':
			b.WriteByte(c)
		default:
			b.WriteByte('_')
			b.WriteByte(hex[c>>4])
			b.WriteByte(hex[c&0x0f])
		}
	}
	return b.String()
}
