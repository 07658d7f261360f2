// Package surface tracks the single reusable focus surface: a split pane or
// pop-out window that shows whatever the canvas selection points at.
package surface

import (
	"fmt"
	"log/slog"
)

// Kind selects how a new surface is created.
type Kind string

const (
	KindSplit  Kind = "split"
	KindPopout Kind = "popout"
)

// Presentation markers applied to the focus surface.
const (
	ClassFocus     = "canvas-focus-surface"
	ClassTemporary = "canvas-focus-temporary"
	ActionConvert  = "convert"
	DefaultLabel   = "Canvas text"
)

// Surface is a display surface owned by the host.
type Surface interface {
	ID() string
	// Current returns the path of the displayed document, or "".
	Current() string
	Open(path string, focus bool) error
	Pinned() bool
	SetPinned(pinned bool)
	Label() string
	SetLabel(label string)
	HasClass(name string) bool
	SetClass(name string, on bool)
	HasAction(name string) bool
	AddAction(name string)
	RemoveAction(name string)
	Detach()
}

// Host creates surfaces and resolves them by identifier.
type Host interface {
	CreateSurface(kind Kind) (Surface, error)
	Resolve(id string) (Surface, bool)
}

// IDStore persists the tracked surface identifier across restarts.
type IDStore interface {
	SurfaceID() string
	SetSurfaceID(id string) error
}

// Target is a document to display.
type Target struct {
	Path      string
	Ephemeral bool
	Label     string
}

// Options configures a Manager.
type Options struct {
	Kind            Kind
	PinnedByDefault bool
	FocusOnOpen     bool
	// IsEphemeral tells whether a displayed path is a temporary document.
	IsEphemeral func(path string) bool
}

// Manager owns at most one tracked surface. It is not safe for concurrent use.
type Manager struct {
	host   Host
	ids    IDStore
	opts   Options
	logger *slog.Logger

	id      string
	created int
}

// NewManager creates a Manager. Call Recover to adopt a persisted surface.
func NewManager(host Host, ids IDStore, opts Options, logger *slog.Logger) *Manager {
	if opts.Kind == "" {
		opts.Kind = KindPopout
	}
	if opts.IsEphemeral == nil {
		opts.IsEphemeral = func(string) bool { return false }
	}
	return &Manager{host: host, ids: ids, opts: opts, logger: logger}
}

// Tracked returns the tracked surface identifier, or "".
func (m *Manager) Tracked() string { return m.id }

// Created returns how many surfaces this manager has created.
func (m *Manager) Created() int { return m.created }

// Current returns the tracked surface if it still resolves. A stale
// identifier is dropped.
func (m *Manager) Current() (Surface, bool) {
	if m.id == "" {
		return nil, false
	}
	s, ok := m.host.Resolve(m.id)
	if !ok {
		m.logger.Info("surface: tracked surface is gone", slog.String("surface", m.id))
		m.track("")
		return nil, false
	}
	return s, true
}

// Prepare returns the live tracked surface, creating one when needed.
func (m *Manager) Prepare() (Surface, error) {
	if s, ok := m.Current(); ok {
		return s, nil
	}
	s, err := m.host.CreateSurface(m.opts.Kind)
	if err != nil {
		return nil, fmt.Errorf("surface: create %s: %w", m.opts.Kind, err)
	}
	s.SetPinned(m.opts.PinnedByDefault)
	m.created++
	m.track(s.ID())
	m.logger.Info("surface: created", slog.String("surface", s.ID()), slog.String("kind", string(m.opts.Kind)))
	return s, nil
}

// Show displays t in s. When s already shows t.Path only the styling is
// refreshed, so the editor keeps its cursor and scroll position. It reports
// whether the document was (re)opened.
func (m *Manager) Show(s Surface, t Target) (bool, error) {
	if s.Current() == t.Path {
		m.Style(s, t.Ephemeral, t.Label)
		return false, nil
	}
	if err := s.Open(t.Path, m.opts.FocusOnOpen); err != nil {
		return false, fmt.Errorf("surface: open %s: %w", t.Path, err)
	}
	m.Style(s, t.Ephemeral, t.Label)
	return true, nil
}

// Style applies the presentation state for s. Repeated calls converge on the
// same state.
func (m *Manager) Style(s Surface, ephemeral bool, label string) {
	s.SetClass(ClassFocus, true)
	s.SetClass(ClassTemporary, ephemeral)
	if !ephemeral {
		s.SetLabel("")
		if s.HasAction(ActionConvert) {
			s.RemoveAction(ActionConvert)
		}
		return
	}
	if label == "" {
		label = DefaultLabel
	}
	s.SetLabel(label)
	if !s.HasAction(ActionConvert) {
		s.AddAction(ActionConvert)
	}
}

// Recover adopts the persisted surface if it still resolves and clears the
// persisted identifier otherwise.
func (m *Manager) Recover() bool {
	id := m.ids.SurfaceID()
	if id == "" {
		return false
	}
	s, ok := m.host.Resolve(id)
	if !ok {
		m.logger.Info("surface: persisted surface not found", slog.String("surface", id))
		m.track("")
		return false
	}
	m.id = id
	m.Style(s, m.opts.IsEphemeral(s.Current()), s.Label())
	m.logger.Info("surface: recovered", slog.String("surface", id))
	return true
}

// Closed handles a host close notification. It reports whether the closed
// surface was the tracked one.
func (m *Manager) Closed(id string) bool {
	if id == "" || id != m.id {
		return false
	}
	m.logger.Info("surface: closed by user", slog.String("surface", id))
	m.track("")
	return true
}

// Close detaches the tracked surface and forgets it.
func (m *Manager) Close() {
	if s, ok := m.Current(); ok {
		s.Detach()
	}
	m.track("")
}

func (m *Manager) track(id string) {
	if m.id == id && m.ids.SurfaceID() == id {
		return
	}
	m.id = id
	if err := m.ids.SetSurfaceID(id); err != nil {
		m.logger.Warn("surface: persist id failed", slog.String("error", err.Error()))
	}
}
