// Package workspace is the display-surface host of the daemon. It keeps the
// open panes and pop-out windows a front end renders, persists their layout
// inside the vault and reports every change over SSE.
package workspace

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/canvasfocus/internal/apperr"
	"github.com/starford/canvasfocus/internal/sse"
	"github.com/starford/canvasfocus/internal/storage"
	"github.com/starford/canvasfocus/internal/surface"
)

// DefaultFile is the layout file name inside the state folder.
const DefaultFile = "workspace.json"

// Info is the serializable state of one surface.
type Info struct {
	ID        string       `json:"id"`
	Kind      surface.Kind `json:"kind"`
	Path      string       `json:"path"`
	Pinned    bool         `json:"pinned"`
	Label     string       `json:"label,omitempty"`
	Classes   []string     `json:"classes"`
	Actions   []string     `json:"actions"`
	CreatedAt time.Time    `json:"created_at"`
}

type layout struct {
	Surfaces []Info `json:"surfaces"`
}

// Workspace implements surface.Host.
type Workspace struct {
	fs     storage.Provider
	path   string
	pub    sse.Publisher
	logger *slog.Logger

	mu       sync.Mutex
	surfaces map[string]*Info
	onClose  []func(id string)

	saveMu sync.Mutex // serializes layout writes
}

var _ surface.Host = (*Workspace)(nil)

type nopPublisher struct{}

func (nopPublisher) Publish(sse.Event) {}

// New restores the layout stored at path, if any. pub may be nil.
func New(fsys storage.Provider, path string, pub sse.Publisher, logger *slog.Logger) *Workspace {
	if pub == nil {
		pub = nopPublisher{}
	}
	w := &Workspace{
		fs:       fsys,
		path:     path,
		pub:      pub,
		logger:   logger,
		surfaces: make(map[string]*Info),
	}

	data, err := fsys.Read(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("workspace: read layout failed", slog.String("path", path), slog.String("error", err.Error()))
		}
		return w
	}
	var l layout
	if err := json.Unmarshal(data, &l); err != nil {
		logger.Warn("workspace: decode layout failed", slog.String("path", path), slog.String("error", err.Error()))
		return w
	}
	for i := range l.Surfaces {
		info := l.Surfaces[i]
		if info.ID == "" {
			continue
		}
		w.surfaces[info.ID] = &info
	}
	logger.Debug("workspace: restored", slog.Int("surfaces", len(w.surfaces)))
	return w
}

// OnClose registers fn to run when the user closes a surface.
func (w *Workspace) OnClose(fn func(id string)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onClose = append(w.onClose, fn)
}

// CreateSurface opens a new empty surface.
func (w *Workspace) CreateSurface(kind surface.Kind) (surface.Surface, error) {
	info := &Info{
		ID:        uuid.NewString(),
		Kind:      kind,
		Classes:   []string{},
		Actions:   []string{},
		CreatedAt: time.Now().UTC(),
	}
	w.mu.Lock()
	w.surfaces[info.ID] = info
	snap := *info
	w.mu.Unlock()

	w.persist()
	w.pub.Publish(sse.Event{Type: sse.TypeSurfaceCreated, Data: snap})
	return &pane{ws: w, id: info.ID}, nil
}

// Resolve returns the surface with the given id while it is open.
func (w *Workspace) Resolve(id string) (surface.Surface, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.surfaces[id]; !ok {
		return nil, false
	}
	return &pane{ws: w, id: id}, true
}

// Get returns a snapshot of one surface.
func (w *Workspace) Get(id string) (Info, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	info, ok := w.surfaces[id]
	if !ok {
		return Info{}, false
	}
	return clone(info), true
}

// List returns snapshots of all open surfaces, oldest first.
func (w *Workspace) List() []Info {
	w.mu.Lock()
	out := make([]Info, 0, len(w.surfaces))
	for _, info := range w.surfaces {
		out = append(out, clone(info))
	}
	w.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Close closes a surface on behalf of the user and notifies the OnClose
// listeners.
func (w *Workspace) Close(id string) error {
	listeners, err := w.remove(id, "user")
	if err != nil {
		return err
	}
	for _, fn := range listeners {
		fn(id)
	}
	return nil
}

func (w *Workspace) remove(id, reason string) ([]func(string), error) {
	w.mu.Lock()
	if _, ok := w.surfaces[id]; !ok {
		w.mu.Unlock()
		return nil, fmt.Errorf("workspace: surface %s: %w", id, apperr.ErrNotFound)
	}
	delete(w.surfaces, id)
	listeners := slices.Clone(w.onClose)
	w.mu.Unlock()

	w.persist()
	w.pub.Publish(sse.Event{Type: sse.TypeSurfaceClosed, Data: map[string]string{"id": id, "reason": reason}})
	w.logger.Debug("workspace: surface closed", slog.String("surface", id), slog.String("reason", reason))
	return listeners, nil
}

// mutate applies fn to an open surface and publishes the result. fn reports
// whether it changed anything.
func (w *Workspace) mutate(id string, fn func(*Info) bool) (Info, bool) {
	w.mu.Lock()
	info, ok := w.surfaces[id]
	if !ok || !fn(info) {
		w.mu.Unlock()
		return Info{}, false
	}
	snap := clone(info)
	w.mu.Unlock()

	w.persist()
	w.pub.Publish(sse.Event{Type: sse.TypeSurfaceUpdated, Data: snap})
	return snap, true
}

func (w *Workspace) read(id string, fn func(*Info)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if info, ok := w.surfaces[id]; ok {
		fn(info)
	}
}

func (w *Workspace) persist() {
	w.saveMu.Lock()
	defer w.saveMu.Unlock()
	data, err := json.MarshalIndent(layout{Surfaces: w.List()}, "", "  ")
	if err != nil {
		w.logger.Warn("workspace: encode layout failed", slog.String("error", err.Error()))
		return
	}
	if err := w.fs.Write(w.path, data); err != nil {
		w.logger.Warn("workspace: write layout failed", slog.String("path", w.path), slog.String("error", err.Error()))
	}
}

func clone(info *Info) Info {
	c := *info
	c.Classes = slices.Clone(info.Classes)
	c.Actions = slices.Clone(info.Actions)
	return c
}
