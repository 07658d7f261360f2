// Package canvas hosts one JSON Canvas document in memory: its nodes and
// edges, the current selection, and debounced persistence through the vault
// storage.
package canvas

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/canvasfocus/internal/apperr"
	"github.com/starford/canvasfocus/internal/checksum"
	"github.com/starford/canvasfocus/internal/debounce"
	"github.com/starford/canvasfocus/internal/models"
	"github.com/starford/canvasfocus/internal/storage"
)

// ErrNotText is returned when a text operation targets a node without text.
var ErrNotText = errors.New("canvas: node does not hold text")

// File is an open .canvas document. All methods are safe for concurrent use.
type File struct {
	store  storage.Provider
	path   string
	logger *slog.Logger
	save   *debounce.Debouncer

	mu        sync.Mutex
	doc       models.CanvasDocument
	selection []string
	written   string // checksum of the last content read or written by us
	dirty     bool
	closed    bool
}

// Open loads the canvas at path. Save requests are coalesced over saveDelay.
func Open(store storage.Provider, path string, saveDelay time.Duration, logger *slog.Logger) (*File, error) {
	if !strings.HasSuffix(path, ".canvas") {
		return nil, fmt.Errorf("canvas: open %s: not a .canvas file", path)
	}
	data, err := store.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("canvas: open %s: %w", path, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("canvas: open %s: %w", path, err)
	}
	doc, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("canvas: open %s: %w", path, err)
	}

	f := &File{
		store:   store,
		path:    path,
		logger:  logger,
		doc:     doc,
		written: checksum.Sum(data),
	}
	f.save = debounce.New(func() {
		if err := f.Save(); err != nil {
			f.logger.Warn("canvas: save failed", slog.String("path", f.path), slog.String("error", err.Error()))
		}
	}, saveDelay)
	return f, nil
}

func decode(data []byte) (models.CanvasDocument, error) {
	var doc models.CanvasDocument
	if len(strings.TrimSpace(string(data))) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("decode: %w", err)
	}
	return doc, nil
}

// NewNodeID returns a fresh 16 hex character node identifier.
func NewNodeID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

// Path returns the vault-relative path of the canvas file.
func (f *File) Path() string { return f.path }

func (f *File) indexOf(id string) int {
	return slices.IndexFunc(f.doc.Nodes, func(n models.Node) bool { return n.ID == id })
}

// Nodes returns a copy of all nodes.
func (f *File) Nodes() []models.Node {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.doc.Nodes)
}

// Edges returns a copy of all edges.
func (f *File) Edges() []models.Edge {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.doc.Edges)
}

// Node returns the node with the given id.
func (f *File) Node(id string) (models.Node, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.indexOf(id)
	if i < 0 {
		return models.Node{}, false
	}
	return f.doc.Nodes[i], true
}

// Selection returns the selected nodes in selection order.
func (f *File) Selection() []models.Node {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Node, 0, len(f.selection))
	for _, id := range f.selection {
		if i := f.indexOf(id); i >= 0 {
			out = append(out, f.doc.Nodes[i])
		}
	}
	return out
}

// SetSelection replaces the selection. Every id must name an existing node;
// duplicates are collapsed.
func (f *File) SetSelection(ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sel := make([]string, 0, len(ids))
	for _, id := range ids {
		if f.indexOf(id) < 0 {
			return fmt.Errorf("canvas: select %s: %w", id, apperr.ErrNotFound)
		}
		if !slices.Contains(sel, id) {
			sel = append(sel, id)
		}
	}
	f.selection = sel
	return nil
}

// NodeText returns the text of a node.
func (f *File) NodeText(id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.indexOf(id)
	if i < 0 {
		return "", fmt.Errorf("canvas: node %s: %w", id, apperr.ErrNotFound)
	}
	return f.doc.Nodes[i].Text, nil
}

// SetNodeText replaces the text of a text node. The change is kept in memory;
// call RequestSave to persist it.
func (f *File) SetNodeText(id, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.indexOf(id)
	if i < 0 {
		return fmt.Errorf("canvas: node %s: %w", id, apperr.ErrNotFound)
	}
	n := &f.doc.Nodes[i]
	if n.File != "" || (n.Type != "" && n.Type != models.NodeTypeText) {
		return fmt.Errorf("canvas: node %s: %w", id, ErrNotText)
	}
	if n.Text == text {
		return nil
	}
	n.Text = text
	f.dirty = true
	return nil
}

// AddNode appends a node. The id must be unique.
func (f *File) AddNode(n models.Node) error {
	if n.ID == "" {
		return errors.New("canvas: add node: empty id")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.indexOf(n.ID) >= 0 {
		return fmt.Errorf("canvas: add node %s: %w", n.ID, apperr.ErrAlreadyExists)
	}
	f.doc.Nodes = append(f.doc.Nodes, n)
	f.dirty = true
	return nil
}

// RemoveNode deletes a node together with every edge attached to it and drops
// it from the selection.
func (f *File) RemoveNode(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.indexOf(id)
	if i < 0 {
		return fmt.Errorf("canvas: remove node %s: %w", id, apperr.ErrNotFound)
	}
	f.doc.Nodes = slices.Delete(f.doc.Nodes, i, i+1)
	f.doc.Edges = slices.DeleteFunc(f.doc.Edges, func(e models.Edge) bool {
		return e.FromNode == id || e.ToNode == id
	})
	f.selection = slices.DeleteFunc(f.selection, func(s string) bool { return s == id })
	f.dirty = true
	return nil
}

// RequestSave schedules a debounced Save.
func (f *File) RequestSave() {
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return
	}
	f.save.Trigger()
}

// Save writes the document if it changed since the last write.
func (f *File) Save() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.dirty {
		return nil
	}
	data, err := json.MarshalIndent(f.doc, "", "\t")
	if err != nil {
		return fmt.Errorf("canvas: encode %s: %w", f.path, err)
	}
	if err := f.store.Write(f.path, data); err != nil {
		return fmt.Errorf("canvas: save %s: %w", f.path, err)
	}
	f.written = checksum.Sum(data)
	f.dirty = false
	f.logger.Debug("canvas: saved", slog.String("path", f.path), slog.Int("nodes", len(f.doc.Nodes)))
	return nil
}

// Reload re-reads the file after an outside change and reports whether the
// in-memory document was replaced. Content matching our last write is
// ignored. Selected ids that no longer exist are dropped.
func (f *File) Reload() (bool, error) {
	data, err := f.store.Read(f.path)
	if err != nil {
		return false, fmt.Errorf("canvas: reload %s: %w", f.path, err)
	}
	sum := checksum.Sum(data)

	f.mu.Lock()
	defer f.mu.Unlock()
	if sum == f.written {
		return false, nil
	}
	doc, err := decode(data)
	if err != nil {
		return false, fmt.Errorf("canvas: reload %s: %w", f.path, err)
	}
	f.doc = doc
	f.written = sum
	f.dirty = false
	f.selection = slices.DeleteFunc(f.selection, func(id string) bool { return f.indexOf(id) < 0 })
	f.logger.Debug("canvas: reloaded", slog.String("path", f.path))
	return true, nil
}

// Close writes any pending change and stops accepting save requests.
func (f *File) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	f.mu.Unlock()

	f.save.Cancel()
	return f.Save()
}
