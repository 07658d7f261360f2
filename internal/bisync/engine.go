// Package bisync keeps a free-text canvas node and its backing document in
// step. The node side is polled because canvases publish no change events; the
// document side is driven by file notifications.
//
// Each direction writes only when it sees a genuine delta that the other side
// has not already reflected. The two in-progress flags on the Association stop
// a write from re-triggering the opposite handler while it is still running.
package bisync

import (
	"errors"
	"io/fs"
	"log/slog"

	"github.com/starford/canvasfocus/internal/apperr"
)

// Canvas is the node-side collaborator.
type Canvas interface {
	NodeText(id string) (string, error)
	SetNodeText(id, text string) error
	// RequestSave asks the canvas to persist its state.
	RequestSave()
}

// Documents is the document-side collaborator.
type Documents interface {
	Read(path string) (string, error)
	Write(path, content string) error
}

// Association links the active text node to its document.
type Association struct {
	NodeID  string `json:"node_id"`
	DocPath string `json:"doc_path"`

	LastNode string `json:"-"`
	LastDoc  string `json:"-"`

	// NodeWriting is set while a node-originated write to the document runs.
	NodeWriting bool `json:"node_writing"`
	// DocWriting is set while a document-originated write to the node runs.
	DocWriting bool `json:"doc_writing"`
}

// Stats counts writes issued by each direction.
type Stats struct {
	DocWrites  int `json:"doc_writes"`
	NodeWrites int `json:"node_writes"`
}

// Engine drives at most one Association. It is not safe for concurrent use;
// callers run it on a single goroutine.
type Engine struct {
	docs   Documents
	logger *slog.Logger

	canvas Canvas
	assoc  *Association
	stats  Stats
}

// New creates an Engine writing documents through docs.
func New(docs Documents, logger *slog.Logger) *Engine {
	return &Engine{docs: docs, logger: logger}
}

// Bind replaces the current association. content is the text both sides hold
// at bind time. The previous association is dropped without a write-back.
func (e *Engine) Bind(canvas Canvas, nodeID, docPath, content string) {
	e.canvas = canvas
	e.assoc = &Association{
		NodeID:   nodeID,
		DocPath:  docPath,
		LastNode: content,
		LastDoc:  content,
	}
	e.logger.Debug("bisync: bound", slog.String("node", nodeID), slog.String("doc", docPath))
}

// Clear drops the association.
func (e *Engine) Clear() {
	if e.assoc != nil {
		e.logger.Debug("bisync: cleared", slog.String("node", e.assoc.NodeID))
	}
	e.assoc = nil
	e.canvas = nil
}

// Active returns a copy of the live association.
func (e *Engine) Active() (Association, bool) {
	if e.assoc == nil {
		return Association{}, false
	}
	return *e.assoc, true
}

// Stats returns write counters since the engine was created.
func (e *Engine) Stats() Stats { return e.stats }

// PollNode pushes a changed node text into the document.
func (e *Engine) PollNode() {
	a := e.assoc
	if a == nil || a.DocWriting {
		return
	}

	text, err := e.canvas.NodeText(a.NodeID)
	if err != nil {
		e.nodeReadFailed(a, err)
		return
	}
	if text == a.LastNode {
		return
	}
	prevNode, prevDoc := a.LastNode, a.LastDoc
	a.LastNode = text
	if text == a.LastDoc {
		return
	}

	a.NodeWriting = true
	defer func() { a.NodeWriting = false }()

	a.LastDoc = text
	if err := e.docs.Write(a.DocPath, text); err != nil {
		a.LastNode, a.LastDoc = prevNode, prevDoc
		e.logger.Warn("bisync: document write failed",
			slog.String("doc", a.DocPath),
			slog.String("error", err.Error()))
		return
	}
	e.stats.DocWrites++
	e.logger.Debug("bisync: node -> doc", slog.String("doc", a.DocPath), slog.Int("bytes", len(text)))
}

// Flush runs one node-to-document cycle.
func (e *Engine) Flush() { e.PollNode() }

// DocumentChanged pulls a changed document into the node. Notifications for
// other paths are ignored.
func (e *Engine) DocumentChanged(path string) {
	a := e.assoc
	if a == nil || path != a.DocPath || a.NodeWriting {
		return
	}

	content, err := e.docs.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			e.logger.Debug("bisync: document gone", slog.String("doc", path))
			return
		}
		e.logger.Warn("bisync: document read failed", slog.String("doc", path), slog.String("error", err.Error()))
		return
	}
	if content == a.LastDoc {
		return
	}
	prevDoc := a.LastDoc
	a.LastDoc = content

	current, err := e.canvas.NodeText(a.NodeID)
	if err != nil {
		a.LastDoc = prevDoc
		e.nodeReadFailed(a, err)
		return
	}
	if content == current {
		return
	}

	a.DocWriting = true
	defer func() { a.DocWriting = false }()

	prevNode := a.LastNode
	a.LastNode = content
	if err := e.canvas.SetNodeText(a.NodeID, content); err != nil {
		a.LastNode, a.LastDoc = prevNode, prevDoc
		e.logger.Warn("bisync: node write failed", slog.String("node", a.NodeID), slog.String("error", err.Error()))
		return
	}
	e.stats.NodeWrites++
	e.canvas.RequestSave()
	e.logger.Debug("bisync: doc -> node", slog.String("node", a.NodeID), slog.Int("bytes", len(content)))
}

func (e *Engine) nodeReadFailed(a *Association, err error) {
	if errors.Is(err, apperr.ErrNotFound) {
		e.logger.Info("bisync: node removed from canvas", slog.String("node", a.NodeID))
		e.Clear()
		return
	}
	e.logger.Warn("bisync: node read failed", slog.String("node", a.NodeID), slog.String("error", err.Error()))
}
