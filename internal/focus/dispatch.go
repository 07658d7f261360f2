package focus

import (
	"errors"
	"log/slog"

	"github.com/starford/canvasfocus/internal/apperr"
	"github.com/starford/canvasfocus/internal/models"
	"github.com/starford/canvasfocus/internal/parser"
	"github.com/starford/canvasfocus/internal/sse"
	"github.com/starford/canvasfocus/internal/surface"
)

func (c *Controller) pollSelection() {
	if c.canvas == nil || !c.settings.Enabled() {
		return
	}
	c.monitor.Poll(c.canvas.Selection())
}

func (c *Controller) pollNode() {
	// The promoter owns the temporary document until it finishes.
	if !c.settings.Enabled() || c.promoting {
		return
	}
	c.engine.PollNode()
}

// dispatch handles a new single selection.
func (c *Controller) dispatch(sel models.Selected) {
	c.settleDocuments()
	switch n := sel.(type) {
	case models.FileNode:
		c.showFile(n)
	case models.TextNode:
		c.showText(n)
	}
	c.publishState()
}

func (c *Controller) showFile(n models.FileNode) {
	c.engine.Clear()
	c.show(surface.Target{Path: n.Path})
}

func (c *Controller) showText(n models.TextNode) {
	if !c.scratchReady {
		c.scratchReady = c.scratch.EnsureArea()
		if !c.scratchReady {
			c.logger.Warn("focus: scratch area unavailable, text node skipped", slog.String("node", n.ID))
			return
		}
	}

	doc, err := c.scratch.Create(n.ID, n.Text)
	if err != nil {
		c.logger.Warn("focus: create temporary document failed", slog.String("node", n.ID), slog.String("error", err.Error()))
		return
	}
	// A document left over from an earlier session may be stale; the node
	// text wins at selection time.
	if existing, err := c.scratch.Read(doc); err != nil || existing != n.Text {
		if err := c.scratch.Write(doc, n.Text); err != nil {
			c.logger.Warn("focus: reset temporary document failed", slog.String("doc", doc), slog.String("error", err.Error()))
			return
		}
	}

	c.engine.Bind(c.canvas, n.ID, doc, n.Text)
	c.show(surface.Target{Path: doc, Ephemeral: true, Label: parser.FirstHeading(n.Text)})
}

func (c *Controller) show(t surface.Target) {
	s, err := c.surfaces.Prepare()
	if err != nil {
		c.logger.Warn("focus: prepare surface failed", slog.String("error", err.Error()))
		return
	}
	opened, err := c.surfaces.Show(s, t)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			c.logger.Info("focus: target missing, skipped", slog.String("path", t.Path))
			return
		}
		c.logger.Warn("focus: show failed", slog.String("path", t.Path), slog.String("error", err.Error()))
		return
	}
	if opened {
		c.logger.Debug("focus: shown", slog.String("path", t.Path), slog.String("surface", s.ID()))
	}
}

// queueDocument records a changed scratch document and restarts the
// debounce window.
func (c *Controller) queueDocument(path string) {
	c.docMu.Lock()
	c.docPending[path] = struct{}{}
	c.docMu.Unlock()
	c.docs.Trigger()
}

// flushDocuments runs on the debounce timer goroutine.
func (c *Controller) flushDocuments() {
	_ = c.do(c.flushPendingDocuments)
}

// settleDocuments applies queued document changes now, on the loop, so an
// edit still inside the debounce window reaches its node before the
// association is rebound or cleared.
func (c *Controller) settleDocuments() {
	c.docs.Cancel()
	c.flushPendingDocuments()
}

func (c *Controller) flushPendingDocuments() {
	c.docMu.Lock()
	pending := c.docPending
	c.docPending = make(map[string]struct{})
	c.docMu.Unlock()

	if !c.settings.Enabled() {
		return
	}
	for p := range pending {
		c.engine.DocumentChanged(p)
	}
}

func (c *Controller) publishState() {
	c.pub.Publish(sse.Event{Type: sse.TypeFocusState, Data: c.snapshot()})
}
