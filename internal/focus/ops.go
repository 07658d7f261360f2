package focus

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/starford/canvasfocus/internal/apperr"
	"github.com/starford/canvasfocus/internal/bisync"
	"github.com/starford/canvasfocus/internal/canvas"
	"github.com/starford/canvasfocus/internal/promote"
	"github.com/starford/canvasfocus/internal/prompt"
	"github.com/starford/canvasfocus/internal/sse"
)

// State is a snapshot of the controller.
type State struct {
	Enabled         bool                `json:"enabled"`
	Canvas          string              `json:"canvas,omitempty"`
	Selection       string              `json:"selection,omitempty"`
	Association     *bisync.Association `json:"association,omitempty"`
	SurfaceID       string              `json:"surface_id,omitempty"`
	SurfacesCreated int                 `json:"surfaces_created"`
	ScratchReady    bool                `json:"scratch_ready"`
	Promoting       bool                `json:"promoting"`
	Stats           bisync.Stats        `json:"stats"`
}

func (c *Controller) snapshot() State {
	st := State{
		Enabled:         c.settings.Enabled(),
		Selection:       c.monitor.Last(),
		SurfaceID:       c.surfaces.Tracked(),
		SurfacesCreated: c.surfaces.Created(),
		ScratchReady:    c.scratchReady,
		Promoting:       c.promoting,
		Stats:           c.engine.Stats(),
	}
	if c.canvas != nil {
		st.Canvas = c.canvas.Path()
	}
	if a, ok := c.engine.Active(); ok {
		st.Association = &a
	}
	return st
}

// State returns a snapshot taken on the loop.
func (c *Controller) State() (State, error) {
	var st State
	err := c.do(func() { st = c.snapshot() })
	return st, err
}

// Canvas returns the active canvas, or nil.
func (c *Controller) Canvas() (*canvas.File, error) {
	var f *canvas.File
	err := c.do(func() { f = c.canvas })
	return f, err
}

// PollSelection runs one selection check now.
func (c *Controller) PollSelection() error { return c.do(c.pollSelection) }

// PollNode runs one node-to-document check now.
func (c *Controller) PollNode() error { return c.do(c.pollNode) }

// DocumentChanged reports a changed vault document. Only temporary documents
// are of interest; bursts are coalesced over the document debounce window.
func (c *Controller) DocumentChanged(path string) {
	if !c.scratch.Contains(path) {
		return
	}
	c.queueDocument(path)
}

// CanvasChanged reports an outside change to a canvas file. The active canvas
// reloads unless the change is our own save.
func (c *Controller) CanvasChanged(path string) error {
	return c.do(func() {
		if c.canvas == nil || c.canvas.Path() != path {
			return
		}
		changed, err := c.canvas.Reload()
		if err != nil {
			c.logger.Warn("focus: canvas reload failed", slog.String("path", path), slog.String("error", err.Error()))
			return
		}
		if changed {
			c.logger.Info("focus: canvas reloaded", slog.String("path", path))
		}
	})
}

// Activate makes f the active canvas. The previous canvas is closed and the
// selection memory and association are reset.
func (c *Controller) Activate(f *canvas.File) error {
	return c.do(func() {
		c.deactivate()
		c.canvas = f
		c.logger.Info("focus: canvas active", slog.String("path", f.Path()))
		c.publishState()
	})
}

// ActivatePath opens the canvas at path and activates it.
func (c *Controller) ActivatePath(path string) error {
	path = strings.TrimPrefix(strings.ReplaceAll(path, "\\", "/"), "/")
	f, err := canvas.Open(c.store, path, c.opts.CanvasSaveDelay, c.logger)
	if err != nil {
		return err
	}
	if err := c.Activate(f); err != nil {
		_ = f.Close()
		return err
	}
	return nil
}

// Deactivate closes the active canvas.
func (c *Controller) Deactivate() error {
	return c.do(func() {
		c.deactivate()
		c.publishState()
	})
}

func (c *Controller) deactivate() {
	c.settleDocuments()
	c.engine.Flush()
	c.engine.Clear()
	c.monitor.Reset()
	if c.canvas == nil {
		return
	}
	if err := c.canvas.Close(); err != nil {
		c.logger.Warn("focus: close canvas failed", slog.String("path", c.canvas.Path()), slog.String("error", err.Error()))
	}
	c.canvas = nil
}

// SurfaceClosed handles a user closing a surface. When it is the focus
// surface, pending node text is written to the document once and the
// association is cleared. The surface is recreated by the next new selection.
func (c *Controller) SurfaceClosed(id string) {
	_ = c.do(func() {
		if !c.surfaces.Closed(id) {
			return
		}
		c.settleDocuments()
		c.engine.Flush()
		c.engine.Clear()
		c.publishState()
	})
}

// Toggle flips the enabled flag and returns the new value. Disabling closes
// the focus surface and stops syncing; enabling resumes on the active canvas.
func (c *Controller) Toggle() (bool, error) {
	var on bool
	err := c.do(func() {
		on = !c.settings.Enabled()
		if !on {
			c.settleDocuments()
			c.engine.Flush()
			c.engine.Clear()
			c.monitor.Reset()
			c.surfaces.Close()
		} else {
			c.monitor.Reset()
		}
		if err := c.settings.SetEnabled(on); err != nil {
			c.logger.Warn("focus: persist enabled flag failed", slog.String("error", err.Error()))
		}
		c.logger.Info("focus: toggled", slog.Bool("enabled", on))
		c.publishState()
	})
	return on, err
}

// Promote turns the active text node into a permanent note. The association
// stays live while the user answers prompts; it is cleared once the
// replacement node is in place, and the replacement becomes the selection.
func (c *Controller) Promote(ctx context.Context, ask prompt.Prompter) (promote.Result, error) {
	var (
		req  promote.Request
		perr error
	)
	if err := c.do(func() {
		switch {
		case !c.settings.Enabled():
			perr = apperr.ErrDisabled
			return
		case c.promoting:
			perr = fmt.Errorf("focus: promotion in progress: %w", apperr.ErrConflict)
			return
		}
		a, ok := c.engine.Active()
		if !ok || c.canvas == nil {
			perr = apperr.ErrNoActiveNode
			return
		}
		c.settleDocuments()
		c.engine.Flush()
		c.promoting = true
		req = promote.Request{NodeID: a.NodeID, DocPath: a.DocPath, Canvas: c.canvas}
	}); err != nil {
		return promote.Result{}, err
	}
	if perr != nil {
		return promote.Result{}, perr
	}

	res, err := c.promoter.Promote(ctx, req, ask)

	if derr := c.do(func() {
		c.promoting = false
		if err != nil {
			return
		}
		if a, ok := c.engine.Active(); ok && a.NodeID == req.NodeID {
			c.engine.Clear()
		}
		if c.canvas != nil && c.canvas == req.Canvas {
			if serr := c.canvas.SetSelection([]string{res.NodeID}); serr != nil {
				c.logger.Warn("focus: select promoted node failed", slog.String("error", serr.Error()))
			}
		}
		c.pub.Publish(sse.Event{Type: sse.TypeFocusPromoted, Data: res})
		c.publishState()
	}); derr != nil && err == nil {
		err = derr
	}
	if err != nil {
		return promote.Result{}, err
	}
	return res, nil
}
