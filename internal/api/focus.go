package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/canvasfocus/internal/apperr"
	"github.com/starford/canvasfocus/internal/canvas"
	"github.com/starford/canvasfocus/internal/prompt"
)

// GetFocus handles GET /api/focus.
//
//	@Summary		Current focus state
//	@Tags			focus
//	@Produce		json
//	@Success		200	{object}	FocusState
//	@Security		BearerAuth
//	@Router			/focus [get]
func (h *Handler) GetFocus(w http.ResponseWriter, _ *http.Request) {
	st, err := h.focus.State()
	if err != nil {
		internalError(w, "focus state failed", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// ToggleFocus handles POST /api/focus/toggle.
//
//	@Summary		Switch the focus behavior on or off
//	@Tags			focus
//	@Produce		json
//	@Success		200	{object}	ToggleResponse
//	@Security		BearerAuth
//	@Router			/focus/toggle [post]
func (h *Handler) ToggleFocus(w http.ResponseWriter, _ *http.Request) {
	on, err := h.focus.Toggle()
	if err != nil {
		internalError(w, "toggle failed", err)
		return
	}
	writeJSON(w, http.StatusOK, ToggleResponse{Enabled: on})
}

// Promote handles POST /api/focus/promote.
//
//	@Summary		Promote the active text node to a permanent note
//	@Tags			focus
//	@Accept			json
//	@Produce		json
//	@Param			body	body		PromoteRequest	false	"Pre-answered name prompts"
//	@Success		200		{object}	PromoteResponse
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/focus/promote [post]
func (h *Handler) Promote(w http.ResponseWriter, r *http.Request) {
	var req PromoteRequest
	if r.ContentLength != 0 {
		if !decode(w, r, &req) {
			return
		}
	}
	var ask prompt.Prompter
	switch {
	case len(req.Answers) > 0:
		ask = prompt.NewStatic(req.Answers...)
	case h.prompts != nil:
		ask = h.prompts
	}

	res, err := h.focus.Promote(r.Context(), ask)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, PromoteResponse{Result: &res})
	case errors.Is(err, apperr.ErrCancelled):
		writeJSON(w, http.StatusOK, PromoteResponse{Cancelled: true})
	case errors.Is(err, apperr.ErrNoActiveNode):
		writeJSON(w, http.StatusConflict, errorBody("no active text node"))
	case errors.Is(err, apperr.ErrDisabled):
		writeJSON(w, http.StatusConflict, errorBody("focus is disabled"))
	case errors.Is(err, apperr.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody("promotion already in progress"))
	case errors.Is(err, apperr.ErrInvalidName):
		writeJSON(w, http.StatusBadRequest, errorBody("invalid note name"))
	default:
		// Promotion failures are reported to the user in full.
		writeJSON(w, http.StatusInternalServerError, errorBody("promotion failed: "+err.Error()))
	}
}

// activeCanvas writes a 404 and returns nil when no canvas is active.
func (h *Handler) activeCanvas(w http.ResponseWriter) *canvas.File {
	f, err := h.focus.Canvas()
	if err != nil {
		internalError(w, "canvas lookup failed", err)
		return nil
	}
	if f == nil {
		writeJSON(w, http.StatusNotFound, errorBody("no active canvas"))
		return nil
	}
	return f
}

// GetCanvas handles GET /api/canvas.
//
//	@Summary		The active canvas with its selection
//	@Tags			canvas
//	@Produce		json
//	@Success		200	{object}	CanvasResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/canvas [get]
func (h *Handler) GetCanvas(w http.ResponseWriter, _ *http.Request) {
	f := h.activeCanvas(w)
	if f == nil {
		return
	}
	sel := f.Selection()
	ids := make([]string, len(sel))
	for i, n := range sel {
		ids[i] = n.ID
	}
	writeJSON(w, http.StatusOK, CanvasResponse{
		Path:      f.Path(),
		Nodes:     f.Nodes(),
		Edges:     f.Edges(),
		Selection: ids,
	})
}

// ActivateCanvas handles POST /api/canvas/activate.
//
//	@Summary		Make a canvas file the active canvas
//	@Tags			canvas
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ActivateCanvasRequest	true	"Canvas path"
//	@Success		200		{object}	FocusState
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/canvas/activate [post]
func (h *Handler) ActivateCanvas(w http.ResponseWriter, r *http.Request) {
	var req ActivateCanvasRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.focus.ActivatePath(req.Path); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("canvas not found"))
			return
		}
		internalError(w, "activate canvas failed", err)
		return
	}
	h.GetFocus(w, r)
}

// SetSelection handles PUT /api/canvas/selection. The new selection is
// evaluated immediately instead of waiting for the next poll.
//
//	@Summary		Replace the canvas selection
//	@Tags			canvas
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SelectionRequest	true	"Selected node ids"
//	@Success		200		{object}	FocusState
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/canvas/selection [put]
func (h *Handler) SetSelection(w http.ResponseWriter, r *http.Request) {
	var req SelectionRequest
	if !decode(w, r, &req) {
		return
	}
	f := h.activeCanvas(w)
	if f == nil {
		return
	}
	if err := f.SetSelection(req.IDs); err != nil {
		writeJSON(w, http.StatusNotFound, errorBody(err.Error()))
		return
	}
	if err := h.focus.PollSelection(); err != nil {
		internalError(w, "selection poll failed", err)
		return
	}
	h.GetFocus(w, r)
}

// SetNodeText handles PUT /api/canvas/nodes/{id}/text.
//
//	@Summary		Replace the text of a text node
//	@Tags			canvas
//	@Accept			json
//	@Param			id		path	string			true	"Node id"
//	@Param			body	body	NodeTextRequest	true	"New text"
//	@Success		204		"Updated"
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/canvas/nodes/{id}/text [put]
func (h *Handler) SetNodeText(w http.ResponseWriter, r *http.Request) {
	var req NodeTextRequest
	if !decode(w, r, &req) {
		return
	}
	f := h.activeCanvas(w)
	if f == nil {
		return
	}
	if err := f.SetNodeText(chi.URLParam(r, "id"), req.Text); err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorBody("node not found"))
		case errors.Is(err, canvas.ErrNotText):
			writeJSON(w, http.StatusConflict, errorBody("node does not hold text"))
		default:
			internalError(w, "set node text failed", err)
		}
		return
	}
	f.RequestSave()
	w.WriteHeader(http.StatusNoContent)
}
