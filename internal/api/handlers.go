package api

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/canvasfocus/internal/apperr"
	"github.com/starford/canvasfocus/internal/noteservice"
	"github.com/starford/canvasfocus/internal/prompt"
	"github.com/starford/canvasfocus/internal/workspace"
)

// Handler holds API route handlers.
type Handler struct {
	notes    *noteservice.Service
	focus    Focus
	prompts  *prompt.Broker
	surfaces *workspace.Workspace
}

// notePath extracts the note path from the URL (everything after /api/notes/).
// Supports encoded slashes from OpenAPI clients (e.g. topics%2Fnote.md).
func notePath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// internalError logs err and writes a generic 500.
func internalError(w http.ResponseWriter, msg string, err error, attrs ...any) {
	slog.Error(msg, append(attrs, slog.String("error", err.Error()))...)
	writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
}

// GetNote handles GET /api/notes/*.
//
//	@Summary		Get a single note by path
//	@Tags			notes
//	@Produce		json
//	@Param			path	path		string	true	"Note path"
//	@Success		200		{object}	NoteDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{path} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	note, err := h.notes.GetNote(r.Context(), path)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			internalError(w, "get note failed", err, slog.String("path", path))
		}
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across notes
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.notes.Search(r.Context(), q, limit)
	if err != nil {
		internalError(w, "search failed", err, slog.String("query", q))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
	})
}

// ListSurfaces handles GET /api/surfaces.
//
//	@Summary		List open display surfaces
//	@Tags			surfaces
//	@Produce		json
//	@Success		200	{array}	workspace.Info
//	@Security		BearerAuth
//	@Router			/surfaces [get]
func (h *Handler) ListSurfaces(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.surfaces.List())
}

// CloseSurface handles DELETE /api/surfaces/{id}: the user closed a surface.
//
//	@Summary		Close a display surface
//	@Tags			surfaces
//	@Param			id	path	string	true	"Surface id"
//	@Success		204	"Surface closed"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/surfaces/{id} [delete]
func (h *Handler) CloseSurface(w http.ResponseWriter, r *http.Request) {
	if err := h.surfaces.Close(chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
			return
		}
		internalError(w, "close surface failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListPrompts handles GET /api/prompts.
//
//	@Summary		List questions waiting for an answer
//	@Tags			prompts
//	@Produce		json
//	@Success		200	{array}	prompt.Pending
//	@Security		BearerAuth
//	@Router			/prompts [get]
func (h *Handler) ListPrompts(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.prompts.List())
}

// AnswerPrompt handles POST /api/prompts/{id}.
//
//	@Summary		Answer an open question
//	@Tags			prompts
//	@Accept			json
//	@Param			id		path	string				true	"Prompt id"
//	@Param			body	body	AnswerPromptRequest	true	"Answer"
//	@Success		204		"Answered"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/prompts/{id} [post]
func (h *Handler) AnswerPrompt(w http.ResponseWriter, r *http.Request) {
	var req AnswerPromptRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.prompts.Answer(chi.URLParam(r, "id"), req.Value); err != nil {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CancelPrompt handles DELETE /api/prompts/{id}.
//
//	@Summary		Dismiss an open question
//	@Tags			prompts
//	@Param			id	path	string	true	"Prompt id"
//	@Success		204	"Dismissed"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/prompts/{id} [delete]
func (h *Handler) CancelPrompt(w http.ResponseWriter, r *http.Request) {
	if err := h.prompts.Cancel(chi.URLParam(r, "id")); err != nil {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
