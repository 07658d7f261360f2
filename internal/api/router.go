package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/canvasfocus/internal/canvas"
	"github.com/starford/canvasfocus/internal/focus"
	"github.com/starford/canvasfocus/internal/noteservice"
	"github.com/starford/canvasfocus/internal/promote"
	"github.com/starford/canvasfocus/internal/prompt"
	"github.com/starford/canvasfocus/internal/workspace"
)

// Focus is the controller surface driven by the API.
type Focus interface {
	State() (focus.State, error)
	Toggle() (bool, error)
	Promote(ctx context.Context, ask prompt.Prompter) (promote.Result, error)
	Canvas() (*canvas.File, error)
	ActivatePath(path string) error
	PollSelection() error
}

var _ Focus = (*focus.Controller)(nil)

// Deps are the services behind the routes.
type Deps struct {
	Notes    *noteservice.Service
	Focus    Focus
	Prompts  *prompt.Broker
	Surfaces *workspace.Workspace
	// Events, if non-nil, is mounted at GET /events inside the auth group.
	Events http.Handler

	AuthEnabled bool
	Token       string
}

// NewRouter creates a chi router with all API routes mounted.
func NewRouter(d Deps) chi.Router {
	h := &Handler{
		notes:    d.Notes,
		focus:    d.Focus,
		prompts:  d.Prompts,
		surfaces: d.Surfaces,
	}

	r := chi.NewRouter()
	r.Use(AuthMiddleware(d.AuthEnabled, d.Token))

	r.Route("/focus", func(r chi.Router) {
		r.Get("/", h.GetFocus)
		r.Post("/toggle", h.ToggleFocus)
		r.Post("/promote", h.Promote)
	})

	r.Get("/prompts", h.ListPrompts)
	r.Post("/prompts/{id}", h.AnswerPrompt)
	r.Delete("/prompts/{id}", h.CancelPrompt)

	r.Route("/canvas", func(r chi.Router) {
		r.Get("/", h.GetCanvas)
		r.Post("/activate", h.ActivateCanvas)
		r.Put("/selection", h.SetSelection)
		r.Put("/nodes/{id}/text", h.SetNodeText)
	})

	r.Get("/surfaces", h.ListSurfaces)
	r.Delete("/surfaces/{id}", h.CloseSurface)

	// Read-only vault access.
	r.Get("/notes/*", h.GetNote)
	r.Get("/search", h.Search)

	if d.Events != nil {
		r.Get("/events", d.Events.ServeHTTP)
	}

	return r
}
