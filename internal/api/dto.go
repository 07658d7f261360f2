package api

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/canvasfocus/internal/focus"
	"github.com/starford/canvasfocus/internal/models"
	"github.com/starford/canvasfocus/internal/noteservice"
	"github.com/starford/canvasfocus/internal/promote"
)

// NoteDetail is the full note response type (aliased from the domain layer).
type NoteDetail = noteservice.NoteDetail

// FocusState is the controller snapshot (aliased from the domain layer).
type FocusState = focus.State

// PromoteResult describes a finished promotion (aliased from the domain layer).
type PromoteResult = promote.Result

// SearchResult is a single search hit in the API response.
type SearchResult struct {
	Path    string `json:"path" example:"notes/hello.md" validate:"required"`
	Title   string `json:"title" example:"Hello" validate:"required"`
	Snippet string `json:"snippet" example:"...matched text..." validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchResult `json:"results" validate:"required"`
}

// CanvasResponse is the active canvas with its selection.
type CanvasResponse struct {
	Path      string        `json:"path" example:"boards/plan.canvas"`
	Nodes     []models.Node `json:"nodes"`
	Edges     []models.Edge `json:"edges"`
	Selection []string      `json:"selection"`
}

// ToggleResponse reports the enabled flag after a toggle.
type ToggleResponse struct {
	Enabled bool `json:"enabled"`
}

// PromoteRequest optionally pre-answers the name prompts of a promotion. When
// Answers is empty the prompts are published as SSE events and answered
// through /prompts.
type PromoteRequest struct {
	Answers []string `json:"answers,omitempty" example:"Title2"`
}

// Validate implements validation.Validatable.
func (r *PromoteRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Answers, validation.Each(validation.Required, validation.Length(1, 200))),
	)
}

// PromoteResponse is returned by POST /focus/promote.
type PromoteResponse struct {
	Cancelled bool           `json:"cancelled"`
	Result    *PromoteResult `json:"result,omitempty"`
}

// ActivateCanvasRequest selects the canvas to monitor.
type ActivateCanvasRequest struct {
	Path string `json:"path" example:"boards/plan.canvas" validate:"required"`
}

// Validate implements validation.Validatable.
func (r *ActivateCanvasRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Path, validation.Required, validation.By(canvasPath)),
	)
}

func canvasPath(v any) error {
	s, _ := v.(string)
	if !strings.HasSuffix(s, ".canvas") {
		return errors.New("must be a .canvas file")
	}
	return nil
}

// SelectionRequest replaces the canvas selection.
type SelectionRequest struct {
	IDs []string `json:"ids" example:"a1b2c3d4e5f60718"`
}

// Validate implements validation.Validatable.
func (r *SelectionRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.IDs, validation.Each(validation.Required)),
	)
}

// NodeTextRequest replaces a text node's content.
type NodeTextRequest struct {
	Text string `json:"text" example:"# Idea\nDetails"`
}

// Validate implements validation.Validatable.
func (r *NodeTextRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Text, validation.Length(0, maxBody)),
	)
}

// AnswerPromptRequest answers an open prompt.
type AnswerPromptRequest struct {
	Value string `json:"value" example:"Meeting notes" validate:"required"`
}

// Validate implements validation.Validatable.
func (r *AnswerPromptRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Value, validation.Required),
	)
}
