// Package prompt asks the user for a value while an operation waits.
package prompt

import (
	"context"
	"sync"

	"github.com/starford/canvasfocus/internal/apperr"
)

// Question is one text prompt.
type Question struct {
	Message string `json:"message"`
	Default string `json:"default,omitempty"`
}

// Prompter returns the user's answer, or apperr.ErrCancelled when the user
// dismisses the prompt.
type Prompter interface {
	Ask(ctx context.Context, q Question) (string, error)
}

// Static answers from a fixed list and cancels once the list runs out.
type Static struct {
	mu      sync.Mutex
	answers []string
	asked   []Question
}

// NewStatic returns a Prompter that replies with answers in order.
func NewStatic(answers ...string) *Static {
	return &Static{answers: answers}
}

// Ask implements Prompter.
func (s *Static) Ask(ctx context.Context, q Question) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.asked = append(s.asked, q)
	if len(s.answers) == 0 {
		return "", apperr.ErrCancelled
	}
	a := s.answers[0]
	s.answers = s.answers[1:]
	return a, nil
}

// Asked returns the questions received so far.
func (s *Static) Asked() []Question {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Question, len(s.asked))
	copy(out, s.asked)
	return out
}
