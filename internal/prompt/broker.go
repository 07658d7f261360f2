package prompt

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/canvasfocus/internal/apperr"
	"github.com/starford/canvasfocus/internal/sse"
)

// Pending is an open question waiting for an answer.
type Pending struct {
	ID        string    `json:"id"`
	Question  Question  `json:"question"`
	CreatedAt time.Time `json:"created_at"`
}

type reply struct {
	value     string
	cancelled bool
}

type waiter struct {
	info  Pending
	reply chan reply
}

// Broker hands questions to remote front ends. Ask publishes a
// prompt.requested event and blocks until Answer or Cancel is called for the
// same id, or the context ends.
type Broker struct {
	pub sse.Publisher

	mu      sync.Mutex
	pending map[string]*waiter
}

var _ Prompter = (*Broker)(nil)

// NewBroker creates a Broker publishing to pub.
func NewBroker(pub sse.Publisher) *Broker {
	return &Broker{pub: pub, pending: make(map[string]*waiter)}
}

// Ask implements Prompter.
func (b *Broker) Ask(ctx context.Context, q Question) (string, error) {
	w := &waiter{
		info:  Pending{ID: uuid.NewString(), Question: q, CreatedAt: time.Now().UTC()},
		reply: make(chan reply, 1),
	}
	b.mu.Lock()
	b.pending[w.info.ID] = w
	b.mu.Unlock()
	defer b.drop(w.info.ID)

	b.pub.Publish(sse.Event{Type: sse.TypePromptRequested, Data: w.info})

	select {
	case r := <-w.reply:
		b.pub.Publish(sse.Event{Type: sse.TypePromptResolved, Data: map[string]any{"id": w.info.ID, "cancelled": r.cancelled}})
		if r.cancelled {
			return "", apperr.ErrCancelled
		}
		return r.value, nil
	case <-ctx.Done():
		b.pub.Publish(sse.Event{Type: sse.TypePromptResolved, Data: map[string]any{"id": w.info.ID, "cancelled": true}})
		return "", ctx.Err()
	}
}

func (b *Broker) drop(id string) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}

// List returns the open questions, oldest first.
func (b *Broker) List() []Pending {
	b.mu.Lock()
	out := make([]Pending, 0, len(b.pending))
	for _, w := range b.pending {
		out = append(out, w.info)
	}
	b.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Answer resolves the question with value.
func (b *Broker) Answer(id, value string) error {
	return b.resolve(id, reply{value: value})
}

// Cancel dismisses the question.
func (b *Broker) Cancel(id string) error {
	return b.resolve(id, reply{cancelled: true})
}

func (b *Broker) resolve(id string, r reply) error {
	b.mu.Lock()
	w, ok := b.pending[id]
	if ok {
		delete(b.pending, id)
	}
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("prompt: %s: %w", id, apperr.ErrNotFound)
	}
	w.reply <- r
	return nil
}
