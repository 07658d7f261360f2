// Package selection decides when a canvas selection counts as new and must be
// acted on.
package selection

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/starford/canvasfocus/internal/models"
)

// ErrUnsupported is returned by Classify for node shapes other than file and text.
var ErrUnsupported = errors.New("unsupported node shape")

// Classify resolves a raw canvas node into a FileNode or TextNode. A node that
// carries a file reference is treated as a file node even if it also has text.
func Classify(n models.Node) (models.Selected, error) {
	switch {
	case n.File != "":
		return models.FileNode{ID: n.ID, Path: n.File, Geometry: n.Geometry}, nil
	case n.Type == models.NodeTypeFile:
		return nil, fmt.Errorf("file node %q has no file reference: %w", n.ID, ErrUnsupported)
	case n.Type == models.NodeTypeText || (n.Type == "" && n.Text != ""):
		if n.ID == "" {
			return nil, fmt.Errorf("text node without id: %w", ErrUnsupported)
		}
		return models.TextNode{ID: n.ID, Text: n.Text, Geometry: n.Geometry}, nil
	default:
		return nil, fmt.Errorf("node %q of type %q: %w", n.ID, n.Type, ErrUnsupported)
	}
}

// Monitor remembers the last processed single selection.
type Monitor struct {
	onChange func(models.Selected)
	logger   *slog.Logger

	last string
}

// NewMonitor returns a Monitor that calls onChange once per distinct selection.
func NewMonitor(onChange func(models.Selected), logger *slog.Logger) *Monitor {
	return &Monitor{onChange: onChange, logger: logger}
}

// Last returns the identity of the last processed selection, or "".
func (m *Monitor) Last() string { return m.last }

// Reset forgets the last processed selection so the current one is
// re-evaluated on the next poll.
func (m *Monitor) Reset() { m.last = "" }

// Poll inspects one snapshot of the selection set. It reports whether a
// selection-changed event was dispatched.
func (m *Monitor) Poll(selected []models.Node) bool {
	if len(selected) != 1 {
		m.last = ""
		return false
	}
	node := selected[0]

	identity := node.ID
	if identity == "" {
		identity = node.File
	}
	if identity == "" {
		m.logger.Debug("selection: node without identity skipped", slog.String("type", node.Type))
		return false
	}
	if identity == m.last {
		return false
	}
	m.last = identity

	sel, err := Classify(node)
	if err != nil {
		m.logger.Info("selection: node skipped", slog.String("node", identity), slog.String("reason", err.Error()))
		return false
	}
	m.logger.Debug("selection: changed", slog.String("node", identity))
	m.onChange(sel)
	return true
}
