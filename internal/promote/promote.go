// Package promote turns a free-text canvas node into a permanent vault note
// referenced by a file node at the same position.
package promote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"unicode"

	"github.com/starford/canvasfocus/internal/apperr"
	"github.com/starford/canvasfocus/internal/canvas"
	"github.com/starford/canvasfocus/internal/models"
	"github.com/starford/canvasfocus/internal/parser"
	"github.com/starford/canvasfocus/internal/prompt"
	"github.com/starford/canvasfocus/internal/storage"
)

const maxNameRunes = 200

// Canvas is the part of an open canvas that promotion edits.
type Canvas interface {
	Node(id string) (models.Node, bool)
	AddNode(n models.Node) error
	RemoveNode(id string) error
	RequestSave()
}

// Scratch gives access to the temporary document being promoted.
type Scratch interface {
	Read(path string) (string, error)
	Delete(path string) error
}

// Request names the node and its temporary document.
type Request struct {
	NodeID  string
	DocPath string
	Canvas  Canvas
}

// Result describes a completed promotion.
type Result struct {
	Path      string `json:"path"`
	NodeID    string `json:"node_id"`
	OldNodeID string `json:"old_node_id"`
}

// Promoter creates permanent notes in folder (vault root when empty).
type Promoter struct {
	fs      storage.Provider
	scratch Scratch
	folder  string
	logger  *slog.Logger
}

// New creates a Promoter.
func New(fs storage.Provider, scratch Scratch, folder string, logger *slog.Logger) *Promoter {
	folder = strings.Trim(path.Clean("/"+strings.ReplaceAll(folder, "\\", "/")), "/")
	return &Promoter{fs: fs, scratch: scratch, folder: folder, logger: logger}
}

// Promote runs the whole operation. The canvas keeps either the original node
// or its replacement, never neither: the replacement is added first and
// removed again when the original cannot be removed. A dismissed prompt
// returns apperr.ErrCancelled with nothing changed.
func (p *Promoter) Promote(ctx context.Context, req Request, ask prompt.Prompter) (Result, error) {
	if req.NodeID == "" || req.DocPath == "" || req.Canvas == nil {
		return Result{}, apperr.ErrNoActiveNode
	}

	content, err := p.scratch.Read(req.DocPath)
	if err != nil {
		return Result{}, fmt.Errorf("promote: read %s: %w", req.DocPath, err)
	}

	name, err := p.deriveName(ctx, content, ask)
	if err != nil {
		return Result{}, err
	}
	target, err := p.resolveCollision(ctx, name, ask)
	if err != nil {
		return Result{}, err
	}

	old, ok := req.Canvas.Node(req.NodeID)
	if !ok {
		return Result{}, fmt.Errorf("promote: node %s: %w", req.NodeID, apperr.ErrNotFound)
	}

	if err := p.fs.Write(target, []byte(content)); err != nil {
		return Result{}, fmt.Errorf("promote: create %s: %w", target, err)
	}

	replacement := models.Node{
		ID:       canvas.NewNodeID(),
		Type:     models.NodeTypeFile,
		File:     target,
		Color:    old.Color,
		Geometry: old.Geometry,
	}
	if err := req.Canvas.AddNode(replacement); err != nil {
		p.discard(target)
		return Result{}, fmt.Errorf("promote: add node: %w", err)
	}
	if err := req.Canvas.RemoveNode(old.ID); err != nil {
		if rerr := req.Canvas.RemoveNode(replacement.ID); rerr != nil {
			p.logger.Error("promote: rollback failed", slog.String("node", replacement.ID), slog.String("error", rerr.Error()))
		}
		p.discard(target)
		return Result{}, fmt.Errorf("promote: remove node %s: %w", old.ID, err)
	}
	req.Canvas.RequestSave()

	if err := p.scratch.Delete(req.DocPath); err != nil {
		p.logger.Warn("promote: delete temporary document failed", slog.String("path", req.DocPath), slog.String("error", err.Error()))
	}

	p.logger.Info("promote: done",
		slog.String("path", target),
		slog.String("node", replacement.ID),
		slog.String("replaced", old.ID))
	return Result{Path: target, NodeID: replacement.ID, OldNodeID: old.ID}, nil
}

// deriveName uses the first heading of content, falling back to a prompt.
func (p *Promoter) deriveName(ctx context.Context, content string, ask prompt.Prompter) (string, error) {
	if name := noteName(parser.FirstHeading(content)); name != "" {
		return name, nil
	}
	return p.askName(ctx, ask, prompt.Question{Message: "Name for the new note"})
}

// resolveCollision re-prompts until the target path is free.
func (p *Promoter) resolveCollision(ctx context.Context, name string, ask prompt.Prompter) (string, error) {
	for {
		target := path.Join(p.folder, name+".md")
		exists, err := p.fs.Exists(target)
		if err != nil {
			return "", fmt.Errorf("promote: check %s: %w", target, err)
		}
		if !exists {
			return target, nil
		}
		p.logger.Info("promote: name taken", slog.String("path", target))
		name, err = p.askName(ctx, ask, prompt.Question{
			Message: fmt.Sprintf("%q already exists. Choose another name", target),
			Default: name,
		})
		if err != nil {
			return "", err
		}
	}
}

func (p *Promoter) askName(ctx context.Context, ask prompt.Prompter, q prompt.Question) (string, error) {
	if ask == nil {
		return "", apperr.ErrCancelled
	}
	answer, err := ask.Ask(ctx, q)
	if err != nil {
		// A caller that went away dismissed the prompt.
		if errors.Is(err, apperr.ErrCancelled) || errors.Is(err, context.Canceled) {
			return "", apperr.ErrCancelled
		}
		return "", fmt.Errorf("promote: prompt: %w", err)
	}
	name := noteName(answer)
	if name == "" {
		return "", fmt.Errorf("promote: %q: %w", answer, apperr.ErrInvalidName)
	}
	return name, nil
}

func (p *Promoter) discard(target string) {
	if err := p.fs.Delete(target); err != nil {
		p.logger.Warn("promote: discard new document failed", slog.String("path", target), slog.String("error", err.Error()))
	}
}

// noteName turns a heading or an answer into a file name without extension.
func noteName(raw string) string {
	return Sanitize(strings.TrimSuffix(strings.TrimSpace(raw), ".md"))
}

// Sanitize removes characters that cannot appear in a file name segment and
// trims surrounding spaces and dots.
func Sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		if unicode.IsControl(r) || strings.ContainsRune(`\/:*?"<>|`, r) {
			continue
		}
		b.WriteRune(r)
	}
	out := strings.Trim(b.String(), " .")
	if runes := []rune(out); len(runes) > maxNameRunes {
		out = strings.Trim(string(runes[:maxNameRunes]), " .")
	}
	return out
}
