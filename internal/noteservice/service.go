// Package noteservice is the read side of the vault: note lookup enriched
// with index data, and full-text search.
package noteservice

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/starford/canvasfocus/internal/apperr"
	"github.com/starford/canvasfocus/internal/checksum"
	"github.com/starford/canvasfocus/internal/index"
	"github.com/starford/canvasfocus/internal/parser"
	"github.com/starford/canvasfocus/internal/storage"
)

// NoteDetail is the full representation of a note.
type NoteDetail struct {
	Path        string         `json:"path"`
	Title       string         `json:"title"`
	Heading     string         `json:"heading,omitempty"`
	Content     string         `json:"content"`
	Checksum    string         `json:"checksum"`
	Tags        []string       `json:"tags"`
	Frontmatter map[string]any `json:"frontmatter,omitempty"`
	Backlinks   []string       `json:"backlinks"`
	// Canvases lists the canvases that show this note as a file node.
	Canvases []string `json:"canvases"`
}

// Service reads notes from storage and enriches them from the index.
type Service struct {
	store storage.Provider
	idx   index.NoteIndex
}

// NewService creates a new note service.
func NewService(store storage.Provider, idx index.NoteIndex) *Service {
	return &Service{store: store, idx: idx}
}

// GetNote reads a note, parses it and attaches its backlinks and the
// canvases it appears on.
func (s *Service) GetNote(_ context.Context, path string) (*NoteDetail, error) {
	if !strings.HasSuffix(path, ".md") {
		return nil, apperr.ErrNotFound
	}
	data, err := s.store.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	res, err := parser.Parse(data)
	if err != nil {
		return nil, err
	}
	bl, err := s.idx.Backlinks(path)
	if err != nil {
		return nil, err
	}
	canvases, err := s.idx.EmbeddedIn(path)
	if err != nil {
		return nil, err
	}
	return &NoteDetail{
		Path:        path,
		Title:       res.Title,
		Heading:     res.Heading,
		Content:     string(data),
		Checksum:    checksum.Sum(data),
		Tags:        nonNilSlice(res.Tags),
		Frontmatter: res.Frontmatter,
		Backlinks:   nonNilSlice(bl),
		Canvases:    nonNilSlice(canvases),
	}, nil
}

// Search delegates full-text search to the index.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return []index.SearchResult{}, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	res, err := s.idx.Search(query, limit)
	if err != nil {
		return nil, err
	}
	return nonNilSlice(res), nil
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
