package index

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/starford/canvasfocus/internal/checksum"
	"github.com/starford/canvasfocus/internal/models"
	"github.com/starford/canvasfocus/internal/parser"
)

// indexFile parses a vault document and upserts it. Canvases are indexed by
// the text of their text nodes and link to the files their file nodes show.
func indexFile(db *DB, p string, data []byte) error {
	if strings.HasSuffix(p, ".canvas") {
		return indexCanvas(db, p, data)
	}
	res, err := parser.Parse(data)
	if err != nil {
		return err
	}
	return db.UpsertNote(NoteRow{
		Path:     p,
		Kind:     DocNote,
		Title:    res.Title,
		Checksum: checksum.Sum(data),
		Tags:     res.Tags,
	}, res.Body, res.Links)
}

func indexCanvas(db *DB, p string, data []byte) error {
	var doc models.CanvasDocument
	if len(strings.TrimSpace(string(data))) > 0 {
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("index: parse canvas %s: %w", p, err)
		}
	}

	var texts, files []string
	seen := make(map[string]struct{})
	for _, n := range doc.Nodes {
		switch n.Type {
		case models.NodeTypeText:
			if t := strings.TrimSpace(n.Text); t != "" {
				texts = append(texts, t)
			}
		case models.NodeTypeFile:
			if n.File == "" {
				continue
			}
			if _, ok := seen[n.File]; ok {
				continue
			}
			seen[n.File] = struct{}{}
			files = append(files, n.File)
		}
	}

	return db.UpsertNote(NoteRow{
		Path:     p,
		Kind:     DocCanvas,
		Title:    strings.TrimSuffix(path.Base(p), ".canvas"),
		Checksum: checksum.Sum(data),
	}, strings.Join(texts, "\n\n"), files)
}
