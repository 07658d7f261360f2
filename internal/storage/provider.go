// Package storage defines the vault file-system abstraction shared by the
// scratch store, the canvas host, the settings file and promotion.
package storage

import "github.com/starford/canvasfocus/internal/models"

// Provider is the interface for vault file operations. All paths are relative
// to the vault root and use forward slashes.
type Provider interface {
	// List returns metadata for every document (.md or .canvas) under dir.
	List(dir string) ([]models.NoteMetadata, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically replaces the content of path, creating parent folders.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
	// Move renames oldPath to newPath.
	Move(oldPath, newPath string) error
	// Exists reports whether path names an existing file or folder.
	Exists(path string) (bool, error)
	// MkdirAll creates dir and any missing parents.
	MkdirAll(dir string) error
}

// Verify *FS satisfies Provider at compile time.
var _ Provider = (*FS)(nil)
