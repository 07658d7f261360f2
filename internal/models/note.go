// Package models defines the domain types shared by canvasfocus packages.
package models

import "time"

// NoteMetadata is a lightweight representation of a vault document returned by list operations.
type NoteMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
