// Package apperr holds the sentinel errors shared across canvasfocus packages.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")

	// ErrCancelled is returned when the user dismisses a prompt.
	ErrCancelled = errors.New("cancelled")
	// ErrNoActiveNode is returned by operations that need a live sync association.
	ErrNoActiveNode = errors.New("no active text node")
	ErrInvalidName  = errors.New("invalid file name")
	ErrDisabled     = errors.New("focus is disabled")
)
