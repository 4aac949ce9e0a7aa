// Package storage manages the external-file representation of note content.
package storage

import "github.com/google/uuid"

// Provider is the interface for content file operations. Files are
// addressed by note identity only.
type Provider interface {
	// Write atomically replaces the content file for id.
	Write(id uuid.UUID, text string) error
	// Read returns the content for id. Fails with apperr.ErrNotFound when no
	// file exists and apperr.ErrIOFailure otherwise.
	Read(id uuid.UUID) (string, error)
	// Delete removes the content file for id. Missing files are not an error.
	Delete(id uuid.UUID) error
	// Exists reports whether a content file for id is present.
	Exists(id uuid.UUID) (bool, error)
	// List returns the identities of every content file under the root.
	List() ([]uuid.UUID, error)
	// Path returns the absolute content file location for id.
	Path(id uuid.UUID) string
}
