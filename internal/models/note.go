// Package models defines the domain types for Quire.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Representation names the storage mechanism that holds a note's
// authoritative content.
type Representation string

// Representations. A note only ever moves from inline to external.
const (
	Inline   Representation = "inline"
	External Representation = "external"
)

// Valid reports whether r is a known representation.
func (r Representation) Valid() bool {
	return r == Inline || r == External
}

// Note is the persisted record for a note. Inline must be empty once
// Representation is External.
type Note struct {
	ID             uuid.UUID      `json:"id"`
	Title          string         `json:"title"`
	Inline         string         `json:"-"`
	Representation Representation `json:"-"`
	GroupID        uuid.UUID      `json:"group_id"`
	Favorite       bool           `json:"favorite"`
	Trashed        bool           `json:"trashed"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// IsExternal reports whether the note's content lives in a content file.
func (n *Note) IsExternal() bool {
	return n.Representation == External
}

// Status returns the note's status flags.
func (n *Note) Status() Status {
	var s Status
	if n.Favorite {
		s |= StatusFavorite
	}
	if n.Trashed {
		s |= StatusTrashed
	}
	return s
}

// Blob returns the note's content blob. path is the content file location
// used when the note is external.
func (n *Note) Blob(path string) ContentBlob {
	if n.IsExternal() {
		return ContentBlob{Kind: External, Path: path}
	}
	return ContentBlob{Kind: Inline, Text: n.Inline}
}

// ContentBlob is a note body in exactly one of two forms: inline text or
// a reference to an external file.
type ContentBlob struct {
	Kind Representation
	Text string // set when Kind is Inline
	Path string // set when Kind is External
}

// Status is a bit set of note flags.
type Status uint8

// Status flags.
const (
	StatusFavorite Status = 1 << iota
	StatusTrashed
)

// Has reports whether all bits of f are set.
func (s Status) Has(f Status) bool {
	return s&f == f
}

// NoteMetadata is the derived, index-resident view of a note.
type NoteMetadata struct {
	ID         uuid.UUID `json:"id"`
	Title      string    `json:"title"`
	Excerpt    string    `json:"excerpt"`
	Tags       []string  `json:"tags"`
	WordCount  int       `json:"word_count"`
	ModifiedAt time.Time `json:"modified_at"`
	Path       string    `json:"path,omitempty"`
	Status     Status    `json:"status"`
	Checksum   string    `json:"checksum"`
}

// Clone returns a copy of m that shares no slices with it.
func (m NoteMetadata) Clone() NoteMetadata {
	if m.Tags != nil {
		m.Tags = append([]string(nil), m.Tags...)
	}
	return m
}
