package api

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/starford/quire/internal/index"
	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/noteservice"
)

// NoteDetail is the full note response type (aliased from the domain layer).
type NoteDetail = noteservice.NoteDetail

// Children is the group listing response type (aliased from the domain layer).
type Children = noteservice.Children

// CreateNoteRequest is the request body for creating a note.
type CreateNoteRequest struct {
	Title   string `json:"title" example:"Groceries"`
	Content string `json:"content" example:"milk #shopping"`
	GroupID string `json:"group_id,omitempty" example:"2f1c8a9e-0d3b-4b7a-9c41-5a1e7f3d2b10"`
}

// Validate validates the request.
func (r *CreateNoteRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Title, validation.Length(0, 200)),
		validation.Field(&r.GroupID, validation.By(optionalUUID)),
	)
}

// UpdateContentRequest is the request body for replacing a note's content.
type UpdateContentRequest struct {
	Content *string `json:"content" example:"# Updated\nContent"`
}

// Validate validates the request. Empty content is allowed; a missing
// field is not.
func (r *UpdateContentRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Content, validation.NotNil),
	)
}

// PatchNoteRequest changes record fields of a note. Absent fields are kept.
type PatchNoteRequest struct {
	Title    *string `json:"title,omitempty"`
	Favorite *bool   `json:"favorite,omitempty"`
	Trashed  *bool   `json:"trashed,omitempty"`
	GroupID  *string `json:"group_id,omitempty"`
}

// Validate validates the request.
func (r *PatchNoteRequest) Validate() error {
	if r.Title == nil && r.Favorite == nil && r.Trashed == nil && r.GroupID == nil {
		return errors.New("no fields to update")
	}
	return validation.ValidateStruct(r,
		validation.Field(&r.Title, validation.When(r.Title != nil, validation.Length(0, 200))),
		validation.Field(&r.GroupID, validation.By(optionalUUID)),
	)
}

// CreateGroupRequest is the request body for creating a group.
type CreateGroupRequest struct {
	Name     string `json:"name" example:"Projects"`
	ParentID string `json:"parent_id,omitempty"`
}

// Validate validates the request.
func (r *CreateGroupRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.ParentID, validation.By(optionalUUID)),
	)
}

// MoveGroupRequest is the request body for re-parenting a group. An empty
// ParentID moves the group to the root.
type MoveGroupRequest struct {
	ParentID string `json:"parent_id"`
}

// Validate validates the request.
func (r *MoveGroupRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.ParentID, validation.By(optionalUUID)),
	)
}

// NoteListResponse wraps note listings.
type NoteListResponse struct {
	Notes []models.NoteMetadata `json:"notes"`
	Total int                   `json:"total" example:"42"`
}

// TagsResponse wraps the tag listing.
type TagsResponse struct {
	Tags []index.TagCount `json:"tags"`
}

// optionalUUID accepts "", a UUID string, or a pointer to either.
func optionalUUID(value any) error {
	var s string
	switch v := value.(type) {
	case string:
		s = v
	case *string:
		if v == nil {
			return nil
		}
		s = *v
	}
	if strings.TrimSpace(s) == "" {
		return nil
	}
	if _, err := uuid.Parse(s); err != nil {
		return errors.New("must be a valid UUID")
	}
	return nil
}

// parseGroup turns an optional group id into a UUID, "" meaning the root.
func parseGroup(s string) uuid.UUID {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return uuid.Nil
	}
	return id
}
