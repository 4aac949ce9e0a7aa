package models

import "github.com/google/uuid"

// Group is a folder node. Groups form a tree addressed by identity: the
// parent is a reference, uuid.Nil meaning the root.
type Group struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	ParentID uuid.UUID `json:"parent_id"`
}

// IsRoot reports whether g sits directly under the root.
func (g *Group) IsRoot() bool {
	return g.ParentID == uuid.Nil
}
