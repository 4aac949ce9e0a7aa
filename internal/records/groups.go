package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/models"
)

// CreateGroup inserts a group. The parent must exist unless it is the root.
func (db *DB) CreateGroup(ctx context.Context, g *models.Group) error {
	if g.ParentID != uuid.Nil {
		if _, err := db.GetGroup(ctx, g.ParentID); err != nil {
			return err
		}
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO groups (id, name, parent_id) VALUES (?, ?, ?)`,
		g.ID.String(), g.Name, groupKey(g.ParentID))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("records: create group %s: %w", g.ID, apperr.ErrAlreadyExists)
		}
		return fmt.Errorf("records: create group: %w", err)
	}
	return nil
}

// GetGroup returns the group with id.
func (db *DB) GetGroup(ctx context.Context, id uuid.UUID) (*models.Group, error) {
	var g models.Group
	var rawID, parent string
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, name, parent_id FROM groups WHERE id = ?`, id.String()).Scan(&rawID, &g.Name, &parent)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("records: group %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("records: get group: %w", err)
	}
	g.ID = id
	if g.ParentID, err = parseGroupKey(parent); err != nil {
		return nil, err
	}
	return &g, nil
}

// ChildGroups returns the direct children of parent, ordered by name.
func (db *DB) ChildGroups(ctx context.Context, parent uuid.UUID) ([]models.Group, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, name, parent_id FROM groups WHERE parent_id = ? ORDER BY name, id`, groupKey(parent))
	if err != nil {
		return nil, fmt.Errorf("records: child groups: %w", err)
	}
	defer rows.Close()

	var out []models.Group
	for rows.Next() {
		var g models.Group
		var rawID, rawParent string
		if err := rows.Scan(&rawID, &g.Name, &rawParent); err != nil {
			return nil, err
		}
		if g.ID, err = uuid.Parse(rawID); err != nil {
			return nil, fmt.Errorf("records: bad group id %q: %w", rawID, err)
		}
		if g.ParentID, err = parseGroupKey(rawParent); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// MoveGroup re-parents a group. Moving a group under itself or one of its
// descendants is rejected.
func (db *DB) MoveGroup(ctx context.Context, id, parent uuid.UUID) error {
	for cur := parent; cur != uuid.Nil; {
		if cur == id {
			return fmt.Errorf("records: move group %s: cycle: %w", id, apperr.ErrInvalidArgument)
		}
		g, err := db.GetGroup(ctx, cur)
		if err != nil {
			return err
		}
		cur = g.ParentID
	}
	res, err := db.conn.ExecContext(ctx,
		`UPDATE groups SET parent_id = ? WHERE id = ?`, groupKey(parent), id.String())
	if err != nil {
		return fmt.Errorf("records: move group: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("records: group %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// DeleteGroup removes a group. Its child groups and notes are re-parented
// to the deleted group's parent within one transaction.
func (db *DB) DeleteGroup(ctx context.Context, id uuid.UUID) error {
	g, err := db.GetGroup(ctx, id)
	if err != nil {
		return err
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("records: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	key, parentKey := groupKey(id), groupKey(g.ParentID)
	if _, err := tx.ExecContext(ctx, `UPDATE groups SET parent_id = ? WHERE parent_id = ?`, parentKey, key); err != nil {
		return fmt.Errorf("records: reparent groups: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE notes SET group_id = ? WHERE group_id = ?`, parentKey, key); err != nil {
		return fmt.Errorf("records: reparent notes: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM groups WHERE id = ?`, key); err != nil {
		return fmt.Errorf("records: delete group: %w", err)
	}
	return tx.Commit()
}
