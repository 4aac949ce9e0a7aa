package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/models"
)

const noteColumns = `id, title, inline_content, representation, group_id, favorite, trashed, created_at, updated_at`

// ListFilter narrows ListNotes. Nil fields match everything.
type ListFilter struct {
	GroupID  *uuid.UUID
	Trashed  *bool
	Favorite *bool
}

// CreateNote inserts a new note record.
func (db *DB) CreateNote(ctx context.Context, n *models.Note) error {
	if !n.Representation.Valid() {
		return fmt.Errorf("records: create note: representation %q: %w", n.Representation, apperr.ErrInvalidArgument)
	}
	if n.Representation == models.External && n.Inline != "" {
		return fmt.Errorf("records: create note: external note with inline content: %w", apperr.ErrInvalidArgument)
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO notes (`+noteColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, n.ID.String(), n.Title, n.Inline, string(n.Representation), groupKey(n.GroupID),
		n.Favorite, n.Trashed, n.CreatedAt.UTC(), n.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("records: create note %s: %w", n.ID, apperr.ErrAlreadyExists)
		}
		return fmt.Errorf("records: create note: %w", err)
	}
	return nil
}

// GetNote returns the record for id.
func (db *DB) GetNote(ctx context.Context, id uuid.UUID) (*models.Note, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id = ?`, id.String())
	n, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("records: note %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("records: get note: %w", err)
	}
	return n, nil
}

// ListNotes returns the notes matching f, most recently updated first.
func (db *DB) ListNotes(ctx context.Context, f ListFilter) ([]models.Note, error) {
	var (
		where []string
		args  []any
	)
	if f.GroupID != nil {
		where = append(where, "group_id = ?")
		args = append(args, groupKey(*f.GroupID))
	}
	if f.Trashed != nil {
		where = append(where, "trashed = ?")
		args = append(args, *f.Trashed)
	}
	if f.Favorite != nil {
		where = append(where, "favorite = ?")
		args = append(args, *f.Favorite)
	}
	q := `SELECT ` + noteColumns + ` FROM notes`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY updated_at DESC, id ASC"

	rows, err := db.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("records: list notes: %w", err)
	}
	defer rows.Close()

	var out []models.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("records: scan note: %w", err)
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

// AllNotes returns every note record.
func (db *DB) AllNotes(ctx context.Context) ([]models.Note, error) {
	return db.ListNotes(ctx, ListFilter{})
}

// SetInline stores text as the inline content of an inline note. It refuses
// to write inline content into an external note.
func (db *DB) SetInline(ctx context.Context, id uuid.UUID, text string, at time.Time) error {
	return db.execOne(ctx, "set inline", id, `
		UPDATE notes SET inline_content = ?, updated_at = ?
		WHERE id = ? AND representation = 'inline'
	`, text, at.UTC(), id.String())
}

// TouchExternal records a content write for an external note and drops any
// stale inline copy in the same statement.
func (db *DB) TouchExternal(ctx context.Context, id uuid.UUID, at time.Time) error {
	return db.execOne(ctx, "touch external", id, `
		UPDATE notes SET inline_content = '', updated_at = ?
		WHERE id = ? AND representation = 'external'
	`, at.UTC(), id.String())
}

// MarkExternal flips the representation flag of an inline note and clears
// its inline field in a single statement. Callers must have made the content
// file durable first. A note that is already external fails with
// apperr.ErrInconsistentState.
func (db *DB) MarkExternal(ctx context.Context, id uuid.UUID, at time.Time) error {
	return db.execOne(ctx, "mark external", id, `
		UPDATE notes SET representation = 'external', inline_content = '', updated_at = ?
		WHERE id = ? AND representation = 'inline'
	`, at.UTC(), id.String())
}

// SetTitle updates the title of a note.
func (db *DB) SetTitle(ctx context.Context, id uuid.UUID, title string, at time.Time) error {
	return db.execOne(ctx, "set title", id,
		`UPDATE notes SET title = ?, updated_at = ? WHERE id = ?`, title, at.UTC(), id.String())
}

// SetFavorite updates the favorite flag of a note.
func (db *DB) SetFavorite(ctx context.Context, id uuid.UUID, favorite bool) error {
	return db.execOne(ctx, "set favorite", id,
		`UPDATE notes SET favorite = ? WHERE id = ?`, favorite, id.String())
}

// SetTrashed updates the trashed flag of a note.
func (db *DB) SetTrashed(ctx context.Context, id uuid.UUID, trashed bool, at time.Time) error {
	return db.execOne(ctx, "set trashed", id,
		`UPDATE notes SET trashed = ?, updated_at = ? WHERE id = ?`, trashed, at.UTC(), id.String())
}

// SetGroup moves a note into group (uuid.Nil for the root).
func (db *DB) SetGroup(ctx context.Context, id, group uuid.UUID) error {
	return db.execOne(ctx, "set group", id,
		`UPDATE notes SET group_id = ? WHERE id = ?`, groupKey(group), id.String())
}

// DeleteNote removes a note record.
func (db *DB) DeleteNote(ctx context.Context, id uuid.UUID) error {
	return db.execOne(ctx, "delete note", id, `DELETE FROM notes WHERE id = ?`, id.String())
}

// execOne runs a statement that must affect exactly the row for id.
func (db *DB) execOne(ctx context.Context, op string, id uuid.UUID, q string, args ...any) error {
	res, err := db.conn.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("records: %s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("records: %s: %w", op, err)
	}
	if n == 0 {
		if exists, _ := db.noteExists(ctx, id); exists {
			return fmt.Errorf("records: %s %s: representation mismatch: %w", op, id, apperr.ErrInconsistentState)
		}
		return fmt.Errorf("records: %s %s: %w", op, id, apperr.ErrNotFound)
	}
	return nil
}

func (db *DB) noteExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var one int
	err := db.conn.QueryRowContext(ctx, `SELECT 1 FROM notes WHERE id = ?`, id.String()).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNote(s scanner) (*models.Note, error) {
	var (
		n              models.Note
		id, group, rep string
	)
	if err := s.Scan(&id, &n.Title, &n.Inline, &rep, &group, &n.Favorite, &n.Trashed, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if n.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("bad note id %q: %w", id, err)
	}
	if n.GroupID, err = parseGroupKey(group); err != nil {
		return nil, err
	}
	n.Representation = models.Representation(rep)
	return &n, nil
}

// groupKey maps the root group (uuid.Nil) to the empty string.
func groupKey(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}

func parseGroupKey(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("bad group id %q: %w", s, err)
	}
	return id, nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
