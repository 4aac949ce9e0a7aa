package records

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "quire-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newNote(title, inline string) *models.Note {
	now := time.Now().UTC()
	return &models.Note{
		ID:             uuid.New(),
		Title:          title,
		Inline:         inline,
		Representation: models.Inline,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM notes`).Scan(&count); err != nil {
		t.Fatalf("notes table missing: %v", err)
	}
	if err := db.conn.QueryRow(`SELECT count(*) FROM groups`).Scan(&count); err != nil {
		t.Fatalf("groups table missing: %v", err)
	}
}

func TestCreateAndGetNote(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	n := newNote("Hello", "Draft")
	n.Favorite = true
	if err := db.CreateNote(ctx, n); err != nil {
		t.Fatalf("CreateNote: %v", err)
	}
	got, err := db.GetNote(ctx, n.ID)
	if err != nil {
		t.Fatalf("GetNote: %v", err)
	}
	if got.Title != "Hello" || got.Inline != "Draft" || got.Representation != models.Inline {
		t.Errorf("got %+v", got)
	}
	if !got.Favorite || got.Trashed {
		t.Errorf("flags = favorite %v trashed %v", got.Favorite, got.Trashed)
	}
	if got.GroupID != uuid.Nil {
		t.Errorf("group = %v, want root", got.GroupID)
	}
	if !got.CreatedAt.Equal(n.CreatedAt) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, n.CreatedAt)
	}
}

func TestCreateDuplicate(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	n := newNote("a", "")
	_ = db.CreateNote(ctx, n)
	if err := db.CreateNote(ctx, n); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("err = %v, want ErrAlreadyExists", err)
	}
}

func TestCreateRejectsExternalWithInline(t *testing.T) {
	db := testDB(t)
	n := newNote("a", "text")
	n.Representation = models.External
	if err := db.CreateNote(context.Background(), n); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestGetNote_NotFound(t *testing.T) {
	db := testDB(t)
	if _, err := db.GetNote(context.Background(), uuid.New()); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestMarkExternalClearsInline(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	n := newNote("a", "body")
	_ = db.CreateNote(ctx, n)

	if err := db.MarkExternal(ctx, n.ID, time.Now()); err != nil {
		t.Fatalf("MarkExternal: %v", err)
	}
	got, _ := db.GetNote(ctx, n.ID)
	if got.Representation != models.External || got.Inline != "" {
		t.Errorf("after MarkExternal: rep=%s inline=%q", got.Representation, got.Inline)
	}
}

func TestMarkExternalRefusesExternal(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	n := newNote("a", "body")
	_ = db.CreateNote(ctx, n)
	_ = db.MarkExternal(ctx, n.ID, time.Now())

	if err := db.MarkExternal(ctx, n.ID, time.Now()); !errors.Is(err, apperr.ErrInconsistentState) {
		t.Fatalf("second MarkExternal err = %v, want ErrInconsistentState", err)
	}
	if err := db.MarkExternal(ctx, uuid.New(), time.Now()); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing note err = %v, want ErrNotFound", err)
	}
}

func TestSetInlineRefusesExternal(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	n := newNote("a", "")
	_ = db.CreateNote(ctx, n)
	_ = db.MarkExternal(ctx, n.ID, time.Now())

	err := db.SetInline(ctx, n.ID, "stale", time.Now())
	if !errors.Is(err, apperr.ErrInconsistentState) {
		t.Fatalf("err = %v, want ErrInconsistentState", err)
	}
	got, _ := db.GetNote(ctx, n.ID)
	if got.Inline != "" {
		t.Error("inline field written on external note")
	}
}

func TestTouchExternalRequiresExternal(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	n := newNote("a", "x")
	_ = db.CreateNote(ctx, n)
	if err := db.TouchExternal(ctx, n.ID, time.Now()); !errors.Is(err, apperr.ErrInconsistentState) {
		t.Errorf("err = %v, want ErrInconsistentState", err)
	}
}

func TestUpdateMissingNote(t *testing.T) {
	db := testDB(t)
	if err := db.SetInline(context.Background(), uuid.New(), "x", time.Now()); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListNotesFilters(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	a, b, c := newNote("a", ""), newNote("b", ""), newNote("c", "")
	for _, n := range []*models.Note{a, b, c} {
		_ = db.CreateNote(ctx, n)
	}
	_ = db.SetTrashed(ctx, b.ID, true, time.Now())
	_ = db.SetFavorite(ctx, c.ID, true)

	all, err := db.AllNotes(ctx)
	if err != nil || len(all) != 3 {
		t.Fatalf("AllNotes = %d, %v", len(all), err)
	}

	no := false
	live, _ := db.ListNotes(ctx, ListFilter{Trashed: &no})
	if len(live) != 2 {
		t.Errorf("live = %d, want 2", len(live))
	}
	yes := true
	fav, _ := db.ListNotes(ctx, ListFilter{Favorite: &yes})
	if len(fav) != 1 || fav[0].ID != c.ID {
		t.Errorf("favorites = %+v", fav)
	}
}

func TestDeleteNote(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	n := newNote("a", "")
	_ = db.CreateNote(ctx, n)
	if err := db.DeleteNote(ctx, n.ID); err != nil {
		t.Fatalf("DeleteNote: %v", err)
	}
	if _, err := db.GetNote(ctx, n.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestGroupsTree(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	top := &models.Group{ID: uuid.New(), Name: "top"}
	mid := &models.Group{ID: uuid.New(), Name: "mid", ParentID: top.ID}
	leaf := &models.Group{ID: uuid.New(), Name: "leaf", ParentID: mid.ID}
	for _, g := range []*models.Group{top, mid, leaf} {
		if err := db.CreateGroup(ctx, g); err != nil {
			t.Fatalf("CreateGroup %s: %v", g.Name, err)
		}
	}

	kids, err := db.ChildGroups(ctx, top.ID)
	if err != nil || len(kids) != 1 || kids[0].ID != mid.ID {
		t.Fatalf("ChildGroups(top) = %+v, %v", kids, err)
	}
	roots, _ := db.ChildGroups(ctx, uuid.Nil)
	if len(roots) != 1 || !roots[0].IsRoot() {
		t.Errorf("roots = %+v", roots)
	}

	if err := db.MoveGroup(ctx, top.ID, leaf.ID); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("cycle move err = %v, want ErrInvalidArgument", err)
	}
}

func TestCreateGroupMissingParent(t *testing.T) {
	db := testDB(t)
	g := &models.Group{ID: uuid.New(), Name: "orphan", ParentID: uuid.New()}
	if err := db.CreateGroup(context.Background(), g); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteGroupReparents(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	top := &models.Group{ID: uuid.New(), Name: "top"}
	mid := &models.Group{ID: uuid.New(), Name: "mid", ParentID: top.ID}
	leaf := &models.Group{ID: uuid.New(), Name: "leaf", ParentID: mid.ID}
	for _, g := range []*models.Group{top, mid, leaf} {
		_ = db.CreateGroup(ctx, g)
	}
	n := newNote("in mid", "")
	n.GroupID = mid.ID
	_ = db.CreateNote(ctx, n)

	if err := db.DeleteGroup(ctx, mid.ID); err != nil {
		t.Fatalf("DeleteGroup: %v", err)
	}
	got, _ := db.GetGroup(ctx, leaf.ID)
	if got.ParentID != top.ID {
		t.Errorf("leaf parent = %v, want %v", got.ParentID, top.ID)
	}
	note, _ := db.GetNote(ctx, n.ID)
	if note.GroupID != top.ID {
		t.Errorf("note group = %v, want %v", note.GroupID, top.ID)
	}
}
