package index

import (
	"context"
	"fmt"
	"math/rand"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/starford/quire/internal/checksum"
	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/parser"
)

func metaFor(id uuid.UUID, content string) models.NoteMetadata {
	m := parser.Extract(content)
	return models.NoteMetadata{
		ID:        id,
		Title:     m.Title,
		Excerpt:   m.Excerpt,
		Tags:      m.Tags,
		WordCount: m.WordCount,
	}
}

func tagsOf(ix *Index) map[string]int {
	out := map[string]int{}
	for _, tc := range ix.AllTags() {
		out[tc.Tag] = tc.Count
	}
	return out
}

func containsID(metas []models.NoteMetadata, id uuid.UUID) bool {
	for _, m := range metas {
		if m.ID == id {
			return true
		}
	}
	return false
}

// checkConsistent verifies both mappings agree in both directions.
func checkConsistent(t *testing.T, ix *Index) {
	t.Helper()
	s := ix.Snapshot()
	for tag, ids := range s.Tags {
		if len(ids) == 0 {
			t.Errorf("dangling empty tag %q", tag)
		}
		for _, id := range ids {
			m, ok := s.Notes[id]
			if !ok {
				t.Errorf("tag %q references unindexed %s", tag, id)
				continue
			}
			found := false
			for _, mt := range m.Tags {
				if mt == tag {
					found = true
				}
			}
			if !found {
				t.Errorf("tag %q lists %s but its metadata lacks the tag", tag, id)
			}
		}
	}
	for id, m := range s.Notes {
		for _, tag := range m.Tags {
			if !containsUUID(s.Tags[tag], id) {
				t.Errorf("%s carries %q but is missing from the tag set", id, tag)
			}
		}
	}
}

func containsUUID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func TestUpdate_Scenario(t *testing.T) {
	ix := New()
	id := uuid.New()
	ix.Update(metaFor(id, "Hello #work and #draft"))

	tags := tagsOf(ix)
	if tags["work"] != 1 || tags["draft"] != 1 {
		t.Errorf("AllTags = %v", ix.AllTags())
	}
	notes := ix.NotesByTag("work")
	if len(notes) != 1 || notes[0].ID != id || notes[0].WordCount != 4 {
		t.Errorf("NotesByTag(work) = %+v", notes)
	}
	checkConsistent(t, ix)
}

func TestUpdate_ExactTagMembership(t *testing.T) {
	ix := New()
	other := uuid.New()
	ix.Update(metaFor(other, "#alpha #beta #gamma"))

	id := uuid.New()
	content := "text #beta and #delta"
	ix.Update(metaFor(id, content))

	want := map[string]bool{"beta": true, "delta": true}
	for _, tc := range ix.AllTags() {
		got := containsID(ix.NotesByTag(tc.Tag), id)
		if got != want[tc.Tag] {
			t.Errorf("tag %q contains id = %v, want %v", tc.Tag, got, want[tc.Tag])
		}
	}
	checkConsistent(t, ix)
}

func TestUpdate_RemovesDroppedTags(t *testing.T) {
	ix := New()
	id := uuid.New()
	ix.Update(metaFor(id, "#keep #drop"))
	ix.Update(metaFor(id, "#keep"))

	if _, ok := tagsOf(ix)["drop"]; ok {
		t.Error("tag held by no note should disappear from AllTags")
	}
	if len(ix.NotesByTag("drop")) != 0 {
		t.Error("NotesByTag(drop) should be empty")
	}
	checkConsistent(t, ix)
}

func TestUpdate_SharedTagSurvives(t *testing.T) {
	ix := New()
	a, b := uuid.New(), uuid.New()
	ix.Update(metaFor(a, "#shared"))
	ix.Update(metaFor(b, "#shared"))
	ix.Update(metaFor(a, "no tags now"))

	if tagsOf(ix)["shared"] != 1 {
		t.Errorf("shared count = %d, want 1", tagsOf(ix)["shared"])
	}
	if containsID(ix.NotesByTag("shared"), a) {
		t.Error("a should have left the shared tag")
	}
}

func TestRemove(t *testing.T) {
	ix := New()
	a, b := uuid.New(), uuid.New()
	ix.Update(metaFor(a, "#x #y"))
	ix.Update(metaFor(b, "#y"))
	ix.Remove(a)

	for _, tag := range []string{"x", "y"} {
		if containsID(ix.NotesByTag(tag), a) {
			t.Errorf("removed note still listed under %q", tag)
		}
	}
	if _, ok := ix.Get(a); ok {
		t.Error("metadata survived Remove")
	}
	if _, ok := tagsOf(ix)["x"]; ok {
		t.Error("tag x should be gone")
	}
	ix.Remove(a) // no-op
	checkConsistent(t, ix)
}

func TestAllTagsOrdering(t *testing.T) {
	ix := New()
	ix.Update(metaFor(uuid.New(), "#b #c"))
	ix.Update(metaFor(uuid.New(), "#b #a"))
	ix.Update(metaFor(uuid.New(), "#c #b"))

	got := ix.AllTags()
	want := []TagCount{{"b", 3}, {"c", 2}, {"a", 1}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("AllTags = %v, want %v", got, want)
	}
}

func TestNotesByTag_NormalisesQuery(t *testing.T) {
	ix := New()
	id := uuid.New()
	ix.Update(metaFor(id, "#Work"))
	if !containsID(ix.NotesByTag("#WORK"), id) {
		t.Error("query should be normalised like extracted tags")
	}
}

func TestSnapshotIsolated(t *testing.T) {
	ix := New()
	id := uuid.New()
	ix.Update(metaFor(id, "#a"))
	got, _ := ix.Get(id)
	got.Tags[0] = "mutated"
	again, _ := ix.Get(id)
	if again.Tags[0] != "a" {
		t.Error("Get leaked internal slice")
	}
}

type fakeSource struct {
	content map[uuid.UUID]string
}

func (f fakeSource) Metadata(_ context.Context, n *models.Note) models.NoteMetadata {
	m := metaFor(n.ID, f.content[n.ID])
	m.ModifiedAt = n.UpdatedAt
	return m
}

func TestRebuildOrderIndependent(t *testing.T) {
	const n = 1000
	words := []string{"alpha", "beta", "gamma", "delta", "eps", "zeta"}
	rng := rand.New(rand.NewSource(42))
	src := fakeSource{content: map[uuid.UUID]string{}}
	notes := make([]models.Note, n)
	stamp := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range notes {
		id := uuid.New()
		content := fmt.Sprintf("note %d", i)
		for k := rng.Intn(4); k > 0; k-- {
			content += " #" + words[rng.Intn(len(words))]
		}
		src.content[id] = content
		notes[i] = models.Note{ID: id, UpdatedAt: stamp}
	}

	rebuilt := New()
	// Stale state must be cleared.
	rebuilt.Update(metaFor(uuid.New(), "#stale"))
	if err := rebuilt.Rebuild(context.Background(), notes, src); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	incremental := New()
	for _, i := range rng.Perm(n) {
		incremental.Update(src.Metadata(context.Background(), &notes[i]))
	}

	if !reflect.DeepEqual(rebuilt.Snapshot(), incremental.Snapshot()) {
		t.Error("rebuild differs from incremental updates")
	}
	if rebuilt.Len() != n {
		t.Errorf("Len = %d, want %d", rebuilt.Len(), n)
	}
	checkConsistent(t, rebuilt)
}

// inlineSource derives metadata from the record's inline field, so two
// copies of one note can carry different content.
type inlineSource struct{}

func (inlineSource) Metadata(_ context.Context, n *models.Note) models.NoteMetadata {
	m := metaFor(n.ID, n.Inline)
	m.ModifiedAt = n.UpdatedAt
	m.Checksum = checksum.Of(n.Inline)
	return m
}

func TestRebuildDuplicateTieIsDeterministic(t *testing.T) {
	id := uuid.New()
	stamp := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := models.Note{ID: id, Inline: "same title\n#alpha", UpdatedAt: stamp}
	b := models.Note{ID: id, Inline: "same title\n#beta", UpdatedAt: stamp}

	forward, backward := New(), New()
	if err := forward.Rebuild(context.Background(), []models.Note{a, b}, inlineSource{}); err != nil {
		t.Fatal(err)
	}
	if err := backward.Rebuild(context.Background(), []models.Note{b, a}, inlineSource{}); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(forward.Snapshot(), backward.Snapshot()) {
		t.Error("rebuild result depends on the order of duplicate notes")
	}
	if forward.Len() != 1 || len(forward.AllTags()) != 1 {
		t.Errorf("duplicates should collapse to one entry, tags = %v", forward.AllTags())
	}

	newer := b
	newer.UpdatedAt = stamp.Add(time.Second)
	ix := New()
	_ = ix.Rebuild(context.Background(), []models.Note{newer, a}, inlineSource{})
	if got := ix.NotesByTag("beta"); len(got) != 1 {
		t.Error("the newer copy should win")
	}
}

func TestRebuildCancelled(t *testing.T) {
	ix := New()
	ix.Update(metaFor(uuid.New(), "#kept"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	notes := []models.Note{{ID: uuid.New()}}
	if err := ix.Rebuild(ctx, notes, fakeSource{}); err == nil {
		t.Fatal("expected error from cancelled rebuild")
	}
	if ix.Len() != 1 {
		t.Error("failed rebuild must leave the previous index in place")
	}
}

func TestConcurrentUpdatesStayConsistent(t *testing.T) {
	ix := New()
	ids := make([]uuid.UUID, 20)
	for i := range ids {
		ids[i] = uuid.New()
	}
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				id := ids[(w*7+i)%len(ids)]
				switch i % 3 {
				case 0:
					ix.Update(metaFor(id, fmt.Sprintf("#t%d #common", i%5)))
				case 1:
					ix.Remove(id)
				default:
					_ = ix.AllTags()
					_ = ix.NotesByTag("common")
				}
			}
		}(w)
	}
	wg.Wait()
	checkConsistent(t, ix)
}
