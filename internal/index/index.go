// Package index maintains the in-memory tag index derived from note content.
//
// The index holds two mappings that are kept mutually consistent: tag → set
// of note identities and identity → metadata. It is never persisted; it is
// rebuilt from the authoritative stores at startup and updated incrementally
// on every content mutation.
package index

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/parser"
)

// TagCount is one entry of the tag listing.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// Index is safe for concurrent use. Writers are mutually exclusive; readers
// share the lock and observe a consistent snapshot.
type Index struct {
	mu    sync.RWMutex
	notes map[uuid.UUID]models.NoteMetadata
	tags  map[string]map[uuid.UUID]struct{}
}

// New returns an empty index.
func New() *Index {
	return &Index{
		notes: make(map[uuid.UUID]models.NoteMetadata),
		tags:  make(map[string]map[uuid.UUID]struct{}),
	}
}

// Update replaces the metadata for meta.ID and moves the identity between
// tag sets to match meta.Tags. The input is trusted.
func (ix *Index) Update(meta models.NoteMetadata) {
	meta = meta.Clone()

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if old, ok := ix.notes[meta.ID]; ok {
		keep := make(map[string]struct{}, len(meta.Tags))
		for _, t := range meta.Tags {
			keep[t] = struct{}{}
		}
		for _, t := range old.Tags {
			if _, ok := keep[t]; !ok {
				ix.unlinkLocked(t, meta.ID)
			}
		}
	}
	ix.notes[meta.ID] = meta
	for _, t := range meta.Tags {
		linkTag(ix.tags, t, meta.ID)
	}
}

// Remove drops the metadata for id and removes it from every tag set.
func (ix *Index) Remove(id uuid.UUID) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	old, ok := ix.notes[id]
	if !ok {
		return
	}
	for _, t := range old.Tags {
		ix.unlinkLocked(t, id)
	}
	delete(ix.notes, id)
}

// unlinkLocked removes id from tag's set and drops the set once empty.
func (ix *Index) unlinkLocked(tag string, id uuid.UUID) {
	set, ok := ix.tags[tag]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(ix.tags, tag)
	}
}

func linkTag(tags map[string]map[uuid.UUID]struct{}, tag string, id uuid.UUID) {
	set, ok := tags[tag]
	if !ok {
		set = make(map[uuid.UUID]struct{})
		tags[tag] = set
	}
	set[id] = struct{}{}
}

// AllTags returns every tag with its note count, sorted by descending count
// and then alphabetically.
func (ix *Index) AllTags() []TagCount {
	ix.mu.RLock()
	out := make([]TagCount, 0, len(ix.tags))
	for t, set := range ix.tags {
		out = append(out, TagCount{Tag: t, Count: len(set)})
	}
	ix.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Tag < out[j].Tag
	})
	return out
}

// NotesByTag returns metadata for every note carrying tag. The query is
// normalised the same way extracted tags are. Results are ordered by
// identity.
func (ix *Index) NotesByTag(tag string) []models.NoteMetadata {
	tag = parser.NormalizeTag(tag)

	ix.mu.RLock()
	set := ix.tags[tag]
	out := make([]models.NoteMetadata, 0, len(set))
	for id := range set {
		out = append(out, ix.notes[id].Clone())
	}
	ix.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// Get returns the metadata for id.
func (ix *Index) Get(id uuid.UUID) (models.NoteMetadata, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	m, ok := ix.notes[id]
	if !ok {
		return models.NoteMetadata{}, false
	}
	return m.Clone(), true
}

// Len returns the number of indexed notes.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.notes)
}

// Snapshot is a deep copy of both mappings.
type Snapshot struct {
	Notes map[uuid.UUID]models.NoteMetadata
	Tags  map[string][]uuid.UUID // identities sorted
}

// Snapshot copies the index state.
func (ix *Index) Snapshot() Snapshot {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	s := Snapshot{
		Notes: make(map[uuid.UUID]models.NoteMetadata, len(ix.notes)),
		Tags:  make(map[string][]uuid.UUID, len(ix.tags)),
	}
	for id, m := range ix.notes {
		s.Notes[id] = m.Clone()
	}
	for t, set := range ix.tags {
		ids := make([]uuid.UUID, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
		s.Tags[t] = ids
	}
	return s
}

// replace swaps in freshly built mappings.
func (ix *Index) replace(notes map[uuid.UUID]models.NoteMetadata, tags map[string]map[uuid.UUID]struct{}) {
	ix.mu.Lock()
	ix.notes = notes
	ix.tags = tags
	ix.mu.Unlock()
}
