package index

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/starford/quire/internal/models"
)

// rebuildConcurrency bounds parallel content reads during Rebuild.
const rebuildConcurrency = 8

// MetadataSource derives a note's current metadata from its authoritative
// content. The hybrid accessor implements it.
type MetadataSource interface {
	Metadata(ctx context.Context, note *models.Note) models.NoteMetadata
}

// Rebuild clears the index and re-derives it from notes. Content is read
// concurrently; the new mappings replace the old ones in one step, so
// readers never see a half-built index. The result does not depend on the
// order of notes.
func (ix *Index) Rebuild(ctx context.Context, notes []models.Note, src MetadataSource) error {
	metas := make([]models.NoteMetadata, len(notes))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(rebuildConcurrency)
	for i := range notes {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			metas[i] = src.Metadata(gCtx, &notes[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("index: rebuild: %w", err)
	}

	byID := make(map[uuid.UUID]models.NoteMetadata, len(metas))
	tags := make(map[string]map[uuid.UUID]struct{})
	for _, m := range metas {
		if old, dup := byID[m.ID]; dup && !supersedes(m, old) {
			continue
		}
		byID[m.ID] = m.Clone()
	}
	for id, m := range byID {
		for _, t := range m.Tags {
			linkTag(tags, t, id)
		}
	}
	ix.replace(byID, tags)
	return nil
}

// supersedes orders two copies of the same note: the newer one wins, and
// ties fall back to checksum, title and status so the choice never depends
// on input order.
func supersedes(a, b models.NoteMetadata) bool {
	if !a.ModifiedAt.Equal(b.ModifiedAt) {
		return a.ModifiedAt.After(b.ModifiedAt)
	}
	if a.Checksum != b.Checksum {
		return a.Checksum > b.Checksum
	}
	if a.Title != b.Title {
		return a.Title > b.Title
	}
	return a.Status > b.Status
}
