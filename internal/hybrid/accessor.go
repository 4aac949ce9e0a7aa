// Package hybrid is the single per-note entry point for note content. It
// hides whether a note's body is stored inline in its record or in an
// external content file, migrates notes from inline to external, and keeps
// the tag index in step with every content change.
package hybrid

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/checksum"
	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/parser"
	"github.com/starford/quire/internal/storage"
)

// Event kinds passed to Notifier.
const (
	EventUpdated  = "updated"
	EventMigrated = "migrated"
)

// RecordStore is the slice of the persisted record store the accessor
// uses: the current record, the inline field and the representation flag.
type RecordStore interface {
	GetNote(ctx context.Context, id uuid.UUID) (*models.Note, error)
	SetInline(ctx context.Context, id uuid.UUID, text string, at time.Time) error
	TouchExternal(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkExternal(ctx context.Context, id uuid.UUID, at time.Time) error
}

// Indexer receives freshly extracted metadata.
type Indexer interface {
	Update(meta models.NoteMetadata)
}

// Notifier is told about every successful content change.
type Notifier interface {
	NoteChanged(kind string, id uuid.UUID)
}

// Accessor reads and writes note content across both representations.
// Mutations of one note are serialised; different notes proceed in parallel.
type Accessor struct {
	records    RecordStore
	files      storage.Provider
	index      Indexer
	notifier   Notifier
	locks      *Locker
	logger     *slog.Logger
	now        func() time.Time
	excerptLen int
}

// Option configures an Accessor.
type Option func(*Accessor)

// WithNotifier sets the change notifier.
func WithNotifier(n Notifier) Option {
	return func(a *Accessor) {
		a.notifier = n
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(a *Accessor) {
		a.now = now
	}
}

// WithExcerptLength sets the excerpt budget in runes.
func WithExcerptLength(n int) Option {
	return func(a *Accessor) {
		a.excerptLen = n
	}
}

// New creates an Accessor.
func New(records RecordStore, files storage.Provider, index Indexer, logger *slog.Logger, opts ...Option) *Accessor {
	a := &Accessor{
		records:    records,
		files:      files,
		index:      index,
		locks:      NewLocker(),
		logger:     logger,
		now:        time.Now,
		excerptLen: parser.DefaultExcerptLength,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Get returns the note's content. A missing or unreadable content file
// degrades to "" and is reported through the logger, never to the caller.
func (a *Accessor) Get(ctx context.Context, note *models.Note) string {
	blob := note.Blob(a.files.Path(note.ID))
	if blob.Kind == models.Inline {
		return blob.Text
	}
	text, err := a.files.Read(note.ID)
	if err == nil {
		return text
	}
	if errors.Is(err, apperr.ErrNotFound) {
		a.logger.WarnContext(ctx, "hybrid: content file missing",
			slog.String("id", note.ID.String()),
			slog.String("path", blob.Path),
			slog.String("error", apperr.ErrInconsistentState.Error()))
	} else {
		a.logger.ErrorContext(ctx, "hybrid: content read failed",
			slog.String("id", note.ID.String()),
			slog.String("error", err.Error()))
	}
	return ""
}

// Set stores text as the note's content in its current representation and
// re-indexes the note. External notes are written through the file store
// and any inline copy is cleared. note is replaced by the persisted state.
func (a *Accessor) Set(ctx context.Context, note *models.Note, text string) error {
	unlock := a.locks.Lock(note.ID)
	defer unlock()
	if err := a.load(ctx, note); err != nil {
		return fmt.Errorf("hybrid: set %s: %w", note.ID, err)
	}
	return a.set(ctx, note, text)
}

// SetIfMatch is Set guarded by the checksum of the stored content. An
// empty expected checksum matches anything.
func (a *Accessor) SetIfMatch(ctx context.Context, note *models.Note, text, expected string) error {
	unlock := a.locks.Lock(note.ID)
	defer unlock()
	if err := a.load(ctx, note); err != nil {
		return fmt.Errorf("hybrid: set %s: %w", note.ID, err)
	}
	if expected != "" && !checksum.Matches(a.Get(ctx, note), expected) {
		return fmt.Errorf("hybrid: set %s: checksum mismatch: %w", note.ID, apperr.ErrConflict)
	}
	return a.set(ctx, note, text)
}

func (a *Accessor) set(ctx context.Context, note *models.Note, text string) error {
	now := a.now()
	if note.IsExternal() {
		if err := a.files.Write(note.ID, text); err != nil {
			return fmt.Errorf("hybrid: set %s: %w", note.ID, err)
		}
		note.Inline = ""
		note.UpdatedAt = now
		// The file is authoritative from here on, so the index follows it
		// even if the record update below fails.
		a.reindex(note, text)
		if err := a.records.TouchExternal(ctx, note.ID, now); err != nil {
			return fmt.Errorf("hybrid: set %s: %w", note.ID, err)
		}
	} else {
		if err := a.records.SetInline(ctx, note.ID, text, now); err != nil {
			return fmt.Errorf("hybrid: set %s: %w", note.ID, err)
		}
		note.Inline = text
		note.UpdatedAt = now
		a.reindex(note, text)
	}

	a.notify(EventUpdated, note.ID)
	return nil
}

// InitializeFileStorage migrates an inline note to external storage. It is
// a no-op for external notes. The content file is made durable before the
// representation flag flips, so a crash in between leaves the inline copy
// authoritative.
func (a *Accessor) InitializeFileStorage(ctx context.Context, note *models.Note) error {
	unlock := a.locks.Lock(note.ID)
	defer unlock()

	if err := a.load(ctx, note); err != nil {
		return fmt.Errorf("hybrid: migrate %s: %w", note.ID, err)
	}
	if note.IsExternal() {
		return nil
	}

	text := note.Inline
	if err := a.files.Write(note.ID, text); err != nil {
		return fmt.Errorf("hybrid: migrate %s: %w", note.ID, err)
	}
	now := a.now()
	if err := a.records.MarkExternal(ctx, note.ID, now); err != nil {
		if errors.Is(err, apperr.ErrInconsistentState) {
			// Already external.
			return a.load(ctx, note)
		}
		return fmt.Errorf("hybrid: migrate %s: %w", note.ID, err)
	}
	note.Representation = models.External
	note.Inline = ""
	note.UpdatedAt = now

	a.reindex(note, text)
	a.notify(EventMigrated, note.ID)
	a.logger.InfoContext(ctx, "hybrid: migrated to file storage", slog.String("id", note.ID.String()))
	return nil
}

// Reconcile repairs a note whose inline and external copies disagree after
// a crash. The representation flag decides which copy is authoritative:
//   - external with a leftover inline copy: the file wins and inline is
//     cleared; if the file is missing the inline copy is written to it.
//   - inline with a content file present: inline wins and the orphan file
//     is removed.
//
// It reports whether anything was repaired.
func (a *Accessor) Reconcile(ctx context.Context, note *models.Note) (bool, error) {
	unlock := a.locks.Lock(note.ID)
	defer unlock()

	if err := a.load(ctx, note); err != nil {
		return false, fmt.Errorf("hybrid: reconcile %s: %w", note.ID, err)
	}
	exists, err := a.files.Exists(note.ID)
	if err != nil {
		return false, fmt.Errorf("hybrid: reconcile %s: %w", note.ID, err)
	}
	id := slog.String("id", note.ID.String())

	if !note.IsExternal() {
		if !exists {
			return false, nil
		}
		a.logger.WarnContext(ctx, "hybrid: removing orphan content file of inline note", id,
			slog.String("error", apperr.ErrInconsistentState.Error()))
		if err := a.files.Delete(note.ID); err != nil {
			return false, fmt.Errorf("hybrid: reconcile %s: %w", note.ID, err)
		}
		return true, nil
	}

	if note.Inline == "" {
		if !exists {
			a.logger.WarnContext(ctx, "hybrid: external note has no content file", id)
		}
		return false, nil
	}

	if exists {
		a.logger.WarnContext(ctx, "hybrid: dropping stale inline copy of external note", id,
			slog.String("error", apperr.ErrInconsistentState.Error()))
	} else {
		a.logger.WarnContext(ctx, "hybrid: restoring missing content file from inline copy", id,
			slog.String("error", apperr.ErrInconsistentState.Error()))
		if err := a.files.Write(note.ID, note.Inline); err != nil {
			return false, fmt.Errorf("hybrid: reconcile %s: %w", note.ID, err)
		}
	}
	// Keep the modification time: no new content was written.
	if err := a.records.TouchExternal(ctx, note.ID, note.UpdatedAt); err != nil {
		return false, fmt.Errorf("hybrid: reconcile %s: %w", note.ID, err)
	}
	note.Inline = ""
	return true, nil
}

// Metadata derives the note's current metadata from its authoritative
// content.
func (a *Accessor) Metadata(ctx context.Context, note *models.Note) models.NoteMetadata {
	return a.metadataFor(note, a.Get(ctx, note))
}

// Refresh re-indexes a note without changing its content, for record-only
// changes such as title or status.
func (a *Accessor) Refresh(ctx context.Context, note *models.Note) {
	a.index.Update(a.Metadata(ctx, note))
}

// load replaces note with its stored record. Callers hold the note lock, so
// decisions made on the result cannot be overtaken by another writer.
func (a *Accessor) load(ctx context.Context, note *models.Note) error {
	cur, err := a.records.GetNote(ctx, note.ID)
	if err != nil {
		return err
	}
	*note = *cur
	return nil
}

func (a *Accessor) reindex(note *models.Note, text string) {
	a.index.Update(a.metadataFor(note, text))
}

func (a *Accessor) metadataFor(note *models.Note, text string) models.NoteMetadata {
	m := parser.ExtractWithLimit(text, a.excerptLen)
	title := note.Title
	if title == "" {
		title = m.Title
	}
	var path string
	if note.IsExternal() {
		path = a.files.Path(note.ID)
	}
	return models.NoteMetadata{
		ID:         note.ID,
		Title:      title,
		Excerpt:    m.Excerpt,
		Tags:       m.Tags,
		WordCount:  m.WordCount,
		ModifiedAt: note.UpdatedAt,
		Path:       path,
		Status:     note.Status(),
		Checksum:   checksum.Of(text),
	}
}

func (a *Accessor) notify(kind string, id uuid.UUID) {
	if a.notifier != nil {
		a.notifier.NoteChanged(kind, id)
	}
}
