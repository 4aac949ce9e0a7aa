// Package noteservice is the application context: it owns the record store,
// the content store, the tag index and the hybrid accessor, and exposes the
// note operations the HTTP and MCP adapters call.
package noteservice

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/hybrid"
	"github.com/starford/quire/internal/index"
	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/parser"
	"github.com/starford/quire/internal/records"
	"github.com/starford/quire/internal/storage"
)

// Event kinds emitted by the service in addition to the accessor's.
const (
	EventCreated = "created"
	EventDeleted = "deleted"
)

// NoteDetail is the full view of a note returned to adapters.
type NoteDetail struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Excerpt   string    `json:"excerpt"`
	Tags      []string  `json:"tags"`
	WordCount int       `json:"word_count"`
	Path      string    `json:"path,omitempty"`
	Checksum  string    `json:"checksum"`
	GroupID   uuid.UUID `json:"group_id"`
	Favorite  bool      `json:"favorite"`
	Trashed   bool      `json:"trashed"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Children is the content of one group.
type Children struct {
	Groups []models.Group        `json:"groups"`
	Notes  []models.NoteMetadata `json:"notes"`
}

// ContentStore is the file store as seen by the service: the provider
// operations plus the startup sweep of abandoned temp files.
type ContentStore interface {
	storage.Provider
	RemoveStaleTemps() (int, error)
}

// Service coordinates records, content files and the index.
type Service struct {
	records    *records.DB
	store      ContentStore
	index      *index.Index
	acc        *hybrid.Accessor
	logger     *slog.Logger
	notifier   hybrid.Notifier
	now        func() time.Time
	defaultRep models.Representation
	excerptLen int

	queues saveQueues
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier sets the receiver of note change events.
func WithNotifier(n hybrid.Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

// WithDefaultRepresentation sets the representation of newly created notes.
func WithDefaultRepresentation(r models.Representation) Option {
	return func(s *Service) {
		s.defaultRep = r
	}
}

// WithExcerptLength sets the excerpt budget in runes.
func WithExcerptLength(n int) Option {
	return func(s *Service) {
		s.excerptLen = n
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New creates a Service. Call Load before serving requests.
func New(recs *records.DB, store ContentStore, idx *index.Index, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		records:    recs,
		store:      store,
		index:      idx,
		logger:     logger,
		now:        time.Now,
		defaultRep: models.Inline,
		excerptLen: parser.DefaultExcerptLength,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.queues.init()

	accOpts := []hybrid.Option{hybrid.WithClock(s.now), hybrid.WithExcerptLength(s.excerptLen)}
	if s.notifier != nil {
		accOpts = append(accOpts, hybrid.WithNotifier(s.notifier))
	}
	s.acc = hybrid.New(recs, store, idx, logger, accOpts...)
	return s
}

// Load repairs notes left inconsistent by a crash, removes content files
// that no record references, and rebuilds the index.
func (s *Service) Load(ctx context.Context) error {
	notes, err := s.records.AllNotes(ctx)
	if err != nil {
		return fmt.Errorf("noteservice: load: %w", err)
	}

	repaired := 0
	known := make(map[uuid.UUID]struct{}, len(notes))
	for i := range notes {
		known[notes[i].ID] = struct{}{}
		ok, err := s.acc.Reconcile(ctx, &notes[i])
		if err != nil {
			s.logger.WarnContext(ctx, "noteservice: reconcile failed",
				slog.String("id", notes[i].ID.String()), slog.String("error", err.Error()))
			continue
		}
		if ok {
			repaired++
		}
	}

	ids, err := s.store.List()
	if err != nil {
		return fmt.Errorf("noteservice: load: %w", err)
	}
	orphans := 0
	for _, id := range ids {
		if _, ok := known[id]; ok {
			continue
		}
		if err := s.store.Delete(id); err != nil {
			s.logger.WarnContext(ctx, "noteservice: remove orphan file failed",
				slog.String("id", id.String()), slog.String("error", err.Error()))
			continue
		}
		orphans++
	}

	temps, err := s.store.RemoveStaleTemps()
	if err != nil {
		s.logger.WarnContext(ctx, "noteservice: remove stale temp files failed", slog.String("error", err.Error()))
	}

	if err := s.index.Rebuild(ctx, notes, s.acc); err != nil {
		return fmt.Errorf("noteservice: load: %w", err)
	}

	s.logger.InfoContext(ctx, "noteservice: loaded",
		slog.Int("notes", len(notes)),
		slog.Int("repaired", repaired),
		slog.Int("orphans_removed", orphans),
		slog.Int("temps_removed", temps))
	return nil
}

// Close stops accepting async saves and waits for queued ones to finish.
func (s *Service) Close(ctx context.Context) error {
	select {
	case <-s.queues.close():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("noteservice: close: %w", ctx.Err())
	}
}

// CreateNote creates a note in group (uuid.Nil for the root) using the
// configured default representation.
func (s *Service) CreateNote(ctx context.Context, title, content string, group uuid.UUID) (*NoteDetail, error) {
	if err := s.checkGroup(ctx, group); err != nil {
		return nil, fmt.Errorf("noteservice: create note: %w", err)
	}
	now := s.now()
	note := &models.Note{
		ID:             uuid.New(),
		Title:          strings.TrimSpace(title),
		Inline:         content,
		Representation: models.Inline,
		GroupID:        group,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.records.CreateNote(ctx, note); err != nil {
		return nil, fmt.Errorf("noteservice: create note: %w", err)
	}

	if s.defaultRep == models.External {
		if err := s.acc.InitializeFileStorage(ctx, note); err != nil {
			// The record stays inline and usable; migration can be retried.
			s.logger.WarnContext(ctx, "noteservice: initial migration failed",
				slog.String("id", note.ID.String()), slog.String("error", err.Error()))
			s.acc.Refresh(ctx, note)
		}
	} else {
		s.acc.Refresh(ctx, note)
	}

	s.notify(EventCreated, note.ID)
	return s.detail(ctx, note), nil
}

// GetNote returns a note with its content.
func (s *Service) GetNote(ctx context.Context, id uuid.UUID) (*NoteDetail, error) {
	note, err := s.records.GetNote(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, note), nil
}

// ListNotes returns the metadata of the notes matching f, most recently
// updated first.
func (s *Service) ListNotes(ctx context.Context, f records.ListFilter) ([]models.NoteMetadata, error) {
	notes, err := s.records.ListNotes(ctx, f)
	if err != nil {
		return nil, err
	}
	return s.metadataOf(ctx, notes), nil
}

// SetContent replaces a note's content.
func (s *Service) SetContent(ctx context.Context, id uuid.UUID, text string) error {
	note, err := s.records.GetNote(ctx, id)
	if err != nil {
		return err
	}
	return s.acc.Set(ctx, note, text)
}

// UpdateContent replaces a note's content if its current content still has
// checksum ifMatch. An empty ifMatch skips the check.
func (s *Service) UpdateContent(ctx context.Context, id uuid.UUID, text, ifMatch string) (*NoteDetail, error) {
	note, err := s.records.GetNote(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.acc.SetIfMatch(ctx, note, text, ifMatch); err != nil {
		return nil, err
	}
	return s.detail(ctx, note), nil
}

// InitializeFileStorage migrates a note to external storage.
func (s *Service) InitializeFileStorage(ctx context.Context, id uuid.UUID) (*NoteDetail, error) {
	note, err := s.records.GetNote(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.acc.InitializeFileStorage(ctx, note); err != nil {
		return nil, err
	}
	return s.detail(ctx, note), nil
}

// SetTitle renames a note.
func (s *Service) SetTitle(ctx context.Context, id uuid.UUID, title string) error {
	return s.updateRecord(ctx, id, func() error {
		return s.records.SetTitle(ctx, id, strings.TrimSpace(title), s.now())
	})
}

// SetFavorite sets or clears the favorite flag.
func (s *Service) SetFavorite(ctx context.Context, id uuid.UUID, favorite bool) error {
	return s.updateRecord(ctx, id, func() error {
		return s.records.SetFavorite(ctx, id, favorite)
	})
}

// Trash moves a note to the trash. Its content is kept.
func (s *Service) Trash(ctx context.Context, id uuid.UUID) error {
	return s.updateRecord(ctx, id, func() error {
		return s.records.SetTrashed(ctx, id, true, s.now())
	})
}

// Restore takes a note out of the trash.
func (s *Service) Restore(ctx context.Context, id uuid.UUID) error {
	return s.updateRecord(ctx, id, func() error {
		return s.records.SetTrashed(ctx, id, false, s.now())
	})
}

// DeleteNote removes a note permanently. The record goes first so that a
// crash leaves at worst an orphan file, which Load sweeps.
func (s *Service) DeleteNote(ctx context.Context, id uuid.UUID) error {
	if err := s.records.DeleteNote(ctx, id); err != nil {
		return err
	}
	if err := s.store.Delete(id); err != nil {
		s.logger.WarnContext(ctx, "noteservice: content file not removed",
			slog.String("id", id.String()), slog.String("error", err.Error()))
	}
	s.index.Remove(id)
	s.notify(EventDeleted, id)
	return nil
}

// Tags returns every tag with its note count.
func (s *Service) Tags(_ context.Context) []index.TagCount {
	return s.index.AllTags()
}

// NotesByTag returns the metadata of the notes carrying tag.
func (s *Service) NotesByTag(_ context.Context, tag string) []models.NoteMetadata {
	return s.index.NotesByTag(tag)
}

// CreateGroup creates a group under parent (uuid.Nil for the root).
func (s *Service) CreateGroup(ctx context.Context, name string, parent uuid.UUID) (*models.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("noteservice: create group: empty name: %w", apperr.ErrInvalidArgument)
	}
	g := &models.Group{ID: uuid.New(), Name: name, ParentID: parent}
	if err := s.records.CreateGroup(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

// MoveNote places a note into group (uuid.Nil for the root).
func (s *Service) MoveNote(ctx context.Context, id, group uuid.UUID) error {
	if err := s.checkGroup(ctx, group); err != nil {
		return fmt.Errorf("noteservice: move note: %w", err)
	}
	if err := s.records.SetGroup(ctx, id, group); err != nil {
		return err
	}
	s.notify(hybrid.EventUpdated, id)
	return nil
}

// Children returns the direct subgroups and notes of group.
func (s *Service) Children(ctx context.Context, group uuid.UUID) (*Children, error) {
	if err := s.checkGroup(ctx, group); err != nil {
		return nil, err
	}
	groups, err := s.records.ChildGroups(ctx, group)
	if err != nil {
		return nil, err
	}
	notes, err := s.records.ListNotes(ctx, records.ListFilter{GroupID: &group})
	if err != nil {
		return nil, err
	}
	out := &Children{Groups: groups, Notes: s.metadataOf(ctx, notes)}
	if out.Groups == nil {
		out.Groups = []models.Group{}
	}
	return out, nil
}

// MoveGroup re-parents a group. A move under its own subtree fails with
// apperr.ErrInvalidArgument.
func (s *Service) MoveGroup(ctx context.Context, id, parent uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("noteservice: move group: root: %w", apperr.ErrInvalidArgument)
	}
	if err := s.checkGroup(ctx, parent); err != nil {
		return fmt.Errorf("noteservice: move group: %w", err)
	}
	return s.records.MoveGroup(ctx, id, parent)
}

// DeleteGroup removes a group. Its subgroups and notes move to its parent.
func (s *Service) DeleteGroup(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("noteservice: delete group: root: %w", apperr.ErrInvalidArgument)
	}
	return s.records.DeleteGroup(ctx, id)
}

// RebuildIndex discards the index and rebuilds it from every note.
func (s *Service) RebuildIndex(ctx context.Context) error {
	notes, err := s.records.AllNotes(ctx)
	if err != nil {
		return fmt.Errorf("noteservice: rebuild index: %w", err)
	}
	if err := s.index.Rebuild(ctx, notes, s.acc); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "noteservice: index rebuilt", slog.Int("notes", len(notes)))
	return nil
}

// ReindexNote re-reads one note and refreshes its index entry. It is the
// watcher's hook for content files edited outside the service.
func (s *Service) ReindexNote(ctx context.Context, id uuid.UUID) error {
	note, err := s.records.GetNote(ctx, id)
	if err != nil {
		return err
	}
	s.acc.Refresh(ctx, note)
	return nil
}

func (s *Service) updateRecord(ctx context.Context, id uuid.UUID, update func() error) error {
	if err := update(); err != nil {
		return err
	}
	note, err := s.records.GetNote(ctx, id)
	if err != nil {
		return err
	}
	s.acc.Refresh(ctx, note)
	s.notify(hybrid.EventUpdated, id)
	return nil
}

func (s *Service) checkGroup(ctx context.Context, group uuid.UUID) error {
	if group == uuid.Nil {
		return nil
	}
	_, err := s.records.GetGroup(ctx, group)
	return err
}

// metadataOf returns index entries for notes, deriving any that are missing.
func (s *Service) metadataOf(ctx context.Context, notes []models.Note) []models.NoteMetadata {
	out := make([]models.NoteMetadata, 0, len(notes))
	for i := range notes {
		m, ok := s.index.Get(notes[i].ID)
		if !ok {
			m = s.acc.Metadata(ctx, &notes[i])
		}
		out = append(out, m)
	}
	return out
}

func (s *Service) detail(ctx context.Context, note *models.Note) *NoteDetail {
	content := s.acc.Get(ctx, note)
	m, ok := s.index.Get(note.ID)
	if !ok {
		m = s.acc.Metadata(ctx, note)
	}
	tags := m.Tags
	if tags == nil {
		tags = []string{}
	}
	return &NoteDetail{
		ID:        note.ID,
		Title:     m.Title,
		Content:   content,
		Excerpt:   m.Excerpt,
		Tags:      tags,
		WordCount: m.WordCount,
		Path:      m.Path,
		Checksum:  m.Checksum,
		GroupID:   note.GroupID,
		Favorite:  note.Favorite,
		Trashed:   note.Trashed,
		CreatedAt: note.CreatedAt,
		UpdatedAt: note.UpdatedAt,
	}
}

func (s *Service) notify(kind string, id uuid.UUID) {
	if s.notifier != nil {
		s.notifier.NoteChanged(kind, id)
	}
}
