package index

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/checksum"
)

// DefaultDebounce is how long the watcher waits for a burst of events on a
// content file to settle.
const DefaultDebounce = 200 * time.Millisecond

// ContentFiles is the view of the file store the watcher needs.
type ContentFiles interface {
	Root() string
	IdentityFromPath(p string) (uuid.UUID, bool)
	Read(id uuid.UUID) (string, error)
}

// ReindexFunc re-derives and stores the metadata for one note from its
// authoritative content.
type ReindexFunc func(ctx context.Context, id uuid.UUID) error

// EventCallback is called after a watcher-driven index change.
type EventCallback func(kind string, id uuid.UUID)

// Watch starts an fsnotify watcher on the content root and re-indexes notes
// whose content files are changed by something other than the accessor,
// such as an external editor. Files whose checksum already matches the
// index are skipped, which filters out the accessor's own writes. It runs
// until ctx is cancelled.
func Watch(ctx context.Context, ix *Index, files ContentFiles, debounce time.Duration, logger *slog.Logger, reindex ReindexFunc, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(files.Root()); err != nil {
		return err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	logger.Info("watcher: started", slog.String("root", files.Root()))

	pending := make(map[uuid.UUID]struct{})
	var flushTimer *time.Timer
	var flushCh <-chan time.Time

	schedule := func(id uuid.UUID) {
		pending[id] = struct{}{}
		if flushTimer == nil {
			flushTimer = time.NewTimer(debounce)
			flushCh = flushTimer.C
		} else {
			flushTimer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if flushTimer != nil {
				flushTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-flushCh:
			for id := range pending {
				delete(pending, id)
				processChange(ctx, ix, files, id, logger, reindex, cb)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			id, isContent := files.IdentityFromPath(ev.Name)
			if !isContent {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				schedule(id)
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// processChange compares the file on disk with the indexed checksum and
// re-indexes the note when they differ.
func processChange(ctx context.Context, ix *Index, files ContentFiles, id uuid.UUID, logger *slog.Logger, reindex ReindexFunc, cb EventCallback) {
	meta, indexed := ix.Get(id)

	text, err := files.Read(id)
	switch {
	case err == nil:
		if indexed && meta.Path != "" && checksum.Matches(text, meta.Checksum) {
			return
		}
	case errors.Is(err, apperr.ErrNotFound):
		// Only external notes depend on the file.
		if !indexed || meta.Path == "" {
			return
		}
		logger.Warn("watcher: content file removed", slog.String("id", id.String()))
	default:
		logger.Warn("watcher: read failed", slog.String("id", id.String()), slog.String("error", err.Error()))
		return
	}

	if err := reindex(ctx, id); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			logger.Debug("watcher: no record for content file", slog.String("id", id.String()))
			return
		}
		logger.Warn("watcher: reindex failed", slog.String("id", id.String()), slog.String("error", err.Error()))
		return
	}
	logger.Debug("watcher: reindexed", slog.String("id", id.String()))
	if cb != nil {
		cb("updated", id)
	}
}
