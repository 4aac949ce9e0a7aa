package index

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/checksum"
	"github.com/starford/quire/internal/storage"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

// watcherEnv wires an index to a content store with a reindex function that
// derives metadata straight from the file, the way an external note would.
func watcherEnv(t *testing.T) (*storage.FS, *Index, ReindexFunc, *sync.Map) {
	t.Helper()
	store, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ix := New()
	known := &sync.Map{}
	reindex := func(_ context.Context, id uuid.UUID) error {
		if _, ok := known.Load(id); !ok {
			return apperr.ErrNotFound
		}
		text, err := store.Read(id)
		if err != nil {
			text = ""
		}
		m := metaFor(id, text)
		m.Path = store.Path(id)
		m.Checksum = checksum.Of(text)
		ix.Update(m)
		return nil
	}
	return store, ix, reindex, known
}

func startWatch(t *testing.T, ix *Index, store *storage.FS, reindex ReindexFunc, cb EventCallback) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = Watch(ctx, ix, store, 20*time.Millisecond, quietLogger(), reindex, cb)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	time.Sleep(100 * time.Millisecond)
}

func TestWatcher_ExternalEditReindexed(t *testing.T) {
	store, ix, reindex, known := watcherEnv(t)
	id := uuid.New()
	known.Store(id, true)
	_ = store.Write(id, "before #old")
	_ = reindex(context.Background(), id)

	var mu sync.Mutex
	var events []string
	startWatch(t, ix, store, reindex, func(kind string, got uuid.UUID) {
		mu.Lock()
		events = append(events, kind+":"+got.String())
		mu.Unlock()
	})

	// An editor outside the accessor rewrites the file.
	if err := os.WriteFile(store.Path(id), []byte("after #new"), 0o644); err != nil {
		t.Fatal(err)
	}

	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return containsID(ix.NotesByTag("new"), id) && !containsID(ix.NotesByTag("old"), id)
	}, "external edit not reflected in index")

	eventually(t, 2*time.Second, 20*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, e := range events {
			if e == "updated:"+id.String() {
				return true
			}
		}
		return false
	}, "expected updated callback")
}

func TestWatcher_OwnWriteSkipped(t *testing.T) {
	store, ix, _, known := watcherEnv(t)
	id := uuid.New()
	known.Store(id, true)

	var calls sync.Map
	reindex := func(_ context.Context, got uuid.UUID) error {
		calls.Store(got, true)
		return nil
	}
	startWatch(t, ix, store, reindex, nil)

	// Index first, then write the same content: checksum matches.
	m := metaFor(id, "same")
	m.Path = store.Path(id)
	m.Checksum = checksum.Of("same")
	ix.Update(m)
	_ = store.Write(id, "same")

	time.Sleep(300 * time.Millisecond)
	if _, ok := calls.Load(id); ok {
		t.Error("write matching the indexed checksum should not trigger reindex")
	}
}

func TestWatcher_RemovedFileReindexed(t *testing.T) {
	store, ix, reindex, known := watcherEnv(t)
	id := uuid.New()
	known.Store(id, true)
	_ = store.Write(id, "content #gone")
	_ = reindex(context.Background(), id)

	startWatch(t, ix, store, reindex, nil)
	_ = os.Remove(store.Path(id))

	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		m, ok := ix.Get(id)
		return ok && len(m.Tags) == 0 && m.WordCount == 0
	}, "removed content file should degrade the note to empty metadata")
}

func TestWatcher_UnknownFileIgnored(t *testing.T) {
	store, ix, reindex, _ := watcherEnv(t)
	startWatch(t, ix, store, reindex, nil)

	stray := uuid.New()
	_ = store.Write(stray, "#orphan")
	time.Sleep(300 * time.Millisecond)
	if ix.Len() != 0 {
		t.Error("file without a record must not enter the index")
	}
}
