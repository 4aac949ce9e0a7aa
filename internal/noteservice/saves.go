package noteservice

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/starford/quire/internal/apperr"
)

type saveJob struct {
	text string
	done chan error
}

// saveQueues keeps one FIFO of pending saves per note. A drain goroutine
// exists for a note only while its queue is non-empty, so saves of one note
// are applied in submission order and different notes proceed in parallel.
// inflight counts accepted saves; it is only incremented under mu while the
// queues are open, so wait never races an Add.
type saveQueues struct {
	mu       sync.Mutex
	pending  map[uuid.UUID][]saveJob
	closed   bool
	inflight sync.WaitGroup
}

func (q *saveQueues) init() {
	q.pending = make(map[uuid.UUID][]saveJob)
}

// push appends job. accepted is false once the queues are closed; start
// reports whether the caller must start a drainer.
func (q *saveQueues) push(id uuid.UUID, job saveJob) (accepted, start bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false, false
	}
	q.inflight.Add(1)
	_, running := q.pending[id]
	q.pending[id] = append(q.pending[id], job)
	return true, !running
}

// close refuses further saves and returns a channel closed once every
// accepted save has finished.
func (q *saveQueues) close() <-chan struct{} {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.inflight.Wait()
		close(done)
	}()
	return done
}

// next pops the oldest job for id. When the queue is empty the entry is
// removed and ok is false.
func (q *saveQueues) next(id uuid.UUID) (saveJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	jobs := q.pending[id]
	if len(jobs) == 0 {
		delete(q.pending, id)
		return saveJob{}, false
	}
	job := jobs[0]
	q.pending[id] = jobs[1:]
	return job, true
}

// SaveAsync writes text as the note's content off the caller's goroutine.
// The returned channel yields the outcome once and is then closed. Saves of
// the same note are applied in the order they were submitted.
func (s *Service) SaveAsync(id uuid.UUID, text string) <-chan error {
	done := make(chan error, 1)
	accepted, start := s.queues.push(id, saveJob{text: text, done: done})
	if !accepted {
		done <- fmt.Errorf("noteservice: save %s: service closed: %w", id, apperr.ErrInvalidArgument)
		close(done)
		return done
	}
	if start {
		go s.drain(id)
	}
	return done
}

func (s *Service) drain(id uuid.UUID) {
	ctx := context.Background()
	for {
		job, ok := s.queues.next(id)
		if !ok {
			return
		}
		err := s.SetContent(ctx, id, job.text)
		if err != nil {
			s.logger.WarnContext(ctx, "noteservice: async save failed",
				slog.String("id", id.String()), slog.String("error", err.Error()))
		}
		job.done <- err
		close(job.done)
		s.queues.inflight.Done()
	}
}
