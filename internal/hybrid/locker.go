package hybrid

import (
	"sync"

	"github.com/google/uuid"
)

// Locker hands out one mutex per note identity. Entries are dropped once
// no goroutine holds or waits on them.
type Locker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*noteLock
}

type noteLock struct {
	mu   sync.Mutex
	refs int
}

// NewLocker returns an empty Locker.
func NewLocker() *Locker {
	return &Locker{locks: make(map[uuid.UUID]*noteLock)}
}

// Lock blocks until the caller is the only writer for id and returns the
// matching unlock function.
func (l *Locker) Lock(id uuid.UUID) func() {
	l.mu.Lock()
	nl, ok := l.locks[id]
	if !ok {
		nl = &noteLock{}
		l.locks[id] = nl
	}
	nl.refs++
	l.mu.Unlock()

	nl.mu.Lock()
	return func() {
		nl.mu.Unlock()
		l.mu.Lock()
		nl.refs--
		if nl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

func (l *Locker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
