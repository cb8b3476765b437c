package attendance

import (
	"sync"
	"time"
)

type summaryKey struct {
	studentID string
	date      string
}

func keyOf(studentID string, date time.Time) summaryKey {
	return summaryKey{studentID: studentID, date: FormatDate(date)}
}

// keyLocks serializes summary computations per (student, day).
// Entries are reference counted and dropped once no one holds or waits on them.
type keyLocks struct {
	mu    sync.Mutex
	locks map[summaryKey]*keyLock
}

type keyLock struct {
	sync.Mutex
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[summaryKey]*keyLock)}
}

// lock blocks until the key is free and returns its unlock func.
func (kl *keyLocks) lock(key summaryKey) func() {
	kl.mu.Lock()
	l, ok := kl.locks[key]
	if !ok {
		l = &keyLock{}
		kl.locks[key] = l
	}
	l.refs++
	kl.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		kl.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(kl.locks, key)
		}
		kl.mu.Unlock()
	}
}

func (kl *keyLocks) len() int {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	return len(kl.locks)
}
