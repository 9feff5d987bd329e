package cache

import "sync"

// KeyMutex serializes operations on the same string key. It gates the
// create-if-absent session check so a duplicate transport delivery cannot
// create two sessions for the same respondent; callers for different keys
// never block each other.
type KeyMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// NewKeyMutex creates a new keyed mutex
func NewKeyMutex() *KeyMutex {
	return &KeyMutex{
		locks: make(map[string]*keyLock),
	}
}

// Lock acquires the lock for the key, blocking until the current holder
// releases it.
func (m *KeyMutex) Lock(key string) {
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &keyLock{}
		m.locks[key] = l
	}
	l.refs++
	m.mu.Unlock()

	l.mu.Lock()
}

// Unlock releases the lock for the key. The entry is removed once no waiter
// remains, so the map does not grow with respondent count.
func (m *KeyMutex) Unlock(key string) {
	m.mu.Lock()
	l, ok := m.locks[key]
	if ok {
		l.refs--
		if l.refs == 0 {
			delete(m.locks, key)
		}
	}
	m.mu.Unlock()

	if ok {
		l.mu.Unlock()
	}
}
