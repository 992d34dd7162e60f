package services

import "sync"

// KeyLock provides one mutex per string key. Entries are reference-counted
// and removed once the last holder releases, so the map never grows with
// dead keys.
type KeyLock struct {
	mu   sync.Mutex
	keys map[string]*keyLockEntry
}

type keyLockEntry struct {
	mu   sync.Mutex
	refs int
}

func NewKeyLock() *KeyLock {
	return &KeyLock{keys: make(map[string]*keyLockEntry)}
}

// Lock acquires the mutex for key and returns the release function.
func (l *KeyLock) Lock(key string) func() {
	l.mu.Lock()
	e, ok := l.keys[key]
	if !ok {
		e = &keyLockEntry{}
		l.keys[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.keys, key)
		}
		l.mu.Unlock()
	}
}
