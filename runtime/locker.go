package runtime

import "sync"

// KeyedLocker hands out one mutex per key. Entries are reference counted and
// dropped when nobody holds or waits for them, so idle conversations cost nothing.
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{locks: make(map[string]*keyedLock)}
}

// Lock blocks until key is free and returns the function releasing it.
func (l *KeyedLocker) Lock(key string) (unlock func()) {
	l.mu.Lock()
	lock, ok := l.locks[key]
	if !ok {
		lock = &keyedLock{}
		l.locks[key] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		l.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}

// Len returns the number of keys currently held or awaited.
func (l *KeyedLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
