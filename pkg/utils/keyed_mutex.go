package utils

import (
	"context"
	"sync"
	"time"
)

// Lease is a held lock. Holds that can lapse report a Deadline; Refresh fails once the hold is gone.
type Lease interface {
	// Deadline is when the hold must be treated as lost. Zero means it never lapses.
	Deadline() time.Time
	// Refresh confirms the hold is still ours and pushes Deadline out.
	Refresh(ctx context.Context) error
	Release()
}

// KeyedMutex serializes work per key inside one process. Entries are dropped once no
// goroutine holds or waits on them.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

// NewKeyedMutex creates an empty keyed mutex
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyLock)}
}

// Lock blocks until key is free or ctx is done. The returned func releases the key.
func (k *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	lease, err := k.Acquire(ctx, key)
	if err != nil {
		return nil, err
	}
	return lease.Release, nil
}

// localLease never lapses while the process lives.
type localLease struct{ release func() }

func (l localLease) Deadline() time.Time           { return time.Time{} }
func (l localLease) Refresh(context.Context) error { return nil }
func (l localLease) Release()                      { l.release() }

// Acquire is Lock returning a Lease
func (k *KeyedMutex) Acquire(ctx context.Context, key string) (Lease, error) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		var once sync.Once
		return localLease{release: func() {
			once.Do(func() {
				<-l.ch
				k.release(key, l)
			})
		}}, nil
	case <-ctx.Done():
		k.release(key, l)
		return nil, ctx.Err()
	}
}

func (k *KeyedMutex) release(key string, l *keyLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}

// Len returns the number of keys currently held or awaited
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
