package service

import (
	"context"
	"fmt"
	"sync"

	"washdesk/internal/domain"
)

// KeyedLocks serializes mutations per entity id. Entries are reference
// counted and removed once nobody holds or waits on them.
type KeyedLocks struct {
	mu   sync.Mutex
	keys map[int64]*keyLock
}

type keyLock struct {
	sem  chan struct{}
	refs int
}

func NewKeyedLocks() *KeyedLocks {
	return &KeyedLocks{keys: make(map[int64]*keyLock)}
}

func (l *KeyedLocks) acquire(id int64) *keyLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	k, ok := l.keys[id]
	if !ok {
		k = &keyLock{sem: make(chan struct{}, 1)}
		l.keys[id] = k
	}
	k.refs++
	return k
}

func (l *KeyedLocks) release(id int64, k *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	k.refs--
	if k.refs == 0 {
		delete(l.keys, id)
	}
}

// TryLock takes the lock for id without waiting.
func (l *KeyedLocks) TryLock(id int64) (func(), error) {
	k := l.acquire(id)
	select {
	case k.sem <- struct{}{}:
		return l.unlocker(id, k), nil
	default:
		l.release(id, k)
		return nil, fmt.Errorf("%w: order %d", domain.ErrReconciliationInProgress, id)
	}
}

// Lock waits for the lock until ctx is done.
func (l *KeyedLocks) Lock(ctx context.Context, id int64) (func(), error) {
	k := l.acquire(id)
	select {
	case k.sem <- struct{}{}:
		return l.unlocker(id, k), nil
	case <-ctx.Done():
		l.release(id, k)
		return nil, fmt.Errorf("%w: order %d: %v", domain.ErrReconciliationInProgress, id, ctx.Err())
	}
}

func (l *KeyedLocks) unlocker(id int64, k *keyLock) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			<-k.sem
			l.release(id, k)
		})
	}
}

// Held reports how many ids currently have a holder or waiter.
func (l *KeyedLocks) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys)
}
