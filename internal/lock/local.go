// Package lock provides per-plan mutual exclusion for the load, apply and
// save sequence.
package lock

import (
	"context"
	"sync"

	"payplan-workers/internal/common/errors"
)

// LocalLocker serializes holders of the same key within one process.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*localLock
}

type localLock struct {
	sem  chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*localLock)}
}

// Lock blocks until key is free or ctx is done. The returned func releases
// the lock and is safe to call more than once.
func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	lk, ok := l.locks[key]
	if !ok {
		lk = &localLock{sem: make(chan struct{}, 1)}
		l.locks[key] = lk
	}
	lk.refs++
	l.mu.Unlock()

	select {
	case lk.sem <- struct{}{}:
	case <-ctx.Done():
		l.drop(key, lk)
		return nil, errors.NewConflictError("", "waiting for lock "+key+": "+ctx.Err().Error())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-lk.sem
			l.drop(key, lk)
		})
	}, nil
}

func (l *LocalLocker) drop(key string, lk *localLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, key)
	}
}
