package state

import "context"

// Lock is the per-appliance serialization lock shared by merge cycles and
// command confirmation. Unlike sync.Mutex it supports non-blocking and
// context-aware acquisition.
type Lock struct {
	ch chan struct{}
}

// NewLock creates an unlocked Lock.
func NewLock() *Lock {
	return &Lock{ch: make(chan struct{}, 1)}
}

// TryLock acquires the lock if it is free and reports whether it did.
func (l *Lock) TryLock() bool {
	select {
	case l.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

// Lock blocks until the lock is acquired or ctx is done.
func (l *Lock) Lock(ctx context.Context) error {
	select {
	case l.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unlock releases the lock. Unlocking an unlocked Lock panics.
func (l *Lock) Unlock() {
	select {
	case <-l.ch:
	default:
		panic("state: unlock of unlocked Lock")
	}
}
