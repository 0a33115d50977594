package diagnosis

import "sync"

// ownerLocks serializes submissions per owner so the prune-then-insert
// sequence of one owner never interleaves within this process. Entries are
// dropped once nobody holds or waits for them.
type ownerLocks struct {
	mu    sync.Mutex
	locks map[string]*ownerLock
}

type ownerLock struct {
	mu   sync.Mutex
	refs int
}

func newOwnerLocks() *ownerLocks {
	return &ownerLocks{locks: make(map[string]*ownerLock)}
}

// lock blocks until owner is free and returns the matching unlock.
func (o *ownerLocks) lock(owner string) func() {
	o.mu.Lock()
	l, ok := o.locks[owner]
	if !ok {
		l = &ownerLock{}
		o.locks[owner] = l
	}
	l.refs++
	o.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		o.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(o.locks, owner)
		}
		o.mu.Unlock()
	}
}

func (o *ownerLocks) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.locks)
}
