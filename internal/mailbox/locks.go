package mailbox

import (
	"sync"

	"github.com/infodancer/mailserv/internal/address"
)

// LockRegistry is the process-wide set of mailboxes with an active POP3
// session. Keys are the case-insensitive local@domain form; the check and
// insert are atomic, so at most one session per mailbox can hold the lock.
type LockRegistry struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLockRegistry creates an empty lock registry.
func NewLockRegistry() *LockRegistry {
	return &LockRegistry{held: make(map[string]struct{})}
}

// Acquire takes the lock for mb. Returns false if an equivalent lock is
// already held.
func (l *LockRegistry) Acquire(mb address.Mailbox) bool {
	key := mb.Key()

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.held[key]; exists {
		return false
	}
	l.held[key] = struct{}{}
	return true
}

// Release drops the lock for mb. Returns false if it was not held.
func (l *LockRegistry) Release(mb address.Mailbox) bool {
	key := mb.Key()

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.held[key]; !exists {
		return false
	}
	delete(l.held, key)
	return true
}

// Held reports whether a lock for mb is currently held.
func (l *LockRegistry) Held(mb address.Mailbox) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, exists := l.held[mb.Key()]
	return exists
}
