package sharedstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

type lockEntry struct {
	owner     string
	expiresAt time.Time
}

// Memory is the single-node shared store: TTL-stamped values plus named
// locks with automatic expiry. In multi-worker deployments the same
// interface is backed by an external store; the coordinator never assumes
// in-process ownership.
type Memory struct {
	mu      sync.Mutex
	entries map[string]entry
	locks   map[string]lockEntry
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]entry),
		locks:   make(map[string]lockEntry),
		now:     time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	if key == "" {
		return nil, false, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && !e.expiresAt.After(m.now()) {
		delete(m.entries, key)
		return nil, false, nil
	}

	// Copy so callers can never mutate a stored snapshot in place.
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return nil
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	expiresAt := time.Time{}
	if ttl > 0 {
		expiresAt = m.now().Add(ttl)
	}

	m.mu.Lock()
	m.entries[key] = entry{value: stored, expiresAt: expiresAt}
	m.mu.Unlock()
	return nil
}

// TryAcquireLock is non-blocking. It returns the owner token on success; an
// expired lock is reacquirable, which bounds the damage of a crashed holder.
func (m *Memory) TryAcquireLock(_ context.Context, name string, ttl time.Duration) (string, bool, error) {
	if name == "" || ttl <= 0 {
		return "", false, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if held, ok := m.locks[name]; ok && held.expiresAt.After(now) {
		return "", false, nil
	}

	owner := uuid.NewString()
	m.locks[name] = lockEntry{owner: owner, expiresAt: now.Add(ttl)}
	return owner, true, nil
}

// ReleaseLock is a no-op unless the caller still owns the lock; a holder
// whose lock already expired and was taken over must not release the new
// holder's lock.
func (m *Memory) ReleaseLock(_ context.Context, name, owner string) error {
	if name == "" || owner == "" {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if held, ok := m.locks[name]; ok && held.owner == owner {
		delete(m.locks, name)
	}
	return nil
}
