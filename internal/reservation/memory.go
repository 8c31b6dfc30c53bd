package reservation

import (
	"context"
	"sync"
	"time"
)

type key struct {
	sessionID string
	productID string
}

// Memory is the in-process Store used by tests and single-node runs.
type Memory struct {
	mu      sync.Mutex
	entries map[key]*Entry
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[key]*Entry)}
}

func (m *Memory) Upsert(_ context.Context, sessionID, productID string, qty int, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	k := key{sessionID, productID}
	if e, ok := m.entries[k]; ok {
		e.Qty += qty
		e.ExpiresAt = now.Add(ttl)
		return nil
	}
	m.entries[k] = &Entry{
		SessionID: sessionID,
		ProductID: productID,
		Qty:       qty,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	return nil
}

func (m *Memory) Decrement(_ context.Context, sessionID, productID string, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key{sessionID, productID}
	e, ok := m.entries[k]
	if !ok {
		return nil // already consumed or expired
	}
	e.Qty -= qty
	if e.Qty <= 0 {
		delete(m.entries, k)
	}
	return nil
}

func (m *Memory) Touch(_ context.Context, sessionID, productID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[key{sessionID, productID}]; ok {
		e.ExpiresAt = time.Now().Add(ttl)
	}
	return nil
}

func (m *Memory) ListExpired(_ context.Context, now time.Time) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Entry
	for _, e := range m.entries {
		if e.Expired(now) {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *Memory) BySession(_ context.Context, sessionID string) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Entry
	for _, e := range m.entries {
		if e.SessionID == sessionID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *Memory) DeleteSession(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for k := range m.entries {
		if k.sessionID == sessionID {
			delete(m.entries, k)
		}
	}
	return nil
}

// Get returns a copy of the live entry, for tests.
func (m *Memory) Get(sessionID, productID string) (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[key{sessionID, productID}]; ok {
		return *e, true
	}
	return Entry{}, false
}
