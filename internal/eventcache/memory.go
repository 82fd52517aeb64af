package eventcache

import (
	"context"
	"sync"
)

// MemoryStore keeps entries for the life of the process only.
type MemoryStore struct {
	mu      sync.Mutex
	next    int64
	entries []Entry
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{next: 1}
}

func (m *MemoryStore) Append(_ context.Context, e Entry) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.Seq = m.next
	m.next++
	m.entries = append(m.entries, e)
	return e, nil
}

func (m *MemoryStore) List(context.Context) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...), nil
}

func (m *MemoryStore) Delete(_ context.Context, seqs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = without(m.entries, seqs)
	return nil
}

func (m *MemoryStore) Trim(_ context.Context, limit int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var evicted int
	m.entries, evicted = trimmed(m.entries, limit)
	return evicted, nil
}

func (m *MemoryStore) Close() error { return nil }

func without(entries []Entry, seqs []int64) []Entry {
	if len(seqs) == 0 {
		return entries
	}
	drop := make(map[int64]bool, len(seqs))
	for _, s := range seqs {
		drop[s] = true
	}
	kept := entries[:0]
	for _, e := range entries {
		if !drop[e.Seq] {
			kept = append(kept, e)
		}
	}
	return kept
}

func trimmed(entries []Entry, limit int) ([]Entry, int) {
	if limit < 0 {
		limit = 0
	}
	if len(entries) <= limit {
		return entries, 0
	}
	evicted := len(entries) - limit
	return append([]Entry(nil), entries[evicted:]...), evicted
}
