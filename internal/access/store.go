package access

import (
	"sort"
	"sync"

	"codeberg.org/mutker/battmon/internal/sysfs"
)

// Store holds Stats per path. Implementations must serialize updates to a
// single path; no ordering is required across paths.
type Store interface {
	Apply(attempt sysfs.ReadAttempt) (Stats, []Event)
	Get(path string) (Stats, bool)
	Snapshot() []Stats
	Reset()
}

type entry struct {
	mu    sync.Mutex
	stats Stats
}

// MemoryStore is a process-lifetime Store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*entry)}
}

func (m *MemoryStore) lookup(path string) *entry {
	m.mu.RLock()
	e, ok := m.entries[path]
	m.mu.RUnlock()
	if ok {
		return e
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok = m.entries[path]; !ok {
		e = &entry{stats: Stats{Path: path}}
		m.entries[path] = e
	}

	return e
}

func (m *MemoryStore) Apply(attempt sysfs.ReadAttempt) (Stats, []Event) {
	e := m.lookup(attempt.Path)

	e.mu.Lock()
	defer e.mu.Unlock()

	next, events := Transition(e.stats, attempt)
	e.stats = next

	return next, events
}

func (m *MemoryStore) Get(path string) (Stats, bool) {
	m.mu.RLock()
	e, ok := m.entries[path]
	m.mu.RUnlock()
	if !ok {
		return Stats{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return e.stats, true
}

// Snapshot returns every path's stats sorted by path.
func (m *MemoryStore) Snapshot() []Stats {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	out := make([]Stats, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.stats)
		e.mu.Unlock()
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })

	return out
}

func (m *MemoryStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[string]*entry)
}
