package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

type memoryItem struct {
	data      []byte
	expiresAt time.Time
}

type indexEntry struct {
	key       string
	expiresAt time.Time
}

// Memory is the in-process TTL backend, used when no Redis URL is configured
// and throughout the tests. Values are stored as JSON so behavior matches the
// Redis backend exactly.
type Memory struct {
	mu    sync.Mutex
	items map[string]memoryItem
	index map[string][]indexEntry
	now   func() time.Time
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{
		items: make(map[string]memoryItem),
		index: make(map[string][]indexEntry),
		now:   time.Now,
	}
}

// SetClock overrides the time source, for tests.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Memory) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanup()
	m.items[key] = memoryItem{data: data, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *Memory) Get(ctx context.Context, key string, dest any) (bool, error) {
	m.mu.Lock()
	item, ok := m.items[key]
	if ok && !item.expiresAt.After(m.now()) {
		delete(m.items, key)
		ok = false
	}
	m.mu.Unlock()

	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(item.data, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

func (m *Memory) AddToTokenIndex(ctx context.Context, token string, ts time.Time, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanup()
	m.index[token] = append(m.index[token], indexEntry{key: key, expiresAt: ts.Add(ttl)})
	return nil
}

func (m *Memory) TokenIndexKeys(ctx context.Context, token string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanup()

	entries := m.index[token]
	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		keys = append(keys, entry.key)
	}
	return keys, nil
}

// cleanup drops expired items and index entries. Caller must hold the lock.
func (m *Memory) cleanup() {
	now := m.now()

	for key, item := range m.items {
		if !item.expiresAt.After(now) {
			delete(m.items, key)
		}
	}

	for token, entries := range m.index {
		live := entries[:0]
		for _, entry := range entries {
			if entry.expiresAt.After(now) {
				live = append(live, entry)
			}
		}
		if len(live) == 0 {
			delete(m.index, token)
		} else {
			m.index[token] = live
		}
	}
}
