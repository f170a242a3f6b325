package cache

import (
	"context"
	"sort"
	"sync"
)

// MemoryKV keeps everything in process memory. It is used when no durable
// backend is configured and in tests.
type MemoryKV struct {
	mu     sync.RWMutex
	values map[string][]byte
	keys   []string // sorted
}

// NewMemoryKV creates an empty in-memory store.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{values: make(map[string][]byte)}
}

func (m *MemoryKV) Commit(ctx context.Context, entries ...Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range entries {
		if _, exists := m.values[e.Key]; !exists {
			i := sort.SearchStrings(m.keys, e.Key)
			m.keys = append(m.keys, "")
			copy(m.keys[i+1:], m.keys[i:])
			m.keys[i] = e.Key
		}
		m.values[e.Key] = append([]byte(nil), e.Value...)
	}
	return nil
}

func (m *MemoryKV) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryKV) List(ctx context.Context, sel Selector, opts ListOptions) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	lo := sort.SearchStrings(m.keys, sel.Prefix)
	hi := len(m.keys)
	if upper := sel.upperBound(); upper != "" {
		hi = sort.SearchStrings(m.keys, upper)
	}
	if hi < lo {
		hi = lo
	}

	out := make([]Entry, 0, hi-lo)
	add := func(key string) bool {
		out = append(out, Entry{Key: key, Value: append([]byte(nil), m.values[key]...)})
		return opts.Limit <= 0 || len(out) < opts.Limit
	}

	if opts.Reverse {
		for i := hi - 1; i >= lo; i-- {
			if !add(m.keys[i]) {
				break
			}
		}
	} else {
		for i := lo; i < hi; i++ {
			if !add(m.keys[i]) {
				break
			}
		}
	}
	return out, nil
}

func (m *MemoryKV) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range keys {
		if _, ok := m.values[key]; !ok {
			continue
		}
		delete(m.values, key)
		i := sort.SearchStrings(m.keys, key)
		m.keys = append(m.keys[:i], m.keys[i+1:]...)
	}
	return nil
}

func (m *MemoryKV) Ping(ctx context.Context) error { return nil }

func (m *MemoryKV) Close() error { return nil }
