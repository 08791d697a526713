package store

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"sync"
)

// Memory is an in-process KV used by tests and dry runs
type Memory struct {
	mu        sync.Mutex
	data      map[string][]byte
	sets      int
	listeners listeners
}

var _ KV = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]json.RawMessage, len(keys))
	for _, k := range keys {
		if v, ok := m.data[k]; ok {
			out[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out, nil
}

func (m *Memory) Set(ctx context.Context, entries map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	encoded, err := encode(entries)
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(encoded))
	for k := range encoded {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	m.mu.Lock()
	m.sets++
	var changes []Change
	for _, k := range keys {
		old, had := m.data[k]
		if had && bytes.Equal(old, encoded[k]) {
			continue
		}
		m.data[k] = encoded[k]
		c := Change{Key: k, New: json.RawMessage(encoded[k])}
		if had {
			c.Old = json.RawMessage(old)
		}
		changes = append(changes, c)
	}
	m.mu.Unlock()

	m.listeners.notify(changes)
	return nil
}

func (m *Memory) OnChange(fn func(Change)) func() {
	return m.listeners.add(fn)
}

// Sets returns how many Set calls have been made
func (m *Memory) Sets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sets
}
