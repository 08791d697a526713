package store

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ibeckermayer/ytfilter/internal/config"
)

// Keys of the persisted blobs
const (
	KeyFilterConfig = config.FilterKey
	KeyViewCounts   = "videoViewCounts"
	KeyTopics       = "watchedTopics"
)

// KV is an asynchronous key/value store of JSON documents. There are no
// transactions across keys.
type KV interface {
	// Get returns the stored values for keys. Missing keys are absent from the map.
	Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error)
	// Set JSON-encodes and stores every entry, then notifies listeners of
	// the keys whose stored bytes changed.
	Set(ctx context.Context, entries map[string]any) error
	// OnChange registers fn for change notifications. The returned func unregisters it.
	OnChange(fn func(Change)) func()
}

// Change describes one key whose stored value changed. Old is nil for a new key.
type Change struct {
	Key string
	Old json.RawMessage
	New json.RawMessage
}

// listeners fans change notifications out to registered callbacks
type listeners struct {
	mu   sync.Mutex
	next int
	fns  map[int]func(Change)
}

func (l *listeners) add(fn func(Change)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[int]func(Change))
	}
	id := l.next
	l.next++
	l.fns[id] = fn
	return func() {
		l.mu.Lock()
		delete(l.fns, id)
		l.mu.Unlock()
	}
}

func (l *listeners) notify(changes []Change) {
	if len(changes) == 0 {
		return
	}
	l.mu.Lock()
	fns := make([]func(Change), 0, len(l.fns))
	for _, fn := range l.fns {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	for _, c := range changes {
		for _, fn := range fns {
			fn(c)
		}
	}
}

// encode marshals every entry up front so a bad value fails the whole Set
func encode(entries map[string]any) (map[string][]byte, error) {
	out := make(map[string][]byte, len(entries))
	for k, v := range entries {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		out[k] = data
	}
	return out, nil
}
