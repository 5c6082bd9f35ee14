package store

import (
	"context"
	"strings"

	"github.com/patrickmn/go-cache"
)

const memorySentPrefix = sentMapKey + ":"

// memoryBackend keeps everything in a go-cache instance with no expiry. Nothing survives a
// restart.
type memoryBackend struct {
	c *cache.Cache
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{c: cache.New(cache.NoExpiration, 0)}
}

func (m *memoryBackend) name() string { return "memory" }

func (m *memoryBackend) loadState(context.Context) ([]byte, error) {
	v, ok := m.c.Get(stateKey)
	if !ok {
		return nil, nil
	}
	doc := v.([]byte)
	return append([]byte(nil), doc...), nil
}

func (m *memoryBackend) saveState(_ context.Context, doc []byte) error {
	m.c.Set(stateKey, append([]byte(nil), doc...), cache.NoExpiration)
	return nil
}

func (m *memoryBackend) hasKey(_ context.Context, key string) (bool, error) {
	_, ok := m.c.Get(memorySentPrefix + key)
	return ok, nil
}

func (m *memoryBackend) putKeys(_ context.Context, entries map[string]int64, overwrite bool) error {
	for k, at := range entries {
		if overwrite {
			m.c.Set(memorySentPrefix+k, at, cache.NoExpiration)
			continue
		}
		// Add refuses existing keys, which is exactly the import rule.
		_ = m.c.Add(memorySentPrefix+k, at, cache.NoExpiration)
	}
	return nil
}

func (m *memoryBackend) sentMap(context.Context) (map[string]int64, error) {
	out := make(map[string]int64)
	for k, item := range m.c.Items() {
		if key, ok := strings.CutPrefix(k, memorySentPrefix); ok {
			out[key] = item.Object.(int64)
		}
	}
	return out, nil
}

func (m *memoryBackend) clearKeys(context.Context) error {
	for k := range m.c.Items() {
		if strings.HasPrefix(k, memorySentPrefix) {
			m.c.Delete(k)
		}
	}
	return nil
}

func (m *memoryBackend) changes(context.Context) <-chan struct{} { return nil }

func (m *memoryBackend) close() error {
	m.c.Flush()
	return nil
}
