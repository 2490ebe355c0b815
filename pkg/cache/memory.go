package cache

import (
	"bytes"
	"context"
	"fmt"
	"io"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/NERVsystems/osmbounds/pkg/monitoring"
	"github.com/NERVsystems/osmbounds/pkg/osm"
	"github.com/NERVsystems/osmbounds/pkg/tracing"
)

// DefaultMemoryEntries is the default number of documents kept in memory.
const DefaultMemoryEntries = 256

// Memory keeps the most recently used documents in process memory.
type Memory struct {
	entries *lru.Cache[osm.Key, []byte]
	next    osm.Source
}

// NewMemory returns an LRU cache of size documents in front of next.
func NewMemory(size int, next osm.Source) (*Memory, error) {
	if size <= 0 {
		size = DefaultMemoryEntries
	}
	entries, err := lru.New[osm.Key, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("creating memory cache: %w", err)
	}
	return &Memory{entries: entries, next: next}, nil
}

// Fetch serves a document from memory, reading it through on a miss.
func (m *Memory) Fetch(ctx context.Context, kind osm.Kind, id int64) (io.ReadCloser, error) {
	key := osm.Key{Kind: kind, ID: id}
	if data, ok := m.entries.Get(key); ok {
		observe(ctx, tracing.CacheLayerMemory, true, key.String())
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	observe(ctx, tracing.CacheLayerMemory, false, key.String())

	rc, err := m.next.Fetch(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	m.entries.Add(key, data)
	monitoring.UpdateCacheSize(tracing.CacheLayerMemory, m.entries.Len())
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Invalidate drops the document and forwards to the next layer.
func (m *Memory) Invalidate(ctx context.Context, kind osm.Kind, id int64) error {
	m.entries.Remove(osm.Key{Kind: kind, ID: id})
	return m.next.Invalidate(ctx, kind, id)
}

// Len returns the number of cached documents.
func (m *Memory) Len() int {
	return m.entries.Len()
}
