package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/dmitrijs2005/contentup/internal/common"
)

// MemoryStore is a ChunkStore kept in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

func (m *MemoryStore) PutChunk(ctx context.Context, key string, r io.Reader, size int64) error {
	buf := bytes.NewBuffer(make([]byte, 0, size))
	n, err := io.Copy(buf, r)
	if err != nil {
		return err
	}
	if n != size {
		return fmt.Errorf("put %s: got %d bytes, want %d: %w", key, n, size, io.ErrUnexpectedEOF)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = buf.Bytes()
	return nil
}

func (m *MemoryStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, common.ErrorNotFound)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *MemoryStore) Assemble(ctx context.Context, parts []Part, finalKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []byte
	for _, p := range parts {
		b, ok := m.objects[p.Key]
		if !ok {
			return fmt.Errorf("%s: %w", p.Key, common.ErrorNotFound)
		}
		out = append(out, b...)
	}
	if out == nil {
		out = []byte{}
	}
	m.objects[finalKey] = out
	return nil
}

func (m *MemoryStore) DeletePrefix(ctx context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			delete(m.objects, k)
		}
	}
	return nil
}

// Keys lists the stored keys in lexical order.
func (m *MemoryStore) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Object returns a copy of the object stored under key.
func (m *MemoryStore) Object(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.objects[key]
	return bytes.Clone(b), ok
}
