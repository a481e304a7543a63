package state

import (
	"context"
	"sync"
)

// MemoryBackend keeps the serialized document in process memory.
type MemoryBackend struct {
	mu     sync.Mutex
	data   []byte
	writes int
	err    error
}

// NewMemoryBackend creates a backend seeded with doc (may be nil).
func NewMemoryBackend(doc *Document) *MemoryBackend {
	m := &MemoryBackend{}
	if doc != nil {
		m.data, _ = Encode(doc)
	}
	return m
}

// Read implements Backend.
func (m *MemoryBackend) Read(context.Context) (*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Decode(m.data)
}

// Write implements Backend.
func (m *MemoryBackend) Write(_ context.Context, doc *Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	data, err := Encode(doc)
	if err != nil {
		return err
	}
	m.data = data
	m.writes++
	return nil
}

// Close implements Backend.
func (m *MemoryBackend) Close() error { return nil }

// Writes returns the number of successful writes.
func (m *MemoryBackend) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// FailWrites makes subsequent writes return err; nil restores normal behavior.
func (m *MemoryBackend) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}
