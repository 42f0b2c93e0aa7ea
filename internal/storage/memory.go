package storage

import (
	"fmt"
	"sync"

	"github.com/starford/notes/internal/apperr"
)

// Memory is an in-process Provider. Writes can be made to fail for testing
// persistence error handling.
type Memory struct {
	mu       sync.Mutex
	blobs    map[string][]byte
	writeErr error
	reads    int
	writes   int
}

// NewMemory returns an empty in-memory provider.
func NewMemory() *Memory {
	return &Memory{blobs: make(map[string][]byte)}
}

// Read returns a copy of the blob stored under key.
func (m *Memory) Read(key string) ([]byte, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	data, ok := m.blobs[key]
	if !ok {
		return nil, fmt.Errorf("storage: read %s: %w", key, apperr.ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

// Write stores a copy of data under key unless FailWrites is active.
func (m *Memory) Write(key string, data []byte) error {
	if err := validKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	if m.writeErr != nil {
		return fmt.Errorf("storage: write %s: %w", key, m.writeErr)
	}
	m.blobs[key] = append([]byte(nil), data...)
	return nil
}

// FailWrites makes every following Write return err. Pass nil to recover.
func (m *Memory) FailWrites(err error) {
	m.mu.Lock()
	m.writeErr = err
	m.mu.Unlock()
}

// Stats returns the number of Read and Write calls so far.
func (m *Memory) Stats() (reads, writes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads, m.writes
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }
