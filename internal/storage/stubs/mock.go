package stubs

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by a MockDB after Close
var ErrClosed = errors.New("mock db is closed")

// MockDB is an in-memory implementation of the Storage interface for testing
type MockDB struct {
	mu     sync.RWMutex
	values map[string]string
	closed bool

	// FailSet makes every write return this error when non-nil
	FailSet error
	// FailKeys makes any write touching one of these keys return the mapped error
	FailKeys map[string]error
	// Writes counts keys written successfully
	Writes int
}

// NewMockDB creates a new mock database
func NewMockDB() *MockDB {
	return &MockDB{
		values: make(map[string]string),
	}
}

// Initialize does nothing for mock DB
func (m *MockDB) Initialize(ctx context.Context) error {
	return nil
}

// Get returns the value stored under key
func (m *MockDB) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return "", false, ErrClosed
	}
	value, ok := m.values[key]
	return value, ok, nil
}

// Set stores value under key
func (m *MockDB) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkWrite(key); err != nil {
		return err
	}
	m.values[key] = value
	m.Writes++
	return nil
}

// SetMany stores all values, or none when any key is set up to fail
func (m *MockDB) SetMany(ctx context.Context, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key := range values {
		if err := m.checkWrite(key); err != nil {
			return err
		}
	}
	for key, value := range values {
		m.values[key] = value
		m.Writes++
	}
	return nil
}

// checkWrite reports the injected failure for key. Callers must hold m.mu.
func (m *MockDB) checkWrite(key string) error {
	if m.closed {
		return ErrClosed
	}
	if m.FailSet != nil {
		return m.FailSet
	}
	return m.FailKeys[key]
}

// Delete removes key; deleting a missing key is not an error
func (m *MockDB) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	delete(m.values, key)
	return nil
}

// Keys returns the number of stored keys
func (m *MockDB) Keys() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.values)
}

// Close marks the mock as closed
func (m *MockDB) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
