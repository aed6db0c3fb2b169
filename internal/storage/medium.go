package storage

import "sync"

// Medium is a string-keyed, string-valued durable medium. It must tolerate
// absent keys (first run) and must never interpret the stored value.
type Medium interface {
	// Get returns the value for key and whether the key was present.
	Get(key string) (string, bool, error)

	// Set stores value under key, replacing any previous value.
	Set(key, value string) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(key string) error
}

// MemoryMedium is a process-local Medium. It backs tests and ephemeral
// sessions where nothing should outlive the process.
type MemoryMedium struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryMedium creates an empty in-memory medium.
func NewMemoryMedium() *MemoryMedium {
	return &MemoryMedium{values: make(map[string]string)}
}

// Get returns the value for key and whether it was present.
func (m *MemoryMedium) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.values[key]
	return value, ok, nil
}

// Set stores value under key.
func (m *MemoryMedium) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = value
	return nil
}

// Delete removes key if present.
func (m *MemoryMedium) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.values, key)
	return nil
}
