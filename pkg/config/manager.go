package config

import (
	"fmt"
	"sync"
)

// Section represents one logical group of configuration values.
// Sections own their in-memory state; the manager moves that state to and
// from the backing store.
type Section interface {
	// ID returns the stable section identifier used as the storage key
	ID() string

	// Data returns the current configuration data for persistence
	Data() map[string]interface{}

	// SetData updates the section from persisted data
	SetData(data map[string]interface{}) error

	// Validate validates the current configuration
	Validate() error

	// Reset restores the section to its default configuration
	Reset()
}

// Manager coordinates configuration sections with a backing store.
type Manager struct {
	store    Store
	sections map[string]Section
	mu       sync.RWMutex
}

// NewManager creates a configuration manager over the given store.
func NewManager(store Store) *Manager {
	return &Manager{
		store:    store,
		sections: make(map[string]Section),
	}
}

// RegisterSection registers a section and hydrates it from the store.
// Persisted data that fails SetData leaves the section at its defaults.
func (m *Manager) RegisterSection(section Section) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := section.ID()
	if _, exists := m.sections[id]; exists {
		return fmt.Errorf("section %q already registered", id)
	}

	data, err := m.store.GetSection(id)
	if err != nil {
		return fmt.Errorf("failed to load section %q: %w", id, err)
	}
	if len(data) > 0 {
		if err := section.SetData(data); err != nil {
			return fmt.Errorf("invalid persisted data for section %q: %w", id, err)
		}
	}

	m.sections[id] = section
	return nil
}

// GetSection returns a registered section by ID.
func (m *Manager) GetSection(id string) (Section, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	section, ok := m.sections[id]
	return section, ok
}

// SaveSection validates a section and persists it to the store.
func (m *Manager) SaveSection(id string) error {
	m.mu.RLock()
	section, ok := m.sections[id]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("section %q not registered", id)
	}

	if err := section.Validate(); err != nil {
		return fmt.Errorf("section %q failed validation: %w", id, err)
	}
	if err := m.store.SetSection(id, section.Data()); err != nil {
		return fmt.Errorf("failed to stage section %q: %w", id, err)
	}
	return m.store.Save()
}
