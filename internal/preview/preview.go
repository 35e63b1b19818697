// Package preview manages the derived, revocable display resources created
// for a selected image.
package preview

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// ErrReleased is returned when opening a handle that is not live
var ErrReleased = errors.New("preview released")

// Handle identifies one live preview resource
type Handle string

// IDGenerator generates preview handle ids
type IDGenerator interface {
	Generate() string
}

type uuidGenerator struct{}

func (uuidGenerator) Generate() string {
	return uuid.NewString()
}

type entry struct {
	contentType string
}

// Manager hands out preview handles backed by a Storage and tracks which ones are live
type Manager struct {
	mu      sync.Mutex
	storage Storage
	ids     IDGenerator
	live    map[Handle]entry
}

// NewManager creates a Manager with uuid handles
func NewManager(storage Storage) *Manager {
	return NewManagerWithDeps(storage, uuidGenerator{})
}

// NewManagerWithDeps creates a Manager with a custom id generator for testing
func NewManagerWithDeps(storage Storage, ids IDGenerator) *Manager {
	return &Manager{
		storage: storage,
		ids:     ids,
		live:    make(map[Handle]entry),
	}
}

// Acquire stores data and returns a new live handle for it
func (m *Manager) Acquire(contentType string, data []byte) (Handle, error) {
	h := Handle(m.ids.Generate())
	if err := m.storage.Save(string(h), data); err != nil {
		return "", fmt.Errorf("saving preview: %w", err)
	}

	m.mu.Lock()
	m.live[h] = entry{contentType: contentType}
	m.mu.Unlock()

	slog.Debug("Preview acquired", "handle", h, "size", len(data))
	return h, nil
}

// Release revokes a handle. Releasing an empty, unknown or already released
// handle does nothing.
func (m *Manager) Release(h Handle) {
	if h == "" {
		return
	}

	m.mu.Lock()
	_, ok := m.live[h]
	delete(m.live, h)
	m.mu.Unlock()
	if !ok {
		return
	}

	if err := m.storage.Delete(string(h)); err != nil && !errors.Is(err, ErrNotFound) {
		slog.Warn("Failed to delete preview data", "handle", h, "error", err)
	}
	slog.Debug("Preview released", "handle", h)
}

// Open returns the displayable bytes and MIME type of a live handle
func (m *Manager) Open(h Handle) ([]byte, string, error) {
	m.mu.Lock()
	e, ok := m.live[h]
	m.mu.Unlock()
	if !ok {
		return nil, "", fmt.Errorf("opening preview %s: %w", h, ErrReleased)
	}

	data, err := m.storage.Get(string(h))
	if err != nil {
		return nil, "", fmt.Errorf("getting preview %s: %w", h, err)
	}

	return Render(data, e.contentType)
}

// Live reports whether h is currently live
func (m *Manager) Live(h Handle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.live[h]
	return ok
}

// LiveCount returns the number of live handles
func (m *Manager) LiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}
