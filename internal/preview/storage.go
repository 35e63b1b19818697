package preview

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// ErrNotFound is returned by a Storage when no data is stored under a key
var ErrNotFound = errors.New("preview data not found")

// Storage defines the interface for preview byte storage
type Storage interface {
	// Save stores data under key
	Save(key string, data []byte) error

	// Get retrieves the data stored under key
	Get(key string) ([]byte, error)

	// Delete removes the data stored under key
	Delete(key string) error
}

// MemoryStorage keeps preview bytes in process memory
type MemoryStorage struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryStorage creates an empty MemoryStorage
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{blobs: make(map[string][]byte)}
}

func (m *MemoryStorage) Save(key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = data
	return nil
}

func (m *MemoryStorage) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blobs[key]
	if !ok {
		return nil, fmt.Errorf("reading %s: %w", key, ErrNotFound)
	}
	return data, nil
}

func (m *MemoryStorage) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[key]; !ok {
		return fmt.Errorf("deleting %s: %w", key, ErrNotFound)
	}
	delete(m.blobs, key)
	return nil
}

// LocalStorage implements the Storage interface using a local directory
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a new LocalStorage instance
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating preview directory: %w", err)
	}

	return &LocalStorage{
		basePath: basePath,
	}, nil
}

// Save writes a preview file
func (l *LocalStorage) Save(key string, data []byte) error {
	path := filepath.Join(l.basePath, filepath.Base(key))
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}

// Get reads a preview file
func (l *LocalStorage) Get(key string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(l.basePath, filepath.Base(key)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading file: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// Delete removes a preview file
func (l *LocalStorage) Delete(key string) error {
	err := os.Remove(filepath.Join(l.basePath, filepath.Base(key)))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("deleting file: %w", ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}
	return nil
}
