// Package imagestate holds the image a user has selected, shared between the
// top and result screens of one browser session.
package imagestate

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/zombor/auto-accounting/internal/preview"
)

var (
	// ErrNoImage is returned when an operation needs a current image and there is none
	ErrNoImage = errors.New("no image selected")

	// ErrClosed is returned by Set after the store has been torn down
	ErrClosed = errors.New("image store closed")
)

// Previews acquires and releases preview resources
type Previews interface {
	Acquire(contentType string, data []byte) (preview.Handle, error)
	Release(h preview.Handle)
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultTimeSource struct{}

func (defaultTimeSource) Now() time.Time {
	return time.Now()
}

// SelectedImage is the image the user picked. Values are never mutated after Set.
type SelectedImage struct {
	Name        string
	ContentType string
	Data        []byte
	Preview     preview.Handle
	SelectedAt  time.Time
}

// Store holds at most one SelectedImage and keeps exactly one live preview
// for it, or none when empty.
type Store struct {
	mu       sync.RWMutex
	previews Previews
	clock    TimeSource
	current  *SelectedImage
	closed   bool
}

// NewStore creates an empty Store
func NewStore(previews Previews) *Store {
	return NewStoreWithDeps(previews, defaultTimeSource{})
}

// NewStoreWithDeps creates an empty Store with a custom time source for testing
func NewStoreWithDeps(previews Previews, clock TimeSource) *Store {
	return &Store{
		previews: previews,
		clock:    clock,
	}
}

// Current returns the current image, if any
func (s *Store) Current() (SelectedImage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return SelectedImage{}, false
	}
	return *s.current, true
}

// Set makes a new image current. The previous image's preview is released
// before the new one is acquired. Image bytes are not validated here.
// If the preview cannot be acquired the store is left empty.
func (s *Store) Set(name, contentType string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	s.releaseLocked()

	h, err := s.previews.Acquire(contentType, data)
	if err != nil {
		return fmt.Errorf("acquiring preview: %w", err)
	}

	s.current = &SelectedImage{
		Name:        displayName(name),
		ContentType: contentType,
		Data:        data,
		Preview:     h,
		SelectedAt:  s.clock.Now(),
	}
	return nil
}

// Clear releases the current image's preview and empties the store.
// Clearing an empty store does nothing.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseLocked()
}

// Close clears the store and rejects further Set calls
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseLocked()
	s.closed = true
}

func (s *Store) releaseLocked() {
	if s.current == nil {
		return
	}
	s.previews.Release(s.current.Preview)
	s.current = nil
}

// displayName derives the label shown under the preview from the picked file's name.
// Some browsers send a full client path.
func displayName(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == "/" {
		return "image"
	}
	return name
}
