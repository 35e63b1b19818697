package imagestate

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// CookieName is the cookie carrying the session id
const CookieName = "aa_session"

// IDGenerator generates session ids
type IDGenerator interface {
	Generate() string
}

type uuidGenerator struct{}

func (uuidGenerator) Generate() string {
	return uuid.NewString()
}

// Session is one browser's view of the app: its image store and whether an
// accounting request is in flight.
type Session struct {
	ID    string
	Store *Store

	mu         sync.Mutex
	lastSeen   time.Time
	processing bool
}

// BeginProcessing marks an accounting request as pending.
// It returns false if one is already pending.
func (s *Session) BeginProcessing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.processing {
		return false
	}
	s.processing = true
	return true
}

// EndProcessing clears the pending mark
func (s *Session) EndProcessing() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processing = false
}

// Processing reports whether an accounting request is pending
func (s *Session) Processing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processing
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) expired(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.processing && now.Sub(s.lastSeen) > ttl
}

// Registry owns every Session and tears their stores down on expiry or Close
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	previews Previews
	ttl      time.Duration
	ids      IDGenerator
	clock    TimeSource
}

// NewRegistry creates a Registry whose sessions expire after ttl of inactivity.
// A ttl of 0 keeps sessions until Close.
func NewRegistry(previews Previews, ttl time.Duration) *Registry {
	return NewRegistryWithDeps(previews, ttl, uuidGenerator{}, defaultTimeSource{})
}

// NewRegistryWithDeps creates a Registry with custom dependencies for testing
func NewRegistryWithDeps(previews Previews, ttl time.Duration, ids IDGenerator, clock TimeSource) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		previews: previews,
		ttl:      ttl,
		ids:      ids,
		clock:    clock,
	}
}

// Find returns the session named by the request cookie, if it is still live.
// The session is marked as used in the same critical section as the lookup so a
// concurrent Sweep cannot tear it down in between.
func (r *Registry) Find(req *http.Request) (*Session, bool) {
	c, err := req.Cookie(CookieName)
	if err != nil {
		return nil, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[c.Value]
	if ok {
		s.touch(r.clock.Now())
	}
	return s, ok
}

// Session returns the session named by the request cookie, creating one
// (and setting the cookie) when it is missing or unknown.
func (r *Registry) Session(w http.ResponseWriter, req *http.Request) *Session {
	if s, ok := r.Find(req); ok {
		return s
	}

	s := &Session{
		ID:       r.ids.Generate(),
		Store:    NewStoreWithDeps(r.previews, r.clock),
		lastSeen: r.clock.Now(),
	}

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    s.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	slog.Debug("Session created", "session", s.ID)
	return s
}

// Lookup finds a session by id
func (r *Registry) Lookup(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Len returns the number of sessions
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep tears down sessions idle for longer than the ttl and returns how many were removed.
// Sessions with a pending accounting request are kept.
func (r *Registry) Sweep(now time.Time) int {
	var expired []*Session

	r.mu.Lock()
	for id, s := range r.sessions {
		if s.expired(now, r.ttl) {
			expired = append(expired, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range expired {
		s.Store.Close()
		slog.Debug("Session expired", "session", s.ID)
	}
	return len(expired)
}

// Run sweeps every interval until ctx is done
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(r.clock.Now()); n > 0 {
				slog.Info("Expired idle sessions", "count", n)
			}
		}
	}
}

// Close tears down every session
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Store.Close()
	}
}
