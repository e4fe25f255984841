package navigator

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Browser session. Identifies one tab across several navigations so cookies and
// page state survive between the first load and the following script runs.
type Session struct {
	ID          string
	URL         string
	StatusCode  int
	Navigations int
	CreatedAt   time.Time
	LastUsedAt  time.Time
}

type sessionEntry[T any] struct {
	Session
	handle T
}

// Session id -> engine handle (rod page, chromedp tab)
type sessionRegistry[T any] struct {
	mu      sync.Mutex
	entries map[string]*sessionEntry[T]
}

// acquire returns handle registered under id or creates a new one.
// Empty id always creates an ephemeral session with generated id.
func (r *sessionRegistry[T]) acquire(id string, create func() (T, error)) (string, T, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.entries == nil {
		r.entries = make(map[string]*sessionEntry[T])
	}

	if id == "" {
		id = uuid.NewString()
	}

	if entry, ok := r.entries[id]; ok {
		entry.LastUsedAt = time.Now()
		return id, entry.handle, false, nil
	}

	handle, err := create()
	if err != nil {
		var zero T
		return id, zero, false, err
	}

	now := time.Now()
	r.entries[id] = &sessionEntry[T]{
		Session: Session{ID: id, CreatedAt: now, LastUsedAt: now},
		handle:  handle,
	}
	return id, handle, true, nil
}

func (r *sessionRegistry[T]) get(id string) (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok {
		var zero T
		return zero, ErrUnknownSession
	}
	entry.LastUsedAt = time.Now()
	return entry.handle, nil
}

// Record finished navigation
func (r *sessionRegistry[T]) touch(id, url string, status int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.entries[id]; ok {
		entry.URL = url
		entry.StatusCode = status
		entry.Navigations++
		entry.LastUsedAt = time.Now()
	}
}

func (r *sessionRegistry[T]) session(id string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok {
		return Session{}, false
	}
	return entry.Session, true
}

func (r *sessionRegistry[T]) remove(id string) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok {
		var zero T
		return zero, false
	}
	delete(r.entries, id)
	return entry.handle, true
}

// Remove all sessions and return their handles
func (r *sessionRegistry[T]) drain() []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	handles := make([]T, 0, len(r.entries))
	for _, entry := range r.entries {
		handles = append(handles, entry.handle)
	}
	r.entries = nil
	return handles
}

func (r *sessionRegistry[T]) list() []Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions := make([]Session, 0, len(r.entries))
	for _, entry := range r.entries {
		sessions = append(sessions, entry.Session)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	return sessions
}
