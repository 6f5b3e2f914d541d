// Package session keeps short-lived server-side state (fill sessions and
// drafts) in memory, keyed by id and expired after a period of inactivity.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrUnknown is returned for ids that were never issued or have expired.
var ErrUnknown = errors.New("unknown or expired session")

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type entry[T any] struct {
	mu       sync.Mutex
	value    T
	lastSeen time.Time
}

// Registry holds values of type T for ttl after their last use. Access to a
// single value is serialized through Do.
type Registry[T any] struct {
	name  string
	clock Clock
	ttl   time.Duration

	mu      sync.Mutex
	entries map[string]*entry[T]
	logger  *slog.Logger
}

// NewRegistry creates a Registry. If ttl is <= 0, it defaults to 30 minutes.
func NewRegistry[T any](name string, ttl time.Duration) *Registry[T] {
	return NewRegistryWithClock[T](name, ttl, realClock{})
}

// NewRegistryWithClock creates a Registry with a custom clock (for testing).
func NewRegistryWithClock[T any](name string, ttl time.Duration, clock Clock) *Registry[T] {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Registry[T]{
		name:    name,
		clock:   clock,
		ttl:     ttl,
		entries: make(map[string]*entry[T]),
		logger:  slog.Default(),
	}
}

// Put stores v under a fresh id and returns the id.
func (r *Registry[T]) Put(v T) string {
	id := uuid.New().String()
	r.mu.Lock()
	r.entries[id] = &entry[T]{value: v, lastSeen: r.clock.Now()}
	r.mu.Unlock()
	return id
}

// lookup returns the live entry for id, dropping it if it has expired.
func (r *Registry[T]) lookup(id string) (*entry[T], bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	if r.expired(e) {
		delete(r.entries, id)
		return nil, false
	}
	return e, true
}

func (r *Registry[T]) expired(e *entry[T]) bool {
	return !r.clock.Now().Before(e.lastSeen.Add(r.ttl))
}

// Do runs fn with the value stored under id while holding that value's lock,
// and refreshes its expiry. Other ids are not blocked.
func (r *Registry[T]) Do(id string, fn func(T) error) error {
	e, ok := r.lookup(id)
	if !ok {
		return ErrUnknown
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	r.mu.Lock()
	e.lastSeen = r.clock.Now()
	r.mu.Unlock()

	return fn(e.value)
}

// Get returns the value stored under id.
func (r *Registry[T]) Get(id string) (T, error) {
	var out T
	err := r.Do(id, func(v T) error {
		out = v
		return nil
	})
	return out, err
}

// Delete forgets id. Unknown ids are ignored.
func (r *Registry[T]) Delete(id string) {
	r.mu.Lock()
	delete(r.entries, id)
	r.mu.Unlock()
}

// Len reports the number of stored entries, including ones not yet swept.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Sweep drops expired entries and returns how many were removed.
func (r *Registry[T]) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, e := range r.entries {
		if r.expired(e) {
			delete(r.entries, id)
			n++
		}
	}
	return n
}

// Run sweeps every interval until ctx is cancelled. If interval is <= 0,
// it defaults to one minute.
func (r *Registry[T]) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
		if n := r.Sweep(); n > 0 {
			r.logger.Debug("expired entries swept", "registry", r.name, "count", n)
		}
	}
}
