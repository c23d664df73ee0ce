// Package session holds the short-lived state between the password step
// and the face step of a login, and issues authenticated tokens once
// both factors pass.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/facegate/facegate/pkg/logging"
)

// ErrSessionExpired is returned when a handle is unknown, expired, or
// already consumed. The three cases are not distinguishable to callers.
var ErrSessionExpired = errors.New("session expired")

// Pending is the record held between a successful password check and
// the face check that completes the login.
type Pending struct {
	Identity string
	IssuedAt time.Time
}

// sweepInterval is how often expired records are reaped. Lookup and
// Consume also check expiry directly, so the sweep only bounds memory.
const sweepInterval = 30 * time.Second

// Registry is an in-memory keyed registry of pending verifications.
// A record is consumed at most once; lookup-and-consume is atomic.
type Registry struct {
	ttl time.Duration

	mu      sync.Mutex
	entries map[string]Pending

	stop chan struct{}
	once sync.Once
}

// NewRegistry creates a Registry whose records expire after ttl. A
// background sweep reaps expired records until Close is called.
func NewRegistry(ttl time.Duration) *Registry {
	r := &Registry{
		ttl:     ttl,
		entries: make(map[string]Pending),
		stop:    make(chan struct{}),
	}
	go r.sweep()
	return r
}

// Issue creates a fresh pending record for an identity and returns its
// opaque handle.
func (r *Registry) Issue(identity string) string {
	handle := uuid.NewString()

	r.mu.Lock()
	r.entries[handle] = Pending{Identity: identity, IssuedAt: time.Now()}
	r.mu.Unlock()

	logging.Component("session").Debugf("issued pending verification for %s", identity)
	return handle
}

// Lookup returns a copy of the pending record for a handle without
// consuming it. Fails with ErrSessionExpired when the handle is
// unknown, expired, or already consumed.
func (r *Registry) Lookup(handle string) (*Pending, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.entries[handle]
	if !ok {
		return nil, ErrSessionExpired
	}
	if r.expired(p) {
		delete(r.entries, handle)
		return nil, ErrSessionExpired
	}

	copy := p
	return &copy, nil
}

// Consume atomically removes the pending record for a handle and
// returns it. Of two concurrent calls on the same handle, exactly one
// succeeds; the other observes ErrSessionExpired.
func (r *Registry) Consume(handle string) (*Pending, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.entries[handle]
	if !ok {
		return nil, ErrSessionExpired
	}
	delete(r.entries, handle)
	if r.expired(p) {
		return nil, ErrSessionExpired
	}

	copy := p
	return &copy, nil
}

// Len returns the number of live pending records.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Close stops the background sweep.
func (r *Registry) Close() {
	r.once.Do(func() { close(r.stop) })
}

func (r *Registry) expired(p Pending) bool {
	return time.Since(p.IssuedAt) > r.ttl
}

func (r *Registry) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.mu.Lock()
			for handle, p := range r.entries {
				if r.expired(p) {
					delete(r.entries, handle)
				}
			}
			r.mu.Unlock()
		}
	}
}
