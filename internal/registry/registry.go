// Package registry tracks the live chat connections of a relay process.
//
// The registry knows nothing about message content. It keeps an
// insertion-ordered list of entries behind a single mutex and hands out
// copies of that list so callers can deliver to every connection without
// holding the lock while they write to slow sockets.
package registry

import (
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// ErrHandleClosed is returned by Handle.Send once the underlying connection
// has been closed. Delivery treats it as an expected outcome.
var ErrHandleClosed = errors.New("registry: handle closed")

// DisplayNamePrefix is prepended to the client ID to form the default
// display name of a new connection.
const DisplayNamePrefix = "User_"

// Handle is the opaque reference to one client's bidirectional channel.
// Implementations must be comparable (pointer types are the norm) because
// entries are looked up by handle equality.
type Handle interface {
	Send(payload []byte) error
	Close() error
}

// Entry is the bookkeeping record for one live connection.
type Entry struct {
	Handle      Handle
	ClientID    string
	DisplayName string
	JoinedAt    time.Time
}

// Registry is the set of currently connected clients.
type Registry struct {
	mu      sync.Mutex
	entries []*Entry
	clock   clockwork.Clock
}

// New creates an empty registry. A nil clock falls back to the real clock.
func New(clock clockwork.Clock) *Registry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Registry{clock: clock}
}

// Register appends a new entry for handle and returns it.
func (r *Registry) Register(handle Handle, clientID string) *Entry {
	entry := r.newEntry(handle, clientID)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = append(r.entries, entry)
	return entry
}

// Unregister removes the first entry whose handle matches. It reports
// false, without error, when no such entry exists.
func (r *Registry) Unregister(handle Handle) (*Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(handle)
}

// Join registers handle and returns the new entry together with the
// registry contents immediately after the insertion.
func (r *Registry) Join(handle Handle, clientID string) (*Entry, []*Entry) {
	entry := r.newEntry(handle, clientID)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = append(r.entries, entry)
	return entry, r.snapshotLocked()
}

// Leave removes the entry for handle and returns it together with the
// registry contents immediately after the removal.
func (r *Registry) Leave(handle Handle) (*Entry, []*Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.removeLocked(handle)
	if !ok {
		return nil, nil, false
	}
	return entry, r.snapshotLocked(), true
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Snapshot returns a point-in-time copy of the registered entries in
// insertion order.
func (r *Registry) Snapshot() []*Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Registry) newEntry(handle Handle, clientID string) *Entry {
	return &Entry{
		Handle:      handle,
		ClientID:    clientID,
		DisplayName: DisplayNamePrefix + clientID,
		JoinedAt:    r.clock.Now(),
	}
}

func (r *Registry) removeLocked(handle Handle) (*Entry, bool) {
	for i, entry := range r.entries {
		if entry.Handle != handle {
			continue
		}
		// Shift instead of swapping so iteration order stays insertion order.
		copy(r.entries[i:], r.entries[i+1:])
		r.entries[len(r.entries)-1] = nil
		r.entries = r.entries[:len(r.entries)-1]
		return entry, true
	}
	return nil, false
}

func (r *Registry) snapshotLocked() []*Entry {
	out := make([]*Entry, len(r.entries))
	copy(out, r.entries)
	return out
}
