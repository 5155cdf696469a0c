// Package registry tracks the live worker for each channel.
package registry

import (
	"errors"
	"sort"
	"sync"

	"github.com/kandev/voicectl/internal/agent/worker"
)

var (
	// ErrAlreadyRunning means the channel has a live worker or a start in flight.
	ErrAlreadyRunning = errors.New("agent already running")
	// ErrShuttingDown means the registry was sealed and takes no new workers.
	ErrShuttingDown = errors.New("controller is shutting down")
)

// Registry maps channel names to worker handles. A channel may also hold a
// reservation while its worker is being spawned; reservations are invisible to
// Lookup, Snapshot and Len.
type Registry struct {
	mu       sync.RWMutex
	handles  map[string]*worker.Handle
	reserved map[string]struct{}
	sealed   bool
}

func New() *Registry {
	return &Registry{
		handles:  make(map[string]*worker.Handle),
		reserved: make(map[string]struct{}),
	}
}

// Reserve claims channel for a spawn. It fails when the channel already has a
// live worker or reservation, or when the registry is sealed.
func (r *Registry) Reserve(channel string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return ErrShuttingDown
	}
	if _, ok := r.reserved[channel]; ok {
		return ErrAlreadyRunning
	}
	if h, ok := r.handles[channel]; ok && h.IsLive() {
		return ErrAlreadyRunning
	}
	r.reserved[channel] = struct{}{}
	return nil
}

// Release drops a reservation after a failed spawn.
func (r *Registry) Release(channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.reserved, channel)
}

// Insert records h for its channel and consumes the channel's reservation.
// An exited handle still awaiting removal is replaced. Once sealed, only a
// channel still holding its reservation is accepted.
func (r *Registry) Insert(h *worker.Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, reserved := r.reserved[h.ChannelName]; r.sealed && !reserved {
		return ErrShuttingDown
	}
	if existing, ok := r.handles[h.ChannelName]; ok && existing.IsLive() {
		return ErrAlreadyRunning
	}
	delete(r.reserved, h.ChannelName)
	r.handles[h.ChannelName] = h
	return nil
}

func (r *Registry) Lookup(channel string) (*worker.Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[channel]
	return h, ok
}

// Remove deletes the channel's entry, if any.
func (r *Registry) Remove(channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handles, channel)
}

// RemoveIf deletes the channel's entry only while it is still h. It reports
// whether an entry was removed.
func (r *Registry) RemoveIf(channel string, h *worker.Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.handles[channel]; ok && current == h {
		delete(r.handles, channel)
		return true
	}
	return false
}

// Snapshot returns the current handles ordered by channel name.
func (r *Registry) Snapshot() []*worker.Handle {
	r.mu.RLock()
	out := make([]*worker.Handle, 0, len(r.handles))
	for _, h := range r.handles {
		out = append(out, h)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ChannelName < out[j].ChannelName })
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}

// Clear drops every entry and reservation.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles = make(map[string]*worker.Handle)
	r.reserved = make(map[string]struct{})
}

// Seal makes every later Reserve fail with ErrShuttingDown.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

// Sealed reports whether Seal has been called.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}
