// internal/realtime/registry.go
package realtime

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Listener receives inbound messages.
type Listener func(Message)

// Handle identifies a registered listener.
type Handle uuid.UUID

type entry struct {
	handle  Handle
	fn      Listener
	removed atomic.Bool
}

// Registry is an ordered set of listeners. Registration order is dispatch order, removal is
// by handle and is safe from inside a listener.
type Registry struct {
	mu      sync.Mutex
	entries []*entry
	log     logrus.FieldLogger
}

// NewRegistry creates an empty registry.
func NewRegistry(log logrus.FieldLogger) *Registry {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Registry{log: log}
}

// Register appends a listener and returns its handle.
func (r *Registry) Register(fn Listener) Handle {
	e := &entry{handle: Handle(uuid.New()), fn: fn}
	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
	return e.handle
}

// Unregister removes a listener. Later dispatches never invoke it; a dispatch already in
// progress skips it unless it has already started calling it, so a concurrent dispatch may
// deliver at most one more message. Removal from inside a listener on the dispatching
// goroutine takes effect for the rest of that dispatch. Unknown handles are ignored.
func (r *Registry) Unregister(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.entries {
		if e.handle == h {
			e.removed.Store(true)
			r.entries = append(r.entries[:i:i], r.entries[i+1:]...)
			return
		}
	}
}

// Clear drops every listener.
func (r *Registry) Clear() {
	r.mu.Lock()
	for _, e := range r.entries {
		e.removed.Store(true)
	}
	r.entries = nil
	r.mu.Unlock()
}

// Len returns the number of registered listeners.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Dispatch delivers msg to a snapshot of the listeners in registration order. A panicking
// listener is logged and does not stop delivery to the rest.
func (r *Registry) Dispatch(msg Message) {
	r.mu.Lock()
	snapshot := make([]*entry, len(r.entries))
	copy(snapshot, r.entries)
	r.mu.Unlock()

	for _, e := range snapshot {
		if e.removed.Load() {
			continue
		}
		r.call(e, msg)
	}
}

func (r *Registry) call(e *entry, msg Message) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.WithFields(logrus.Fields{
				"listener": uuid.UUID(e.handle).String(),
				"type":     msg.Type,
			}).Errorf("listener panicked: %v", rec)
		}
	}()
	e.fn(msg)
}
