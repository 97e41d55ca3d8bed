package observe

import (
	"sort"
	"sync"
)

// Handlers is a list of subscribers to values of type T. Handlers are called in
// subscription order and without any lock held, so they are free to subscribe
// or cancel from within a notification.
//
// A handler only receives values notified after it subscribed.
type Handlers[T any] struct {
	mutex    sync.RWMutex
	sequence uint64
	handlers map[uint64]func(T)
}

// Add subscribes fn and returns a function that cancels the subscription.
// Calling cancel more than once is a no-op.
func (h *Handlers[T]) Add(fn func(T)) (cancel func()) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.handlers == nil {
		h.handlers = make(map[uint64]func(T))
	}

	h.sequence++
	id := h.sequence
	h.handlers[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mutex.Lock()
			defer h.mutex.Unlock()

			delete(h.handlers, id)
		})
	}
}

// Len returns the number of subscribers.
func (h *Handlers[T]) Len() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	return len(h.handlers)
}

// Snapshot returns the current subscribers in subscription order.
func (h *Handlers[T]) Snapshot() []func(T) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if len(h.handlers) == 0 {
		return nil
	}

	ids := make([]uint64, 0, len(h.handlers))
	for id := range h.handlers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return ids[i] < ids[j]
	})

	fns := make([]func(T), len(ids))
	for i, id := range ids {
		fns[i] = h.handlers[id]
	}
	return fns
}

// Notify calls every subscriber with v.
func (h *Handlers[T]) Notify(v T) {
	for _, fn := range h.Snapshot() {
		fn(v)
	}
}
