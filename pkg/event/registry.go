package event

import (
	"sort"
	"sync"
)

// Registry is the process-wide mapping domain -> (event handler |
// notification handler). Separate tables for the two kinds; a single
// handler instance may be registered in either or both. Guarded by one
// mutex that never nests with another component's lock.
type Registry struct {
	mu            sync.RWMutex
	eventHandlers map[string]EventHandler
	notifHandlers map[string]NotificationHandler
	order         map[string]int // domain -> registration sequence, for PrioritizedHandler tie-breaks
	seq           int
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{
		eventHandlers: make(map[string]EventHandler),
		notifHandlers: make(map[string]NotificationHandler),
		order:         make(map[string]int),
	}
}

// RegisterEventHandler registers h as the event handler for domain. A
// handler is registered for at most one domain; registering a second
// handler for the same domain replaces the first (last write wins, logged
// by the caller).
func (r *Registry) RegisterEventHandler(domain string, h EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.eventHandlers[domain] = h
	if _, seen := r.order[domain]; !seen {
		r.order[domain] = r.seq
		r.seq++
	}
}

// RegisterNotificationHandler registers h as the notification handler for
// domain.
func (r *Registry) RegisterNotificationHandler(domain string, h NotificationHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifHandlers[domain] = h
	if _, seen := r.order[domain]; !seen {
		r.order[domain] = r.seq
		r.seq++
	}
}

// EventHandlerFor returns the event handler registered for domain, if any.
func (r *Registry) EventHandlerFor(domain string) (EventHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.eventHandlers[domain]
	return h, ok
}

// NotificationHandlerFor returns the notification handler registered for
// domain, if any.
func (r *Registry) NotificationHandlerFor(domain string) (NotificationHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.notifHandlers[domain]
	return h, ok
}

// OrderDomains sorts domains by PrioritizedHandler.Priority() (ascending)
// where implemented, falling back to registration order — this gives
// deterministic delivery when one event ID resolves to multiple domains,
// instead of Go's unordered map iteration.
func (r *Registry) OrderDomains(domains []string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(domains))
	copy(out, domains)

	priority := func(domain string) int {
		if h, ok := r.eventHandlers[domain]; ok {
			if p, ok := h.(PrioritizedHandler); ok {
				return p.Priority()
			}
		}
		return 0
	}

	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := priority(out[i]), priority(out[j])
		if pi != pj {
			return pi < pj
		}
		return r.order[out[i]] < r.order[out[j]]
	})
	return out
}

// Reset calls Reset() on every registered event handler. Used when the
// agent reconnects after an extended outage.
func (r *Registry) Reset() {
	r.mu.RLock()
	handlers := make([]EventHandler, 0, len(r.eventHandlers))
	for _, h := range r.eventHandlers {
		handlers = append(handlers, h)
	}
	r.mu.RUnlock()

	for _, h := range handlers {
		h.Reset()
	}
}
