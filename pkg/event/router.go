// Package event implements the router and handler registry at the center
// of the ignite client: domain⇄event maps, a hot-reconfigurable handler
// registry, and the chain-of-responsibility transport pipeline that every
// inbound event travels through before reaching a domain handler.
package event

import (
	"encoding/json"
	"sync"

	"github.com/cuemby/igniteclient/pkg/log"
	"github.com/cuemby/igniteclient/pkg/metrics"
	"github.com/cuemby/igniteclient/pkg/types"
)

// Event is an alias so callers inside this package can write event.Event
// instead of types.Event; the canonical definition lives in pkg/types.
type Event = types.Event

// Stage is one step of the transport pipeline a parsed event travels
// through before reaching domain handlers. See pkg/transport for the
// concrete stages (TimestampValidator, ActivityDelay, SessionStatus).
type Stage interface {
	Handle(e *Event) Outcome
	Name() string
}

// Outcome is what a Stage decided to do with an event.
type Outcome struct {
	Forward bool
	Event   *Event // the (possibly mutated) event to forward, if Forward
	Dropped bool
	Reason  string

	// Extra holds additional events a stage wants injected into the
	// pipeline alongside the one being handled — used by
	// TimestampValidator to replay a burst of queued events once the
	// first valid timestamp arrives, or to flush an overflowing queue
	// through unfixed. Each is routed through the stages AFTER the one
	// that produced it and dispatched before the current event. Extra
	// is honored independently of Event/Dropped.
	Extra []*Event
}

// ConfigSubscriber is called when a domain's configuration changes via
// SubscribeConfigUpdates.
type ConfigSubscriber func(cfg json.RawMessage)

// Router receives events from host producers and notifications from the
// cloud, runs event payloads through the transport pipeline, and dispatches
// them to registered domain handlers. It is safe for concurrent use: it is
// invoked from producer threads and is re-entrant.
type Router struct {
	registry *Registry
	domains  *DomainMap
	pipeline []Stage

	mu          sync.Mutex
	subscribers map[string][]ConfigSubscriber
}

// NewRouter creates a Router with the given handler registry and an
// initially empty domain map; pipeline is the ordered list of transport
// stages every event payload passes through before dispatch.
func NewRouter(registry *Registry, pipeline []Stage) *Router {
	return &Router{
		registry:    registry,
		domains:     NewDomainMap(),
		pipeline:    pipeline,
		subscribers: make(map[string][]ConfigSubscriber),
	}
}

// Domains exposes the router's DomainMap so the agent composition root can
// feed it configuration snapshots.
func (r *Router) Domains() *DomainMap { return r.domains }

// Registry exposes the handler registry.
func (r *Router) Registry() *Registry { return r.registry }

// NotifyEvent parses and routes an event payload: it runs raw through the
// transport pipeline stage by stage and, for every domain resolved from the
// (possibly backfilled) event's EventID, invokes that domain's event
// handler. A handler panic or error is isolated — it is logged and never
// prevents delivery to other handlers of the same event.
func (r *Router) NotifyEvent(raw *Event) {
	r.route(raw, 0)
}

// route advances one event through the pipeline starting at stage index
// start, then dispatches it to its resolved domains. Events a stage
// produces via Outcome.Extra are routed recursively from the following
// stage, ahead of the event being handled.
func (r *Router) route(raw *Event, start int) {
	if raw.EventID == "" {
		log.Logger.Warn().Msg("dropping event with empty EventID")
		metrics.EventsDroppedTotal.WithLabelValues("empty_event_id").Inc()
		return
	}

	current := raw
	for i := start; i < len(r.pipeline); i++ {
		stage := r.pipeline[i]
		outcome := stage.Handle(current)
		for _, ex := range outcome.Extra {
			r.route(ex, i+1)
		}
		if !outcome.Forward {
			if outcome.Dropped {
				log.WithEventID(current.EventID).Debug().
					Str("stage", stage.Name()).
					Str("reason", outcome.Reason).
					Msg("event dropped by transport stage")
				metrics.EventsDroppedTotal.WithLabelValues(stage.Name()).Inc()
			}
			return
		}
		current = outcome.Event
	}

	domains := r.domains.DomainsFor(current.EventID)
	if len(domains) == 0 {
		log.WithEventID(current.EventID).Debug().Msg("no domain registered for event id")
		return
	}
	for _, domain := range r.registry.OrderDomains(domains) {
		r.dispatchToDomain(domain, current)
	}
}

func (r *Router) dispatchToDomain(domain string, e *Event) {
	handler, ok := r.registry.EventHandlerFor(domain)
	if !ok {
		log.WithDomain(domain).Info().Str("event_id", e.EventID).
			Msg("no handler registered for domain, dropping for this domain only")
		metrics.EventsDroppedTotal.WithLabelValues("no_handler").Inc()
		return
	}
	metrics.EventsRoutedTotal.WithLabelValues(domain).Inc()

	defer func() {
		if rec := recover(); rec != nil {
			log.WithDomain(domain).Error().
				Interface("panic", rec).
				Str("event_id", e.EventID).
				Msg("handler panicked, isolated from other domains")
		}
	}()

	if err := handler.ProcessEvent(e); err != nil {
		log.WithDomain(domain).Error().Err(err).
			Str("event_id", e.EventID).
			Msg("handler returned error, isolated from other domains")
	}
}

// NotifyNotification parses and routes a domain notification: it looks up
// the notification handler for notif.Domain and invokes ApplyConfig. A
// missing domain or invalid payload shape is logged and dropped.
func (r *Router) NotifyNotification(n *types.Notification) {
	if n == nil || n.Domain == "" {
		log.Logger.Warn().Msg("dropping notification with empty domain")
		return
	}

	handler, ok := r.registry.NotificationHandlerFor(n.Domain)
	if !ok {
		log.WithDomain(n.Domain).Info().Msg("no notification handler registered, dropping")
		return
	}

	if err := handler.ApplyConfig(n.Notif); err != nil {
		log.WithDomain(n.Domain).Error().Err(err).Msg("apply_config failed, dropped")
	}

	r.mu.Lock()
	subs := append([]ConfigSubscriber(nil), r.subscribers[n.Domain]...)
	r.mu.Unlock()
	for _, sub := range subs {
		sub(n.Notif)
	}
}

// SubscribeConfigUpdates registers cb to be called whenever a
// configuration notification for domain is applied. Used by handlers that
// must react to configuration changes beyond their own ApplyConfig (e.g. a
// second component sharing the same domain's config).
func (r *Router) SubscribeConfigUpdates(domain string, cb ConfigSubscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribers[domain] = append(r.subscribers[domain], cb)
}

// UnsubscribeConfigUpdates removes every subscriber registered for domain.
// Subscribers register at most one callback per domain in practice;
// callers needing selective unsubscribe should wrap their callback to
// become a no-op instead.
func (r *Router) UnsubscribeConfigUpdates(domain string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subscribers, domain)
}

// ApplyDomainEventMap atomically swaps the DomainEventMap, producing the
// post-image of EventMap via the incremental diff DomainMap.Apply
// implements. Missing domains in raw are left untouched — dynamic add or
// remove of domains is not supported, so a domain absent from raw is
// logged and ignored rather than rejected outright. Entries that decode as
// neither a string nor a list of strings are logged and skipped.
func (r *Router) ApplyDomainEventMap(raw map[string]json.RawMessage) {
	for domain := range r.domains.Snapshot() {
		if _, ok := raw[domain]; !ok {
			log.WithDomain(domain).Warn().Msg("domain missing from new domain event map, left unchanged")
		}
	}
	for domain, v := range raw {
		if _, ok := decodeDomainValue(v); !ok {
			log.WithDomain(domain).Warn().Msg("domain event map entry is neither a string nor a list of strings, skipped")
		}
	}
	r.domains.Apply(raw)
}
