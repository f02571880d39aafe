package event

import (
	"encoding/json"

	"github.com/cuemby/igniteclient/pkg/types"
)

// EventHandler is the capability every domain handler registered for
// events must implement. Handlers are long-lived: their lifetime spans the
// agent process, and a single instance may also implement
// NotificationHandler for the same domain.
type EventHandler interface {
	// ProcessEvent handles one routed event. Errors are logged by the
	// registry and never propagate to other handlers or other domains.
	ProcessEvent(e *types.Event) error

	// ApplyConfig applies a configuration update pushed via a
	// notification for this handler's domain.
	ApplyConfig(cfg json.RawMessage) error

	// Reset returns the handler to its initial state, used when the
	// agent reconnects or the operator issues a reset command.
	Reset()
}

// NotificationHandler is the capability a domain handler implements to
// react to inbound notifications (cloud-pushed configuration, not events).
// It is deliberately the same shape as EventHandler's config hook so one
// struct can satisfy both tables in the registry.
type NotificationHandler interface {
	ApplyConfig(notif json.RawMessage) error
}

// PrioritizedHandler is an optional capability a handler may implement to
// influence delivery order when more than one domain resolves for a single
// event ID. Domains sort by ascending priority; a handler that doesn't
// implement it counts as priority 0, and equal priorities keep
// registration order, so dispatch order stays stable across runs.
type PrioritizedHandler interface {
	Priority() int
}
