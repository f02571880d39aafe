// Package types holds the data model shared by the event router, transport
// pipeline, activation backoff, HTTP session pool, and IPC command channel:
// the wire shapes that cross package boundaries.
package types

import "encoding/json"

// Event is an immutable record produced once by a host producer and then
// routed through the transport pipeline to domain handlers.
//
// Timestamp is a float64, not an integer: upstream producers serialize it
// as a JSON number and the pipeline must tolerate the same representation
// round-tripping through encode/decode without loss.
type Event struct {
	EventID           string          `json:"EventID"`
	Version           string          `json:"Version,omitempty"`
	Timestamp         float64         `json:"Timestamp"`
	Timezone          int             `json:"Timezone,omitempty"`
	Data              json.RawMessage `json:"Data,omitempty"`
	MessageID         string          `json:"MessageId,omitempty"`
	BizTransactionID  string          `json:"BizTransactionId,omitempty"`
	CorrelationID     string          `json:"CorrelationId,omitempty"`
	OriginalTimestamp *float64        `json:"OriginalTimestamp,omitempty"`
}

// Clone returns a deep-enough copy of e: the Data payload is shared (it is
// treated as opaque and never mutated in place by pipeline stages), but all
// scalar fields and the OriginalTimestamp pointer are independent.
func (e *Event) Clone() *Event {
	cp := *e
	if e.OriginalTimestamp != nil {
		ts := *e.OriginalTimestamp
		cp.OriginalTimestamp = &ts
	}
	return &cp
}

// Notification is an inbound message carrying a domain label and a JSON
// payload to be applied as configuration by that domain's handler.
type Notification struct {
	Domain string          `json:"domain"`
	Notif  json.RawMessage `json:"notif"`
}

// InboundMessage is the union of the two inbound shapes the router accepts
// (via NotifyEvent and NotifyNotification): either a raw event payload or
// a domain notification.
type InboundMessage struct {
	Event        *Event
	Notification *Notification
}

// AuthToken records an opaque cloud auth token and the material needed to
// judge its freshness without a round trip.
type AuthToken struct {
	Token      string
	IssuedAt   int64 // epoch seconds
	Lifetime   int64 // seconds
	MarginPct  float64
}

// IsFresh reports whether the token is still usable at now, applying the
// TTL margin: the token is considered stale margin% of its lifetime before
// its real expiry so callers have time to refresh without a 401 round trip.
func (t AuthToken) IsFresh(now int64) bool {
	if t.Token == "" {
		return false
	}
	usable := float64(t.Lifetime) * (1 - t.MarginPct/100)
	return float64(now) < float64(t.IssuedAt)+usable
}

// InvalidTimestampEvent is the persisted envelope the timestamp validator
// uses to overflow pre-cutoff events it cannot yet fix.
type InvalidTimestampEvent struct {
	RowID     int64
	EventJSON string
}

// ShutdownState distinguishes the two phases of the shutdown handshake.
type ShutdownState int

const (
	ShutdownPrepare   ShutdownState = 1
	ShutdownInitiated ShutdownState = 2
)

// ExitType selects how the process should terminate once every receiver
// has acknowledged readiness.
type ExitType int

const (
	QuickExit  ExitType = 1
	NormalExit ExitType = 2
)

// Exit codes of the host's external interface contract; the
// client reports one of these via os.Exit when a disassociation, opt-out,
// or wipe-data command completes.
const (
	ExitDisassociation               = 100
	ExitOptoutActivationToAnonymous  = 101
	ExitOptoutAnonymousToActivation  = 102
	ExitWipeData                     = 103
)

// CommandKind enumerates the typed messages the IPC ingress listener can
// dispatch to the client core.
type CommandKind string

const (
	CommandDeviceShutdownNotif        CommandKind = "DeviceShutdownNotif"
	CommandActivationStatusQuery      CommandKind = "ActivationStatusQuery"
	CommandDBSizeQuery                CommandKind = "DBSizeQuery"
	CommandMQTTConnectionStatusQuery  CommandKind = "MQTTConnectionStatusQuery"
	CommandRemoteOperationResponse    CommandKind = "RemoteOperationResponse"
)

// Command is a typed message ingested on the IPC channel. Only the fields
// relevant to Kind are populated; callers switch on Kind before reading
// them.
type Command struct {
	Kind CommandKind

	// DeviceShutdownNotif fields.
	ShutdownState   ShutdownState
	ExitOnComplete  bool
	ExitType        ExitType
	TimeoutSeconds  int

	// RemoteOperationResponse field.
	Payload json.RawMessage
}

// MessageKind enumerates the typed messages the egress dispatcher can send
// back to the host.
type MessageKind string

const (
	MessageRemoteOperationMessage MessageKind = "RemoteOperationMessage"
	MessageVinRequestToDevice     MessageKind = "VinRequestToDevice"
	MessageIcStatus               MessageKind = "IcStatus"
	MessageShutdownNotifAck       MessageKind = "ShutdownNotifAck"
	MessageActivationDetails      MessageKind = "ActivationDetails"
	MessageDbSize                 MessageKind = "DbSize"
	MessageMqttConnectionStatus   MessageKind = "MqttConnectionStatus"
)

// MessageOut is the outbound dual of Command: a typed message carrying a
// JSON payload built from well-known fields, dispatched over the IPC
// channel's PUSH or PUB transport depending on Kind.
type MessageOut struct {
	Kind    MessageKind
	Payload json.RawMessage
}
