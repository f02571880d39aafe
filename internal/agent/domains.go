package agent

import (
	"encoding/json"
	"sync"

	"github.com/cuemby/igniteclient/pkg/backoff"
	"github.com/cuemby/igniteclient/pkg/config"
	"github.com/cuemby/igniteclient/pkg/log"
	"github.com/cuemby/igniteclient/pkg/types"
)

// Domain labels the router resolves through the configured
// MQTT.domainEventMap. The names match the configuration documents the
// fleet already ships, so a deployed map keeps working unchanged.
const (
	domainActivationBackoff = "activationBackOff"
	domainRemoteOperation   = "RemoteOperation"
	domainVin               = "vinHandler"
)

// messageDispatcher is the egress surface the domain handlers need;
// satisfied by *ipc.Dispatcher.
type messageDispatcher interface {
	Dispatch(msg types.MessageOut) bool
}

// vinStore is the persistence surface vinHandler needs; satisfied by
// *storage.BoltStore.
type vinStore interface {
	GetString(key string) (string, error)
	SetString(key, value string) error
}

// registerDomainHandlers installs the agent's built-in domain handlers in
// the registry. Which event IDs reach each domain is decided by the live
// MQTT.domainEventMap, not here.
func (a *Agent) registerDomainHandlers() {
	bh := &backoffHandler{ctl: a.backoffCtl}
	a.registry.RegisterEventHandler(domainActivationBackoff, bh)
	a.registry.RegisterNotificationHandler(domainActivationBackoff, bh)
	a.registry.RegisterEventHandler(domainRemoteOperation, &remoteOpHandler{disp: a.ipc.Dispatcher})
	a.registry.RegisterEventHandler(domainVin, &vinHandler{store: a.store, disp: a.ipc.Dispatcher})
}

// backoffHandler adapts the activation backoff controller to the
// registry's handler capability set: routed IgnStatus/DeviceRemoval
// events feed the state machine, and a configuration notification for the
// domain swaps the controller's tunables in place.
type backoffHandler struct {
	ctl *backoff.Controller
}

func (h *backoffHandler) ProcessEvent(e *types.Event) error {
	h.ctl.ProcessEvent(e)
	return nil
}

func (h *backoffHandler) ApplyConfig(cfg json.RawMessage) error {
	var conf config.ActivationBackOffConf
	if err := json.Unmarshal(cfg, &conf); err != nil {
		return err
	}
	h.ctl.ApplyConfig(conf)
	return nil
}

func (h *backoffHandler) Reset() {
	h.ctl.Reset()
}

// remoteOpHandler forwards cloud-originated remote operation events to the
// host over the IPC egress as RemoteOperationMessage frames. The host's
// reply comes back on the ingress channel as a RemoteOperationResponse
// command and re-enters the router there.
type remoteOpHandler struct {
	disp messageDispatcher
}

func (h *remoteOpHandler) ProcessEvent(e *types.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if !h.disp.Dispatch(types.MessageOut{Kind: types.MessageRemoteOperationMessage, Payload: payload}) {
		log.WithDomain(domainRemoteOperation).Warn().
			Str("event_id", e.EventID).
			Msg("no host receiver reachable, remote operation dropped")
	}
	return nil
}

func (h *remoteOpHandler) ApplyConfig(json.RawMessage) error { return nil }
func (h *remoteOpHandler) Reset()                            {}

// vinHandler learns the vehicle identification number from routed VIN
// events and persists it under the VIN key. A VIN event with an empty
// value means the producer does not know the VIN yet; the handler then
// asks the host for one with a VinRequestToDevice message, at most once
// per learned-VIN lifetime.
type vinHandler struct {
	store vinStore
	disp  messageDispatcher

	mu        sync.Mutex
	requested bool
}

type vinEventData struct {
	Value string `json:"value"`
}

func (h *vinHandler) ProcessEvent(e *types.Event) error {
	var d vinEventData
	if err := json.Unmarshal(e.Data, &d); err != nil {
		return err
	}

	if d.Value == "" {
		h.mu.Lock()
		already := h.requested
		h.requested = true
		h.mu.Unlock()
		if already {
			return nil
		}
		if known, err := h.store.GetString("VIN"); err == nil && known != "" {
			return nil
		}
		h.disp.Dispatch(types.MessageOut{
			Kind:    types.MessageVinRequestToDevice,
			Payload: json.RawMessage(`{}`),
		})
		return nil
	}

	return h.store.SetString("VIN", d.Value)
}

func (h *vinHandler) ApplyConfig(json.RawMessage) error { return nil }

func (h *vinHandler) Reset() {
	h.mu.Lock()
	h.requested = false
	h.mu.Unlock()
}
