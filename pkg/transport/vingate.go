package transport

import (
	"encoding/json"

	"github.com/cuemby/igniteclient/pkg/event"
	"github.com/cuemby/igniteclient/pkg/log"
)

// vinPayload is the Data shape of a "VIN" event: a topic (set once the
// device has an assigned MQTT topic) and the VIN value itself.
type vinPayload struct {
	Topic string `json:"topic"`
	Value string `json:"value"`
}

// VinGate gates "VIN" events on whether they already carry a topic. A
// topicless VIN event is the "update our own VIN record" case and is
// forwarded; one that already carries a topic has been relayed onto the
// wire once and is dropped rather than re-processed.
type VinGate struct{}

// NewVinGate builds a VinGate stage.
func NewVinGate() *VinGate { return &VinGate{} }

func (g *VinGate) Name() string { return "VinGate" }

// Handle implements event.Stage. Only "VIN" events are gated; every other
// event ID passes through unconditionally.
func (g *VinGate) Handle(e *event.Event) event.Outcome {
	if e.EventID != "VIN" {
		return event.Outcome{Forward: true, Event: e}
	}

	var p vinPayload
	if err := json.Unmarshal(e.Data, &p); err != nil {
		log.WithEventID(e.EventID).Warn().Err(err).Msg("VIN event has malformed data, forwarding unmodified")
		return event.Outcome{Forward: true, Event: e}
	}

	if p.Topic != "" {
		log.WithEventID(e.EventID).Debug().Msg("dropping VIN event that already carries a topic")
		return event.Outcome{Dropped: true, Reason: "VIN event already topiced"}
	}

	return event.Outcome{Forward: true, Event: e}
}
