package transport

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cuemby/igniteclient/pkg/event"
)

func TestVinGate_DropsVinEventWithTopic(t *testing.T) {
	g := NewVinGate()
	data, _ := json.Marshal(vinPayload{Topic: "ignite/vin/2c/dvp", Value: "1HGCM82633A004352"})
	out := g.Handle(&event.Event{EventID: "VIN", Data: data})
	assert.False(t, out.Forward)
	assert.True(t, out.Dropped)
}

func TestVinGate_ForwardsTopiclessVinEvent(t *testing.T) {
	g := NewVinGate()
	data, _ := json.Marshal(vinPayload{Value: "1HGCM82633A004352"})
	out := g.Handle(&event.Event{EventID: "VIN", Data: data})
	assert.True(t, out.Forward)
}

func TestVinGate_NonVinEventAlwaysForwarded(t *testing.T) {
	g := NewVinGate()
	out := g.Handle(&event.Event{EventID: "SomethingElse"})
	assert.True(t, out.Forward)
}
