package agent

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/igniteclient/pkg/types"
)

type fakeDispatcher struct {
	sent []types.MessageOut
}

func (d *fakeDispatcher) Dispatch(msg types.MessageOut) bool {
	d.sent = append(d.sent, msg)
	return true
}

type fakeVinStore struct {
	values map[string]string
}

func (s *fakeVinStore) GetString(key string) (string, error) {
	return s.values[key], nil
}

func (s *fakeVinStore) SetString(key, value string) error {
	s.values[key] = value
	return nil
}

func TestAgentRegistersDomainHandlers(t *testing.T) {
	a := newTestAgent(t, "http://127.0.0.1:0", "http://127.0.0.1:0")

	for _, domain := range []string{domainActivationBackoff, domainRemoteOperation, domainVin} {
		_, ok := a.Registry().EventHandlerFor(domain)
		require.True(t, ok, "no event handler registered for %s", domain)
	}
	_, ok := a.Registry().NotificationHandlerFor(domainActivationBackoff)
	require.True(t, ok)
}

func TestBackoffHandlerRejectsMalformedConfig(t *testing.T) {
	a := newTestAgent(t, "http://127.0.0.1:0", "http://127.0.0.1:0")
	h := &backoffHandler{ctl: a.backoffCtl}

	require.Error(t, h.ApplyConfig(json.RawMessage(`{"enable":`)))
	require.NoError(t, h.ApplyConfig(json.RawMessage(`{"enable":true,"initialFreq":10}`)))
}

func TestRemoteOpHandlerForwardsToHost(t *testing.T) {
	disp := &fakeDispatcher{}
	h := &remoteOpHandler{disp: disp}

	e := &types.Event{
		EventID:   "RemoteOperationEngine",
		Timestamp: 1700067200000,
		Data:      json.RawMessage(`{"state":"STARTED"}`),
	}
	require.NoError(t, h.ProcessEvent(e))
	require.Len(t, disp.sent, 1)
	require.Equal(t, types.MessageRemoteOperationMessage, disp.sent[0].Kind)

	var forwarded types.Event
	require.NoError(t, json.Unmarshal(disp.sent[0].Payload, &forwarded))
	require.Equal(t, e.EventID, forwarded.EventID)
}

func TestVinHandlerPersistsLearnedVin(t *testing.T) {
	store := &fakeVinStore{values: map[string]string{}}
	h := &vinHandler{store: store, disp: &fakeDispatcher{}}

	e := &types.Event{EventID: "VIN", Data: json.RawMessage(`{"value":"1HGBH41JXMN109186"}`)}
	require.NoError(t, h.ProcessEvent(e))
	require.Equal(t, "1HGBH41JXMN109186", store.values["VIN"])
}

func TestVinHandlerRequestsVinOnce(t *testing.T) {
	store := &fakeVinStore{values: map[string]string{}}
	disp := &fakeDispatcher{}
	h := &vinHandler{store: store, disp: disp}

	empty := &types.Event{EventID: "VIN", Data: json.RawMessage(`{"value":""}`)}
	require.NoError(t, h.ProcessEvent(empty))
	require.NoError(t, h.ProcessEvent(empty))
	require.Len(t, disp.sent, 1)
	require.Equal(t, types.MessageVinRequestToDevice, disp.sent[0].Kind)

	// Reset re-arms the request gate.
	h.Reset()
	require.NoError(t, h.ProcessEvent(empty))
	require.Len(t, disp.sent, 2)
}

func TestVinHandlerSkipsRequestWhenVinKnown(t *testing.T) {
	store := &fakeVinStore{values: map[string]string{"VIN": "known"}}
	disp := &fakeDispatcher{}
	h := &vinHandler{store: store, disp: disp}

	empty := &types.Event{EventID: "VIN", Data: json.RawMessage(`{"value":""}`)}
	require.NoError(t, h.ProcessEvent(empty))
	require.Empty(t, disp.sent)
}
