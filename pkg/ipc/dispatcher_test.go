package ipc

import (
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/igniteclient/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherPushSendsPointToPoint(t *testing.T) {
	dir := t.TempDir()
	notifAddr := filepath.Join(dir, "notif.sock")

	ln, err := net.Listen("unix", notifAddr)
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, aerr := ln.Accept()
		require.NoError(t, aerr)
		accepted <- conn
	}()

	disp := NewDispatcher(notifAddr, filepath.Join(dir, "pub.sock"))
	ok := disp.Dispatch(types.MessageOut{Kind: types.MessageDbSize, Payload: json.RawMessage(`{"size":42}`)})
	require.True(t, ok)

	conn := <-accepted
	reader := newFrameReader(conn, DefaultHighWaterMark)
	frame, rerr := reader.ReadFrame()
	require.NoError(t, rerr)

	var envelope struct {
		MessageId string          `json:"MessageId"`
		Data      json.RawMessage `json:"Data"`
	}
	require.NoError(t, json.Unmarshal(frame, &envelope))
	assert.Equal(t, string(types.MessageDbSize), envelope.MessageId)
	assert.JSONEq(t, `{"size":42}`, string(envelope.Data))
}

func TestDispatcherPushFailsWithoutReceiver(t *testing.T) {
	dir := t.TempDir()
	disp := NewDispatcher(filepath.Join(dir, "nonexistent.sock"), filepath.Join(dir, "pub.sock"))
	ok := disp.Dispatch(types.MessageOut{Kind: types.MessageDbSize, Payload: json.RawMessage(`{}`)})
	assert.False(t, ok)
}

func TestDispatcherPublishBroadcastsToSubscriber(t *testing.T) {
	dir := t.TempDir()
	pubAddr := filepath.Join(dir, "pub.sock")
	disp := NewDispatcher(filepath.Join(dir, "notif.sock"), pubAddr)
	defer disp.Close()

	// First publish binds the fan-out listener but has no subscriber yet.
	ok := disp.Dispatch(types.MessageOut{Kind: types.MessageIcStatus, Payload: json.RawMessage(`{"status":"online"}`)})
	assert.False(t, ok)

	sub, err := net.Dial("unix", pubAddr)
	require.NoError(t, err)
	defer sub.Close()

	// Give the dispatcher's accept goroutine a moment to register sub,
	// then publish again; the subscriber should now receive the frame.
	var frame []byte
	require.Eventually(t, func() bool {
		ok := disp.Dispatch(types.MessageOut{Kind: types.MessageIcStatus, Payload: json.RawMessage(`{"status":"online"}`)})
		if !ok {
			return false
		}
		reader := newFrameReader(sub, DefaultHighWaterMark)
		var rerr error
		frame, rerr = reader.ReadFrame()
		return rerr == nil
	}, 2*pubWarmup, 10*time.Millisecond)

	var envelope struct {
		MessageId string          `json:"MessageId"`
		Data      json.RawMessage `json:"Data"`
	}
	require.NoError(t, json.Unmarshal(frame, &envelope))
	assert.Equal(t, string(types.MessageIcStatus), envelope.MessageId)
}
