package ipc

import (
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cuemby/igniteclient/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAddresses(t *testing.T) Addresses {
	t.Helper()
	dir := t.TempDir()
	return Addresses{
		Remote: filepath.Join(dir, "remote.sock"),
		Notif:  filepath.Join(dir, "notif.sock"),
		Pub:    filepath.Join(dir, "pub.sock"),
	}
}

// waitForListen retries dialing addr until the socket accepts, bounding
// the race between Serve's os.Remove+Listen and the test's first dial.
func waitForListen(t *testing.T, addr string) net.Conn {
	t.Helper()
	var conn net.Conn
	require.Eventually(t, func() bool {
		c, err := net.Dial("unix", addr)
		if err != nil {
			return false
		}
		conn = c
		return true
	}, time.Second, 5*time.Millisecond)
	return conn
}

func TestListenerDispatchesActivationStatusQuery(t *testing.T) {
	addrs := testAddresses(t)

	notifLn, err := net.Listen("unix", addrs.Notif)
	require.NoError(t, err)
	defer notifLn.Close()
	notifAccepted := make(chan net.Conn, 1)
	go func() {
		conn, aerr := notifLn.Accept()
		require.NoError(t, aerr)
		notifAccepted <- conn
	}()

	handlers := Handlers{
		OnActivationStatusQuery: func() types.MessageOut {
			return types.MessageOut{Kind: types.MessageActivationDetails, Payload: json.RawMessage(`{"activated":true}`)}
		},
	}
	ch := NewChannel(addrs, 0, handlers)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer ch.Dispatcher.Close()

	done := make(chan error, 1)
	go func() { done <- ch.Serve(ctx) }()

	conn := waitForListen(t, addrs.Remote)
	defer conn.Close()

	require.NoError(t, writeFrame(conn, mustMarshal(inboundFrame{EventID: string(types.CommandActivationStatusQuery)}), DefaultHighWaterMark))

	notifConn := <-notifAccepted
	reader := newFrameReader(notifConn, DefaultHighWaterMark)
	frame, rerr := reader.ReadFrame()
	require.NoError(t, rerr)

	var envelope struct {
		MessageId string          `json:"MessageId"`
		Data      json.RawMessage `json:"Data"`
	}
	require.NoError(t, json.Unmarshal(frame, &envelope))
	assert.Equal(t, string(types.MessageActivationDetails), envelope.MessageId)
	assert.JSONEq(t, `{"activated":true}`, string(envelope.Data))

	cancel()
	<-done
}

func TestListenerShutdownPrepareDoesNotStopServing(t *testing.T) {
	addrs := testAddresses(t)

	var prepared int32
	handlers := Handlers{
		OnShutdownPrepare: func(timeoutSeconds int, exitOnComplete bool, exitType types.ExitType) {
			atomic.StoreInt32(&prepared, 1)
		},
	}
	ch := NewChannel(addrs, 0, handlers)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer ch.Dispatcher.Close()

	done := make(chan error, 1)
	go func() { done <- ch.Serve(ctx) }()

	conn := waitForListen(t, addrs.Remote)
	defer conn.Close()

	body, _ := json.Marshal(shutdownData{State: types.ShutdownPrepare, Timeout: 5})
	require.NoError(t, writeFrame(conn, mustMarshal(inboundFrame{EventID: string(types.CommandDeviceShutdownNotif), Data: body}), DefaultHighWaterMark))

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&prepared) == 1
	}, time.Second, 5*time.Millisecond)

	select {
	case <-ch.Listener.Ready():
		t.Fatal("listener signaled ready after a prepare-only notif")
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	<-done
}

func TestListenerShutdownInitiatedCompletesHandshake(t *testing.T) {
	addrs := testAddresses(t)

	notifLn, err := net.Listen("unix", addrs.Notif)
	require.NoError(t, err)
	defer notifLn.Close()
	notifAccepted := make(chan net.Conn, 1)
	go func() {
		conn, aerr := notifLn.Accept()
		require.NoError(t, aerr)
		notifAccepted <- conn
	}()

	var initiatedExitType types.ExitType
	handlers := Handlers{
		OnShutdownInitiated: func(timeoutSeconds int, exitOnComplete bool, exitType types.ExitType) {
			initiatedExitType = exitType
		},
	}
	ch := NewChannel(addrs, 0, handlers)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer ch.Dispatcher.Close()

	done := make(chan error, 1)
	go func() { done <- ch.Serve(ctx) }()

	conn := waitForListen(t, addrs.Remote)
	defer conn.Close()

	body, _ := json.Marshal(shutdownData{State: types.ShutdownInitiated, ExitType: types.NormalExit, Timeout: 5})
	require.NoError(t, writeFrame(conn, mustMarshal(inboundFrame{EventID: string(types.CommandDeviceShutdownNotif), Data: body}), DefaultHighWaterMark))

	select {
	case <-ch.Listener.Ready():
	case <-time.After(time.Second):
		t.Fatal("listener did not signal ready for shutdown")
	}
	assert.Equal(t, types.NormalExit, initiatedExitType)

	notifConn := <-notifAccepted
	reader := newFrameReader(notifConn, DefaultHighWaterMark)
	frame, rerr := reader.ReadFrame()
	require.NoError(t, rerr)

	var envelope struct {
		MessageId string `json:"MessageId"`
	}
	require.NoError(t, json.Unmarshal(frame, &envelope))
	assert.Equal(t, string(types.MessageShutdownNotifAck), envelope.MessageId)

	require.NoError(t, <-done)
}
