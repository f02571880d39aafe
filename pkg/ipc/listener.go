package ipc

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"time"

	"github.com/cuemby/igniteclient/pkg/log"
	"github.com/cuemby/igniteclient/pkg/metrics"
	"github.com/cuemby/igniteclient/pkg/types"
)

// inboundFrame is the wire shape of a single ingress frame: an event-id
// discriminated envelope — parse the JSON, extract the EventID, dispatch
// on it.
type inboundFrame struct {
	EventID string          `json:"EventID"`
	Data    json.RawMessage `json:"Data"`
}

// shutdownData is the Data payload of a DeviceShutdownNotif frame.
type shutdownData struct {
	State          types.ShutdownState `json:"state"`
	ExitOnComplete bool                `json:"exitOnComplete"`
	ExitType       types.ExitType      `json:"exitType"`
	Timeout        int                 `json:"timeout"`
}

// Handlers is the narrow set of client-core callbacks the ingress listener
// dispatches typed commands to. A nil handler is a no-op, so a test or a
// partially-wired caller can exercise only the commands it cares about.
type Handlers struct {
	OnShutdownPrepare           func(timeoutSeconds int, exitOnComplete bool, exitType types.ExitType)
	OnShutdownInitiated         func(timeoutSeconds int, exitOnComplete bool, exitType types.ExitType)
	OnActivationStatusQuery     func() types.MessageOut
	OnDBSizeQuery               func() types.MessageOut
	OnMQTTConnectionStatusQuery func() types.MessageOut
	OnRemoteOperationResponse   func(payload json.RawMessage)
}

// Listener is the ingress side of the IPC channel: a dedicated goroutine
// accepting frames on a Unix domain socket and dispatching them to
// Handlers.
//
// Serve honors ctx cancellation directly via a select over the reader
// goroutine's channel, so no self-sent sentinel frame is needed to
// unblock the receive loop for shutdown.
type Listener struct {
	addr     string
	hwm      int
	handlers Handlers
	disp     *Dispatcher

	ready chan struct{}
}

// NewListener builds a Listener bound to addr (a filesystem path for a
// Unix domain socket). disp is used to send the replies §4.4 names for
// ActivationStatusQuery, DBSizeQuery, and MQTTConnectionStatusQuery.
func NewListener(addr string, hwm int, handlers Handlers, disp *Dispatcher) *Listener {
	if hwm <= 0 {
		hwm = DefaultHighWaterMark
	}
	return &Listener{addr: addr, hwm: hwm, handlers: handlers, disp: disp, ready: make(chan struct{})}
}

// Ready returns a channel closed once Serve has signaled readiness for
// shutdown, or once Serve returns for any other reason.
func (l *Listener) Ready() <-chan struct{} {
	return l.ready
}

// Serve accepts one connection on the listener's socket and reads frames
// from it until ctx is canceled, the connection fails or closes (the read
// error is returned), or the shutdown-initiated handshake completes. Only
// that first connection is served. It returns after finishing any
// in-flight shutdown handshake.
func (l *Listener) Serve(ctx context.Context) error {
	_ = os.Remove(l.addr)
	ln, err := net.Listen("unix", l.addr)
	if err != nil {
		return err
	}
	defer ln.Close()

	type acceptResult struct {
		conn net.Conn
		err  error
	}
	accepted := make(chan acceptResult, 1)
	go func() {
		conn, aerr := ln.Accept()
		accepted <- acceptResult{conn, aerr}
	}()

	var conn net.Conn
	select {
	case <-ctx.Done():
		close(l.ready)
		return nil
	case res := <-accepted:
		if res.err != nil {
			close(l.ready)
			return res.err
		}
		conn = res.conn
	}
	defer conn.Close()

	reader := newFrameReader(conn, l.hwm)
	frames := make(chan []byte, 1)
	errs := make(chan error, 1)
	go func() {
		for {
			frame, rerr := reader.ReadFrame()
			if rerr != nil {
				errs <- rerr
				return
			}
			frames <- frame
		}
	}()

	for {
		select {
		case <-ctx.Done():
			close(l.ready)
			return nil
		case rerr := <-errs:
			close(l.ready)
			return rerr
		case frame := <-frames:
			if done := l.dispatchFrame(frame); done {
				close(l.ready)
				return nil
			}
		}
	}
}

// dispatchFrame decodes one frame and routes it by event id. It
// returns true once the shutdown-initiated handshake has completed and
// the listener should stop serving.
func (l *Listener) dispatchFrame(frame []byte) bool {
	var in inboundFrame
	if err := json.Unmarshal(frame, &in); err != nil {
		log.Errorf("ipc: malformed inbound frame", err)
		return false
	}

	kind := types.CommandKind(in.EventID)
	metrics.IPCCommandsTotal.WithLabelValues(string(kind)).Inc()

	switch kind {
	case types.CommandDeviceShutdownNotif:
		return l.handleShutdownNotif(in.Data)
	case types.CommandActivationStatusQuery:
		if l.handlers.OnActivationStatusQuery != nil && l.disp != nil {
			l.disp.Send(l.handlers.OnActivationStatusQuery())
		}
	case types.CommandDBSizeQuery:
		if l.handlers.OnDBSizeQuery != nil && l.disp != nil {
			l.disp.Send(l.handlers.OnDBSizeQuery())
		}
	case types.CommandMQTTConnectionStatusQuery:
		if l.handlers.OnMQTTConnectionStatusQuery != nil && l.disp != nil {
			l.disp.Send(l.handlers.OnMQTTConnectionStatusQuery())
		}
	case types.CommandRemoteOperationResponse:
		if l.handlers.OnRemoteOperationResponse != nil {
			l.handlers.OnRemoteOperationResponse(in.Data)
		}
	default:
		log.Info("ipc: unknown inbound event id " + in.EventID)
	}
	return false
}

// handleShutdownNotif decodes a DeviceShutdownNotif's Data field and
// invokes the prepare or initiated callback, branching on Data.state.
func (l *Listener) handleShutdownNotif(data json.RawMessage) bool {
	var sd shutdownData
	if err := json.Unmarshal(data, &sd); err != nil {
		log.Errorf("ipc: malformed shutdown notif", err)
		return false
	}

	if sd.State == types.ShutdownInitiated {
		if l.handlers.OnShutdownInitiated != nil {
			l.handlers.OnShutdownInitiated(sd.Timeout, sd.ExitOnComplete, sd.ExitType)
		}
		if l.disp != nil {
			l.disp.Send(types.MessageOut{
				Kind:    types.MessageShutdownNotifAck,
				Payload: mustMarshal(map[string]any{"acknowledged": true}),
			})
		}
		return true
	}

	if l.handlers.OnShutdownPrepare != nil {
		l.handlers.OnShutdownPrepare(sd.Timeout, sd.ExitOnComplete, sd.ExitType)
	}
	return false
}

// WaitReady blocks until the listener signals readiness for shutdown or
// the grace period elapses.
func (l *Listener) WaitReady(grace time.Duration) bool {
	select {
	case <-l.ready:
		return true
	case <-time.After(grace):
		return false
	}
}

func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return data
}
