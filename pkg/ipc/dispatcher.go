package ipc

import (
	"encoding/json"
	"net"
	"os"
	"sync"
	"time"

	"github.com/cuemby/igniteclient/pkg/log"
	"github.com/cuemby/igniteclient/pkg/metrics"
	"github.com/cuemby/igniteclient/pkg/types"
)

// broadcastKinds are MessageOut kinds dispatched over the PUB-equivalent
// fan-out egress rather than point-to-point: device status and
// connectivity notifications have no single subscriber.
var broadcastKinds = map[types.MessageKind]bool{
	types.MessageIcStatus:             true,
	types.MessageMqttConnectionStatus: true,
}

// pubWarmup is how long the fan-out egress waits after bind before its
// first publish, so slow-joining subscribers don't miss it.
const pubWarmup = 500 * time.Millisecond

// Dispatcher is the egress side of the IPC channel: a synchronous,
// thread-safe dispatch(message_id, payload_json) -> bool. A built-in
// mapping selects a point-to-point connection for request/response and
// single-subscriber messages, and a fan-out listener for broadcast
// notifications, all behind a single mutex.
type Dispatcher struct {
	pushAddr string
	pubAddr  string

	mu          sync.Mutex
	push        net.Conn
	pub         net.Listener
	pubNewConns chan net.Conn
	pubConns    []net.Conn
	pubReady    bool
}

// NewDispatcher builds a Dispatcher that connects its point-to-point leg
// to pushAddr on first use and binds its fan-out leg at pubAddr on first
// broadcast.
func NewDispatcher(pushAddr, pubAddr string) *Dispatcher {
	return &Dispatcher{pushAddr: pushAddr, pubAddr: pubAddr}
}

// Dispatch encodes msg and sends it over the push or pub transport
// depending on Kind, returning false if no receiver is currently
// reachable. It never blocks the caller past one connect/bind attempt.
func (d *Dispatcher) Dispatch(msg types.MessageOut) bool {
	payload, err := json.Marshal(struct {
		MessageId string          `json:"MessageId"`
		Data      json.RawMessage `json:"Data"`
	}{string(msg.Kind), msg.Payload})
	if err != nil {
		log.Errorf("ipc: encode outbound message", err)
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var ok bool
	if broadcastKinds[msg.Kind] {
		ok = d.publishLocked(payload)
	} else {
		ok = d.pushLocked(payload)
	}
	if ok {
		metrics.IPCMessagesTotal.WithLabelValues(string(msg.Kind)).Inc()
	}
	return ok
}

// Send is an alias for Dispatch used by the ingress listener's
// query-reply and shutdown-ack paths.
func (d *Dispatcher) Send(msg types.MessageOut) bool {
	return d.Dispatch(msg)
}

func (d *Dispatcher) pushLocked(payload []byte) bool {
	if d.push == nil {
		conn, err := net.Dial("unix", d.pushAddr)
		if err != nil {
			log.Errorf("ipc: push dial failed", err)
			return false
		}
		d.push = conn
	}
	if err := writeFrame(d.push, payload, DefaultHighWaterMark); err != nil {
		log.Errorf("ipc: push write failed", err)
		d.push.Close()
		d.push = nil
		return false
	}
	return true
}

// publishLocked lazily binds the fan-out listener on first use, waiting
// pubWarmup before the first publish so early subscribers have joined.
func (d *Dispatcher) publishLocked(payload []byte) bool {
	if !d.pubReady {
		if err := d.bindPubLocked(); err != nil {
			log.Errorf("ipc: pub bind failed", err)
			return false
		}
		time.Sleep(pubWarmup)
		d.pubReady = true
	}

	d.acceptPendingPubConnsLocked()

	sent := false
	live := d.pubConns[:0]
	for _, conn := range d.pubConns {
		if err := writeFrame(conn, payload, DefaultHighWaterMark); err != nil {
			conn.Close()
			continue
		}
		live = append(live, conn)
		sent = true
	}
	d.pubConns = live
	return sent
}

func (d *Dispatcher) bindPubLocked() error {
	_ = os.Remove(d.pubAddr)
	ln, err := net.Listen("unix", d.pubAddr)
	if err != nil {
		return err
	}
	d.pub = ln
	d.pubNewConns = make(chan net.Conn, 16)
	go func() {
		for {
			conn, aerr := ln.Accept()
			if aerr != nil {
				return
			}
			d.pubNewConns <- conn
		}
	}()
	return nil
}

func (d *Dispatcher) acceptPendingPubConnsLocked() {
	for {
		select {
		case conn := <-d.pubNewConns:
			d.pubConns = append(d.pubConns, conn)
		default:
			return
		}
	}
}

// Close releases the dispatcher's connections and fan-out listener.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.push != nil {
		d.push.Close()
		d.push = nil
	}
	for _, conn := range d.pubConns {
		conn.Close()
	}
	d.pubConns = nil
	if d.pub != nil {
		d.pub.Close()
		d.pub = nil
	}
}
