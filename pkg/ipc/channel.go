package ipc

import (
	"context"
)

// Addresses names the channel's three (configurable) Unix domain socket
// endpoints: a remote/ingress path
// the host pushes commands to, a point-to-point notification path the
// client pushes single-subscriber replies to, and a fan-out path for
// broadcast notifications.
type Addresses struct {
	Remote string // host -> client commands; the listener's bind address
	Notif  string // client -> host point-to-point replies
	Pub    string // client -> host broadcast notifications
}

// DefaultAddresses returns the conventional socket paths.
func DefaultAddresses() Addresses {
	return Addresses{
		Remote: "/tmp/ipcd_remote.ipc",
		Notif:  "/tmp/ipcd_notif.ipc",
		Pub:    "/tmp/pub_ic.ipc",
	}
}

// Channel wires a Listener and Dispatcher together over one set of
// Addresses, the top-level composition the agent root holds a reference
// to.
type Channel struct {
	Listener   *Listener
	Dispatcher *Dispatcher
}

// NewChannel builds a Channel bound to addrs. hwm of 0 selects
// DefaultHighWaterMark.
func NewChannel(addrs Addresses, hwm int, handlers Handlers) *Channel {
	disp := NewDispatcher(addrs.Notif, addrs.Pub)
	return &Channel{
		Listener:   NewListener(addrs.Remote, hwm, handlers, disp),
		Dispatcher: disp,
	}
}

// Serve runs the ingress listener until ctx is canceled. Call
// c.Dispatcher.Close() after Serve returns to release egress resources.
func (c *Channel) Serve(ctx context.Context) error {
	return c.Listener.Serve(ctx)
}
