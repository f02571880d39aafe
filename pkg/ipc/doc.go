// Package ipc implements the local command channel between the host and
// the client: a framed, asynchronous transport carrying typed Command
// messages in from the host and typed MessageOut responses/notifications
// back out, with an orderly shutdown handshake.
//
// The channel follows a three-address, two-direction shape (a
// PULL-equivalent ingress listener, a PUSH-equivalent point-to-point
// egress, and a PUB-equivalent broadcast egress) carried over Unix domain
// sockets using net.Conn and bufio.Scanner, each frame a UTF-8 JSON
// document terminated by a newline delimiter.
package ipc
