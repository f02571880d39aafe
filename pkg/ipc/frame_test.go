package ipc

import (
	"net"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unixPipe(t *testing.T) (server, client net.Conn) {
	t.Helper()
	addr := filepath.Join(t.TempDir(), "frame.sock")
	ln, err := net.Listen("unix", addr)
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, aerr := ln.Accept()
		require.NoError(t, aerr)
		accepted <- conn
	}()

	client, err = net.Dial("unix", addr)
	require.NoError(t, err)
	server = <-accepted
	return server, client
}

func TestWriteFrameReadFrameRoundTrip(t *testing.T) {
	server, client := unixPipe(t)
	defer server.Close()
	defer client.Close()

	require.NoError(t, writeFrame(client, []byte(`{"hello":"world"}`), DefaultHighWaterMark))

	r := newFrameReader(server, DefaultHighWaterMark)
	frame, err := r.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, `{"hello":"world"}`, string(frame))
}

func TestWriteFrameRejectsOversizedPayload(t *testing.T) {
	server, client := unixPipe(t)
	defer server.Close()
	defer client.Close()

	err := writeFrame(client, make([]byte, 16), 8)
	require.Error(t, err)
}

func TestReadFrameReturnsErrorOnClose(t *testing.T) {
	server, client := unixPipe(t)
	defer server.Close()

	client.Close()

	r := newFrameReader(server, DefaultHighWaterMark)
	_, err := r.ReadFrame()
	assert.Error(t, err)
}
