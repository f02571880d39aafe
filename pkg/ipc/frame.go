package ipc

import (
	"bufio"
	"fmt"
	"net"
)

// frameDelimiter terminates each frame's JSON document on the wire.
const frameDelimiter = '\n'

// DefaultHighWaterMark bounds a single frame's size; payloads larger than
// this are rejected locally rather than fragmented.
const DefaultHighWaterMark = 1 << 20 // 1 MiB

// frameReader wraps a bufio.Scanner configured to split on frameDelimiter
// with a bounded token size, so an oversized frame fails locally instead
// of blocking the reader indefinitely.
type frameReader struct {
	scanner *bufio.Scanner
}

func newFrameReader(conn net.Conn, hwm int) *frameReader {
	s := bufio.NewScanner(conn)
	s.Buffer(make([]byte, 0, 4096), hwm)
	s.Split(splitOnDelimiter)
	return &frameReader{scanner: s}
}

// ReadFrame blocks until the next complete frame arrives, the connection
// closes, or a frame exceeds the high-water mark.
func (r *frameReader) ReadFrame() ([]byte, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return nil, fmt.Errorf("read frame: %w", err)
		}
		return nil, errConnectionClosed
	}
	return r.scanner.Bytes(), nil
}

func splitOnDelimiter(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i, b := range data {
		if b == frameDelimiter {
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// writeFrame writes one JSON payload to conn, appending the frame
// delimiter. Rejects payloads over hwm bytes rather than fragmenting them.
func writeFrame(conn net.Conn, payload []byte, hwm int) error {
	if len(payload) > hwm {
		return fmt.Errorf("frame of %d bytes exceeds high-water mark %d", len(payload), hwm)
	}
	framed := make([]byte, 0, len(payload)+1)
	framed = append(framed, payload...)
	framed = append(framed, frameDelimiter)
	_, err := conn.Write(framed)
	return err
}

var errConnectionClosed = fmt.Errorf("ipc: connection closed")
