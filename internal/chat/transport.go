// Package chat provides the transport helpers that move protocol lines
// over a possibly-partial-write byte channel.
package chat

import (
	"bufio"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"syscall"
)

// ErrConnClosed reports that the peer is gone: a zero-length write or
// an unretryable I/O failure. Callers treat it as a dead connection.
var ErrConnClosed = errors.New("chat: connection closed")

// Transport is the byte channel a session runs over. TCP sockets and
// WebSocket connections both satisfy it, so every client kind runs the
// same session machine.
type Transport interface {
	// ReadLine blocks until the next logical line arrives, with
	// trailing line-ending characters stripped.
	ReadLine() (string, error)
	// WriteString sends the full string. No newline is appended;
	// callers are responsible for framing.
	WriteString(s string) error
	Close() error
	RemoteAddr() string
}

// SendAll writes the whole buffer, looping over partial writes.
// Interrupted-syscall failures retry the remaining bytes without data
// loss; anything else maps to ErrConnClosed and the rest of the buffer
// is abandoned.
func SendAll(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if n > 0 {
			p = p[n:]
			continue
		}
		if err != nil {
			if errors.Is(err, syscall.EINTR) {
				continue
			}
			return ErrConnClosed
		}
		// A zero-length write with no error means the peer is gone.
		return ErrConnClosed
	}
	return nil
}

// connTransport adapts a stream connection to the Transport interface.
// Reads are line-buffered; writes are serialized so broadcast lines
// from other sessions' goroutines never interleave mid-line.
type connTransport struct {
	conn    net.Conn
	scanner *bufio.Scanner
	writeMu sync.Mutex
}

// NewConnTransport wraps a stream connection. maxLine bounds the length
// of a single line; a peer exceeding it fails its next read and the
// owning session tears down.
func NewConnTransport(conn net.Conn, maxLine int) Transport {
	scanner := bufio.NewScanner(conn)
	if maxLine > 0 {
		// The scanner's limit is the larger of max and the initial
		// buffer capacity, so keep the buffer within the bound.
		bufSize := 256
		if maxLine < bufSize {
			bufSize = maxLine
		}
		scanner.Buffer(make([]byte, 0, bufSize), maxLine)
	}
	return &connTransport{conn: conn, scanner: scanner}
}

func (t *connTransport) ReadLine() (string, error) {
	if !t.scanner.Scan() {
		if err := t.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimRight(t.scanner.Text(), "\r"), nil
}

func (t *connTransport) WriteString(s string) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return SendAll(t.conn, []byte(s))
}

func (t *connTransport) Close() error {
	return t.conn.Close()
}

func (t *connTransport) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}
