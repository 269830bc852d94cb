//go:build unix

// File: server/conn.go
// License: Apache-2.0
//
// Per-connection buffered I/O state machine.

package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"golang.org/x/sys/unix"

	"github.com/ipckit/jsonipc/api"
)

// readChunkSize is how much is pulled off the socket per read syscall.
const readChunkSize = 4096

var errInvalidUTF8 = errors.New("request is not valid UTF-8")

type connState uint8

const (
	// stateAwaitingRequest: the read buffer is live, interest is readable.
	stateAwaitingRequest connState = iota
	// stateFlushing: a response is pending, interest is writable. A
	// connection never enters this state without a populated write buffer.
	stateFlushing
	// stateClosed is terminal: socket released, no interest.
	stateClosed
)

// conn owns one socket and exactly one pending buffer at a time: the
// growable read buffer while awaiting a request, or the response with its
// flush cursor while flushing. It implements api.ConnHandler; any error
// returned from a callback tells the dispatcher to tear the connection
// down.
type conn struct {
	fd       int
	tok      api.Token
	poller   api.Poller
	handler  api.Handler
	framing  Framing
	state    connState
	interest api.Interest
	readBuf  []byte
	writeBuf []byte // nil unless state == stateFlushing
	written  int    // bytes of writeBuf already flushed
}

func newConn(fd int, handler api.Handler, framing Framing, bufSize int) *conn {
	return &conn{
		fd:       fd,
		handler:  handler,
		framing:  framing,
		state:    stateAwaitingRequest,
		interest: api.Readable | api.Hangup,
		readBuf:  make([]byte, 0, bufSize),
	}
}

// bind attaches the identity and poller assigned by the dispatcher.
func (c *conn) bind(tok api.Token, p api.Poller) {
	c.tok = tok
	c.poller = p
}

// OnReadable pulls available bytes off the socket and hands every complete
// request to the handler.
func (c *conn) OnReadable() error {
	if c.state != stateAwaitingRequest {
		// Stale readiness from before a state change; the current
		// interest set is still armed or about to be.
		return nil
	}

	var chunk [readChunkSize]byte
	for {
		n, err := unix.Read(c.fd, chunk[:])
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			// Drained without a complete request: stay awaiting.
			if c.frameReady() {
				break
			}
			return c.awaitReadable()
		}
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if n == 0 {
			// Orderly remote close.
			return io.EOF
		}
		c.readBuf = append(c.readBuf, chunk[:n]...)
		if c.frameReady() {
			break
		}
	}
	return c.dispatchPending()
}

// OnWritable continues flushing the pending response.
func (c *conn) OnWritable() error {
	if c.state != stateFlushing {
		return nil
	}
	for c.written < len(c.writeBuf) {
		n, err := unix.Write(c.fd, c.writeBuf[c.written:])
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			// Partial flush: keep the remainder for the next writable.
			return c.awaitWritable()
		}
		if err != nil {
			return fmt.Errorf("write: %w", err)
		}
		c.written += n
	}

	// Fully flushed: the write buffer is consumed and the connection goes
	// back to awaiting a request. Pipelined requests already buffered are
	// served before re-arming readable.
	c.writeBuf = nil
	c.written = 0
	c.state = stateAwaitingRequest
	return c.dispatchPending()
}

// OnHangup reports peer disconnect as EOF so the dispatcher tears down.
func (c *conn) OnHangup() error {
	return io.EOF
}

// frameReady reports whether the read buffer holds at least one complete
// request under the current framing policy.
func (c *conn) frameReady() bool {
	switch c.framing {
	case FramingSingleRead:
		return len(c.readBuf) > 0
	default:
		return bytes.IndexByte(c.readBuf, '\n') >= 0
	}
}

// dispatchPending extracts complete requests from the read buffer and runs
// the handler. A returned payload becomes the write buffer and switches
// interest to writable; with no payload the connection keeps awaiting
// requests. Only called in stateAwaitingRequest.
func (c *conn) dispatchPending() error {
	for {
		msg, ok := c.extract()
		if !ok {
			return c.awaitReadable()
		}
		if len(msg) == 0 {
			continue
		}
		if !utf8.Valid(msg) {
			return errInvalidUTF8
		}
		resp, err := c.handler.Handle(msg)
		if err != nil {
			return fmt.Errorf("handler: %w", err)
		}
		if len(resp) == 0 {
			// No reply owed; look for another buffered request.
			continue
		}
		c.installResponse(resp)
		return c.awaitWritable()
	}
}

// extract consumes one request from the read buffer.
func (c *conn) extract() ([]byte, bool) {
	if c.framing == FramingSingleRead {
		if len(c.readBuf) == 0 {
			return nil, false
		}
		msg := c.readBuf
		c.readBuf = c.readBuf[len(c.readBuf):]
		return msg, true
	}

	i := bytes.IndexByte(c.readBuf, '\n')
	if i < 0 {
		return nil, false
	}
	msg := c.readBuf[:i]
	c.readBuf = c.readBuf[i+1:]
	if n := len(msg); n > 0 && msg[n-1] == '\r' {
		msg = msg[:n-1]
	}
	return msg, true
}

// installResponse copies resp into a fresh write buffer, delimiting it in
// newline mode.
func (c *conn) installResponse(resp []byte) {
	buf := make([]byte, 0, len(resp)+1)
	buf = append(buf, resp...)
	if c.framing == FramingNewline && buf[len(buf)-1] != '\n' {
		buf = append(buf, '\n')
	}
	c.writeBuf = buf
	c.written = 0
	c.state = stateFlushing
}

func (c *conn) awaitReadable() error {
	c.state = stateAwaitingRequest
	c.interest = api.Readable | api.Hangup
	return c.rearm()
}

func (c *conn) awaitWritable() error {
	c.state = stateFlushing
	c.interest = api.Writable | api.Hangup
	return c.rearm()
}

// rearm re-enables one-shot delivery for the current interest set. A
// registration that fired and is not re-armed never delivers again, so a
// rearm failure must surface as a teardown rather than a silent hang.
func (c *conn) rearm() error {
	if err := c.poller.Rearm(c.fd, c.tok, c.interest); err != nil {
		return fmt.Errorf("rearm: %w", err)
	}
	return nil
}

// close releases the socket. Idempotent.
func (c *conn) close() {
	if c.state == stateClosed {
		return
	}
	c.state = stateClosed
	c.interest = 0
	unix.Close(c.fd)
}
