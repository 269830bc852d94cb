// File: client/client.go
// License: Apache-2.0
//
// Blocking request/response client for the IPC socket.

// Package client provides a small synchronous client for the jsonipc
// transport, used by tests and by host applications that only need plain
// call semantics.
package client

import (
	"bufio"
	"bytes"
	"net"
	"time"
)

// Client performs blocking round trips over one IPC connection. Not safe
// for concurrent use; open one client per goroutine.
type Client struct {
	conn    net.Conn
	r       *bufio.Reader
	timeout time.Duration
}

// Option customizes a client.
type Option func(*Client)

// WithTimeout bounds each Call round trip. Zero means no deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// Dial connects to the server's socket path.
func Dial(path string, opts ...Option) (*Client, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, err
	}
	c := &Client{conn: conn, r: bufio.NewReader(conn)}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Call writes one newline-delimited request and reads one newline-delimited
// response, returned without the trailing delimiter.
func (c *Client) Call(req []byte) ([]byte, error) {
	if err := c.send(req); err != nil {
		return nil, err
	}
	line, err := c.r.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	return bytes.TrimRight(line, "\r\n"), nil
}

// CallRaw writes req without a delimiter and returns one read's worth of
// bytes as the reply, for servers running single-read framing. Do not mix
// with Call on the same connection: the two disagree on where a reply
// ends.
func (c *Client) CallRaw(req []byte) ([]byte, error) {
	if err := c.deadline(); err != nil {
		return nil, err
	}
	if _, err := c.conn.Write(req); err != nil {
		return nil, err
	}
	buf := make([]byte, 64*1024)
	n, err := c.r.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// Notify writes one request for which no reply is owed.
func (c *Client) Notify(req []byte) error {
	return c.send(req)
}

func (c *Client) send(req []byte) error {
	if err := c.deadline(); err != nil {
		return err
	}
	buf := make([]byte, 0, len(req)+1)
	buf = append(buf, req...)
	if len(buf) == 0 || buf[len(buf)-1] != '\n' {
		buf = append(buf, '\n')
	}
	_, err := c.conn.Write(buf)
	return err
}

func (c *Client) deadline() error {
	if c.timeout <= 0 {
		return nil
	}
	return c.conn.SetDeadline(time.Now().Add(c.timeout))
}

// Close releases the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
