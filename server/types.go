//go:build unix

package server

import "time"

// Framing selects how inbound bytes are split into requests.
type Framing int

const (
	// FramingNewline treats each newline-terminated line as one request.
	// Bytes after the delimiter stay buffered for the next request.
	FramingNewline Framing = iota

	// FramingSingleRead treats each non-blocking read's worth of bytes as
	// one complete request. Only safe when every request arrives in a
	// single kernel read (small messages over a local socket).
	FramingSingleRead
)

// Config holds server configuration.
type Config struct {
	SocketPath     string        // filesystem address of the listening socket
	ReadBufferSize int           // initial per-connection read buffer capacity
	MaxBatch       int           // readiness events handled per wait cycle
	PollTimeout    time.Duration // wait bound for one cycle of Run
	Framing        Framing
}

const (
	defaultReadBufferSize = 2048
	defaultMaxBatch       = 64
	defaultPollTimeout    = 100 * time.Millisecond
)

// DefaultConfig returns sensible defaults; SocketPath must still be set.
func DefaultConfig() *Config {
	return &Config{
		ReadBufferSize: defaultReadBufferSize,
		MaxBatch:       defaultMaxBatch,
		PollTimeout:    defaultPollTimeout,
		Framing:        FramingNewline,
	}
}
