//go:build unix

// File: server/server.go
// License: Apache-2.0
//
// Server facade composing the poller, listener and dispatcher.

package server

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ipckit/jsonipc/api"
	"github.com/ipckit/jsonipc/reactor"
)

// ErrServerClosed is returned by Run and Poll after Close.
var ErrServerClosed = errors.New("jsonipc: server closed")

// Server owns the dispatcher+poller pair outright; Run and Poll are two
// entry points into the same loop. One mutex serializes wait+dispatch
// cycles, so concurrent Run/Poll callers take turns rather than race.
type Server struct {
	mu     sync.Mutex
	cfg    Config
	log    zerolog.Logger
	poller api.Poller
	disp   *dispatcher
	events []api.Event
	closed bool
}

// New binds the socket, registers the listener with a fresh poller, and
// returns a server ready for Run or Poll. Bind and listener registration
// failures are fatal setup errors.
func New(cfg *Config, handler api.Handler, opts ...ServerOption) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.SocketPath == "" {
		return nil, api.NewError(api.ErrCodeSetup, "socket path is required", nil)
	}
	if handler == nil {
		return nil, api.NewError(api.ErrCodeSetup, "handler is required", nil)
	}

	s := &Server{cfg: *cfg, log: zerolog.Nop()}
	for _, o := range opts {
		o(s)
	}
	if s.cfg.ReadBufferSize <= 0 {
		s.cfg.ReadBufferSize = defaultReadBufferSize
	}
	if s.cfg.MaxBatch <= 0 {
		s.cfg.MaxBatch = defaultMaxBatch
	}
	if s.cfg.PollTimeout <= 0 {
		s.cfg.PollTimeout = defaultPollTimeout
	}

	poller, err := reactor.NewPoller()
	if err != nil {
		return nil, api.NewError(api.ErrCodeSetup, "create poller", err)
	}
	ln, err := newListener(s.cfg.SocketPath)
	if err != nil {
		poller.Close()
		return nil, err
	}
	if err := poller.Register(ln.fd, listenerToken, api.Readable|api.Hangup); err != nil {
		ln.Close()
		poller.Close()
		return nil, api.NewError(api.ErrCodeSetup, "register listener", err)
	}

	s.poller = poller
	s.disp = newDispatcher(poller, ln, handler, s.cfg, s.log)
	s.events = make([]api.Event, s.cfg.MaxBatch)
	s.log.Debug().Str("path", s.cfg.SocketPath).Msg("server listening")
	return s, nil
}

// SocketPath returns the filesystem address the server is bound to.
func (s *Server) SocketPath() string { return s.cfg.SocketPath }

// Run drives the event loop on the calling goroutine until Close, then
// returns ErrServerClosed.
func (s *Server) Run() error {
	for {
		if _, err := s.Poll(s.cfg.PollTimeout); err != nil {
			return err
		}
	}
}

// Poll executes exactly one wait+dispatch cycle bounded by timeout and
// reports the number of events handled. A negative timeout blocks until
// events arrive — the cycle holds the server's lock for that long, so a
// concurrent Close waits with it; embedding callers should pass a bound
// the way Run does. Zero sweeps without blocking. Intended to be invoked
// repeatedly from a host application's own scheduling loop.
func (s *Server) Poll(timeout time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrServerClosed
	}

	n, err := s.poller.Wait(s.events, timeout)
	if err != nil {
		if s.closed || errors.Is(err, api.ErrClosed) {
			return 0, ErrServerClosed
		}
		return 0, err
	}
	s.disp.dispatch(s.events[:n])
	return n, nil
}

// Close tears down every connection, releases the listener and its socket
// file, and closes the poller. Safe to call concurrently with Run or Poll;
// idempotent.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	s.disp.closeAll()
	s.poller.Deregister(s.disp.ln.fd)
	err := s.disp.ln.Close()
	if cerr := s.poller.Close(); err == nil {
		err = cerr
	}
	s.log.Debug().Str("path", s.cfg.SocketPath).Msg("server closed")
	return err
}
