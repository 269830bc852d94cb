//go:build unix

// File: server/options.go
// License: Apache-2.0
//
// Functional options for the Server facade.

package server

import (
	"time"

	"github.com/rs/zerolog"
)

// ServerOption customizes server initialization.
type ServerOption func(*Server)

// WithLogger attaches a structured logger. The default logger is disabled.
func WithLogger(log zerolog.Logger) ServerOption {
	return func(s *Server) {
		s.log = log
	}
}

// WithFraming overrides the request framing policy.
func WithFraming(f Framing) ServerOption {
	return func(s *Server) {
		s.cfg.Framing = f
	}
}

// WithReadBufferSize sets the initial per-connection read buffer capacity.
func WithReadBufferSize(n int) ServerOption {
	return func(s *Server) {
		s.cfg.ReadBufferSize = n
	}
}

// WithMaxBatch sets the number of readiness events handled per wait cycle.
func WithMaxBatch(n int) ServerOption {
	return func(s *Server) {
		s.cfg.MaxBatch = n
	}
}

// WithPollTimeout bounds each wait cycle of Run.
func WithPollTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		s.cfg.PollTimeout = d
	}
}
