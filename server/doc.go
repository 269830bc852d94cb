//go:build unix

// Package server implements the readiness-driven IPC transport: a Unix
// domain socket listener, a per-connection buffered I/O state machine, and
// a Server facade offering a blocking Run loop and a cooperative
// Poll(timeout) mode for embedding.
package server
