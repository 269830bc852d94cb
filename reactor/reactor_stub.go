//go:build !linux && !darwin && !dragonfly && !freebsd && !netbsd && !openbsd

// File: reactor/reactor_stub.go
// License: Apache-2.0
//
// Stub for platforms without a poller backend.

package reactor

import (
	"github.com/ipckit/jsonipc/api"
)

// NewPoller fails on platforms without an epoll/kqueue backend.
func NewPoller() (api.Poller, error) {
	return nil, api.NewError(api.ErrCodeNotSupported, "reactor: this platform is not supported", api.ErrNotSupported)
}
