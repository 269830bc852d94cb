//go:build unix

// File: server/listener.go
// License: Apache-2.0
//
// Non-blocking Unix domain socket listener.

package server

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"golang.org/x/sys/unix"

	"github.com/ipckit/jsonipc/api"
)

const listenBacklog = 128

type listener struct {
	fd   int
	path string
}

// newListener binds a non-blocking stream socket at path. A stale socket
// file left by a previous process is removed first; only its nonexistence
// is tolerated as a removal failure.
func newListener(path string) (*listener, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, api.NewError(api.ErrCodeSetup, "remove stale socket", err)
	}

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, api.NewError(api.ErrCodeSetup, "socket", err)
	}
	unix.CloseOnExec(fd)
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, api.NewError(api.ErrCodeSetup, "set nonblock", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		unix.Close(fd)
		return nil, api.NewError(api.ErrCodeSetup, fmt.Sprintf("bind %s", path), err)
	}
	if err := unix.Listen(fd, listenBacklog); err != nil {
		unix.Close(fd)
		return nil, api.NewError(api.ErrCodeSetup, fmt.Sprintf("listen %s", path), err)
	}
	return &listener{fd: fd, path: path}, nil
}

// Accept returns the next pending connection as a non-blocking fd. The
// second result is false when no connection is pending, which is not an
// error.
func (l *listener) Accept() (int, bool, error) {
	for {
		nfd, _, err := unix.Accept(l.fd)
		switch err {
		case nil:
			unix.CloseOnExec(nfd)
			if err := unix.SetNonblock(nfd, true); err != nil {
				unix.Close(nfd)
				return 0, false, fmt.Errorf("set nonblock: %w", err)
			}
			return nfd, true, nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			return 0, false, nil
		default:
			return 0, false, fmt.Errorf("accept: %w", err)
		}
	}
}

// Close releases the socket and removes its filesystem address.
func (l *listener) Close() error {
	err := unix.Close(l.fd)
	os.Remove(l.path)
	return err
}
