//go:build linux

// File: reactor/reactor_linux.go
// License: Apache-2.0
//
// Linux epoll(7) poller with EPOLLET|EPOLLONESHOT semantics.

package reactor

import (
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ipckit/jsonipc/api"
)

type epollPoller struct {
	epfd   int
	regs   *regTable
	closed atomic.Bool
}

// NewPoller constructs the platform poller for Linux.
func NewPoller() (api.Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	return &epollPoller{epfd: epfd, regs: newRegTable()}, nil
}

// epollEvents maps an interest set to epoll flags. Every registration is
// edge-triggered and one-shot; hangup conditions are reported by the kernel
// regardless of the requested set.
func epollEvents(interest api.Interest) uint32 {
	ev := uint32(unix.EPOLLET | unix.EPOLLONESHOT | unix.EPOLLRDHUP)
	if interest.Has(api.Readable) {
		ev |= unix.EPOLLIN
	}
	if interest.Has(api.Writable) {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func (p *epollPoller) Register(fd int, tok api.Token, interest api.Interest) error {
	if p.closed.Load() {
		return api.ErrClosed
	}
	if err := p.regs.add(fd, tok, interest); err != nil {
		return err
	}
	ev := unix.EpollEvent{Events: epollEvents(interest), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		p.regs.remove(fd)
		return fmt.Errorf("epoll ctl add: %w", err)
	}
	return nil
}

func (p *epollPoller) Rearm(fd int, tok api.Token, interest api.Interest) error {
	if p.closed.Load() {
		return api.ErrClosed
	}
	if err := p.regs.set(fd, tok, interest); err != nil {
		return err
	}
	ev := unix.EpollEvent{Events: epollEvents(interest), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl mod: %w", err)
	}
	return nil
}

func (p *epollPoller) Deregister(fd int) error {
	p.regs.remove(fd)
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epoll ctl del: %w", err)
	}
	return nil
}

func (p *epollPoller) Wait(events []api.Event, timeout time.Duration) (int, error) {
	msec := -1
	if timeout >= 0 {
		// Round up so a small positive timeout still blocks instead of
		// truncating to a non-blocking sweep.
		msec = int((timeout + time.Millisecond - 1) / time.Millisecond)
	}
	raw := make([]unix.EpollEvent, len(events))
	n, err := unix.EpollWait(p.epfd, raw, msec)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		if p.closed.Load() {
			return 0, api.ErrClosed
		}
		return 0, fmt.Errorf("epoll wait: %w", err)
	}

	out := 0
	for i := 0; i < n; i++ {
		fd := int(raw[i].Fd)
		reg, ok := p.regs.get(fd)
		if !ok {
			// Deregistered between wait and dispatch.
			continue
		}
		var ready api.Interest
		if raw[i].Events&unix.EPOLLIN != 0 {
			ready |= api.Readable
		}
		if raw[i].Events&unix.EPOLLOUT != 0 {
			ready |= api.Writable
		}
		if raw[i].Events&(unix.EPOLLHUP|unix.EPOLLERR|unix.EPOLLRDHUP) != 0 {
			ready |= api.Hangup
		}
		events[out] = api.Event{Token: reg.tok, Ready: ready}
		out++
	}
	return out, nil
}

func (p *epollPoller) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return unix.Close(p.epfd)
}
