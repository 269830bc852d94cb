//go:build darwin || dragonfly || freebsd || netbsd || openbsd

// File: reactor/reactor_bsd.go
// License: Apache-2.0
//
// BSD kqueue(2) poller with EV_CLEAR|EV_ONESHOT semantics.

package reactor

import (
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ipckit/jsonipc/api"
)

type kqueuePoller struct {
	kq     int
	regs   *regTable
	closed atomic.Bool
}

// NewPoller constructs the platform poller for the BSDs.
func NewPoller() (api.Poller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, fmt.Errorf("kqueue: %w", err)
	}
	unix.CloseOnExec(kq)
	return &kqueuePoller{kq: kq, regs: newRegTable()}, nil
}

// changes builds the kevent changelist for an interest set. Both filters
// are always EV_ADDed: the wanted one enabled with clear+oneshot delivery,
// the unwanted one disabled. EV_ADD on an existing filter updates it in
// place, so re-arming never races a filter that one-shot delivery already
// removed.
func changes(fd int, interest api.Interest) []unix.Kevent_t {
	kevs := make([]unix.Kevent_t, 2)
	set := func(kev *unix.Kevent_t, filter int, want bool) {
		flags := unix.EV_ADD | unix.EV_CLEAR | unix.EV_ONESHOT
		if want {
			flags |= unix.EV_ENABLE
		} else {
			flags |= unix.EV_DISABLE
		}
		unix.SetKevent(kev, fd, filter, flags)
	}
	set(&kevs[0], unix.EVFILT_READ, interest.Has(api.Readable))
	set(&kevs[1], unix.EVFILT_WRITE, interest.Has(api.Writable))
	return kevs
}

func (p *kqueuePoller) arm(fd int, interest api.Interest) error {
	if _, err := unix.Kevent(p.kq, changes(fd, interest), nil, nil); err != nil {
		return fmt.Errorf("kevent: %w", err)
	}
	return nil
}

func (p *kqueuePoller) Register(fd int, tok api.Token, interest api.Interest) error {
	if p.closed.Load() {
		return api.ErrClosed
	}
	if err := p.regs.add(fd, tok, interest); err != nil {
		return err
	}
	if err := p.arm(fd, interest); err != nil {
		p.regs.remove(fd)
		return err
	}
	return nil
}

func (p *kqueuePoller) Rearm(fd int, tok api.Token, interest api.Interest) error {
	if p.closed.Load() {
		return api.ErrClosed
	}
	if err := p.regs.set(fd, tok, interest); err != nil {
		return err
	}
	return p.arm(fd, interest)
}

func (p *kqueuePoller) Deregister(fd int) error {
	p.regs.remove(fd)
	kevs := make([]unix.Kevent_t, 2)
	unix.SetKevent(&kevs[0], fd, unix.EVFILT_READ, unix.EV_DELETE)
	unix.SetKevent(&kevs[1], fd, unix.EVFILT_WRITE, unix.EV_DELETE)
	// Filters may already be gone after one-shot delivery; errors here
	// carry no information.
	unix.Kevent(p.kq, kevs, nil, nil)
	return nil
}

func (p *kqueuePoller) Wait(events []api.Event, timeout time.Duration) (int, error) {
	var ts *unix.Timespec
	if timeout >= 0 {
		t := unix.NsecToTimespec(int64(timeout))
		ts = &t
	}
	raw := make([]unix.Kevent_t, len(events))
	n, err := unix.Kevent(p.kq, nil, raw, ts)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		if p.closed.Load() {
			return 0, api.ErrClosed
		}
		return 0, fmt.Errorf("kevent wait: %w", err)
	}

	out := 0
	for i := 0; i < n; i++ {
		kev := &raw[i]
		fd := int(kev.Ident)
		reg, ok := p.regs.get(fd)
		if !ok {
			continue
		}
		var ready api.Interest
		switch kev.Filter {
		case unix.EVFILT_READ:
			ready |= api.Readable
		case unix.EVFILT_WRITE:
			ready |= api.Writable
		}
		if kev.Flags&(unix.EV_EOF|unix.EV_ERROR) != 0 {
			ready |= api.Hangup
		}
		events[out] = api.Event{Token: reg.tok, Ready: ready}
		out++
	}
	return out, nil
}

func (p *kqueuePoller) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return unix.Close(p.kq)
}
