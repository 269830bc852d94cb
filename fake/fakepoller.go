// File: fake/fakepoller.go
// License: Apache-2.0
//
// Scripted poller for exercising the transport without a kernel.

// Package fake provides test doubles for the jsonipc interfaces.
package fake

import (
	"sync"
	"time"

	"github.com/eapache/queue"

	"github.com/ipckit/jsonipc/api"
)

type registration struct {
	tok      api.Token
	interest api.Interest
	armed    bool
}

type injected struct {
	fd    int
	ready api.Interest
}

// Poller is an api.Poller whose readiness events are injected by the test.
// It honors the edge-triggered one-shot contract: an injected event is
// delivered at most once per arm, and a disarmed registration delivers
// nothing until Rearm.
type Poller struct {
	mu      sync.Mutex
	regs    map[int]*registration
	pending *queue.Queue
	closed  bool
}

// NewPoller returns an empty fake poller.
func NewPoller() *Poller {
	return &Poller{
		regs:    make(map[int]*registration),
		pending: queue.New(),
	}
}

// AddReady queues a readiness condition for fd. It stays queued until the
// registration is armed for an overlapping interest.
func (p *Poller) AddReady(fd int, ready api.Interest) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending.Add(injected{fd: fd, ready: ready})
}

// Armed reports the interest fd is currently armed for. The second result
// is false when fd is unregistered or its one-shot has fired.
func (p *Poller) Armed(fd int) (api.Interest, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.regs[fd]
	if !ok || !r.armed {
		return 0, false
	}
	return r.interest, true
}

// Registered reports the token fd was last registered or re-armed under.
func (p *Poller) Registered(fd int) (api.Token, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.regs[fd]
	if !ok {
		return api.Token{}, false
	}
	return r.tok, true
}

func (p *Poller) Register(fd int, tok api.Token, interest api.Interest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return api.ErrClosed
	}
	if _, ok := p.regs[fd]; ok {
		return api.ErrAlreadyRegistered
	}
	p.regs[fd] = &registration{tok: tok, interest: interest, armed: true}
	return nil
}

func (p *Poller) Rearm(fd int, tok api.Token, interest api.Interest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return api.ErrClosed
	}
	r, ok := p.regs[fd]
	if !ok {
		return api.ErrNotRegistered
	}
	r.tok = tok
	r.interest = interest
	r.armed = true
	return nil
}

func (p *Poller) Deregister(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.regs[fd]; !ok {
		return api.ErrNotRegistered
	}
	delete(p.regs, fd)
	return nil
}

// Wait never blocks; the timeout is ignored. Queued events whose
// registration is armed for an overlapping interest are delivered and
// disarm it; the rest stay queued.
func (p *Poller) Wait(events []api.Event, _ time.Duration) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, api.ErrClosed
	}

	out := 0
	for n := p.pending.Length(); n > 0 && out < len(events); n-- {
		in := p.pending.Remove().(injected)
		r, ok := p.regs[in.fd]
		if !ok {
			// Stale event for a deregistered fd: dropped.
			continue
		}
		mask := r.interest | api.Hangup
		if !r.armed || in.ready&mask == 0 {
			p.pending.Add(in)
			continue
		}
		r.armed = false
		events[out] = api.Event{Token: r.tok, Ready: in.ready & mask}
		out++
	}
	return out, nil
}

func (p *Poller) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
