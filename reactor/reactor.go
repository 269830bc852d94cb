// File: reactor/reactor.go
// License: Apache-2.0
//
// Platform-neutral registration book-keeping shared by the poller backends.

// Package reactor provides edge-triggered one-shot implementations of
// api.Poller: epoll on Linux and kqueue on the BSDs. Unsupported platforms
// get a constructor that fails.
package reactor

import (
	"sync"

	"github.com/ipckit/jsonipc/api"
)

type registration struct {
	tok      api.Token
	interest api.Interest
}

// regTable tracks fd -> registration for one poller instance. The kernel
// reports readiness by fd; the table resolves it back to the caller's
// token.
type regTable struct {
	mu   sync.Mutex
	regs map[int]registration
}

func newRegTable() *regTable {
	return &regTable{regs: make(map[int]registration)}
}

func (t *regTable) add(fd int, tok api.Token, interest api.Interest) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.regs[fd]; ok {
		return api.ErrAlreadyRegistered
	}
	t.regs[fd] = registration{tok: tok, interest: interest}
	return nil
}

func (t *regTable) set(fd int, tok api.Token, interest api.Interest) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.regs[fd]; !ok {
		return api.ErrNotRegistered
	}
	t.regs[fd] = registration{tok: tok, interest: interest}
	return nil
}

func (t *regTable) remove(fd int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.regs, fd)
}

func (t *regTable) get(fd int) (registration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.regs[fd]
	return r, ok
}
