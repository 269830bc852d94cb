//go:build unix

// File: server/dispatcher.go
// License: Apache-2.0
//
// Demultiplexes readiness batches to the listener and live connections.

package server

import (
	"errors"
	"io"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/ipckit/jsonipc/api"
	"github.com/ipckit/jsonipc/slab"
)

// listenerToken is the reserved identity of the listening socket.
// Connection slots are issued from index 1 upward.
var listenerToken = api.Token{Index: 0, Gen: 0}

// initialSlots is the slot capacity reserved before the table grows.
const initialSlots = 8

type dispatcher struct {
	poller  api.Poller
	ln      *listener
	conns   *slab.Slab[*conn]
	handler api.Handler
	cfg     Config
	log     zerolog.Logger
}

func newDispatcher(p api.Poller, ln *listener, h api.Handler, cfg Config, log zerolog.Logger) *dispatcher {
	return &dispatcher{
		poller:  p,
		ln:      ln,
		conns:   slab.New[*conn](1, initialSlots),
		handler: h,
		cfg:     cfg,
		log:     log,
	}
}

// dispatch routes one readiness batch. Events for tokens no longer in the
// slot table are dropped silently: the connection was torn down after the
// batch was collected.
func (d *dispatcher) dispatch(events []api.Event) {
	for _, ev := range events {
		if ev.Token == listenerToken {
			if ev.Ready.Has(api.Readable) {
				d.accept()
			}
			continue
		}

		c, ok := d.conns.Get(ev.Token)
		if !ok {
			continue
		}
		// Readable is served before a coincident hangup so a final
		// request written just before the peer closed still reaches the
		// handler; the read path reports EOF itself.
		var err error
		switch {
		case ev.Ready.Has(api.Readable):
			err = c.OnReadable()
		case ev.Ready.Has(api.Writable):
			err = c.OnWritable()
		case ev.Ready.Has(api.Hangup):
			err = c.OnHangup()
		}
		if err != nil {
			d.teardown(ev.Token, c, err)
		}
	}
}

// accept admits at most one pending connection and always re-arms the
// listener's own one-shot registration.
func (d *dispatcher) accept() {
	defer func() {
		if err := d.poller.Rearm(d.ln.fd, listenerToken, api.Readable|api.Hangup); err != nil {
			d.log.Error().Err(err).Msg("rearm listener")
		}
	}()

	nfd, ok, err := d.ln.Accept()
	if err != nil {
		d.log.Error().Err(err).Msg("accept")
		return
	}
	if !ok {
		// Nothing pending this tick.
		return
	}

	c := newConn(nfd, d.handler, d.cfg.Framing, d.cfg.ReadBufferSize)
	tok := d.conns.Insert(c)
	c.bind(tok, d.poller)
	if err := d.poller.Register(nfd, tok, c.interest); err != nil {
		// Registration failure drops this connection, not the server.
		d.conns.Remove(tok)
		unix.Close(nfd)
		d.log.Error().Err(err).Int("fd", nfd).Msg("register connection")
		return
	}
	d.log.Debug().Int("fd", nfd).Uint32("slot", tok.Index).Msg("connection accepted")
}

// teardown releases a connection: poller registration, slot, socket.
func (d *dispatcher) teardown(tok api.Token, c *conn, cause error) {
	d.poller.Deregister(c.fd)
	d.conns.Remove(tok)
	c.close()
	if cause != nil && !errors.Is(cause, io.EOF) {
		d.log.Warn().Err(cause).Uint32("slot", tok.Index).Msg("connection error")
	} else {
		d.log.Debug().Uint32("slot", tok.Index).Msg("connection closed")
	}
}

// closeAll tears down every live connection. Used during shutdown.
func (d *dispatcher) closeAll() {
	var toks []api.Token
	d.conns.Range(func(tok api.Token, _ *conn) bool {
		toks = append(toks, tok)
		return true
	})
	for _, tok := range toks {
		if c, ok := d.conns.Get(tok); ok {
			d.teardown(tok, c, nil)
		}
	}
}
