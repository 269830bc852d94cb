// File: api/poller.go
// License: Apache-2.0
//
// Readiness multiplexer abstraction over the platform notification
// primitive (epoll, kqueue).

package api

import "time"

// Interest is a bit set of event kinds a registration wants notifications
// for.
type Interest uint8

const (
	// Readable requests notification when a read would not block.
	Readable Interest = 1 << iota
	// Writable requests notification when a write would not block.
	Writable
	// Hangup requests notification of peer close or error conditions.
	// Pollers report hangup regardless of whether it was requested.
	Hangup
)

// Has reports whether i contains every bit of x.
func (i Interest) Has(x Interest) bool { return i&x == x }

// Token identifies a registration within one poller's identity space.
// Index selects a slot; Gen disambiguates successive occupants of the same
// slot, so a token held across a remove/insert cycle misses instead of
// aliasing the new occupant.
type Token struct {
	Index uint32
	Gen   uint32
}

// Event is one readiness delivery reported by Poller.Wait.
type Event struct {
	Token Token
	Ready Interest
}

// Poller is the readiness multiplexer. Semantics are edge-triggered and
// one-shot: after a delivery for a registration, that registration is
// disarmed and delivers nothing further until Rearm is called. Rearming
// with a different interest set atomically replaces the previous one.
type Poller interface {
	// Register arms fd under tok with the given interest set.
	Register(fd int, tok Token, interest Interest) error

	// Rearm re-enables delivery for an fd whose one-shot registration has
	// fired, replacing its interest set and token.
	Rearm(fd int, tok Token, interest Interest) error

	// Deregister removes fd from the poller entirely.
	Deregister(fd int) error

	// Wait blocks up to timeout and fills events with ready registrations,
	// returning the count. A negative timeout blocks indefinitely. Timeout
	// expiry and signal interruption both return (0, nil).
	Wait(events []Event, timeout time.Duration) (int, error)

	// Close releases the underlying poller resources.
	Close() error
}
