// File: api/handler.go
// License: Apache-2.0
//
// Request handler contract consumed by the transport.

package api

// Handler processes one inbound request payload and produces an optional
// response. A (nil, nil) return means no reply is owed for this request and
// the connection keeps awaiting the next one.
//
// Handle is always invoked from the single event-processing goroutine; it
// must not block, or it stalls every connection on the loop. The request
// slice is only valid for the duration of the call.
type Handler interface {
	Handle(req []byte) ([]byte, error)
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(req []byte) ([]byte, error)

// Handle calls f(req).
func (f HandlerFunc) Handle(req []byte) ([]byte, error) { return f(req) }

// ConnHandler receives per-capability readiness callbacks for one
// connection. A non-nil error return (io.EOF included) tells the dispatcher
// to tear the connection down; no further callbacks are delivered after
// that.
type ConnHandler interface {
	OnReadable() error
	OnWritable() error
	OnHangup() error
}
