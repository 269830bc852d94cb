// Package api defines the contracts shared across the jsonipc transport:
// the request handler consumed by the server, the readiness poller
// abstraction, and the event/interest/token types flowing between them.
package api
