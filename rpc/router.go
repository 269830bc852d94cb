// File: rpc/router.go
// License: Apache-2.0
//
// Minimal JSON-RPC 2.0 method registry.

// Package rpc implements a JSON-RPC 2.0 request handler suitable as the
// transport's api.Handler: a registry of named methods, protocol error
// responses, notification and batch support.
package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// Version is the protocol version accepted and emitted.
const Version = "2.0"

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Error is a JSON-RPC error object. Methods may return *Error to control
// the code sent to the client; any other error maps to CodeInternalError.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Method handles the params of one call and returns its result.
type Method func(params json.RawMessage) (any, error)

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

// response carries Result pre-marshaled so a successful call always emits
// a result member (null included), while error responses omit it.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

// Router dispatches JSON-RPC requests to registered methods. Safe for
// concurrent registration; Handle itself is always called from the
// transport's single event-processing goroutine.
type Router struct {
	mu      sync.RWMutex
	methods map[string]Method
}

// NewRouter returns an empty method registry.
func NewRouter() *Router {
	return &Router{methods: make(map[string]Method)}
}

// RegisterMethod binds name to m, replacing any previous binding.
func (r *Router) RegisterMethod(name string, m Method) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.methods[name] = m
}

// Handle implements api.Handler. Protocol failures become JSON-RPC error
// responses rather than Go errors; a nil payload is returned for
// notifications, which owe no reply.
func (r *Router) Handle(req []byte) ([]byte, error) {
	req = bytes.TrimSpace(req)
	if len(req) > 0 && req[0] == '[' {
		return r.handleBatch(req)
	}

	var parsed request
	if err := json.Unmarshal(req, &parsed); err != nil {
		return marshalResponse(errorResponse(nil, CodeParseError, "parse error"))
	}
	resp := r.call(&parsed)
	if resp == nil {
		return nil, nil
	}
	return marshalResponse(resp)
}

func (r *Router) handleBatch(req []byte) ([]byte, error) {
	var calls []json.RawMessage
	if err := json.Unmarshal(req, &calls); err != nil {
		return marshalResponse(errorResponse(nil, CodeParseError, "parse error"))
	}
	if len(calls) == 0 {
		return marshalResponse(errorResponse(nil, CodeInvalidRequest, "empty batch"))
	}

	responses := make([]*response, 0, len(calls))
	for _, raw := range calls {
		var parsed request
		if err := json.Unmarshal(raw, &parsed); err != nil {
			responses = append(responses, errorResponse(nil, CodeInvalidRequest, "invalid request"))
			continue
		}
		if resp := r.call(&parsed); resp != nil {
			responses = append(responses, resp)
		}
	}
	if len(responses) == 0 {
		// A batch of notifications owes no reply.
		return nil, nil
	}
	out, err := json.Marshal(responses)
	if err != nil {
		return nil, fmt.Errorf("marshal batch response: %w", err)
	}
	return out, nil
}

// call runs one parsed request; nil means the request was a notification.
func (r *Router) call(req *request) *response {
	notification := req.ID == nil
	if req.JSONRPC != Version || req.Method == "" {
		if notification {
			return nil
		}
		return errorResponse(req.ID, CodeInvalidRequest, "invalid request")
	}

	r.mu.RLock()
	m, ok := r.methods[req.Method]
	r.mu.RUnlock()
	if !ok {
		if notification {
			return nil
		}
		return errorResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}

	result, err := m(req.Params)
	if notification {
		return nil
	}
	if err != nil {
		var rpcErr *Error
		if errors.As(err, &rpcErr) {
			return &response{JSONRPC: Version, Error: rpcErr, ID: req.ID}
		}
		return errorResponse(req.ID, CodeInternalError, err.Error())
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return errorResponse(req.ID, CodeInternalError, fmt.Sprintf("marshal result: %v", err))
	}
	return &response{JSONRPC: Version, Result: raw, ID: req.ID}
}

func errorResponse(id json.RawMessage, code int, message string) *response {
	return &response{
		JSONRPC: Version,
		Error:   &Error{Code: code, Message: message},
		ID:      id,
	}
}

func marshalResponse(resp *response) ([]byte, error) {
	out, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("marshal response: %w", err)
	}
	return out, nil
}
