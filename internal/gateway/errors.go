package gateway

import (
	"errors"
	"fmt"
)

var (
	// ErrMethodNotAllowed rejects any RPC method outside the whitelist.
	ErrMethodNotAllowed = errors.New("method not allowed")
	// ErrInvalidParams indicates params were not a JSON array.
	ErrInvalidParams = errors.New("params must be a JSON array")
)

// UpstreamError wraps an origin failure: transport error, timeout, non-2xx or JSON-RPC error.
type UpstreamError struct {
	Method string
	Err    error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s: %v", e.Method, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }
