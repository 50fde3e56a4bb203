package chain

import (
	"github.com/pkg/errors"
)

// ErrNotFound means the node does not know the transaction yet. Callers
// retry on the next cycle.
var ErrNotFound = errors.New("not found")

// RPCError is a transient transport or decoding failure.
type RPCError struct {
	Method string
	Err    error
}

func (e *RPCError) Error() string { return "rpc " + e.Method + ": " + e.Err.Error() }

func (e *RPCError) Unwrap() error { return e.Err }

// ConnectionError means a live subscription could not be opened or broke.
// The stream instance is dead once this is returned.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string { return "connection: " + e.Err.Error() }

func (e *ConnectionError) Unwrap() error { return e.Err }

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func IsConnection(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}
