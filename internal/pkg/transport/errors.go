package transport

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidMAC      = errors.New("transport: mac must be 12 hex characters")
	ErrUnknownMapper   = errors.New("transport: unknown id mapping strategy")
	ErrGatewayNotFound = errors.New("transport: no gateway answered discovery")
)

// TransportError means a command could not be confirmed as sent. It is never fatal.
type TransportError struct {
	Attempt int
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: attempt %d: %v", e.Attempt, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
