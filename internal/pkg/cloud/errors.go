package cloud

import (
	"errors"
	"fmt"
)

var (
	ErrNoHomes       = errors.New("cloud: account has no homes")
	ErrNoSession     = errors.New("cloud: not authenticated")
	ErrNotJSON       = errors.New("cloud: response is not json")
	ErrNotList       = errors.New("cloud: response is not a list")
	ErrEmptyResponse = errors.New("cloud: response is empty")
)

type AuthReason string

const (
	AuthInvalidCredentials AuthReason = "invalid_credentials"
	AuthCannotConnect      AuthReason = "cannot_connect"
)

// AuthError blocks hub startup. Reason tells an operator whether to fix credentials or the network.
type AuthError struct {
	Reason     AuthReason
	StatusCode int
	Err        error
}

func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("cloud: auth %s (status %d): %v", e.Reason, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("cloud: auth %s: %v", e.Reason, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

func IsInvalidCredentials(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae) && ae.Reason == AuthInvalidCredentials
}

// SyncError leaves the registry untouched; the next poll retries.
type SyncError struct {
	StatusCode int
	Err        error
}

func (e *SyncError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("cloud: sync failed (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("cloud: sync failed: %v", e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}
