package codec

import (
	"errors"
	"fmt"
)

var ErrInvalidKey = errors.New("codec: aes key must be 32 hex characters")

type Reason string

const (
	ReasonEmpty             Reason = "empty"
	ReasonInvalidCiphertext Reason = "invalid_ciphertext"
	ReasonNoJSONStart       Reason = "no_json_start"
	ReasonMalformedJSON     Reason = "malformed_json"
)

// DecodeError reports why a cloud blob could not be turned into JSON.
// It is never fatal to a sync; callers skip the blob and fall back to defaults.
type DecodeError struct {
	Reason Reason
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("codec: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("codec: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsReason reports whether err is a DecodeError with the given reason.
func IsReason(err error, reason Reason) bool {
	var de *DecodeError
	return errors.As(err, &de) && de.Reason == reason
}
