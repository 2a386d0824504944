package dispatch

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by SubmitRequest after the manager shut down.
var ErrClosed = errors.New("dispatch: manager closed")

// InvalidRequestError is returned when a ride request is missing its pickup
// or dropoff location. No state changes on this error.
type InvalidRequestError struct {
	Field string
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid ride request: %s must not be empty", e.Field)
}
