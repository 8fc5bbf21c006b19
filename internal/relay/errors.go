package relay

import (
	"errors"
	"fmt"
)

var (
	// ErrCancelled is the terminal error of a session whose caller went away.
	ErrCancelled = errors.New("relay: cancelled")
	// ErrIdleTimeout marks a session whose upstream stayed silent too long.
	ErrIdleTimeout = errors.New("relay: upstream idle timeout")
)

// TransportError reports a failure talking to the upstream API. Op is one of
// "open", "read" or "stream".
type TransportError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	msg := "upstream " + e.Op
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" status %d", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransportError) Unwrap() error { return e.Err }
