// ABOUTME: Error taxonomy for the sydney session client.
// ABOUTME: Every exchange failure maps to exactly one of these kinds.

package sydney

import (
	"errors"
	"fmt"
)

// ErrSessionBusy is returned when SendMessage is called while another
// exchange is still in flight on the same session. Exchanges are never
// interleaved on one transport.
var ErrSessionBusy = errors.New("sydney: an exchange is already in flight")

// ErrResponseTimeout is returned when no frame arrives within the response
// timeout of the previous one (or of the handshake send).
var ErrResponseTimeout = errors.New("sydney: no frame received within response timeout")

// errHandleExpired marks a handle past its lifetime. It is an internal
// trigger for transparent re-creation and is never surfaced to callers.
var errHandleExpired = errors.New("sydney: conversation handle expired")

// BackendUnavailableError reports a non-2xx status from the
// conversation-creation endpoint. The body is retained for diagnostics.
type BackendUnavailableError struct {
	StatusCode int
	Body       string
}

func (e *BackendUnavailableError) Error() string {
	return fmt.Sprintf("sydney: conversation creation failed with status %d", e.StatusCode)
}

// TransportError wraps a socket-level failure: dial errors, unexpected
// closes, and write failures mid-exchange.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "sydney: transport: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
