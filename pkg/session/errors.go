package session

import (
	"errors"
	"fmt"
)

// Sentinel errors for the session package.
var (
	// ErrMissingCredential indicates no API credential was provided.
	ErrMissingCredential = errors.New("session: credential is required")

	// ErrInvalidState indicates Connect was called from a state that does
	// not allow it (anything other than Idle, Closed or Failed).
	ErrInvalidState = errors.New("session: connect not valid in current state")

	// ErrNotOpen indicates the session is not open for sending.
	ErrNotOpen = errors.New("session: not open")

	// ErrQueueFull indicates the outbound queue shed the message.
	ErrQueueFull = errors.New("session: outbound queue full")

	// ErrNegotiationTimeout indicates the description exchange did not
	// complete within the negotiation timeout.
	ErrNegotiationTimeout = errors.New("session: negotiation timed out")

	// ErrClosed indicates the session was closed.
	ErrClosed = errors.New("session: closed")
)

// SetupError indicates the credential was absent or rejected by the
// remote endpoint.
type SetupError struct {
	// StatusCode is the HTTP status from the description exchange, if any.
	StatusCode int

	// Message describes the failure.
	Message string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *SetupError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("session: setup failed (HTTP %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("session: setup failed: %s", e.Message)
}

// Unwrap returns the underlying cause.
func (e *SetupError) Unwrap() error {
	return e.Cause
}

// MediaError indicates local audio capture could not be acquired.
type MediaError struct {
	Cause error
}

// Error implements the error interface.
func (e *MediaError) Error() string {
	return fmt.Sprintf("session: media capture failed: %v", e.Cause)
}

// Unwrap returns the underlying cause.
func (e *MediaError) Unwrap() error {
	return e.Cause
}

// ChannelError indicates a transport-level failure after establishment.
type ChannelError struct {
	// Reason describes what failed.
	Reason string

	// Cause is the underlying error.
	Cause error

	// Retryable indicates whether reconnection should be attempted.
	Retryable bool
}

// Error implements the error interface.
func (e *ChannelError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("session: channel error: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("session: channel error: %s", e.Reason)
}

// Unwrap returns the underlying cause.
func (e *ChannelError) Unwrap() error {
	return e.Cause
}

// IsRetryable returns true if reconnection should be attempted.
func (e *ChannelError) IsRetryable() bool {
	return e.Retryable
}

// NewChannelError creates a new ChannelError.
func NewChannelError(reason string, cause error, retryable bool) *ChannelError {
	return &ChannelError{Reason: reason, Cause: cause, Retryable: retryable}
}

// Error checking helpers.

// IsSetup returns true if the error indicates a credential problem.
func IsSetup(err error) bool {
	var se *SetupError
	return errors.As(err, &se) || errors.Is(err, ErrMissingCredential)
}

// IsMedia returns true if the error indicates a capture problem.
func IsMedia(err error) bool {
	var me *MediaError
	return errors.As(err, &me)
}

// IsRetryable returns true if the session should attempt reconnection
// for this error. Setup and media failures need operator action first.
func IsRetryable(err error) bool {
	var ce *ChannelError
	if errors.As(err, &ce) {
		return ce.IsRetryable()
	}
	return errors.Is(err, ErrNegotiationTimeout)
}
