package conduit

import (
	"errors"
	"fmt"
)

var (
	// ErrNoConnection is returned by commands that target a connection id
	// that is not registered, or that target every connection while none
	// are registered.
	ErrNoConnection = errors.New("conduit: no connection")

	// ErrGateTimeout is reported when the upgrade gate does not decide within
	// the configured upgrade timeout.
	ErrGateTimeout = errors.New("conduit: upgrade gate timed out")

	// ErrConnectionClosed is returned when writing to a connection whose
	// transport has already been closed.
	ErrConnectionClosed = errors.New("conduit: connection closed")

	// ErrServerClosed is returned by HandleConnection once Shutdown has
	// started.
	ErrServerClosed = errors.New("conduit: server closed")

	errMissingMethod = errors.New("method must be a non-empty string")
)

// ValidationError reports a malformed argument passed to a public operation.
// It is always returned before any state is mutated.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	msg := "conduit: invalid " + e.Field + ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// MalformedMessageError reports an inbound frame that could not be decoded
// into a Message.
type MalformedMessageError struct {
	ConnectionID string
	Raw          []byte
	Err          error
}

func (e *MalformedMessageError) Error() string {
	return "conduit: malformed message: " + e.Err.Error()
}

func (e *MalformedMessageError) Unwrap() error {
	return e.Err
}

// HandlerError wraps a panic raised by middleware or a message handler. The
// panic value is kept in Value, and if it was an error it is also available
// through Unwrap.
type HandlerError struct {
	ConnectionID string
	Method       string
	Value        any
	Stack        string
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("conduit: handler for %q panicked: %v", e.Method, e.Value)
}

func (e *HandlerError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
