package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies signaling failures. The kind is returned to the peer
// verbatim in the error payload of the offending request.
type ErrorKind string

const (
	KindSessionNotFound          ErrorKind = "SessionNotFound"
	KindInvalidState             ErrorKind = "InvalidState"
	KindIncompatibleCapabilities ErrorKind = "IncompatibleCapabilities"
	KindProducerNotFound         ErrorKind = "ProducerNotFound"
	KindConsumerNotFound         ErrorKind = "ConsumerNotFound"
	KindEngineAllocation         ErrorKind = "EngineAllocationError"
)

// Error is a structured signaling error. Engine failures are translated into
// one of the kinds above at the manager boundary; they never tear a session
// down.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the ErrorKind from err, or KindEngineAllocation for
// untyped errors (anything untyped came out of the engine).
func KindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindEngineAllocation
}
