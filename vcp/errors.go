package vcp

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/SIA-PC-Consulting/ocpp-virtual-charge-point/ocpp"
)

var (
	// ErrNotConnected is returned when Send is invoked outside the Open state.
	ErrNotConnected = errors.New("vcp: not connected")
	// ErrDisconnected settles every pending call when the transport drops or
	// the connection is closed. A new Connect is required; the engine never
	// reconnects on its own.
	ErrDisconnected = errors.New("vcp: disconnected")
	// ErrAnsweredTwice is returned when a handler responds to the same
	// inbound call more than once.
	ErrAnsweredTwice = errors.New("vcp: inbound call already answered")
)

// DuplicateIDError reports an attempt to register a pending call whose id is
// already in flight. The original entry is left untouched.
type DuplicateIDError struct {
	MessageID string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("vcp: message id %q already has a pending call", e.MessageID)
}

// TimeoutError reports that no response arrived within the call deadline.
// Distinct from ProtocolError so callers can decide whether to retry.
type TimeoutError struct {
	Action    string
	MessageID string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("vcp: %s call %s timed out", e.Action, e.MessageID)
}

// ProtocolError is a well-formed CallError received in response to a Send,
// surfaced with the remote's error code and description. Never retried
// automatically.
type ProtocolError struct {
	Action           string
	MessageID        string
	ErrorCode        ocpp.ErrorCode
	ErrorDescription string
	ErrorDetails     json.RawMessage
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("vcp: %s call %s rejected by CSMS: %s (%s)", e.Action, e.MessageID, e.ErrorCode, e.ErrorDescription)
}
