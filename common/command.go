// Package common holds the envelopes exchanged with local test tooling over
// the admin channels (WebSocket and NATS).
package common

import "encoding/json"

// Command asks the virtual charge point to fire one outgoing call on the
// live CSMS session. MessageID goes on the wire as the OCPP message id.
type Command struct {
	Action    string          `json:"action" validate:"required"`
	MessageID string          `json:"messageId" validate:"required"`
	Payload   json.RawMessage `json:"payload"`
}

// Error is a machine-readable command failure.
type Error struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// Response acknowledges a Command with either the validated CSMS response
// payload or an error. Never both.
type Response struct {
	MessageID string      `json:"messageId,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
	Err       *Error      `json:"error,omitempty"`
}

// Command failure codes reported to admin callers.
const (
	ErrCodeInvalidCommand   = "command.format.not.valid"
	ErrCodeActionNotFound   = "command.action.not.found"
	ErrCodeInvalidPayload   = "command.payload.not.valid"
	ErrCodeNotConnected     = "vcp.not.connected"
	ErrCodeDuplicateID      = "command.duplicate.message.id"
	ErrCodeRequestTimeout   = "request.timeout"
	ErrCodeCallRejected     = "command.rejected"
	ErrCodeInternal         = "command.internal.error"
)
