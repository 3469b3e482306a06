package registry

import (
	"encoding/json"

	"github.com/SIA-PC-Consulting/ocpp-virtual-charge-point/ocpp"
	"github.com/SIA-PC-Consulting/ocpp-virtual-charge-point/schema"
)

// Direction distinguishes calls this charge point sends from calls it must
// answer. Definitions come in two closed variants, one per direction, each
// carrying only the operations valid for it.
type Direction string

const (
	Outgoing Direction = "outgoing"
	Incoming Direction = "incoming"
)

// IncomingCall is handed to an inbound handler. Respond and Reject each write
// exactly one reply frame; calling either a second time for the same call is
// a usage error.
type IncomingCall interface {
	// MessageID is the wire id of the Call being answered.
	MessageID() string
	// Action is the OCPP action name of the Call.
	Action() string
	// Payload is the validated request payload, of the definition's request
	// struct type.
	Payload() interface{}
	// Respond validates payload against the definition's response schema and
	// writes a CallResult.
	Respond(payload interface{}) error
	// Reject writes a CallError with the given code and description.
	Reject(code ocpp.ErrorCode, description string, details interface{}) error
}

// Handler answers one inbound Call. Handlers run outside the receive loop and
// may issue further outgoing calls while handling. A handler that returns an
// error without having responded causes an InternalError CallError reply.
type Handler func(call IncomingCall) error

// ResponseHandler observes the validated response payload of an outgoing
// call, after the caller of Send has been resolved.
type ResponseHandler func(payload interface{})

// OutgoingMessage defines a call this charge point sends and awaits a
// response for.
type OutgoingMessage struct {
	Action     string
	Version    ocpp.ProtocolVersion
	Request    *schema.Validator
	Response   *schema.Validator
	OnResponse ResponseHandler
}

// IncomingMessage defines a call the CSMS sends and this charge point must
// answer.
type IncomingMessage struct {
	Action   string
	Version  ocpp.ProtocolVersion
	Request  *schema.Validator
	Response *schema.Validator
	Handler  Handler
}

// RawPayload marks a payload that is already wire JSON and should skip
// marshalling before validation.
type RawPayload = json.RawMessage
