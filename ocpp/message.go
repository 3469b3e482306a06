package ocpp

import "encoding/json"

// MessageType is the leading integer tag of every OCPP-J wire frame.
type MessageType int

const (
	CallType       MessageType = 2
	CallResultType MessageType = 3
	CallErrorType  MessageType = 4
)

// Message is one of the three OCPP-J frame kinds. Frames are transient:
// constructed, serialized and discarded per message.
type Message interface {
	MessageID() string
	MessageType() MessageType
}

// Call is a request frame, [2, id, action, payload].
type Call struct {
	ID      string
	Action  string
	Payload json.RawMessage
}

func (c *Call) MessageID() string        { return c.ID }
func (c *Call) MessageType() MessageType { return CallType }

// CallResult is a successful reply frame, [3, id, payload].
type CallResult struct {
	ID      string
	Payload json.RawMessage
}

func (c *CallResult) MessageID() string        { return c.ID }
func (c *CallResult) MessageType() MessageType { return CallResultType }

// CallError is an error reply frame, [4, id, code, description, details].
type CallError struct {
	ID               string
	ErrorCode        ErrorCode
	ErrorDescription string
	ErrorDetails     json.RawMessage
}

func (c *CallError) MessageID() string        { return c.ID }
func (c *CallError) MessageType() MessageType { return CallErrorType }

var (
	_ Message = (*Call)(nil)
	_ Message = (*CallResult)(nil)
	_ Message = (*CallError)(nil)
)
