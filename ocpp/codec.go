package ocpp

import (
	"encoding/json"
	"fmt"
)

// DecodeError reports a wire frame that does not match any of the three
// OCPP-J shapes. The frame is unusable; decoding never yields a partially
// populated message.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("ocpp: cannot decode frame: %s", e.Reason)
}

var emptyPayload = json.RawMessage("{}")

// Marshal encodes a message into its wire array form.
func Marshal(msg Message) ([]byte, error) {
	var fields []interface{}
	switch m := msg.(type) {
	case *Call:
		fields = []interface{}{CallType, m.ID, m.Action, orEmpty(m.Payload)}
	case *CallResult:
		fields = []interface{}{CallResultType, m.ID, orEmpty(m.Payload)}
	case *CallError:
		fields = []interface{}{CallErrorType, m.ID, m.ErrorCode, m.ErrorDescription, orEmpty(m.ErrorDetails)}
	default:
		return nil, fmt.Errorf("ocpp: unknown message type %T", msg)
	}
	return json.Marshal(fields)
}

// Unmarshal decodes a wire frame. A tag or arity mismatch yields a
// *DecodeError.
func Unmarshal(data []byte) (Message, error) {
	var fields []json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, &DecodeError{Reason: fmt.Sprintf("not a JSON array: %v", err)}
	}
	if len(fields) < 3 {
		return nil, &DecodeError{Reason: fmt.Sprintf("array too short (%d elements)", len(fields))}
	}

	var tag MessageType
	if err := json.Unmarshal(fields[0], &tag); err != nil {
		return nil, &DecodeError{Reason: "message type tag is not an integer"}
	}
	var id string
	if err := json.Unmarshal(fields[1], &id); err != nil {
		return nil, &DecodeError{Reason: "message id is not a string"}
	}

	switch tag {
	case CallType:
		if len(fields) != 4 {
			return nil, &DecodeError{Reason: fmt.Sprintf("Call frame has %d elements, want 4", len(fields))}
		}
		var action string
		if err := json.Unmarshal(fields[2], &action); err != nil {
			return nil, &DecodeError{Reason: "Call action is not a string"}
		}
		return &Call{ID: id, Action: action, Payload: fields[3]}, nil
	case CallResultType:
		if len(fields) != 3 {
			return nil, &DecodeError{Reason: fmt.Sprintf("CallResult frame has %d elements, want 3", len(fields))}
		}
		return &CallResult{ID: id, Payload: fields[2]}, nil
	case CallErrorType:
		if len(fields) != 5 {
			return nil, &DecodeError{Reason: fmt.Sprintf("CallError frame has %d elements, want 5", len(fields))}
		}
		var code ErrorCode
		if err := json.Unmarshal(fields[2], &code); err != nil {
			return nil, &DecodeError{Reason: "CallError code is not a string"}
		}
		var description string
		if err := json.Unmarshal(fields[3], &description); err != nil {
			return nil, &DecodeError{Reason: "CallError description is not a string"}
		}
		return &CallError{ID: id, ErrorCode: code, ErrorDescription: description, ErrorDetails: fields[4]}, nil
	default:
		return nil, &DecodeError{Reason: fmt.Sprintf("unknown message type tag %d", tag)}
	}
}

func orEmpty(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return emptyPayload
	}
	return raw
}
