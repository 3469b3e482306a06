package ocpp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCall(t *testing.T) {
	data, err := Marshal(&Call{
		ID:      "19223201",
		Action:  "BootNotification",
		Payload: json.RawMessage(`{"chargePointVendor":"VendorX","chargePointModel":"SingleSocketCharger"}`),
	})
	require.NoError(t, err)
	assert.JSONEq(t,
		`[2,"19223201","BootNotification",{"chargePointVendor":"VendorX","chargePointModel":"SingleSocketCharger"}]`,
		string(data))
}

func TestMarshalCallResult(t *testing.T) {
	data, err := Marshal(&CallResult{ID: "19223201", Payload: json.RawMessage(`{"status":"Accepted"}`)})
	require.NoError(t, err)
	assert.JSONEq(t, `[3,"19223201",{"status":"Accepted"}]`, string(data))
}

func TestMarshalCallError(t *testing.T) {
	data, err := Marshal(&CallError{ID: "19223201", ErrorCode: NotImplemented, ErrorDescription: "no such action"})
	require.NoError(t, err)
	assert.JSONEq(t, `[4,"19223201","NotImplemented","no such action",{}]`, string(data))
}

func TestMarshalEmptyPayload(t *testing.T) {
	data, err := Marshal(&Call{ID: "1", Action: "Heartbeat"})
	require.NoError(t, err)
	assert.JSONEq(t, `[2,"1","Heartbeat",{}]`, string(data))
}

func TestUnmarshalCall(t *testing.T) {
	msg, err := Unmarshal([]byte(`[2,"19223201","BootNotification",{"chargePointVendor":"VendorX"}]`))
	require.NoError(t, err)

	call, ok := msg.(*Call)
	require.True(t, ok)
	assert.Equal(t, "19223201", call.MessageID())
	assert.Equal(t, CallType, call.MessageType())
	assert.Equal(t, "BootNotification", call.Action)
	assert.JSONEq(t, `{"chargePointVendor":"VendorX"}`, string(call.Payload))
}

func TestUnmarshalCallResult(t *testing.T) {
	msg, err := Unmarshal([]byte(`[3,"19223201",{"currentTime":"2023-06-01T10:00:00Z"}]`))
	require.NoError(t, err)

	result, ok := msg.(*CallResult)
	require.True(t, ok)
	assert.Equal(t, "19223201", result.MessageID())
	assert.Equal(t, CallResultType, result.MessageType())
}

func TestUnmarshalCallError(t *testing.T) {
	msg, err := Unmarshal([]byte(`[4,"19223201","NotSupported","Requested Action is recognized but not supported",{}]`))
	require.NoError(t, err)

	callErr, ok := msg.(*CallError)
	require.True(t, ok)
	assert.Equal(t, NotSupported, callErr.ErrorCode)
	assert.Equal(t, "Requested Action is recognized but not supported", callErr.ErrorDescription)
}

func TestUnmarshalMalformedFrames(t *testing.T) {
	frames := map[string]string{
		"not json":            `{{{`,
		"not an array":        `{"messageTypeId":2}`,
		"too short":           `[2,"1"]`,
		"non-integer tag":     `["2","1","Heartbeat",{}]`,
		"non-string id":       `[2,42,"Heartbeat",{}]`,
		"unknown tag":         `[9,"1","Heartbeat",{}]`,
		"call wrong arity":    `[2,"1","Heartbeat"]`,
		"result wrong arity":  `[3,"1",{},{}]`,
		"error wrong arity":   `[4,"1","GenericError","boom"]`,
		"non-string action":   `[2,"1",42,{}]`,
		"non-string err code": `[4,"1",42,"boom",{}]`,
	}
	for name, frame := range frames {
		t.Run(name, func(t *testing.T) {
			msg, err := Unmarshal([]byte(frame))
			assert.Nil(t, msg)
			var decodeErr *DecodeError
			assert.ErrorAs(t, err, &decodeErr)
		})
	}
}

func TestRoundTrip(t *testing.T) {
	original := &CallError{
		ID:               "abc",
		ErrorCode:        PropertyConstraintViolation,
		ErrorDescription: "connectorId out of range",
		ErrorDetails:     json.RawMessage(`{"connectorId":99}`),
	}
	data, err := Marshal(original)
	require.NoError(t, err)

	decoded, err := Unmarshal(data)
	require.NoError(t, err)
	callErr := decoded.(*CallError)
	assert.Equal(t, original.ID, callErr.ID)
	assert.Equal(t, original.ErrorCode, callErr.ErrorCode)
	assert.JSONEq(t, string(original.ErrorDetails), string(callErr.ErrorDetails))
}

func TestFormationViolationCode(t *testing.T) {
	assert.Equal(t, FormationViolation, FormationViolationCode(V16))
	assert.Equal(t, FormatViolation, FormationViolationCode(V21))
}

func TestSubprotocol(t *testing.T) {
	assert.Equal(t, "ocpp1.6", V16.Subprotocol())
	assert.Equal(t, "ocpp2.1", V21.Subprotocol())
	assert.True(t, V16.Valid())
	assert.True(t, V21.Valid())
	assert.False(t, ProtocolVersion("2.0").Valid())
}
