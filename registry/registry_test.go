package registry

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SIA-PC-Consulting/ocpp-virtual-charge-point/ocpp"
	"github.com/SIA-PC-Consulting/ocpp-virtual-charge-point/schema"
)

type heartbeatRequest struct{}
type heartbeatResponse struct{}

func outgoingDef(version ocpp.ProtocolVersion, action string) *OutgoingMessage {
	validate := validator.New()
	return &OutgoingMessage{
		Action:   action,
		Version:  version,
		Request:  schema.New(action, heartbeatRequest{}, validate),
		Response: schema.New(action, heartbeatResponse{}, validate),
	}
}

func incomingDef(version ocpp.ProtocolVersion, action string) *IncomingMessage {
	validate := validator.New()
	return &IncomingMessage{
		Action:   action,
		Version:  version,
		Request:  schema.New(action, heartbeatRequest{}, validate),
		Response: schema.New(action, heartbeatResponse{}, validate),
		Handler:  func(call IncomingCall) error { return nil },
	}
}

func TestOutgoingLookup(t *testing.T) {
	reg := New()
	def := outgoingDef(ocpp.V16, "Heartbeat")
	reg.RegisterOutgoing(def)

	found, err := reg.OutgoingFor(ocpp.V16, "Heartbeat")
	require.NoError(t, err)
	assert.Same(t, def, found)
}

func TestIncomingLookup(t *testing.T) {
	reg := New()
	def := incomingDef(ocpp.V16, "Reset")
	reg.RegisterIncoming(def)

	found, err := reg.IncomingFor(ocpp.V16, "Reset")
	require.NoError(t, err)
	assert.Same(t, def, found)
}

func TestLookupMiss(t *testing.T) {
	reg := New()
	reg.RegisterOutgoing(outgoingDef(ocpp.V16, "Heartbeat"))

	_, err := reg.OutgoingFor(ocpp.V16, "BootNotification")
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "BootNotification", notFound.Action)
	assert.Equal(t, Outgoing, notFound.Direction)
}

// The same action name resolves independently per version and per direction.
func TestLookupIsKeyedByVersionAndDirection(t *testing.T) {
	reg := New()
	reg.RegisterOutgoing(outgoingDef(ocpp.V16, "Heartbeat"))
	reg.RegisterIncoming(incomingDef(ocpp.V16, "Heartbeat"))

	_, err := reg.OutgoingFor(ocpp.V21, "Heartbeat")
	assert.Error(t, err)

	out, err := reg.OutgoingFor(ocpp.V16, "Heartbeat")
	require.NoError(t, err)
	assert.Equal(t, "Heartbeat", out.Action)

	in, err := reg.IncomingFor(ocpp.V16, "Heartbeat")
	require.NoError(t, err)
	assert.Equal(t, "Heartbeat", in.Action)
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	reg := New()
	reg.RegisterOutgoing(outgoingDef(ocpp.V16, "Heartbeat"))
	assert.Panics(t, func() {
		reg.RegisterOutgoing(outgoingDef(ocpp.V16, "Heartbeat"))
	})

	reg.RegisterIncoming(incomingDef(ocpp.V16, "Heartbeat"))
	assert.Panics(t, func() {
		reg.RegisterIncoming(incomingDef(ocpp.V16, "Heartbeat"))
	})
}
