package vcp

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/SIA-PC-Consulting/ocpp-virtual-charge-point/ocpp"
	"github.com/SIA-PC-Consulting/ocpp-virtual-charge-point/registry"
)

// CallContext is the engine's view of one inbound Call while its handler
// runs. Exactly one CallResult or CallError must go out per inbound id; the
// context tracks that and rejects a second answer.
type CallContext struct {
	vcp      *VirtualChargePoint
	call     *ocpp.Call
	def      *registry.IncomingMessage
	request  interface{}
	answered atomic.Bool
}

var _ registry.IncomingCall = (*CallContext)(nil)

func (c *CallContext) MessageID() string { return c.call.ID }

func (c *CallContext) Action() string { return c.call.Action }

// Payload is the validated request, of the definition's request struct type.
func (c *CallContext) Payload() interface{} { return c.request }

// Respond validates payload against the inbound definition's response schema
// and writes a CallResult.
func (c *CallContext) Respond(payload interface{}) error {
	validated, err := c.def.Response.Check(payload)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(validated)
	if err != nil {
		return fmt.Errorf("vcp: cannot marshal %s response: %w", c.call.Action, err)
	}
	if !c.answered.CompareAndSwap(false, true) {
		return ErrAnsweredTwice
	}
	return c.vcp.writeMessage(&ocpp.CallResult{ID: c.call.ID, Payload: raw})
}

// Reject writes a CallError for the inbound call.
func (c *CallContext) Reject(code ocpp.ErrorCode, description string, details interface{}) error {
	if !c.answered.CompareAndSwap(false, true) {
		return ErrAnsweredTwice
	}
	return c.vcp.writeError(c.call.ID, code, description, details)
}
