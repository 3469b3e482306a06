// Package admin is the out-of-band control channel: it accepts commands from
// local test tooling and re-injects them as outgoing calls on the live CSMS
// session, through the exact send contract in-process scripts use.
package admin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/SIA-PC-Consulting/ocpp-virtual-charge-point/common"
	"github.com/SIA-PC-Consulting/ocpp-virtual-charge-point/ocpp"
	"github.com/SIA-PC-Consulting/ocpp-virtual-charge-point/registry"
	"github.com/SIA-PC-Consulting/ocpp-virtual-charge-point/schema"
	"github.com/SIA-PC-Consulting/ocpp-virtual-charge-point/vcp"
)

// Connection is the slice of the connection manager the bridge needs.
type Connection interface {
	State() vcp.State
	Version() ocpp.ProtocolVersion
	SendWithID(ctx context.Context, def *registry.OutgoingMessage, payload interface{}, messageID string) (interface{}, error)
}

// Bridge turns admin commands into sends on the live connection. Both admin
// front doors (the WebSocket listener and the NATS subscriber) share one
// Bridge.
type Bridge struct {
	conn     Connection
	reg      *registry.Registry
	validate *validator.Validate
	timeout  time.Duration
	log      *logrus.Entry
}

func NewBridge(conn Connection, reg *registry.Registry, timeout time.Duration, logger *logrus.Logger) *Bridge {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Bridge{
		conn:     conn,
		reg:      reg,
		validate: validator.New(),
		timeout:  timeout,
		log:      logger.WithField("component", "admin"),
	}
}

// Execute runs one command to completion. Commands against a connection that
// is not Open fail with NotConnected before anything is written; they are
// never queued.
func (b *Bridge) Execute(ctx context.Context, cmd common.Command) common.Response {
	if err := b.validate.Struct(&cmd); err != nil {
		return failure(cmd.MessageID, common.ErrCodeInvalidCommand, "command requires action and messageId", nil)
	}
	if b.conn.State() != vcp.StateOpen {
		return failure(cmd.MessageID, common.ErrCodeNotConnected,
			fmt.Sprintf("no open CSMS connection (state %v)", b.conn.State()), nil)
	}
	def, err := b.reg.OutgoingFor(b.conn.Version(), cmd.Action)
	if err != nil {
		return failure(cmd.MessageID, common.ErrCodeActionNotFound,
			fmt.Sprintf("no outgoing action %q for ocpp %v", cmd.Action, b.conn.Version()), nil)
	}

	sendCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	b.log.WithFields(logrus.Fields{"message": cmd.Action, "messageId": cmd.MessageID}).Info("executing admin command")

	payload, err := b.conn.SendWithID(sendCtx, def, registry.RawPayload(cmd.Payload), cmd.MessageID)
	if err != nil {
		return b.failureFor(cmd, err)
	}
	return common.Response{MessageID: cmd.MessageID, Payload: payload}
}

func (b *Bridge) failureFor(cmd common.Command, err error) common.Response {
	var validationErr *schema.ValidationError
	var duplicateErr *vcp.DuplicateIDError
	var timeoutErr *vcp.TimeoutError
	var protocolErr *vcp.ProtocolError
	switch {
	case errors.As(err, &validationErr):
		return failure(cmd.MessageID, common.ErrCodeInvalidPayload, err.Error(), validationErr.Violations)
	case errors.As(err, &duplicateErr):
		return failure(cmd.MessageID, common.ErrCodeDuplicateID, err.Error(), nil)
	case errors.As(err, &timeoutErr):
		return failure(cmd.MessageID, common.ErrCodeRequestTimeout, err.Error(), nil)
	case errors.As(err, &protocolErr):
		return failure(cmd.MessageID, common.ErrCodeCallRejected, err.Error(), map[string]interface{}{
			"errorCode":        protocolErr.ErrorCode,
			"errorDescription": protocolErr.ErrorDescription,
		})
	case errors.Is(err, vcp.ErrNotConnected), errors.Is(err, vcp.ErrDisconnected):
		return failure(cmd.MessageID, common.ErrCodeNotConnected, err.Error(), nil)
	default:
		b.log.WithError(err).WithField("message", cmd.Action).Error("admin command failed")
		return failure(cmd.MessageID, common.ErrCodeInternal, err.Error(), nil)
	}
}

func failure(messageID, code, message string, details interface{}) common.Response {
	return common.Response{
		MessageID: messageID,
		Err:       &common.Error{Code: code, Message: message, Details: details},
	}
}
