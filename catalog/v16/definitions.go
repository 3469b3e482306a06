// Package v16 is the OCPP 1.6 message catalog: the static set of outgoing
// and incoming message definitions the action registry serves for ocpp1.6
// sessions. Payload types and validation come from lorenzodonini/ocpp-go,
// whose struct tags register their custom validations on types.Validate.
package v16

import (
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/core"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/firmware"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/types"

	"github.com/SIA-PC-Consulting/ocpp-virtual-charge-point/ocpp"
	"github.com/SIA-PC-Consulting/ocpp-virtual-charge-point/registry"
	"github.com/SIA-PC-Consulting/ocpp-virtual-charge-point/schema"
)

func validatorFor(action string, prototype interface{}) *schema.Validator {
	return schema.New(action, prototype, types.Validate)
}

func outgoing(action string, request, response interface{}, onResponse registry.ResponseHandler) *registry.OutgoingMessage {
	return &registry.OutgoingMessage{
		Action:     action,
		Version:    ocpp.V16,
		Request:    validatorFor(action, request),
		Response:   validatorFor(action, response),
		OnResponse: onResponse,
	}
}

func incoming(action string, request, response interface{}, handler registry.Handler) *registry.IncomingMessage {
	return &registry.IncomingMessage{
		Action:   action,
		Version:  ocpp.V16,
		Request:  validatorFor(action, request),
		Response: validatorFor(action, response),
		Handler:  handler,
	}
}

// Register wires the full 1.6 catalog into reg.
func Register(reg *registry.Registry, h *Handlers) {
	h.reg = reg

	// Calls the charge point sends to the CSMS.
	reg.RegisterOutgoing(outgoing(core.AuthorizeFeatureName,
		core.AuthorizeRequest{}, core.AuthorizeConfirmation{}, nil))
	reg.RegisterOutgoing(outgoing(core.BootNotificationFeatureName,
		core.BootNotificationRequest{}, core.BootNotificationConfirmation{}, h.onBootConfirmed))
	reg.RegisterOutgoing(outgoing(core.DataTransferFeatureName,
		core.DataTransferRequest{}, core.DataTransferConfirmation{}, nil))
	reg.RegisterOutgoing(outgoing(core.HeartbeatFeatureName,
		core.HeartbeatRequest{}, core.HeartbeatConfirmation{}, nil))
	reg.RegisterOutgoing(outgoing(core.MeterValuesFeatureName,
		core.MeterValuesRequest{}, core.MeterValuesConfirmation{}, nil))
	reg.RegisterOutgoing(outgoing(core.StartTransactionFeatureName,
		core.StartTransactionRequest{}, core.StartTransactionConfirmation{}, nil))
	reg.RegisterOutgoing(outgoing(core.StatusNotificationFeatureName,
		core.StatusNotificationRequest{}, core.StatusNotificationConfirmation{}, nil))
	reg.RegisterOutgoing(outgoing(core.StopTransactionFeatureName,
		core.StopTransactionRequest{}, core.StopTransactionConfirmation{}, nil))
	reg.RegisterOutgoing(outgoing(firmware.DiagnosticsStatusNotificationFeatureName,
		firmware.DiagnosticsStatusNotificationRequest{}, firmware.DiagnosticsStatusNotificationConfirmation{}, nil))
	reg.RegisterOutgoing(outgoing(firmware.FirmwareStatusNotificationFeatureName,
		firmware.FirmwareStatusNotificationRequest{}, firmware.FirmwareStatusNotificationConfirmation{}, nil))

	// Calls the CSMS sends that the charge point must answer.
	reg.RegisterIncoming(incoming(core.ChangeAvailabilityFeatureName,
		core.ChangeAvailabilityRequest{}, core.ChangeAvailabilityConfirmation{}, h.onChangeAvailability))
	reg.RegisterIncoming(incoming(core.ChangeConfigurationFeatureName,
		core.ChangeConfigurationRequest{}, core.ChangeConfigurationConfirmation{}, h.onChangeConfiguration))
	reg.RegisterIncoming(incoming(core.ClearCacheFeatureName,
		core.ClearCacheRequest{}, core.ClearCacheConfirmation{}, h.onClearCache))
	reg.RegisterIncoming(incoming(core.DataTransferFeatureName,
		core.DataTransferRequest{}, core.DataTransferConfirmation{}, h.onDataTransfer))
	reg.RegisterIncoming(incoming(core.GetConfigurationFeatureName,
		core.GetConfigurationRequest{}, core.GetConfigurationConfirmation{}, h.onGetConfiguration))
	reg.RegisterIncoming(incoming(core.RemoteStartTransactionFeatureName,
		core.RemoteStartTransactionRequest{}, core.RemoteStartTransactionConfirmation{}, h.onRemoteStartTransaction))
	reg.RegisterIncoming(incoming(core.RemoteStopTransactionFeatureName,
		core.RemoteStopTransactionRequest{}, core.RemoteStopTransactionConfirmation{}, h.onRemoteStopTransaction))
	reg.RegisterIncoming(incoming(core.ResetFeatureName,
		core.ResetRequest{}, core.ResetConfirmation{}, h.onReset))
	reg.RegisterIncoming(incoming(core.UnlockConnectorFeatureName,
		core.UnlockConnectorRequest{}, core.UnlockConnectorConfirmation{}, h.onUnlockConnector))
}
