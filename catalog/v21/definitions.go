package v21

import (
	"github.com/SIA-PC-Consulting/ocpp-virtual-charge-point/ocpp"
	"github.com/SIA-PC-Consulting/ocpp-virtual-charge-point/registry"
	"github.com/SIA-PC-Consulting/ocpp-virtual-charge-point/schema"
)

// 2.1 action names.
const (
	BootNotificationFeatureName          = "BootNotification"
	HeartbeatFeatureName                 = "Heartbeat"
	StatusNotificationFeatureName        = "StatusNotification"
	AuthorizeFeatureName                 = "Authorize"
	TransactionEventFeatureName          = "TransactionEvent"
	SecurityEventNotificationFeatureName = "SecurityEventNotification"
	SignCertificateFeatureName           = "SignCertificate"
	Get15118EVCertificateFeatureName     = "Get15118EVCertificate"
	ResetFeatureName                     = "Reset"
	ChangeAvailabilityFeatureName        = "ChangeAvailability"
	GetVariablesFeatureName              = "GetVariables"
	SetVariablesFeatureName              = "SetVariables"
	SetVariableMonitoringFeatureName     = "SetVariableMonitoring"
	RequestStartTransactionFeatureName   = "RequestStartTransaction"
	RequestStopTransactionFeatureName    = "RequestStopTransaction"
	TriggerMessageFeatureName            = "TriggerMessage"
	CertificateSignedFeatureName         = "CertificateSigned"
	InstallCertificateFeatureName        = "InstallCertificate"
)

func validatorFor(action string, prototype interface{}) *schema.Validator {
	return schema.New(action, prototype, Validate)
}

func outgoing(action string, request, response interface{}, onResponse registry.ResponseHandler) *registry.OutgoingMessage {
	return &registry.OutgoingMessage{
		Action:     action,
		Version:    ocpp.V21,
		Request:    validatorFor(action, request),
		Response:   validatorFor(action, response),
		OnResponse: onResponse,
	}
}

func incoming(action string, request, response interface{}, handler registry.Handler) *registry.IncomingMessage {
	return &registry.IncomingMessage{
		Action:   action,
		Version:  ocpp.V21,
		Request:  validatorFor(action, request),
		Response: validatorFor(action, response),
		Handler:  handler,
	}
}

// Register wires the full 2.1 catalog into reg.
func Register(reg *registry.Registry, h *Handlers) {
	h.reg = reg

	reg.RegisterOutgoing(outgoing(BootNotificationFeatureName,
		BootNotificationRequest{}, BootNotificationResponse{}, h.onBootConfirmed))
	reg.RegisterOutgoing(outgoing(HeartbeatFeatureName,
		HeartbeatRequest{}, HeartbeatResponse{}, nil))
	reg.RegisterOutgoing(outgoing(StatusNotificationFeatureName,
		StatusNotificationRequest{}, StatusNotificationResponse{}, nil))
	reg.RegisterOutgoing(outgoing(AuthorizeFeatureName,
		AuthorizeRequest{}, AuthorizeResponse{}, nil))
	reg.RegisterOutgoing(outgoing(TransactionEventFeatureName,
		TransactionEventRequest{}, TransactionEventResponse{}, nil))
	reg.RegisterOutgoing(outgoing(SecurityEventNotificationFeatureName,
		SecurityEventNotificationRequest{}, SecurityEventNotificationResponse{}, nil))
	reg.RegisterOutgoing(outgoing(SignCertificateFeatureName,
		SignCertificateRequest{}, SignCertificateResponse{}, nil))
	reg.RegisterOutgoing(outgoing(Get15118EVCertificateFeatureName,
		Get15118EVCertificateRequest{}, Get15118EVCertificateResponse{}, nil))

	reg.RegisterIncoming(incoming(ResetFeatureName,
		ResetRequest{}, ResetResponse{}, h.onReset))
	reg.RegisterIncoming(incoming(ChangeAvailabilityFeatureName,
		ChangeAvailabilityRequest{}, ChangeAvailabilityResponse{}, h.onChangeAvailability))
	reg.RegisterIncoming(incoming(GetVariablesFeatureName,
		GetVariablesRequest{}, GetVariablesResponse{}, h.onGetVariables))
	reg.RegisterIncoming(incoming(SetVariablesFeatureName,
		SetVariablesRequest{}, SetVariablesResponse{}, h.onSetVariables))
	reg.RegisterIncoming(incoming(SetVariableMonitoringFeatureName,
		SetVariableMonitoringRequest{}, SetVariableMonitoringResponse{}, h.onSetVariableMonitoring))
	reg.RegisterIncoming(incoming(RequestStartTransactionFeatureName,
		RequestStartTransactionRequest{}, RequestStartTransactionResponse{}, h.onRequestStartTransaction))
	reg.RegisterIncoming(incoming(RequestStopTransactionFeatureName,
		RequestStopTransactionRequest{}, RequestStopTransactionResponse{}, h.onRequestStopTransaction))
	reg.RegisterIncoming(incoming(TriggerMessageFeatureName,
		TriggerMessageRequest{}, TriggerMessageResponse{}, h.onTriggerMessage))
	reg.RegisterIncoming(incoming(CertificateSignedFeatureName,
		CertificateSignedRequest{}, CertificateSignedResponse{}, h.onCertificateSigned))
	reg.RegisterIncoming(incoming(InstallCertificateFeatureName,
		InstallCertificateRequest{}, InstallCertificateResponse{}, h.onInstallCertificate))
}
