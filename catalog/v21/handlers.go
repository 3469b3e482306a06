package v21

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lorenzodonini/ocpp-go/ocpp1.6/core"

	"github.com/SIA-PC-Consulting/ocpp-virtual-charge-point/chargepoint"
	"github.com/SIA-PC-Consulting/ocpp-virtual-charge-point/notifier"
	"github.com/SIA-PC-Consulting/ocpp-virtual-charge-point/ocpp"
	"github.com/SIA-PC-Consulting/ocpp-virtual-charge-point/registry"
)

// Sender issues outgoing calls on the live connection.
type Sender interface {
	Send(ctx context.Context, def *registry.OutgoingMessage, payload interface{}) (interface{}, error)
}

// CertificateSigner produces PEM CSR material for the SignCertificate flow.
// The engine treats its output as an opaque validated payload field.
type CertificateSigner interface {
	GenerateCSR(commonName string) (string, error)
}

// ExiEncoder produces the base64 EXI blob carried by Get15118EVCertificate.
// Its bytes are never interpreted here.
type ExiEncoder interface {
	CertificateInstallationRequest(emaid string) (string, error)
}

// Handlers answers CSMS-initiated 2.1 calls against the simulated charge
// point state. Variables are backed by the same configuration store 1.6
// serves, keyed Component/Variable.
type Handlers struct {
	cp            *chargepoint.ChargePoint
	notifications chan notifier.Notification
	sender        Sender
	reg           *registry.Registry
}

func NewHandlers(cp *chargepoint.ChargePoint, notifications chan notifier.Notification, sender Sender) *Handlers {
	return &Handlers{cp: cp, notifications: notifications, sender: sender}
}

func logDefault(action string) *logrus.Entry {
	return logrus.WithField("message", action)
}

func (h *Handlers) notify(topic string, request interface{}, extra map[string]interface{}) {
	if h.notifications == nil {
		return
	}
	data := map[string]interface{}{}
	if request != nil {
		bt, _ := json.Marshal(request)
		_ = json.Unmarshal(bt, &data)
	}
	for k, v := range extra {
		data[k] = v
	}
	select {
	case h.notifications <- notifier.Notification{Topic: topic, Data: data}:
	default:
		logDefault(topic).Warn("notification channel full, event dropped")
	}
}

func (h *Handlers) onBootConfirmed(payload interface{}) {
	response := payload.(*BootNotificationResponse)
	if response.Interval > 0 {
		h.cp.SetHeartbeatInterval(time.Duration(response.Interval) * time.Second)
	}
	logDefault(BootNotificationFeatureName).Infof("boot %v, heartbeat interval %vs",
		response.Status, response.Interval)
}

func (h *Handlers) onReset(call registry.IncomingCall) error {
	request := call.Payload().(*ResetRequest)
	logDefault(call.Action()).Infof("reset requested (%v)", request.Type)
	h.notify("reset", request, nil)
	return call.Respond(ResetResponse{Status: "Accepted"})
}

func (h *Handlers) onChangeAvailability(call registry.IncomingCall) error {
	request := call.Payload().(*ChangeAvailabilityRequest)
	status := core.ChargePointStatusAvailable
	if request.OperationalStatus == "Inoperative" {
		status = core.ChargePointStatusUnavailable
	}
	if request.EVSE != nil {
		h.cp.SetConnectorStatus(request.EVSE.ID, status)
	} else {
		h.cp.SetStatus(status)
	}
	h.notify("change.availability", request, nil)
	return call.Respond(ChangeAvailabilityResponse{Status: "Accepted"})
}

func variableKey(component Component, variable Variable) string {
	return component.Name + "/" + variable.Name
}

func (h *Handlers) onGetVariables(call registry.IncomingCall) error {
	request := call.Payload().(*GetVariablesRequest)
	results := make([]GetVariableResult, 0, len(request.GetVariableData))
	for _, data := range request.GetVariableData {
		result := GetVariableResult{
			AttributeStatus: "UnknownVariable",
			Component:       data.Component,
			Variable:        data.Variable,
		}
		known, _ := h.cp.ConfigurationKeys([]string{variableKey(data.Component, data.Variable)})
		if entry, ok := known[variableKey(data.Component, data.Variable)]; ok {
			result.AttributeStatus = "Accepted"
			result.AttributeValue = entry.Value
		}
		results = append(results, result)
	}
	return call.Respond(GetVariablesResponse{GetVariableResult: results})
}

func (h *Handlers) onSetVariables(call registry.IncomingCall) error {
	request := call.Payload().(*SetVariablesRequest)
	results := make([]SetVariableResult, 0, len(request.SetVariableData))
	for _, data := range request.SetVariableData {
		result := SetVariableResult{
			AttributeStatus: "Accepted",
			Component:       data.Component,
			Variable:        data.Variable,
		}
		switch h.cp.SetConfiguration(variableKey(data.Component, data.Variable), data.AttributeValue) {
		case core.ConfigurationStatusNotSupported:
			result.AttributeStatus = "UnknownVariable"
		case core.ConfigurationStatusRejected:
			result.AttributeStatus = "Rejected"
		}
		results = append(results, result)
	}
	h.notify("set.variables", request, nil)
	return call.Respond(SetVariablesResponse{SetVariableResult: results})
}

func (h *Handlers) onSetVariableMonitoring(call registry.IncomingCall) error {
	request := call.Payload().(*SetVariableMonitoringRequest)
	results := make([]SetMonitoringResult, 0, len(request.SetMonitoringData))
	for i, data := range request.SetMonitoringData {
		id := i + 1
		if data.ID != nil {
			id = *data.ID
		}
		monitorID := id
		results = append(results, SetMonitoringResult{
			ID:        &monitorID,
			Status:    "Accepted",
			Type:      data.Type,
			Severity:  data.Severity,
			Component: data.Component,
			Variable:  data.Variable,
		})
	}
	h.notify("set.variable.monitoring", request, nil)
	return call.Respond(SetVariableMonitoringResponse{SetMonitoringResult: results})
}

func (h *Handlers) onRequestStartTransaction(call registry.IncomingCall) error {
	request := call.Payload().(*RequestStartTransactionRequest)
	evseID := 1
	if request.EvseID != nil {
		evseID = *request.EvseID
	}
	if h.cp.Connector(evseID).HasTransactionInProgress() {
		return call.Respond(RequestStartTransactionResponse{Status: "Rejected"})
	}
	transaction := h.cp.StartTransaction(evseID, request.IdToken.IdToken, 0, nil)
	if transaction == nil {
		return call.Respond(RequestStartTransactionResponse{Status: "Rejected"})
	}
	transactionID := strconv.Itoa(transaction.ID)
	if err := call.Respond(RequestStartTransactionResponse{Status: "Accepted", TransactionID: transactionID}); err != nil {
		return err
	}
	h.notify("remote.start.transaction", request, map[string]interface{}{"transactionId": transactionID})
	go h.sendTransactionEvent("Started", "RemoteStart", transactionID, &request.IdToken, evseID)
	return nil
}

func (h *Handlers) onRequestStopTransaction(call registry.IncomingCall) error {
	request := call.Payload().(*RequestStopTransactionRequest)
	transactionID, err := strconv.Atoi(request.TransactionID)
	if err != nil || h.cp.Transaction(transactionID) == nil {
		return call.Respond(RequestStopTransactionResponse{Status: "Rejected"})
	}
	if err := call.Respond(RequestStopTransactionResponse{Status: "Accepted"}); err != nil {
		return err
	}
	h.cp.StopTransaction(transactionID, 0, nil)
	h.notify("remote.stop.transaction", request, nil)
	go h.sendTransactionEvent("Ended", "RemoteStop", request.TransactionID, nil, 0)
	return nil
}

func (h *Handlers) sendTransactionEvent(eventType, triggerReason, transactionID string, idToken *IdToken, evseID int) {
	def, err := h.reg.OutgoingFor(ocpp.V21, TransactionEventFeatureName)
	if err != nil {
		logDefault(TransactionEventFeatureName).Error(err)
		return
	}
	request := TransactionEventRequest{
		EventType:       eventType,
		Timestamp:       time.Now(),
		TriggerReason:   triggerReason,
		TransactionInfo: TransactionInfo{TransactionID: transactionID},
		IdToken:         idToken,
	}
	if evseID > 0 {
		request.EVSE = &EVSE{ID: evseID}
	}
	if _, err := h.sender.Send(context.Background(), def, request); err != nil {
		logDefault(TransactionEventFeatureName).Errorf("error on request: %v", err)
	}
}

func (h *Handlers) onTriggerMessage(call registry.IncomingCall) error {
	request := call.Payload().(*TriggerMessageRequest)
	switch request.RequestedMessage {
	case HeartbeatFeatureName:
		if err := call.Respond(TriggerMessageResponse{Status: "Accepted"}); err != nil {
			return err
		}
		go h.sendTriggered(HeartbeatFeatureName, HeartbeatRequest{})
		return nil
	case StatusNotificationFeatureName:
		evseID := 1
		if request.EVSE != nil {
			evseID = request.EVSE.ID
		}
		if err := call.Respond(TriggerMessageResponse{Status: "Accepted"}); err != nil {
			return err
		}
		go h.sendTriggered(StatusNotificationFeatureName, StatusNotificationRequest{
			Timestamp:       time.Now(),
			ConnectorStatus: "Available",
			EvseID:          evseID,
			ConnectorID:     1,
		})
		return nil
	default:
		return call.Respond(TriggerMessageResponse{Status: "NotImplemented"})
	}
}

func (h *Handlers) sendTriggered(action string, payload interface{}) {
	def, err := h.reg.OutgoingFor(ocpp.V21, action)
	if err != nil {
		logDefault(action).Error(err)
		return
	}
	if _, err := h.sender.Send(context.Background(), def, payload); err != nil {
		logDefault(action).Errorf("error on request: %v", err)
	}
}

// onCertificateSigned consumes the chain answering a SignCertificate call
// (pairing it with the pending CSR) and stores it for installation flows.
func (h *Handlers) onCertificateSigned(call registry.IncomingCall) error {
	request := call.Payload().(*CertificateSignedRequest)
	if csr := h.cp.TakePendingCSR(); csr == "" {
		logDefault(call.Action()).Warn("certificate chain received with no CSR pending")
	}
	h.cp.SetCertificateChain(request.CertificateChain)
	h.notify("certificate.signed", nil, map[string]interface{}{"certificateType": request.CertificateType})
	return call.Respond(CertificateSignedResponse{Status: "Accepted"})
}

func (h *Handlers) onInstallCertificate(call registry.IncomingCall) error {
	request := call.Payload().(*InstallCertificateRequest)
	h.notify("install.certificate", nil, map[string]interface{}{"certificateType": request.CertificateType})
	return call.Respond(InstallCertificateResponse{Status: "Accepted"})
}

// RequestCertificateSigning runs the charge-point side of the certificate
// signing flow: CSR from the external signer, SignCertificate call, chain
// arriving later via the CertificateSigned handler.
func (h *Handlers) RequestCertificateSigning(ctx context.Context, signer CertificateSigner, commonName string) error {
	csr, err := signer.GenerateCSR(commonName)
	if err != nil {
		return fmt.Errorf("v21: cannot generate CSR: %w", err)
	}
	def, err := h.reg.OutgoingFor(ocpp.V21, SignCertificateFeatureName)
	if err != nil {
		return err
	}
	h.cp.SetPendingCSR(csr)
	response, err := h.sender.Send(ctx, def, SignCertificateRequest{CSR: csr, CertificateType: "ChargingStationCertificate"})
	if err != nil {
		h.cp.TakePendingCSR()
		return err
	}
	if response.(*SignCertificateResponse).Status != "Accepted" {
		h.cp.TakePendingCSR()
		return fmt.Errorf("v21: SignCertificate rejected by CSMS")
	}
	return nil
}

// Install15118Certificate drives the ISO 15118 certificate installation
// flow; the EXI blob is produced and consumed by external collaborators.
func (h *Handlers) Install15118Certificate(ctx context.Context, exi ExiEncoder, emaid string) error {
	blob, err := exi.CertificateInstallationRequest(emaid)
	if err != nil {
		return fmt.Errorf("v21: cannot encode EXI request: %w", err)
	}
	def, err := h.reg.OutgoingFor(ocpp.V21, Get15118EVCertificateFeatureName)
	if err != nil {
		return err
	}
	response, err := h.sender.Send(ctx, def, Get15118EVCertificateRequest{
		Iso15118SchemaVersion: "urn:iso:15118:2:2013:MsgDef",
		Action:                "Install",
		ExiRequest:            blob,
	})
	if err != nil {
		return err
	}
	if response.(*Get15118EVCertificateResponse).Status != "Accepted" {
		return fmt.Errorf("v21: Get15118EVCertificate failed")
	}
	return nil
}
