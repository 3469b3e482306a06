package v16

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lorenzodonini/ocpp-go/ocpp1.6/core"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/firmware"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/types"

	"github.com/SIA-PC-Consulting/ocpp-virtual-charge-point/chargepoint"
	"github.com/SIA-PC-Consulting/ocpp-virtual-charge-point/notifier"
	"github.com/SIA-PC-Consulting/ocpp-virtual-charge-point/ocpp"
	"github.com/SIA-PC-Consulting/ocpp-virtual-charge-point/registry"
)

const defaultConnectorID = 1

// Sender issues outgoing calls on the live connection; handlers use it to
// emit follow-up calls (StartTransaction after RemoteStartTransaction, for
// instance) while the inbound call is being answered.
type Sender interface {
	Send(ctx context.Context, def *registry.OutgoingMessage, payload interface{}) (interface{}, error)
}

// Handlers answers the CSMS-initiated 1.6 calls against the simulated
// charge point state.
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

// onBootConfirmed consumes the BootNotification response: the CSMS-granted
// heartbeat interval is stored for the heartbeat loop to pick up.
func (h *Handlers) onBootConfirmed(payload interface{}) {
	confirmation := payload.(*core.BootNotificationConfirmation)
	if confirmation.Interval > 0 {
		h.cp.SetHeartbeatInterval(time.Duration(confirmation.Interval) * time.Second)
	}
	logDefault(core.BootNotificationFeatureName).Infof("boot %v, heartbeat interval %vs",
		confirmation.Status, confirmation.Interval)
}

func (h *Handlers) onReset(call registry.IncomingCall) error {
	request := call.Payload().(*core.ResetRequest)
	logDefault(call.Action()).Infof("reset requested (%v)", request.Type)
	h.notify("reset", request, nil)
	return call.Respond(core.ResetConfirmation{Status: core.ResetStatusAccepted})
}

func (h *Handlers) onChangeAvailability(call registry.IncomingCall) error {
	request := call.Payload().(*core.ChangeAvailabilityRequest)
	status := core.ChargePointStatusAvailable
	if request.Type == core.AvailabilityTypeInoperative {
		status = core.ChargePointStatusUnavailable
	}
	if request.ConnectorId > 0 {
		h.cp.SetConnectorStatus(request.ConnectorId, status)
	} else {
		h.cp.SetStatus(status)
	}
	h.notify("change.availability", request, nil)
	return call.Respond(core.ChangeAvailabilityConfirmation{Status: core.AvailabilityStatusAccepted})
}

func (h *Handlers) onChangeConfiguration(call registry.IncomingCall) error {
	request := call.Payload().(*core.ChangeConfigurationRequest)
	status := h.cp.SetConfiguration(request.Key, request.Value)
	logDefault(call.Action()).Infof("key %v -> %v", request.Key, status)
	h.notify("change.configuration", request, map[string]interface{}{"status": status})
	return call.Respond(core.ChangeConfigurationConfirmation{Status: status})
}

func (h *Handlers) onClearCache(call registry.IncomingCall) error {
	h.notify("clear.cache", nil, nil)
	return call.Respond(core.ClearCacheConfirmation{Status: core.ClearCacheStatusAccepted})
}

func (h *Handlers) onDataTransfer(call registry.IncomingCall) error {
	request := call.Payload().(*core.DataTransferRequest)
	logDefault(call.Action()).Infof("data transfer from vendor %v", request.VendorId)
	h.notify("data.transfer", request, nil)
	return call.Respond(core.DataTransferConfirmation{Status: core.DataTransferStatusAccepted})
}

func (h *Handlers) onGetConfiguration(call registry.IncomingCall) error {
	request := call.Payload().(*core.GetConfigurationRequest)
	known, unknown := h.cp.ConfigurationKeys(request.Key)
	keys := make([]core.ConfigurationKey, 0, len(known))
	for key, entry := range known {
		value := entry.Value
		keys = append(keys, core.ConfigurationKey{Key: key, Readonly: entry.Readonly, Value: &value})
	}
	return call.Respond(core.GetConfigurationConfirmation{ConfigurationKey: keys, UnknownKey: unknown})
}

func (h *Handlers) onRemoteStartTransaction(call registry.IncomingCall) error {
	request := call.Payload().(*core.RemoteStartTransactionRequest)
	connectorID := defaultConnectorID
	if request.ConnectorId != nil {
		connectorID = *request.ConnectorId
	}
	if h.cp.Connector(connectorID).HasTransactionInProgress() {
		logDefault(call.Action()).Warnf("connector %v is busy", connectorID)
		return call.Respond(core.RemoteStartTransactionConfirmation{Status: types.RemoteStartStopStatusRejected})
	}
	if err := call.Respond(core.RemoteStartTransactionConfirmation{Status: types.RemoteStartStopStatusAccepted}); err != nil {
		return err
	}
	h.notify("remote.start.transaction", request, map[string]interface{}{"connectorId": connectorID})
	// The actual StartTransaction call goes out after the confirmation, on
	// the same connection the handler was invoked from.
	go h.startTransaction(connectorID, request.IdTag)
	return nil
}

func (h *Handlers) startTransaction(connectorID int, idTag string) {
	transaction := h.cp.StartTransaction(connectorID, idTag, 0, types.NewDateTime(time.Now()))
	if transaction == nil {
		logDefault(core.StartTransactionFeatureName).Warnf("connector %v became busy", connectorID)
		return
	}
	h.cp.SetConnectorStatus(connectorID, core.ChargePointStatusCharging)
	h.sendStatusNotification(connectorID, core.ChargePointStatusCharging)

	def, err := h.reg.OutgoingFor(ocpp.V16, core.StartTransactionFeatureName)
	if err != nil {
		logDefault(core.StartTransactionFeatureName).Error(err)
		return
	}
	response, err := h.sender.Send(context.Background(), def, core.StartTransactionRequest{
		ConnectorId: connectorID,
		IdTag:       idTag,
		MeterStart:  transaction.MeterStart,
		Timestamp:   transaction.StartTime,
	})
	if err != nil {
		logDefault(core.StartTransactionFeatureName).Errorf("error on request: %v", err)
		return
	}
	confirmation := response.(*core.StartTransactionConfirmation)
	h.cp.BindTransactionID(transaction.ID, confirmation.TransactionId)
	h.notify("start.transaction", nil, map[string]interface{}{
		"transactionId": confirmation.TransactionId,
		"connectorId":   connectorID,
		"idTag":         idTag,
	})
}

func (h *Handlers) onRemoteStopTransaction(call registry.IncomingCall) error {
	request := call.Payload().(*core.RemoteStopTransactionRequest)
	transaction := h.cp.Transaction(request.TransactionId)
	if transaction == nil || transaction.Ended() {
		logDefault(call.Action()).Warnf("unknown transaction %v", request.TransactionId)
		return call.Respond(core.RemoteStopTransactionConfirmation{Status: types.RemoteStartStopStatusRejected})
	}
	if err := call.Respond(core.RemoteStopTransactionConfirmation{Status: types.RemoteStartStopStatusAccepted}); err != nil {
		return err
	}
	go h.stopTransaction(request.TransactionId)
	return nil
}

func (h *Handlers) stopTransaction(transactionID int) {
	transaction := h.cp.StopTransaction(transactionID, 0, types.NewDateTime(time.Now()))
	if transaction == nil {
		return
	}
	h.cp.SetConnectorStatus(transaction.ConnectorID, core.ChargePointStatusFinishing)
	h.sendStatusNotification(transaction.ConnectorID, core.ChargePointStatusFinishing)

	def, err := h.reg.OutgoingFor(ocpp.V16, core.StopTransactionFeatureName)
	if err != nil {
		logDefault(core.StopTransactionFeatureName).Error(err)
		return
	}
	_, err = h.sender.Send(context.Background(), def, core.StopTransactionRequest{
		TransactionId: transactionID,
		IdTag:         transaction.IdTag,
		MeterStop:     transaction.MeterStop,
		Timestamp:     transaction.EndTime,
		Reason:        core.ReasonRemote,
	})
	if err != nil {
		logDefault(core.StopTransactionFeatureName).Errorf("error on request: %v", err)
		return
	}
	h.cp.SetConnectorStatus(transaction.ConnectorID, core.ChargePointStatusAvailable)
	h.sendStatusNotification(transaction.ConnectorID, core.ChargePointStatusAvailable)
	h.notify("stop.transaction", nil, map[string]interface{}{"transactionId": transactionID})
}

func (h *Handlers) onUnlockConnector(call registry.IncomingCall) error {
	request := call.Payload().(*core.UnlockConnectorRequest)
	connector := h.cp.Connector(request.ConnectorId)
	if connector.HasTransactionInProgress() {
		go h.stopTransaction(connector.CurrentTransaction)
	}
	h.notify("unlock.connector", request, nil)
	return call.Respond(core.UnlockConnectorConfirmation{Status: core.UnlockStatusUnlocked})
}

// ReportFirmwareStatus records a firmware update step and notifies the CSMS.
func (h *Handlers) ReportFirmwareStatus(ctx context.Context, status firmware.FirmwareStatus) error {
	h.cp.SetFirmwareStatus(status)
	def, err := h.reg.OutgoingFor(ocpp.V16, firmware.FirmwareStatusNotificationFeatureName)
	if err != nil {
		return err
	}
	if _, err = h.sender.Send(ctx, def, firmware.FirmwareStatusNotificationRequest{Status: status}); err != nil {
		return err
	}
	h.notify("firmware.status", nil, map[string]interface{}{"status": status})
	return nil
}

// ReportDiagnosticsStatus records a diagnostics upload step and notifies the
// CSMS.
func (h *Handlers) ReportDiagnosticsStatus(ctx context.Context, status firmware.DiagnosticsStatus) error {
	h.cp.SetDiagnosticsStatus(status)
	def, err := h.reg.OutgoingFor(ocpp.V16, firmware.DiagnosticsStatusNotificationFeatureName)
	if err != nil {
		return err
	}
	if _, err = h.sender.Send(ctx, def, firmware.DiagnosticsStatusNotificationRequest{Status: status}); err != nil {
		return err
	}
	h.notify("diagnostics.status", nil, map[string]interface{}{"status": status})
	return nil
}

// ReportFault marks a connector Faulted with the given error code. The code
// sticks until cleared and rides along on every later StatusNotification.
func (h *Handlers) ReportFault(connectorID int, errorCode core.ChargePointErrorCode) {
	h.cp.SetErrorCode(errorCode)
	h.cp.SetConnectorStatus(connectorID, core.ChargePointStatusFaulted)
	h.sendStatusNotification(connectorID, core.ChargePointStatusFaulted)
	h.notify("fault", nil, map[string]interface{}{
		"connectorId": connectorID,
		"errorCode":   errorCode,
	})
}

// sendStatusNotification reports a connector status change to the CSMS; a
// failure is logged, never fatal to the surrounding flow.
func (h *Handlers) sendStatusNotification(connectorID int, status core.ChargePointStatus) {
	def, err := h.reg.OutgoingFor(ocpp.V16, core.StatusNotificationFeatureName)
	if err != nil {
		logDefault(core.StatusNotificationFeatureName).Error(err)
		return
	}
	_, err = h.sender.Send(context.Background(), def, core.StatusNotificationRequest{
		ConnectorId: connectorID,
		ErrorCode:   h.cp.ErrorCode(),
		Status:      status,
		Timestamp:   types.NewDateTime(time.Now()),
	})
	if err != nil {
		logDefault(core.StatusNotificationFeatureName).Errorf("error on request: %v", err)
	}
}
