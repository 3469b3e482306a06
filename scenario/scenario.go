// Package scenario drives the charge point side of multi-message OCPP flows:
// booting, heartbeating and charging sessions. All pacing lives here; the
// protocol engine itself never sleeps.
package scenario

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lorenzodonini/ocpp-go/ocpp1.6/core"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/types"

	"github.com/SIA-PC-Consulting/ocpp-virtual-charge-point/catalog/v21"
	"github.com/SIA-PC-Consulting/ocpp-virtual-charge-point/chargepoint"
	"github.com/SIA-PC-Consulting/ocpp-virtual-charge-point/ocpp"
	"github.com/SIA-PC-Consulting/ocpp-virtual-charge-point/registry"
	"github.com/SIA-PC-Consulting/ocpp-virtual-charge-point/vcp"
)

const (
	defaultHeartbeatInterval = 60 * time.Second
	pendingBootRetryInterval = 10 * time.Second
)

// StationInfo identifies the simulated hardware in boot requests.
type StationInfo struct {
	Model           string
	Vendor          string
	SerialNumber    string
	FirmwareVersion string
}

func logDefault(action string) *logrus.Entry {
	return logrus.WithField("message", action)
}

// Boot announces the charge point to the CSMS, retrying while the CSMS
// answers Pending, and reports the initial connector status once accepted.
func Boot(ctx context.Context, v *vcp.VirtualChargePoint, reg *registry.Registry, cp *chargepoint.ChargePoint, info StationInfo) error {
	if v.Version() == ocpp.V21 {
		return boot21(ctx, v, reg, cp, info)
	}
	return boot16(ctx, v, reg, cp, info)
}

func boot16(ctx context.Context, v *vcp.VirtualChargePoint, reg *registry.Registry, cp *chargepoint.ChargePoint, info StationInfo) error {
	def, err := reg.OutgoingFor(ocpp.V16, core.BootNotificationFeatureName)
	if err != nil {
		return err
	}
	for {
		response, err := v.Send(ctx, def, core.BootNotificationRequest{
			ChargePointModel:        info.Model,
			ChargePointVendor:       info.Vendor,
			ChargePointSerialNumber: info.SerialNumber,
			FirmwareVersion:         info.FirmwareVersion,
		})
		if err != nil {
			return err
		}
		confirmation := response.(*core.BootNotificationConfirmation)
		if confirmation.Status == core.RegistrationStatusAccepted {
			break
		}
		if err := waitBeforeRetry(ctx, confirmation.Interval); err != nil {
			return err
		}
	}
	return sendStatus16(ctx, v, reg, 1, cp.Connector(1).Status)
}

func boot21(ctx context.Context, v *vcp.VirtualChargePoint, reg *registry.Registry, cp *chargepoint.ChargePoint, info StationInfo) error {
	def, err := reg.OutgoingFor(ocpp.V21, v21.BootNotificationFeatureName)
	if err != nil {
		return err
	}
	for {
		response, err := v.Send(ctx, def, v21.BootNotificationRequest{
			Reason: "PowerUp",
			ChargingStation: v21.ChargingStation{
				Model:           info.Model,
				VendorName:      info.Vendor,
				SerialNumber:    info.SerialNumber,
				FirmwareVersion: info.FirmwareVersion,
			},
		})
		if err != nil {
			return err
		}
		bootResponse := response.(*v21.BootNotificationResponse)
		if bootResponse.Status == "Accepted" {
			break
		}
		if err := waitBeforeRetry(ctx, bootResponse.Interval); err != nil {
			return err
		}
	}
	return sendStatus21(ctx, v, reg, 1, "Available")
}

// waitBeforeRetry honours the retry interval a Pending or Rejected boot
// response carries.
func waitBeforeRetry(ctx context.Context, seconds int) error {
	interval := pendingBootRetryInterval
	if seconds > 0 {
		interval = time.Duration(seconds) * time.Second
	}
	logDefault("BootNotification").Infof("not accepted yet, retrying in %v", interval)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(interval):
		return nil
	}
}

// HeartbeatLoop sends heartbeats at the CSMS-granted interval until the
// context is cancelled or the connection closes. Individual heartbeat
// failures are logged, not fatal.
func HeartbeatLoop(ctx context.Context, v *vcp.VirtualChargePoint, reg *registry.Registry, cp *chargepoint.ChargePoint) error {
	action := core.HeartbeatFeatureName
	var def *registry.OutgoingMessage
	var err error
	if v.Version() == ocpp.V21 {
		action = v21.HeartbeatFeatureName
		def, err = reg.OutgoingFor(ocpp.V21, action)
	} else {
		def, err = reg.OutgoingFor(ocpp.V16, action)
	}
	if err != nil {
		return err
	}

	interval := cp.HeartbeatInterval()
	if interval <= 0 {
		interval = defaultHeartbeatInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-v.Done():
			return nil
		case <-ticker.C:
			var payload interface{} = core.HeartbeatRequest{}
			if v.Version() == ocpp.V21 {
				payload = v21.HeartbeatRequest{}
			}
			if _, err := v.Send(ctx, def, payload); err != nil {
				logDefault(action).Errorf("error on request: %v", err)
				continue
			}
			// The interval can change after a re-boot negotiation.
			if granted := cp.HeartbeatInterval(); granted > 0 && granted != interval {
				interval = granted
				ticker.Reset(interval)
			}
		}
	}
}

// SessionConfig parameterises one simulated 1.6 charging session.
type SessionConfig struct {
	ConnectorID     int
	IdTag           string
	MeterSamples    int
	SampleInterval  time.Duration
	EnergyPerSample int
}

func (c *SessionConfig) applyDefaults() {
	if c.ConnectorID <= 0 {
		c.ConnectorID = 1
	}
	if c.MeterSamples <= 0 {
		c.MeterSamples = 3
	}
	if c.SampleInterval <= 0 {
		c.SampleInterval = 2 * time.Second
	}
	if c.EnergyPerSample <= 0 {
		c.EnergyPerSample = 150
	}
}

// ChargingSession runs a full charge-point-initiated 1.6 session: Authorize,
// StartTransaction, periodic MeterValues, StopTransaction, with connector
// status notifications along the way.
func ChargingSession(ctx context.Context, v *vcp.VirtualChargePoint, reg *registry.Registry, cp *chargepoint.ChargePoint, cfg SessionConfig) error {
	cfg.applyDefaults()

	authorizeDef, err := reg.OutgoingFor(ocpp.V16, core.AuthorizeFeatureName)
	if err != nil {
		return err
	}
	response, err := v.Send(ctx, authorizeDef, core.AuthorizeRequest{IdTag: cfg.IdTag})
	if err != nil {
		return err
	}
	authorization := response.(*core.AuthorizeConfirmation)
	if authorization.IdTagInfo.Status != types.AuthorizationStatusAccepted {
		return fmt.Errorf("scenario: id tag %v not authorized (%v)", cfg.IdTag, authorization.IdTagInfo.Status)
	}

	transaction := cp.StartTransaction(cfg.ConnectorID, cfg.IdTag, 0, types.NewDateTime(time.Now()))
	if transaction == nil {
		return fmt.Errorf("scenario: connector %v is busy", cfg.ConnectorID)
	}
	cp.SetConnectorStatus(cfg.ConnectorID, core.ChargePointStatusCharging)
	if err := sendStatus16(ctx, v, reg, cfg.ConnectorID, core.ChargePointStatusCharging); err != nil {
		return err
	}

	startDef, err := reg.OutgoingFor(ocpp.V16, core.StartTransactionFeatureName)
	if err != nil {
		return err
	}
	response, err = v.Send(ctx, startDef, core.StartTransactionRequest{
		ConnectorId: cfg.ConnectorID,
		IdTag:       cfg.IdTag,
		MeterStart:  transaction.MeterStart,
		Timestamp:   transaction.StartTime,
	})
	if err != nil {
		return err
	}
	confirmation := response.(*core.StartTransactionConfirmation)
	cp.BindTransactionID(transaction.ID, confirmation.TransactionId)
	transactionID := confirmation.TransactionId

	meterDef, err := reg.OutgoingFor(ocpp.V16, core.MeterValuesFeatureName)
	if err != nil {
		return err
	}
	meter := transaction.MeterStart
	for i := 0; i < cfg.MeterSamples; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.SampleInterval):
		}
		meter += cfg.EnergyPerSample
		_, err := v.Send(ctx, meterDef, core.MeterValuesRequest{
			ConnectorId:   cfg.ConnectorID,
			TransactionId: &transactionID,
			MeterValue: []types.MeterValue{{
				Timestamp: types.NewDateTime(time.Now()),
				SampledValue: []types.SampledValue{{
					Value:     fmt.Sprintf("%d", meter),
					Measurand: types.MeasurandEnergyActiveImportRegister,
					Unit:      types.UnitOfMeasureWh,
				}},
			}},
		})
		if err != nil {
			logDefault(core.MeterValuesFeatureName).Errorf("error on request: %v", err)
		}
	}

	cp.StopTransaction(transactionID, meter, types.NewDateTime(time.Now()))
	cp.SetConnectorStatus(cfg.ConnectorID, core.ChargePointStatusFinishing)
	if err := sendStatus16(ctx, v, reg, cfg.ConnectorID, core.ChargePointStatusFinishing); err != nil {
		return err
	}

	stopDef, err := reg.OutgoingFor(ocpp.V16, core.StopTransactionFeatureName)
	if err != nil {
		return err
	}
	if _, err := v.Send(ctx, stopDef, core.StopTransactionRequest{
		TransactionId: transactionID,
		IdTag:         cfg.IdTag,
		MeterStop:     meter,
		Timestamp:     types.NewDateTime(time.Now()),
		Reason:        core.ReasonLocal,
	}); err != nil {
		return err
	}

	cp.SetConnectorStatus(cfg.ConnectorID, core.ChargePointStatusAvailable)
	return sendStatus16(ctx, v, reg, cfg.ConnectorID, core.ChargePointStatusAvailable)
}

func sendStatus16(ctx context.Context, v *vcp.VirtualChargePoint, reg *registry.Registry, connectorID int, status core.ChargePointStatus) error {
	def, err := reg.OutgoingFor(ocpp.V16, core.StatusNotificationFeatureName)
	if err != nil {
		return err
	}
	_, err = v.Send(ctx, def, core.StatusNotificationRequest{
		ConnectorId: connectorID,
		ErrorCode:   core.NoError,
		Status:      status,
		Timestamp:   types.NewDateTime(time.Now()),
	})
	return err
}

func sendStatus21(ctx context.Context, v *vcp.VirtualChargePoint, reg *registry.Registry, evseID int, status string) error {
	def, err := reg.OutgoingFor(ocpp.V21, v21.StatusNotificationFeatureName)
	if err != nil {
		return err
	}
	_, err = v.Send(ctx, def, v21.StatusNotificationRequest{
		Timestamp:       time.Now(),
		ConnectorStatus: status,
		EvseID:          evseID,
		ConnectorID:     1,
	})
	return err
}
