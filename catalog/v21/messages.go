// Package v21 is the OCPP 2.1 message catalog. ocpp-go has no 2.1 support,
// so the payload types are declared here with the same validation-tag
// conventions its 1.6 structs use.
package v21

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// Validate checks every 2.1 payload; the tags below use only built-in
// validations.
var Validate = validator.New()

// -------- shared types --------

type StatusInfo struct {
	ReasonCode     string `json:"reasonCode" validate:"required,max=20"`
	AdditionalInfo string `json:"additionalInfo,omitempty" validate:"omitempty,max=1024"`
}

type EVSE struct {
	ID          int  `json:"id" validate:"gte=0"`
	ConnectorID *int `json:"connectorId,omitempty" validate:"omitempty,gte=0"`
}

type IdToken struct {
	IdToken string `json:"idToken" validate:"required,max=36"`
	Type    string `json:"type" validate:"required,oneof=Central eMAID ISO14443 ISO15693 KeyCode Local MacAddress NoAuthorization"`
}

type IdTokenInfo struct {
	Status              string     `json:"status" validate:"required,oneof=Accepted Blocked ConcurrentTx Expired Invalid NoCredit NotAllowedTypeEVSE NotAtThisLocation NotAtThisTime Unknown"`
	CacheExpiryDateTime *time.Time `json:"cacheExpiryDateTime,omitempty"`
}

type Component struct {
	Name     string `json:"name" validate:"required,max=50"`
	Instance string `json:"instance,omitempty" validate:"omitempty,max=50"`
	EVSE     *EVSE  `json:"evse,omitempty"`
}

type Variable struct {
	Name     string `json:"name" validate:"required,max=50"`
	Instance string `json:"instance,omitempty" validate:"omitempty,max=50"`
}

type SampledValue struct {
	Value         float64 `json:"value"`
	Context       string  `json:"context,omitempty" validate:"omitempty,max=50"`
	Measurand     string  `json:"measurand,omitempty" validate:"omitempty,max=50"`
	UnitOfMeasure string  `json:"unitOfMeasure,omitempty" validate:"omitempty,max=20"`
}

type MeterValue struct {
	Timestamp    time.Time      `json:"timestamp" validate:"required"`
	SampledValue []SampledValue `json:"sampledValue" validate:"required,min=1,dive"`
}

// -------- outgoing (charge point → CSMS) --------

type ChargingStation struct {
	SerialNumber    string `json:"serialNumber,omitempty" validate:"omitempty,max=25"`
	Model           string `json:"model" validate:"required,max=20"`
	VendorName      string `json:"vendorName" validate:"required,max=50"`
	FirmwareVersion string `json:"firmwareVersion,omitempty" validate:"omitempty,max=50"`
}

type BootNotificationRequest struct {
	Reason          string          `json:"reason" validate:"required,oneof=ApplicationReset FirmwareUpdate LocalReset PowerUp RemoteReset ScheduledReset Triggered Unknown Watchdog"`
	ChargingStation ChargingStation `json:"chargingStation" validate:"required"`
}

type BootNotificationResponse struct {
	CurrentTime time.Time   `json:"currentTime" validate:"required"`
	Interval    int         `json:"interval" validate:"gte=0"`
	Status      string      `json:"status" validate:"required,oneof=Accepted Pending Rejected"`
	StatusInfo  *StatusInfo `json:"statusInfo,omitempty"`
}

type HeartbeatRequest struct{}

type HeartbeatResponse struct {
	CurrentTime time.Time `json:"currentTime" validate:"required"`
}

type StatusNotificationRequest struct {
	Timestamp       time.Time `json:"timestamp" validate:"required"`
	ConnectorStatus string    `json:"connectorStatus" validate:"required,oneof=Available Occupied Reserved Unavailable Faulted"`
	EvseID          int       `json:"evseId" validate:"gte=0"`
	ConnectorID     int       `json:"connectorId" validate:"gte=0"`
}

type StatusNotificationResponse struct{}

type AuthorizeRequest struct {
	IdToken IdToken `json:"idToken" validate:"required"`
}

type AuthorizeResponse struct {
	IdTokenInfo IdTokenInfo `json:"idTokenInfo" validate:"required"`
}

type TransactionInfo struct {
	TransactionID string `json:"transactionId" validate:"required,max=36"`
	ChargingState string `json:"chargingState,omitempty" validate:"omitempty,oneof=Charging EVConnected SuspendedEV SuspendedEVSE Idle"`
	StoppedReason string `json:"stoppedReason,omitempty" validate:"omitempty,max=50"`
}

type TransactionEventRequest struct {
	EventType       string          `json:"eventType" validate:"required,oneof=Started Updated Ended"`
	Timestamp       time.Time       `json:"timestamp" validate:"required"`
	TriggerReason   string          `json:"triggerReason" validate:"required,max=50"`
	SeqNo           int             `json:"seqNo" validate:"gte=0"`
	TransactionInfo TransactionInfo `json:"transactionInfo" validate:"required"`
	IdToken         *IdToken        `json:"idToken,omitempty"`
	EVSE            *EVSE           `json:"evse,omitempty"`
	MeterValue      []MeterValue    `json:"meterValue,omitempty" validate:"omitempty,dive"`
}

type TransactionEventResponse struct {
	TotalCost   *float64     `json:"totalCost,omitempty"`
	IdTokenInfo *IdTokenInfo `json:"idTokenInfo,omitempty"`
}

type SecurityEventNotificationRequest struct {
	Type      string    `json:"type" validate:"required,max=50"`
	Timestamp time.Time `json:"timestamp" validate:"required"`
	TechInfo  string    `json:"techInfo,omitempty" validate:"omitempty,max=255"`
}

type SecurityEventNotificationResponse struct{}

type SignCertificateRequest struct {
	CSR             string `json:"csr" validate:"required,max=5500"`
	CertificateType string `json:"certificateType,omitempty" validate:"omitempty,oneof=ChargingStationCertificate V2GCertificate"`
}

type SignCertificateResponse struct {
	Status     string      `json:"status" validate:"required,oneof=Accepted Rejected"`
	StatusInfo *StatusInfo `json:"statusInfo,omitempty"`
}

type Get15118EVCertificateRequest struct {
	Iso15118SchemaVersion string `json:"iso15118SchemaVersion" validate:"required,max=50"`
	Action                string `json:"action" validate:"required,oneof=Install Update"`
	// ExiRequest is an opaque base64 EXI blob produced by the external
	// encoder; the engine never interprets its bytes.
	ExiRequest string `json:"exiRequest" validate:"required,max=11000"`
}

type Get15118EVCertificateResponse struct {
	Status      string `json:"status" validate:"required,oneof=Accepted Failed"`
	ExiResponse string `json:"exiResponse" validate:"required,max=17000"`
}

// -------- incoming (CSMS → charge point) --------

type ResetRequest struct {
	Type   string `json:"type" validate:"required,oneof=Immediate OnIdle"`
	EvseID *int   `json:"evseId,omitempty" validate:"omitempty,gte=0"`
}

type ResetResponse struct {
	Status string `json:"status" validate:"required,oneof=Accepted Scheduled Rejected"`
}

type ChangeAvailabilityRequest struct {
	OperationalStatus string `json:"operationalStatus" validate:"required,oneof=Operative Inoperative"`
	EVSE              *EVSE  `json:"evse,omitempty"`
}

type ChangeAvailabilityResponse struct {
	Status string `json:"status" validate:"required,oneof=Accepted Scheduled Rejected"`
}

type GetVariableData struct {
	Component     Component `json:"component" validate:"required"`
	Variable      Variable  `json:"variable" validate:"required"`
	AttributeType string    `json:"attributeType,omitempty" validate:"omitempty,oneof=Actual Target MinSet MaxSet"`
}

type GetVariableResult struct {
	AttributeStatus string    `json:"attributeStatus" validate:"required,oneof=Accepted Rejected UnknownComponent UnknownVariable NotSupportedAttributeType"`
	Component       Component `json:"component" validate:"required"`
	Variable        Variable  `json:"variable" validate:"required"`
	AttributeValue  string    `json:"attributeValue,omitempty" validate:"omitempty,max=2500"`
}

type GetVariablesRequest struct {
	GetVariableData []GetVariableData `json:"getVariableData" validate:"required,min=1,dive"`
}

type GetVariablesResponse struct {
	GetVariableResult []GetVariableResult `json:"getVariableResult" validate:"required,min=1,dive"`
}

type SetVariableData struct {
	AttributeValue string    `json:"attributeValue" validate:"required,max=1000"`
	Component      Component `json:"component" validate:"required"`
	Variable       Variable  `json:"variable" validate:"required"`
	AttributeType  string    `json:"attributeType,omitempty" validate:"omitempty,oneof=Actual Target MinSet MaxSet"`
}

type SetVariableResult struct {
	AttributeStatus string    `json:"attributeStatus" validate:"required,oneof=Accepted Rejected UnknownComponent UnknownVariable NotSupportedAttributeType RebootRequired"`
	Component       Component `json:"component" validate:"required"`
	Variable        Variable  `json:"variable" validate:"required"`
}

type SetVariablesRequest struct {
	SetVariableData []SetVariableData `json:"setVariableData" validate:"required,min=1,dive"`
}

type SetVariablesResponse struct {
	SetVariableResult []SetVariableResult `json:"setVariableResult" validate:"required,min=1,dive"`
}

type SetMonitoringData struct {
	ID          *int      `json:"id,omitempty" validate:"omitempty,gte=0"`
	Value       float64   `json:"value"`
	Type        string    `json:"type" validate:"required,oneof=UpperThreshold LowerThreshold Delta Periodic PeriodicClockAligned"`
	Severity    int       `json:"severity" validate:"gte=0,lte=9"`
	Transaction bool      `json:"transaction,omitempty"`
	Component   Component `json:"component" validate:"required"`
	Variable    Variable  `json:"variable" validate:"required"`
}

type SetMonitoringResult struct {
	ID        *int      `json:"id,omitempty"`
	Status    string    `json:"status" validate:"required,oneof=Accepted UnknownComponent UnknownVariable UnsupportedMonitorType Rejected Duplicate"`
	Type      string    `json:"type" validate:"required,oneof=UpperThreshold LowerThreshold Delta Periodic PeriodicClockAligned"`
	Severity  int       `json:"severity" validate:"gte=0,lte=9"`
	Component Component `json:"component" validate:"required"`
	Variable  Variable  `json:"variable" validate:"required"`
}

type SetVariableMonitoringRequest struct {
	SetMonitoringData []SetMonitoringData `json:"setMonitoringData" validate:"required,min=1,dive"`
}

type SetVariableMonitoringResponse struct {
	SetMonitoringResult []SetMonitoringResult `json:"setMonitoringResult" validate:"required,min=1,dive"`
}

type RequestStartTransactionRequest struct {
	EvseID        *int    `json:"evseId,omitempty" validate:"omitempty,gte=1"`
	RemoteStartID int     `json:"remoteStartId" validate:"gte=0"`
	IdToken       IdToken `json:"idToken" validate:"required"`
}

type RequestStartTransactionResponse struct {
	Status        string `json:"status" validate:"required,oneof=Accepted Rejected"`
	TransactionID string `json:"transactionId,omitempty" validate:"omitempty,max=36"`
}

type RequestStopTransactionRequest struct {
	TransactionID string `json:"transactionId" validate:"required,max=36"`
}

type RequestStopTransactionResponse struct {
	Status string `json:"status" validate:"required,oneof=Accepted Rejected"`
}

type TriggerMessageRequest struct {
	RequestedMessage string `json:"requestedMessage" validate:"required,max=50"`
	EVSE             *EVSE  `json:"evse,omitempty"`
}

type TriggerMessageResponse struct {
	Status string `json:"status" validate:"required,oneof=Accepted Rejected NotImplemented"`
}

type CertificateSignedRequest struct {
	CertificateChain string `json:"certificateChain" validate:"required,max=10000"`
	CertificateType  string `json:"certificateType,omitempty" validate:"omitempty,oneof=ChargingStationCertificate V2GCertificate"`
}

type CertificateSignedResponse struct {
	Status string `json:"status" validate:"required,oneof=Accepted Rejected"`
}

type InstallCertificateRequest struct {
	CertificateType string `json:"certificateType" validate:"required,oneof=V2GRootCertificate MORootCertificate CSMSRootCertificate ManufacturerRootCertificate"`
	Certificate     string `json:"certificate" validate:"required,max=5500"`
}

type InstallCertificateResponse struct {
	Status string `json:"status" validate:"required,oneof=Accepted Rejected Failed"`
}
