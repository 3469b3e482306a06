package v21

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorenzodonini/ocpp-go/ocpp1.6/core"

	"github.com/SIA-PC-Consulting/ocpp-virtual-charge-point/chargepoint"
	"github.com/SIA-PC-Consulting/ocpp-virtual-charge-point/ocpp"
	"github.com/SIA-PC-Consulting/ocpp-virtual-charge-point/registry"
)

type fakeCall struct {
	action   string
	payload  interface{}
	response interface{}
	rejected bool
}

func (c *fakeCall) MessageID() string { return "test-1" }

func (c *fakeCall) Action() string { return c.action }

func (c *fakeCall) Payload() interface{} { return c.payload }

func (c *fakeCall) Respond(payload interface{}) error {
	c.response = payload
	return nil
}

func (c *fakeCall) Reject(code ocpp.ErrorCode, description string, details interface{}) error {
	c.rejected = true
	return nil
}

var _ registry.IncomingCall = (*fakeCall)(nil)

type sentCall struct {
	action  string
	payload interface{}
}

type fakeSender struct {
	calls     chan sentCall
	responses map[string]interface{}
}

func newFakeSender() *fakeSender {
	return &fakeSender{
		calls: make(chan sentCall, 16),
		responses: map[string]interface{}{
			TransactionEventFeatureName:   &TransactionEventResponse{},
			StatusNotificationFeatureName: &StatusNotificationResponse{},
			HeartbeatFeatureName:          &HeartbeatResponse{CurrentTime: time.Now()},
			SignCertificateFeatureName:    &SignCertificateResponse{Status: "Accepted"},
			Get15118EVCertificateFeatureName: &Get15118EVCertificateResponse{
				Status:      "Accepted",
				ExiResponse: "ZXhpLXJlc3BvbnNl",
			},
		},
	}
}

func (s *fakeSender) Send(ctx context.Context, def *registry.OutgoingMessage, payload interface{}) (interface{}, error) {
	s.calls <- sentCall{action: def.Action, payload: payload}
	if response, ok := s.responses[def.Action]; ok {
		return response, nil
	}
	return nil, fmt.Errorf("no canned response for %v", def.Action)
}

func (s *fakeSender) next(t *testing.T) sentCall {
	t.Helper()
	select {
	case call := <-s.calls:
		return call
	case <-time.After(2 * time.Second):
		t.Fatal("no follow-up call sent within 2s")
		return sentCall{}
	}
}

func newTestHandlers(t *testing.T) (*Handlers, *chargepoint.ChargePoint, *fakeSender) {
	t.Helper()
	cp := chargepoint.New()
	cp.SeedConfiguration(map[string]chargepoint.ConfigurationKey{
		"OCPPCommCtrlr/HeartbeatInterval": {Value: "60"},
		"SecurityCtrlr/SecurityProfile":   {Value: "1", Readonly: true},
	})
	sender := newFakeSender()
	h := NewHandlers(cp, nil, sender)
	Register(registry.New(), h)
	return h, cp, sender
}

func TestOnBootConfirmed(t *testing.T) {
	h, cp, _ := newTestHandlers(t)
	h.onBootConfirmed(&BootNotificationResponse{
		CurrentTime: time.Now(),
		Status:      "Accepted",
		Interval:    300,
	})
	assert.Equal(t, 300*time.Second, cp.HeartbeatInterval())
}

func TestOnReset(t *testing.T) {
	h, _, _ := newTestHandlers(t)
	call := &fakeCall{action: ResetFeatureName, payload: &ResetRequest{Type: "Immediate"}}
	require.NoError(t, h.onReset(call))
	assert.Equal(t, "Accepted", call.response.(ResetResponse).Status)
}

func TestOnChangeAvailability(t *testing.T) {
	h, cp, _ := newTestHandlers(t)
	call := &fakeCall{action: ChangeAvailabilityFeatureName, payload: &ChangeAvailabilityRequest{
		OperationalStatus: "Inoperative",
		EVSE:              &EVSE{ID: 1},
	}}
	require.NoError(t, h.onChangeAvailability(call))

	assert.Equal(t, "Accepted", call.response.(ChangeAvailabilityResponse).Status)
	assert.Equal(t, core.ChargePointStatusUnavailable, cp.Connector(1).Status)
}

func TestOnGetVariables(t *testing.T) {
	h, _, _ := newTestHandlers(t)
	call := &fakeCall{action: GetVariablesFeatureName, payload: &GetVariablesRequest{
		GetVariableData: []GetVariableData{
			{Component: Component{Name: "OCPPCommCtrlr"}, Variable: Variable{Name: "HeartbeatInterval"}},
			{Component: Component{Name: "NoSuch"}, Variable: Variable{Name: "Thing"}},
		},
	}}
	require.NoError(t, h.onGetVariables(call))

	results := call.response.(GetVariablesResponse).GetVariableResult
	require.Len(t, results, 2)
	assert.Equal(t, "Accepted", results[0].AttributeStatus)
	assert.Equal(t, "60", results[0].AttributeValue)
	assert.Equal(t, "UnknownVariable", results[1].AttributeStatus)
}

func TestOnSetVariables(t *testing.T) {
	h, cp, _ := newTestHandlers(t)
	call := &fakeCall{action: SetVariablesFeatureName, payload: &SetVariablesRequest{
		SetVariableData: []SetVariableData{
			{Component: Component{Name: "OCPPCommCtrlr"}, Variable: Variable{Name: "HeartbeatInterval"}, AttributeValue: "30"},
			{Component: Component{Name: "SecurityCtrlr"}, Variable: Variable{Name: "SecurityProfile"}, AttributeValue: "3"},
			{Component: Component{Name: "NoSuch"}, Variable: Variable{Name: "Thing"}, AttributeValue: "1"},
		},
	}}
	require.NoError(t, h.onSetVariables(call))

	results := call.response.(SetVariablesResponse).SetVariableResult
	require.Len(t, results, 3)
	assert.Equal(t, "Accepted", results[0].AttributeStatus)
	assert.Equal(t, "Rejected", results[1].AttributeStatus)
	assert.Equal(t, "UnknownVariable", results[2].AttributeStatus)

	known, _ := cp.ConfigurationKeys([]string{"OCPPCommCtrlr/HeartbeatInterval"})
	assert.Equal(t, "30", known["OCPPCommCtrlr/HeartbeatInterval"].Value)
}

func TestOnSetVariableMonitoring(t *testing.T) {
	h, _, _ := newTestHandlers(t)
	requestedID := 7
	call := &fakeCall{action: SetVariableMonitoringFeatureName, payload: &SetVariableMonitoringRequest{
		SetMonitoringData: []SetMonitoringData{
			{Type: "UpperThreshold", Severity: 3, Value: 42, Component: Component{Name: "EVSE"}, Variable: Variable{Name: "Power"}},
			{ID: &requestedID, Type: "Delta", Severity: 5, Value: 1, Component: Component{Name: "EVSE"}, Variable: Variable{Name: "Power"}},
		},
	}}
	require.NoError(t, h.onSetVariableMonitoring(call))

	results := call.response.(SetVariableMonitoringResponse).SetMonitoringResult
	require.Len(t, results, 2)
	assert.Equal(t, "Accepted", results[0].Status)
	assert.Equal(t, 7, *results[1].ID)
}

func TestOnRequestStartTransaction(t *testing.T) {
	h, cp, sender := newTestHandlers(t)
	call := &fakeCall{action: RequestStartTransactionFeatureName, payload: &RequestStartTransactionRequest{
		RemoteStartID: 1,
		IdToken:       IdToken{IdToken: "EMAID-1", Type: "eMAID"},
	}}
	require.NoError(t, h.onRequestStartTransaction(call))

	response := call.response.(RequestStartTransactionResponse)
	assert.Equal(t, "Accepted", response.Status)
	require.NotEmpty(t, response.TransactionID)

	event := sender.next(t)
	assert.Equal(t, TransactionEventFeatureName, event.action)
	request := event.payload.(TransactionEventRequest)
	assert.Equal(t, "Started", request.EventType)
	assert.Equal(t, response.TransactionID, request.TransactionInfo.TransactionID)

	transactionID, err := strconv.Atoi(response.TransactionID)
	require.NoError(t, err)
	assert.NotNil(t, cp.Transaction(transactionID))
}

func TestOnRequestStartTransactionBusyEvse(t *testing.T) {
	h, cp, _ := newTestHandlers(t)
	cp.StartTransaction(1, "EMAID-0", 0, nil)

	call := &fakeCall{action: RequestStartTransactionFeatureName, payload: &RequestStartTransactionRequest{
		RemoteStartID: 1,
		IdToken:       IdToken{IdToken: "EMAID-1", Type: "eMAID"},
	}}
	require.NoError(t, h.onRequestStartTransaction(call))
	assert.Equal(t, "Rejected", call.response.(RequestStartTransactionResponse).Status)
}

func TestOnRequestStopTransaction(t *testing.T) {
	h, cp, sender := newTestHandlers(t)
	transaction := cp.StartTransaction(1, "EMAID-1", 0, nil)

	call := &fakeCall{action: RequestStopTransactionFeatureName, payload: &RequestStopTransactionRequest{
		TransactionID: strconv.Itoa(transaction.ID),
	}}
	require.NoError(t, h.onRequestStopTransaction(call))
	assert.Equal(t, "Accepted", call.response.(RequestStopTransactionResponse).Status)

	event := sender.next(t)
	assert.Equal(t, TransactionEventFeatureName, event.action)
	assert.Equal(t, "Ended", event.payload.(TransactionEventRequest).EventType)
	assert.False(t, cp.Connector(1).HasTransactionInProgress())
}

func TestOnRequestStopTransactionUnknownID(t *testing.T) {
	h, _, _ := newTestHandlers(t)
	call := &fakeCall{action: RequestStopTransactionFeatureName, payload: &RequestStopTransactionRequest{
		TransactionID: "999",
	}}
	require.NoError(t, h.onRequestStopTransaction(call))
	assert.Equal(t, "Rejected", call.response.(RequestStopTransactionResponse).Status)
}

func TestOnTriggerMessage(t *testing.T) {
	h, _, sender := newTestHandlers(t)

	call := &fakeCall{action: TriggerMessageFeatureName, payload: &TriggerMessageRequest{
		RequestedMessage: HeartbeatFeatureName,
	}}
	require.NoError(t, h.onTriggerMessage(call))
	assert.Equal(t, "Accepted", call.response.(TriggerMessageResponse).Status)
	assert.Equal(t, HeartbeatFeatureName, sender.next(t).action)

	unsupported := &fakeCall{action: TriggerMessageFeatureName, payload: &TriggerMessageRequest{
		RequestedMessage: "MeterValues",
	}}
	require.NoError(t, h.onTriggerMessage(unsupported))
	assert.Equal(t, "NotImplemented", unsupported.response.(TriggerMessageResponse).Status)
}

type fakeSigner struct {
	csr string
	err error
}

func (s *fakeSigner) GenerateCSR(commonName string) (string, error) {
	return s.csr, s.err
}

func TestCertificateSigningFlow(t *testing.T) {
	h, cp, sender := newTestHandlers(t)

	require.NoError(t, h.RequestCertificateSigning(context.Background(), &fakeSigner{csr: "csr-pem"}, "cp-1"))
	sent := sender.next(t)
	assert.Equal(t, SignCertificateFeatureName, sent.action)
	assert.Equal(t, "csr-pem", sent.payload.(SignCertificateRequest).CSR)

	// The chain arrives later as a CSMS-initiated call.
	call := &fakeCall{action: CertificateSignedFeatureName, payload: &CertificateSignedRequest{
		CertificateChain: "chain-pem",
	}}
	require.NoError(t, h.onCertificateSigned(call))
	assert.Equal(t, "Accepted", call.response.(CertificateSignedResponse).Status)
	assert.Equal(t, "chain-pem", cp.CertificateChain())

	// The pending CSR is consumed with the chain.
	assert.Empty(t, cp.TakePendingCSR())
}

type fakeExiEncoder struct{}

func (fakeExiEncoder) CertificateInstallationRequest(emaid string) (string, error) {
	return "ZXhpLXJlcXVlc3Q=", nil
}

func TestInstall15118Certificate(t *testing.T) {
	h, _, sender := newTestHandlers(t)
	require.NoError(t, h.Install15118Certificate(context.Background(), fakeExiEncoder{}, "EMAID-1"))

	sent := sender.next(t)
	assert.Equal(t, Get15118EVCertificateFeatureName, sent.action)
	request := sent.payload.(Get15118EVCertificateRequest)
	assert.Equal(t, "Install", request.Action)
	assert.Equal(t, "ZXhpLXJlcXVlc3Q=", request.ExiRequest)
}

func TestOnInstallCertificate(t *testing.T) {
	h, _, _ := newTestHandlers(t)
	call := &fakeCall{action: InstallCertificateFeatureName, payload: &InstallCertificateRequest{
		CertificateType: "CSMSRootCertificate",
		Certificate:     "root-pem",
	}}
	require.NoError(t, h.onInstallCertificate(call))
	assert.Equal(t, "Accepted", call.response.(InstallCertificateResponse).Status)
}
