// Package chargepoint keeps the simulated charge point's state: connectors,
// transactions, configuration keys and the session-scoped fields inbound and
// outbound handlers exchange. All cross-message state lives in named fields
// here, each documenting its producer and consumer.
package chargepoint

import (
	"sync"
	"time"

	"github.com/lorenzodonini/ocpp-go/ocpp1.6/core"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/firmware"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/types"
)

// Transaction is one charging transaction, local id included.
type Transaction struct {
	ID          int
	IdTag       string
	ConnectorID int
	MeterStart  int
	MeterStop   int
	StartTime   *types.DateTime
	EndTime     *types.DateTime
}

func (t *Transaction) Ended() bool {
	return t.EndTime != nil && !t.EndTime.IsZero()
}

// Connector is one physical connector. No assumptions about how many a
// charge point has; they are created on first use.
type Connector struct {
	Status             core.ChargePointStatus
	CurrentTransaction int
}

func (c *Connector) HasTransactionInProgress() bool {
	return c.CurrentTransaction >= 0
}

// ConfigurationKey is one entry of the charge point's configuration store,
// served by GetConfiguration and written by ChangeConfiguration.
type ConfigurationKey struct {
	Value    string
	Readonly bool
}

// ChargePoint is the mutable simulated state, one instance per connection.
type ChargePoint struct {
	mu                sync.Mutex
	status            core.ChargePointStatus
	errorCode         core.ChargePointErrorCode
	firmwareStatus    firmware.FirmwareStatus
	diagnosticsStatus firmware.DiagnosticsStatus
	connectors        map[int]*Connector
	transactions      map[int]*Transaction
	configuration     map[string]*ConfigurationKey
	nextTransactionID int

	// heartbeatInterval — producer: the BootNotification response handler;
	// consumer: scenario.HeartbeatLoop.
	heartbeatInterval time.Duration
	// pendingCSR — producer: the SignCertificate send path; consumer: the
	// CertificateSigned inbound handler, to pair the received chain with the
	// request that caused it.
	pendingCSR string
	// certificateChain — producer: the CertificateSigned inbound handler;
	// consumer: certificate installation flows and assertions in tests.
	certificateChain string
}

func New() *ChargePoint {
	return &ChargePoint{
		status:        core.ChargePointStatusAvailable,
		errorCode:     core.NoError,
		connectors:    map[int]*Connector{},
		transactions:  map[int]*Transaction{},
		configuration: map[string]*ConfigurationKey{},
	}
}

// Connector returns the connector with the given id, creating it on first
// use.
func (cp *ChargePoint) Connector(id int) *Connector {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return cp.connector(id)
}

func (cp *ChargePoint) connector(id int) *Connector {
	c, ok := cp.connectors[id]
	if !ok {
		c = &Connector{Status: core.ChargePointStatusAvailable, CurrentTransaction: -1}
		cp.connectors[id] = c
	}
	return c
}

func (cp *ChargePoint) Status() core.ChargePointStatus {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return cp.status
}

func (cp *ChargePoint) SetStatus(status core.ChargePointStatus) {
	cp.mu.Lock()
	cp.status = status
	cp.mu.Unlock()
}

func (cp *ChargePoint) SetConnectorStatus(id int, status core.ChargePointStatus) {
	cp.mu.Lock()
	cp.connector(id).Status = status
	cp.mu.Unlock()
}

// ErrorCode is reported in every outgoing StatusNotification; it is NoError
// until a fault is raised.
func (cp *ChargePoint) ErrorCode() core.ChargePointErrorCode {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return cp.errorCode
}

func (cp *ChargePoint) SetErrorCode(code core.ChargePointErrorCode) {
	cp.mu.Lock()
	cp.errorCode = code
	cp.mu.Unlock()
}

func (cp *ChargePoint) FirmwareStatus() firmware.FirmwareStatus {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return cp.firmwareStatus
}

func (cp *ChargePoint) SetFirmwareStatus(status firmware.FirmwareStatus) {
	cp.mu.Lock()
	cp.firmwareStatus = status
	cp.mu.Unlock()
}

func (cp *ChargePoint) DiagnosticsStatus() firmware.DiagnosticsStatus {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return cp.diagnosticsStatus
}

func (cp *ChargePoint) SetDiagnosticsStatus(status firmware.DiagnosticsStatus) {
	cp.mu.Lock()
	cp.diagnosticsStatus = status
	cp.mu.Unlock()
}

// StartTransaction opens a transaction on a free connector. Returns nil if
// the connector is already busy.
func (cp *ChargePoint) StartTransaction(connectorID int, idTag string, meterStart int, startTime *types.DateTime) *Transaction {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	connector := cp.connector(connectorID)
	if connector.HasTransactionInProgress() {
		return nil
	}
	transaction := &Transaction{
		ID:          cp.nextTransactionID,
		IdTag:       idTag,
		ConnectorID: connectorID,
		MeterStart:  meterStart,
		StartTime:   startTime,
	}
	cp.nextTransactionID++
	connector.CurrentTransaction = transaction.ID
	cp.transactions[transaction.ID] = transaction
	return transaction
}

// BindTransactionID re-keys a local transaction to the id the CSMS assigned
// in its StartTransaction confirmation.
func (cp *ChargePoint) BindTransactionID(localID, remoteID int) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	transaction, ok := cp.transactions[localID]
	if !ok || localID == remoteID {
		return
	}
	delete(cp.transactions, localID)
	transaction.ID = remoteID
	cp.transactions[remoteID] = transaction
	cp.connector(transaction.ConnectorID).CurrentTransaction = remoteID
}

// StopTransaction closes a transaction and frees its connector. Returns nil
// for an unknown transaction id.
func (cp *ChargePoint) StopTransaction(transactionID, meterStop int, endTime *types.DateTime) *Transaction {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	transaction, ok := cp.transactions[transactionID]
	if !ok {
		return nil
	}
	transaction.MeterStop = meterStop
	transaction.EndTime = endTime
	cp.connector(transaction.ConnectorID).CurrentTransaction = -1
	return transaction
}

// Transaction returns the transaction with the given id, or nil.
func (cp *ChargePoint) Transaction(id int) *Transaction {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return cp.transactions[id]
}

// SeedConfiguration loads the initial configuration store.
func (cp *ChargePoint) SeedConfiguration(keys map[string]ConfigurationKey) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	for key, value := range keys {
		entry := value
		cp.configuration[key] = &entry
	}
}

// ConfigurationKeys resolves the requested keys (all of them when the filter
// is empty), reporting unknown ones separately.
func (cp *ChargePoint) ConfigurationKeys(filter []string) (map[string]ConfigurationKey, []string) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	known := map[string]ConfigurationKey{}
	var unknown []string
	if len(filter) == 0 {
		for key, entry := range cp.configuration {
			known[key] = *entry
		}
		return known, nil
	}
	for _, key := range filter {
		entry, ok := cp.configuration[key]
		if !ok {
			unknown = append(unknown, key)
			continue
		}
		known[key] = *entry
	}
	return known, unknown
}

// SetConfiguration applies one ChangeConfiguration request against the
// store.
func (cp *ChargePoint) SetConfiguration(key, value string) core.ConfigurationStatus {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	entry, ok := cp.configuration[key]
	if !ok {
		return core.ConfigurationStatusNotSupported
	}
	if entry.Readonly {
		return core.ConfigurationStatusRejected
	}
	entry.Value = value
	return core.ConfigurationStatusAccepted
}

func (cp *ChargePoint) HeartbeatInterval() time.Duration {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return cp.heartbeatInterval
}

func (cp *ChargePoint) SetHeartbeatInterval(interval time.Duration) {
	cp.mu.Lock()
	cp.heartbeatInterval = interval
	cp.mu.Unlock()
}

func (cp *ChargePoint) SetPendingCSR(csr string) {
	cp.mu.Lock()
	cp.pendingCSR = csr
	cp.mu.Unlock()
}

// TakePendingCSR returns and clears the CSR awaiting a signed certificate.
func (cp *ChargePoint) TakePendingCSR() string {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	csr := cp.pendingCSR
	cp.pendingCSR = ""
	return csr
}

func (cp *ChargePoint) SetCertificateChain(chain string) {
	cp.mu.Lock()
	cp.certificateChain = chain
	cp.mu.Unlock()
}

func (cp *ChargePoint) CertificateChain() string {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return cp.certificateChain
}
