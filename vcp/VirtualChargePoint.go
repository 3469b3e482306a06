// Package vcp implements the virtual charge point's protocol engine: one
// WebSocket session to a CSMS, the outbound send path with message
// correlation, and the inbound receive loop dispatching server-initiated
// calls to registered handlers.
package vcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/SIA-PC-Consulting/ocpp-virtual-charge-point/ocpp"
	"github.com/SIA-PC-Consulting/ocpp-virtual-charge-point/registry"
)

// State is the connection lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateConnecting:
		return "Connecting"
	case StateOpen:
		return "Open"
	case StateClosing:
		return "Closing"
	case StateClosed:
		return "Closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

const (
	defaultCallTimeout = 30 * time.Second
	expireTickInterval = 500 * time.Millisecond
)

// Config fixes the connection parameters for the lifetime of a
// VirtualChargePoint. Version never changes after construction.
type Config struct {
	// Endpoint is the CSMS WebSocket URL; the charge point id is appended to
	// its path.
	Endpoint      string
	ChargePointID string
	Version       ocpp.ProtocolVersion
	// BasicAuthPassword, when set, is sent as HTTP basic auth on connect.
	BasicAuthPassword string
	// CallTimeout is the deadline applied to every outgoing call.
	// Defaults to 30s.
	CallTimeout time.Duration
	Registry    *registry.Registry
	// Transport defaults to a gorilla/websocket client.
	Transport Transport
	Logger    *logrus.Logger
}

// VirtualChargePoint owns one transport session to the CSMS.
type VirtualChargePoint struct {
	cfg       Config
	log       *logrus.Entry
	transport Transport
	reg       *registry.Registry

	state     atomic.Int32
	writeMu   sync.Mutex
	pending   *pendingCalls
	ids       *idGenerator
	done      chan struct{}
	closeOnce *sync.Once
}

func New(cfg Config) *VirtualChargePoint {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	if cfg.Transport == nil {
		cfg.Transport = NewWebSocketTransport()
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return &VirtualChargePoint{
		cfg:       cfg,
		log:       cfg.Logger.WithField("client", cfg.ChargePointID),
		transport: cfg.Transport,
		reg:       cfg.Registry,
		pending:   newPendingCalls(),
		ids:       newIDGenerator(),
		closeOnce: new(sync.Once),
	}
}

// State returns the current lifecycle state.
func (v *VirtualChargePoint) State() State {
	return State(v.state.Load())
}

// Version returns the protocol version fixed at construction.
func (v *VirtualChargePoint) Version() ocpp.ProtocolVersion {
	return v.cfg.Version
}

// Done is closed when the connection reaches Closed. Nil before Connect.
func (v *VirtualChargePoint) Done() <-chan struct{} {
	return v.done
}

func (v *VirtualChargePoint) casState(from, to State) bool {
	return v.state.CompareAndSwap(int32(from), int32(to))
}

// Connect dials the CSMS. On failure the connection transitions to Closed
// and the error is returned; there is no automatic retry.
func (v *VirtualChargePoint) Connect(ctx context.Context) error {
	if !v.casState(StateIdle, StateConnecting) && !v.casState(StateClosed, StateConnecting) {
		return fmt.Errorf("vcp: cannot connect while %v", v.State())
	}
	v.pending = newPendingCalls()
	v.done = make(chan struct{})
	v.closeOnce = new(sync.Once)

	endpoint := strings.TrimRight(v.cfg.Endpoint, "/") + "/" + v.cfg.ChargePointID
	header := http.Header{}
	if v.cfg.BasicAuthPassword != "" {
		credentials := v.cfg.ChargePointID + ":" + v.cfg.BasicAuthPassword
		header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(credentials)))
	}

	if err := v.transport.Connect(ctx, endpoint, header, v.cfg.Version.Subprotocol()); err != nil {
		close(v.done)
		v.state.Store(int32(StateClosed))
		return err
	}
	v.state.Store(int32(StateOpen))
	v.log.WithField("endpoint", endpoint).Infof("connected to CSMS (ocpp %v)", v.cfg.Version)

	go v.readLoop()
	go v.expireLoop()
	return nil
}

// Close ends the session. Idempotent: closing an already closed connection
// is a no-op and settles nothing twice.
func (v *VirtualChargePoint) Close() error {
	if !v.casState(StateOpen, StateClosing) && !v.casState(StateConnecting, StateClosing) {
		return nil
	}
	err := v.transport.Close()
	v.terminate(nil)
	return err
}

// terminate tears the session down exactly once. The Closed state is stored
// last, after every pending call has been failed and Done has been closed:
// a Connect racing the teardown cannot observe Closed and swap in a fresh
// session while the old one still has calls to settle.
func (v *VirtualChargePoint) terminate(cause error) {
	v.closeOnce.Do(func() {
		if cause != nil {
			v.log.WithError(cause).Warn("connection to CSMS lost")
			_ = v.transport.Close()
		} else {
			v.log.Info("connection closed")
		}
		if n := v.pending.failAll(outcome{kind: outcomeDisconnected}); n > 0 {
			v.log.Warnf("failed %d pending calls on disconnect", n)
		}
		close(v.done)
		v.state.Store(int32(StateClosed))
	})
}

// Send validates payload against def's request schema, frames a Call with a
// fresh id, and suspends the caller until a matching CallResult or CallError
// arrives, the call times out, or the connection closes. Other sends and the
// receive loop keep making progress while the caller waits.
func (v *VirtualChargePoint) Send(ctx context.Context, def *registry.OutgoingMessage, payload interface{}) (interface{}, error) {
	return v.send(ctx, def, payload, v.ids.next())
}

// SendWithID is Send with a caller-supplied message id; used by the admin
// bridge, which generates ids on behalf of external tooling. A collision
// with an in-flight id fails with DuplicateIDError.
func (v *VirtualChargePoint) SendWithID(ctx context.Context, def *registry.OutgoingMessage, payload interface{}, messageID string) (interface{}, error) {
	return v.send(ctx, def, payload, messageID)
}

func (v *VirtualChargePoint) send(ctx context.Context, def *registry.OutgoingMessage, payload interface{}, messageID string) (interface{}, error) {
	if v.State() != StateOpen {
		return nil, ErrNotConnected
	}

	validated, err := def.Request.Check(payload)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(validated)
	if err != nil {
		return nil, fmt.Errorf("vcp: cannot marshal %s request: %w", def.Action, err)
	}
	data, err := ocpp.Marshal(&ocpp.Call{ID: messageID, Action: def.Action, Payload: raw})
	if err != nil {
		return nil, err
	}

	now := time.Now()
	p := &pendingCall{
		id:        messageID,
		def:       def,
		createdAt: now,
		deadline:  now.Add(v.cfg.CallTimeout),
		settled:   make(chan outcome, 1),
	}
	if err := v.pending.register(p); err != nil {
		return nil, err
	}
	if err := v.writeFrame(data); err != nil {
		v.pending.remove(messageID)
		return nil, fmt.Errorf("vcp: cannot write %s call: %w", def.Action, err)
	}
	v.logCall(def.Action, messageID).Debug("call sent")

	select {
	case out := <-p.settled:
		return v.resolve(def, messageID, out)
	case <-ctx.Done():
		v.pending.remove(messageID)
		return nil, ctx.Err()
	}
}

func (v *VirtualChargePoint) resolve(def *registry.OutgoingMessage, messageID string, out outcome) (interface{}, error) {
	switch out.kind {
	case outcomeResult:
		response, err := def.Response.Unmarshal(out.payload)
		if err != nil {
			v.logCall(def.Action, messageID).WithError(err).Error("CSMS response failed validation")
			return nil, err
		}
		if def.OnResponse != nil {
			def.OnResponse(response)
		}
		return response, nil
	case outcomeCallError:
		return nil, &ProtocolError{
			Action:           def.Action,
			MessageID:        messageID,
			ErrorCode:        out.callErr.ErrorCode,
			ErrorDescription: out.callErr.ErrorDescription,
			ErrorDetails:     out.callErr.ErrorDetails,
		}
	case outcomeTimeout:
		return nil, &TimeoutError{Action: def.Action, MessageID: messageID}
	default:
		return nil, ErrDisconnected
	}
}

// readLoop is the single consumer of inbound frames. It must keep running
// while sends are outstanding; a read failure is terminal.
func (v *VirtualChargePoint) readLoop() {
	for {
		data, err := v.transport.ReadMessage()
		if err != nil {
			if v.State() == StateClosing || v.State() == StateClosed {
				v.terminate(nil)
			} else {
				v.terminate(err)
			}
			return
		}
		v.handleFrame(data)
	}
}

// expireLoop drives call timeouts on a periodic tick, so they fire even when
// no frames arrive.
func (v *VirtualChargePoint) expireLoop() {
	ticker := time.NewTicker(expireTickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-v.done:
			return
		case now := <-ticker.C:
			for _, p := range v.pending.expire(now) {
				v.logCall(p.def.Action, p.id).Warnf("call timed out after %v", v.cfg.CallTimeout)
			}
		}
	}
}

func (v *VirtualChargePoint) handleFrame(data []byte) {
	msg, err := ocpp.Unmarshal(data)
	if err != nil {
		// Malformed frame from the remote: drop it, stay connected.
		v.log.WithError(err).Warn("dropping malformed frame")
		return
	}
	switch m := msg.(type) {
	case *ocpp.Call:
		go v.handleCall(m)
	case *ocpp.CallResult:
		if !v.pending.settle(m.ID, outcome{kind: outcomeResult, payload: m.Payload}) {
			v.log.WithField("messageId", m.ID).Warn("CallResult for unknown message id")
		}
	case *ocpp.CallError:
		if !v.pending.settle(m.ID, outcome{kind: outcomeCallError, callErr: m}) {
			v.log.WithField("messageId", m.ID).Warn("CallError for unknown message id")
		}
	}
}

// handleCall answers one server-initiated call. Runs outside the receive
// loop so handlers can issue further outgoing calls while earlier inbound
// calls are still being handled.
func (v *VirtualChargePoint) handleCall(call *ocpp.Call) {
	def, err := v.reg.IncomingFor(v.cfg.Version, call.Action)
	if err != nil {
		// Unsupported actions are rejected explicitly, never dropped.
		v.logCall(call.Action, call.ID).Warn("call for unregistered action")
		v.mustWriteError(call.ID, ocpp.NotImplemented,
			fmt.Sprintf("action %v is not implemented", call.Action), nil)
		return
	}
	request, err := def.Request.Unmarshal(call.Payload)
	if err != nil {
		v.logCall(call.Action, call.ID).WithError(err).Warn("inbound payload failed validation")
		v.mustWriteError(call.ID, ocpp.FormationViolationCode(v.cfg.Version), err.Error(), nil)
		return
	}

	callCtx := &CallContext{vcp: v, call: call, def: def, request: request}
	err = def.Handler(callCtx)
	switch {
	case err != nil && callCtx.answered.Load():
		v.logCall(call.Action, call.ID).WithError(err).Error("handler failed after responding")
	case err != nil:
		v.logCall(call.Action, call.ID).WithError(err).Error("handler failed")
		v.mustWriteError(call.ID, ocpp.InternalError, err.Error(), nil)
	case !callCtx.answered.Load():
		// The peer must never be left unanswered; this is a handler bug.
		v.logCall(call.Action, call.ID).Error("handler returned without responding")
		v.mustWriteError(call.ID, ocpp.InternalError, "handler produced no response", nil)
	}
}

// writeFrame serializes access to the transport write path so frames are
// never interleaved.
func (v *VirtualChargePoint) writeFrame(data []byte) error {
	v.writeMu.Lock()
	defer v.writeMu.Unlock()
	return v.transport.WriteMessage(data)
}

func (v *VirtualChargePoint) writeMessage(msg ocpp.Message) error {
	data, err := ocpp.Marshal(msg)
	if err != nil {
		return err
	}
	return v.writeFrame(data)
}

func (v *VirtualChargePoint) writeError(messageID string, code ocpp.ErrorCode, description string, details interface{}) error {
	var rawDetails json.RawMessage
	if details != nil {
		rawDetails, _ = json.Marshal(details)
	}
	return v.writeMessage(&ocpp.CallError{
		ID:               messageID,
		ErrorCode:        code,
		ErrorDescription: description,
		ErrorDetails:     rawDetails,
	})
}

func (v *VirtualChargePoint) mustWriteError(messageID string, code ocpp.ErrorCode, description string, details interface{}) {
	if err := v.writeError(messageID, code, description, details); err != nil {
		v.log.WithError(err).WithField("messageId", messageID).Error("cannot write CallError")
	}
}

func (v *VirtualChargePoint) logCall(action, messageID string) *logrus.Entry {
	return v.log.WithFields(logrus.Fields{"message": action, "messageId": messageID})
}
