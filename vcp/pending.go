package vcp

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/SIA-PC-Consulting/ocpp-virtual-charge-point/ocpp"
	"github.com/SIA-PC-Consulting/ocpp-virtual-charge-point/registry"
)

type outcomeKind int

const (
	outcomeResult outcomeKind = iota
	outcomeCallError
	outcomeTimeout
	outcomeDisconnected
)

// outcome is the single-fire resolution of a pending call: exactly one of a
// matching CallResult, a matching CallError, a timeout expiry or a
// disconnect.
type outcome struct {
	kind    outcomeKind
	payload json.RawMessage
	callErr *ocpp.CallError
}

type pendingCall struct {
	id        string
	def       *registry.OutgoingMessage
	createdAt time.Time
	deadline  time.Time
	settled   chan outcome // buffered, written to exactly once
}

// pendingCalls is the correlation table: message id → in-flight request
// metadata. One table per connection, owned exclusively by it. Removal under
// the mutex is what makes the timeout-vs-response race safe: whichever settle
// path wins removes the entry, the loser finds nothing.
type pendingCalls struct {
	mu    sync.Mutex
	calls map[string]*pendingCall
}

func newPendingCalls() *pendingCalls {
	return &pendingCalls{calls: make(map[string]*pendingCall)}
}

// register adds a pending call. A live entry with the same id fails with
// DuplicateIDError and leaves the original untouched.
func (t *pendingCalls) register(p *pendingCall) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.calls[p.id]; exists {
		return &DuplicateIDError{MessageID: p.id}
	}
	t.calls[p.id] = p
	return nil
}

// settle resolves the entry for id, firing its completion exactly once.
// Returns false if no such entry exists: a response to a call the engine
// never sent or already resolved, a protocol violation by the peer rather
// than a local bug.
func (t *pendingCalls) settle(id string, out outcome) bool {
	t.mu.Lock()
	p, ok := t.calls[id]
	if ok {
		delete(t.calls, id)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	p.settled <- out
	return true
}

// remove drops an entry without firing its completion. Used when the caller
// itself abandons the call (write failure, context cancellation).
func (t *pendingCalls) remove(id string) {
	t.mu.Lock()
	delete(t.calls, id)
	t.mu.Unlock()
}

// expire settles every entry whose deadline has passed with a Timeout
// outcome. Invoked on a periodic tick so timeouts fire even when no frames
// arrive.
func (t *pendingCalls) expire(now time.Time) []*pendingCall {
	t.mu.Lock()
	var overdue []*pendingCall
	for id, p := range t.calls {
		if now.After(p.deadline) {
			delete(t.calls, id)
			overdue = append(overdue, p)
		}
	}
	t.mu.Unlock()
	for _, p := range overdue {
		p.settled <- outcome{kind: outcomeTimeout}
	}
	return overdue
}

// failAll settles every live entry with the given outcome. Used on
// connection teardown so no call is left hanging forever.
func (t *pendingCalls) failAll(out outcome) int {
	t.mu.Lock()
	calls := make([]*pendingCall, 0, len(t.calls))
	for id, p := range t.calls {
		delete(t.calls, id)
		calls = append(calls, p)
	}
	t.mu.Unlock()
	for _, p := range calls {
		p.settled <- out
	}
	return len(calls)
}

func (t *pendingCalls) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}
