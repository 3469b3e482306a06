package vcp

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPending(id string, deadline time.Time) *pendingCall {
	return &pendingCall{
		id:        id,
		createdAt: time.Now(),
		deadline:  deadline,
		settled:   make(chan outcome, 1),
	}
}

func TestRegisterAndSettle(t *testing.T) {
	table := newPendingCalls()
	p := newTestPending("msg-1", time.Now().Add(time.Minute))
	require.NoError(t, table.register(p))
	assert.Equal(t, 1, table.size())

	ok := table.settle("msg-1", outcome{kind: outcomeResult, payload: json.RawMessage(`{"status":"Accepted"}`)})
	assert.True(t, ok)
	assert.Equal(t, 0, table.size())

	out := <-p.settled
	assert.Equal(t, outcomeResult, out.kind)
	assert.JSONEq(t, `{"status":"Accepted"}`, string(out.payload))
}

func TestRegisterDuplicateID(t *testing.T) {
	table := newPendingCalls()
	deadline := time.Now().Add(time.Minute)
	require.NoError(t, table.register(newTestPending("msg-1", deadline)))

	err := table.register(newTestPending("msg-1", deadline))
	var dup *DuplicateIDError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "msg-1", dup.MessageID)
	// The original entry survives the rejected registration.
	assert.Equal(t, 1, table.size())
}

func TestSettleUnknownID(t *testing.T) {
	table := newPendingCalls()
	assert.False(t, table.settle("never-sent", outcome{kind: outcomeResult}))
}

func TestSettleFiresOnce(t *testing.T) {
	table := newPendingCalls()
	p := newTestPending("msg-1", time.Now().Add(time.Minute))
	require.NoError(t, table.register(p))

	assert.True(t, table.settle("msg-1", outcome{kind: outcomeResult}))
	assert.False(t, table.settle("msg-1", outcome{kind: outcomeCallError}))

	out := <-p.settled
	assert.Equal(t, outcomeResult, out.kind)
	select {
	case <-p.settled:
		t.Fatal("settled fired twice")
	default:
	}
}

func TestRemoveDoesNotFire(t *testing.T) {
	table := newPendingCalls()
	p := newTestPending("msg-1", time.Now().Add(time.Minute))
	require.NoError(t, table.register(p))

	table.remove("msg-1")
	assert.Equal(t, 0, table.size())
	select {
	case <-p.settled:
		t.Fatal("remove must not settle the call")
	default:
	}
}

func TestExpire(t *testing.T) {
	table := newPendingCalls()
	now := time.Now()
	overdue := newTestPending("overdue", now.Add(-time.Second))
	fresh := newTestPending("fresh", now.Add(time.Minute))
	require.NoError(t, table.register(overdue))
	require.NoError(t, table.register(fresh))

	expired := table.expire(now)
	require.Len(t, expired, 1)
	assert.Equal(t, "overdue", expired[0].id)
	assert.Equal(t, 1, table.size())

	out := <-overdue.settled
	assert.Equal(t, outcomeTimeout, out.kind)
}

// An expired call cannot be settled again by a late response.
func TestExpireThenLateResponse(t *testing.T) {
	table := newPendingCalls()
	p := newTestPending("msg-1", time.Now().Add(-time.Second))
	require.NoError(t, table.register(p))

	require.Len(t, table.expire(time.Now()), 1)
	assert.False(t, table.settle("msg-1", outcome{kind: outcomeResult}))

	out := <-p.settled
	assert.Equal(t, outcomeTimeout, out.kind)
}

func TestFailAll(t *testing.T) {
	table := newPendingCalls()
	calls := make([]*pendingCall, 5)
	for i := range calls {
		calls[i] = newTestPending(fmt.Sprintf("msg-%d", i), time.Now().Add(time.Minute))
		require.NoError(t, table.register(calls[i]))
	}

	assert.Equal(t, 5, table.failAll(outcome{kind: outcomeDisconnected}))
	assert.Equal(t, 0, table.size())
	for _, p := range calls {
		out := <-p.settled
		assert.Equal(t, outcomeDisconnected, out.kind)
	}
}

// Concurrent settle and expire race for the same entry; exactly one of them
// must win and the call fires exactly once.
func TestSettleExpireRace(t *testing.T) {
	for i := 0; i < 100; i++ {
		table := newPendingCalls()
		p := newTestPending("msg-1", time.Now().Add(-time.Millisecond))
		require.NoError(t, table.register(p))

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			table.settle("msg-1", outcome{kind: outcomeResult})
		}()
		go func() {
			defer wg.Done()
			table.expire(time.Now())
		}()
		wg.Wait()

		out := <-p.settled
		assert.Contains(t, []outcomeKind{outcomeResult, outcomeTimeout}, out.kind)
		select {
		case <-p.settled:
			t.Fatal("call settled twice")
		default:
		}
		assert.Equal(t, 0, table.size())
	}
}
