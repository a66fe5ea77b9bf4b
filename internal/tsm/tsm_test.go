package tsm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bactalk/bacstack/internal/apdu"
)

func TestInvokeIDAllocatorSkipsActive(t *testing.T) {
	a := NewInvokeIDAllocator()
	first, err := a.Allocate()
	require.NoError(t, err)

	second, err := a.Allocate()
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	a.Release(first)
	assert.False(t, a.InUse(first))
	assert.True(t, a.InUse(second))
}

func TestInvokeIDAllocatorExhaustion(t *testing.T) {
	a := NewInvokeIDAllocator()
	for i := 0; i < 256; i++ {
		_, err := a.Allocate()
		require.NoError(t, err)
	}
	_, err := a.Allocate()
	require.ErrorIs(t, err, ErrInvokeIDsExhausted)
}

func TestTransactionCompletesOnSimpleACK(t *testing.T) {
	var sent [][]byte
	var mu sync.Mutex
	send := func(ctx context.Context, b []byte) error {
		mu.Lock()
		sent = append(sent, b)
		mu.Unlock()
		return nil
	}

	tx := NewTransaction(1, "peer", []byte("request"), send, Config{Timeout: time.Second, MaxRetries: 2})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan Outcome, 1)
	go func() { done <- tx.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	tx.HandleSimpleACK(apdu.SimpleACK{InvokeID: 1, ServiceChoice: 8})

	out := <-done
	require.NoError(t, out.Err)
	require.NotNil(t, out.SimpleACK)
	assert.Equal(t, uint8(8), out.SimpleACK.ServiceChoice)
}

func TestTransactionTimesOutAfterRetries(t *testing.T) {
	var count int
	var mu sync.Mutex
	send := func(ctx context.Context, b []byte) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	}

	tx := NewTransaction(2, "peer", []byte("request"), send, Config{Timeout: 10 * time.Millisecond, MaxRetries: 1})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	out := tx.Run(ctx)
	var timeoutErr *apdu.TimeoutError
	require.True(t, errors.As(out.Err, &timeoutErr))

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, count, 2)
}

func TestTransactionHandlesAbort(t *testing.T) {
	send := func(ctx context.Context, b []byte) error { return nil }
	tx := NewTransaction(3, "peer", []byte("req"), send, Config{Timeout: time.Second, MaxRetries: 1})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan Outcome, 1)
	go func() { done <- tx.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	tx.HandleAbort(apdu.AbortPDU{InvokeID: 3, Reason: apdu.AbortOutOfResources})

	out := <-done
	var abortErr *apdu.AbortError
	require.True(t, errors.As(out.Err, &abortErr))
	assert.Equal(t, apdu.AbortOutOfResources, abortErr.Reason)
}

func TestManagerSendConfirmedRoutesSimpleACK(t *testing.T) {
	registry := NewServiceRegistry()
	mgr := NewManager(registry, Config{Timeout: time.Second, MaxRetries: 2})

	send := func(ctx context.Context, b []byte) error { return nil }

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var invokeID uint8
	done := make(chan Outcome, 1)
	go func() {
		out := mgr.SendConfirmed(ctx, "peer", func(id uint8) []byte {
			invokeID = id
			return []byte{byte(id)}
		}, send)
		done <- out
	}()

	time.Sleep(10 * time.Millisecond)
	mgr.OnSimpleACK(ctx, "peer", apdu.SimpleACK{InvokeID: invokeID, ServiceChoice: 8})

	out := <-done
	require.NoError(t, out.Err)
	require.NotNil(t, out.SimpleACK)
}

func TestManagerDispatchesConfirmedRequestToRegisteredHandler(t *testing.T) {
	registry := NewServiceRegistry()
	registry.RegisterConfirmed(12, "read-property", func(ctx context.Context, peer string, data []byte) (*ServiceResult, error) {
		return &ServiceResult{ComplexPayload: []byte{0xAA}}, nil
	})
	mgr := NewManager(registry, Config{Timeout: time.Second, MaxRetries: 1})

	resp := mgr.HandleConfirmedRequest(context.Background(), "peer", apdu.ConfirmedRequest{InvokeID: 5, ServiceChoice: 12})
	require.NotNil(t, resp.Complex)
	assert.Equal(t, []byte{0xAA}, resp.Complex.ServiceData)
}

func TestManagerDispatchUnrecognizedServiceRejects(t *testing.T) {
	registry := NewServiceRegistry()
	mgr := NewManager(registry, Config{Timeout: time.Second, MaxRetries: 1})

	resp := mgr.HandleConfirmedRequest(context.Background(), "peer", apdu.ConfirmedRequest{InvokeID: 6, ServiceChoice: 99})
	require.NotNil(t, resp.RejectPDU)
	assert.Equal(t, apdu.RejectUnrecognizedService, resp.RejectPDU.Reason)
}

func TestRegisterTemporaryTapSeesUnconfirmed(t *testing.T) {
	registry := NewServiceRegistry()

	var permanent, tapped [][]byte
	registry.RegisterUnconfirmed(0, "i-am", func(ctx context.Context, peer string, data []byte) (*ServiceResult, error) {
		permanent = append(permanent, data)
		return nil, nil
	})
	cancel := registry.RegisterTemporary(0, func(ctx context.Context, peer string, data []byte) (*ServiceResult, error) {
		tapped = append(tapped, data)
		return nil, nil
	})

	require.NoError(t, registry.DispatchUnconfirmed(context.Background(), "peer", 0, []byte{0x01}))
	assert.Len(t, permanent, 1)
	assert.Len(t, tapped, 1)

	cancel()
	require.NoError(t, registry.DispatchUnconfirmed(context.Background(), "peer", 0, []byte{0x02}))
	assert.Len(t, permanent, 2)
	assert.Len(t, tapped, 1, "cancelled tap must not fire again")
}

func TestTemporaryTapWithoutPermanentHandler(t *testing.T) {
	registry := NewServiceRegistry()

	seen := 0
	cancel := registry.RegisterTemporary(1, func(ctx context.Context, peer string, data []byte) (*ServiceResult, error) {
		seen++
		return nil, nil
	})
	defer cancel()

	require.NoError(t, registry.DispatchUnconfirmed(context.Background(), "peer", 1, nil))
	assert.Equal(t, 1, seen)
}

func TestTransactionAcceptsReplyAfterFinalRetry(t *testing.T) {
	var count int
	var mu sync.Mutex
	send := func(ctx context.Context, b []byte) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	}

	// Timeout 60ms, 2 retries: transmissions at ~0/60/120ms, with the
	// final reply window open until ~180ms. A reply landing after the
	// last retransmission must still complete the transaction.
	tx := NewTransaction(7, "peer", []byte("request"), send, Config{Timeout: 60 * time.Millisecond, MaxRetries: 2})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan Outcome, 1)
	go func() { done <- tx.Run(ctx) }()

	time.Sleep(140 * time.Millisecond)
	tx.HandleSimpleACK(apdu.SimpleACK{InvokeID: 7, ServiceChoice: 12})

	out := <-done
	require.NoError(t, out.Err)
	require.NotNil(t, out.SimpleACK)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, count, "initial send plus exactly two retries")
}

func TestTransactionCancelStopsResendsAndSendsAbort(t *testing.T) {
	var sent [][]byte
	var mu sync.Mutex
	send := func(ctx context.Context, b []byte) error {
		mu.Lock()
		sent = append(sent, append([]byte(nil), b...))
		mu.Unlock()
		return nil
	}

	tx := NewTransaction(9, "peer", []byte("request"), send, Config{Timeout: 100 * time.Millisecond, MaxRetries: 3})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Outcome, 1)
	go func() { done <- tx.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	out := <-done
	var abortErr *apdu.AbortError
	require.True(t, errors.As(out.Err, &abortErr))
	assert.Equal(t, uint8(9), abortErr.InvokeID)
	assert.Equal(t, StateAborted, tx.CurrentState())

	// Sit through what would have been several retry windows: nothing
	// further may hit the wire after the cancel's Abort PDU.
	time.Sleep(300 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, sent, 2, "one request, one abort pdu, no resends")
	assert.Equal(t, []byte("request"), sent[0])
	assert.Equal(t, apdu.TypeAbort, apdu.PDUType(sent[1][0]>>4))

	// A straggling reply must not produce a late completion event.
	tx.HandleSimpleACK(apdu.SimpleACK{InvokeID: 9, ServiceChoice: 12})
	assert.Equal(t, StateAborted, tx.CurrentState())
}

func TestManagerInvokeIDSpacesArePerPeer(t *testing.T) {
	registry := NewServiceRegistry()
	mgr := NewManager(registry, Config{Timeout: time.Second, MaxRetries: 1})

	send := func(ctx context.Context, b []byte) error { return nil }

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	ids := make(chan uint8, 2)
	done := make(chan Outcome, 2)
	for _, peer := range []string{"peer-a", "peer-b"} {
		peer := peer
		go func() {
			out := mgr.SendConfirmed(ctx, peer, func(id uint8) []byte {
				ids <- id
				return []byte{byte(id)}
			}, send)
			done <- out
		}()
	}

	first, second := <-ids, <-ids
	assert.Equal(t, first, second, "fresh peers draw from independent id spaces")

	time.Sleep(10 * time.Millisecond)
	mgr.OnSimpleACK(ctx, "peer-a", apdu.SimpleACK{InvokeID: first, ServiceChoice: 8})
	mgr.OnSimpleACK(ctx, "peer-b", apdu.SimpleACK{InvokeID: second, ServiceChoice: 8})

	require.NoError(t, (<-done).Err)
	require.NoError(t, (<-done).Err)
}
