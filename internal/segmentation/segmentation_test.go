package segmentation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInWindow(t *testing.T) {
	assert.True(t, InWindow(3, 0, 4))
	assert.False(t, InWindow(4, 0, 4))
	assert.True(t, InWindow(1, 254, 4)) // wraps past 255
	assert.False(t, InWindow(0, 1, 1))
}

func TestSplitRoundTripSizes(t *testing.T) {
	payload := make([]byte, 1000)
	segments, err := Split(payload, 50)
	require.NoError(t, err)
	total := 0
	for _, s := range segments {
		assert.LessOrEqual(t, len(s), 45)
		total += len(s)
	}
	assert.Equal(t, 1000, total)
}

func TestSplitRejectsTooManySegments(t *testing.T) {
	payload := make([]byte, 1<<20)
	_, err := Split(payload, 10)
	require.ErrorIs(t, err, ErrTooManySegments)
}

func TestSplitEmptyPayloadYieldsOneSegment(t *testing.T) {
	segments, err := Split(nil, 50)
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.Empty(t, segments[0])
}

func TestNegotiatedWindowSize(t *testing.T) {
	assert.Equal(t, uint8(3), NegotiatedWindowSize(3, 7))
	assert.Equal(t, uint8(3), NegotiatedWindowSize(7, 3))
}

func TestReceiverReassemblesInOrder(t *testing.T) {
	r := NewReceiver(1, "peer", 3)

	_, _, complete, _, err := r.Accept(0, true, []byte("aa"))
	require.NoError(t, err)
	assert.False(t, complete)

	_, _, complete, _, err = r.Accept(1, true, []byte("bb"))
	require.NoError(t, err)
	assert.False(t, complete)

	newBase, _, complete, reassembled, err := r.Accept(2, false, []byte("cc"))
	require.NoError(t, err)
	assert.True(t, complete)
	assert.Equal(t, uint8(3), newBase)
	assert.Equal(t, []byte("aabbcc"), reassembled)
}

func TestReceiverDetectsDuplicate(t *testing.T) {
	r := NewReceiver(1, "peer", 3)
	_, _, _, _, err := r.Accept(0, true, []byte("aa"))
	require.NoError(t, err)

	_, _, _, _, err = r.Accept(0, true, []byte("aa"))
	require.ErrorIs(t, err, ErrDuplicateSegment)
}

func TestReceiverRejectsOutOfWindow(t *testing.T) {
	r := NewReceiver(1, "peer", 2)
	_, _, _, _, err := r.Accept(5, false, []byte("x"))
	require.ErrorIs(t, err, ErrOutOfWindow)
}

func TestReceiverHandlesOutOfOrderSegments(t *testing.T) {
	r := NewReceiver(1, "peer", 4)

	_, _, complete, _, err := r.Accept(1, true, []byte("bb"))
	require.NoError(t, err)
	assert.False(t, complete)

	_, _, complete, _, err = r.Accept(0, true, []byte("aa"))
	require.NoError(t, err)
	assert.False(t, complete)

	_, _, complete, reassembled, err := r.Accept(2, false, []byte("cc"))
	require.NoError(t, err)
	assert.True(t, complete)
	assert.Equal(t, []byte("aabbcc"), reassembled)
}

func TestSenderRetransmitsOnceThenTimesOut(t *testing.T) {
	var mu sync.Mutex
	var sentCount int

	segments, err := Split([]byte("abcdefghij"), 8)
	require.NoError(t, err)

	send := func(ctx context.Context, apdu []byte) error {
		mu.Lock()
		sentCount++
		mu.Unlock()
		return nil
	}
	build := func(seq uint8, moreFollows bool, payload []byte) []byte {
		return payload
	}

	s := NewSender(1, "peer", segments, 1, 10*time.Millisecond, send, build)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err = s.Run(ctx)
	var timeoutErr *TimeoutError
	require.True(t, errors.As(err, &timeoutErr))

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, sentCount, 2)
}

func TestSenderCompletesOnFullAck(t *testing.T) {
	segments, err := Split([]byte("abcdefghij"), 8)
	require.NoError(t, err)

	send := func(ctx context.Context, apdu []byte) error { return nil }
	build := func(seq uint8, moreFollows bool, payload []byte) []byte { return payload }

	s := NewSender(1, "peer", segments, 4, 50*time.Millisecond, send, build)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(5 * time.Millisecond)
	complete, err := s.OnSegmentAck(ctx, uint8(len(segments)), 4)
	require.NoError(t, err)
	assert.True(t, complete)

	select {
	case runErr := <-done:
		assert.NoError(t, runErr)
	case <-time.After(time.Second):
		t.Fatal("sender did not complete after full ack")
	}
}

func TestReestablishedTransferStartsFromConfiguredWindow(t *testing.T) {
	// A transfer aborted mid-flight must not leak state into its
	// replacement: the new receiver negotiates from the configured
	// window, not whatever base or window the aborted one reached.
	first := NewReceiver(1, "peer", 4)
	_, _, _, _, err := first.Accept(0, true, []byte("aa"))
	require.NoError(t, err)
	_, _, _, _, err = first.Accept(200, false, []byte("xx"))
	require.ErrorIs(t, err, ErrOutOfWindow)

	second := NewReceiver(2, "peer", 4)
	newBase, actualWindow, complete, reassembled, err := second.Accept(0, false, []byte("fresh"))
	require.NoError(t, err)
	assert.True(t, complete)
	assert.Equal(t, uint8(1), newBase)
	assert.Equal(t, uint8(4), actualWindow)
	assert.Equal(t, []byte("fresh"), reassembled)
}
