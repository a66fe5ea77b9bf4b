package bbmd

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bactalk/bacstack/internal/bvll"
	"github.com/bactalk/bacstack/internal/npdu"
)

type fakeTransport struct {
	mu          sync.Mutex
	unicasts    []npdu.NetworkAddress
	broadcasts  []npdu.NetworkAddress
}

func (t *fakeTransport) SendUnicast(addr npdu.NetworkAddress, wire []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.unicasts = append(t.unicasts, addr)
	return nil
}

func (t *fakeTransport) SendDirectedBroadcast(addr npdu.NetworkAddress, mask [4]byte, wire []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.broadcasts = append(t.broadcasts, addr)
	return nil
}

func addr(b byte) npdu.NetworkAddress {
	return npdu.NetworkAddress{Mac: []byte{192, 168, 1, b, 0xBA, 0xC0}}
}

func TestRegisterForeignDeviceThenForwardedNPDUReachesBDTAndFDT(t *testing.T) {
	transport := &fakeTransport{}
	self := addr(1)
	peer := addr(2)
	bdt := []BDTEntry{{Address: self}, {Address: peer, Mask: [4]byte{255, 255, 255, 0}}}

	b := New(self, bdt, transport, nil, nil)

	reply, err := b.HandleBVLL(context.Background(), addr(10), bvll.Frame{
		Function: bvll.FuncRegisterForeignDevice,
		Body:     []byte{0x00, 0x3C},
	})
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, bvll.FuncResult, reply.Function)

	require.Len(t, b.fdt.Entries(), 1)

	err = b.HandleDistributeBroadcastToNetwork(context.Background(), addr(10), []byte{0xDE, 0xAD})
	require.NoError(t, err)

	transport.mu.Lock()
	defer transport.mu.Unlock()
	assert.Len(t, transport.broadcasts, 1, "must reach the one non-self BDT peer")
	assert.Empty(t, transport.unicasts, "must not re-forward to the originating foreign device")
}

func TestDistributeBroadcastRejectsUnregisteredSender(t *testing.T) {
	transport := &fakeTransport{}
	b := New(addr(1), nil, transport, nil, nil)

	err := b.HandleDistributeBroadcastToNetwork(context.Background(), addr(99), []byte{0x01})
	assert.Error(t, err)
}

func TestForeignDeviceTableEntryExpires(t *testing.T) {
	fdt := NewFDT()
	frozen := time.Now()
	fdt.now = func() time.Time { return frozen }

	fdt.Register(addr(5), time.Second)
	require.Len(t, fdt.Entries(), 1)

	fdt.now = func() time.Time { return frozen.Add(2 * time.Second) }
	expired := fdt.Sweep()
	require.Len(t, expired, 1)
	assert.Empty(t, fdt.Entries())
}

func TestForeignDeviceRegistersAndTransitionsState(t *testing.T) {
	var sent [][]byte
	var mu sync.Mutex
	send := func(ctx context.Context, wire []byte) error {
		mu.Lock()
		defer mu.Unlock()
		sent = append(sent, wire)
		return nil
	}

	fd := NewForeignDevice(addr(1), addr(2), time.Hour, send, nil)
	assert.Equal(t, StateUnregistered, fd.State())

	fd.Start(context.Background())
	time.Sleep(20 * time.Millisecond) // let the registration goroutine send its first frame
	fd.OnResult(bvll.ResultSuccess)
	assert.Equal(t, StateRegistered, fd.State())

	err := fd.Broadcast(context.Background(), []byte{0x01})
	require.NoError(t, err)

	fd.Stop(context.Background())
	assert.Equal(t, StateUnregistered, fd.State())

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(sent), 2, "expected at least register + broadcast frames")
	last, err := bvll.Decode(sent[len(sent)-1])
	require.NoError(t, err)
	assert.Equal(t, bvll.FuncDeleteForeignDeviceTableEntry, last.Function)
}

func TestForeignDeviceBroadcastFailsBeforeRegistration(t *testing.T) {
	fd := NewForeignDevice(addr(1), addr(2), time.Minute, func(ctx context.Context, wire []byte) error { return nil }, nil)
	err := fd.Broadcast(context.Background(), []byte{0x01})
	assert.Error(t, err)
}

func TestEncodeDecodeBDTRoundTrips(t *testing.T) {
	entries := []BDTEntry{
		{Address: addr(1), Mask: [4]byte{255, 255, 255, 0}},
		{Address: addr(2), Mask: [4]byte{255, 255, 255, 0}},
	}
	decoded, err := DecodeBDT(EncodeBDT(entries))
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	assert.Equal(t, entries[0].Mask, decoded[0].Mask)
}

func TestBDTEntryBroadcastAddress(t *testing.T) {
	e := BDTEntry{Address: npdu.NetworkAddress{Mac: []byte{192, 168, 1, 5, 0xBA, 0xC0}}, Mask: [4]byte{255, 255, 255, 0}}
	bcast := e.BroadcastAddress()
	assert.Equal(t, []byte{192, 168, 1, 255, 0xBA, 0xC0}, bcast.Mac)
}
