package router

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bactalk/bacstack/internal/npdu"
)

type fakePort struct {
	id        string
	mu        sync.Mutex
	unicasts  [][]byte
	broadcast [][]byte
}

func (p *fakePort) ID() string         { return p.id }
func (p *fakePort) LocalMac() []byte   { return []byte{0x01} }
func (p *fakePort) MaxNPDULength() int { return 1476 }
func (p *fakePort) SendUnicast(dest, wire []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unicasts = append(p.unicasts, wire)
	return nil
}
func (p *fakePort) SendBroadcast(wire []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.broadcast = append(p.broadcast, wire)
	return nil
}

func TestHopCountZeroNeverForwarded(t *testing.T) {
	r := New(nil)
	portA := &fakePort{id: "a"}
	portB := &fakePort{id: "b"}
	r.AddPort(portA, 1)
	r.AddPort(portB, 2)

	n := npdu.NPDU{
		Control:     npdu.Control{HasDestination: true},
		Destination: &npdu.NetworkAddress{Net: 2, Mac: []byte{0x02}},
		HopCount:    0,
	}
	wire := npdu.EncodeNPDU(n, []byte{0xAA})

	r.HandleFrame(context.Background(), Frame{Port: "a", SrcMac: []byte{0x01}, NPDU: wire})

	portB.mu.Lock()
	defer portB.mu.Unlock()
	assert.Empty(t, portB.unicasts)
}

func TestForwardsToKnownDirectlyConnectedNetwork(t *testing.T) {
	r := New(nil)
	portA := &fakePort{id: "a"}
	portB := &fakePort{id: "b"}
	r.AddPort(portA, 1)
	r.AddPort(portB, 2)

	n := npdu.NPDU{
		Control:     npdu.Control{HasDestination: true},
		Destination: &npdu.NetworkAddress{Net: 2, Mac: []byte{0x02}},
		HopCount:    255,
	}
	wire := npdu.EncodeNPDU(n, []byte{0xAA})

	r.HandleFrame(context.Background(), Frame{Port: "a", SrcMac: []byte{0x01}, NPDU: wire})

	portB.mu.Lock()
	defer portB.mu.Unlock()
	require.Len(t, portB.unicasts, 1)

	fwd, payload, err := npdu.DecodeNPDU(portB.unicasts[0])
	require.NoError(t, err)
	assert.Equal(t, uint8(254), fwd.HopCount)
	assert.Equal(t, []byte{0xAA}, payload)
}

func TestWhoIsRouterSplitHorizon(t *testing.T) {
	r := New(nil)
	portA := &fakePort{id: "a"}
	portB := &fakePort{id: "b"}
	portC := &fakePort{id: "c"}
	r.AddPort(portA, 1)
	r.AddPort(portB, 2)
	r.AddPort(portC, 3)

	query := npdu.NPDU{Control: npdu.Control{IsNetworkMessage: true}, MessageType: npdu.MsgWhoIsRouterToNetwork}
	wire := npdu.EncodeNPDU(query, nil)

	r.HandleFrame(context.Background(), Frame{Port: "a", SrcMac: []byte{0x9}, NPDU: wire})

	portB.mu.Lock()
	assert.Empty(t, portB.broadcast, "the reply goes back only on the arrival port")
	portB.mu.Unlock()

	portA.mu.Lock()
	require.Len(t, portA.broadcast, 1)
	reply, body, err := npdu.DecodeNPDU(portA.broadcast[0])
	require.NoError(t, err)
	assert.Equal(t, npdu.MsgIAmRouterToNetwork, reply.MessageType)
	networks, err := DecodeIAmRouterToNetwork(body)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint16{2, 3}, networks, "arrival network 1 must not be advertised")
	portA.mu.Unlock()
}

func TestDeliversLocalWhenNoDestination(t *testing.T) {
	r := New(nil)
	port := &fakePort{id: "a"}
	r.AddPort(port, 1)

	var gotPayload []byte
	r.SetAPDUHandler(func(ctx context.Context, src npdu.NetworkAddress, p string, apdu []byte) {
		gotPayload = apdu
	})

	n := npdu.NPDU{}
	wire := npdu.EncodeNPDU(n, []byte{0x01, 0x02})

	r.HandleFrame(context.Background(), Frame{Port: "a", SrcMac: []byte{0x01}, NPDU: wire})

	assert.Equal(t, []byte{0x01, 0x02}, gotPayload)
}

func TestUnknownNetworkTriggersDiscoveryQuery(t *testing.T) {
	r := New(nil)
	portA := &fakePort{id: "a"}
	portB := &fakePort{id: "b"}
	r.AddPort(portA, 1)
	r.AddPort(portB, 2)

	n := npdu.NPDU{
		Control:     npdu.Control{HasDestination: true},
		Destination: &npdu.NetworkAddress{Net: 99},
		HopCount:    255,
	}
	wire := npdu.EncodeNPDU(n, []byte{0xAA})

	r.HandleFrame(context.Background(), Frame{Port: "a", SrcMac: []byte{0x01}, NPDU: wire})

	portB.mu.Lock()
	require.Len(t, portB.broadcast, 1)
	query, _, err := npdu.DecodeNPDU(portB.broadcast[0])
	require.NoError(t, err)
	assert.Equal(t, npdu.MsgWhoIsRouterToNetwork, query.MessageType)
	portB.mu.Unlock()
}
