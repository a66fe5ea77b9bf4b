package bbmd

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/bactalk/bacstack/internal/bvll"
	"github.com/bactalk/bacstack/internal/logger"
	"github.com/bactalk/bacstack/internal/npdu"
	"github.com/bactalk/bacstack/pkg/metrics"
)

// Transport is the sending half of the IPv4 data link a BBMD rides on:
// unicast to one peer, or a directed broadcast onto a peer's subnet.
type Transport interface {
	SendUnicast(addr npdu.NetworkAddress, wire []byte) error
	SendDirectedBroadcast(addr npdu.NetworkAddress, mask [4]byte, wire []byte) error
}

// DeliverFunc hands a distributed broadcast's original NPDU to the local
// network stack, as if it had arrived directly on this subnet.
type DeliverFunc func(ctx context.Context, origin npdu.NetworkAddress, npduBytes []byte)

// BBMD is a Broadcast Distribution Master Device: it relays broadcasts
// between the static peers of a Broadcast Distribution Table and the
// foreign devices registered in its Foreign Device Table, per Annex
// J.4.
type BBMD struct {
	self      npdu.NetworkAddress
	bdt       []BDTEntry
	fdt       *FDT
	transport Transport
	deliver   DeliverFunc
	metrics   metrics.BBMD
}

// New creates a BBMD seeded with a static BDT. self identifies this
// BBMD's own entry so it is skipped when distributing its own
// originations.
func New(self npdu.NetworkAddress, bdt []BDTEntry, transport Transport, deliver DeliverFunc, m metrics.BBMD) *BBMD {
	if m == nil {
		m = metrics.NoOp().BBMD
	}
	return &BBMD{
		self:      self,
		bdt:       bdt,
		fdt:       NewFDT(),
		transport: transport,
		deliver:   deliver,
		metrics:   m,
	}
}

// BDT returns the current static broadcast distribution table.
func (b *BBMD) BDT() []BDTEntry { return b.bdt }

// SetBDT replaces the broadcast distribution table, as driven by a
// Write-Broadcast-Distribution-Table request.
func (b *BBMD) SetBDT(entries []BDTEntry) { b.bdt = entries }

// SweepForeignDevices evicts expired foreign device registrations. Call
// this periodically (e.g. once a second) from the owning adapter.
func (b *BBMD) SweepForeignDevices() {
	for _, addr := range b.fdt.Sweep() {
		b.metrics.ForeignDeviceExpired(addr.String())
		logger.Debug("foreign device registration expired", logger.PeerStr(addr.String()))
	}
}

// HandleOriginalBroadcast distributes a broadcast that a device on this
// BBMD's own subnet just originated: every other BDT peer and every
// registered foreign device receives a Forwarded-NPDU. The local subnet
// already saw it directly, so no local redelivery happens here.
func (b *BBMD) HandleOriginalBroadcast(ctx context.Context, npduBytes []byte) {
	b.distribute(ctx, b.self, npduBytes, true)
}

// HandleDistributeBroadcastToNetwork answers a foreign device's
// Distribute-Broadcast-To-Network: the sender must be currently
// registered, and the broadcast reaches every BDT peer, every other
// foreign device, and this BBMD's own local subnet.
func (b *BBMD) HandleDistributeBroadcastToNetwork(ctx context.Context, origin npdu.NetworkAddress, npduBytes []byte) error {
	if !b.isRegistered(origin) {
		return fmt.Errorf("bbmd: distribute-broadcast-to-network from unregistered foreign device %s", origin)
	}
	b.distribute(ctx, origin, npduBytes, false)
	if b.deliver != nil {
		b.deliver(ctx, origin, npduBytes)
	}
	return nil
}

// HandleForwardedNPDU delivers a Forwarded-NPDU received from a peer BDT
// member locally; peers are assumed fully meshed, so no further relay
// happens.
func (b *BBMD) HandleForwardedNPDU(ctx context.Context, origin npdu.NetworkAddress, npduBytes []byte) {
	if b.deliver != nil {
		b.deliver(ctx, origin, npduBytes)
	}
}

func (b *BBMD) distribute(ctx context.Context, origin npdu.NetworkAddress, npduBytes []byte, includeSelf bool) {
	wire := bvll.Frame{
		Function: bvll.FuncForwardedNPDU,
		Body:     append(padAddr(origin.Mac), npduBytes...),
	}.Encode()

	peers := 0
	for _, entry := range b.bdt {
		if !includeSelf && addrEqual(entry.Address, origin) {
			continue
		}
		if addrEqual(entry.Address, b.self) {
			continue
		}
		if err := b.transport.SendDirectedBroadcast(entry.Address, entry.Mask, wire); err != nil {
			logger.WarnCtx(ctx, "bbmd: broadcast to bdt peer failed", logger.Err(err))
			continue
		}
		peers++
	}

	for _, entry := range b.fdt.Entries() {
		if addrEqual(entry.Address, origin) {
			continue
		}
		if err := b.transport.SendUnicast(entry.Address, wire); err != nil {
			logger.WarnCtx(ctx, "bbmd: forward to foreign device failed", logger.Err(err))
			continue
		}
		peers++
	}

	b.metrics.BroadcastDistributed(peers)
}

func (b *BBMD) isRegistered(addr npdu.NetworkAddress) bool {
	for _, e := range b.fdt.Entries() {
		if addrEqual(e.Address, addr) {
			return true
		}
	}
	return false
}

func addrEqual(a, c npdu.NetworkAddress) bool {
	if len(a.Mac) != len(c.Mac) {
		return false
	}
	for i := range a.Mac {
		if a.Mac[i] != c.Mac[i] {
			return false
		}
	}
	return true
}

// HandleBVLL dispatches one decoded BVLL frame arriving from addr,
// returning the BVLL reply frame to send back to the sender, if any.
func (b *BBMD) HandleBVLL(ctx context.Context, addr npdu.NetworkAddress, frame bvll.Frame) (*bvll.Frame, error) {
	switch frame.Function {
	case bvll.FuncRegisterForeignDevice:
		return b.handleRegister(ctx, addr, frame.Body)
	case bvll.FuncDeleteForeignDeviceTableEntry:
		return b.handleDelete(ctx, frame.Body)
	case bvll.FuncDistributeBroadcastToNetwork:
		if err := b.HandleDistributeBroadcastToNetwork(ctx, addr, frame.Body); err != nil {
			return result(bvll.ResultDistributeBroadcastToNetworkNAK), nil
		}
		return nil, nil
	case bvll.FuncForwardedNPDU:
		if len(frame.Body) < addrLen {
			return nil, fmt.Errorf("bbmd: truncated forwarded-npdu")
		}
		origin, err := decodeAddr(frame.Body, 0)
		if err != nil {
			return nil, err
		}
		b.HandleForwardedNPDU(ctx, origin, frame.Body[addrLen:])
		return nil, nil
	case bvll.FuncReadBroadcastDistributionTable:
		return &bvll.Frame{Function: bvll.FuncReadBroadcastDistributionTableAck, Body: EncodeBDT(b.bdt)}, nil
	case bvll.FuncWriteBroadcastDistributionTable:
		entries, err := DecodeBDT(frame.Body)
		if err != nil {
			return result(bvll.ResultWriteBDTNAK), nil
		}
		b.SetBDT(entries)
		return result(bvll.ResultSuccess), nil
	case bvll.FuncReadForeignDeviceTable:
		return &bvll.Frame{Function: bvll.FuncReadForeignDeviceTableAck, Body: b.fdt.EncodeFDT()}, nil
	default:
		return nil, fmt.Errorf("bbmd: unhandled function %s", frame.Function)
	}
}

func (b *BBMD) handleRegister(ctx context.Context, addr npdu.NetworkAddress, body []byte) (*bvll.Frame, error) {
	if len(body) != 2 {
		b.metrics.RegistrationAttempted(false)
		return result(bvll.ResultRegisterForeignDeviceNAK), nil
	}
	ttl := time.Duration(binary.BigEndian.Uint16(body)) * time.Second
	b.fdt.Register(addr, ttl)
	b.metrics.RegistrationAttempted(true)
	b.metrics.ForeignDeviceRegistered(addr.String())
	logger.DebugCtx(ctx, "foreign device registered", logger.PeerStr(addr.String()), logger.TTL(int(ttl/time.Second)))
	return result(bvll.ResultSuccess), nil
}

func (b *BBMD) handleDelete(ctx context.Context, body []byte) (*bvll.Frame, error) {
	addr, err := decodeAddr(body, 0)
	if err != nil {
		return result(bvll.ResultDeleteForeignDeviceTableEntryNAK), nil
	}
	b.fdt.Delete(addr)
	logger.DebugCtx(ctx, "foreign device table entry deleted", logger.PeerStr(addr.String()))
	return result(bvll.ResultSuccess), nil
}

func result(code uint16) *bvll.Frame {
	return &bvll.Frame{Function: bvll.FuncResult, Body: encodeUint16(code)}
}
