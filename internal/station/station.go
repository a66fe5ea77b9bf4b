// Package station wires together the protocol-stack layers (network
// routing, the transaction state machine, the application services, and
// one configured data link) into a single running BACnet device. This
// is the integration layer the rest of the stack's packages never
// reach for themselves.
package station

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/bactalk/bacstack/internal/adapter/ethernet"
	"github.com/bactalk/bacstack/internal/adapter/ipv4"
	"github.com/bactalk/bacstack/internal/adapter/ipv6"
	"github.com/bactalk/bacstack/internal/adapter/sc"
	"github.com/bactalk/bacstack/internal/apdu"
	"github.com/bactalk/bacstack/internal/bbmd"
	"github.com/bactalk/bacstack/internal/bvll"
	"github.com/bactalk/bacstack/internal/logger"
	"github.com/bactalk/bacstack/internal/npdu"
	"github.com/bactalk/bacstack/internal/router"
	"github.com/bactalk/bacstack/internal/service"
	"github.com/bactalk/bacstack/internal/tag"
	"github.com/bactalk/bacstack/internal/tsm"
	"github.com/bactalk/bacstack/pkg/config"
	"github.com/bactalk/bacstack/pkg/metrics"
	"github.com/bactalk/bacstack/pkg/objects"
)

// defaultWindowSize is the segment window this station proposes when
// acknowledging an inbound segmented complex-ack, matching the common
// BACnet default (clause 5.2.1, "BACnetSegmentation" negotiation).
const defaultWindowSize uint8 = 16

// objectTypeDevice mirrors the service package's own constant; kept here
// too since that package does not export it, and the station needs it to
// build this device's own identifier for COV notification framing.
const objectTypeDevice uint16 = 8

// adapterPort is the lifecycle surface every data-link adapter exposes
// in addition to router.Port.
type adapterPort interface {
	router.Port
	Start(ctx context.Context) error
	Stop() error
}

// peerInfo remembers how to reach a peer this station has exchanged at
// least one APDU with, so confirmed replies and proactively-sent
// requests (COV notifications, in particular) know where to send.
type peerInfo struct {
	addr npdu.NetworkAddress
	port string
}

// Station is one running BACnet device: its object database, the
// Transaction State Machine dispatching confirmed/unconfirmed services
// against that database, the router forwarding NPDUs between the
// configured data link(s), and — when configured — BBMD or
// foreign-device broadcast distribution.
type Station struct {
	cfg     *config.Config
	metrics *metrics.Registry

	db       objects.Database
	handlers *service.Handlers
	registry *tsm.ServiceRegistry
	manager  *tsm.Manager
	router   *router.Router

	adapter     adapterPort
	primaryPort string

	bbmdInst      *bbmd.BBMD
	foreignDevice *bbmd.ForeignDevice

	deviceID tag.ObjectIdentifier

	mu    sync.Mutex
	peers map[string]peerInfo

	cancel context.CancelFunc
}

// New builds a Station from cfg, wiring every layer together. It does
// not open any socket; call Start for that.
func New(cfg *config.Config, db objects.Database, files objects.FileStore, factory objects.Factory, reg *metrics.Registry) (*Station, error) {
	if reg == nil {
		reg = metrics.NoOp()
	}

	s := &Station{
		cfg:      cfg,
		metrics:  reg,
		db:       db,
		deviceID: tag.ObjectIdentifier{Type: objectTypeDevice, Instance: cfg.InstanceNumber},
		peers:    make(map[string]peerInfo),
	}

	handlers := service.NewHandlers(db, cfg.InstanceNumber, s)
	handlers.MaxAPDU = uint32(cfg.MaxAPDULengthAccepted)
	handlers.Segmentation = segmentationCode(cfg.SegmentationSupported)
	handlers.Files = files
	handlers.Factory = factory
	handlers.CovNotifier = s
	s.handlers = handlers

	s.registry = tsm.NewServiceRegistry()
	handlers.RegisterAll(s.registry)

	s.manager = tsm.NewManager(s.registry, tsm.Config{
		Timeout:    cfg.APDUTimeout,
		MaxRetries: uint64(cfg.NumberOfAPDURetries),
	})

	s.router = router.New(reg.Router)
	s.router.SetAPDUHandler(s.onAPDU)

	if err := s.buildAdapter(); err != nil {
		return nil, err
	}
	return s, nil
}

// segmentationCode maps the config's human-readable segmentation setting
// to I-Am's BACnetSegmentation enumeration.
func segmentationCode(setting string) uint32 {
	switch setting {
	case config.SegmentationReceive:
		return service.SegmentationReceive
	case config.SegmentationSend:
		return service.SegmentationSend
	case config.SegmentationNone:
		return service.SegmentationNone
	default:
		return service.SegmentationBoth
	}
}

// buildAdapter selects and constructs this station's one active data
// link, per cfg: BACnet/SC, then Ethernet, then BACnet/IPv6, defaulting
// to BACnet/IP. Only the IPv4 adapter's BVLL hook integrates with BBMD/
// foreign-device operation — Annex J defines broadcast management purely
// in BACnet/IP terms, so the other three links simply route traffic without
// broadcast-distribution support, a scope decision recorded in
// DESIGN.md.
func (s *Station) buildAdapter() error {
	switch {
	case s.cfg.SC.PrimaryHubURI != "":
		return s.buildSCAdapter()
	case s.cfg.EthernetInterface != "":
		return s.buildEthernetAdapter()
	case s.cfg.IPv6:
		return s.buildIPv6Adapter()
	default:
		return s.buildIPv4Adapter()
	}
}

func (s *Station) buildIPv4Adapter() error {
	port, err := ipv4.New(ipv4.Config{
		Interface:        s.cfg.Interface,
		Port:             s.cfg.Port,
		BroadcastAddress: broadcastAddressFor(s.cfg.Interface),
	}, s.onNPDU("ipv4"), s.onBVLL, s.metrics.Router)
	if err != nil {
		return fmt.Errorf("station: build ipv4 adapter: %w", err)
	}
	s.adapter = port
	s.primaryPort = port.ID()
	s.router.AddPort(port, 0)

	if s.cfg.IsBBMD() {
		bdt, err := decodeBDT(s.cfg.BBMD.BDT)
		if err != nil {
			return fmt.Errorf("station: decode bdt: %w", err)
		}
		self := npdu.NetworkAddress{Mac: port.LocalMac()}
		transport := ipv4BBMDTransport{port: port}
		s.bbmdInst = bbmd.New(self, bdt, transport, s.onBBMDDeliver, s.metrics.BBMD)
		port.SetBroadcastHook(s.bbmdInst.HandleOriginalBroadcast)
	}
	if s.cfg.IsForeignDevice() {
		bbmdAddr, err := parseIPv4HostPort(s.cfg.BBMD.Address, 47808)
		if err != nil {
			return fmt.Errorf("station: parse bbmd address: %w", err)
		}
		local := npdu.NetworkAddress{Mac: port.LocalMac()}
		ttl := time.Duration(s.cfg.BBMD.TTLSeconds) * time.Second
		if ttl <= 0 {
			ttl = 300 * time.Second
		}
		send := func(ctx context.Context, wire []byte) error {
			return port.SendUnicastAddr(bbmdAddr, wire)
		}
		s.foreignDevice = bbmd.NewForeignDevice(bbmdAddr, local, ttl, send, s.metrics.BBMD)
	}
	return nil
}

func (s *Station) buildIPv6Adapter() error {
	port, err := ipv6.New(ipv6.Config{
		Interface: s.cfg.Interface,
		Port:      s.cfg.Port,
	}, s.onNPDU("ipv6"), nil, s.metrics.Router)
	if err != nil {
		return fmt.Errorf("station: build ipv6 adapter: %w", err)
	}
	s.adapter = port
	s.primaryPort = port.ID()
	s.router.AddPort(port, 0)
	return nil
}

func (s *Station) buildEthernetAdapter() error {
	var mac []byte
	if s.cfg.EthernetMAC != "" {
		parsed, err := net.ParseMAC(s.cfg.EthernetMAC)
		if err != nil {
			return fmt.Errorf("station: parse ethernet mac %q: %w", s.cfg.EthernetMAC, err)
		}
		mac = parsed
	}
	port, err := ethernet.New(ethernet.Config{
		InterfaceName: s.cfg.EthernetInterface,
		LocalMAC:      mac,
	}, s.onNPDU("ethernet"), s.metrics.Router)
	if err != nil {
		return fmt.Errorf("station: build ethernet adapter: %w", err)
	}
	s.adapter = port
	s.primaryPort = port.ID()
	s.router.AddPort(port, 0)
	return nil
}

func (s *Station) buildSCAdapter() error {
	port, err := sc.New(sc.Config{
		PrimaryHubURI:  s.cfg.SC.PrimaryHubURI,
		FailoverHubURI: s.cfg.SC.FailoverHubURI,
		TLSCertPath:    s.cfg.SC.TLSCertPath,
		TLSKeyPath:     s.cfg.SC.TLSKeyPath,
		TLSCAPath:      s.cfg.SC.TLSCAPath,
		AllowPlaintext: s.cfg.SC.AllowPlaintext,
	}, s.onNPDU("sc"), s.metrics.Router)
	if err != nil {
		return fmt.Errorf("station: build sc adapter: %w", err)
	}
	s.adapter = port
	s.primaryPort = port.ID()
	s.router.AddPort(port, 0)
	return nil
}

// broadcastAddressFor derives a directed-broadcast address from a bind
// interface of the form "a.b.c.d"; an empty/wildcard interface leaves
// broadcast unconfigured; callers needing it must set it explicitly via
// deployment configuration. Kept deliberately simple — full subnet-mask
// introspection is a deployment-time concern, not this stack's.
func broadcastAddressFor(iface string) string {
	if iface == "" || iface == "0.0.0.0" {
		return ""
	}
	return iface
}

// decodeBDT converts the config's human-entered BDT entries into
// bbmd.BDTEntry values with resolved addresses and masks.
func decodeBDT(entries []config.BDTEntry) ([]bbmd.BDTEntry, error) {
	out := make([]bbmd.BDTEntry, 0, len(entries))
	for _, e := range entries {
		addr, err := parseIPv4HostPort(e.Address, 47808)
		if err != nil {
			return nil, err
		}
		mask, err := parseIPv4Mask(e.Mask)
		if err != nil {
			return nil, err
		}
		out = append(out, bbmd.BDTEntry{Address: addr, Mask: mask})
	}
	return out, nil
}

// ipv4BBMDTransport adapts *ipv4.Port to bbmd.Transport: the method set
// is identical modulo SendUnicastAddr's name.
type ipv4BBMDTransport struct {
	port *ipv4.Port
}

func (t ipv4BBMDTransport) SendUnicast(addr npdu.NetworkAddress, wire []byte) error {
	return t.port.SendUnicastAddr(addr, wire)
}

func (t ipv4BBMDTransport) SendDirectedBroadcast(addr npdu.NetworkAddress, mask [4]byte, wire []byte) error {
	return t.port.SendDirectedBroadcast(addr, mask, wire)
}

// Start opens the configured data link and begins serving.
func (s *Station) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if err := s.adapter.Start(runCtx); err != nil {
		cancel()
		return fmt.Errorf("station: start adapter: %w", err)
	}
	if s.foreignDevice != nil {
		s.foreignDevice.Start(runCtx)
	}
	if s.bbmdInst != nil {
		go s.sweepForeignDevices(runCtx)
	}

	logger.InfoCtx(ctx, "station started",
		logger.Adapter(s.primaryPort),
		logger.ObjectInst(s.deviceID.Instance))
	return nil
}

func (s *Station) sweepForeignDevices(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.bbmdInst.SweepForeignDevices()
		}
	}
}

// Stop halts the data link and any foreign-device registration loop.
func (s *Station) Stop(ctx context.Context) error {
	if s.foreignDevice != nil {
		s.foreignDevice.Stop(ctx)
	}
	if s.cancel != nil {
		s.cancel()
	}
	if err := s.adapter.Stop(); err != nil {
		return fmt.Errorf("station: stop adapter: %w", err)
	}
	logger.InfoCtx(ctx, "station stopped", logger.Adapter(s.primaryPort))
	return nil
}

// onNPDU returns a ReceiveFunc bound to portID, handing every inbound
// NPDU to the router exactly as HandleFrame's six-step algorithm expects.
func (s *Station) onNPDU(portID string) func(ctx context.Context, srcMac []byte, npduBytes []byte) {
	return func(ctx context.Context, srcMac []byte, npduBytes []byte) {
		s.router.HandleFrame(ctx, router.Frame{Port: portID, SrcMac: srcMac, NPDU: npduBytes})
	}
}

// onBVLL answers frames the ipv4 adapter does not interpret itself:
// routed to a BBMD if this station is operating as one, or inspected for
// a BVLC-Result if this station is a registered foreign device.
func (s *Station) onBVLL(ctx context.Context, src npdu.NetworkAddress, frame bvll.Frame) (*bvll.Frame, error) {
	if s.bbmdInst != nil {
		return s.bbmdInst.HandleBVLL(ctx, src, frame)
	}
	if s.foreignDevice != nil && frame.Function == bvll.FuncResult && len(frame.Body) >= 2 {
		code := uint16(frame.Body[0])<<8 | uint16(frame.Body[1])
		s.foreignDevice.OnResult(code)
	}
	return nil, nil
}

// onBBMDDeliver feeds a distributed broadcast's original NPDU back into
// the router as if it had arrived directly on the local subnet.
func (s *Station) onBBMDDeliver(ctx context.Context, origin npdu.NetworkAddress, npduBytes []byte) {
	s.router.HandleFrame(ctx, router.Frame{Port: s.primaryPort, SrcMac: origin.Mac, NPDU: npduBytes})
}

// rememberPeer records how to reach a peer this station just exchanged
// an APDU with.
func (s *Station) rememberPeer(key string, addr npdu.NetworkAddress, port string) {
	s.mu.Lock()
	s.peers[key] = peerInfo{addr: addr, port: port}
	s.mu.Unlock()
}

func (s *Station) lookupPeer(key string) (peerInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.peers[key]
	return p, ok
}

// sendToPeer transmits an already-encoded APDU to key, if this station
// has seen traffic from it before.
func (s *Station) sendToPeer(ctx context.Context, key string, wire []byte) error {
	p, ok := s.lookupPeer(key)
	if !ok {
		return fmt.Errorf("station: unknown peer %q", key)
	}
	return s.router.Send(ctx, p.addr, p.port, wire)
}

// onAPDU is the router's APDUHandler: it decodes the PDU-type nibble and
// dispatches to the Transaction State Machine, then turns any resulting
// reply back into wire bytes addressed to the originator.
func (s *Station) onAPDU(ctx context.Context, src npdu.NetworkAddress, port string, raw []byte) {
	if len(raw) == 0 {
		return
	}
	peer := src.String()
	s.rememberPeer(peer, src, port)

	switch apdu.PDUType(raw[0] >> 4) {
	case apdu.TypeConfirmedRequest:
		req, err := apdu.DecodeConfirmedRequest(raw)
		if err != nil {
			logger.WarnCtx(ctx, "dropping malformed confirmed-request", logger.PeerStr(peer), logger.Err(err))
			return
		}
		if req.Segmented {
			// Inbound segmented confirmed-requests are not reassembled by
			// this station; see DESIGN.md for the scope decision. Abort
			// rather than dispatch a truncated first segment to a handler.
			s.replyAbort(ctx, peer, req.InvokeID, apdu.AbortSegmentationNotSupported)
			return
		}
		resp := s.manager.HandleConfirmedRequest(ctx, peer, req)
		s.sendResponse(ctx, peer, resp)

	case apdu.TypeUnconfirmedRequest:
		req, err := apdu.DecodeUnconfirmedRequest(raw)
		if err != nil {
			logger.WarnCtx(ctx, "dropping malformed unconfirmed-request", logger.PeerStr(peer), logger.Err(err))
			return
		}
		s.manager.HandleUnconfirmedRequest(ctx, peer, req)

	case apdu.TypeSimpleACK:
		ack, err := apdu.DecodeSimpleACK(raw)
		if err != nil {
			logger.WarnCtx(ctx, "dropping malformed simple-ack", logger.PeerStr(peer), logger.Err(err))
			return
		}
		s.manager.OnSimpleACK(ctx, peer, ack)

	case apdu.TypeComplexACK:
		ack, err := apdu.DecodeComplexACK(raw)
		if err != nil {
			logger.WarnCtx(ctx, "dropping malformed complex-ack", logger.PeerStr(peer), logger.Err(err))
			return
		}
		newBase, actualWindow, segmented := s.manager.OnComplexACK(ctx, peer, ack, defaultWindowSize)
		if segmented {
			segAck := apdu.EncodeSegmentACK(apdu.SegmentACK{
				InvokeID:         ack.InvokeID,
				SequenceNumber:   newBase - 1,
				ActualWindowSize: actualWindow,
			})
			if err := s.sendToPeer(ctx, peer, segAck); err != nil {
				logger.WarnCtx(ctx, "segment-ack send failed", logger.PeerStr(peer), logger.Err(err))
			}
		}

	case apdu.TypeSegmentACK:
		// This station never sends a segmented confirmed-request or a
		// segmented complex-ack of its own, so there is no outstanding
		// segmentation.Sender to drive with an inbound segment-ack; see
		// DESIGN.md for the scope decision. Logged only.
		logger.DebugCtx(ctx, "segment-ack received, no sender-side segmentation in flight", logger.PeerStr(peer))

	case apdu.TypeError:
		e, err := apdu.DecodeErrorPDU(raw)
		if err != nil {
			logger.WarnCtx(ctx, "dropping malformed error pdu", logger.PeerStr(peer), logger.Err(err))
			return
		}
		s.manager.OnError(ctx, peer, e)

	case apdu.TypeReject:
		r, err := apdu.DecodeRejectPDU(raw)
		if err != nil {
			logger.WarnCtx(ctx, "dropping malformed reject pdu", logger.PeerStr(peer), logger.Err(err))
			return
		}
		s.manager.OnReject(ctx, peer, r)

	case apdu.TypeAbort:
		a, err := apdu.DecodeAbortPDU(raw)
		if err != nil {
			logger.WarnCtx(ctx, "dropping malformed abort pdu", logger.PeerStr(peer), logger.Err(err))
			return
		}
		s.manager.OnAbort(ctx, peer, a)
	}
}

func (s *Station) replyAbort(ctx context.Context, peer string, invokeID uint8, reason uint8) {
	wire := apdu.EncodeAbortPDU(apdu.AbortPDU{InvokeID: invokeID, Server: true, Reason: reason})
	if err := s.sendToPeer(ctx, peer, wire); err != nil {
		logger.WarnCtx(ctx, "abort send failed", logger.PeerStr(peer), logger.Err(err))
	}
}

// sendResponse turns a tsm.InboundResponse into wire bytes and sends it
// back to peer.
func (s *Station) sendResponse(ctx context.Context, peer string, resp tsm.InboundResponse) {
	var wire []byte
	switch {
	case resp.Simple != nil:
		wire = apdu.EncodeSimpleACK(*resp.Simple)
	case resp.Complex != nil:
		wire = apdu.EncodeComplexACK(*resp.Complex)
	case resp.ErrorPDU != nil:
		wire = apdu.EncodeErrorPDU(*resp.ErrorPDU)
	case resp.RejectPDU != nil:
		wire = apdu.EncodeRejectPDU(*resp.RejectPDU)
	case resp.AbortPDU != nil:
		wire = apdu.EncodeAbortPDU(*resp.AbortPDU)
	default:
		return
	}
	if err := s.sendToPeer(ctx, peer, wire); err != nil {
		logger.WarnCtx(ctx, "response send failed", logger.PeerStr(peer), logger.Err(err))
	}
}

// AnnounceUnconfirmed implements service.Announcer: Who-Is/Who-Has
// replies (I-Am, I-Have) are never addressed to a single peer, so they go
// out on every attached port's broadcast domain, or — when this station
// is a registered foreign device — tunneled to the BBMD via
// Distribute-Broadcast-To-Network so the home subnet still sees them.
func (s *Station) AnnounceUnconfirmed(ctx context.Context, choice uint8, serviceData []byte) error {
	wire := apdu.EncodeUnconfirmedRequest(apdu.UnconfirmedRequest{ServiceChoice: choice, ServiceData: serviceData})
	if s.foreignDevice != nil {
		n := npdu.NPDU{}
		return s.foreignDevice.Broadcast(ctx, npdu.EncodeNPDU(n, wire))
	}
	return s.router.BroadcastLocal(ctx, wire)
}

// NotifyCOV implements service.CovNotifier: it reads the monitored
// object's current Present-Value and pushes a (confirmed or
// unconfirmed) COV notification to the subscriber.
func (s *Station) NotifyCOV(ctx context.Context, peer string, subscriberProcessID uint32, confirmed bool, objID tag.ObjectIdentifier) {
	obj, ok := s.db.Get(objID)
	if !ok {
		return
	}
	value, err := obj.ReadProperty(service.PropPresentValue, nil)
	if err != nil {
		return
	}

	notification := service.COVNotification{
		SubscriberProcessID: subscriberProcessID,
		InitiatingDeviceID:  s.deviceID,
		MonitoredObjectID:   objID,
		TimeRemaining:       0,
		Values: []service.PropertyValue{
			{PropertyID: service.PropPresentValue, Value: value},
		},
	}
	body := service.EncodeCOVNotification(notification)

	if !confirmed {
		wire := apdu.EncodeUnconfirmedRequest(apdu.UnconfirmedRequest{
			ServiceChoice: service.ChoiceUnconfirmedCOVNotification,
			ServiceData:   body,
		})
		if err := s.sendToPeer(ctx, peer, wire); err != nil {
			logger.WarnCtx(ctx, "unconfirmed cov notification send failed", logger.PeerStr(peer), logger.Err(err))
		}
		return
	}

	p, ok := s.lookupPeer(peer)
	if !ok {
		logger.WarnCtx(ctx, "cov notification dropped, unknown peer", logger.PeerStr(peer))
		return
	}
	outcome := s.manager.SendConfirmed(ctx, peer, func(invokeID uint8) []byte {
		return apdu.EncodeConfirmedRequest(apdu.ConfirmedRequest{
			MaxAPDUAccepted: apdu.EncodeMaxAPDU(int(s.handlers.MaxAPDU)),
			InvokeID:        invokeID,
			ServiceChoice:   service.ChoiceConfirmedCOVNotification,
			ServiceData:     body,
		})
	}, func(ctx context.Context, wire []byte) error {
		return s.router.Send(ctx, p.addr, p.port, wire)
	})
	if outcome.Err != nil {
		logger.WarnCtx(ctx, "confirmed cov notification failed", logger.PeerStr(peer), logger.Err(outcome.Err))
	}
}

// Database exposes this station's object database, mainly for cmd/
// wiring and tests that need to seed or inspect it.
func (s *Station) Database() objects.Database { return s.db }

// Router exposes the station's router, for admin/diagnostic surfaces.
func (s *Station) Router() *router.Router { return s.router }

// DeviceID returns this station's own Device object identifier.
func (s *Station) DeviceID() tag.ObjectIdentifier { return s.deviceID }
