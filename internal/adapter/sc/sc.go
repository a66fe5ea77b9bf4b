// Package sc implements the BACnet/SC (Secure Connect) data-link
// adapter: a WebSocket client connection to a hub, framed with BVLC-SC and
// secured with mutual TLS 1.3, per ASHRAE 135 Annex AB. Unlike the other
// three adapters, BACnet/SC has no broadcast domain of its own — the hub
// relays "broadcast" traffic to every other node connected to it, so
// SendBroadcast here is just a unicast to the hub with DestVMAC unset.
package sc

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gorilla/websocket"

	"github.com/bactalk/bacstack/internal/bvll"
	"github.com/bactalk/bacstack/internal/logger"
	"github.com/bactalk/bacstack/pkg/metrics"
)

// subprotocolHub is the WebSocket subprotocol a node presents when
// dialing a hub connector, per Annex AB.7.1.
const subprotocolHub = "hub.bsc.bacnet.org"

// maxNPDULength is conservative: BVLC-SC has no hard MTU, but this
// caps the segmentation engine's per-segment size to something well
// under common WebSocket frame/proxy limits.
const maxNPDULength = 1420

// ReceiveFunc is invoked for every inbound NPDU extracted from an
// Encapsulated-NPDU BVLC-SC message.
type ReceiveFunc func(ctx context.Context, srcMac []byte, npduBytes []byte)

// Config configures the hub connection and TLS material.
type Config struct {
	PrimaryHubURI  string
	FailoverHubURI string
	TLSCertPath    string
	TLSKeyPath     string
	TLSCAPath      string
	// AllowPlaintext permits ws:// instead of wss://. Testing only.
	AllowPlaintext bool
	LocalVMAC      [6]byte
}

// Port is the BACnet/SC adapter: one managed WebSocket connection to a
// hub, reconnecting to the failover URI (and back) across disconnects.
type Port struct {
	cfg       Config
	onReceive ReceiveFunc
	metrics   metrics.Router

	mu        sync.Mutex
	conn      *websocket.Conn
	nextMsgID uint16
	watcher   *fsnotify.Watcher
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates a Port. Call Start to dial the hub.
func New(cfg Config, onReceive ReceiveFunc, m metrics.Router) (*Port, error) {
	if cfg.PrimaryHubURI == "" {
		return nil, fmt.Errorf("sc: primary hub uri required")
	}
	if m == nil {
		m = metrics.NoOp().Router
	}
	return &Port{cfg: cfg, onReceive: onReceive, metrics: m}, nil
}

// ID names this port for the router's routing table and logs.
func (p *Port) ID() string { return "sc" }

// Start dials the primary hub (falling back to the failover URI) and
// launches the reconnect-and-receive loop. TLS certificate/key files are
// watched via fsnotify so rotating them does not require a restart.
func (p *Port) Start(ctx context.Context) error {
	runCtx, cancel := p.init(ctx)
	go p.connectLoop(runCtx)
	if p.cfg.TLSCertPath != "" && p.cfg.TLSKeyPath != "" {
		if err := p.watchCertRotation(runCtx); err != nil {
			logger.WarnCtx(ctx, "sc: cert rotation watch disabled", logger.Err(err))
		}
	}
	_ = cancel
	return nil
}

func (p *Port) init(ctx context.Context) (context.Context, context.CancelFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	return runCtx, cancel
}

// Stop tears down the WebSocket connection and stops reconnecting.
func (p *Port) Stop() error {
	p.mu.Lock()
	cancel := p.cancel
	conn := p.conn
	watcher := p.watcher
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
	if watcher != nil {
		_ = watcher.Close()
	}
	return nil
}

func (p *Port) connectLoop(ctx context.Context) {
	defer close(p.done)
	hub := p.cfg.PrimaryHubURI
	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, err := p.dial(ctx, hub)
		if err != nil {
			logger.WarnCtx(ctx, "sc: dial failed", logger.PeerStr(hub), logger.Err(err))
			if p.cfg.FailoverHubURI != "" {
				if hub == p.cfg.PrimaryHubURI {
					hub = p.cfg.FailoverHubURI
				} else {
					hub = p.cfg.PrimaryHubURI
				}
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}

		backoff = time.Second
		logger.InfoCtx(ctx, "sc: connected to hub", logger.PeerStr(hub))
		p.mu.Lock()
		p.conn = conn
		p.mu.Unlock()
		p.readLoop(ctx, conn)

		p.mu.Lock()
		p.conn = nil
		p.mu.Unlock()
	}
}

func (p *Port) dial(ctx context.Context, uri string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		Subprotocols:     []string{subprotocolHub},
		HandshakeTimeout: 10 * time.Second,
	}
	if !p.cfg.AllowPlaintext {
		tlsConfig, err := p.buildTLSConfig()
		if err != nil {
			return nil, fmt.Errorf("tls config: %w", err)
		}
		dialer.TLSClientConfig = tlsConfig
	}

	conn, _, err := dialer.DialContext(ctx, uri, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// buildTLSConfig loads the node's client certificate and the hub CA,
// pinned to TLS 1.3 as Annex AB.7.2 requires.
func (p *Port) buildTLSConfig() (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(p.cfg.TLSCertPath, p.cfg.TLSKeyPath)
	if err != nil {
		return nil, fmt.Errorf("load client cert/key: %w", err)
	}
	cfg := &tls.Config{
		MinVersion:   tls.VersionTLS13,
		Certificates: []tls.Certificate{cert},
	}
	if p.cfg.TLSCAPath != "" {
		caBytes, err := os.ReadFile(p.cfg.TLSCAPath)
		if err != nil {
			return nil, fmt.Errorf("read ca: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caBytes) {
			return nil, fmt.Errorf("no certificates parsed from %s", p.cfg.TLSCAPath)
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}

// watchCertRotation re-dials the hub whenever the cert or key file on
// disk changes, so a rotated certificate takes effect without a restart.
func (p *Port) watchCertRotation(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	for _, path := range []string{p.cfg.TLSCertPath, p.cfg.TLSKeyPath} {
		if err := watcher.Add(path); err != nil {
			_ = watcher.Close()
			return fmt.Errorf("watch %s: %w", path, err)
		}
	}
	p.mu.Lock()
	p.watcher = watcher
	p.mu.Unlock()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				logger.InfoCtx(ctx, "sc: tls material changed, reconnecting", logger.PeerStr(event.Name))
				p.mu.Lock()
				conn := p.conn
				p.mu.Unlock()
				if conn != nil {
					_ = conn.Close()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.WarnCtx(ctx, "sc: cert watcher error", logger.Err(err))
			}
		}
	}()
	return nil
}

func (p *Port) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		msgType, raw, err := conn.ReadMessage()
		if err != nil {
			logger.WarnCtx(ctx, "sc: read error", logger.Err(err))
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		frame, err := bvll.DecodeSC(raw)
		if err != nil {
			logger.WarnCtx(ctx, "sc: dropping malformed bvlc-sc message", logger.Err(err))
			continue
		}
		p.handleFrame(ctx, frame)
	}
}

func (p *Port) handleFrame(ctx context.Context, frame bvll.SCFrame) {
	switch frame.Function {
	case bvll.SCEncapsulatedNPDU:
		if p.onReceive != nil {
			src := frame.OriginVMAC
			if len(src) == 0 {
				src = p.cfg.LocalVMAC[:]
			}
			p.onReceive(ctx, src, frame.Body)
		}
	case bvll.SCHeartbeatRequest:
		p.sendFrame(bvll.SCFrame{Function: bvll.SCHeartbeatACK, MessageID: frame.MessageID})
	default:
		logger.DebugCtx(ctx, "sc: unhandled bvlc-sc function", logger.PDUType(fmt.Sprintf("0x%02x", uint8(frame.Function))))
	}
}

// SendUnicast emits an Encapsulated-NPDU to destMac (a 6-byte VMAC),
// addressed through the hub.
func (p *Port) SendUnicast(destMac []byte, npduBytes []byte) error {
	return p.sendFrame(bvll.SCFrame{
		Function:   bvll.SCEncapsulatedNPDU,
		MessageID:  p.nextID(),
		DestVMAC:   destMac,
		OriginVMAC: p.cfg.LocalVMAC[:],
		Body:       npduBytes,
	})
}

// SendBroadcast emits an Encapsulated-NPDU with no destination VMAC; the
// hub relays it to every other connected node.
func (p *Port) SendBroadcast(npduBytes []byte) error {
	return p.sendFrame(bvll.SCFrame{
		Function:   bvll.SCEncapsulatedNPDU,
		MessageID:  p.nextID(),
		OriginVMAC: p.cfg.LocalVMAC[:],
		Body:       npduBytes,
	})
}

func (p *Port) sendFrame(frame bvll.SCFrame) error {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn == nil {
		p.metrics.PacketDropped("sc-not-connected")
		return fmt.Errorf("sc: not connected to a hub")
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, frame.Encode()); err != nil {
		p.metrics.PacketDropped("send-error")
		return fmt.Errorf("sc: write message: %w", err)
	}
	return nil
}

func (p *Port) nextID() uint16 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextMsgID++
	return p.nextMsgID
}

// LocalMac is this node's 6-byte virtual MAC.
func (p *Port) LocalMac() []byte { return p.cfg.LocalVMAC[:] }

// MaxNPDULength bounds per-segment size for the segmentation engine.
func (p *Port) MaxNPDULength() int { return maxNPDULength }
