package bbmd

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/bactalk/bacstack/internal/bvll"
	"github.com/bactalk/bacstack/internal/logger"
	"github.com/bactalk/bacstack/internal/npdu"
	"github.com/bactalk/bacstack/pkg/metrics"
)

// RegistrationState tracks a ForeignDevice client's relationship with its
// BBMD, as observed from the BVLC-Result replies to its registration
// requests.
type RegistrationState int

const (
	StateUnregistered RegistrationState = iota
	StateRegistering
	StateRegistered
	StateFailed
)

func (s RegistrationState) String() string {
	switch s {
	case StateRegistering:
		return "registering"
	case StateRegistered:
		return "registered"
	case StateFailed:
		return "failed"
	default:
		return "unregistered"
	}
}

// SendFunc unicasts an already-encoded BVLL frame to the BBMD.
type SendFunc func(ctx context.Context, wire []byte) error

// ForeignDevice is the foreign-device side of registration: it registers
// with a remote BBMD on start, re-registers every TTL/2 while running,
// and tunnels outbound broadcasts through Distribute-Broadcast-To-Network,
// per Annex J.5.
type ForeignDevice struct {
	bbmdAddr npdu.NetworkAddress
	localAddr npdu.NetworkAddress
	ttl      time.Duration
	send     SendFunc
	metrics  metrics.BBMD

	mu    sync.Mutex
	state RegistrationState

	cancel context.CancelFunc
	done   chan struct{}
}

// NewForeignDevice creates a client bound to bbmdAddr with the given
// registration lifetime. localAddr is this device's own address, used to
// identify its entry when deregistering.
func NewForeignDevice(bbmdAddr, localAddr npdu.NetworkAddress, ttl time.Duration, send SendFunc, m metrics.BBMD) *ForeignDevice {
	if m == nil {
		m = metrics.NoOp().BBMD
	}
	return &ForeignDevice{bbmdAddr: bbmdAddr, localAddr: localAddr, ttl: ttl, send: send, metrics: m, state: StateUnregistered}
}

// State reports the current registration state.
func (f *ForeignDevice) State() RegistrationState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Start registers immediately and then re-registers every TTL/2 until
// the context is canceled or Stop is called. Re-registration continues
// through transient failures; it only stops on explicit request.
func (f *ForeignDevice) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	f.mu.Lock()
	f.cancel = cancel
	f.done = make(chan struct{})
	f.mu.Unlock()

	go func() {
		defer close(f.done)

		period := f.ttl / 2
		if period <= 0 {
			period = time.Second
		}
		// The backoff ticker delivers its first tick immediately, which
		// performs the initial registration; later ticks follow every period.
		ticker := backoff.NewTicker(backoff.NewConstantBackOff(period))
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				f.register(ctx)
			}
		}
	}()
}

func (f *ForeignDevice) register(ctx context.Context) {
	f.setState(StateRegistering)
	body := make([]byte, 2)
	binary.BigEndian.PutUint16(body, uint16(f.ttl/time.Second))
	wire := bvll.Frame{Function: bvll.FuncRegisterForeignDevice, Body: body}.Encode()

	if err := f.send(ctx, wire); err != nil {
		f.metrics.RegistrationAttempted(false)
		f.setState(StateFailed)
		logger.WarnCtx(ctx, "foreign device registration send failed", logger.BBMD(f.bbmdAddr.String()), logger.Err(err))
		return
	}
	logger.DebugCtx(ctx, "foreign device registration sent", logger.BBMD(f.bbmdAddr.String()), logger.TTL(int(f.ttl/time.Second)))
}

// OnResult updates registration state from the BBMD's BVLC-Result reply.
func (f *ForeignDevice) OnResult(code uint16) {
	success := code == bvll.ResultSuccess
	f.metrics.RegistrationAttempted(success)
	if success {
		f.setState(StateRegistered)
	} else {
		f.setState(StateFailed)
	}
}

func (f *ForeignDevice) setState(s RegistrationState) {
	f.mu.Lock()
	prev := f.state
	f.state = s
	f.mu.Unlock()
	if prev != s {
		logger.Debug(fmt.Sprintf("foreign device registration state changed to %s", s), logger.BBMD(f.bbmdAddr.String()))
	}
}

// Broadcast wraps npduBytes in a Distribute-Broadcast-To-Network and
// sends it to the BBMD, so the registered device can still originate a
// local broadcast. It fails if registration has not yet succeeded.
func (f *ForeignDevice) Broadcast(ctx context.Context, npduBytes []byte) error {
	if f.State() != StateRegistered {
		return fmt.Errorf("bbmd: cannot broadcast while not registered with %s", f.bbmdAddr)
	}
	wire := bvll.Frame{Function: bvll.FuncDistributeBroadcastToNetwork, Body: npduBytes}.Encode()
	return f.send(ctx, wire)
}

// Stop deletes this device's foreign-device-table entry if it was
// successfully registered, then halts the re-registration loop.
func (f *ForeignDevice) Stop(ctx context.Context) {
	f.mu.Lock()
	cancel := f.cancel
	done := f.done
	registered := f.state == StateRegistered
	f.mu.Unlock()

	if registered {
		wire := bvll.Frame{Function: bvll.FuncDeleteForeignDeviceTableEntry, Body: padAddr(f.localAddr.Mac)}.Encode()
		if err := f.send(ctx, wire); err != nil {
			logger.WarnCtx(ctx, "foreign device deregistration failed", logger.BBMD(f.bbmdAddr.String()), logger.Err(err))
		}
	}

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	f.setState(StateUnregistered)
}
