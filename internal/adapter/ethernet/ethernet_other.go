//go:build !linux

package ethernet

import (
	"context"
	"errors"
)

// ErrUnsupportedPlatform is returned by Port.Start on any OS other than
// Linux; BSD support (via BPF) is a straightforward port of the same
// rawSocket interface but is not wired up here — see DESIGN.md.
var ErrUnsupportedPlatform = errors.New("ethernet: raw 802.2 sockets are only implemented on linux")

type unsupportedRawSocket struct{}

func newRawSocket() rawSocket {
	return unsupportedRawSocket{}
}

func (unsupportedRawSocket) open(string) error { return ErrUnsupportedPlatform }
func (unsupportedRawSocket) close() error      { return nil }
func (unsupportedRawSocket) writeFrame([6]byte, []byte) error {
	return ErrUnsupportedPlatform
}
func (unsupportedRawSocket) readLoop(ctx context.Context, deliver func(srcMac [6]byte, payload []byte)) {
}
