//go:build linux

package ethernet

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// linuxRawSocket drives an AF_PACKET/SOCK_RAW socket bound to one
// interface, the standard Linux mechanism for sending and receiving
// raw Ethernet frames without going through the IP stack.
type linuxRawSocket struct {
	fd        int
	ifIndex   int
	closeOnce chan struct{}
}

func newRawSocket() rawSocket {
	return &linuxRawSocket{}
}

func (s *linuxRawSocket) open(iface string) error {
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(unix.ETH_P_ALL)))
	if err != nil {
		return fmt.Errorf("socket(AF_PACKET): %w", err)
	}
	netIf, err := net.InterfaceByName(iface)
	if err != nil {
		unix.Close(fd)
		return fmt.Errorf("interface %s: %w", iface, err)
	}
	addr := unix.SockaddrLinklayer{
		Protocol: htons(unix.ETH_P_ALL),
		Ifindex:  netIf.Index,
	}
	if err := unix.Bind(fd, &addr); err != nil {
		unix.Close(fd)
		return fmt.Errorf("bind: %w", err)
	}
	s.fd = fd
	s.ifIndex = netIf.Index
	s.closeOnce = make(chan struct{})
	return nil
}

func (s *linuxRawSocket) close() error {
	select {
	case <-s.closeOnce:
		return nil
	default:
		close(s.closeOnce)
	}
	return unix.Close(s.fd)
}

func (s *linuxRawSocket) writeFrame(dstMac [6]byte, payload []byte) error {
	addr := unix.SockaddrLinklayer{
		Protocol: htons(unix.ETH_P_ALL),
		Ifindex:  s.ifIndex,
		Halen:    6,
	}
	copy(addr.Addr[:6], dstMac[:])
	return unix.Sendto(s.fd, payload, 0, &addr)
}

func (s *linuxRawSocket) readLoop(ctx context.Context, deliver func(srcMac [6]byte, payload []byte)) {
	buf := make([]byte, 1514)
	for {
		select {
		case <-s.closeOnce:
			return
		case <-ctx.Done():
			return
		default:
		}
		n, from, err := unix.Recvfrom(s.fd, buf, 0)
		if err != nil {
			select {
			case <-s.closeOnce:
				return
			default:
			}
			continue
		}
		ll, ok := from.(*unix.SockaddrLinklayer)
		if !ok || n < 1 {
			continue
		}
		var src [6]byte
		copy(src[:], ll.Addr[:6])
		deliver(src, append([]byte(nil), buf[:n]...))
	}
}

func htons(v int) uint16 {
	return uint16(v)>>8 | uint16(v)<<8
}
