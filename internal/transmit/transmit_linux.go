//go:build linux

package transmit

import (
	"fmt"

	"github.com/ruilisi/golicator/internal/rule"
	"golang.org/x/sys/unix"
)

func init() {
	rawSend = rawSendLinux
	probeRawSocket = probeRawSocketLinux
}

// probeRawSocketLinux opens a raw IP_HDRINCL socket and closes it without
// sending, to validate the process has CAP_NET_RAW before the receive loop
// starts accepting traffic that would need it.
func probeRawSocketLinux() error {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_RAW, unix.IPPROTO_RAW)
	if err != nil {
		return fmt.Errorf("transmit: open raw socket: %w", err)
	}
	defer unix.Close(fd)

	if err := unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_HDRINCL, 1); err != nil {
		return fmt.Errorf("transmit: set IP_HDRINCL: %w", err)
	}
	return nil
}

// rawSendLinux opens a fresh AF_INET/SOCK_RAW/IPPROTO_RAW socket, sets
// IP_HDRINCL so the kernel transmits the frame's own IPv4 header verbatim
// instead of prepending its own, and sends the complete pre-built frame in
// one write. The socket is closed immediately after — per-destination
// sockets are ephemeral, never pooled.
func rawSendLinux(dest rule.Endpoint, f []byte) error {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_RAW, unix.IPPROTO_RAW)
	if err != nil {
		return fmt.Errorf("transmit: open raw socket: %w", err)
	}
	defer unix.Close(fd)

	if err := unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_HDRINCL, 1); err != nil {
		return fmt.Errorf("transmit: set IP_HDRINCL: %w", err)
	}

	addr := &unix.SockaddrInet4{Port: int(dest.Port), Addr: dest.IP}
	if err := unix.Sendto(fd, f, 0, addr); err != nil {
		return fmt.Errorf("transmit: sendto %s: %w", dest, err)
	}
	return nil
}
