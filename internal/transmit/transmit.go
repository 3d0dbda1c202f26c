// Package transmit sends a trap payload to one destination, either as an
// ordinary UDP datagram or, when source spoofing is enabled, as a hand-built
// IPv4+UDP frame over a raw socket so the forwarded packet appears to
// originate from the original sender.
package transmit

import (
	"fmt"
	"net"
	"sync"

	"github.com/ruilisi/golicator/internal/frame"
	"github.com/ruilisi/golicator/internal/rule"
)

// CounterState holds the 16-bit IP identification counter shared by every
// sender. It wraps to 0 after 65535, never to 1.
type CounterState struct {
	mu    sync.Mutex
	value uint16
}

// Next returns the next identification value and advances the counter.
func (c *CounterState) Next() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.value
	c.value++
	return v
}

// rawSend transmits a pre-built IPv4+UDP frame to dest over a raw,
// header-included IPv4 socket. It is implemented per-platform: Linux opens a
// real raw socket; other platforms report that spoofing is unsupported.
var rawSend func(dest rule.Endpoint, f []byte) error

// probeRawSocket attempts to open and immediately close a raw, header-included
// socket, to surface a missing CAP_NET_RAW (or platform support) at bootstrap
// rather than on the first send.
var probeRawSocket func() error

// ProbeSpoofing verifies that source spoofing is usable on this host. Callers
// with spoof_src enabled should invoke this once at bootstrap and exit with a
// clear diagnostic on failure, instead of silently falling back to plain UDP.
func ProbeSpoofing() error {
	if probeRawSocket == nil {
		return fmt.Errorf("transmit: source spoofing unsupported on this platform")
	}
	return probeRawSocket()
}

// Send delivers payload from origin to dest. When spoof is false it opens an
// ordinary UDP socket, connects to dest, and writes payload — the kernel
// picks the source IP and an ephemeral source port. When spoof is true it
// asks counter for the next identification value, builds a frame with the
// original sender's address as source, and transmits it over a fresh raw
// socket (no pooling — one socket per send). Every error is returned to the
// caller, who logs it and continues with other destinations; a failure here
// never aborts the fan-out.
func Send(origin, dest rule.Endpoint, payload []byte, spoof bool, counter *CounterState) error {
	if !spoof {
		return sendPlain(dest, payload)
	}

	f := frame.BuildFrame(origin, dest, payload, counter.Next())
	if rawSend == nil {
		return fmt.Errorf("transmit: source spoofing unsupported on this platform")
	}
	return rawSend(dest, f)
}

func sendPlain(dest rule.Endpoint, payload []byte) error {
	conn, err := net.Dial("udp4", dest.String())
	if err != nil {
		return fmt.Errorf("transmit: dial %s: %w", dest, err)
	}
	defer conn.Close()

	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("transmit: write to %s: %w", dest, err)
	}
	return nil
}
