// Package rule holds the subnet-keyed forwarding rule table: CIDR origins
// mapped to a union of destination endpoints.
package rule

import (
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/ruilisi/golicator/ds"
)

// Endpoint is an IPv4 address plus a UDP port. It is comparable so it can be
// deduplicated in a ds.Set.
type Endpoint struct {
	IP   [4]byte
	Port uint16
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%d.%d.%d.%d:%d", e.IP[0], e.IP[1], e.IP[2], e.IP[3], e.Port)
}

// NetIP returns the endpoint address as a net.IP.
func (e Endpoint) NetIP() net.IP {
	ip := make(net.IP, 4)
	copy(ip, e.IP[:])
	return ip
}

// ParseEndpoint parses "ipv4:port" or bare "ipv4" (port defaults to 162).
// usedDefaultPort is true when the bare-IP default was used.
func ParseEndpoint(tok string) (ep Endpoint, usedDefaultPort bool, err error) {
	host, portStr, splitErr := net.SplitHostPort(tok)
	if splitErr != nil {
		// no ":" present -> bare IPv4, default port
		host = tok
		portStr = ""
	}

	ip := net.ParseIP(host)
	if ip == nil || ip.To4() == nil {
		return Endpoint{}, false, fmt.Errorf("invalid IPv4 literal %q", host)
	}

	port := 162
	if portStr == "" {
		usedDefaultPort = true
	} else {
		p, convErr := strconv.Atoi(portStr)
		if convErr != nil {
			return Endpoint{}, false, fmt.Errorf("invalid port in %q: %w", tok, convErr)
		}
		port = p
	}
	if port < 1 || port > 65535 {
		return Endpoint{}, false, fmt.Errorf("port %d out of range [1,65535]", port)
	}

	var arr [4]byte
	copy(arr[:], ip.To4())
	return Endpoint{IP: arr, Port: uint16(port)}, usedDefaultPort, nil
}

// Entry is a single parsed "<origin_cidr> = <dest1> <dest2> ..." line.
type Entry struct {
	OriginCIDR string
	Network    uint32
	Mask       uint32
	Dests      ds.Set[Endpoint]
}

// matches reports whether the source address lies within this entry's subnet.
func (e Entry) matches(src uint32) bool {
	return src&e.Mask == e.Network
}

// Table is the immutable, bootstrap-built collection of forwarding rules.
// Reads after construction are lock-free: Table never mutates its entries.
type Table struct {
	entries []Entry
}

// ParseCIDR derives the network/mask uint32 pair for an IPv4 CIDR string and
// validates the invariant network & ^mask == 0.
func ParseCIDR(cidr string) (network, mask uint32, err error) {
	ip, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid CIDR %q: %w", cidr, err)
	}
	if ip.To4() == nil {
		return 0, 0, fmt.Errorf("CIDR %q is not IPv4", cidr)
	}
	// ip keeps the address as written (ipnet.IP is already masked), so host
	// bits set in the CIDR text are caught below.
	network = binary.BigEndian.Uint32(ip.To4())
	mask = binary.BigEndian.Uint32(net.IP(ipnet.Mask).To4())
	if network & ^mask != 0 {
		return 0, 0, fmt.Errorf("CIDR %q: network bits set outside mask", cidr)
	}
	return network, mask, nil
}

// ParseDestList splits a space-separated destination list into endpoints.
// Returns the endpoints, a list of warnings (e.g. default-port usage), and
// an error if the list is empty or any token is malformed.
func ParseDestList(destList string) ([]Endpoint, []string, error) {
	fields := strings.Fields(destList)
	if len(fields) == 0 {
		return nil, nil, fmt.Errorf("empty destination list")
	}

	var out []Endpoint
	var warnings []string
	for _, tok := range fields {
		ep, usedDefault, err := ParseEndpoint(tok)
		if err != nil {
			return nil, nil, fmt.Errorf("destination %q: %w", tok, err)
		}
		if usedDefault {
			warnings = append(warnings, fmt.Sprintf("destination %q has no port, defaulting to 162", tok))
		}
		out = append(out, ep)
	}
	return out, warnings, nil
}

// isPrivateIPv4 reports whether ip falls in one of the RFC 1918 private
// ranges or loopback. Used only to flag forwarding rules that relay traps to
// a public address, which is almost always a misconfiguration rather than
// intent.
func isPrivateIPv4(ip net.IP) bool {
	v4 := ip.To4()
	if v4 == nil {
		return false
	}
	if v4.IsLoopback() {
		return true
	}
	return v4[0] == 10 ||
		(v4[0] == 172 && v4[1] >= 16 && v4[1] <= 31) ||
		(v4[0] == 192 && v4[1] == 168)
}

// NewTable builds a RuleTable from an ordered sequence of
// (origin_cidr, destination_list) pairs. Duplicate origin CIDR text across
// two entries is a fatal configuration error, as is any malformed entry.
func NewTable(pairs [][2]string) (*Table, []string, error) {
	t := &Table{}
	seen := make(map[string]struct{}, len(pairs))
	var warnings []string

	for _, pair := range pairs {
		origin, destList := pair[0], pair[1]
		if _, dup := seen[origin]; dup {
			return nil, nil, fmt.Errorf("duplicate forwarding rule for origin %q", origin)
		}
		seen[origin] = struct{}{}

		network, mask, err := ParseCIDR(origin)
		if err != nil {
			return nil, nil, err
		}

		dests, destWarnings, err := ParseDestList(destList)
		if err != nil {
			return nil, nil, fmt.Errorf("origin %q: %w", origin, err)
		}
		warnings = append(warnings, destWarnings...)
		for _, d := range dests {
			if !isPrivateIPv4(d.NetIP()) {
				warnings = append(warnings, fmt.Sprintf("destination %s for origin %q is not a private address", d, origin))
			}
		}

		set := ds.NewSet[Endpoint]()
		for _, d := range dests {
			set.Add(d)
		}

		t.entries = append(t.entries, Entry{
			OriginCIDR: origin,
			Network:    network,
			Mask:       mask,
			Dests:      set,
		})
	}

	return t, warnings, nil
}

// Match returns the union of destinations of every rule whose subnet
// contains src. Order of rules is irrelevant; every matching rule
// contributes (no longest-prefix selection).
func (t *Table) Match(src net.IP) ds.Set[Endpoint] {
	v4 := src.To4()
	out := ds.NewSet[Endpoint]()
	if v4 == nil {
		return out
	}
	s := binary.BigEndian.Uint32(v4)
	for _, e := range t.entries {
		if e.matches(s) {
			for _, d := range e.Dests.Values() {
				out.Add(d)
			}
		}
	}
	return out
}

// Rules returns the entries as "<origin> > <dest1>, <dest2>, ..." strings,
// for the startup banner written to the control log.
func (t *Table) Rules() []string {
	out := make([]string, 0, len(t.entries))
	for _, e := range t.entries {
		dests := e.Dests.Values()
		parts := make([]string, len(dests))
		for i, d := range dests {
			parts[i] = d.String()
		}
		out = append(out, fmt.Sprintf("%s > %s", e.OriginCIDR, strings.Join(parts, ", ")))
	}
	return out
}
