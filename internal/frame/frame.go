// Package frame builds spoofed IPv4+UDP datagrams byte-for-byte and
// computes the Internet checksum used by both the IP header and the UDP
// pseudo-header checksum.
package frame

import (
	"encoding/binary"

	"github.com/ruilisi/golicator/internal/rule"
)

const (
	ipHeaderLen  = 20
	udpHeaderLen = 8
	protocolUDP  = 17
	defaultTTL   = 128
)

// checksum computes the one's-complement 16-bit Internet checksum over data:
// sum consecutive big-endian 16-bit words, fold the 32-bit accumulator once
// with (sum>>16)+(sum&0xFFFF), then take the one's complement. If the data
// has odd length it is padded with a single zero byte for the purpose of
// this computation only.
func checksum(data []byte) uint16 {
	var sum uint32
	n := len(data)
	for i := 0; i+1 < n; i += 2 {
		sum += uint32(binary.BigEndian.Uint16(data[i : i+2]))
	}
	if n%2 == 1 {
		sum += uint32(data[n-1]) << 8
	}
	sum = (sum >> 16) + (sum & 0xFFFF)
	return ^uint16(sum)
}

// udpChecksum computes the UDP checksum over the IPv4 pseudo-header
// (origin ‖ dest ‖ 0x00 ‖ 0x11 ‖ udpLength) concatenated with the UDP
// header (checksum field zeroed) and the payload.
func udpChecksum(origin, dest [4]byte, udpHeaderAndPayload []byte) uint16 {
	udpLen := len(udpHeaderAndPayload)
	pseudo := make([]byte, 0, 12+udpLen+1)
	pseudo = append(pseudo, origin[:]...)
	pseudo = append(pseudo, dest[:]...)
	pseudo = append(pseudo, 0x00, protocolUDP)
	pseudo = binary.BigEndian.AppendUint16(pseudo, uint16(udpLen))
	pseudo = append(pseudo, udpHeaderAndPayload...)
	return checksum(pseudo)
}

// BuildFrame assembles a spoofed IPv4+UDP frame with the given 16-bit
// identification value. The IP header checksum is computed (not left zero)
// so the frame is valid on any platform, per the portability note: a
// kernel-filled checksum under IP_HDRINCL is not guaranteed across OSes.
func BuildFrame(origin, dest rule.Endpoint, payload []byte, id uint16) []byte {
	udpLen := udpHeaderLen + len(payload)
	totalLen := ipHeaderLen + udpLen

	frame := make([]byte, totalLen)

	// IPv4 header.
	frame[0] = 0x45 // version 4, IHL 5 (20 bytes)
	frame[1] = 0x00 // TOS
	binary.BigEndian.PutUint16(frame[2:4], uint16(totalLen))
	binary.BigEndian.PutUint16(frame[4:6], id)
	binary.BigEndian.PutUint16(frame[6:8], 0) // flags + fragment offset
	frame[8] = defaultTTL
	frame[9] = protocolUDP
	binary.BigEndian.PutUint16(frame[10:12], 0) // header checksum placeholder
	copy(frame[12:16], origin.IP[:])
	copy(frame[16:20], dest.IP[:])
	binary.BigEndian.PutUint16(frame[10:12], checksum(frame[:ipHeaderLen]))

	// UDP header + payload.
	udp := frame[ipHeaderLen:]
	binary.BigEndian.PutUint16(udp[0:2], origin.Port)
	binary.BigEndian.PutUint16(udp[2:4], dest.Port)
	binary.BigEndian.PutUint16(udp[4:6], uint16(udpLen))
	binary.BigEndian.PutUint16(udp[6:8], 0) // checksum placeholder
	copy(udp[8:], payload)

	binary.BigEndian.PutUint16(udp[6:8], udpChecksum(origin.IP, dest.IP, udp))

	return frame
}
