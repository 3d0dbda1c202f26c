package decode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// buildSNMPv2cTrap constructs a minimal, well-formed SNMPv2c trap BER
// message: version=1 (v2c), community="public", and a single varbind
// 1.3.6.1.2.1.1.3.0 = INTEGER 42.
func buildSNMPv2cTrap() []byte {
	oid := []byte{0x2B, 0x06, 0x01, 0x02, 0x01, 0x01, 0x03, 0x00} // 1.3.6.1.2.1.1.3.0
	oidTLV := append([]byte{0x06, byte(len(oid))}, oid...)

	valueTLV := []byte{0x02, 0x01, 0x2A} // INTEGER 42

	varbind := append(append([]byte{}, oidTLV...), valueTLV...)
	varbindTLV := append([]byte{0x30, byte(len(varbind))}, varbind...)

	varbindList := append([]byte{}, varbindTLV...)
	varbindListTLV := append([]byte{0x30, byte(len(varbindList))}, varbindList...)

	requestID := []byte{0x02, 0x02, 0x04, 0xD2}
	errorStatus := []byte{0x02, 0x01, 0x00}
	errorIndex := []byte{0x02, 0x01, 0x00}

	var pdu []byte
	pdu = append(pdu, requestID...)
	pdu = append(pdu, errorStatus...)
	pdu = append(pdu, errorIndex...)
	pdu = append(pdu, varbindListTLV...)
	pduTLV := append([]byte{0xA7, byte(len(pdu))}, pdu...)

	version := []byte{0x02, 0x01, 0x01} // v2c
	community := append([]byte{0x04, 0x06}, []byte("public")...)

	var content []byte
	content = append(content, version...)
	content = append(content, community...)
	content = append(content, pduTLV...)

	msg := append([]byte{0x30, byte(len(content))}, content...)
	return msg
}

func TestDecodeSNMPv2cTrap(t *testing.T) {
	raw := buildSNMPv2cTrap()
	out := Decode(raw)

	assert.Contains(t, out, `C="public"`)
	assert.Contains(t, out, "SNMPv2c")
	assert.Contains(t, out, "1.3.6.1.2.1.1.3.0=42")
}

func TestDecodeSNMPv1Trap(t *testing.T) {
	oid := []byte{0x2B, 0x06, 0x01, 0x02, 0x01, 0x01, 0x03, 0x00}
	oidTLV := append([]byte{0x06, byte(len(oid))}, oid...)
	valueTLV := []byte{0x02, 0x01, 0x2A}
	varbind := append(append([]byte{}, oidTLV...), valueTLV...)
	varbindTLV := append([]byte{0x30, byte(len(varbind))}, varbind...)
	varbindListTLV := append([]byte{0x30, byte(len(varbindTLV))}, varbindTLV...)

	version := []byte{0x02, 0x01, 0x00} // v1
	community := append([]byte{0x04, 0x04}, []byte("priv")...)

	var content []byte
	content = append(content, version...)
	content = append(content, community...)
	content = append(content, varbindListTLV...)

	msg := append([]byte{0x30, byte(len(content))}, content...)

	out := Decode(msg)
	assert.Contains(t, out, `C="priv"`)
	assert.Contains(t, out, "SNMPv1")
}

func TestDecodeUnsupportedVersionDoesNotDescend(t *testing.T) {
	version := []byte{0x02, 0x01, 0x03} // v3
	community := append([]byte{0x04, 0x04}, []byte("none")...)
	var content []byte
	content = append(content, version...)
	content = append(content, community...)
	msg := append([]byte{0x30, byte(len(content))}, content...)

	out := Decode(msg)
	assert.Equal(t, "SNMPv4 - Unable to decrypt contents", out)
}

func TestDecodeMalformedInputFallsBackToRawBytes(t *testing.T) {
	garbage := []byte{0xFF}
	out := Decode(garbage)
	assert.NotEmpty(t, out)
}

func TestDecodeIPv4Varbind(t *testing.T) {
	oid := []byte{0x2B, 0x06, 0x01, 0x02, 0x01, 0x04, 0x14, 0x00}
	oidTLV := append([]byte{0x06, byte(len(oid))}, oid...)
	ipValue := []byte{192, 168, 1, 1}
	valueTLV := append([]byte{0x40, byte(len(ipValue))}, ipValue...) // APPLICATION 0, IpAddress

	varbind := append(append([]byte{}, oidTLV...), valueTLV...)
	varbindTLV := append([]byte{0x30, byte(len(varbind))}, varbind...)
	varbindListTLV := append([]byte{0x30, byte(len(varbindTLV))}, varbindTLV...)

	version := []byte{0x02, 0x01, 0x01}
	community := append([]byte{0x04, 0x06}, []byte("public")...)

	var content []byte
	content = append(content, version...)
	content = append(content, community...)
	content = append(content, varbindListTLV...)
	msg := append([]byte{0x30, byte(len(content))}, content...)

	out := Decode(msg)
	assert.Contains(t, out, "192.168.1.1")
}

func TestNaiveHexIntSingleByteIsCorrect(t *testing.T) {
	n, ok := naiveHexInt([]byte{0x2A})
	assert.True(t, ok)
	assert.EqualValues(t, 42, n)
}

func TestNaiveHexIntMultiByteIsIntentionallyWrong(t *testing.T) {
	// 0x1234 = 4660, but the naive decoder's escape-merging bug recovers a
	// different value because \x12 directly precedes the literal digit '4'.
	n, ok := naiveHexInt([]byte{0x12, 0x34})
	assert.True(t, ok)
	assert.NotEqual(t, int64(4660), n)
}
