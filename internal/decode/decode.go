// Package decode implements the naive, intentionally fragile ASN.1/BER
// reader used to render SNMP trap bodies for the data log. It mirrors the
// behavior of a position-dependent PDU walk rather than a correct SNMP
// decoder: it exists purely to produce a human-readable line, and it never
// affects forwarding.
package decode

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
)

// Decode renders an SNMP message as "C=<community> SNMPv<N>  <body>". A
// version other than 0 or 1 is reported as "SNMPv<version+1> - Unable to
// decrypt contents" without walking the rest of the message. If any
// step of the walk fails — malformed BER, an unexpected field count, a
// non-numeric version — Decode recovers, logs a warning, and falls back to a
// quoted rendering of the raw bytes so a malformed trap never aborts the
// caller.
func Decode(raw []byte) (result string) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("reason", r).Warn("trap decode failed, logging raw bytes")
			result = fallbackRepr(raw)
		}
	}()

	t, value, _, err := readTLV(raw)
	if err != nil {
		panic(err)
	}
	if !t.constructed {
		panic(fmt.Errorf("outer SNMP message is not constructed"))
	}

	vt, vval, _, err := readTLV(value)
	if err != nil {
		panic(err)
	}
	versionToken := primitiveToken(vt, vval)
	version, err := strconv.Atoi(versionToken)
	if err != nil {
		panic(fmt.Errorf("non-numeric SNMP version %q: %w", versionToken, err))
	}
	if version != 0 && version != 1 {
		return fmt.Sprintf("SNMPv%d - Unable to decrypt contents", version+1)
	}

	body := decodeMill(value)

	parts := strings.SplitN(body, "  ", 4)
	if len(parts) < 4 {
		panic(fmt.Errorf("SNMP message body has %d fields, want >= 4", len(parts)))
	}

	community := parts[2]
	rest := parts[3]

	if version == 0 {
		return fmt.Sprintf("C=%s SNMPv1  %s", community, rest)
	}
	return fmt.Sprintf("C=%s SNMPv2c  %s", community, rest)
}

// decodeMill walks one BER context (the contents of a constructed tag, or
// the whole message at the top level), concatenating a token for every
// primitive it encounters and inlining the result of recursing into every
// constructed tag. Every primitive token is preceded by a separator: "=" if
// the immediately preceding primitive was an OBJECT IDENTIFIER (tag 6) not
// itself preceded the same way, "  " (two spaces) otherwise. The separator
// state does not cross into or out of a constructed child's own walk.
func decodeMill(data []byte) string {
	var sb strings.Builder
	prevWasOID := false

	rest := data
	for len(rest) > 0 {
		t, value, consumed, err := readTLV(rest)
		if err != nil {
			panic(err)
		}
		rest = rest[consumed:]

		if t.constructed {
			sb.WriteString(decodeMill(value))
			continue
		}

		if prevWasOID {
			sb.WriteString("=")
		} else {
			sb.WriteString("  ")
		}
		sb.WriteString(primitiveToken(t, value))

		prevWasOID = t.number == 6 && !prevWasOID
	}
	return sb.String()
}

// primitiveToken renders one primitive BER value per its tag number:
//
//	0          -> dotted-quad IPv4 literal, if the value is exactly 4 bytes
//	1, 2, 3    -> the integer recovered by the naive hex-reinterpretation
//	4          -> a quoted UTF-8 string, backslash-escaping invalid bytes
//	6          -> a dotted-decimal OBJECT IDENTIFIER
//	otherwise  -> a quoted repr of the raw bytes
func primitiveToken(t tag, value []byte) string {
	if t.number == 0 && len(value) == 4 {
		return fmt.Sprintf("%d.%d.%d.%d", value[0], value[1], value[2], value[3])
	}
	if t.number == 1 || t.number == 2 || t.number == 3 {
		if n, ok := naiveHexInt(value); ok {
			return strconv.FormatInt(n, 10)
		}
		return fallbackRepr(value)
	}
	if t.number == 4 {
		return "\"" + utf8BackslashReplace(value) + "\""
	}
	if t.number == 6 {
		if s, ok := decodeOID(value); ok {
			return s
		}
		return fallbackRepr(value)
	}
	return fallbackRepr(value)
}

// decodeOID decodes a BER OBJECT IDENTIFIER value into dotted-decimal form.
// The first byte encodes the first two arcs as 40*X+Y; every subsequent arc
// is a base-128 varint with the high bit set on all but its last octet.
func decodeOID(value []byte) (string, bool) {
	if len(value) == 0 {
		return "", false
	}
	arcs := make([]int64, 0, len(value)+1)
	arcs = append(arcs, int64(value[0])/40, int64(value[0])%40)

	var current int64
	haveOctet := false
	for _, b := range value[1:] {
		current = (current << 7) | int64(b&0x7f)
		haveOctet = true
		if b&0x80 == 0 {
			arcs = append(arcs, current)
			current = 0
			haveOctet = false
		}
	}
	if haveOctet {
		return "", false
	}

	parts := make([]string, len(arcs))
	for i, a := range arcs {
		parts[i] = strconv.FormatInt(a, 10)
	}
	return strings.Join(parts, "."), true
}

// naiveHexInt reproduces the original decoder's buggy integer recovery: it
// stringifies the raw bytes the way a byte-string repr would (printable
// ASCII verbatim, everything else as a two-digit hex escape), strips every
// literal "\x" pair, hex-encodes any remaining non-hex-digit character in
// place, and parses the result as base-16. This is deliberately wrong for
// multi-byte values whose escaped and literal digits run together; it is
// kept because the spec this decoder replicates treats that fragility as
// part of the observable behavior.
func naiveHexInt(value []byte) (int64, bool) {
	wrapped := "b'" + pyBytesRepr(value) + "'"
	stripped := strings.ReplaceAll(wrapped, `\x`, "")
	if len(stripped) < 3 {
		return 0, false
	}
	inner := stripped[2 : len(stripped)-1]

	current := inner
	processed := make(map[byte]bool, len(inner))
	for i := 0; i < len(inner); i++ {
		c := inner[i]
		if processed[c] {
			continue
		}
		processed[c] = true
		if isHexDigit(c) {
			continue
		}
		current = strings.ReplaceAll(current, string(c), hex.EncodeToString([]byte{c}))
	}

	n, err := strconv.ParseInt(current, 16, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// pyBytesRepr renders b the way a Python bytes repr would, minus the
// wrapping b'...' quotes: printable ASCII (0x20-0x7e) verbatim except
// backslash and single quote, \t \n \r for those control characters, and
// \xHH for everything else.
func pyBytesRepr(b []byte) string {
	var sb strings.Builder
	for _, c := range b {
		switch {
		case c == '\'':
			sb.WriteString(`\'`)
		case c == '\\':
			sb.WriteString(`\\`)
		case c == '\t':
			sb.WriteString(`\t`)
		case c == '\n':
			sb.WriteString(`\n`)
		case c == '\r':
			sb.WriteString(`\r`)
		case c >= 0x20 && c < 0x7f:
			sb.WriteByte(c)
		default:
			fmt.Fprintf(&sb, `\x%02x`, c)
		}
	}
	return sb.String()
}

// fallbackRepr is the quoted rendering used whenever a value cannot be
// interpreted more specifically: a tag-0 value that isn't 4 bytes, a failed
// naiveHexInt, any unrecognized tag number, or the whole message on decode
// failure.
func fallbackRepr(value []byte) string {
	return "\"" + pyBytesRepr(value) + "\""
}

// utf8BackslashReplace decodes b as UTF-8, replacing each invalid byte with
// its \xHH escape rather than failing outright.
func utf8BackslashReplace(b []byte) string {
	var sb strings.Builder
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if r == utf8.RuneError && size <= 1 {
			fmt.Fprintf(&sb, `\x%02x`, b[0])
			b = b[1:]
			continue
		}
		sb.WriteRune(r)
		b = b[size:]
	}
	return sb.String()
}
