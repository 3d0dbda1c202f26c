package decode

import "fmt"

// tag describes a single BER identifier octet (plus any high-tag-number
// continuation octets). class is kept for completeness but, matching the
// naive decoder's source library, only number and constructed participate
// in value interpretation — SNMP varbind values reuse tag numbers across
// the UNIVERSAL and APPLICATION classes (e.g. INTEGER=2 and Gauge32=2) and
// the naive decoder does not distinguish them.
type tag struct {
	class       uint8
	constructed bool
	number      int
}

// readTLV reads one BER tag-length-value from the front of data and returns
// the decoded tag, the value slice, and the number of bytes consumed.
func readTLV(data []byte) (t tag, value []byte, consumed int, err error) {
	if len(data) < 2 {
		return tag{}, nil, 0, fmt.Errorf("ber: truncated identifier octet")
	}

	first := data[0]
	idx := 1
	t.class = first >> 6
	t.constructed = first&0x20 != 0
	t.number = int(first & 0x1f)

	if t.number == 0x1f {
		// High tag number form: base-128 continuation.
		t.number = 0
		for {
			if idx >= len(data) {
				return tag{}, nil, 0, fmt.Errorf("ber: truncated high tag number")
			}
			b := data[idx]
			t.number = (t.number << 7) | int(b&0x7f)
			idx++
			if b&0x80 == 0 {
				break
			}
		}
	}

	if idx >= len(data) {
		return tag{}, nil, 0, fmt.Errorf("ber: truncated length octet")
	}
	lengthByte := data[idx]
	idx++

	var length int
	if lengthByte&0x80 == 0 {
		length = int(lengthByte)
	} else {
		numOctets := int(lengthByte & 0x7f)
		if numOctets == 0 {
			return tag{}, nil, 0, fmt.Errorf("ber: indefinite length unsupported")
		}
		if idx+numOctets > len(data) {
			return tag{}, nil, 0, fmt.Errorf("ber: truncated long-form length")
		}
		for i := 0; i < numOctets; i++ {
			length = (length << 8) | int(data[idx+i])
		}
		idx += numOctets
	}

	if idx+length > len(data) {
		return tag{}, nil, 0, fmt.Errorf("ber: value overruns buffer")
	}

	value = data[idx : idx+length]
	consumed = idx + length
	return t, value, consumed, nil
}
