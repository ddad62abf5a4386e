package coap

import "sort"

// Parse decodes a complete CoAP packet (RFC 7252 §3). Option values are
// returned as subslices of in; callers borrow them for as long as in
// stays alive.
func Parse(in []byte) (*Packet, error) {
	if len(in) < 4 {
		return nil, newErr(CodeTruncated, "CoAP packet shorter than the 4-byte header")
	}
	p := &Packet{}
	p.Header.Ver = in[0] >> 6
	p.Header.Type = (in[0] >> 4) & 0x3
	p.Header.TKL = in[0] & 0xF
	p.Header.Code = in[1]
	p.Header.MID = uint16(in[2])<<8 | uint16(in[3])

	off := 4
	tkl := int(p.Header.TKL)
	if tkl > 8 {
		return nil, newErr(CodeTruncated, "token length exceeds 8 bytes")
	}
	if len(in) < off+tkl {
		return nil, newErr(CodeTruncated, "CoAP packet truncated in token")
	}
	p.Token = in[off : off+tkl]
	off += tkl

	opts, payload, err := ParseOptionsPayload(in[off:])
	if err != nil {
		return nil, err
	}
	p.Options, p.Payload = opts, payload
	return p, nil
}

// ParseOptionsPayload decodes just the option list and trailing payload.
// An OSCORE inner plaintext (code || E-options || payload) has no header
// or token of its own, so the transform parses that region with this
// instead of the full Parse.
func ParseOptionsPayload(in []byte) ([]Option, []byte, error) {
	var options []Option
	var payload []byte
	optionNumber := 0
	off := 0
	for off < len(in) {
		if in[off] == payloadMarker {
			off++
			payload = in[off:]
			return options, payload, nil
		}
		deltaNib := int(in[off] >> 4)
		lenNib := int(in[off] & 0xF)
		off++

		delta, n, err := extendedValue(deltaNib, in[off:], CodeInvalidOptionDelta)
		if err != nil {
			return nil, nil, err
		}
		off += n

		length, n, err := extendedValue(lenNib, in[off:], CodeInvalidOptionLen)
		if err != nil {
			return nil, nil, err
		}
		off += n

		if len(in) < off+length {
			return nil, nil, newErr(CodeTruncated, "CoAP option value truncated")
		}
		optionNumber += delta
		var value []byte
		if length > 0 {
			value = in[off : off+length]
		}
		options = append(options, Option{Number: optionNumber, Delta: delta, Value: value})
		off += length
	}
	return options, payload, nil
}

// extendedValue resolves a 4-bit option nibble into its actual value,
// consuming the 1 or 2 extension bytes for the 13/14 cases: 13 means one
// extra byte +13, 14 means two bytes big-endian +269, 15 is reserved.
func extendedValue(nibble int, rest []byte, errCode Code) (value, consumed int, err error) {
	switch nibble {
	case 13:
		if len(rest) < 1 {
			return 0, 0, newErr(CodeTruncated, "truncated extended option nibble")
		}
		return int(rest[0]) + 13, 1, nil
	case 14:
		if len(rest) < 2 {
			return 0, 0, newErr(CodeTruncated, "truncated extended option nibble")
		}
		return (int(rest[0])<<8 | int(rest[1])) + 269, 2, nil
	case 15:
		return 0, 0, newErr(errCode, "reserved option nibble value 15")
	default:
		return nibble, 0, nil
	}
}

// Serialize re-encodes p, sorting options by number ascending and
// recomputing minimal-length deltas.
func Serialize(p *Packet) ([]byte, error) {
	out := make([]byte, 0, 4+len(p.Token)+64)
	out = append(out, p.Header.Ver<<6|p.Header.Type<<4|p.Header.TKL, p.Header.Code,
		byte(p.Header.MID>>8), byte(p.Header.MID))
	out = append(out, p.Token...)
	out = append(out, SerializeOptionsPayload(p.Options, p.Payload)...)
	return out, nil
}

// SerializeOptionsPayload encodes just the sorted, minimal-delta option
// list and trailing payload, without a header or token; the counterpart
// to ParseOptionsPayload.
func SerializeOptionsPayload(options []Option, payload []byte) []byte {
	sorted := append([]Option(nil), options...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Number < sorted[j].Number })

	out := make([]byte, 0, 32)
	last := 0
	for _, opt := range sorted {
		delta := opt.Number - last
		last = opt.Number
		out = appendOption(out, delta, opt.Value)
	}
	if len(payload) > 0 {
		out = append(out, payloadMarker)
		out = append(out, payload...)
	}
	return out
}

func appendOption(out []byte, delta int, value []byte) []byte {
	deltaNib, deltaExt := nibbleFor(delta)
	lenNib, lenExt := nibbleFor(len(value))
	out = append(out, byte(deltaNib<<4|lenNib))
	out = append(out, deltaExt...)
	out = append(out, lenExt...)
	out = append(out, value...)
	return out
}

// nibbleFor returns the 4-bit nibble and any extension bytes needed for
// val, always choosing the shortest encoding.
func nibbleFor(val int) (nibble int, ext []byte) {
	switch {
	case val < 13:
		return val, nil
	case val < 269:
		return 13, []byte{byte(val - 13)}
	default:
		v := val - 269
		return 14, []byte{byte(v >> 8), byte(v)}
	}
}
