package edhoc

import (
	"github.com/go-edhoc/edhoc-oscore/cbor"
	"github.com/go-edhoc/edhoc-oscore/suites"
)

// BuildMessage1 constructs message_1 (Initiator -> Responder):
// CBOR [ METHOD, SUITES_I, G_X, C_I, ? AD_1 ]. supported lists every suite
// the Initiator is willing to negotiate and must contain s.Suite.ID;
// SUITES_I carries s.Suite.ID first, then the other entries in their given
// order.
func (s *Session) BuildMessage1(supported []suites.ID, ad1 cbor.Optional[[]byte]) ([]byte, error) {
	if err := s.mustTransition(StateInit, StateSentMsg1); err != nil {
		return nil, err
	}
	if s.Role != Initiator {
		return nil, s.fail(newErr(CodeStateUnexpected, "BuildMessage1 called on a Responder session"))
	}

	n := 4
	if ad1.Present {
		n = 5
	}
	suitesEnc, err := encodeSuitesI(supported, s.Suite.ID)
	if err != nil {
		return nil, s.fail(wrap(CodeCborFormat, err))
	}

	size := cbor.SizeArrayHeader(n) + cbor.SizeUint(uint64(s.Method)) + len(suitesEnc) +
		cbor.SizeBstr(len(s.EphemeralPK)) + cbor.SizeBstr(len(s.CI))
	if ad1.Present {
		size += cbor.SizeBstr(len(ad1.Val))
	}
	buf := make([]byte, size)
	off, err := cbor.EncodeArrayHeader(buf, n)
	if err != nil {
		return nil, s.fail(wrap(CodeCborFormat, err))
	}
	m, err := cbor.EncodeUint(buf[off:], uint64(s.Method))
	if err != nil {
		return nil, s.fail(wrap(CodeCborFormat, err))
	}
	off += m
	off += copy(buf[off:], suitesEnc)
	m, err = cbor.EncodeBstr(buf[off:], s.EphemeralPK)
	if err != nil {
		return nil, s.fail(wrap(CodeCborFormat, err))
	}
	off += m
	m, err = cbor.EncodeBstr(buf[off:], s.CI)
	if err != nil {
		return nil, s.fail(wrap(CodeCborFormat, err))
	}
	off += m
	if ad1.Present {
		m, err = cbor.EncodeBstr(buf[off:], ad1.Val)
		if err != nil {
			return nil, s.fail(wrap(CodeCborFormat, err))
		}
		off += m
	}
	s.msg1Raw = append([]byte{}, buf[:off]...)
	return buf[:off], nil
}

// ParseMessage1 parses an incoming message_1 on the Responder side,
// verifying the selected suite is one the Responder supports.
func (s *Session) ParseMessage1(wire []byte, responderSupported []suites.ID) (ad1 cbor.Optional[[]byte], err error) {
	if err := s.mustTransition(StateInit, StateRecvMsg1); err != nil {
		return ad1, err
	}
	if s.Role != Responder {
		return ad1, s.fail(newErr(CodeStateUnexpected, "ParseMessage1 called on an Initiator session"))
	}

	n, off, err := cbor.DecodeArrayHeader(wire)
	if err != nil {
		return ad1, s.fail(wrap(CodeCborFormat, err))
	}
	if n != 4 && n != 5 {
		return ad1, s.fail(newErr(CodeMsgFormat, "message_1 must have 4 or 5 array elements"))
	}

	method, m, err := cbor.DecodeUint(wire[off:])
	if err != nil {
		return ad1, s.fail(wrap(CodeCborFormat, err))
	}
	off += m
	s.Method = Method(method)

	offered, m, err := decodeSuitesI(wire[off:])
	if err != nil {
		return ad1, s.fail(wrap(CodeMsgFormat, err))
	}
	off += m
	selected, err := suites.SelectSuite(offered, responderSupported)
	if err != nil {
		return ad1, s.fail(wrap(CodeSuiteUnsupported, err))
	}
	suite, err := suites.Lookup(selected)
	if err != nil {
		return ad1, s.fail(wrap(CodeSuiteUnsupported, err))
	}
	s.Suite = suite

	gx, m, err := cbor.DecodeBstr(wire[off:])
	if err != nil {
		return ad1, s.fail(wrap(CodeCborFormat, err))
	}
	off += m
	s.PeerEphemeralPK = append([]byte{}, gx...)

	ci, m, err := cbor.DecodeBstr(wire[off:])
	if err != nil {
		return ad1, s.fail(wrap(CodeCborFormat, err))
	}
	off += m
	s.CI = append([]byte{}, ci...)

	if n == 5 {
		ad, m, err := cbor.DecodeBstr(wire[off:])
		if err != nil {
			return ad1, s.fail(wrap(CodeCborFormat, err))
		}
		off += m
		ad1 = cbor.Some(append([]byte{}, ad...))
	}
	s.msg1Raw = append([]byte{}, wire[:off]...)
	return ad1, nil
}

// encodeSuitesI encodes SUITES_I as either a single integer (if selected is
// the only locally supported suite advertised) or the array
// [selected, *supported].
func encodeSuitesI(supported []suites.ID, selected suites.ID) ([]byte, error) {
	if len(supported) <= 1 {
		buf := make([]byte, cbor.SizeUint(uint64(selected)))
		_, err := cbor.EncodeUint(buf, uint64(selected))
		return buf, err
	}
	size := cbor.SizeArrayHeader(len(supported))
	for _, id := range supported {
		size += cbor.SizeUint(uint64(id))
	}
	buf := make([]byte, size)
	off, err := cbor.EncodeArrayHeader(buf, len(supported))
	if err != nil {
		return nil, err
	}
	n, err := cbor.EncodeUint(buf[off:], uint64(selected))
	if err != nil {
		return nil, err
	}
	off += n
	for _, id := range supported {
		if id == selected {
			continue
		}
		n, err := cbor.EncodeUint(buf[off:], uint64(id))
		if err != nil {
			return nil, err
		}
		off += n
	}
	return buf[:off], nil
}

// decodeSuitesI decodes SUITES_I into an ordered, selected-first slice.
func decodeSuitesI(in []byte) ([]suites.ID, int, error) {
	if len(in) == 0 {
		return nil, 0, cbor.ErrTruncated
	}
	// Peek the major type without consuming: array (0x80-0x9f range after
	// shortest-form encoding) vs. unsigned int.
	major := in[0] >> 5
	if major == 4 {
		count, off, err := cbor.DecodeArrayHeader(in)
		if err != nil {
			return nil, 0, err
		}
		ids := make([]suites.ID, 0, count)
		for i := 0; i < count; i++ {
			v, m, err := cbor.DecodeUint(in[off:])
			if err != nil {
				return nil, 0, err
			}
			off += m
			ids = append(ids, suites.ID(v))
		}
		return ids, off, nil
	}
	v, off, err := cbor.DecodeUint(in)
	if err != nil {
		return nil, 0, err
	}
	return []suites.ID{suites.ID(v)}, off, nil
}
