package edhoc

import "github.com/go-edhoc/edhoc-oscore/cbor"

// BuildError builds the EDHOC error message a party may send to its peer
// after any parse/verify failure (draft-ietf-lake-edhoc §6): CBOR
// [ ERR_CODE, ERR_INFO ]. ERR_CODE is the protocol-level error code (1 for
// a generic error, per draft-ietf-lake-edhoc); ERR_INFO is the full text of
// cause.Error(), or "EDHOC error" when cause is nil.
// Call after a Build*/Parse* step has already moved the Session to Failed.
func (s *Session) BuildError(cause error) []byte {
	const errCodeGeneric = 1
	msg := "EDHOC error"
	if cause != nil {
		msg = cause.Error()
	}
	size := cbor.SizeArrayHeader(2) + cbor.SizeUint(errCodeGeneric) + cbor.SizeTstr(len(msg))
	buf := make([]byte, size)
	off, err := cbor.EncodeArrayHeader(buf, 2)
	if err != nil {
		return nil
	}
	m, err := cbor.EncodeUint(buf[off:], errCodeGeneric)
	if err != nil {
		return nil
	}
	off += m
	m, err = cbor.EncodeTstr(buf[off:], msg)
	if err != nil {
		return nil
	}
	off += m
	return buf[:off]
}
