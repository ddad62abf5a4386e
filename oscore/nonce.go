package oscore

import "github.com/go-edhoc/edhoc-oscore/cbor"

// BuildNonce constructs the AEAD nonce (RFC 8613 §5.2): one length byte
// holding |id|, then id left-zero-padded to (len(commonIV)-6) bytes, then
// piv left-zero-padded to 5 bytes, the whole thing XORed with commonIV.
func BuildNonce(id, piv, commonIV []byte) ([]byte, error) {
	n := len(commonIV)
	idWidth := n - 6
	if len(id) > idWidth {
		return nil, newErr(CodeInvalidPiv, "sender/recipient ID longer than the nonce can carry")
	}
	if len(piv) > 5 {
		return nil, newErr(CodeInvalidPiv, "partial IV longer than 5 bytes")
	}
	nonce := make([]byte, n)
	nonce[0] = byte(len(id))
	copy(nonce[1+idWidth-len(id):1+idWidth], id)
	copy(nonce[n-len(piv):], piv)
	for i := range nonce {
		nonce[i] ^= commonIV[i]
	}
	return nonce, nil
}

// BuildAAD constructs the COSE Encrypt0 external_aad for an OSCORE message
// (RFC 8613 §5.4): CBOR [ 1, [alg_aead], KID, PIV, h'' ], then wrapped into
// Enc_structure = [ "Encrypt0", h'', external_aad ] for the AEAD aad input.
func BuildAAD(aeadArg int64, kid, piv []byte) ([]byte, error) {
	extAAD, err := buildExternalAAD(aeadArg, kid, piv)
	if err != nil {
		return nil, err
	}
	return buildEncStructure(extAAD)
}

func buildExternalAAD(aeadArg int64, kid, piv []byte) ([]byte, error) {
	size := cbor.SizeArrayHeader(5) + cbor.SizeUint(1) +
		cbor.SizeArrayHeader(1) + cbor.SizeUint(uint64(aeadArg)) +
		cbor.SizeBstr(len(kid)) + cbor.SizeBstr(len(piv)) + cbor.SizeBstr(0)
	buf := make([]byte, size)
	off, err := cbor.EncodeArrayHeader(buf, 5)
	if err != nil {
		return nil, err
	}
	m, err := cbor.EncodeUint(buf[off:], 1)
	if err != nil {
		return nil, err
	}
	off += m
	m, err = cbor.EncodeArrayHeader(buf[off:], 1)
	if err != nil {
		return nil, err
	}
	off += m
	m, err = cbor.EncodeUint(buf[off:], uint64(aeadArg))
	if err != nil {
		return nil, err
	}
	off += m
	m, err = cbor.EncodeBstr(buf[off:], kid)
	if err != nil {
		return nil, err
	}
	off += m
	m, err = cbor.EncodeBstr(buf[off:], piv)
	if err != nil {
		return nil, err
	}
	off += m
	m, err = cbor.EncodeBstr(buf[off:], nil)
	if err != nil {
		return nil, err
	}
	off += m
	return buf[:off], nil
}

func buildEncStructure(externalAAD []byte) ([]byte, error) {
	size := cbor.SizeArrayHeader(3) + cbor.SizeTstr(len("Encrypt0")) + cbor.SizeBstr(0) + cbor.SizeBstr(len(externalAAD))
	buf := make([]byte, size)
	off, err := cbor.EncodeArrayHeader(buf, 3)
	if err != nil {
		return nil, err
	}
	m, err := cbor.EncodeTstr(buf[off:], "Encrypt0")
	if err != nil {
		return nil, err
	}
	off += m
	m, err = cbor.EncodeBstr(buf[off:], nil)
	if err != nil {
		return nil, err
	}
	off += m
	m, err = cbor.EncodeBstr(buf[off:], externalAAD)
	if err != nil {
		return nil, err
	}
	off += m
	return buf[:off], nil
}

// PIVFromSSN encodes a sender sequence number as its minimal big-endian
// byte string, the wire form of a Partial IV. Sequence number 0 encodes
// as the single byte 0x00 (RFC 8613 §6.1), not as an empty string.
func PIVFromSSN(ssn uint64) []byte {
	if ssn == 0 {
		return []byte{0}
	}
	var buf [5]byte
	n := 0
	for v := ssn; v > 0; v >>= 8 {
		n++
	}
	if n > 5 {
		n = 5
	}
	for i := 0; i < n; i++ {
		buf[n-1-i] = byte(ssn >> (8 * i))
	}
	return append([]byte{}, buf[:n]...)
}

// SSNFromPIV decodes a Partial IV byte string back into a sequence number.
func SSNFromPIV(piv []byte) uint64 {
	var v uint64
	for _, b := range piv {
		v = v<<8 | uint64(b)
	}
	return v
}
