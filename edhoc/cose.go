// COSE header-map handling for ID_CRED_x. EDHOC credential identifiers
// are COSE header maps (most commonly { 4 : kid }). On the wire the
// message_2/message_3 plaintexts carry the compact form: a { 4 : kid }
// map is reduced to just the kid byte string and re-expanded on parse;
// any other map shape travels verbatim.
package edhoc

import (
	fxcbor "github.com/fxamacker/cbor/v2"

	"github.com/go-edhoc/edhoc-oscore/cbor"
)

// COSE common header parameter labels (RFC 9052 §3.1).
const (
	coseHeaderKID = 4
)

var coseEncMode fxcbor.EncMode

func init() {
	encOpt := fxcbor.CanonicalEncOptions() // RFC 9052 deterministic encoding
	em, err := encOpt.EncMode()
	if err != nil {
		panic(err)
	}
	coseEncMode = em
}

// IDCredFromKID builds the ID_CRED_x header map { 4 : kid } for a
// credential identified by a key identifier.
func IDCredFromKID(kid []byte) ([]byte, error) {
	out, err := coseEncMode.Marshal(map[int][]byte{coseHeaderKID: kid})
	if err != nil {
		return nil, wrap(CodeCborFormat, err)
	}
	return out, nil
}

// encodeIDCred writes ID_CRED_x into a message plaintext. A { 4 : kid }
// header map travels in its compact form, just the kid as a byte string;
// any other header-map shape travels as its raw map bytes.
func encodeIDCred(idCred []byte) ([]byte, error) {
	if kid, err := KIDFromIDCred(idCred); err == nil {
		buf := make([]byte, cbor.SizeBstr(len(kid)))
		if _, err := cbor.EncodeBstr(buf, kid); err != nil {
			return nil, wrap(CodeCborFormat, err)
		}
		return buf, nil
	}
	return append([]byte{}, idCred...), nil
}

// decodeIDCred reads ID_CRED_x back out of a decrypted plaintext: a byte
// string is the compact kid form and is re-expanded into { 4 : kid }; a
// header map is consumed whole.
func decodeIDCred(in []byte) (idCred []byte, consumed int, err error) {
	if len(in) > 0 && in[0]>>5 == 2 {
		kid, n, err := cbor.DecodeBstr(in)
		if err != nil {
			return nil, 0, wrap(CodeCborFormat, err)
		}
		idCred, err = IDCredFromKID(append([]byte{}, kid...))
		if err != nil {
			return nil, 0, err
		}
		return idCred, n, nil
	}
	var raw fxcbor.RawMessage
	rest, err := fxcbor.UnmarshalFirst(in, &raw)
	if err != nil {
		return nil, 0, wrap(CodeCborFormat, err)
	}
	return append([]byte{}, raw...), len(in) - len(rest), nil
}

// KIDFromIDCred extracts the kid from an ID_CRED_x header map. Returns
// EdhocMsgFormat when the map carries no kid entry.
func KIDFromIDCred(idCred []byte) ([]byte, error) {
	var hdr map[int]fxcbor.RawMessage
	if err := fxcbor.Unmarshal(idCred, &hdr); err != nil {
		return nil, wrap(CodeCborFormat, err)
	}
	raw, ok := hdr[coseHeaderKID]
	if !ok {
		return nil, newErr(CodeMsgFormat, "ID_CRED header map carries no kid")
	}
	var kid []byte
	if err := fxcbor.Unmarshal(raw, &kid); err != nil {
		return nil, wrap(CodeCborFormat, err)
	}
	return kid, nil
}
