// Package suites is the EDHOC cipher-suite registry: it maps a suite
// identifier to concrete algorithm IDs and their lengths through a
// package-level map populated from init().
package suites

import (
	"fmt"

	"github.com/go-edhoc/edhoc-oscore/crypto"
)

// ID is an EDHOC cipher suite identifier (draft-ietf-lake-edhoc /
// RFC 9528 §3.6).
type ID int64

const (
	Suite0 ID = 0 // AES-CCM-16-64-128, SHA-256, X25519, EdDSA
	Suite1 ID = 1 // AES-CCM-16-128-128, SHA-256, X25519, EdDSA
	Suite2 ID = 2 // AES-CCM-16-64-128, SHA-256, P-256, ES256
	Suite3 ID = 3 // AES-CCM-16-128-128, SHA-384, P-384, ES384
	Suite4 ID = 4 // ChaCha20/Poly1305, SHA-256, X25519, EdDSA
)

// Suite carries every algorithm and length EDHOC and its AEAD-based
// authentication derive from a selected cipher suite.
type Suite struct {
	ID ID

	AEAD       crypto.AEADAlg
	AEADKeyLen int
	AEADIVLen  int
	AEADTagLen int

	Hash    crypto.HashAlg
	HashLen int

	ECDHCurve  crypto.ECDHCurve
	ECDHKeyLen int // length of an X-coordinate / scalar for this curve

	Sign      crypto.SignAlg
	SignPKLen int
	SignSKLen int

	// MACLen is the length (bytes) of a static-DH Signature_or_MAC message
	// (equal to AEADTagLen: the MAC is an AEAD tag over an empty plaintext).
	MACLen int
}

var registry = make(map[ID]Suite)

func register(s Suite) { registry[s.ID] = s }

func init() {
	register(Suite{
		ID: Suite0,
		AEAD: crypto.AlgAESCCM16_64_128, AEADKeyLen: 16, AEADIVLen: 13, AEADTagLen: 8,
		Hash: crypto.HashSHA256, HashLen: 32,
		ECDHCurve: crypto.CurveX25519, ECDHKeyLen: 32,
		Sign: crypto.SignEd25519, SignPKLen: 32, SignSKLen: 32,
		MACLen: 8,
	})
	register(Suite{
		ID: Suite1,
		AEAD: crypto.AlgAESCCM16_128_128, AEADKeyLen: 16, AEADIVLen: 13, AEADTagLen: 16,
		Hash: crypto.HashSHA256, HashLen: 32,
		ECDHCurve: crypto.CurveX25519, ECDHKeyLen: 32,
		Sign: crypto.SignEd25519, SignPKLen: 32, SignSKLen: 32,
		MACLen: 16,
	})
	register(Suite{
		ID: Suite2,
		AEAD: crypto.AlgAESCCM16_64_128, AEADKeyLen: 16, AEADIVLen: 13, AEADTagLen: 8,
		Hash: crypto.HashSHA256, HashLen: 32,
		ECDHCurve: crypto.CurveP256, ECDHKeyLen: 32,
		Sign: crypto.SignES256, SignPKLen: 32, SignSKLen: 32,
		MACLen: 8,
	})
	register(Suite{
		ID: Suite3,
		AEAD: crypto.AlgAESCCM16_128_128, AEADKeyLen: 16, AEADIVLen: 13, AEADTagLen: 16,
		Hash: crypto.HashSHA384, HashLen: 48,
		ECDHCurve: crypto.CurveP384, ECDHKeyLen: 48,
		Sign: crypto.SignES384, SignPKLen: 48, SignSKLen: 48,
		MACLen: 16,
	})
	register(Suite{
		ID: Suite4,
		AEAD: crypto.AlgChaCha20Poly1305, AEADKeyLen: 32, AEADIVLen: 12, AEADTagLen: 16,
		Hash: crypto.HashSHA256, HashLen: 32,
		ECDHCurve: crypto.CurveX25519, ECDHKeyLen: 32,
		Sign: crypto.SignEd25519, SignPKLen: 32, SignSKLen: 32,
		MACLen: 16,
	})
}

// ErrUnsupported is the concrete error that edhoc wraps with
// CodeSuiteUnsupported.
var ErrUnsupported = fmt.Errorf("suites: unsupported or unregistered EDHOC cipher suite")

// Lookup returns the Suite registered for id.
func Lookup(id ID) (Suite, error) {
	s, ok := registry[id]
	if !ok {
		return Suite{}, fmt.Errorf("%w: %d", ErrUnsupported, id)
	}
	return s, nil
}

// SelectSuite implements the SUITES_I negotiation fallback: given the
// Initiator's offered list (selected first, followed by its other
// supported suites) and the set the local party implements, it returns
// the first mutually supported suite.
func SelectSuite(offered []ID, locallySupported []ID) (ID, error) {
	supported := make(map[ID]bool, len(locallySupported))
	for _, s := range locallySupported {
		supported[s] = true
	}
	for _, id := range offered {
		if supported[id] {
			return id, nil
		}
	}
	return 0, ErrUnsupported
}

// Supported returns every suite ID this implementation has registered, in
// ascending order, for use as a Responder's/Initiator's locally supported
// set.
func Supported() []ID {
	return []ID{Suite0, Suite1, Suite2, Suite3, Suite4}
}
