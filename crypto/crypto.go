// Package crypto defines the abstract cryptographic SPI that the EDHOC and
// OSCORE engines are built against. The primitives themselves (AEAD, HKDF,
// hash, ECDH, sign/verify) are consumed through the Backend
// interface; StdBackend in backend.go is the default implementation, built
// from the standard library plus golang.org/x/crypto where the ecosystem
// has no stdlib equivalent (HKDF, X25519).
package crypto

import "errors"

// Sentinel errors a Backend returns; edhoc.Error / oscore.Error wrap these
// rather than redefining them.
var (
	ErrAuth               = errors.New("crypto: AEAD authentication failed")
	ErrHKDFExpandTooLarge = errors.New("crypto: HKDF-Expand output too large")
	ErrECDH               = errors.New("crypto: ECDH shared-secret derivation failed")
	ErrSignVerify         = errors.New("crypto: sign or verify failed")
)

// AEADAlg identifies an AEAD algorithm by its COSE algorithm number.
type AEADAlg int

const (
	AlgA128GCM          AEADAlg = 1
	AlgA256GCM          AEADAlg = 3
	AlgAESCCM16_64_128  AEADAlg = 10 // AES-CCM, 13-byte nonce, 64-bit tag, 128-bit key
	AlgAESCCM64_64_128  AEADAlg = 12 // not used by any registered suite here; kept for completeness
	AlgChaCha20Poly1305 AEADAlg = 24
	AlgAESCCM16_128_128 AEADAlg = 30 // AES-CCM, 13-byte nonce, 128-bit tag, 128-bit key
)

// HashAlg identifies a hash algorithm.
type HashAlg int

const (
	HashSHA256 HashAlg = 1
	HashSHA384 HashAlg = 2
)

// ECDHCurve identifies a Diffie-Hellman group.
type ECDHCurve int

const (
	CurveX25519 ECDHCurve = 1
	CurveP256   ECDHCurve = 2
	CurveP384   ECDHCurve = 3
)

// SignAlg identifies a signature algorithm.
type SignAlg int

const (
	SignEd25519 SignAlg = 1
	SignES256   SignAlg = 2
	SignES384   SignAlg = 3
)

// Backend is the synchronous, allocation-conscious crypto SPI every EDHOC
// and OSCORE component is built against. Implementations must be
// side-channel safe for the AEAD tag comparison (ErrAuth path) and must
// never retain caller buffers past the call.
type Backend interface {
	// AEADEncrypt seals plaintext, returning ciphertext (same length as
	// plaintext) and the detached authentication tag.
	AEADEncrypt(alg AEADAlg, key, nonce, aad, plaintext []byte) (ciphertext, tag []byte, err error)

	// AEADDecrypt verifies tag against (key, nonce, aad, ciphertext) and
	// returns the recovered plaintext. Returns ErrAuth on mismatch.
	AEADDecrypt(alg AEADAlg, key, nonce, aad, ciphertext, tag []byte) (plaintext []byte, err error)

	// ECDH derives the shared secret (X coordinate only, for the EC curves)
	// between a local private key and a peer public key.
	ECDH(curve ECDHCurve, sk, peerPub []byte) (sharedSecret []byte, err error)

	// HKDFExtract implements RFC 5869 Extract. salt may be nil or empty
	// to mean the all-zero salt of that hash's length.
	HKDFExtract(hash HashAlg, salt, ikm []byte) (prk []byte, err error)

	// HKDFExpand implements RFC 5869 Expand. Returns ErrHKDFExpandTooLarge
	// if outLen > 255*hash_len.
	HKDFExpand(hash HashAlg, prk, info []byte, outLen int) (out []byte, err error)

	// Hash computes a plain digest.
	Hash(hash HashAlg, in []byte) (digest []byte, err error)

	// Sign produces a signature over msg using the local private key.
	Sign(alg SignAlg, sk, msg []byte) (sig []byte, err error)

	// Verify checks a signature over msg against a peer public key.
	Verify(alg SignAlg, pk, msg, sig []byte) (ok bool, err error)

	// GenerateKeyPair creates a fresh ephemeral keypair for curve, returning
	// (privateKey, publicKey).
	GenerateKeyPair(curve ECDHCurve) (sk, pk []byte, err error)
}

// HashLen returns the digest length in bytes for hash.
func HashLen(hash HashAlg) int {
	switch hash {
	case HashSHA256:
		return 32
	case HashSHA384:
		return 48
	default:
		return 0
	}
}
