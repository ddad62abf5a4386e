package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"io"
	"math/big"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	xhkdf "golang.org/x/crypto/hkdf"
)

// StdBackend is the default Backend, built on the standard library
// wherever it has a suitable primitive and on golang.org/x/crypto (hkdf,
// curve25519) where it does not. AES-CCM has neither a stdlib nor an
// ecosystem implementation generic enough for this suite set, so it is
// implemented in aesccm.go.
type StdBackend struct{}

var _ Backend = StdBackend{}

func hashCtor(h HashAlg) (func() hash.Hash, error) {
	switch h {
	case HashSHA256:
		return sha256.New, nil
	case HashSHA384:
		return sha512.New384, nil
	default:
		return nil, fmt.Errorf("crypto: unsupported hash algorithm %d", h)
	}
}

func (StdBackend) AEADEncrypt(alg AEADAlg, key, nonce, aad, plaintext []byte) ([]byte, []byte, error) {
	switch alg {
	case AlgAESCCM16_64_128:
		return aesCCMSeal(key, nonce, aad, plaintext, 8)
	case AlgAESCCM16_128_128:
		return aesCCMSeal(key, nonce, aad, plaintext, 16)
	case AlgA128GCM, AlgA256GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, nil, err
		}
		gcm, err := cipher.NewGCMWithNonceSize(block, len(nonce))
		if err != nil {
			return nil, nil, err
		}
		sealed := gcm.Seal(nil, nonce, plaintext, aad)
		ct := sealed[:len(sealed)-gcm.Overhead()]
		tag := sealed[len(sealed)-gcm.Overhead():]
		return ct, tag, nil
	case AlgChaCha20Poly1305:
		aead, err := chacha20poly1305.New(key)
		if err != nil {
			return nil, nil, err
		}
		sealed := aead.Seal(nil, nonce, plaintext, aad)
		ct := sealed[:len(sealed)-aead.Overhead()]
		tag := sealed[len(sealed)-aead.Overhead():]
		return ct, tag, nil
	default:
		return nil, nil, fmt.Errorf("crypto: unsupported AEAD algorithm %d", alg)
	}
}

func (StdBackend) AEADDecrypt(alg AEADAlg, key, nonce, aad, ciphertext, tag []byte) ([]byte, error) {
	if len(tag) == 0 {
		return nil, ErrAuth
	}
	switch alg {
	case AlgAESCCM16_64_128, AlgAESCCM16_128_128:
		return aesCCMOpen(key, nonce, aad, ciphertext, tag)
	case AlgA128GCM, AlgA256GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		gcm, err := cipher.NewGCMWithNonceSize(block, len(nonce))
		if err != nil {
			return nil, err
		}
		combined := append(append([]byte{}, ciphertext...), tag...)
		pt, err := gcm.Open(nil, nonce, combined, aad)
		if err != nil {
			return nil, ErrAuth
		}
		return pt, nil
	case AlgChaCha20Poly1305:
		aead, err := chacha20poly1305.New(key)
		if err != nil {
			return nil, err
		}
		combined := append(append([]byte{}, ciphertext...), tag...)
		pt, err := aead.Open(nil, nonce, combined, aad)
		if err != nil {
			return nil, ErrAuth
		}
		return pt, nil
	default:
		return nil, fmt.Errorf("crypto: unsupported AEAD algorithm %d", alg)
	}
}

func (StdBackend) ECDH(curve ECDHCurve, sk, peerPub []byte) ([]byte, error) {
	switch curve {
	case CurveX25519:
		out, err := curve25519.X25519(sk, peerPub)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrECDH, err)
		}
		return out, nil
	case CurveP256:
		return ecdhNIST(ecdh.P256(), sk, peerPub)
	case CurveP384:
		return ecdhNIST(ecdh.P384(), sk, peerPub)
	default:
		return nil, fmt.Errorf("crypto: unsupported ECDH curve %d", curve)
	}
}

func ecdhNIST(c ecdh.Curve, sk, peerPub []byte) ([]byte, error) {
	priv, err := c.NewPrivateKey(sk)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrECDH, err)
	}
	// EDHOC/COSE carry only the X coordinate of a P-curve public key; rebuild
	// the uncompressed point form crypto/ecdh requires.
	pub, err := uncompressedFromX(c, peerPub)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrECDH, err)
	}
	shared, err := priv.ECDH(pub)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrECDH, err)
	}
	return shared, nil
}

// uncompressedFromX recovers the full uncompressed SEC1 point from an
// X-only coordinate, choosing the even-Y root (EDHOC/COSE convention for
// compact P-256/P-384 public keys carried as G_X/G_Y).
func uncompressedFromX(c ecdh.Curve, x []byte) (*ecdh.PublicKey, error) {
	curve := ellipticOf(c)
	if curve == nil {
		return nil, fmt.Errorf("crypto: unsupported curve for X-only recovery")
	}
	params := curve.Params()
	bx := new(big.Int).SetBytes(x)
	y := recoverY(params, bx)
	size := (params.BitSize + 7) / 8
	buf := make([]byte, 1+2*size)
	buf[0] = 0x04
	bx.FillBytes(buf[1 : 1+size])
	y.FillBytes(buf[1+size:])
	return c.NewPublicKey(buf)
}

func ellipticOf(c ecdh.Curve) elliptic.Curve {
	switch c {
	case ecdh.P256():
		return elliptic.P256()
	case ecdh.P384():
		return elliptic.P384()
	default:
		return nil
	}
}

// recoverY solves y^2 = x^3 - 3x + b mod p and returns the even root.
func recoverY(params *elliptic.CurveParams, x *big.Int) *big.Int {
	p := params.P
	x3 := new(big.Int).Mul(x, x)
	x3.Mul(x3, x)
	threeX := new(big.Int).Lsh(x, 1)
	threeX.Add(threeX, x)
	y2 := new(big.Int).Sub(x3, threeX)
	y2.Add(y2, params.B)
	y2.Mod(y2, p)

	exp := new(big.Int).Add(p, big.NewInt(1))
	exp.Rsh(exp, 2)
	y := new(big.Int).Exp(y2, exp, p)
	if y.Bit(0) != 0 {
		y.Sub(p, y)
	}
	return y
}

func (StdBackend) HKDFExtract(h HashAlg, salt, ikm []byte) ([]byte, error) {
	ctor, err := hashCtor(h)
	if err != nil {
		return nil, err
	}
	return xhkdf.Extract(ctor, ikm, salt), nil
}

func (StdBackend) HKDFExpand(h HashAlg, prk, info []byte, outLen int) ([]byte, error) {
	ctor, err := hashCtor(h)
	if err != nil {
		return nil, err
	}
	if outLen > 255*HashLen(h) {
		return nil, ErrHKDFExpandTooLarge
	}
	r := xhkdf.Expand(ctor, prk, info)
	out := make([]byte, outLen)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (StdBackend) Hash(h HashAlg, in []byte) ([]byte, error) {
	switch h {
	case HashSHA256:
		sum := sha256.Sum256(in)
		return sum[:], nil
	case HashSHA384:
		sum := sha512.Sum384(in)
		return sum[:], nil
	default:
		return nil, fmt.Errorf("crypto: unsupported hash algorithm %d", h)
	}
}

func (StdBackend) Sign(alg SignAlg, sk, msg []byte) ([]byte, error) {
	switch alg {
	case SignEd25519:
		if len(sk) != ed25519.SeedSize {
			return nil, fmt.Errorf("%w: ed25519 seed must be %d bytes", ErrSignVerify, ed25519.SeedSize)
		}
		priv := ed25519.NewKeyFromSeed(sk)
		return ed25519.Sign(priv, msg), nil
	case SignES256:
		digest := sha256.Sum256(msg)
		return signECDSA(elliptic.P256(), digest[:], sk)
	case SignES384:
		digest := sha512.Sum384(msg)
		return signECDSA(elliptic.P384(), digest[:], sk)
	default:
		return nil, fmt.Errorf("crypto: unsupported sign algorithm %d", alg)
	}
}

func signECDSA(curve elliptic.Curve, digest []byte, sk []byte) ([]byte, error) {
	priv := new(ecdsa.PrivateKey)
	priv.Curve = curve
	priv.D = new(big.Int).SetBytes(sk)
	priv.PublicKey.X, priv.PublicKey.Y = curve.ScalarBaseMult(sk)

	r, s, err := ecdsa.Sign(rand.Reader, priv, digest)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignVerify, err)
	}
	size := (curve.Params().BitSize + 7) / 8
	sig := make([]byte, 2*size)
	r.FillBytes(sig[:size])
	s.FillBytes(sig[size:])
	return sig, nil
}

func (StdBackend) Verify(alg SignAlg, pk, msg, sig []byte) (bool, error) {
	switch alg {
	case SignEd25519:
		if len(pk) != ed25519.PublicKeySize {
			return false, fmt.Errorf("%w: ed25519 public key must be %d bytes", ErrSignVerify, ed25519.PublicKeySize)
		}
		return ed25519.Verify(ed25519.PublicKey(pk), msg, sig), nil
	case SignES256:
		digest := sha256.Sum256(msg)
		return verifyECDSA(elliptic.P256(), digest[:], pk, sig)
	case SignES384:
		digest := sha512.Sum384(msg)
		return verifyECDSA(elliptic.P384(), digest[:], pk, sig)
	default:
		return false, fmt.Errorf("crypto: unsupported sign algorithm %d", alg)
	}
}

func verifyECDSA(curve elliptic.Curve, digest []byte, pk, sig []byte) (bool, error) {
	size := (curve.Params().BitSize + 7) / 8
	if len(sig) != 2*size || len(pk) != size {
		return false, nil
	}
	x := new(big.Int).SetBytes(pk)
	y := recoverY(curve.Params(), x)
	pubKey := &ecdsa.PublicKey{Curve: curve, X: x, Y: y}
	r := new(big.Int).SetBytes(sig[:size])
	s := new(big.Int).SetBytes(sig[size:])
	return ecdsa.Verify(pubKey, digest, r, s), nil
}

func (StdBackend) GenerateKeyPair(curve ECDHCurve) (sk, pk []byte, err error) {
	switch curve {
	case CurveX25519:
		sk = make([]byte, curve25519.ScalarSize)
		if _, err := io.ReadFull(rand.Reader, sk); err != nil {
			return nil, nil, err
		}
		pk, err = curve25519.X25519(sk, curve25519.Basepoint)
		return sk, pk, err
	case CurveP256:
		return genECDHKeyPair(ecdh.P256())
	case CurveP384:
		return genECDHKeyPair(ecdh.P384())
	default:
		return nil, nil, fmt.Errorf("crypto: unsupported ECDH curve %d", curve)
	}
}

func genECDHKeyPair(c ecdh.Curve) (sk, pk []byte, err error) {
	priv, err := c.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	sk = priv.Bytes()
	raw := priv.PublicKey().Bytes() // uncompressed: 0x04 || X || Y
	size := (len(raw) - 1) / 2
	pk = append([]byte{}, raw[1:1+size]...)
	return sk, pk, nil
}
