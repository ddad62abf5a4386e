// AES-CCM for the suites this package registers: 13-byte nonce (L=2 length
// field), 8- or 16-byte tags. Go's standard library only ships AES-GCM, so
// this follows RFC 3610 / NIST SP 800-38C directly.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"encoding/binary"
	"errors"
)

const ccmNonceLen = 13
const ccmLenFieldSize = 15 - ccmNonceLen // L = 2

var (
	errCCMInvalidTagSize   = errors.New("crypto: AES-CCM tag size must be 8 or 16 bytes")
	errCCMInvalidNonceSize = errors.New("crypto: AES-CCM nonce must be 13 bytes")
	errCCMPlaintextTooLong = errors.New("crypto: AES-CCM plaintext exceeds length field capacity")
)

func ccmBlockCipher(key []byte) (cipher.Block, error) {
	return aes.NewCipher(key)
}

// ccmFormatB0 builds the first CBC-MAC block (RFC 3610 §2.2).
func ccmFormatB0(nonce []byte, adataPresent bool, tagLen, payloadLen int) ([16]byte, error) {
	var b0 [16]byte
	if len(nonce) != ccmNonceLen {
		return b0, errCCMInvalidNonceSize
	}
	if payloadLen > (1<<(8*ccmLenFieldSize))-1 {
		return b0, errCCMPlaintextTooLong
	}
	var flags byte
	if adataPresent {
		flags |= 0x40
	}
	flags |= byte((tagLen-2)/2) << 3
	flags |= byte(ccmLenFieldSize - 1)
	b0[0] = flags
	copy(b0[1:1+ccmNonceLen], nonce)
	q := payloadLen
	for i := 0; i < ccmLenFieldSize; i++ {
		b0[15-i] = byte(q)
		q >>= 8
	}
	return b0, nil
}

// ccmCounterBlock builds A_i = flags || nonce || counter (RFC 3610 §2.3).
func ccmCounterBlock(nonce []byte, counter uint64) [16]byte {
	var a [16]byte
	a[0] = byte(ccmLenFieldSize - 1)
	copy(a[1:1+ccmNonceLen], nonce)
	var ctr [8]byte
	binary.BigEndian.PutUint64(ctr[:], counter)
	copy(a[16-ccmLenFieldSize:], ctr[8-ccmLenFieldSize:])
	return a
}

func xorBlock(dst, a, b []byte) {
	for i := range dst {
		dst[i] = a[i] ^ b[i]
	}
}

// ccmMac computes the CBC-MAC over B0, length-prefixed AAD (padded to a
// 16-byte boundary) and the plaintext (padded to a 16-byte boundary).
func ccmMac(block cipher.Block, nonce, aad, plaintext []byte, tagLen int) ([]byte, error) {
	b0, err := ccmFormatB0(nonce, len(aad) > 0, tagLen, len(plaintext))
	if err != nil {
		return nil, err
	}
	var x, tmp [16]byte
	block.Encrypt(x[:], b0[:])

	if len(aad) > 0 {
		var hdr []byte
		switch {
		case len(aad) < 0xff00:
			var b [2]byte
			binary.BigEndian.PutUint16(b[:], uint16(len(aad)))
			hdr = b[:]
		default:
			var b [6]byte
			b[0], b[1] = 0xff, 0xfe
			binary.BigEndian.PutUint32(b[2:], uint32(len(aad)))
			hdr = b[:]
		}
		buf := append(append([]byte{}, hdr...), aad...)
		for len(buf)%16 != 0 {
			buf = append(buf, 0)
		}
		for off := 0; off < len(buf); off += 16 {
			xorBlock(tmp[:], x[:], buf[off:off+16])
			block.Encrypt(x[:], tmp[:])
		}
	}

	if len(plaintext) > 0 {
		padded := plaintext
		if rem := len(padded) % 16; rem != 0 {
			padded = append(append([]byte{}, padded...), make([]byte, 16-rem)...)
		}
		for off := 0; off < len(padded); off += 16 {
			xorBlock(tmp[:], x[:], padded[off:off+16])
			block.Encrypt(x[:], tmp[:])
		}
	}
	return append([]byte{}, x[:tagLen]...), nil
}

// ccmCrypt applies the CTR-mode keystream starting at counter 1 (counter 0
// encrypts the MAC) to in, producing an equal-length output.
func ccmCrypt(block cipher.Block, nonce []byte, in []byte) []byte {
	out := make([]byte, len(in))
	var s [16]byte
	for off := 0; off < len(in); off += 16 {
		ctr := ccmCounterBlock(nonce, uint64(off/16)+1)
		block.Encrypt(s[:], ctr[:])
		end := off + 16
		if end > len(in) {
			end = len(in)
		}
		for i := off; i < end; i++ {
			out[i] = in[i] ^ s[i-off]
		}
	}
	return out
}

// aesCCMSeal implements AEAD encryption for AES-CCM-16-{64,128}-128.
func aesCCMSeal(key, nonce, aad, plaintext []byte, tagLen int) (ciphertext, tag []byte, err error) {
	if tagLen != 8 && tagLen != 16 {
		return nil, nil, errCCMInvalidTagSize
	}
	block, err := ccmBlockCipher(key)
	if err != nil {
		return nil, nil, err
	}
	mac, err := ccmMac(block, nonce, aad, plaintext, tagLen)
	if err != nil {
		return nil, nil, err
	}
	var s0 [16]byte
	ctr0 := ccmCounterBlock(nonce, 0)
	block.Encrypt(s0[:], ctr0[:])
	encryptedTag := make([]byte, tagLen)
	xorBlock(encryptedTag, mac, s0[:tagLen])

	ciphertext = ccmCrypt(block, nonce, plaintext)
	return ciphertext, encryptedTag, nil
}

// aesCCMOpen implements AEAD decrypt-and-verify for AES-CCM-16-{64,128}-128.
func aesCCMOpen(key, nonce, aad, ciphertext, tag []byte) (plaintext []byte, err error) {
	tagLen := len(tag)
	if tagLen != 8 && tagLen != 16 {
		return nil, errCCMInvalidTagSize
	}
	block, err := ccmBlockCipher(key)
	if err != nil {
		return nil, err
	}
	plaintext = ccmCrypt(block, nonce, ciphertext)

	mac, err := ccmMac(block, nonce, aad, plaintext, tagLen)
	if err != nil {
		return nil, err
	}
	var s0 [16]byte
	ctr0 := ccmCounterBlock(nonce, 0)
	block.Encrypt(s0[:], ctr0[:])
	expectedTag := make([]byte, tagLen)
	xorBlock(expectedTag, mac, s0[:tagLen])

	if subtle.ConstantTimeCompare(expectedTag, tag) != 1 {
		return nil, ErrAuth
	}
	return plaintext, nil
}
