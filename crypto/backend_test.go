package crypto_test

import (
	"bytes"
	stded25519 "crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-edhoc/edhoc-oscore/crypto"
)

func ed25519PublicFromSeed(seed []byte) []byte {
	priv := stded25519.NewKeyFromSeed(seed)
	return []byte(priv.Public().(stded25519.PublicKey))
}

func TestAESCCMRoundTrip(t *testing.T) {
	be := crypto.StdBackend{}
	key := bytes.Repeat([]byte{0x42}, 16)
	nonce := bytes.Repeat([]byte{0x01}, 13)
	aad := []byte("some associated data")
	pt := []byte("Hello World!")

	for _, alg := range []crypto.AEADAlg{crypto.AlgAESCCM16_64_128, crypto.AlgAESCCM16_128_128} {
		ct, tag, err := be.AEADEncrypt(alg, key, nonce, aad, pt)
		require.NoError(t, err)
		require.Len(t, ct, len(pt))

		got, err := be.AEADDecrypt(alg, key, nonce, aad, ct, tag)
		require.NoError(t, err)
		require.Equal(t, pt, got)

		tag[0] ^= 0xff
		_, err = be.AEADDecrypt(alg, key, nonce, aad, ct, tag)
		require.ErrorIs(t, err, crypto.ErrAuth)
	}
}

func TestAESCCMEmptyPlaintext(t *testing.T) {
	be := crypto.StdBackend{}
	key := bytes.Repeat([]byte{0x07}, 16)
	nonce := bytes.Repeat([]byte{0x00}, 13)
	ct, tag, err := be.AEADEncrypt(crypto.AlgAESCCM16_64_128, key, nonce, []byte("aad"), nil)
	require.NoError(t, err)
	require.Len(t, ct, 0)

	pt, err := be.AEADDecrypt(crypto.AlgAESCCM16_64_128, key, nonce, []byte("aad"), ct, tag)
	require.NoError(t, err)
	require.Len(t, pt, 0)
}

func TestHKDFExpandLength(t *testing.T) {
	be := crypto.StdBackend{}
	prk, err := be.HKDFExtract(crypto.HashSHA256, []byte{}, []byte("ikm"))
	require.NoError(t, err)
	require.Len(t, prk, 32)

	for _, l := range []int{0, 1, 16, 32, 255 * 32} {
		out, err := be.HKDFExpand(crypto.HashSHA256, prk, []byte("info"), l)
		require.NoError(t, err)
		require.Len(t, out, l)
	}

	_, err = be.HKDFExpand(crypto.HashSHA256, prk, []byte("info"), 255*32+1)
	require.ErrorIs(t, err, crypto.ErrHKDFExpandTooLarge)
}

func TestX25519ECDHAgreement(t *testing.T) {
	be := crypto.StdBackend{}
	skA, pkA, err := be.GenerateKeyPair(crypto.CurveX25519)
	require.NoError(t, err)
	skB, pkB, err := be.GenerateKeyPair(crypto.CurveX25519)
	require.NoError(t, err)

	sharedA, err := be.ECDH(crypto.CurveX25519, skA, pkB)
	require.NoError(t, err)
	sharedB, err := be.ECDH(crypto.CurveX25519, skB, pkA)
	require.NoError(t, err)
	require.Equal(t, sharedA, sharedB)
}

func TestP256ECDHAgreement(t *testing.T) {
	be := crypto.StdBackend{}
	skA, pkA, err := be.GenerateKeyPair(crypto.CurveP256)
	require.NoError(t, err)
	skB, pkB, err := be.GenerateKeyPair(crypto.CurveP256)
	require.NoError(t, err)

	sharedA, err := be.ECDH(crypto.CurveP256, skA, pkB)
	require.NoError(t, err)
	sharedB, err := be.ECDH(crypto.CurveP256, skB, pkA)
	require.NoError(t, err)
	require.Equal(t, sharedA, sharedB)
}

func TestEd25519SignVerify(t *testing.T) {
	be := crypto.StdBackend{}
	seed := bytes.Repeat([]byte{0x09}, 32)
	sk, pk := seed, ed25519PublicFromSeed(seed)

	msg := []byte("EDHOC message_3 signature payload")
	sig, err := be.Sign(crypto.SignEd25519, sk, msg)
	require.NoError(t, err)

	ok, err := be.Verify(crypto.SignEd25519, pk, msg, sig)
	require.NoError(t, err)
	require.True(t, ok)

	sig[0] ^= 0xff
	ok, err = be.Verify(crypto.SignEd25519, pk, msg, sig)
	require.NoError(t, err)
	require.False(t, ok)
}
