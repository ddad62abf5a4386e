package edhoc_test

import (
	"bytes"
	stded25519 "crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-edhoc/edhoc-oscore/cbor"
	"github.com/go-edhoc/edhoc-oscore/crypto"
	"github.com/go-edhoc/edhoc-oscore/edhoc"
	"github.com/go-edhoc/edhoc-oscore/suites"
)

// testIdentity builds one party's long-term key material for suite 0:
// an Ed25519 signature keypair from a deterministic seed plus a fresh
// X25519 static-DH keypair, with an opaque CRED and a { 4 : kid } ID_CRED.
func testIdentity(t *testing.T, be crypto.Backend, seedByte byte, kid []byte) edhoc.StaticKeys {
	t.Helper()
	seed := bytes.Repeat([]byte{seedByte}, stded25519.SeedSize)
	signPK := []byte(stded25519.NewKeyFromSeed(seed).Public().(stded25519.PublicKey))

	staticSK, staticPK, err := be.GenerateKeyPair(crypto.CurveX25519)
	require.NoError(t, err)

	idCred, err := edhoc.IDCredFromKID(kid)
	require.NoError(t, err)

	return edhoc.StaticKeys{
		SignSK:     seed,
		SignPK:     signPK,
		StaticDHSK: staticSK,
		StaticDHPK: staticPK,
		Cred:       append([]byte("cred-"), kid...),
		IDCred:     idCred,
	}
}

// publicHalf strips the private keys, leaving what a credential store
// would hand back from an ID_CRED lookup.
func publicHalf(keys edhoc.StaticKeys) edhoc.StaticKeys {
	return edhoc.StaticKeys{
		SignPK:     keys.SignPK,
		StaticDHPK: keys.StaticDHPK,
		Cred:       keys.Cred,
		IDCred:     keys.IDCred,
	}
}

func fetcherFor(t *testing.T, keys edhoc.StaticKeys) edhoc.CredFetcher {
	return func(idCred []byte) (edhoc.StaticKeys, error) {
		require.Equal(t, keys.IDCred, idCred)
		return publicHalf(keys), nil
	}
}

// runHandshake drives a complete message_1/2/3 exchange under method and
// returns both completed sessions.
func runHandshake(t *testing.T, method edhoc.Method, ad2 cbor.Optional[[]byte]) (*edhoc.Session, *edhoc.Session) {
	t.Helper()
	be := crypto.StdBackend{}
	suite, err := suites.Lookup(suites.Suite0)
	require.NoError(t, err)

	initKeys := testIdentity(t, be, 0x11, []byte{0x2b})
	respKeys := testIdentity(t, be, 0x22, []byte{0x07})

	initiator, err := edhoc.NewSession(be, edhoc.Initiator, method, suite, []byte{0x0e}, initKeys)
	require.NoError(t, err)
	responder, err := edhoc.NewSession(be, edhoc.Responder, method, suite, []byte{0x20}, respKeys)
	require.NoError(t, err)

	msg1, err := initiator.BuildMessage1([]suites.ID{suites.Suite0}, cbor.None[[]byte]())
	require.NoError(t, err)
	_, err = responder.ParseMessage1(msg1, suites.Supported())
	require.NoError(t, err)

	msg2, err := responder.BuildMessage2(respKeys.Cred, respKeys.IDCred, initKeys.StaticDHPK, ad2)
	require.NoError(t, err)
	gotAD2, err := initiator.ParseMessage2(msg2, fetcherFor(t, respKeys))
	require.NoError(t, err)
	require.Equal(t, ad2.Present, gotAD2.Present)
	if ad2.Present {
		require.Equal(t, ad2.Val, gotAD2.Val)
	}

	msg3, err := initiator.BuildMessage3(initKeys.Cred, initKeys.IDCred, initiator.Peer.StaticDHPK, cbor.None[[]byte]())
	require.NoError(t, err)
	_, err = responder.ParseMessage3(msg3, fetcherFor(t, initKeys))
	require.NoError(t, err)

	return initiator, responder
}

func TestHandshakeAllMethods(t *testing.T) {
	methods := []edhoc.Method{
		edhoc.MethodSignSign,
		edhoc.MethodSignStatic,
		edhoc.MethodStaticSign,
		edhoc.MethodStaticStatic,
	}
	for _, method := range methods {
		initiator, responder := runHandshake(t, method, cbor.None[[]byte]())

		require.Equal(t, edhoc.StateDone, initiator.State)
		require.Equal(t, edhoc.StateDone, responder.State)

		// Both sides must arrive at the same transcript hash and
		// export the same OSCORE inputs.
		require.Equal(t, initiator.TH4, responder.TH4)

		iSecret, iSalt, err := initiator.Export()
		require.NoError(t, err)
		rSecret, rSalt, err := responder.Export()
		require.NoError(t, err)

		require.Len(t, iSecret, 16)
		require.Len(t, iSalt, 8)
		require.Equal(t, rSecret, iSecret)
		require.Equal(t, rSalt, iSalt)
	}
}

// Suite 3 pairs P-384 with SHA-384 and the 128-bit-tag CCM variant; a
// static-static handshake exercises its ECDH, HKDF and AEAD key lengths
// end to end.
func TestHandshakeSuite3StaticStatic(t *testing.T) {
	be := crypto.StdBackend{}
	suite, err := suites.Lookup(suites.Suite3)
	require.NoError(t, err)

	makeIdentity := func(kid []byte) edhoc.StaticKeys {
		sk, pk, err := be.GenerateKeyPair(crypto.CurveP384)
		require.NoError(t, err)
		idCred, err := edhoc.IDCredFromKID(kid)
		require.NoError(t, err)
		return edhoc.StaticKeys{
			StaticDHSK: sk,
			StaticDHPK: pk,
			Cred:       append([]byte("cred-"), kid...),
			IDCred:     idCred,
		}
	}
	initKeys := makeIdentity([]byte{0x2b})
	respKeys := makeIdentity([]byte{0x07})

	initiator, err := edhoc.NewSession(be, edhoc.Initiator, edhoc.MethodStaticStatic, suite, []byte{0x0e}, initKeys)
	require.NoError(t, err)
	responder, err := edhoc.NewSession(be, edhoc.Responder, edhoc.MethodStaticStatic, suite, []byte{0x20}, respKeys)
	require.NoError(t, err)

	msg1, err := initiator.BuildMessage1([]suites.ID{suites.Suite3}, cbor.None[[]byte]())
	require.NoError(t, err)
	_, err = responder.ParseMessage1(msg1, suites.Supported())
	require.NoError(t, err)

	msg2, err := responder.BuildMessage2(respKeys.Cred, respKeys.IDCred, initKeys.StaticDHPK, cbor.None[[]byte]())
	require.NoError(t, err)
	_, err = initiator.ParseMessage2(msg2, fetcherFor(t, respKeys))
	require.NoError(t, err)

	msg3, err := initiator.BuildMessage3(initKeys.Cred, initKeys.IDCred, initiator.Peer.StaticDHPK, cbor.None[[]byte]())
	require.NoError(t, err)
	_, err = responder.ParseMessage3(msg3, fetcherFor(t, initKeys))
	require.NoError(t, err)

	require.Equal(t, initiator.TH4, responder.TH4)
	require.Len(t, initiator.TH4, 48)

	iSecret, iSalt, err := initiator.Export()
	require.NoError(t, err)
	rSecret, rSalt, err := responder.Export()
	require.NoError(t, err)
	require.Equal(t, rSecret, iSecret)
	require.Equal(t, rSalt, iSalt)
}

func TestHandshakeCarriesAD2(t *testing.T) {
	initiator, responder := runHandshake(t, edhoc.MethodSignSign, cbor.Some([]byte("voucher")))
	require.Equal(t, initiator.TH4, responder.TH4)
}

func TestSuiteNegotiationFailure(t *testing.T) {
	be := crypto.StdBackend{}
	suite, err := suites.Lookup(suites.Suite0)
	require.NoError(t, err)

	initKeys := testIdentity(t, be, 0x11, []byte{0x2b})
	respKeys := testIdentity(t, be, 0x22, []byte{0x07})

	initiator, err := edhoc.NewSession(be, edhoc.Initiator, edhoc.MethodSignSign, suite, []byte{0x0e}, initKeys)
	require.NoError(t, err)
	responder, err := edhoc.NewSession(be, edhoc.Responder, edhoc.MethodSignSign, suite, []byte{0x20}, respKeys)
	require.NoError(t, err)

	msg1, err := initiator.BuildMessage1([]suites.ID{suites.Suite0}, cbor.None[[]byte]())
	require.NoError(t, err)

	_, err = responder.ParseMessage1(msg1, []suites.ID{suites.Suite2})
	var eerr *edhoc.Error
	require.ErrorAs(t, err, &eerr)
	require.Equal(t, edhoc.CodeSuiteUnsupported, eerr.Code)
	require.Equal(t, edhoc.StateFailed, responder.State)

	// The failed session refuses further steps and can emit the error
	// message for the transport to send.
	_, err = responder.BuildMessage2(respKeys.Cred, respKeys.IDCred, nil, cbor.None[[]byte]())
	require.ErrorAs(t, err, &eerr)
	require.Equal(t, edhoc.CodeStateUnexpected, eerr.Code)

	wire := responder.BuildError(err)
	count, _, cerr := cbor.DecodeArrayHeader(wire)
	require.NoError(t, cerr)
	require.Equal(t, 2, count)
}

func TestBuildMessage1Twice(t *testing.T) {
	be := crypto.StdBackend{}
	suite, err := suites.Lookup(suites.Suite0)
	require.NoError(t, err)

	initiator, err := edhoc.NewSession(be, edhoc.Initiator, edhoc.MethodSignSign, suite, []byte{0x0e}, testIdentity(t, be, 0x11, []byte{0x2b}))
	require.NoError(t, err)

	_, err = initiator.BuildMessage1([]suites.ID{suites.Suite0}, cbor.None[[]byte]())
	require.NoError(t, err)

	_, err = initiator.BuildMessage1([]suites.ID{suites.Suite0}, cbor.None[[]byte]())
	var eerr *edhoc.Error
	require.ErrorAs(t, err, &eerr)
	require.Equal(t, edhoc.CodeStateUnexpected, eerr.Code)
	require.Equal(t, edhoc.StateFailed, initiator.State)
}

func TestTamperedMessage3Fails(t *testing.T) {
	be := crypto.StdBackend{}
	suite, err := suites.Lookup(suites.Suite0)
	require.NoError(t, err)

	initKeys := testIdentity(t, be, 0x11, []byte{0x2b})
	respKeys := testIdentity(t, be, 0x22, []byte{0x07})

	initiator, err := edhoc.NewSession(be, edhoc.Initiator, edhoc.MethodSignSign, suite, []byte{0x0e}, initKeys)
	require.NoError(t, err)
	responder, err := edhoc.NewSession(be, edhoc.Responder, edhoc.MethodSignSign, suite, []byte{0x20}, respKeys)
	require.NoError(t, err)

	msg1, err := initiator.BuildMessage1([]suites.ID{suites.Suite0}, cbor.None[[]byte]())
	require.NoError(t, err)
	_, err = responder.ParseMessage1(msg1, suites.Supported())
	require.NoError(t, err)

	msg2, err := responder.BuildMessage2(respKeys.Cred, respKeys.IDCred, nil, cbor.None[[]byte]())
	require.NoError(t, err)
	_, err = initiator.ParseMessage2(msg2, fetcherFor(t, respKeys))
	require.NoError(t, err)

	msg3, err := initiator.BuildMessage3(initKeys.Cred, initKeys.IDCred, nil, cbor.None[[]byte]())
	require.NoError(t, err)
	msg3[len(msg3)-1] ^= 0xff

	_, err = responder.ParseMessage3(msg3, fetcherFor(t, initKeys))
	var eerr *edhoc.Error
	require.ErrorAs(t, err, &eerr)
	require.Equal(t, edhoc.CodeCryptoAuth, eerr.Code)
	require.Equal(t, edhoc.StateFailed, responder.State)
}

func TestTamperedMessage2Fails(t *testing.T) {
	be := crypto.StdBackend{}
	suite, err := suites.Lookup(suites.Suite0)
	require.NoError(t, err)

	initKeys := testIdentity(t, be, 0x11, []byte{0x2b})
	respKeys := testIdentity(t, be, 0x22, []byte{0x07})

	initiator, err := edhoc.NewSession(be, edhoc.Initiator, edhoc.MethodSignSign, suite, []byte{0x0e}, initKeys)
	require.NoError(t, err)
	responder, err := edhoc.NewSession(be, edhoc.Responder, edhoc.MethodSignSign, suite, []byte{0x20}, respKeys)
	require.NoError(t, err)

	msg1, err := initiator.BuildMessage1([]suites.ID{suites.Suite0}, cbor.None[[]byte]())
	require.NoError(t, err)
	_, err = responder.ParseMessage1(msg1, suites.Supported())
	require.NoError(t, err)

	msg2, err := responder.BuildMessage2(respKeys.Cred, respKeys.IDCred, nil, cbor.None[[]byte]())
	require.NoError(t, err)
	// Corrupt the tail of CIPHERTEXT_2 (the Signature_or_MAC bytes).
	msg2[len(msg2)-1] ^= 0xff

	_, err = initiator.ParseMessage2(msg2, fetcherFor(t, respKeys))
	require.Error(t, err)
	require.Equal(t, edhoc.StateFailed, initiator.State)
}

func TestExportBeforeDone(t *testing.T) {
	be := crypto.StdBackend{}
	suite, err := suites.Lookup(suites.Suite0)
	require.NoError(t, err)

	sess, err := edhoc.NewSession(be, edhoc.Initiator, edhoc.MethodSignSign, suite, []byte{0x0e}, testIdentity(t, be, 0x11, []byte{0x2b}))
	require.NoError(t, err)

	_, _, err = sess.Export()
	var eerr *edhoc.Error
	require.ErrorAs(t, err, &eerr)
	require.Equal(t, edhoc.CodeStateUnexpected, eerr.Code)
}

func TestWrongRoleRejected(t *testing.T) {
	be := crypto.StdBackend{}
	suite, err := suites.Lookup(suites.Suite0)
	require.NoError(t, err)

	responder, err := edhoc.NewSession(be, edhoc.Responder, edhoc.MethodSignSign, suite, []byte{0x20}, testIdentity(t, be, 0x22, []byte{0x07}))
	require.NoError(t, err)

	_, err = responder.BuildMessage1([]suites.ID{suites.Suite0}, cbor.None[[]byte]())
	var eerr *edhoc.Error
	require.ErrorAs(t, err, &eerr)
	require.Equal(t, edhoc.CodeStateUnexpected, eerr.Code)
}
