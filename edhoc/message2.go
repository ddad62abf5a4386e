package edhoc

import (
	"github.com/go-edhoc/edhoc-oscore/cbor"
)

// computeTH2 = hash( H(msg1) || CBOR(G_Y) || CBOR(C_R) ).
func (s *Session) computeTH2(gyEnc, crEnc []byte) ([]byte, error) {
	h1, err := s.Backend.Hash(s.Suite.Hash, s.msg1Raw)
	if err != nil {
		return nil, wrap(CodeEcdhFail, err)
	}
	buf := concatAll(h1, gyEnc, crEnc)
	th2, err := s.Backend.Hash(s.Suite.Hash, buf)
	if err != nil {
		return nil, wrap(CodeEcdhFail, err)
	}
	return th2, nil
}

// derivePRK2e computes PRK_2e = HKDF-Extract(salt=empty, IKM=ECDH(X,G_Y)),
// from whichever side holds the ephemeral private key.
func (s *Session) derivePRK2e() error {
	shared, err := s.Backend.ECDH(s.Suite.ECDHCurve, s.ephemeralSK, s.PeerEphemeralPK)
	if err != nil {
		return wrap(CodeEcdhFail, err)
	}
	prk, err := s.Backend.HKDFExtract(s.Suite.Hash, nil, shared)
	if err != nil {
		return wrap(CodeEcdhFail, err)
	}
	s.prk2e = prk
	return nil
}

// ecdhStaticEphemeral computes the static-DH shared secret a PRK_3e2m or
// PRK_4x3m derivation needs. ephemeralSide is true when this Session
// contributes the ephemeral private key for this particular step
// (Responder for PRK_3e2m, Initiator for PRK_4x3m); the other side
// contributes its static private key against the peer's ephemeral public
// key instead. Both arrive at the same point by Diffie-Hellman symmetry.
func (s *Session) ecdhStaticEphemeral(ephemeralSide bool, peerStaticPK []byte) ([]byte, error) {
	var sk, pk []byte
	if ephemeralSide {
		sk, pk = s.ephemeralSK, peerStaticPK
	} else {
		sk, pk = s.Local.StaticDHSK, s.PeerEphemeralPK
	}
	shared, err := s.Backend.ECDH(s.Suite.ECDHCurve, sk, pk)
	if err != nil {
		return nil, wrap(CodeEcdhFail, err)
	}
	return shared, nil
}

// derivePRK3e2m computes PRK_3e2m: if the Responder
// authenticates with static-DH, HKDF-Extract(PRK_2e, ECDH(Y,G_I_static));
// otherwise PRK_3e2m = PRK_2e. peerStaticPK is the Initiator's static-DH
// public key (known out of band by the Responder building message_2, or
// fetched via CredFetcher by the Initiator parsing message_3's peer CRED,
// here already resolved into s.Local/s.Peer by the caller).
func (s *Session) derivePRK3e2m(peerStaticPK []byte) error {
	if s.Method.ResponderAuth() != AuthStaticDH {
		s.prk3e2m = s.prk2e
		return nil
	}
	shared, err := s.ecdhStaticEphemeral(s.Role == Responder, peerStaticPK)
	if err != nil {
		return err
	}
	prk, err := s.Backend.HKDFExtract(s.Suite.Hash, s.prk2e, shared)
	if err != nil {
		return wrap(CodeEcdhFail, err)
	}
	s.prk3e2m = prk
	return nil
}

// computeTH3 = hash( TH_2 || CIPHERTEXT_2 ).
func (s *Session) computeTH3() error {
	buf := concatAll(s.TH2, s.msg2Raw)
	th3, err := s.Backend.Hash(s.Suite.Hash, buf)
	if err != nil {
		return wrap(CodeEcdhFail, err)
	}
	s.TH3 = th3
	return nil
}

func wrapBstr(v []byte) []byte {
	buf := make([]byte, cbor.SizeBstr(len(v)))
	_, _ = cbor.EncodeBstr(buf, v)
	return buf
}

func xorBytes(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}

func optOrNil(o cbor.Optional[[]byte]) []byte {
	if !o.Present {
		return nil
	}
	return o.Val
}

// BuildMessage2 constructs message_2 (Responder -> Initiator):
// wire form CBOR [ G_Y, C_R, CIPHERTEXT_2 ]. credR/idCredR is the
// Responder's own credential and its identifier; if the Responder
// authenticates with static-DH, peerStaticPK is the Initiator's static-DH
// public key (CRED_I's key), needed for PRK_3e2m.
func (s *Session) BuildMessage2(credR, idCredR []byte, peerStaticPK []byte, ad2 cbor.Optional[[]byte]) ([]byte, error) {
	if err := s.mustTransition(StateRecvMsg1, StateSentMsg2); err != nil {
		return nil, err
	}
	if s.Role != Responder {
		return nil, s.fail(newErr(CodeStateUnexpected, "BuildMessage2 called on an Initiator session"))
	}

	gyEnc := wrapBstr(s.EphemeralPK)
	crEnc := wrapBstr(s.CR)

	th2, err := s.computeTH2(gyEnc, crEnc)
	if err != nil {
		return nil, s.fail(err)
	}
	s.TH2 = th2

	if err := s.derivePRK2e(); err != nil {
		return nil, s.fail(err)
	}
	if err := s.derivePRK3e2m(peerStaticPK); err != nil {
		return nil, s.fail(err)
	}

	sigOrMac, err := s.buildSignatureOrMac(s.Method.ResponderAuth(), s.prk3e2m, th2, idCredR, credR, optOrNil(ad2), "K_2m", "IV_2m")
	if err != nil {
		return nil, s.fail(err)
	}

	idCredEnc, err := encodeIDCred(idCredR)
	if err != nil {
		return nil, s.fail(err)
	}
	plaintext2 := concatAll(idCredEnc, sigOrMac, optOrNil(ad2))
	info, err := buildInfo(s.Suite.AEAD, th2, "KEYSTREAM_2", len(plaintext2))
	if err != nil {
		return nil, s.fail(wrap(CodeCborFormat, err))
	}
	keystream2, err := s.Backend.HKDFExpand(s.Suite.Hash, s.prk2e, info, len(plaintext2))
	if err != nil {
		return nil, s.fail(wrap(CodeHkdfExpandTooLarge, err))
	}
	ciphertext2 := xorBytes(plaintext2, keystream2)
	s.msg2Raw = append([]byte{}, ciphertext2...)

	size := cbor.SizeArrayHeader(3) + len(gyEnc) + len(crEnc) + cbor.SizeBstr(len(ciphertext2))
	buf := make([]byte, size)
	off, err := cbor.EncodeArrayHeader(buf, 3)
	if err != nil {
		return nil, s.fail(wrap(CodeCborFormat, err))
	}
	off += copy(buf[off:], gyEnc)
	off += copy(buf[off:], crEnc)
	m, err := cbor.EncodeBstr(buf[off:], ciphertext2)
	if err != nil {
		return nil, s.fail(wrap(CodeCborFormat, err))
	}
	off += m

	if err := s.computeTH3(); err != nil {
		return nil, s.fail(err)
	}
	return buf[:off], nil
}

// ParseMessage2 parses message_2 on the Initiator side. credRFetcher
// resolves ID_CRED_R (found inside the decrypted plaintext) to CRED_R and
// its public key(s).
func (s *Session) ParseMessage2(wire []byte, credRFetcher CredFetcher) (ad2 cbor.Optional[[]byte], err error) {
	if err := s.mustTransition(StateSentMsg1, StateRecvMsg2); err != nil {
		return ad2, err
	}
	if s.Role != Initiator {
		return ad2, s.fail(newErr(CodeStateUnexpected, "ParseMessage2 called on a Responder session"))
	}

	n, off, err := cbor.DecodeArrayHeader(wire)
	if err != nil {
		return ad2, s.fail(wrap(CodeCborFormat, err))
	}
	if n != 3 {
		return ad2, s.fail(newErr(CodeMsgFormat, "message_2 must have 3 array elements"))
	}
	gyStart := off
	gy, m, err := cbor.DecodeBstr(wire[off:])
	if err != nil {
		return ad2, s.fail(wrap(CodeCborFormat, err))
	}
	gyEnd := off + m
	off = gyEnd
	s.PeerEphemeralPK = append([]byte{}, gy...)

	crStart := off
	cr, m, err := cbor.DecodeBstr(wire[off:])
	if err != nil {
		return ad2, s.fail(wrap(CodeCborFormat, err))
	}
	crEnd := off + m
	off = crEnd
	s.CR = append([]byte{}, cr...)

	ciphertext2, m, err := cbor.DecodeBstr(wire[off:])
	if err != nil {
		return ad2, s.fail(wrap(CodeCborFormat, err))
	}
	off += m
	s.msg2Raw = append([]byte{}, ciphertext2...)

	th2, err := s.computeTH2(wire[gyStart:gyEnd], wire[crStart:crEnd])
	if err != nil {
		return ad2, s.fail(err)
	}
	s.TH2 = th2

	if err := s.derivePRK2e(); err != nil {
		return ad2, s.fail(err)
	}

	info, err := buildInfo(s.Suite.AEAD, th2, "KEYSTREAM_2", len(ciphertext2))
	if err != nil {
		return ad2, s.fail(wrap(CodeCborFormat, err))
	}
	keystream2, err := s.Backend.HKDFExpand(s.Suite.Hash, s.prk2e, info, len(ciphertext2))
	if err != nil {
		return ad2, s.fail(wrap(CodeHkdfExpandTooLarge, err))
	}
	plaintext2 := xorBytes(ciphertext2, keystream2)

	idCredR, consumed, err := decodeIDCred(plaintext2)
	if err != nil {
		return ad2, s.fail(err)
	}
	rest := plaintext2[consumed:]

	peer, err := credRFetcher(idCredR)
	if err != nil {
		return ad2, s.fail(wrap(CodeMsgFormat, err))
	}
	s.Peer = peer

	if err := s.derivePRK3e2m(peer.StaticDHPK); err != nil {
		return ad2, s.fail(err)
	}

	sigLen, adLen, err := s.splitSigOrMacAndAD(s.Method.ResponderAuth(), rest)
	if err != nil {
		return ad2, s.fail(err)
	}
	sigOrMac := rest[:sigLen]
	if adLen > 0 {
		ad2 = cbor.Some(append([]byte{}, rest[sigLen:sigLen+adLen]...))
	}

	if err := s.verifySignatureOrMac(s.Method.ResponderAuth(), s.prk3e2m, th2, idCredR, peer.Cred, optOrNil(ad2), peer.SignPK, sigOrMac, "K_2m", "IV_2m"); err != nil {
		return ad2, s.fail(err)
	}

	if err := s.computeTH3(); err != nil {
		return ad2, s.fail(err)
	}
	return ad2, nil
}
