package edhoc

import "github.com/go-edhoc/edhoc-oscore/cbor"

// derivePRK4x3m computes PRK_4x3m: if the Initiator
// authenticates with static-DH, HKDF-Extract(PRK_3e2m, ECDH(X,G_R_static));
// otherwise PRK_4x3m = PRK_3e2m. peerStaticPK is the Responder's static-DH
// public key (CRED_R's key), known to the Initiator after ParseMessage2's
// CredFetcher resolved it, or to the Responder out of band/via CRED_R's
// own static key.
func (s *Session) derivePRK4x3m(peerStaticPK []byte) error {
	if s.Method.InitiatorAuth() != AuthStaticDH {
		s.prk4x3m = s.prk3e2m
		return nil
	}
	shared, err := s.ecdhStaticEphemeral(s.Role == Initiator, peerStaticPK)
	if err != nil {
		return err
	}
	prk, err := s.Backend.HKDFExtract(s.Suite.Hash, s.prk3e2m, shared)
	if err != nil {
		return wrap(CodeEcdhFail, err)
	}
	s.prk4x3m = prk
	return nil
}

// computeTH4 = hash( TH_3 || CIPHERTEXT_3 ).
func (s *Session) computeTH4() error {
	buf := concatAll(s.TH3, s.msg3Raw)
	th4, err := s.Backend.Hash(s.Suite.Hash, buf)
	if err != nil {
		return wrap(CodeEcdhFail, err)
	}
	s.TH4 = th4
	return nil
}

// BuildMessage3 constructs message_3 (Initiator -> Responder):
// CIPHERTEXT_3 = AEAD-Encrypt(K_3, IV_3, AAD=A_3ae(TH_3),
// plaintext=ID_CRED_I||Signature_or_MAC_3||?AD_3). Wire form is
// CIPHERTEXT_3 as a bare CBOR bytestring. peerStaticPK is the Responder's
// static-DH public key, needed only when the Initiator authenticates with
// static-DH.
func (s *Session) BuildMessage3(credI, idCredI []byte, peerStaticPK []byte, ad3 cbor.Optional[[]byte]) ([]byte, error) {
	if err := s.mustTransition(StateRecvMsg2, StateSentMsg3); err != nil {
		return nil, err
	}
	if s.Role != Initiator {
		return nil, s.fail(newErr(CodeStateUnexpected, "BuildMessage3 called on a Responder session"))
	}

	if err := s.derivePRK4x3m(peerStaticPK); err != nil {
		return nil, s.fail(err)
	}

	sigOrMac, err := s.buildSignatureOrMac(s.Method.InitiatorAuth(), s.prk4x3m, s.TH3, idCredI, credI, optOrNil(ad3), "K_3m", "IV_3m")
	if err != nil {
		return nil, s.fail(err)
	}
	idCredEnc, err := encodeIDCred(idCredI)
	if err != nil {
		return nil, s.fail(err)
	}
	plaintext3 := concatAll(idCredEnc, sigOrMac, optOrNil(ad3))

	k3, iv3, err := s.deriveMessageKeyIV(s.prk4x3m, s.TH3, "K_3", "IV_3")
	if err != nil {
		return nil, s.fail(err)
	}
	aad, err := buildAxAE(s.TH3)
	if err != nil {
		return nil, s.fail(wrap(CodeCborFormat, err))
	}
	ciphertext, tag, err := s.Backend.AEADEncrypt(s.Suite.AEAD, k3, iv3, aad, plaintext3)
	if err != nil {
		return nil, s.fail(wrap(CodeCryptoAuth, err))
	}
	ciphertext3 := append(ciphertext, tag...)
	s.msg3Raw = append([]byte{}, ciphertext3...)

	wire := make([]byte, cbor.SizeBstr(len(ciphertext3)))
	if _, err := cbor.EncodeBstr(wire, ciphertext3); err != nil {
		return nil, s.fail(wrap(CodeCborFormat, err))
	}

	if err := s.computeTH4(); err != nil {
		return nil, s.fail(err)
	}
	s.State = StateDone
	return wire, nil
}

// ParseMessage3 parses message_3 on the Responder side. credIFetcher
// resolves ID_CRED_I to CRED_I and its public key(s).
func (s *Session) ParseMessage3(wire []byte, credIFetcher CredFetcher) (ad3 cbor.Optional[[]byte], err error) {
	if err := s.mustTransition(StateSentMsg2, StateRecvMsg3); err != nil {
		return ad3, err
	}
	if s.Role != Responder {
		return ad3, s.fail(newErr(CodeStateUnexpected, "ParseMessage3 called on an Initiator session"))
	}

	ciphertext3, _, err := cbor.DecodeBstr(wire)
	if err != nil {
		return ad3, s.fail(wrap(CodeCborFormat, err))
	}
	s.msg3Raw = append([]byte{}, ciphertext3...)
	if len(ciphertext3) < s.Suite.AEADTagLen {
		return ad3, s.fail(newErr(CodeMsgFormat, "message_3 ciphertext shorter than the AEAD tag"))
	}
	ct := ciphertext3[:len(ciphertext3)-s.Suite.AEADTagLen]
	tag := ciphertext3[len(ciphertext3)-s.Suite.AEADTagLen:]

	// On the Responder side, PRK_4x3m's static-DH term is ECDH(own static
	// SK, peer ephemeral PK) (see ecdhStaticEphemeral): both already known
	// from message_1, so no peer static key is needed here yet.
	if err := s.derivePRK4x3m(nil); err != nil {
		return ad3, s.fail(err)
	}

	k3, iv3, err := s.deriveMessageKeyIV(s.prk4x3m, s.TH3, "K_3", "IV_3")
	if err != nil {
		return ad3, s.fail(err)
	}
	aad, err := buildAxAE(s.TH3)
	if err != nil {
		return ad3, s.fail(wrap(CodeCborFormat, err))
	}
	plaintext3, err := s.Backend.AEADDecrypt(s.Suite.AEAD, k3, iv3, aad, ct, tag)
	if err != nil {
		return ad3, s.fail(wrap(CodeCryptoAuth, err))
	}

	idCredI, consumed, err := decodeIDCred(plaintext3)
	if err != nil {
		return ad3, s.fail(err)
	}
	rest := plaintext3[consumed:]

	peer, err := credIFetcher(idCredI)
	if err != nil {
		return ad3, s.fail(wrap(CodeMsgFormat, err))
	}
	s.Peer = peer

	sigLen, adLen, err := s.splitSigOrMacAndAD(s.Method.InitiatorAuth(), rest)
	if err != nil {
		return ad3, s.fail(err)
	}
	sigOrMac := rest[:sigLen]
	if adLen > 0 {
		ad3 = cbor.Some(append([]byte{}, rest[sigLen:sigLen+adLen]...))
	}

	if err := s.verifySignatureOrMac(s.Method.InitiatorAuth(), s.prk4x3m, s.TH3, idCredI, peer.Cred, optOrNil(ad3), peer.SignPK, sigOrMac, "K_3m", "IV_3m"); err != nil {
		return ad3, s.fail(err)
	}

	if err := s.computeTH4(); err != nil {
		return ad3, s.fail(err)
	}
	s.State = StateDone
	return ad3, nil
}

// deriveMessageKeyIV derives K_x = HKDF-Expand(prk, info(label, key_len))
// and IV_x = HKDF-Expand(prk, info(label, nonce_len)); message_3 and the
// static-DH MAC derivations share this shape.
func (s *Session) deriveMessageKeyIV(prk, th []byte, kLabel, ivLabel string) (k, iv []byte, err error) {
	kInfo, err := buildInfo(s.Suite.AEAD, th, kLabel, s.Suite.AEADKeyLen)
	if err != nil {
		return nil, nil, wrap(CodeCborFormat, err)
	}
	k, err = s.Backend.HKDFExpand(s.Suite.Hash, prk, kInfo, s.Suite.AEADKeyLen)
	if err != nil {
		return nil, nil, wrap(CodeHkdfExpandTooLarge, err)
	}
	ivInfo, err := buildInfo(s.Suite.AEAD, th, ivLabel, s.Suite.AEADIVLen)
	if err != nil {
		return nil, nil, wrap(CodeCborFormat, err)
	}
	iv, err = s.Backend.HKDFExpand(s.Suite.Hash, prk, ivInfo, s.Suite.AEADIVLen)
	if err != nil {
		return nil, nil, wrap(CodeHkdfExpandTooLarge, err)
	}
	return k, iv, nil
}
