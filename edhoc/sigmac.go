package edhoc

import "github.com/go-edhoc/edhoc-oscore/suites"

// buildSignatureOrMac produces Signature_or_MAC_x: a COSE
// Sign1 signature when auth is AuthSignature, or a static-DH AEAD-tag MAC
// when auth is AuthStaticDH.
func (s *Session) buildSignatureOrMac(auth AuthMethod, prk, thX, idCredX, credX, adX []byte, kLabel, ivLabel string) ([]byte, error) {
	if auth == AuthSignature {
		tbs, err := buildSigStructure(idCredX, thX, credX, adX)
		if err != nil {
			return nil, wrap(CodeCborFormat, err)
		}
		sig, err := s.Backend.Sign(s.Suite.Sign, s.Local.SignSK, tbs)
		if err != nil {
			return nil, wrap(CodeSignVerifyFail, err)
		}
		return sig, nil
	}
	mac, err := computeStaticDHMAC(s.Backend, s.Suite, prk, thX, kLabel, ivLabel)
	if err != nil {
		return nil, err
	}
	return mac, nil
}

// verifySignatureOrMac checks a received Signature_or_MAC_x against the
// peer's signature public key (signature auth) or by recomputing the
// static-DH MAC and comparing in constant time (static-DH auth).
func (s *Session) verifySignatureOrMac(auth AuthMethod, prk, thX, idCredX, credX, adX, peerSignPK, sigOrMac []byte, kLabel, ivLabel string) error {
	if auth == AuthSignature {
		tbs, err := buildSigStructure(idCredX, thX, credX, adX)
		if err != nil {
			return wrap(CodeCborFormat, err)
		}
		ok, err := s.Backend.Verify(s.Suite.Sign, peerSignPK, tbs, sigOrMac)
		if err != nil {
			return wrap(CodeSignVerifyFail, err)
		}
		if !ok {
			return newErr(CodeSignVerifyFail, "EDHOC signature verification failed")
		}
		return nil
	}
	expected, err := computeStaticDHMAC(s.Backend, s.Suite, prk, thX, kLabel, ivLabel)
	if err != nil {
		return err
	}
	if !constTimeEqual(expected, sigOrMac) {
		return newErr(CodeCryptoAuth, "static-DH MAC verification failed")
	}
	return nil
}

// sigOrMacLen returns the wire length of Signature_or_MAC_x for auth under
// suite: the AEAD tag length for static-DH, or twice the signature
// public-key length for EdDSA/ECDSA (both produce an (r,s)-shaped
// fixed-length signature equal to twice the curve's element size).
func sigOrMacLen(suite suites.Suite, auth AuthMethod) int {
	if auth == AuthStaticDH {
		return suite.MACLen
	}
	return 2 * suite.SignPKLen
}

// splitSigOrMacAndAD splits the remainder of a decrypted plaintext (after
// ID_CRED_x has been consumed) into the fixed-length Signature_or_MAC_x and
// whatever bytes remain as the optional AD_x.
func (s *Session) splitSigOrMacAndAD(auth AuthMethod, rest []byte) (sigLen, adLen int, err error) {
	sigLen = sigOrMacLen(s.Suite, auth)
	if len(rest) < sigLen {
		return 0, 0, newErr(CodeMsgFormat, "truncated Signature_or_MAC")
	}
	return sigLen, len(rest) - sigLen, nil
}

func constTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var v byte
	for i := range a {
		v |= a[i] ^ b[i]
	}
	return v == 0
}
