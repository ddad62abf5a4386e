// Associated-data builders: the COSE Encrypt0 external_aad
// structure ("A_xae"), the HKDF info structure, and the signature-or-MAC
// message construction used by message_2 and message_3.
package edhoc

import (
	"github.com/go-edhoc/edhoc-oscore/cbor"
	"github.com/go-edhoc/edhoc-oscore/crypto"
	"github.com/go-edhoc/edhoc-oscore/suites"
)

// buildAxAE CBOR-serializes [ "Encrypt0", h'', TH_x ], the COSE Encrypt0
// external_aad used as AAD for the MAC/ciphertext of message_2 and _3.
func buildAxAE(th []byte) ([]byte, error) {
	size := cbor.SizeArrayHeader(3) + cbor.SizeTstr(len("Encrypt0")) + cbor.SizeBstr(0) + cbor.SizeBstr(len(th))
	buf := make([]byte, size)
	n, err := cbor.EncodeArrayHeader(buf, 3)
	if err != nil {
		return nil, err
	}
	m, err := cbor.EncodeTstr(buf[n:], "Encrypt0")
	if err != nil {
		return nil, err
	}
	n += m
	m, err = cbor.EncodeBstr(buf[n:], nil)
	if err != nil {
		return nil, err
	}
	n += m
	m, err = cbor.EncodeBstr(buf[n:], th)
	if err != nil {
		return nil, err
	}
	n += m
	return buf[:n], nil
}

// buildInfo CBOR-serializes [ AEAD_id, TH_x, label, L ], the HKDF-Expand
// info structure used for every K_xm/IV_xm/KEYSTREAM_2/export derivation.
func buildInfo(aeadID crypto.AEADAlg, th []byte, label string, length int) ([]byte, error) {
	size := cbor.SizeArrayHeader(4) + cbor.SizeUint(uint64(aeadID)) +
		cbor.SizeBstr(len(th)) + cbor.SizeTstr(len(label)) + cbor.SizeUint(uint64(length))
	buf := make([]byte, size)
	n, err := cbor.EncodeArrayHeader(buf, 4)
	if err != nil {
		return nil, err
	}
	m, err := cbor.EncodeUint(buf[n:], uint64(aeadID))
	if err != nil {
		return nil, err
	}
	n += m
	m, err = cbor.EncodeBstr(buf[n:], th)
	if err != nil {
		return nil, err
	}
	n += m
	m, err = cbor.EncodeTstr(buf[n:], label)
	if err != nil {
		return nil, err
	}
	n += m
	m, err = cbor.EncodeUint(buf[n:], uint64(length))
	if err != nil {
		return nil, err
	}
	n += m
	return buf[:n], nil
}

// buildSigStructure builds the COSE_Sign1 "Signature1" to-be-signed bytes
// for Signature_or_MAC_x: [ "Signature1", <<ID_CRED_x>>, <<TH_x, CRED_x,
// ?AD_x>>, h'' ]. The external_aad is wrapped in its own byte
// string, matching the bstr-wrapped "context" fields of a COSE_Sign1.
func buildSigStructure(idCredX, thX, credX, adX []byte) ([]byte, error) {
	extAAD := concatAll(thX, credX, adX)
	size := cbor.SizeArrayHeader(4) + cbor.SizeTstr(len("Signature1")) +
		cbor.SizeBstr(cbor.SizeBstr(len(idCredX))) + cbor.SizeBstr(cbor.SizeBstr(len(extAAD))) + cbor.SizeBstr(0)
	buf := make([]byte, size)
	n, err := cbor.EncodeArrayHeader(buf, 4)
	if err != nil {
		return nil, err
	}
	m, err := cbor.EncodeTstr(buf[n:], "Signature1")
	if err != nil {
		return nil, err
	}
	n += m

	idCredWrapped := make([]byte, cbor.SizeBstr(len(idCredX)))
	if _, err := cbor.EncodeBstr(idCredWrapped, idCredX); err != nil {
		return nil, err
	}
	m, err = cbor.EncodeBstr(buf[n:], idCredWrapped)
	if err != nil {
		return nil, err
	}
	n += m

	aadWrapped := make([]byte, cbor.SizeBstr(len(extAAD)))
	if _, err := cbor.EncodeBstr(aadWrapped, extAAD); err != nil {
		return nil, err
	}
	m, err = cbor.EncodeBstr(buf[n:], aadWrapped)
	if err != nil {
		return nil, err
	}
	n += m

	m, err = cbor.EncodeBstr(buf[n:], nil)
	if err != nil {
		return nil, err
	}
	n += m
	return buf[:n], nil
}

func concatAll(parts ...[]byte) []byte {
	total := 0
	for _, p := range parts {
		total += len(p)
	}
	out := make([]byte, 0, total)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// computeStaticDHMAC computes MAC_x = AEAD-Encrypt(K=Expand(PRK,info("K_xm")),
// IV=Expand(PRK,info("IV_xm")), aad=A_xae(TH_x), pt="") and returns the
// resulting tag (the static-DH authentication path).
func computeStaticDHMAC(be crypto.Backend, suite suites.Suite, prk, th []byte, kLabel, ivLabel string) ([]byte, error) {
	kInfo, err := buildInfo(suite.AEAD, th, kLabel, suite.AEADKeyLen)
	if err != nil {
		return nil, err
	}
	k, err := be.HKDFExpand(suite.Hash, prk, kInfo, suite.AEADKeyLen)
	if err != nil {
		return nil, wrap(CodeHkdfExpandTooLarge, err)
	}
	ivInfo, err := buildInfo(suite.AEAD, th, ivLabel, suite.AEADIVLen)
	if err != nil {
		return nil, err
	}
	iv, err := be.HKDFExpand(suite.Hash, prk, ivInfo, suite.AEADIVLen)
	if err != nil {
		return nil, wrap(CodeHkdfExpandTooLarge, err)
	}
	aad, err := buildAxAE(th)
	if err != nil {
		return nil, err
	}
	_, tag, err := be.AEADEncrypt(suite.AEAD, k, iv, aad, nil)
	if err != nil {
		return nil, wrap(CodeCryptoAuth, err)
	}
	return tag, nil
}
