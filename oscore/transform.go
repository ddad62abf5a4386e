package oscore

import (
	"sort"

	"github.com/go-edhoc/edhoc-oscore/coap"
)

// Outer codes every protected OSCORE message carries, regardless of the
// original request method or response status (RFC 8613 §4.2): a fixed
// placeholder that only preserves the request/response class bit.
const (
	codeProtectedRequest  = 0x02 // 0.02 POST
	codeProtectedResponse = 0x44 // 2.04 Changed
)

func isRequestCode(code uint8) bool { return code>>5 == 0 }

// splitOptions partitions a CoAP option list into its E-class (protected)
// and U-class (outer, unprotected) halves. The OSCORE option
// itself never appears on an input to Protect and is dropped if present.
func splitOptions(options []coap.Option) (eOpts, uOpts []coap.Option) {
	for _, opt := range options {
		switch OptionClass(opt.Number) {
		case ClassE:
			eOpts = append(eOpts, opt)
		case ClassU:
			uOpts = append(uOpts, opt)
		case ClassSpecial:
			// dropped: the OSCORE option is rebuilt fresh by Protect.
		}
	}
	return eOpts, uOpts
}

// Protect implements the CoAP-to-OSCORE transform (RFC 8613 §8.1): split
// options into E/U classes, build the inner plaintext
// code||E-opts||payload, derive nonce/AAD from this Context's Sender
// state, AEAD-encrypt, and assemble the outer OSCORE packet.
// includeOwnPIV controls whether a response carries its own Partial IV or
// omits it so the recipient reuses the matched request's nonce (the
// common case). Requests always carry their own PIV.
func (c *Context) Protect(pkt *coap.Packet, isRequest, includeOwnPIV bool) (*coap.Packet, error) {
	eOpts, uOpts := splitOptions(pkt.Options)
	plaintext := append([]byte{pkt.Header.Code}, coap.SerializeOptionsPayload(eOpts, pkt.Payload)...)

	var piv []byte
	sendPIV := isRequest || includeOwnPIV
	if sendPIV {
		ssn, err := c.NextSSN()
		if err != nil {
			return nil, err
		}
		piv = PIVFromSSN(ssn)
	}

	var nonce, aad []byte
	var err error
	if isRequest {
		nonce, err = BuildNonce(c.Sender.ID, piv, c.Common.CommonIV)
		if err != nil {
			return nil, err
		}
		aad, err = BuildAAD(int64(c.Common.AEAD), c.Sender.ID, piv)
		if err != nil {
			return nil, err
		}
		c.rrc = requestResponseContext{valid: true, nonce: nonce, aad: aad, piv: piv}
	} else {
		// A response is always bound to its request's external_aad (the
		// request's KID and PIV, RFC 8613 §5.4); only the nonce changes
		// when the response carries its own Partial IV.
		if !c.rrc.valid {
			return nil, newErr(CodeInvalidPiv, "no matched request context to protect a response against")
		}
		aad = c.rrc.aad
		if sendPIV {
			nonce, err = BuildNonce(c.Sender.ID, piv, c.Common.CommonIV)
			if err != nil {
				return nil, err
			}
		} else {
			nonce = c.rrc.nonce
		}
	}

	ciphertext, tag, err := c.Backend.AEADEncrypt(c.Common.AEAD, c.Sender.Key, nonce, aad, plaintext)
	if err != nil {
		return nil, wrap(CodeCryptoAuth, err)
	}
	payload := append(ciphertext, tag...)

	opt := CompressedOption{K: isRequest, N: len(piv), PIV: piv}
	if isRequest && len(c.Common.IDContext) > 0 {
		opt.H = true
		opt.KIDContext = c.Common.IDContext
	}
	if isRequest {
		opt.KID = c.Sender.ID
	}
	optValue, err := BuildOption(opt)
	if err != nil {
		return nil, err
	}

	out := &coap.Packet{
		Header:  pkt.Header,
		Token:   pkt.Token,
		Options: append(append([]coap.Option(nil), uOpts...), coap.Option{Number: coap.OptionOscore, Value: optValue}),
		Payload: payload,
	}
	if isRequest {
		out.Header.Code = codeProtectedRequest
	} else {
		out.Header.Code = codeProtectedResponse
		c.rrc = requestResponseContext{}
	}
	return out, nil
}

// Unprotect implements the OSCORE-to-CoAP transform (RFC 8613 §8.2):
// parse the outer CoAP packet, locate and parse the OSCORE option,
// validate KID (server, request) and the replay window, derive nonce/AAD,
// AEAD-decrypt, parse the inner plaintext and merge its E-options with
// the outer U-options to assemble the plaintext CoAP packet. isOscore
// reports whether the OSCORE option was present at all.
func (c *Context) Unprotect(pkt *coap.Packet) (out *coap.Packet, isOscore bool, err error) {
	var oscOpt *coap.Option
	var uOpts []coap.Option
	for i := range pkt.Options {
		if pkt.Options[i].Number == coap.OptionOscore {
			oscOpt = &pkt.Options[i]
			continue
		}
		uOpts = append(uOpts, pkt.Options[i])
	}
	if oscOpt == nil {
		return pkt, false, nil
	}
	isOscore = true

	opt, perr := ParseOption(oscOpt.Value)
	if perr != nil {
		return nil, true, perr
	}

	isRequest := isRequestCode(pkt.Header.Code)

	if isRequest && c.Role == Server {
		if !constTimeEqual(opt.KID, c.Recipient.ID) {
			return nil, true, newErr(CodeKidRecipientIDMismatch, "KID does not match this context's recipient ID")
		}
	}

	var nonce, aad []byte
	if isRequest {
		if len(opt.PIV) == 0 {
			return nil, true, newErr(CodeInvalidPiv, "a protected request must carry a Partial IV")
		}
		if err := c.Recipient.CheckReplay(opt.PIV); err != nil {
			return nil, true, err
		}
		nonce, err = BuildNonce(c.Recipient.ID, opt.PIV, c.Common.CommonIV)
		if err != nil {
			return nil, true, err
		}
		aad, err = BuildAAD(int64(c.Common.AEAD), c.Recipient.ID, opt.PIV)
		if err != nil {
			return nil, true, err
		}
		c.rrc = requestResponseContext{valid: true, nonce: nonce, aad: aad, piv: opt.PIV}
	} else {
		// A response verifies against the matched request's external_aad;
		// its nonce is the request nonce unless the response carries its
		// own PIV (RFC 8613 §8.4.1).
		if !c.rrc.valid {
			return nil, true, newErr(CodeInvalidPiv, "no matched request context for the response")
		}
		aad = c.rrc.aad
		if len(opt.PIV) > 0 {
			nonce, err = BuildNonce(c.Recipient.ID, opt.PIV, c.Common.CommonIV)
			if err != nil {
				return nil, true, err
			}
		} else {
			nonce = c.rrc.nonce
		}
	}

	if len(pkt.Payload) < c.Common.AEADTagLen {
		return nil, true, newErr(CodeInvalidTag, "OSCORE payload shorter than the AEAD tag")
	}
	ct := pkt.Payload[:len(pkt.Payload)-c.Common.AEADTagLen]
	tag := pkt.Payload[len(pkt.Payload)-c.Common.AEADTagLen:]

	plaintext, err := c.Backend.AEADDecrypt(c.Common.AEAD, c.Recipient.Key, nonce, aad, ct, tag)
	if err != nil {
		return nil, true, wrap(CodeCryptoAuth, err)
	}
	if isRequest {
		c.Recipient.CommitReplay(opt.PIV)
	}
	if !isRequest {
		c.rrc = requestResponseContext{}
	}

	if len(plaintext) == 0 {
		return nil, true, newErr(CodeInvalidTag, "decrypted OSCORE plaintext missing the inner code byte")
	}
	innerCode := plaintext[0]
	eOpts, payload, perr := coap.ParseOptionsPayload(plaintext[1:])
	if perr != nil {
		return nil, true, perr
	}

	merged := mergeOptions(uOpts, eOpts)

	out = &coap.Packet{
		Header:  pkt.Header,
		Token:   pkt.Token,
		Options: merged,
		Payload: payload,
	}
	out.Header.Code = innerCode
	return out, true, nil
}

// CoapToOscore is the byte-level form of Protect: parse in as a CoAP
// packet, protect it under c, and serialize the OSCORE
// result. Whether in is a request or a response is read from its code
// class; responses never carry their own Partial IV through this wrapper
// (use Protect directly for the explicit-PIV case).
func CoapToOscore(in []byte, c *Context) ([]byte, error) {
	pkt, err := coap.Parse(in)
	if err != nil {
		return nil, err
	}
	out, err := c.Protect(pkt, isRequestCode(pkt.Header.Code), false)
	if err != nil {
		return nil, err
	}
	return coap.Serialize(out)
}

// OscoreToCoap is the byte-level form of Unprotect: parse in, unprotect
// it under c, and serialize the recovered CoAP packet.
// isOscore reports whether in carried the OSCORE option at all; when it
// did not, in is returned unchanged.
func OscoreToCoap(in []byte, c *Context) (out []byte, isOscore bool, err error) {
	pkt, err := coap.Parse(in)
	if err != nil {
		return nil, false, err
	}
	plain, isOscore, err := c.Unprotect(pkt)
	if err != nil {
		return nil, isOscore, err
	}
	if !isOscore {
		return in, false, nil
	}
	out, err = coap.Serialize(plain)
	return out, true, err
}

// mergeOptions combines U and E option lists sorted by option number
// ascending; when both sides carry the same option number, U's entries
// precede E's, the inverse of the split done on the protect side.
func mergeOptions(uOpts, eOpts []coap.Option) []coap.Option {
	merged := make([]coap.Option, 0, len(uOpts)+len(eOpts))
	merged = append(merged, uOpts...)
	merged = append(merged, eOpts...)
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Number < merged[j].Number })
	return merged
}
