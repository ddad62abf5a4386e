package oscore

import "github.com/go-edhoc/edhoc-oscore/coap"

// Class is the outcome of classifying a CoAP option number for the
// CoAP-OSCORE transform (RFC 8613 §4.1).
type Class int

const (
	ClassE Class = iota
	ClassU
	ClassSpecial
)

// uClassOptions are the options carried unprotected on the outer packet:
// Uri-Host, Uri-Port, Proxy-Uri, Proxy-Scheme, Max-Age and Observe
// (RFC 8613 §4.1.3).
var uClassOptions = map[int]bool{
	coap.OptionUriHost:     true,
	coap.OptionUriPort:     true,
	coap.OptionProxyURI:    true,
	coap.OptionProxyScheme: true,
	coap.OptionMaxAge:      true,
	coap.OptionObserve:     true,
}

// OptionClass classifies a CoAP option number. The OSCORE option itself
// (number 9) is ClassSpecial: always U on the wire, never present in the
// decrypted plaintext.
func OptionClass(number int) Class {
	if number == coap.OptionOscore {
		return ClassSpecial
	}
	if uClassOptions[number] {
		return ClassU
	}
	return ClassE
}
