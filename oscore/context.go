package oscore

import (
	"crypto/subtle"

	"github.com/go-edhoc/edhoc-oscore/cbor"
	"github.com/go-edhoc/edhoc-oscore/crypto"
)

// constTimeEqual compares two KIDs without leaking timing information:
// the comparison sits on the request-validation path and must not be a
// position-dependent oracle.
func constTimeEqual(a, b []byte) bool {
	return len(a) == len(b) && subtle.ConstantTimeCompare(a, b) == 1
}

// Role distinguishes which side of the OSCORE exchange a Context drives.
type Role int

const (
	Client Role = iota
	Server
)

const maxSSN = (1 << 40) - 1

// defaultReplayWindow is the minimum replay-window width RFC 8613 §3.2.2
// requires.
const defaultReplayWindow = 32

// CommonContext carries the algorithm choice and Common IV shared by both
// directions of one OSCORE relationship (RFC 8613 §3.1).
type CommonContext struct {
	AEAD       crypto.AEADAlg
	AEADKeyLen int
	AEADIVLen  int
	AEADTagLen int
	HKDFHash   crypto.HashAlg
	CommonIV   []byte
	IDContext  []byte
}

// SenderContext is this endpoint's own protect-direction state: key, and
// a monotonically increasing, non-wrapping sequence number.
type SenderContext struct {
	ID  []byte
	Key []byte
	SSN uint64
}

// RecipientContext is the peer's protect-direction state as seen by this
// endpoint: key, and the replay-window high-watermark/bitmap.
type RecipientContext struct {
	ID            []byte
	Key           []byte
	replayHigh    uint64
	replayWindow  uint64 // bit i set means (replayHigh - i) has been seen, for i in [0, windowBits)
	replaySeenAny bool
	windowBits    int
}

// Params is the input to Init.
type Params struct {
	MasterSecret []byte // required, 16 bytes
	MasterSalt   []byte // optional, default empty
	SenderID     []byte
	RecipientID  []byte
	IDContext    []byte // optional

	AEAD     crypto.AEADAlg // default AlgAESCCM16_64_128
	HKDFHash crypto.HashAlg // default HashSHA256

	Role Role

	Backend crypto.Backend
}

// Context is a derived OSCORE security context: the Common context plus
// this endpoint's Sender and the peer's Recipient context,
// plus the transient per-exchange RequestResponseContext used while a
// request/response pair is in flight.
type Context struct {
	Backend   crypto.Backend
	Common    CommonContext
	Sender    SenderContext
	Recipient RecipientContext
	Role      Role

	rrc requestResponseContext
}

// requestResponseContext is the nonce/aad pair bound to the
// currently-processed request, consumed when its paired response is
// protected/unprotected.
type requestResponseContext struct {
	valid bool
	nonce []byte
	aad   []byte
	piv   []byte
}

func aeadLens(alg crypto.AEADAlg) (keyLen, ivLen, tagLen int) {
	switch alg {
	case crypto.AlgAESCCM16_64_128:
		return 16, 13, 8
	case crypto.AlgAESCCM16_128_128:
		return 16, 13, 16
	case crypto.AlgA128GCM:
		return 16, 12, 16
	case crypto.AlgA256GCM:
		return 32, 12, 16
	case crypto.AlgChaCha20Poly1305:
		return 32, 12, 16
	default:
		return 16, 13, 8
	}
}

// Init derives Sender Key, Recipient Key and Common IV from p (RFC 8613
// §3.2): PRK = HKDF-Extract(salt=master_salt, IKM=master_secret); each of
// Sender Key / Recipient Key / Common IV is HKDF-Expand(PRK, info, L) with
// info = [ id, id_context, alg, "Key"|"IV", L ].
func Init(p Params) (*Context, error) {
	be := p.Backend
	if be == nil {
		be = crypto.StdBackend{}
	}
	aead := p.AEAD
	if aead == 0 {
		aead = crypto.AlgAESCCM16_64_128
	}
	hkdfHash := p.HKDFHash
	if hkdfHash == 0 {
		hkdfHash = crypto.HashSHA256
	}
	keyLen, ivLen, tagLen := aeadLens(aead)

	prk, err := be.HKDFExtract(hkdfHash, p.MasterSalt, p.MasterSecret)
	if err != nil {
		return nil, wrap(CodeCryptoAuth, err)
	}

	senderKey, err := deriveContextSecret(be, hkdfHash, prk, p.SenderID, p.IDContext, aead, "Key", keyLen)
	if err != nil {
		return nil, err
	}
	recipientKey, err := deriveContextSecret(be, hkdfHash, prk, p.RecipientID, p.IDContext, aead, "Key", keyLen)
	if err != nil {
		return nil, err
	}
	commonIV, err := deriveContextSecret(be, hkdfHash, prk, nil, p.IDContext, aead, "IV", ivLen)
	if err != nil {
		return nil, err
	}

	return &Context{
		Backend: be,
		Role:    p.Role,
		Common: CommonContext{
			AEAD: aead, AEADKeyLen: keyLen, AEADIVLen: ivLen, AEADTagLen: tagLen,
			HKDFHash: hkdfHash, CommonIV: commonIV, IDContext: p.IDContext,
		},
		Sender:    SenderContext{ID: p.SenderID, Key: senderKey},
		Recipient: RecipientContext{ID: p.RecipientID, Key: recipientKey, windowBits: defaultReplayWindow},
	}, nil
}

// deriveContextSecret encodes info = [ id, id_context, alg, label, L ] and
// runs HKDF-Expand(prk, info, L). id is empty for Common IV.
func deriveContextSecret(be crypto.Backend, hash crypto.HashAlg, prk, id, idContext []byte, aead crypto.AEADAlg, label string, length int) ([]byte, error) {
	info, err := buildContextInfo(id, idContext, aead, label, length)
	if err != nil {
		return nil, wrap(CodeCborFormat, err)
	}
	out, err := be.HKDFExpand(hash, prk, info, length)
	if err != nil {
		return nil, wrap(CodeHkdfExpandTooLarge, err)
	}
	return out, nil
}

func buildContextInfo(id, idContext []byte, aead crypto.AEADAlg, label string, length int) ([]byte, error) {
	n := 5
	size := cbor.SizeArrayHeader(n) + cbor.SizeBstr(len(id))
	// An absent ID context encodes as CBOR null, a present one (even a
	// zero-length one) as a byte string (RFC 8613 §3.2.1).
	if idContext != nil {
		size += cbor.SizeBstr(len(idContext))
	} else {
		size += cbor.SizeNil()
	}
	size += cbor.SizeUint(uint64(aead)) + cbor.SizeTstr(len(label)) + cbor.SizeUint(uint64(length))

	buf := make([]byte, size)
	off, err := cbor.EncodeArrayHeader(buf, n)
	if err != nil {
		return nil, err
	}
	m, err := cbor.EncodeBstr(buf[off:], id)
	if err != nil {
		return nil, err
	}
	off += m
	if idContext != nil {
		m, err = cbor.EncodeBstr(buf[off:], idContext)
	} else {
		m, err = cbor.EncodeNil(buf[off:])
	}
	if err != nil {
		return nil, err
	}
	off += m
	m, err = cbor.EncodeUint(buf[off:], uint64(aead))
	if err != nil {
		return nil, err
	}
	off += m
	m, err = cbor.EncodeTstr(buf[off:], label)
	if err != nil {
		return nil, err
	}
	off += m
	m, err = cbor.EncodeUint(buf[off:], uint64(length))
	if err != nil {
		return nil, err
	}
	off += m
	return buf[:off], nil
}

// NextSSN reads-then-increments the sender sequence number. Overflow
// beyond 2^40-1 fails with OscoreSsnOverflow (RFC 8613 §7.2.1).
func (c *Context) NextSSN() (uint64, error) {
	if c.Sender.SSN > maxSSN {
		return 0, newErr(CodeSsnOverflow, "sender sequence number exceeded 2^40-1")
	}
	ssn := c.Sender.SSN
	c.Sender.SSN++
	return ssn, nil
}

// CheckReplay validates an incoming Partial IV against the replay window.
// The window only advances once AEAD verification has passed: call
// CheckReplay before decrypting and CommitReplay after a successful
// decrypt.
func (c *RecipientContext) CheckReplay(piv []byte) error {
	ssn := SSNFromPIV(piv)
	if ssn+uint64(c.windowBits) <= c.replayHigh && c.replaySeenAny {
		return newErr(CodeReplay, "partial IV below the replay window")
	}
	if ssn <= c.replayHigh {
		bit := c.replayHigh - ssn
		if bit < uint64(c.windowBits) && c.replayWindow&(1<<bit) != 0 {
			return newErr(CodeReplay, "partial IV already seen")
		}
		if bit >= uint64(c.windowBits) && c.replaySeenAny {
			return newErr(CodeReplay, "partial IV below the replay window")
		}
	}
	return nil
}

// CommitReplay records ssn as seen, sliding the high-watermark forward if
// ssn advances it.
func (c *RecipientContext) CommitReplay(piv []byte) {
	ssn := SSNFromPIV(piv)
	if !c.replaySeenAny {
		c.replayHigh = ssn
		c.replayWindow = 1
		c.replaySeenAny = true
		return
	}
	if ssn > c.replayHigh {
		shift := ssn - c.replayHigh
		if shift >= uint64(c.windowBits) {
			c.replayWindow = 0
		} else {
			c.replayWindow <<= shift
		}
		c.replayHigh = ssn
		c.replayWindow |= 1
		return
	}
	bit := c.replayHigh - ssn
	if bit < uint64(c.windowBits) {
		c.replayWindow |= 1 << bit
	}
}
