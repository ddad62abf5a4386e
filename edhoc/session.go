// Package edhoc implements the EDHOC (Ephemeral Diffie-Hellman Over COSE,
// draft-ietf-lake-edhoc) message state machine: message 1/2/3 construction
// and parsing, transcript-hash chaining, authentication-material derivation
// and session-key export. crypto.Backend supplies every primitive and
// suites.Suite the algorithm/length selection.
package edhoc

import (
	"github.com/go-edhoc/edhoc-oscore/crypto"
	"github.com/go-edhoc/edhoc-oscore/suites"
)

// Role identifies which end of the handshake a Session drives.
type Role int

const (
	Initiator Role = iota
	Responder
)

// State is the EDHOC session state. Transitions are strictly monotone;
// any failure moves to Failed.
type State int

const (
	StateInit State = iota
	StateSentMsg1
	StateRecvMsg1
	StateSentMsg2
	StateRecvMsg2
	StateSentMsg3
	StateRecvMsg3
	StateDone
	StateFailed
)

// AuthMethod is how one party authenticates itself in the handshake.
type AuthMethod int

const (
	AuthSignature AuthMethod = iota
	AuthStaticDH
)

// Method is the EDHOC METHOD field of message_1 (RFC 9528 §3.2), encoding
// both parties' authentication method as a single small integer.
type Method int

const (
	MethodSignSign     Method = 0
	MethodSignStatic   Method = 1
	MethodStaticSign   Method = 2
	MethodStaticStatic Method = 3
)

// InitiatorAuth returns how the Initiator authenticates under this method.
func (m Method) InitiatorAuth() AuthMethod {
	if m == MethodStaticSign || m == MethodStaticStatic {
		return AuthStaticDH
	}
	return AuthSignature
}

// ResponderAuth returns how the Responder authenticates under this method.
func (m Method) ResponderAuth() AuthMethod {
	if m == MethodSignStatic || m == MethodStaticStatic {
		return AuthStaticDH
	}
	return AuthSignature
}

// StaticKeys carries a party's long-term authentication key material: a
// signature keypair, a static-DH keypair, or both (some methods only need
// one). CRED is the opaque credential byte string; IDCred is its COSE
// header-map identifier, commonly { 4 : kid } built with IDCredFromKID.
type StaticKeys struct {
	SignSK []byte
	SignPK []byte

	StaticDHSK []byte
	StaticDHPK []byte

	Cred   []byte
	IDCred []byte
}

// Session is the EDHOC handshake state machine.
// All secret fields (PRKs, ephemeral private key) are zeroized when the
// session transitions to Failed.
type Session struct {
	Backend crypto.Backend
	Role    Role
	Method  Method
	Suite   suites.Suite

	CI []byte // connection identifier chosen by the Initiator
	CR []byte // connection identifier chosen by the Responder

	ephemeralSK     []byte // X (Initiator) or Y (Responder)
	EphemeralPK     []byte // G_X (Initiator) or G_Y (Responder)
	PeerEphemeralPK []byte

	Local StaticKeys
	Peer  StaticKeys // populated once the peer's CRED is fetched/verified

	TH2 []byte
	TH3 []byte
	TH4 []byte

	prk2e   []byte
	prk3e2m []byte
	prk4x3m []byte

	msg1Raw []byte
	msg2Raw []byte // ciphertext_2 bytes only, for TH_3 chaining
	msg3Raw []byte // ciphertext_3 bytes only, for TH_4 chaining

	State State
}

// CredFetcher resolves a COSE ID_CRED byte string to the peer's credential
// and the public key(s) it carries. The returned StaticKeys need not set
// SignSK/StaticDHSK; only the public half and Cred/IDCred are read.
type CredFetcher func(idCred []byte) (StaticKeys, error)

// NewSession creates a fresh Session for role, using suite and (for the
// Responder) the pre-assigned connection identifier, or (for the Initiator)
// the locally chosen C_I. static carries the local party's long-term keys;
// it may be partially populated (only the auth method this Session's
// Method+role combination needs is read).
func NewSession(be crypto.Backend, role Role, method Method, suite suites.Suite, localConnID []byte, static StaticKeys) (*Session, error) {
	s := &Session{
		Backend: be,
		Role:    role,
		Method:  method,
		Suite:   suite,
		Local:   static,
		State:   StateInit,
	}
	if role == Initiator {
		s.CI = localConnID
	} else {
		s.CR = localConnID
	}
	sk, pk, err := be.GenerateKeyPair(suite.ECDHCurve)
	if err != nil {
		return nil, wrap(CodeEcdhFail, err)
	}
	s.ephemeralSK = sk
	s.EphemeralPK = pk
	return s, nil
}

// fail transitions the session to Failed, zeroizing all secret material
// before returning.
func (s *Session) fail(err error) error {
	zero(s.ephemeralSK)
	zero(s.prk2e)
	zero(s.prk3e2m)
	zero(s.prk4x3m)
	zero(s.Local.SignSK)
	zero(s.Local.StaticDHSK)
	s.State = StateFailed
	return err
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// mustTransition enforces the strictly-monotone state machine: calling a
// build/parse step out of order is EdhocStateUnexpected.
func (s *Session) mustTransition(from State, to State) error {
	if s.State != from {
		return s.fail(newErr(CodeStateUnexpected, "unexpected EDHOC state transition"))
	}
	s.State = to
	return nil
}
