// Package demo drives the EDHOC handshake over a UDP socket for the CLI.
// It never implements protocol logic itself: every cryptographic step is
// a single call into the edhoc package.
package demo

import (
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/go-edhoc/edhoc-oscore/cbor"
	"github.com/go-edhoc/edhoc-oscore/crypto"
	"github.com/go-edhoc/edhoc-oscore/edhoc"
	"github.com/go-edhoc/edhoc-oscore/suites"
)

// Peer is one side's EDHOC identity for the demo handshake.
type Peer struct {
	ConnID  []byte
	Static  edhoc.StaticKeys
	Method  edhoc.Method
	SuiteID suites.ID

	// PeerStaticPK is the other party's static-DH public key, required
	// up front only by a Responder whose method authenticates it with
	// static DH (the Initiator learns it from message_2's credential).
	PeerStaticPK []byte
}

// SessionResult is what a completed handshake hands back to cmd/ for the
// OSCORE stage.
type SessionResult struct {
	MasterSecret []byte
	MasterSalt   []byte
}

const readTimeout = 5 * time.Second

// RunInitiator drives message_1/message_2/message_3 as the Initiator over
// conn, addressed to raddr, and exports the OSCORE master secret/salt on
// success.
func RunInitiator(conn net.PacketConn, raddr net.Addr, be crypto.Backend, peer Peer, credFetcher edhoc.CredFetcher) (*SessionResult, error) {
	suite, err := suites.Lookup(peer.SuiteID)
	if err != nil {
		return nil, err
	}
	sess, err := edhoc.NewSession(be, edhoc.Initiator, peer.Method, suite, peer.ConnID, peer.Static)
	if err != nil {
		return nil, err
	}

	msg1, err := sess.BuildMessage1(suites.Supported(), cbor.None[[]byte]())
	if err != nil {
		return nil, fmt.Errorf("demo: build message_1: %w", err)
	}
	if _, err := conn.WriteTo(msg1, raddr); err != nil {
		return nil, fmt.Errorf("demo: send message_1: %w", err)
	}
	slog.Debug("sent EDHOC message_1", "bytes", len(msg1))

	msg2, from, err := recv(conn)
	if err != nil {
		return nil, fmt.Errorf("demo: recv message_2: %w", err)
	}
	if _, err := sess.ParseMessage2(msg2, credFetcher); err != nil {
		return nil, fmt.Errorf("demo: parse message_2: %w", err)
	}
	slog.Debug("received EDHOC message_2", "bytes", len(msg2), "from", from)

	msg3, err := sess.BuildMessage3(peer.Static.Cred, peer.Static.IDCred, sess.Peer.StaticDHPK, cbor.None[[]byte]())
	if err != nil {
		return nil, fmt.Errorf("demo: build message_3: %w", err)
	}
	if _, err := conn.WriteTo(msg3, raddr); err != nil {
		return nil, fmt.Errorf("demo: send message_3: %w", err)
	}
	slog.Debug("sent EDHOC message_3", "bytes", len(msg3))

	secret, salt, err := sess.Export()
	if err != nil {
		return nil, fmt.Errorf("demo: export OSCORE secret: %w", err)
	}
	return &SessionResult{MasterSecret: secret, MasterSalt: salt}, nil
}

// RunResponder drives the Responder's half of the same exchange, replying
// to whichever address sent message_1.
func RunResponder(conn net.PacketConn, be crypto.Backend, peer Peer, credFetcher edhoc.CredFetcher) (*SessionResult, error) {
	msg1, from, err := recv(conn)
	if err != nil {
		return nil, fmt.Errorf("demo: recv message_1: %w", err)
	}
	slog.Debug("received EDHOC message_1", "bytes", len(msg1), "from", from)

	suite, err := suites.Lookup(peer.SuiteID)
	if err != nil {
		return nil, err
	}
	sess, err := edhoc.NewSession(be, edhoc.Responder, peer.Method, suite, peer.ConnID, peer.Static)
	if err != nil {
		return nil, err
	}
	if _, err := sess.ParseMessage1(msg1, suites.Supported()); err != nil {
		return nil, fmt.Errorf("demo: parse message_1: %w", err)
	}

	msg2, err := sess.BuildMessage2(peer.Static.Cred, peer.Static.IDCred, peer.PeerStaticPK, cbor.None[[]byte]())
	if err != nil {
		return nil, fmt.Errorf("demo: build message_2: %w", err)
	}
	if _, err := conn.WriteTo(msg2, from); err != nil {
		return nil, fmt.Errorf("demo: send message_2: %w", err)
	}
	slog.Debug("sent EDHOC message_2", "bytes", len(msg2))

	msg3, _, err := recv(conn)
	if err != nil {
		return nil, fmt.Errorf("demo: recv message_3: %w", err)
	}
	if _, err := sess.ParseMessage3(msg3, credFetcher); err != nil {
		return nil, fmt.Errorf("demo: parse message_3: %w", err)
	}
	slog.Debug("received EDHOC message_3", "bytes", len(msg3))

	secret, salt, err := sess.Export()
	if err != nil {
		return nil, fmt.Errorf("demo: export OSCORE secret: %w", err)
	}
	return &SessionResult{MasterSecret: secret, MasterSalt: salt}, nil
}

func recv(conn net.PacketConn) ([]byte, net.Addr, error) {
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	buf := make([]byte, 2048)
	n, addr, err := conn.ReadFrom(buf)
	if err != nil {
		return nil, nil, err
	}
	return buf[:n], addr, nil
}
