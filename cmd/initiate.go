package cmd

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"

	"github.com/spf13/cobra"

	"github.com/go-edhoc/edhoc-oscore/crypto"
	"github.com/go-edhoc/edhoc-oscore/edhoc"
	"github.com/go-edhoc/edhoc-oscore/internal/demo"
	"github.com/go-edhoc/edhoc-oscore/suites"
)

var (
	initiateMethod int
	connIDHex      string
	credHex        string
	idCredHex      string
	signSKHex      string
	staticSKHex    string
	staticPKHex    string
	peerStaticHex  string
)

// initiateCmd drives the Initiator side of an EDHOC handshake against a
// responder and prints the exported OSCORE master secret/salt.
var initiateCmd = &cobra.Command{
	Use:   "initiate responder_address",
	Short: "Run an EDHOC handshake as the Initiator",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		store, err := cfg.CredStore()
		if err != nil {
			return err
		}
		if err := cfg.SeedPeers(store); err != nil {
			return err
		}

		peer, err := localPeer(initiateMethod)
		if err != nil {
			return err
		}

		raddr, err := net.ResolveUDPAddr("udp", args[0])
		if err != nil {
			return fmt.Errorf("resolve responder address: %w", err)
		}
		conn, err := net.ListenPacket("udp", ":0")
		if err != nil {
			return fmt.Errorf("open UDP socket: %w", err)
		}
		defer func() { _ = conn.Close() }()

		result, err := demo.RunInitiator(conn, raddr, crypto.StdBackend{}, peer, store.Fetch)
		if err != nil {
			return err
		}
		slog.Info("EDHOC handshake complete",
			"master_secret", hex.EncodeToString(result.MasterSecret),
			"master_salt", hex.EncodeToString(result.MasterSalt))
		return nil
	},
}

// localPeer assembles this endpoint's EDHOC identity from the key-material
// flags shared by initiate and respond.
func localPeer(method int) (demo.Peer, error) {
	static := edhoc.StaticKeys{}
	var err error
	decode := func(name, s string) []byte {
		if err != nil || s == "" {
			return nil
		}
		var b []byte
		if b, err = hex.DecodeString(s); err != nil {
			err = fmt.Errorf("invalid hex in --%s: %w", name, err)
		}
		return b
	}
	static.Cred = decode("cred", credHex)
	static.IDCred = decode("id-cred", idCredHex)
	static.SignSK = decode("sign-sk", signSKHex)
	static.StaticDHSK = decode("static-dh-sk", staticSKHex)
	static.StaticDHPK = decode("static-dh-pk", staticPKHex)
	connID := decode("conn-id", connIDHex)
	peerStatic := decode("peer-static-pk", peerStaticHex)
	if err != nil {
		return demo.Peer{}, err
	}

	return demo.Peer{
		ConnID:       connID,
		Static:       static,
		Method:       edhoc.Method(method),
		SuiteID:      suites.ID(cfg.Suite.Default),
		PeerStaticPK: peerStatic,
	}, nil
}

func init() {
	rootCmd.AddCommand(initiateCmd)

	for _, c := range []*cobra.Command{initiateCmd, respondCmd} {
		c.Flags().IntVar(&initiateMethod, "method", int(edhoc.MethodSignSign), "EDHOC method (0-3)")
		c.Flags().StringVar(&connIDHex, "conn-id", "0e", "connection identifier (hex)")
		c.Flags().StringVar(&credHex, "cred", "", "local credential CRED (hex)")
		c.Flags().StringVar(&idCredHex, "id-cred", "", "local credential identifier ID_CRED (hex)")
		c.Flags().StringVar(&signSKHex, "sign-sk", "", "local signature private key (hex)")
		c.Flags().StringVar(&staticSKHex, "static-dh-sk", "", "local static-DH private key (hex)")
		c.Flags().StringVar(&staticPKHex, "static-dh-pk", "", "local static-DH public key (hex)")
		c.Flags().StringVar(&peerStaticHex, "peer-static-pk", "", "peer static-DH public key (hex, responder only)")
	}
}
