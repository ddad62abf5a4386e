package cmd

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/go-edhoc/edhoc-oscore/crypto"
	"github.com/go-edhoc/edhoc-oscore/internal/demo"
)

// respondCmd serves EDHOC handshakes as the Responder on the configured
// UDP listener. Inbound handshakes are rate-limited so a message_1 flood
// cannot pin the process on ECDH work.
var respondCmd = &cobra.Command{
	Use:   "respond",
	Short: "Serve EDHOC handshakes as the Responder",
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

		conn, err := net.ListenPacket("udp", cfg.Listen.Addr)
		if err != nil {
			return fmt.Errorf("bind %s: %w", cfg.Listen.Addr, err)
		}
		defer func() { _ = conn.Close() }()
		slog.Info("listening for EDHOC handshakes", "addr", cfg.Listen.Addr)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		limiter := rate.NewLimiter(rate.Limit(cfg.Listen.RateLimitPerSec), cfg.Listen.RateLimitBurst)
		for {
			if err := limiter.Wait(ctx); err != nil {
				slog.Debug("shutting down responder", "cause", err)
				return nil
			}
			result, err := demo.RunResponder(conn, crypto.StdBackend{}, peer, store.Fetch)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				slog.Warn("handshake failed", "error", err)
				continue
			}
			slog.Info("EDHOC handshake complete",
				"master_secret", hex.EncodeToString(result.MasterSecret),
				"master_salt", hex.EncodeToString(result.MasterSalt))
		}
	},
}

func init() {
	rootCmd.AddCommand(respondCmd)
}
