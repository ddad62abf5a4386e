// Package config loads the edhoc-oscore CLI's configuration: a
// mapstructure-tagged struct wired through viper, with per-section
// validate() methods and a getState() helper that turns config into a
// runtime object (here, a credstore.Store).
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/go-edhoc/edhoc-oscore/internal/credstore"
)

// LogConfig is the log section of the configuration file. Level is decoded
// but not read; the cmd/ slog level is set only by the --debug flag.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// DatabaseConfig selects the credential-store driver and DSN.
type DatabaseConfig struct {
	Type string `mapstructure:"type"`
	DSN  string `mapstructure:"dsn"`
}

func (dc *DatabaseConfig) validate() error {
	if dc.DSN == "" {
		return errors.New("database configuration error: dsn is required")
	}
	dc.Type = strings.ToLower(dc.Type)
	if dc.Type != "sqlite" && dc.Type != "postgres" {
		return fmt.Errorf("unsupported database type: %s (must be 'sqlite' or 'postgres')", dc.Type)
	}
	return nil
}

func (dc *DatabaseConfig) getState() (*credstore.Store, error) {
	if err := dc.validate(); err != nil {
		return nil, err
	}
	return credstore.Open(dc.Type, dc.DSN)
}

// ListenConfig is the UDP address the demo EDHOC/OSCORE listener binds,
// plus the inbound handshake rate limit.
type ListenConfig struct {
	Addr            string  `mapstructure:"addr"`
	RateLimitPerSec float64 `mapstructure:"rate_limit_per_sec"`
	RateLimitBurst  int     `mapstructure:"rate_limit_burst"`
}

func (lc *ListenConfig) validate() error {
	if lc.Addr == "" {
		return errors.New("listen configuration error: addr is required")
	}
	if lc.RateLimitPerSec <= 0 {
		lc.RateLimitPerSec = 50
	}
	if lc.RateLimitBurst <= 0 {
		lc.RateLimitBurst = 10
	}
	return nil
}

// SuiteConfig names the default EDHOC cipher suite this endpoint offers.
type SuiteConfig struct {
	Default int `mapstructure:"default"`
}

// SignaturePeerParams is the params block for a peer that authenticates
// with signature credentials.
type SignaturePeerParams struct {
	IDCred string `mapstructure:"id_cred"` // hex
	Cred   string `mapstructure:"cred"`    // hex
	SignPK string `mapstructure:"sign_pk"` // hex
}

// StaticDHPeerParams is the params block for a peer that authenticates
// with a static Diffie-Hellman key.
type StaticDHPeerParams struct {
	IDCred     string `mapstructure:"id_cred"`      // hex
	Cred       string `mapstructure:"cred"`         // hex
	StaticDHPK string `mapstructure:"static_dh_pk"` // hex
}

// PeerConfig is one entry of the peers list. Unmarshalling happens in two
// steps: viper decodes the auth method and the raw params map, then
// UnmarshalParams decodes RawParams into the method-specific structure.
type PeerConfig struct {
	Name      string                 `mapstructure:"name"`
	Auth      string                 `mapstructure:"auth"` // "signature" | "static-dh"
	RawParams map[string]interface{} `mapstructure:"params"`

	SignatureParams *SignaturePeerParams
	StaticDHParams  *StaticDHPeerParams
}

// UnmarshalParams converts RawParams to the typed parameter field selected
// by Auth. Must be called after viper unmarshalling.
func (p *PeerConfig) UnmarshalParams() error {
	if p.RawParams == nil {
		return fmt.Errorf("params field is required for peer %q", p.Name)
	}
	switch p.Auth {
	case "signature":
		var params SignaturePeerParams
		if err := mapstructure.Decode(p.RawParams, &params); err != nil {
			return fmt.Errorf("failed to decode params for peer %q: %w", p.Name, err)
		}
		p.SignatureParams = &params
	case "static-dh":
		var params StaticDHPeerParams
		if err := mapstructure.Decode(p.RawParams, &params); err != nil {
			return fmt.Errorf("failed to decode params for peer %q: %w", p.Name, err)
		}
		p.StaticDHParams = &params
	default:
		return fmt.Errorf("unsupported auth method %q for peer %q", p.Auth, p.Name)
	}
	p.RawParams = nil
	return nil
}

// Seed stores this peer's credential into the store so handshake-time
// fetches by ID_CRED resolve it.
func (p *PeerConfig) Seed(store *credstore.Store) error {
	decode := func(field, s string) ([]byte, error) {
		if s == "" {
			return nil, nil
		}
		b, err := hex.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("peer %q: invalid hex in %s: %w", p.Name, field, err)
		}
		return b, nil
	}
	switch {
	case p.SignatureParams != nil:
		idCred, err := decode("id_cred", p.SignatureParams.IDCred)
		if err != nil {
			return err
		}
		cred, err := decode("cred", p.SignatureParams.Cred)
		if err != nil {
			return err
		}
		signPK, err := decode("sign_pk", p.SignatureParams.SignPK)
		if err != nil {
			return err
		}
		return store.Put(idCred, cred, signPK, nil)
	case p.StaticDHParams != nil:
		idCred, err := decode("id_cred", p.StaticDHParams.IDCred)
		if err != nil {
			return err
		}
		cred, err := decode("cred", p.StaticDHParams.Cred)
		if err != nil {
			return err
		}
		staticPK, err := decode("static_dh_pk", p.StaticDHParams.StaticDHPK)
		if err != nil {
			return err
		}
		return store.Put(idCred, cred, nil, staticPK)
	default:
		return fmt.Errorf("peer %q: UnmarshalParams has not been called", p.Name)
	}
}

// Config is the top-level CLI configuration.
type Config struct {
	Log    LogConfig      `mapstructure:"log"`
	DB     DatabaseConfig `mapstructure:"db"`
	Listen ListenConfig   `mapstructure:"listen"`
	Suite  SuiteConfig    `mapstructure:"suite"`
	Peers  []PeerConfig   `mapstructure:"peers"`
}

// Validate checks every section and decodes per-peer params.
func (c *Config) Validate() error {
	if err := c.DB.validate(); err != nil {
		return err
	}
	if err := c.Listen.validate(); err != nil {
		return err
	}
	for i := range c.Peers {
		if err := c.Peers[i].UnmarshalParams(); err != nil {
			return err
		}
	}
	return nil
}

// SeedPeers stores every configured peer credential into store.
func (c *Config) SeedPeers(store *credstore.Store) error {
	for i := range c.Peers {
		if err := c.Peers[i].Seed(store); err != nil {
			return err
		}
	}
	return nil
}

// CredStore opens the credential store this configuration describes.
func (c *Config) CredStore() (*credstore.Store, error) {
	return c.DB.getState()
}
