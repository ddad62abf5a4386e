package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDatabaseConfigValidate(t *testing.T) {
	dc := DatabaseConfig{Type: "SQLite", DSN: "creds.db"}
	require.NoError(t, dc.validate())
	require.Equal(t, "sqlite", dc.Type)

	dc = DatabaseConfig{Type: "sqlite"}
	require.Error(t, dc.validate())

	dc = DatabaseConfig{Type: "mysql", DSN: "x"}
	require.Error(t, dc.validate())
}

func TestListenConfigDefaults(t *testing.T) {
	lc := ListenConfig{Addr: ":5683"}
	require.NoError(t, lc.validate())
	require.Equal(t, 50.0, lc.RateLimitPerSec)
	require.Equal(t, 10, lc.RateLimitBurst)

	lc = ListenConfig{}
	require.Error(t, lc.validate())
}

func TestPeerConfigUnmarshalParams(t *testing.T) {
	p := PeerConfig{
		Name: "gateway",
		Auth: "signature",
		RawParams: map[string]interface{}{
			"id_cred": "a104412b",
			"cred":    "aabb",
			"sign_pk": "ccdd",
		},
	}
	require.NoError(t, p.UnmarshalParams())
	require.NotNil(t, p.SignatureParams)
	require.Equal(t, "a104412b", p.SignatureParams.IDCred)
	require.Nil(t, p.RawParams)

	p = PeerConfig{
		Name: "sensor",
		Auth: "static-dh",
		RawParams: map[string]interface{}{
			"id_cred":      "a1044107",
			"static_dh_pk": "eeff",
		},
	}
	require.NoError(t, p.UnmarshalParams())
	require.NotNil(t, p.StaticDHParams)
}

func TestPeerConfigUnknownAuth(t *testing.T) {
	p := PeerConfig{Name: "x", Auth: "psk", RawParams: map[string]interface{}{}}
	require.Error(t, p.UnmarshalParams())

	p = PeerConfig{Name: "y", Auth: "signature"}
	require.Error(t, p.UnmarshalParams())
}
