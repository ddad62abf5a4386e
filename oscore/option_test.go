package oscore_test

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-edhoc/edhoc-oscore/oscore"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func TestParseOptionRequest(t *testing.T) {
	// The request option value from RFC 8613 C.4: k=1, n=1, PIV 0x14,
	// zero-length KID.
	opt, err := oscore.ParseOption(mustHex(t, "0914"))
	require.NoError(t, err)
	require.False(t, opt.H)
	require.True(t, opt.K)
	require.Equal(t, 1, opt.N)
	require.Equal(t, []byte{0x14}, opt.PIV)
	require.Empty(t, opt.KID)
	require.Nil(t, opt.KIDContext)
}

func TestParseOptionWithKIDContext(t *testing.T) {
	// The option value from RFC 8613 C.6: h=1, k=1, n=1, PIV 0x14, then an
	// 8-byte KID context, zero-length KID.
	opt, err := oscore.ParseOption(mustHex(t, "19140837cbf3210017a2d3"))
	require.NoError(t, err)
	require.True(t, opt.H)
	require.True(t, opt.K)
	require.Equal(t, []byte{0x14}, opt.PIV)
	require.Equal(t, mustHex(t, "37cbf3210017a2d3"), opt.KIDContext)
	require.Empty(t, opt.KID)
}

func TestParseOptionEmptyValue(t *testing.T) {
	opt, err := oscore.ParseOption(nil)
	require.NoError(t, err)
	require.False(t, opt.H)
	require.False(t, opt.K)
	require.Zero(t, opt.N)
}

func TestParseOptionInvalidPivLength(t *testing.T) {
	for _, first := range []byte{0x06, 0x07} {
		_, err := oscore.ParseOption([]byte{first})
		var oerr *oscore.Error
		require.ErrorAs(t, err, &oerr)
		require.Equal(t, oscore.CodeInvalidPiv, oerr.Code)
	}
}

func TestParseOptionTruncated(t *testing.T) {
	for _, c := range []string{
		"05",         // n=5 but no PIV bytes
		"10",         // h=1 but no KID-context length byte
		"100a",       // KID-context length 10, no bytes
	} {
		_, err := oscore.ParseOption(mustHex(t, c))
		var oerr *oscore.Error
		require.ErrorAs(t, err, &oerr)
		require.Equal(t, oscore.CodeInvalidOptionLen, oerr.Code)
	}
}

func TestBuildOptionRoundTrip(t *testing.T) {
	cases := []oscore.CompressedOption{
		{K: true, N: 1, PIV: []byte{0x14}},
		{K: true, N: 1, PIV: []byte{0x14}, KID: []byte{0x00}},
		{H: true, K: true, N: 1, PIV: []byte{0x14}, KIDContext: mustHex(t, "37cbf3210017a2d3")},
		{N: 1, PIV: []byte{0x00}},
		{K: true, N: 5, PIV: mustHex(t, "ffffffffff"), KID: []byte{0x42}},
	}
	for _, c := range cases {
		val, err := oscore.BuildOption(c)
		require.NoError(t, err)
		got, err := oscore.ParseOption(val)
		require.NoError(t, err)
		require.Equal(t, c.H, got.H)
		require.Equal(t, c.K, got.K)
		require.Equal(t, c.N, got.N)
		require.Equal(t, c.PIV, got.PIV)
		if c.H {
			require.Equal(t, c.KIDContext, got.KIDContext)
		}
		if c.K {
			require.Equal(t, len(c.KID), len(got.KID))
		}
	}
}

func TestBuildOptionAllZeroFlagsIsEmpty(t *testing.T) {
	val, err := oscore.BuildOption(oscore.CompressedOption{})
	require.NoError(t, err)
	require.Empty(t, val)
}

func TestBuildOptionPivMismatch(t *testing.T) {
	_, err := oscore.BuildOption(oscore.CompressedOption{N: 2, PIV: []byte{0x14}})
	var oerr *oscore.Error
	require.ErrorAs(t, err, &oerr)
	require.Equal(t, oscore.CodeInvalidPiv, oerr.Code)
}
