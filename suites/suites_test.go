package suites_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-edhoc/edhoc-oscore/suites"
)

func TestLookupKnownSuites(t *testing.T) {
	for _, id := range suites.Supported() {
		s, err := suites.Lookup(id)
		require.NoError(t, err)
		require.Equal(t, id, s.ID)
		require.Equal(t, s.AEADTagLen, s.MACLen)
	}
}

func TestAESCCMSuitesUse128BitKeys(t *testing.T) {
	for _, id := range []suites.ID{suites.Suite0, suites.Suite1, suites.Suite2, suites.Suite3} {
		s, err := suites.Lookup(id)
		require.NoError(t, err)
		require.Equal(t, 16, s.AEADKeyLen)
	}
}

func TestLookupUnknownSuite(t *testing.T) {
	_, err := suites.Lookup(99)
	require.ErrorIs(t, err, suites.ErrUnsupported)
}

func TestSelectSuiteFallback(t *testing.T) {
	got, err := suites.SelectSuite([]suites.ID{suites.Suite3, suites.Suite0}, []suites.ID{suites.Suite0, suites.Suite2})
	require.NoError(t, err)
	require.Equal(t, suites.Suite0, got)
}

func TestSelectSuiteNoOverlap(t *testing.T) {
	_, err := suites.SelectSuite([]suites.ID{suites.Suite3}, []suites.ID{suites.Suite0, suites.Suite2})
	require.ErrorIs(t, err, suites.ErrUnsupported)
}
