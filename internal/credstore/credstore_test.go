package credstore_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-edhoc/edhoc-oscore/internal/credstore"
)

func TestOpenUnsupportedType(t *testing.T) {
	_, err := credstore.Open("mysql", "dsn")
	require.Error(t, err)

	_, err = credstore.Open("sqlite", "")
	require.Error(t, err)
}

func TestPutFetch(t *testing.T) {
	store, err := credstore.Open("sqlite", ":memory:")
	require.NoError(t, err)

	idCred := []byte{0xa1, 0x04, 0x41, 0x2b}
	cred := []byte("opaque credential")
	signPK := []byte{0x01, 0x02}
	staticPK := []byte{0x03, 0x04}

	require.NoError(t, store.Put(idCred, cred, signPK, staticPK))

	keys, err := store.Fetch(idCred)
	require.NoError(t, err)
	require.Equal(t, cred, keys.Cred)
	require.Equal(t, idCred, keys.IDCred)
	require.Equal(t, signPK, keys.SignPK)
	require.Equal(t, staticPK, keys.StaticDHPK)
}

func TestPutReplaces(t *testing.T) {
	store, err := credstore.Open("sqlite", ":memory:")
	require.NoError(t, err)

	idCred := []byte{0x2b}
	require.NoError(t, store.Put(idCred, []byte("old"), nil, nil))
	require.NoError(t, store.Put(idCred, []byte("new"), nil, nil))

	keys, err := store.Fetch(idCred)
	require.NoError(t, err)
	require.Equal(t, []byte("new"), keys.Cred)
}

func TestFetchMissing(t *testing.T) {
	store, err := credstore.Open("sqlite", ":memory:")
	require.NoError(t, err)

	_, err = store.Fetch([]byte{0xff})
	require.Error(t, err)
}
