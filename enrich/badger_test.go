// Copyright 2022-2023, MLabs, Ltd.
// For license information, see https://github.com/mlabs-haskell/scrolls/blob/main/LICENSE

package enrich

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mlabs-haskell/scrolls/ledger"
)

func TestBadgerStoreRoundTrip(t *testing.T) {
	store, err := OpenBadgerStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	ref := ledger.OutputRef{Hash: ledger.Hash32{0x01}, Index: 2}
	require.NoError(t, store.Insert(ref, ledger.EraBabbage, []byte{0xca, 0xfe}))

	era, cbor, err := store.Resolve(ref)
	require.NoError(t, err)
	require.Equal(t, ledger.EraBabbage, era)
	require.Equal(t, []byte{0xca, 0xfe}, cbor)

	require.NoError(t, store.Remove(ref))
	_, _, err = store.Resolve(ref)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestBadgerStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ref := ledger.OutputRef{Hash: ledger.Hash32{0x09}, Index: 0}

	store, err := OpenBadgerStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Insert(ref, ledger.EraAlonzo, []byte{0x01}))
	require.NoError(t, store.Close())

	store, err = OpenBadgerStore(dir)
	require.NoError(t, err)
	defer store.Close()

	era, _, err := store.Resolve(ref)
	require.NoError(t, err)
	require.Equal(t, ledger.EraAlonzo, era)
}
