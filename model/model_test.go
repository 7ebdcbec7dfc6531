// Copyright 2022-2023, MLabs, Ltd.
// For license information, see https://github.com/mlabs-haskell/scrolls/blob/main/LICENSE

package model

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mlabs-haskell/scrolls/ledger"
)

func TestPointOriginStringAndEquality(t *testing.T) {
	require.True(t, Origin.IsOrigin())
	require.Equal(t, "origin", Origin.String())

	p := SpecificPoint(100, []byte{0xaa, 0xbb})
	require.False(t, p.IsOrigin())
	require.Equal(t, "100,aabb", p.String())
	require.True(t, p.Equal(SpecificPoint(100, []byte{0xaa, 0xbb})))
	require.False(t, p.Equal(SpecificPoint(101, []byte{0xaa, 0xbb})))
	require.False(t, p.Equal(Origin))
}

func TestBlockContextFindUTxO(t *testing.T) {
	addr := ledger.NewShelleyAddress(ledger.NetworkMainnet, ledger.Hash28{}, nil)
	raw, err := ledger.EncodeOutput(ledger.EraBabbage, ledger.OutputSpec{
		Address:  addr.Bytes(),
		Lovelace: 42,
	})
	require.NoError(t, err)

	ref := ledger.OutputRef{Hash: ledger.Hash32{0x01}, Index: 3}
	ctx := NewBlockContext()
	ctx.ImportRefOutput(ref, ledger.EraBabbage, raw)

	out, err := ctx.FindUTxO(ref)
	require.NoError(t, err)
	require.Equal(t, uint64(42), out.LovelaceAmount())
	require.Equal(t, 1, ctx.Len())
}

func TestBlockContextMissIsTyped(t *testing.T) {
	ctx := NewBlockContext()
	_, err := ctx.FindUTxO(ledger.OutputRef{Hash: ledger.Hash32{0x02}})
	require.ErrorIs(t, err, ErrMissingUTxO)
}

func TestBlockContextDecodeFailureIsNotAMiss(t *testing.T) {
	ref := ledger.OutputRef{Hash: ledger.Hash32{0x03}}
	ctx := NewBlockContext()
	ctx.ImportRefOutput(ref, ledger.EraBabbage, []byte{0xff})

	_, err := ctx.FindUTxO(ref)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrMissingUTxO)
}

func TestCommandStrings(t *testing.T) {
	p := SpecificPoint(5, []byte{0x01})
	for _, cmd := range []CRDTCommand{
		BlockStarting{Point: p},
		VotingPowerChange{Policy: "x", Delta: -3, Point: p},
		VotingPowerCreated{Policy: "x", Amount: 9, Point: p, TxIdx: 1},
		VotingPowerSpent{TxIdx: 1, Point: p},
		BlockFinished{Point: p},
		RollBack{Point: p},
	} {
		require.NotEmpty(t, cmd.String())
	}
}
