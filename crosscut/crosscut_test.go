// Copyright 2022-2023, MLabs, Ltd.
// For license information, see https://github.com/mlabs-haskell/scrolls/blob/main/LICENSE

package crosscut

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestParsePointArg(t *testing.T) {
	arg, err := ParsePointArg("100,aabb")
	require.NoError(t, err)
	require.Equal(t, uint64(100), arg.Slot)
	require.Equal(t, "aabb", arg.Hash)
	require.Equal(t, "100,aabb", arg.String())

	point, err := arg.ToPoint()
	require.NoError(t, err)
	require.Equal(t, uint64(100), point.Slot)
	require.Equal(t, []byte{0xaa, 0xbb}, point.Hash)
}

func TestParsePointArgRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "100", "x,aabb", "100,zz"} {
		_, err := ParsePointArg(s)
		require.Error(t, err, "input %q", s)
	}
}

func TestRuntimePolicyActions(t *testing.T) {
	boom := errors.New("boom")

	skip := RuntimePolicy{MissingUTxO: ActionSkip, DecodeError: ActionSkip}
	require.NoError(t, skip.OnMissingUTxO(boom))
	require.NoError(t, skip.OnDecodeError(boom))

	fail := RuntimePolicy{MissingUTxO: ActionFail, DecodeError: ActionFail}
	require.ErrorIs(t, fail.OnMissingUTxO(boom), boom)
	require.ErrorIs(t, fail.OnDecodeError(boom), boom)

	// unset actions behave like skip
	var zero RuntimePolicy
	require.NoError(t, zero.OnMissingUTxO(boom))

	require.NoError(t, DefaultPolicy().Validate())
	bad := RuntimePolicy{MissingUTxO: "explode"}
	require.Error(t, bad.Validate())
}

func TestIntersectValidate(t *testing.T) {
	require.NoError(t, (&IntersectConfig{Type: "origin"}).Validate())
	require.NoError(t, (&IntersectConfig{Type: "tip"}).Validate())
	require.NoError(t, (&IntersectConfig{Type: "point", Points: []string{"1,aa"}}).Validate())
	require.Error(t, (&IntersectConfig{Type: "point"}).Validate())
	require.Error(t, (&IntersectConfig{Type: "point", Points: []string{"nope"}}).Validate())
	require.Error(t, (&IntersectConfig{Type: "wat"}).Validate())
}

func TestWellKnownChain(t *testing.T) {
	mainnet, err := WellKnownChain("mainnet")
	require.NoError(t, err)
	require.Equal(t, uint8(1), mainnet.NetworkID)

	_, err = WellKnownChain("atlantis")
	require.Error(t, err)
}
