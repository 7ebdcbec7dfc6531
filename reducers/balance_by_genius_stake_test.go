// Copyright 2022-2023, MLabs, Ltd.
// For license information, see https://github.com/mlabs-haskell/scrolls/blob/main/LICENSE

package reducers

import (
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/require"

	"github.com/mlabs-haskell/scrolls/ledger"
	"github.com/mlabs-haskell/scrolls/model"
)

func scriptAddr(t *testing.T) ledger.ShelleyAddress {
	t.Helper()
	raw := append([]byte{0x71}, make([]byte, 28)...)
	addr, err := ledger.ParseAddress(raw)
	require.NoError(t, err)
	return addr.(ledger.ShelleyAddress)
}

func constr(tag uint64, fields ...interface{}) cbor.Tag {
	return cbor.Tag{Number: 121 + tag, Content: fields}
}

// stakeDatum builds the constructor shape the reducer expects: field 1 is
// the owner address with payment and stake key hashes.
func stakeDatum(t *testing.T, payment, stake []byte) []byte {
	t.Helper()
	datum := constr(0,
		[]byte{0x00}, // field 0: irrelevant to the reducer
		constr(0, // address
			constr(0, payment), // payment credential
			constr(0, // optional wrapper
				constr(0, // staking credential
					constr(0, stake),
				),
			),
		),
	)
	raw, err := cbor.Marshal(datum)
	require.NoError(t, err)
	return raw
}

func geniusConfig(t *testing.T, script ledger.ShelleyAddress) Config {
	t.Helper()
	return Config{
		Type:          "BalanceByGeniusStake",
		KeyPrefix:     "genius",
		ScriptAddress: script.String(),
	}
}

func TestGeniusStakeInlineDatum(t *testing.T) {
	script := scriptAddr(t)
	payment := make([]byte, 28)
	payment[0] = 0x11
	stake := make([]byte, 28)
	stake[0] = 0x22

	block, built := mustBuild(t, 200, []ledger.TxSpec{
		{
			Outputs: []ledger.OutputSpec{{
				Address:     script.Bytes(),
				Lovelace:    3_000_000,
				InlineDatum: stakeDatum(t, payment, stake),
			}},
		},
	})

	r, err := newBalanceByGeniusStake(geniusConfig(t, script), defaultPolicy())
	require.NoError(t, err)
	c := newCollector(t)
	require.NoError(t, r.ReduceBlock(block, model.NewBlockContext(), &c.out))

	cmds := c.drain(t)
	require.Len(t, cmds, 1)
	created := cmds[0].(model.VotingPowerCreated)

	// attribution goes to the datum's owner, not the script
	wantPayment, err := ledger.Hash28FromBytes(payment)
	require.NoError(t, err)
	wantStake, err := ledger.Hash28FromBytes(stake)
	require.NoError(t, err)
	want := ledger.NewShelleyAddress(ledger.NetworkMainnet, wantPayment, &wantStake)

	require.Equal(t, want, created.Owner)
	require.Equal(t, "genius", created.Policy)
	require.Equal(t, uint64(3_000_000), created.Amount)
	require.Equal(t, built.TxHashes[0], created.TxID)
}

func TestGeniusStakeWitnessDatum(t *testing.T) {
	script := scriptAddr(t)
	payment := make([]byte, 28)
	payment[0] = 0x33
	stake := make([]byte, 28)
	stake[0] = 0x44

	datum := stakeDatum(t, payment, stake)
	datumHash := ledger.Blake2b256(datum)

	block, _ := mustBuild(t, 201, []ledger.TxSpec{
		{
			Outputs: []ledger.OutputSpec{{
				Address:   script.Bytes(),
				Lovelace:  500,
				DatumHash: &datumHash,
			}},
			WitnessDatums: [][]byte{datum},
		},
	})

	r, err := newBalanceByGeniusStake(geniusConfig(t, script), defaultPolicy())
	require.NoError(t, err)
	c := newCollector(t)
	require.NoError(t, r.ReduceBlock(block, model.NewBlockContext(), &c.out))

	cmds := c.drain(t)
	require.Len(t, cmds, 1)
	require.Equal(t, uint64(500), cmds[0].(model.VotingPowerCreated).Amount)
}

// A datum whose field 1 is not a constructor is silently skipped.
func TestGeniusStakeMalformedDatumSkips(t *testing.T) {
	script := scriptAddr(t)

	bad, err := cbor.Marshal(constr(0, []byte{0x00}, []byte{0x01}))
	require.NoError(t, err)

	block, _ := mustBuild(t, 202, []ledger.TxSpec{
		{
			Outputs: []ledger.OutputSpec{{
				Address:     script.Bytes(),
				Lovelace:    500,
				InlineDatum: bad,
			}},
		},
	})

	r, err := newBalanceByGeniusStake(geniusConfig(t, script), defaultPolicy())
	require.NoError(t, err)
	c := newCollector(t)
	require.NoError(t, r.ReduceBlock(block, model.NewBlockContext(), &c.out))
	require.Empty(t, c.drain(t))
}

// Outputs at other addresses are ignored even with a valid datum.
func TestGeniusStakeIgnoresOtherAddresses(t *testing.T) {
	script := scriptAddr(t)
	other := keyAddr(0x55)

	block, _ := mustBuild(t, 203, []ledger.TxSpec{
		{
			Outputs: []ledger.OutputSpec{{
				Address:     other.Bytes(),
				Lovelace:    500,
				InlineDatum: stakeDatum(t, make([]byte, 28), make([]byte, 28)),
			}},
		},
	})

	r, err := newBalanceByGeniusStake(geniusConfig(t, script), defaultPolicy())
	require.NoError(t, err)
	c := newCollector(t)
	require.NoError(t, r.ReduceBlock(block, model.NewBlockContext(), &c.out))
	require.Empty(t, c.drain(t))
}

func TestGeniusStakeConsumedEmitsSpent(t *testing.T) {
	script := scriptAddr(t)
	prior := ledger.OutputRef{Hash: ledger.Hash32{0x09}, Index: 2}

	block, _ := mustBuild(t, 204, []ledger.TxSpec{
		{Inputs: []ledger.OutputRef{prior}},
	})

	ctx := model.NewBlockContext()
	importOutput(t, ctx, prior, ledger.OutputSpec{
		Address:     script.Bytes(),
		Lovelace:    800,
		InlineDatum: stakeDatum(t, make([]byte, 28), make([]byte, 28)),
	})

	r, err := newBalanceByGeniusStake(geniusConfig(t, script), defaultPolicy())
	require.NoError(t, err)
	c := newCollector(t)
	require.NoError(t, r.ReduceBlock(block, ctx, &c.out))

	cmds := c.drain(t)
	require.Len(t, cmds, 1)
	spent := cmds[0].(model.VotingPowerSpent)
	require.Equal(t, prior.Hash, spent.TxID)
	require.Equal(t, uint32(2), spent.TxIdx)
}

func TestGeniusStakeConfigValidation(t *testing.T) {
	_, err := newBalanceByGeniusStake(Config{KeyPrefix: "x"}, defaultPolicy())
	require.Error(t, err)

	_, err = newBalanceByGeniusStake(Config{ScriptAddress: "not-bech32", KeyPrefix: "x"}, defaultPolicy())
	require.Error(t, err)

	_, err = newBalanceByGeniusStake(Config{ScriptAddress: scriptAddr(t).String()}, defaultPolicy())
	require.Error(t, err)
}
