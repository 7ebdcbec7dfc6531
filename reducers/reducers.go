// Copyright 2022-2023, MLabs, Ltd.
// For license information, see https://github.com/mlabs-haskell/scrolls/blob/main/LICENSE

// Package reducers hosts the interpreters that translate enriched blocks
// into the CRDT command stream.
package reducers

import (
	"github.com/pkg/errors"

	"github.com/mlabs-haskell/scrolls/crosscut"
	"github.com/mlabs-haskell/scrolls/ledger"
	"github.com/mlabs-haskell/scrolls/model"
	"github.com/mlabs-haskell/scrolls/pipeline"
)

// Config selects and parameterizes one reducer. The Type discriminator
// plays the role of a tagged enumeration; the set of variants is closed.
type Config struct {
	Type          string              `koanf:"type"`
	KeyPrefix     string              `koanf:"key_prefix"`
	Filter        *crosscut.Predicate `koanf:"filter"`
	PolicyIDHex   string              `koanf:"policy_id_hex"`
	ScriptAddress string              `koanf:"script_address"`
}

// Plugin instantiates the configured reducer variant.
func (c Config) Plugin(policy *crosscut.RuntimePolicy) (Reducer, error) {
	switch c.Type {
	case "BalanceByAddress":
		return newBalanceByAddress(c, policy), nil
	case "BalanceByGeniusStake":
		return newBalanceByGeniusStake(c, policy)
	default:
		return nil, errors.Errorf("unknown reducer type %q", c.Type)
	}
}

// Reducer is the closed sum of block interpreters. New variants are added
// here and in Config.Plugin, nowhere else.
type Reducer interface {
	ReduceBlock(b *ledger.Block, ctx *model.BlockContext, out *pipeline.OutputPort[model.CRDTCommand]) error

	reducer()
}

func sendCommand(out *pipeline.OutputPort[model.CRDTCommand], cmd model.CRDTCommand) error {
	return out.Send(pipeline.NewMessage(cmd))
}

// tokenAmount is one (asset name, amount) selection from an output.
type tokenAmount struct {
	token  []byte
	amount uint64
}

// relevantAmounts selects what an output is worth to a reducer: the
// lovelace amount when no policy filter is set, otherwise the amounts of
// the assets under the configured policy. Zero amounts are dropped.
func relevantAmounts(out *ledger.Output, policyIDHex string) []tokenAmount {
	if policyIDHex == "" {
		if out.LovelaceAmount() == 0 {
			return nil
		}
		return []tokenAmount{{amount: out.LovelaceAmount()}}
	}
	var selected []tokenAmount
	for _, asset := range out.NonAdaAssets() {
		if asset.PolicyID.String() == policyIDHex && asset.Amount > 0 {
			selected = append(selected, tokenAmount{token: asset.Name, amount: asset.Amount})
		}
	}
	return selected
}

// resolveInput routes a context lookup through the runtime policy. A nil
// output with a nil error means the input should be skipped.
func resolveInput(ctx *model.BlockContext, ref ledger.OutputRef, policy *crosscut.RuntimePolicy) (*ledger.Output, error) {
	utxo, err := ctx.FindUTxO(ref)
	if err == nil {
		return utxo, nil
	}
	if errors.Is(err, model.ErrMissingUTxO) {
		if perr := policy.OnMissingUTxO(err); perr != nil {
			return nil, pipeline.ErrPanic(perr)
		}
		return nil, nil
	}
	if perr := policy.OnDecodeError(err); perr != nil {
		return nil, pipeline.ErrPanic(perr)
	}
	return nil, nil
}
