// Copyright 2022-2023, MLabs, Ltd.
// For license information, see https://github.com/mlabs-haskell/scrolls/blob/main/LICENSE

package reducers

import (
	"github.com/mlabs-haskell/scrolls/crosscut"
	"github.com/mlabs-haskell/scrolls/ledger"
	"github.com/mlabs-haskell/scrolls/model"
	"github.com/mlabs-haskell/scrolls/pipeline"
)

const defaultAddressPrefix = "balance_by_address"

// BalanceByAddress tracks voting power per payment address: consumed
// outputs spend previously created rows, produced outputs create new ones.
type BalanceByAddress struct {
	keyPrefix   string
	filter      *crosscut.Predicate
	policyIDHex string
	policy      *crosscut.RuntimePolicy
}

func newBalanceByAddress(cfg Config, policy *crosscut.RuntimePolicy) *BalanceByAddress {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultAddressPrefix
	}
	return &BalanceByAddress{
		keyPrefix:   prefix,
		filter:      cfg.Filter,
		policyIDHex: cfg.PolicyIDHex,
		policy:      policy,
	}
}

func (*BalanceByAddress) reducer() {}

func (r *BalanceByAddress) ReduceBlock(b *ledger.Block, ctx *model.BlockContext, out *pipeline.OutputPort[model.CRDTCommand]) error {
	point := model.PointFromBlock(b)
	for _, tx := range b.Txs {
		if !r.filter.Matches(tx) {
			continue
		}
		for _, ref := range tx.Consumes() {
			if err := r.processConsumed(ctx, ref, point, out); err != nil {
				return err
			}
		}
		for idx, produced := range tx.Produces() {
			if err := r.processProduced(tx, idx, produced, point, out); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *BalanceByAddress) processConsumed(ctx *model.BlockContext, ref ledger.OutputRef, point model.Point, out *pipeline.OutputPort[model.CRDTCommand]) error {
	utxo, err := resolveInput(ctx, ref, r.policy)
	if err != nil || utxo == nil {
		return err
	}
	addr, err := utxo.Address()
	if err != nil {
		return nil
	}
	if _, ok := addr.(ledger.ShelleyAddress); !ok {
		return nil
	}
	if len(relevantAmounts(utxo, r.policyIDHex)) == 0 {
		return nil
	}
	return sendCommand(out, model.VotingPowerSpent{
		TxID:  ref.Hash,
		TxIdx: ref.Index,
		Point: point,
	})
}

func (r *BalanceByAddress) processProduced(tx *ledger.Tx, idx int, produced *ledger.Output, point model.Point, out *pipeline.OutputPort[model.CRDTCommand]) error {
	addr, err := produced.Address()
	if err != nil {
		return nil
	}
	shelley, ok := addr.(ledger.ShelleyAddress)
	if !ok {
		return nil
	}
	for _, sel := range relevantAmounts(produced, r.policyIDHex) {
		err := sendCommand(out, model.VotingPowerCreated{
			Owner:  shelley,
			Policy: r.keyPrefix,
			Token:  sel.token,
			Amount: sel.amount,
			Point:  point,
			TxID:   tx.Hash,
			TxIdx:  uint32(idx),
		})
		if err != nil {
			return err
		}
	}
	return nil
}
