// Copyright 2022-2023, MLabs, Ltd.
// For license information, see https://github.com/mlabs-haskell/scrolls/blob/main/LICENSE

package reducers

import (
	"github.com/pkg/errors"

	"github.com/mlabs-haskell/scrolls/crosscut"
	"github.com/mlabs-haskell/scrolls/ledger"
	"github.com/mlabs-haskell/scrolls/model"
	"github.com/mlabs-haskell/scrolls/pipeline"
)

// BalanceByGeniusStake tracks voting power locked at a staking script. The
// counted owner is not the script address but the wallet address recovered
// from each output's datum.
type BalanceByGeniusStake struct {
	keyPrefix     string
	filter        *crosscut.Predicate
	policyIDHex   string
	scriptAddress string
	policy        *crosscut.RuntimePolicy
}

func newBalanceByGeniusStake(cfg Config, policy *crosscut.RuntimePolicy) (*BalanceByGeniusStake, error) {
	if cfg.ScriptAddress == "" {
		return nil, errors.New("balance_by_genius_stake needs a script_address")
	}
	if _, err := ledger.ParseBech32Address(cfg.ScriptAddress); err != nil {
		return nil, errors.Wrapf(err, "bad script_address %q", cfg.ScriptAddress)
	}
	if cfg.KeyPrefix == "" {
		return nil, errors.New("balance_by_genius_stake needs a key_prefix")
	}
	return &BalanceByGeniusStake{
		keyPrefix:     cfg.KeyPrefix,
		filter:        cfg.Filter,
		policyIDHex:   cfg.PolicyIDHex,
		scriptAddress: cfg.ScriptAddress,
		policy:        policy,
	}, nil
}

func (*BalanceByGeniusStake) reducer() {}

func (r *BalanceByGeniusStake) ReduceBlock(b *ledger.Block, ctx *model.BlockContext, out *pipeline.OutputPort[model.CRDTCommand]) error {
	point := model.PointFromBlock(b)
	for _, tx := range b.Txs {
		if !r.filter.Matches(tx) {
			continue
		}
		for _, ref := range tx.Consumes() {
			if err := r.processConsumed(b, ctx, ref, point, out); err != nil {
				return err
			}
		}
		for idx, produced := range tx.Produces() {
			if err := r.processProduced(b, tx, idx, produced, point, out); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *BalanceByGeniusStake) processConsumed(b *ledger.Block, ctx *model.BlockContext, ref ledger.OutputRef, point model.Point, out *pipeline.OutputPort[model.CRDTCommand]) error {
	utxo, err := resolveInput(ctx, ref, r.policy)
	if err != nil || utxo == nil {
		return err
	}
	if !r.atScript(utxo) {
		return nil
	}
	if _, ok := r.ownerOf(b, utxo); !ok {
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

func (r *BalanceByGeniusStake) processProduced(b *ledger.Block, tx *ledger.Tx, idx int, produced *ledger.Output, point model.Point, out *pipeline.OutputPort[model.CRDTCommand]) error {
	if !r.atScript(produced) {
		return nil
	}
	owner, ok := r.ownerOf(b, produced)
	if !ok {
		return nil
	}
	for _, sel := range relevantAmounts(produced, r.policyIDHex) {
		err := sendCommand(out, model.VotingPowerCreated{
			Owner:  owner,
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

func (r *BalanceByGeniusStake) atScript(out *ledger.Output) bool {
	addr, err := out.Address()
	if err != nil {
		return false
	}
	return addr.String() == r.scriptAddress
}

// ownerOf recovers the wallet address from the output's datum: inline if
// present, otherwise through the block-level witness datum map. Structural
// misses skip the output; they are data expectations, not invariants.
func (r *BalanceByGeniusStake) ownerOf(b *ledger.Block, out *ledger.Output) (ledger.ShelleyAddress, bool) {
	var datum *ledger.PlutusData
	switch {
	case out.InlineDatum() != nil:
		datum = out.InlineDatum()
	case out.DatumHash() != nil:
		datum = b.Datums()[*out.DatumHash()]
	}
	if datum == nil {
		return ledger.ShelleyAddress{}, false
	}
	return datumToAddress(datum)
}

// datumToAddress walks the staking datum's constructor shape: field 1 is
// the on-chain address, whose field 0 wraps the payment key hash and whose
// field 1 wraps the optional stake key hash.
func datumToAddress(datum *ledger.PlutusData) (ledger.ShelleyAddress, bool) {
	addrField := datum.Field(1)
	if addrField == nil {
		return ledger.ShelleyAddress{}, false
	}

	paymentBytes, ok := constrFieldBytes(addrField.Field(0))
	if !ok {
		return ledger.ShelleyAddress{}, false
	}
	payment, err := ledger.Hash28FromBytes(paymentBytes)
	if err != nil {
		return ledger.ShelleyAddress{}, false
	}

	stakeWrap := addrField.Field(1)
	if stakeWrap == nil {
		return ledger.ShelleyAddress{}, false
	}
	stakeBytes, ok := constrFieldBytes(stakeWrap.Field(0).Field(0))
	if !ok {
		return ledger.ShelleyAddress{}, false
	}
	stake, err := ledger.Hash28FromBytes(stakeBytes)
	if err != nil {
		return ledger.ShelleyAddress{}, false
	}

	return ledger.NewShelleyAddress(ledger.NetworkMainnet, payment, &stake), true
}

// constrFieldBytes reads field 0 of a constructor as a byte string.
func constrFieldBytes(d *ledger.PlutusData) ([]byte, bool) {
	if d == nil {
		return nil, false
	}
	inner := d.Field(0)
	if inner == nil {
		return nil, false
	}
	return inner.Bytes()
}
