// Copyright 2022-2023, MLabs, Ltd.
// For license information, see https://github.com/mlabs-haskell/scrolls/blob/main/LICENSE

package model

import (
	"github.com/pkg/errors"

	"github.com/mlabs-haskell/scrolls/ledger"
)

// RawBlockPayload is what a block source emits: a raw block moving the chain
// forward, or a rollback to an earlier point.
type RawBlockPayload struct {
	Block    []byte // nil for rollbacks
	Rollback *Point
}

// RollForwardPayload wraps raw block bytes.
func RollForwardPayload(block []byte) RawBlockPayload {
	return RawBlockPayload{Block: block}
}

// RollBackPayload wraps a rollback point.
func RollBackPayload(point Point) RawBlockPayload {
	return RawBlockPayload{Rollback: &point}
}

// EnrichedBlockPayload is a raw block plus the context resolving its inputs,
// or a pass-through rollback.
type EnrichedBlockPayload struct {
	Block    []byte
	Context  *BlockContext
	Rollback *Point
}

// EnrichedRollForward pairs block bytes with their context.
func EnrichedRollForward(block []byte, ctx *BlockContext) EnrichedBlockPayload {
	return EnrichedBlockPayload{Block: block, Context: ctx}
}

// EnrichedRollBack wraps a rollback point.
func EnrichedRollBack(point Point) EnrichedBlockPayload {
	return EnrichedBlockPayload{Rollback: &point}
}

// ErrMissingUTxO marks a context lookup that found no prior output for a
// consumed ref. Callers route it through RuntimePolicy.
var ErrMissingUTxO = errors.New("missing utxo")

type utxoRecord struct {
	era  ledger.Era
	cbor []byte
}

// BlockContext maps every output ref consumed by a block's transactions to
// the era-tagged CBOR of the output being spent. It lives exactly as long as
// one enriched-block message.
type BlockContext struct {
	utxos map[string]utxoRecord
}

func NewBlockContext() *BlockContext {
	return &BlockContext{utxos: make(map[string]utxoRecord)}
}

// ImportRefOutput records the prior output spent through ref.
func (c *BlockContext) ImportRefOutput(ref ledger.OutputRef, era ledger.Era, cbor []byte) {
	c.utxos[ref.String()] = utxoRecord{era: era, cbor: append([]byte(nil), cbor...)}
}

// FindUTxO resolves a consumed ref into the full prior output. A miss is
// ErrMissingUTxO; a decode failure surfaces as a ledger error.
func (c *BlockContext) FindUTxO(ref ledger.OutputRef) (*ledger.Output, error) {
	rec, ok := c.utxos[ref.String()]
	if !ok {
		return nil, errors.Wrap(ErrMissingUTxO, ref.String())
	}
	return ledger.DecodeOutput(rec.era, rec.cbor)
}

// Len is the number of resolved refs in the context.
func (c *BlockContext) Len() int { return len(c.utxos) }

// Keys lists the resolved refs, mainly for logging and tests.
func (c *BlockContext) Keys() []string {
	keys := make([]string, 0, len(c.utxos))
	for k := range c.utxos {
		keys = append(keys, k)
	}
	return keys
}
