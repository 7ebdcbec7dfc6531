// Copyright 2022-2023, MLabs, Ltd.
// For license information, see https://github.com/mlabs-haskell/scrolls/blob/main/LICENSE

package ledger

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

// The builders below assemble syntactically valid block wrappers from
// specs. They back the package tests, the pipeline tests downstream, and
// the preparation of replay fixtures; nothing here validates semantics.

// OutputSpec describes one output to encode.
type OutputSpec struct {
	Address     []byte
	Lovelace    uint64
	Assets      []Asset
	DatumHash   *Hash32
	InlineDatum []byte // raw plutus data CBOR
}

// TxSpec describes one transaction to encode.
type TxSpec struct {
	Inputs  []OutputRef
	Outputs []OutputSpec
	// WitnessDatums are raw plutus data items for the tx witness set.
	WitnessDatums [][]byte
	// MetadataLabels become entries in the block's auxiliary_data map.
	MetadataLabels []uint64
}

// BuiltBlock is the result of BuildBlock: the wire bytes plus the hashes a
// caller needs to reference the block and its transactions.
type BuiltBlock struct {
	Bytes    []byte
	Hash     Hash32
	TxHashes []Hash32
}

// BuildBlock encodes a block wrapper for the given era. Output maps are
// used for Babbage, positional arrays for earlier eras.
func BuildBlock(era Era, number, slot uint64, txs []TxSpec) (*BuiltBlock, error) {
	headerBody := []interface{}{number, slot, []byte{}}
	header := []interface{}{headerBody, []byte{0x00}}
	headerRaw, err := genEncMode.Marshal(header)
	if err != nil {
		return nil, err
	}

	built := &BuiltBlock{Hash: Blake2b256(headerRaw)}

	bodies := make([]cbor.RawMessage, 0, len(txs))
	witnessSets := make([]interface{}, 0, len(txs))
	auxSet := map[uint64]interface{}{}
	for i, tx := range txs {
		bodyRaw, err := encodeTxBody(era, tx)
		if err != nil {
			return nil, err
		}
		bodies = append(bodies, bodyRaw)
		built.TxHashes = append(built.TxHashes, Blake2b256(bodyRaw))

		witness := map[uint64]interface{}{}
		if len(tx.WitnessDatums) > 0 {
			items := make([]cbor.RawMessage, 0, len(tx.WitnessDatums))
			for _, d := range tx.WitnessDatums {
				items = append(items, cbor.RawMessage(d))
			}
			witness[4] = items
		}
		witnessSets = append(witnessSets, witness)

		if len(tx.MetadataLabels) > 0 {
			metadata := map[uint64]interface{}{}
			for _, label := range tx.MetadataLabels {
				metadata[label] = ""
			}
			auxSet[uint64(i)] = metadata
		}
	}

	blockRaw, err := genEncMode.Marshal([]interface{}{
		cbor.RawMessage(headerRaw),
		bodies,
		witnessSets,
		auxSet,
	})
	if err != nil {
		return nil, err
	}

	wrapper, err := genEncMode.Marshal([]interface{}{era.WireTag(), blockRaw})
	if err != nil {
		return nil, err
	}
	built.Bytes = wrapper
	return built, nil
}

func encodeTxBody(era Era, tx TxSpec) (cbor.RawMessage, error) {
	inputs := make([]interface{}, 0, len(tx.Inputs))
	for _, in := range tx.Inputs {
		inputs = append(inputs, []interface{}{in.Hash.Bytes(), in.Index})
	}
	outputs := make([]interface{}, 0, len(tx.Outputs))
	for _, out := range tx.Outputs {
		enc, err := encodeOutput(era, out)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, enc)
	}
	return genEncMode.Marshal(map[uint64]interface{}{
		0: inputs,
		1: outputs,
		2: uint64(0),
	})
}

// EncodeOutput renders a single output spec to CBOR, usable directly as an
// enrichment store value.
func EncodeOutput(era Era, out OutputSpec) ([]byte, error) {
	enc, err := encodeOutput(era, out)
	if err != nil {
		return nil, err
	}
	return genEncMode.Marshal(enc)
}

func encodeOutput(era Era, out OutputSpec) (interface{}, error) {
	value := encodeValue(out)
	if era == EraBabbage {
		m := map[uint64]interface{}{
			0: out.Address,
			1: value,
		}
		switch {
		case out.InlineDatum != nil:
			m[2] = []interface{}{uint64(1), cbor.Tag{Number: 24, Content: out.InlineDatum}}
		case out.DatumHash != nil:
			m[2] = []interface{}{uint64(0), out.DatumHash.Bytes()}
		}
		return m, nil
	}

	arr := []interface{}{out.Address, value}
	if out.InlineDatum != nil {
		return nil, errors.New("inline datums need a babbage output")
	}
	if out.DatumHash != nil {
		arr = append(arr, out.DatumHash.Bytes())
	}
	return arr, nil
}

func encodeValue(out OutputSpec) interface{} {
	if len(out.Assets) == 0 {
		return out.Lovelace
	}
	bundle := make(map[cbor.ByteString]map[cbor.ByteString]uint64)
	for _, asset := range out.Assets {
		policy := cbor.ByteString(asset.PolicyID.Bytes())
		if bundle[policy] == nil {
			bundle[policy] = make(map[cbor.ByteString]uint64)
		}
		bundle[policy][cbor.ByteString(asset.Name)] = asset.Amount
	}
	return []interface{}{out.Lovelace, bundle}
}
