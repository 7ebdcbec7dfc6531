// Copyright 2022-2023, MLabs, Ltd.
// For license information, see https://github.com/mlabs-haskell/scrolls/blob/main/LICENSE

package ledger

import (
	"sort"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

var (
	ErrMalformedBlock  = errors.New("malformed block")
	ErrUnsupportedEra  = errors.New("unsupported era")
	errShortBlockParts = errors.New("block body has too few parts")
)

// Block is a decoded multi-era block: enough structure to enumerate every
// transaction's inputs and outputs, plus the block-level plutus datum map
// the datum-driven reducers consult.
type Block struct {
	Era    Era
	Number uint64
	Slot   uint64
	Hash   Hash32
	Txs    []*Tx

	datums map[Hash32]*PlutusData
}

// Tx is one decoded transaction.
type Tx struct {
	Era    Era
	Hash   Hash32
	Inputs []OutputRef
	Outs   []*Output

	metadataLabels []uint64
}

// Consumes returns the output refs spent by the transaction.
func (t *Tx) Consumes() []OutputRef { return t.Inputs }

// Produces returns the outputs the transaction creates; the slice index is
// the output index within the transaction.
func (t *Tx) Produces() []*Output { return t.Outs }

// ProducedRef is the ref under which output idx of this tx will be spent.
func (t *Tx) ProducedRef(idx int) OutputRef {
	return OutputRef{Hash: t.Hash, Index: uint32(idx)}
}

// MetadataLabels returns the auxiliary-data labels attached to the
// transaction, sorted ascending. Empty when the tx carries no metadata.
func (t *Tx) MetadataLabels() []uint64 { return t.metadataLabels }

// DecodeBlock decodes a chain-sync block wrapper: [era_tag, block_bytes],
// with the block bytes optionally wrapped in CBOR tag 24.
func DecodeBlock(raw []byte) (*Block, error) {
	items, err := decodeArray(raw)
	if err != nil || len(items) != 2 {
		return nil, errors.Wrap(ErrMalformedBlock, "expected [era, block] wrapper")
	}
	var wireTag uint16
	if err := decMode.Unmarshal(items[0], &wireTag); err != nil {
		return nil, errors.Wrap(ErrMalformedBlock, err.Error())
	}
	era, err := eraFromWireTag(wireTag)
	if err != nil {
		return nil, errors.Wrap(ErrMalformedBlock, err.Error())
	}
	if era == EraByron {
		return nil, errors.Wrap(ErrUnsupportedEra, "byron")
	}

	body, err := unwrapBlockBytes(items[1])
	if err != nil {
		return nil, err
	}
	return decodeShelleyCompatible(era, body)
}

func unwrapBlockBytes(raw cbor.RawMessage) ([]byte, error) {
	var body []byte
	if err := decMode.Unmarshal(raw, &body); err == nil {
		return body, nil
	}
	var tag cbor.RawTag
	if err := decMode.Unmarshal(raw, &tag); err != nil {
		return nil, errors.Wrap(ErrMalformedBlock, err.Error())
	}
	if tag.Number != 24 {
		return nil, errors.Wrapf(ErrMalformedBlock, "block wrapper tag %d", tag.Number)
	}
	var inner []byte
	if err := decMode.Unmarshal(tag.Content, &inner); err != nil {
		return nil, errors.Wrap(ErrMalformedBlock, err.Error())
	}
	return inner, nil
}

// decodeShelleyCompatible handles every era from Shelley onward: the block
// is [header, tx_bodies, tx_witness_sets, auxiliary_data, ?invalid_txs].
func decodeShelleyCompatible(era Era, raw []byte) (*Block, error) {
	parts, err := decodeArray(raw)
	if err != nil {
		return nil, errors.Wrap(ErrMalformedBlock, err.Error())
	}
	if len(parts) < 3 {
		return nil, errors.Wrap(ErrMalformedBlock, errShortBlockParts.Error())
	}

	block := &Block{
		Era:  era,
		Hash: Blake2b256(parts[0]),
	}
	if err := block.decodeHeader(parts[0]); err != nil {
		return nil, err
	}

	bodies, err := decodeArray(parts[1])
	if err != nil {
		return nil, errors.Wrap(ErrMalformedBlock, err.Error())
	}
	for _, body := range bodies {
		tx, err := decodeTx(era, body)
		if err != nil {
			return nil, err
		}
		block.Txs = append(block.Txs, tx)
	}

	if era.HasPlutusData() {
		if err := block.collectDatums(parts[2]); err != nil {
			return nil, err
		}
	}
	if len(parts) >= 4 {
		block.attachMetadataLabels(parts[3])
	}
	return block, nil
}

// attachMetadataLabels walks the tx-indexed auxiliary_data map and records
// each transaction's metadata labels. Metadata only feeds filter
// predicates, so anything this code cannot read is left empty rather than
// rejecting the block.
func (b *Block) attachMetadataLabels(raw cbor.RawMessage) {
	entries, err := decodeUintMap(raw)
	if err != nil {
		return
	}
	for idx, auxRaw := range entries {
		if idx >= uint64(len(b.Txs)) {
			continue
		}
		b.Txs[idx].metadataLabels = decodeMetadataLabels(auxRaw)
	}
}

// decodeMetadataLabels reads the label set out of one auxiliary_data item,
// across its three encodings: the Alonzo+ #6.259({0: metadata, ...}) map,
// the Shelley-MA [metadata, auxiliary_scripts] pair, and the bare Shelley
// metadata map.
func decodeMetadataLabels(raw cbor.RawMessage) []uint64 {
	var tag cbor.RawTag
	if err := decMode.Unmarshal(raw, &tag); err == nil {
		if tag.Number != 259 {
			return nil
		}
		fields, err := decodeUintMap(tag.Content)
		if err != nil {
			return nil
		}
		inner, ok := fields[0]
		if !ok {
			return nil
		}
		return metadataMapLabels(inner)
	}

	if items, err := decodeArray(raw); err == nil {
		if len(items) == 0 {
			return nil
		}
		return metadataMapLabels(items[0])
	}

	return metadataMapLabels(raw)
}

func metadataMapLabels(raw cbor.RawMessage) []uint64 {
	m, err := decodeUintMap(raw)
	if err != nil || len(m) == 0 {
		return nil
	}
	labels := make([]uint64, 0, len(m))
	for label := range m {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })
	return labels
}

// decodeHeader extracts block number and slot from the header body; the
// header hash was already taken over the raw header bytes.
func (b *Block) decodeHeader(raw cbor.RawMessage) error {
	header, err := decodeArray(raw)
	if err != nil || len(header) < 1 {
		return errors.Wrap(ErrMalformedBlock, "header shape")
	}
	hb, err := decodeArray(header[0])
	if err != nil || len(hb) < 2 {
		return errors.Wrap(ErrMalformedBlock, "header body shape")
	}
	if err := decMode.Unmarshal(hb[0], &b.Number); err != nil {
		return errors.Wrap(ErrMalformedBlock, err.Error())
	}
	if err := decMode.Unmarshal(hb[1], &b.Slot); err != nil {
		return errors.Wrap(ErrMalformedBlock, err.Error())
	}
	return nil
}

func decodeTx(era Era, body cbor.RawMessage) (*Tx, error) {
	fields, err := decodeUintMap(body)
	if err != nil {
		return nil, errors.Wrap(ErrMalformedBlock, err.Error())
	}
	tx := &Tx{Era: era, Hash: Blake2b256(body)}

	if inputsRaw, ok := fields[0]; ok {
		inputs, err := decodeSet(inputsRaw)
		if err != nil {
			return nil, errors.Wrap(ErrMalformedBlock, err.Error())
		}
		for _, in := range inputs {
			ref, err := decodeInput(in)
			if err != nil {
				return nil, err
			}
			tx.Inputs = append(tx.Inputs, ref)
		}
	}

	if outputsRaw, ok := fields[1]; ok {
		outputs, err := decodeArray(outputsRaw)
		if err != nil {
			return nil, errors.Wrap(ErrMalformedBlock, err.Error())
		}
		for _, o := range outputs {
			out, err := DecodeOutput(era, o)
			if err != nil {
				return nil, err
			}
			tx.Outs = append(tx.Outs, out)
		}
	}
	return tx, nil
}

func decodeInput(raw cbor.RawMessage) (OutputRef, error) {
	var in struct {
		_     struct{} `cbor:",toarray"`
		Hash  []byte
		Index uint32
	}
	if err := decMode.Unmarshal(raw, &in); err != nil {
		return OutputRef{}, errors.Wrap(ErrMalformedBlock, err.Error())
	}
	h, err := Hash32FromBytes(in.Hash)
	if err != nil {
		return OutputRef{}, errors.Wrap(ErrMalformedBlock, err.Error())
	}
	return OutputRef{Hash: h, Index: in.Index}, nil
}

// collectDatums indexes every plutus datum of every witness set by hash.
func (b *Block) collectDatums(witnessSetsRaw cbor.RawMessage) error {
	sets, err := decodeArray(witnessSetsRaw)
	if err != nil {
		return errors.Wrap(ErrMalformedBlock, err.Error())
	}
	for _, setRaw := range sets {
		fields, err := decodeUintMap(setRaw)
		if err != nil {
			return errors.Wrap(ErrMalformedBlock, err.Error())
		}
		datumsRaw, ok := fields[4]
		if !ok {
			continue
		}
		items, err := decodeSet(datumsRaw)
		if err != nil {
			return errors.Wrap(ErrMalformedBlock, err.Error())
		}
		for _, item := range items {
			datum, err := DecodePlutusData(item)
			if err != nil {
				// A datum this code cannot traverse is a skip for the
				// reducers, not a reason to reject the whole block.
				continue
			}
			if b.datums == nil {
				b.datums = make(map[Hash32]*PlutusData)
			}
			b.datums[datum.Hash()] = datum
		}
	}
	return nil
}

// Datums returns the block-level datum map built from the witness sets.
// Empty for eras without plutus data.
func (b *Block) Datums() map[Hash32]*PlutusData {
	return b.datums
}
