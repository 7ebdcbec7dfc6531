// Copyright 2022-2023, MLabs, Ltd.
// For license information, see https://github.com/mlabs-haskell/scrolls/blob/main/LICENSE

package ledger

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

var ErrMalformedOutput = errors.New("malformed transaction output")

// Asset is one non-ada token bundle entry.
type Asset struct {
	PolicyID Hash28
	Name     []byte
	Amount   uint64
}

// Output is a decoded transaction output of any post-Byron era. The original
// CBOR is retained so outputs can be stored and re-decoded by the enricher.
type Output struct {
	era         Era
	raw         []byte
	addressRaw  []byte
	lovelace    uint64
	assets      []Asset
	datumHash   *Hash32
	inlineDatum *PlutusData
}

// DecodeOutput decodes a single transaction output. Babbage outputs are
// uint-keyed maps; earlier eras use positional arrays. Both shapes appear
// inside Babbage blocks, so the era tag alone does not pick the layout.
func DecodeOutput(era Era, raw []byte) (*Output, error) {
	out := &Output{era: era, raw: append([]byte(nil), raw...)}

	if fields, err := decodeUintMap(raw); err == nil {
		if err := out.decodeMapForm(fields); err != nil {
			return nil, err
		}
		return out, nil
	}

	items, err := decodeArray(raw)
	if err != nil {
		return nil, errors.Wrap(ErrMalformedOutput, err.Error())
	}
	if err := out.decodeArrayForm(items); err != nil {
		return nil, err
	}
	return out, nil
}

func (o *Output) decodeMapForm(fields map[uint64]cbor.RawMessage) error {
	addrRaw, ok := fields[0]
	if !ok {
		return errors.Wrap(ErrMalformedOutput, "missing address")
	}
	if err := decMode.Unmarshal(addrRaw, &o.addressRaw); err != nil {
		return errors.Wrap(ErrMalformedOutput, err.Error())
	}
	valueRaw, ok := fields[1]
	if !ok {
		return errors.Wrap(ErrMalformedOutput, "missing value")
	}
	if err := o.decodeValue(valueRaw); err != nil {
		return err
	}
	if datumRaw, ok := fields[2]; ok {
		if err := o.decodeDatumOption(datumRaw); err != nil {
			return err
		}
	}
	return nil
}

func (o *Output) decodeArrayForm(items []cbor.RawMessage) error {
	if len(items) < 2 {
		return errors.Wrap(ErrMalformedOutput, "short output array")
	}
	if err := decMode.Unmarshal(items[0], &o.addressRaw); err != nil {
		return errors.Wrap(ErrMalformedOutput, err.Error())
	}
	if err := o.decodeValue(items[1]); err != nil {
		return err
	}
	if len(items) >= 3 {
		var hashBytes []byte
		if err := decMode.Unmarshal(items[2], &hashBytes); err != nil {
			return errors.Wrap(ErrMalformedOutput, err.Error())
		}
		h, err := Hash32FromBytes(hashBytes)
		if err != nil {
			return errors.Wrap(ErrMalformedOutput, err.Error())
		}
		o.datumHash = &h
	}
	return nil
}

// decodeValue handles both the bare-coin and the [coin, multiasset] shapes.
func (o *Output) decodeValue(raw cbor.RawMessage) error {
	var coin uint64
	if err := decMode.Unmarshal(raw, &coin); err == nil {
		o.lovelace = coin
		return nil
	}

	var pair struct {
		_      struct{} `cbor:",toarray"`
		Coin   uint64
		Assets map[cbor.ByteString]map[cbor.ByteString]uint64
	}
	if err := decMode.Unmarshal(raw, &pair); err != nil {
		return errors.Wrap(ErrMalformedOutput, err.Error())
	}
	o.lovelace = pair.Coin
	for policy, bundle := range pair.Assets {
		pid, err := Hash28FromBytes([]byte(policy))
		if err != nil {
			return errors.Wrap(ErrMalformedOutput, err.Error())
		}
		for name, amount := range bundle {
			o.assets = append(o.assets, Asset{
				PolicyID: pid,
				Name:     []byte(name),
				Amount:   amount,
			})
		}
	}
	return nil
}

// decodeDatumOption handles the babbage datum_option: [0, hash] or
// [1, #6.24(bytes .cbor plutus_data)].
func (o *Output) decodeDatumOption(raw cbor.RawMessage) error {
	items, err := decodeArray(raw)
	if err != nil || len(items) != 2 {
		return errors.Wrap(ErrMalformedOutput, "datum option shape")
	}
	var kind uint64
	if err := decMode.Unmarshal(items[0], &kind); err != nil {
		return errors.Wrap(ErrMalformedOutput, err.Error())
	}
	switch kind {
	case 0:
		var hashBytes []byte
		if err := decMode.Unmarshal(items[1], &hashBytes); err != nil {
			return errors.Wrap(ErrMalformedOutput, err.Error())
		}
		h, err := Hash32FromBytes(hashBytes)
		if err != nil {
			return errors.Wrap(ErrMalformedOutput, err.Error())
		}
		o.datumHash = &h
	case 1:
		var tag cbor.RawTag
		if err := decMode.Unmarshal(items[1], &tag); err != nil {
			return errors.Wrap(ErrMalformedOutput, err.Error())
		}
		if tag.Number != 24 {
			return errors.Wrapf(ErrMalformedOutput, "inline datum tag %d", tag.Number)
		}
		var inner []byte
		if err := decMode.Unmarshal(tag.Content, &inner); err != nil {
			return errors.Wrap(ErrMalformedOutput, err.Error())
		}
		datum, err := DecodePlutusData(inner)
		if err != nil {
			return err
		}
		o.inlineDatum = datum
	default:
		return errors.Wrapf(ErrMalformedOutput, "datum option kind %d", kind)
	}
	return nil
}

func (o *Output) Era() Era { return o.era }

// Cbor returns the output's original encoding.
func (o *Output) Cbor() []byte { return o.raw }

// Address parses the output's address bytes.
func (o *Output) Address() (Address, error) {
	return ParseAddress(o.addressRaw)
}

func (o *Output) LovelaceAmount() uint64 { return o.lovelace }

func (o *Output) NonAdaAssets() []Asset { return o.assets }

// DatumHash returns the referenced datum hash, if any. Inline datums do not
// set this; use InlineDatum.
func (o *Output) DatumHash() *Hash32 { return o.datumHash }

// InlineDatum returns the inline datum, if the output carries one.
func (o *Output) InlineDatum() *PlutusData { return o.inlineDatum }
