// Copyright 2022-2023, MLabs, Ltd.
// For license information, see https://github.com/mlabs-haskell/scrolls/blob/main/LICENSE

package ledger

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

// decMode tolerates the byte-string map keys the ledger CBOR uses for
// multi-asset bundles and plutus maps.
var decMode cbor.DecMode

// genEncMode sorts map keys so built blocks encode deterministically and
// the hash of a tx body only depends on its content.
var genEncMode cbor.EncMode

func init() {
	var err error
	decMode, err = cbor.DecOptions{
		MapKeyByteString: cbor.MapKeyByteStringAllowed,
	}.DecMode()
	if err != nil {
		panic(err)
	}
	genEncMode, err = cbor.EncOptions{Sort: cbor.SortCanonical}.EncMode()
	if err != nil {
		panic(err)
	}
}

// decodeArray unmarshals a CBOR array into raw items.
func decodeArray(raw []byte) ([]cbor.RawMessage, error) {
	var items []cbor.RawMessage
	if err := decMode.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// decodeSet unmarshals either a plain CBOR array or the tag-258 set wrapper
// newer eras use for input and datum collections.
func decodeSet(raw []byte) ([]cbor.RawMessage, error) {
	items, err := decodeArray(raw)
	if err == nil {
		return items, nil
	}
	var tag cbor.RawTag
	if err := decMode.Unmarshal(raw, &tag); err != nil {
		return nil, err
	}
	if tag.Number != 258 {
		return nil, errors.Errorf("expected set, got tag %d", tag.Number)
	}
	return decodeArray(tag.Content)
}

// decodeUintMap unmarshals the uint-keyed maps transaction bodies and
// witness sets are encoded as.
func decodeUintMap(raw []byte) (map[uint64]cbor.RawMessage, error) {
	var fields map[uint64]cbor.RawMessage
	if err := decMode.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}
