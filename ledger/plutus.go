// Copyright 2022-2023, MLabs, Ltd.
// For license information, see https://github.com/mlabs-haskell/scrolls/blob/main/LICENSE

package ledger

import (
	"math/big"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

// PlutusDataKind enumerates the shapes plutus data can take.
type PlutusDataKind int

const (
	PlutusConstr PlutusDataKind = iota
	PlutusBytes
	PlutusInt
	PlutusList
	PlutusMap
)

var ErrMalformedDatum = errors.New("malformed plutus data")

// PlutusData is a decoded datum. Only the constructor and byte shapes have
// rich accessors; that is all the datum-driven reducers traverse.
type PlutusData struct {
	raw    []byte
	kind   PlutusDataKind
	constr *Constr
	bytes  []byte
	num    *big.Int
	list   []*PlutusData
}

// Constr is a tagged constructor application.
type Constr struct {
	Tag    uint64 // constructor alternative
	Fields []*PlutusData
}

// DecodePlutusData decodes a single datum, keeping the raw bytes so the
// datum hash can be recomputed.
func DecodePlutusData(raw []byte) (*PlutusData, error) {
	var v interface{}
	if err := decMode.Unmarshal(raw, &v); err != nil {
		return nil, errors.Wrap(ErrMalformedDatum, err.Error())
	}
	d, err := convertPlutus(v)
	if err != nil {
		return nil, err
	}
	d.raw = append([]byte(nil), raw...)
	return d, nil
}

func convertPlutus(v interface{}) (*PlutusData, error) {
	switch x := v.(type) {
	case cbor.Tag:
		return convertTagged(x)
	case []byte:
		return &PlutusData{kind: PlutusBytes, bytes: x}, nil
	case cbor.ByteString:
		return &PlutusData{kind: PlutusBytes, bytes: []byte(x)}, nil
	case uint64:
		return &PlutusData{kind: PlutusInt, num: new(big.Int).SetUint64(x)}, nil
	case int64:
		return &PlutusData{kind: PlutusInt, num: big.NewInt(x)}, nil
	case big.Int:
		return &PlutusData{kind: PlutusInt, num: &x}, nil
	case []interface{}:
		items, err := convertPlutusList(x)
		if err != nil {
			return nil, err
		}
		return &PlutusData{kind: PlutusList, list: items}, nil
	case map[interface{}]interface{}:
		// Map payloads are carried but not traversed by any reducer.
		return &PlutusData{kind: PlutusMap}, nil
	default:
		return nil, errors.Wrapf(ErrMalformedDatum, "unexpected term %T", v)
	}
}

func convertTagged(t cbor.Tag) (*PlutusData, error) {
	var alt uint64
	var fields interface{}
	switch {
	case t.Number >= 121 && t.Number <= 127:
		alt = t.Number - 121
		fields = t.Content
	case t.Number >= 1280 && t.Number <= 1400:
		alt = t.Number - 1280 + 7
		fields = t.Content
	case t.Number == 102:
		parts, ok := t.Content.([]interface{})
		if !ok || len(parts) != 2 {
			return nil, errors.Wrap(ErrMalformedDatum, "tag 102 payload")
		}
		a, ok := parts[0].(uint64)
		if !ok {
			return nil, errors.Wrap(ErrMalformedDatum, "tag 102 alternative")
		}
		alt = a
		fields = parts[1]
	case t.Number == 2 || t.Number == 3:
		// bignum
		n, ok := t.Content.(big.Int)
		if !ok {
			return nil, errors.Wrap(ErrMalformedDatum, "bignum payload")
		}
		return &PlutusData{kind: PlutusInt, num: &n}, nil
	default:
		return nil, errors.Wrapf(ErrMalformedDatum, "unexpected tag %d", t.Number)
	}

	var raw []interface{}
	if fields != nil {
		var ok bool
		raw, ok = fields.([]interface{})
		if !ok {
			return nil, errors.Wrap(ErrMalformedDatum, "constructor fields")
		}
	}
	items, err := convertPlutusList(raw)
	if err != nil {
		return nil, err
	}
	return &PlutusData{kind: PlutusConstr, constr: &Constr{Tag: alt, Fields: items}}, nil
}

func convertPlutusList(raw []interface{}) ([]*PlutusData, error) {
	items := make([]*PlutusData, 0, len(raw))
	for _, f := range raw {
		item, err := convertPlutus(f)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (d *PlutusData) Kind() PlutusDataKind { return d.kind }

// Constr returns the constructor application, or nil when the datum is not
// a constructor. Nil-safe so lenient traversals can chain.
func (d *PlutusData) Constr() *Constr {
	if d == nil || d.kind != PlutusConstr {
		return nil
	}
	return d.constr
}

// Bytes returns the byte payload when the datum is a byte string.
func (d *PlutusData) Bytes() ([]byte, bool) {
	if d == nil || d.kind != PlutusBytes {
		return nil, false
	}
	return d.bytes, true
}

// Hash is the blake2b-256 of the datum's original encoding. Only meaningful
// for datums decoded from raw bytes (witness sets, inline datums).
func (d *PlutusData) Hash() Hash32 {
	return Blake2b256(d.raw)
}

// Field returns the i-th constructor field, or nil when the datum is not a
// constructor or the index is out of range. Mirrors the lenient traversal
// used by datum-driven reducers: a structural miss is a skip, not an error.
func (d *PlutusData) Field(i int) *PlutusData {
	c := d.Constr()
	if c == nil || i < 0 || i >= len(c.Fields) {
		return nil
	}
	return c.Fields[i]
}
