// Copyright 2022-2023, MLabs, Ltd.
// For license information, see https://github.com/mlabs-haskell/scrolls/blob/main/LICENSE

package model

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/mlabs-haskell/scrolls/ledger"
)

// Point is a chain position: origin, or a specific (slot, block hash) pair.
// An empty hash means origin. Points are totally ordered by slot.
type Point struct {
	Slot uint64
	Hash []byte
}

// Origin is the genesis point.
var Origin = Point{}

// SpecificPoint builds a point at slot with the given block hash.
func SpecificPoint(slot uint64, hash []byte) Point {
	return Point{Slot: slot, Hash: append([]byte(nil), hash...)}
}

// PointFromBlock is the point a decoded block sits at.
func PointFromBlock(b *ledger.Block) Point {
	return SpecificPoint(b.Slot, b.Hash.Bytes())
}

func (p Point) IsOrigin() bool { return len(p.Hash) == 0 }

func (p Point) HashHex() string { return hex.EncodeToString(p.Hash) }

func (p Point) String() string {
	if p.IsOrigin() {
		return "origin"
	}
	return fmt.Sprintf("%d,%s", p.Slot, p.HashHex())
}

func (p Point) Equal(other Point) bool {
	return p.Slot == other.Slot && bytes.Equal(p.Hash, other.Hash)
}
