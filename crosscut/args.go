// Copyright 2022-2023, MLabs, Ltd.
// For license information, see https://github.com/mlabs-haskell/scrolls/blob/main/LICENSE

package crosscut

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/mlabs-haskell/scrolls/model"
)

// PointArg is the textual "slot,hash" form of a chain point used in
// configuration files and cursors.
type PointArg struct {
	Slot uint64
	Hash string
}

// ParsePointArg parses "slot,hex-hash".
func ParsePointArg(s string) (PointArg, error) {
	parts := strings.SplitN(s, ",", 2)
	if len(parts) != 2 {
		return PointArg{}, errors.Errorf("can't parse point: %q", s)
	}
	slot, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return PointArg{}, errors.Wrapf(err, "can't parse slot in %q", s)
	}
	if _, err := hex.DecodeString(parts[1]); err != nil {
		return PointArg{}, errors.Wrapf(err, "can't parse hash in %q", s)
	}
	return PointArg{Slot: slot, Hash: parts[1]}, nil
}

// PointArgFrom renders a model point; origin has no PointArg form.
func PointArgFrom(p model.Point) PointArg {
	return PointArg{Slot: p.Slot, Hash: p.HashHex()}
}

func (p PointArg) String() string {
	return strconv.FormatUint(p.Slot, 10) + "," + p.Hash
}

// ToPoint converts back to a model point.
func (p PointArg) ToPoint() (model.Point, error) {
	hash, err := hex.DecodeString(p.Hash)
	if err != nil {
		return model.Point{}, errors.Wrapf(err, "bad point hash %q", p.Hash)
	}
	return model.SpecificPoint(p.Slot, hash), nil
}

// IntersectConfig selects where the chain source should (re)start reading.
// The daemon hands it to the source together with the stored cursor.
type IntersectConfig struct {
	Type   string   `koanf:"type"` // origin | tip | point | fallbacks
	Points []string `koanf:"points"`
}

func (c *IntersectConfig) Validate() error {
	switch c.Type {
	case "", "origin", "tip":
		return nil
	case "point", "fallbacks":
		if len(c.Points) == 0 {
			return errors.Errorf("intersect type %q needs at least one point", c.Type)
		}
		for _, p := range c.Points {
			if _, err := ParsePointArg(p); err != nil {
				return err
			}
		}
		return nil
	default:
		return errors.Errorf("unknown intersect type %q", c.Type)
	}
}
