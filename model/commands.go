// Copyright 2022-2023, MLabs, Ltd.
// For license information, see https://github.com/mlabs-haskell/scrolls/blob/main/LICENSE

package model

import (
	"fmt"

	"github.com/mlabs-haskell/scrolls/ledger"
)

// CRDTCommand is the command algebra between reducers and storage: the only
// interface the two stages share. It is a closed sum; storage sinks switch
// over the concrete types.
type CRDTCommand interface {
	fmt.Stringer
	crdtCommand()
}

// BlockStarting opens the logical transaction for one block.
type BlockStarting struct {
	Point Point
}

// VotingPowerChange is the coarse, delta-only form of a balance mutation.
// The shipped reducers emit the fine-grained pair below instead; this form
// remains for bench sinks and counter-style stores.
type VotingPowerChange struct {
	Address ledger.ShelleyAddress
	Policy  string
	Delta   int64
	Point   Point
}

// VotingPowerCreated records a UTXO coming into existence.
type VotingPowerCreated struct {
	Owner  ledger.ShelleyAddress
	Policy string
	Token  []byte // asset name; nil for lovelace
	Amount uint64
	Point  Point
	TxID   ledger.Hash32
	TxIdx  uint32
}

// VotingPowerSpent records a previously created UTXO being consumed.
type VotingPowerSpent struct {
	TxID  ledger.Hash32
	TxIdx uint32
	Point Point
}

// BlockFinished closes the logical transaction; the cursor advances to Point.
type BlockFinished struct {
	Point Point
}

// RollBack discards all effects strictly after Point.
type RollBack struct {
	Point Point
}

func (BlockStarting) crdtCommand()      {}
func (VotingPowerChange) crdtCommand()  {}
func (VotingPowerCreated) crdtCommand() {}
func (VotingPowerSpent) crdtCommand()   {}
func (BlockFinished) crdtCommand()      {}
func (RollBack) crdtCommand()           {}

func (c BlockStarting) String() string {
	return fmt.Sprintf("BlockStarting(%s)", c.Point)
}

func (c VotingPowerChange) String() string {
	return fmt.Sprintf("VotingPowerChange(%s, %s, %+d, %s)", c.Address, c.Policy, c.Delta, c.Point)
}

func (c VotingPowerCreated) String() string {
	return fmt.Sprintf("VotingPowerCreated(%s, %s.%x, %d, %s#%d, %s)",
		c.Owner, c.Policy, c.Token, c.Amount, c.TxID, c.TxIdx, c.Point)
}

func (c VotingPowerSpent) String() string {
	return fmt.Sprintf("VotingPowerSpent(%s#%d, %s)", c.TxID, c.TxIdx, c.Point)
}

func (c BlockFinished) String() string {
	return fmt.Sprintf("BlockFinished(%s)", c.Point)
}

func (c RollBack) String() string {
	return fmt.Sprintf("RollBack(%s)", c.Point)
}

// BlockStartingFrom builds the opening command for a decoded block.
func BlockStartingFrom(b *ledger.Block) BlockStarting {
	return BlockStarting{Point: PointFromBlock(b)}
}

// BlockFinishedFrom builds the closing command for a decoded block.
func BlockFinishedFrom(b *ledger.Block) BlockFinished {
	return BlockFinished{Point: PointFromBlock(b)}
}
