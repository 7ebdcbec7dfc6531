// Copyright 2022-2023, MLabs, Ltd.
// For license information, see https://github.com/mlabs-haskell/scrolls/blob/main/LICENSE

package ledger

import "fmt"

// Era identifies the ledger era an on-chain object was encoded under. The
// numeric values match the wire tags used by the chain-sync block wrapper,
// so they are safe to persist alongside raw CBOR.
type Era uint16

const (
	EraByron Era = iota + 1
	EraShelley
	EraAllegra
	EraMary
	EraAlonzo
	EraBabbage
)

func (e Era) String() string {
	switch e {
	case EraByron:
		return "byron"
	case EraShelley:
		return "shelley"
	case EraAllegra:
		return "allegra"
	case EraMary:
		return "mary"
	case EraAlonzo:
		return "alonzo"
	case EraBabbage:
		return "babbage"
	default:
		return fmt.Sprintf("era(%d)", uint16(e))
	}
}

// eraFromWireTag maps the block wrapper tag to an Era. Tags 0 and 1 are the
// two flavors of Byron blocks (EBB and main).
func eraFromWireTag(tag uint16) (Era, error) {
	switch tag {
	case 0, 1:
		return EraByron, nil
	case 2:
		return EraShelley, nil
	case 3:
		return EraAllegra, nil
	case 4:
		return EraMary, nil
	case 5:
		return EraAlonzo, nil
	case 6:
		return EraBabbage, nil
	default:
		return 0, fmt.Errorf("unknown era wire tag %d", tag)
	}
}

// WireTag returns the chain-sync wrapper tag for the era.
func (e Era) WireTag() uint16 {
	if e == EraByron {
		return 1
	}
	return uint16(e)
}

// HasPlutusData reports whether blocks of this era carry a plutus data
// section in their transaction witness sets.
func (e Era) HasPlutusData() bool {
	return e == EraAlonzo || e == EraBabbage
}
