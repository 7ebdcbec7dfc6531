// Copyright 2022-2023, MLabs, Ltd.
// For license information, see https://github.com/mlabs-haskell/scrolls/blob/main/LICENSE

package crosscut

import (
	"encoding/hex"

	"github.com/mlabs-haskell/scrolls/ledger"
)

// Predicate is a declarative transaction filter. Address and policy leaves
// match against the transaction's produced outputs, the metadata leaf against
// its metadata labels; combinators compose them. A nil predicate
// matches every transaction.
type Predicate struct {
	AllOf []Predicate `koanf:"all_of"`
	AnyOf []Predicate `koanf:"any_of"`
	Not   []Predicate `koanf:"not"`

	// PaymentEquals matches when any produced output pays to this bech32
	// address' payment part.
	PaymentEquals string `koanf:"payment_equals"`
	// DelegationEquals matches when any produced output delegates to this
	// bech32 address' stake part.
	DelegationEquals string `koanf:"delegation_equals"`
	// PolicyEquals matches when any produced output carries an asset of
	// this hex-encoded policy id.
	PolicyEquals string `koanf:"policy_equals"`
	// PolicyPresent matches when any produced output carries a non-ada
	// asset, whatever its policy.
	PolicyPresent bool `koanf:"policy_present"`
	// MetadataLabelPresent matches when the transaction carries auxiliary
	// data under this metadata label.
	MetadataLabelPresent *uint64 `koanf:"metadata_label_present"`
}

func (p *Predicate) Matches(tx *ledger.Tx) bool {
	if p == nil {
		return true
	}
	for _, sub := range p.AllOf {
		if !sub.Matches(tx) {
			return false
		}
	}
	for _, sub := range p.Not {
		if sub.Matches(tx) {
			return false
		}
	}
	if len(p.AnyOf) > 0 {
		hit := false
		for _, sub := range p.AnyOf {
			if sub.Matches(tx) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	if p.PaymentEquals != "" && !p.matchesPayment(tx) {
		return false
	}
	if p.DelegationEquals != "" && !p.matchesDelegation(tx) {
		return false
	}
	if p.PolicyEquals != "" && !p.matchesPolicy(tx) {
		return false
	}
	if p.PolicyPresent && !p.matchesAnyPolicy(tx) {
		return false
	}
	if p.MetadataLabelPresent != nil && !p.matchesMetadataLabel(tx) {
		return false
	}
	return true
}

func (p *Predicate) matchesPayment(tx *ledger.Tx) bool {
	want, err := ledger.ParseBech32Address(p.PaymentEquals)
	if err != nil {
		return false
	}
	wantShelley, ok := want.(ledger.ShelleyAddress)
	if !ok {
		return false
	}
	for _, out := range tx.Produces() {
		addr, err := out.Address()
		if err != nil {
			continue
		}
		if shelley, ok := addr.(ledger.ShelleyAddress); ok {
			if shelley.PaymentHash == wantShelley.PaymentHash {
				return true
			}
		}
	}
	return false
}

func (p *Predicate) matchesDelegation(tx *ledger.Tx) bool {
	want, err := ledger.ParseBech32Address(p.DelegationEquals)
	if err != nil {
		return false
	}
	wantShelley, ok := want.(ledger.ShelleyAddress)
	if !ok || !wantShelley.HasDelegation() {
		return false
	}
	for _, out := range tx.Produces() {
		addr, err := out.Address()
		if err != nil {
			continue
		}
		if shelley, ok := addr.(ledger.ShelleyAddress); ok {
			if shelley.HasDelegation() && shelley.DelegationHash == wantShelley.DelegationHash {
				return true
			}
		}
	}
	return false
}

func (p *Predicate) matchesPolicy(tx *ledger.Tx) bool {
	for _, out := range tx.Produces() {
		for _, asset := range out.NonAdaAssets() {
			if hex.EncodeToString(asset.PolicyID.Bytes()) == p.PolicyEquals {
				return true
			}
		}
	}
	return false
}

func (p *Predicate) matchesAnyPolicy(tx *ledger.Tx) bool {
	for _, out := range tx.Produces() {
		if len(out.NonAdaAssets()) > 0 {
			return true
		}
	}
	return false
}

func (p *Predicate) matchesMetadataLabel(tx *ledger.Tx) bool {
	for _, label := range tx.MetadataLabels() {
		if label == *p.MetadataLabelPresent {
			return true
		}
	}
	return false
}
