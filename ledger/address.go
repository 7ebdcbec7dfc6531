// Copyright 2022-2023, MLabs, Ltd.
// For license information, see https://github.com/mlabs-haskell/scrolls/blob/main/LICENSE

package ledger

import (
	"encoding/hex"

	"github.com/decred/dcrd/bech32"
	"github.com/pkg/errors"
)

// Network is the network discriminator carried in the low nibble of a
// Shelley address header.
type Network byte

const (
	NetworkTestnet Network = 0
	NetworkMainnet Network = 1
)

// DelegationKind describes the delegation part of a Shelley address.
type DelegationKind byte

const (
	DelegationNone DelegationKind = iota
	DelegationKey
	DelegationScript
	DelegationPointer
)

var ErrMalformedAddress = errors.New("malformed address")

// Address is the sum of address flavors an output can carry. Reducers only
// act on Shelley addresses; the other variants exist so callers can skip
// them deliberately instead of failing.
type Address interface {
	// String renders the canonical textual form (bech32 for Shelley and
	// stake addresses).
	String() string
	// Bytes returns the raw on-chain encoding.
	Bytes() []byte

	isAddress()
}

// ShelleyAddress is a payment address with an optional delegation part.
// Both parts are 28-byte hashes; either may refer to a key or a script.
type ShelleyAddress struct {
	Network         Network
	PaymentHash     Hash28
	PaymentIsScript bool
	DelegationKind  DelegationKind
	DelegationHash  Hash28 // meaningful for DelegationKey and DelegationScript
	pointer         []byte // raw pointer bytes for DelegationPointer
}

// ByronAddress is a pre-Shelley bootstrap address, kept opaque.
type ByronAddress struct {
	raw []byte
}

// StakeAddress is a reward-account address, kept opaque.
type StakeAddress struct {
	raw []byte
}

func (ShelleyAddress) isAddress() {}
func (ByronAddress) isAddress()   {}
func (StakeAddress) isAddress()   {}

// NewShelleyAddress builds a key-hash address. A nil stake hash produces an
// enterprise address (no delegation part).
func NewShelleyAddress(network Network, payment Hash28, stake *Hash28) ShelleyAddress {
	addr := ShelleyAddress{
		Network:     network,
		PaymentHash: payment,
	}
	if stake != nil {
		addr.DelegationKind = DelegationKey
		addr.DelegationHash = *stake
	}
	return addr
}

func (a ShelleyAddress) headerByte() byte {
	var t byte
	switch a.DelegationKind {
	case DelegationKey:
		t = 0
	case DelegationScript:
		t = 2
	case DelegationPointer:
		t = 4
	case DelegationNone:
		t = 6
	}
	if a.PaymentIsScript {
		t |= 1
	}
	return t<<4 | byte(a.Network)
}

func (a ShelleyAddress) Bytes() []byte {
	out := []byte{a.headerByte()}
	out = append(out, a.PaymentHash[:]...)
	switch a.DelegationKind {
	case DelegationKey, DelegationScript:
		out = append(out, a.DelegationHash[:]...)
	case DelegationPointer:
		out = append(out, a.pointer...)
	}
	return out
}

func (a ShelleyAddress) String() string {
	hrp := "addr"
	if a.Network == NetworkTestnet {
		hrp = "addr_test"
	}
	return encodeBech32(hrp, a.Bytes())
}

// HasDelegation reports whether the address carries a stake part with a
// usable 28-byte hash.
func (a ShelleyAddress) HasDelegation() bool {
	return a.DelegationKind == DelegationKey || a.DelegationKind == DelegationScript
}

func (a ByronAddress) Bytes() []byte { return a.raw }

// Byron addresses use base58 on chain; scrolls never keys anything off them,
// so a hex rendering is enough for logs.
func (a ByronAddress) String() string { return hex.EncodeToString(a.raw) }

func (a StakeAddress) Bytes() []byte { return a.raw }

func (a StakeAddress) String() string {
	hrp := "stake"
	if len(a.raw) > 0 && Network(a.raw[0]&0x0f) == NetworkTestnet {
		hrp = "stake_test"
	}
	return encodeBech32(hrp, a.raw)
}

// ParseAddress decodes the raw on-chain address bytes from a transaction
// output into one of the address flavors.
func ParseAddress(raw []byte) (Address, error) {
	if len(raw) == 0 {
		return nil, errors.Wrap(ErrMalformedAddress, "empty address")
	}
	header := raw[0]
	typ := header >> 4
	switch {
	case typ == 0x08:
		return ByronAddress{raw: raw}, nil
	case typ == 0x0e || typ == 0x0f:
		if len(raw) != 29 {
			return nil, errors.Wrapf(ErrMalformedAddress, "stake address length %d", len(raw))
		}
		return StakeAddress{raw: raw}, nil
	case typ <= 0x07:
		return parseShelley(header, raw)
	default:
		return nil, errors.Wrapf(ErrMalformedAddress, "unknown address type %#x", typ)
	}
}

func parseShelley(header byte, raw []byte) (Address, error) {
	if len(raw) < 29 {
		return nil, errors.Wrapf(ErrMalformedAddress, "shelley address length %d", len(raw))
	}
	typ := header >> 4
	addr := ShelleyAddress{
		Network:         Network(header & 0x0f),
		PaymentIsScript: typ&1 == 1,
	}
	copy(addr.PaymentHash[:], raw[1:29])

	switch typ >> 1 {
	case 0: // base address with key stake part
		if len(raw) != 57 {
			return nil, errors.Wrapf(ErrMalformedAddress, "base address length %d", len(raw))
		}
		addr.DelegationKind = DelegationKey
		copy(addr.DelegationHash[:], raw[29:57])
	case 1: // base address with script stake part
		if len(raw) != 57 {
			return nil, errors.Wrapf(ErrMalformedAddress, "base address length %d", len(raw))
		}
		addr.DelegationKind = DelegationScript
		copy(addr.DelegationHash[:], raw[29:57])
	case 2: // pointer address
		addr.DelegationKind = DelegationPointer
		addr.pointer = append([]byte(nil), raw[29:]...)
	case 3: // enterprise address
		if len(raw) != 29 {
			return nil, errors.Wrapf(ErrMalformedAddress, "enterprise address length %d", len(raw))
		}
		addr.DelegationKind = DelegationNone
	}
	return addr, nil
}

// ParseBech32Address decodes the textual form used in configuration files
// (script_address and filter predicates).
func ParseBech32Address(s string) (Address, error) {
	_, data, err := bech32.DecodeNoLimit(s)
	if err != nil {
		return nil, errors.Wrap(ErrMalformedAddress, err.Error())
	}
	raw, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return nil, errors.Wrap(ErrMalformedAddress, err.Error())
	}
	return ParseAddress(raw)
}

func encodeBech32(hrp string, data []byte) string {
	conv, err := bech32.ConvertBits(data, 8, 5, true)
	if err != nil {
		return hex.EncodeToString(data)
	}
	s, err := bech32.Encode(hrp, conv)
	if err != nil {
		return hex.EncodeToString(data)
	}
	return s
}
