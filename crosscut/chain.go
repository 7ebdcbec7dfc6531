// Copyright 2022-2023, MLabs, Ltd.
// For license information, see https://github.com/mlabs-haskell/scrolls/blob/main/LICENSE

package crosscut

import (
	"github.com/pkg/errors"

	"github.com/mlabs-haskell/scrolls/ledger"
)

// ChainWellKnownInfo pins the network constants the pipeline needs. It can
// be picked by name or spelled out in the configuration document.
type ChainWellKnownInfo struct {
	NetworkMagic uint32 `koanf:"network_magic"`
	NetworkID    uint8  `koanf:"network_id"`
	Name         string `koanf:"name"`
}

var wellKnown = map[string]ChainWellKnownInfo{
	"mainnet": {NetworkMagic: 764824073, NetworkID: 1, Name: "mainnet"},
	"testnet": {NetworkMagic: 1097911063, NetworkID: 0, Name: "testnet"},
	"preview": {NetworkMagic: 2, NetworkID: 0, Name: "preview"},
	"preprod": {NetworkMagic: 1, NetworkID: 0, Name: "preprod"},
}

// WellKnownChain resolves a chain by name.
func WellKnownChain(name string) (ChainWellKnownInfo, error) {
	info, ok := wellKnown[name]
	if !ok {
		return ChainWellKnownInfo{}, errors.Errorf("unknown chain %q", name)
	}
	return info, nil
}

// AddressNetwork maps the chain to the network discriminator used in
// Shelley address headers.
func (c ChainWellKnownInfo) AddressNetwork() ledger.Network {
	if c.NetworkID == 1 {
		return ledger.NetworkMainnet
	}
	return ledger.NetworkTestnet
}
