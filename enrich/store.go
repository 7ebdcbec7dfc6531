// Copyright 2022-2023, MLabs, Ltd.
// For license information, see https://github.com/mlabs-haskell/scrolls/blob/main/LICENSE

package enrich

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/mlabs-haskell/scrolls/ledger"
)

// ErrNotFound marks a resolve miss: no stored output for the ref.
var ErrNotFound = errors.New("utxo not found in store")

// Resolver answers the one question the enricher asks: what output does
// this ref point at. Implementations outside this package (an external UTXO
// provider) only need this interface.
type Resolver interface {
	Resolve(ref ledger.OutputRef) (ledger.Era, []byte, error)
}

// Store is the full lifecycle the enricher's own UTXO state needs: outputs
// are inserted as blocks produce them and removed as they are consumed.
type Store interface {
	Resolver
	Insert(ref ledger.OutputRef, era ledger.Era, cbor []byte) error
	Remove(ref ledger.OutputRef) error
	Close() error
}

// MemStore is an in-memory Store for tests and dry runs.
type MemStore struct {
	mu    sync.Mutex
	utxos map[string]memRecord
}

type memRecord struct {
	era  ledger.Era
	cbor []byte
}

func NewMemStore() *MemStore {
	return &MemStore{utxos: make(map[string]memRecord)}
}

func (s *MemStore) Insert(ref ledger.OutputRef, era ledger.Era, cbor []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.utxos[ref.String()] = memRecord{era: era, cbor: append([]byte(nil), cbor...)}
	return nil
}

func (s *MemStore) Resolve(ref ledger.OutputRef) (ledger.Era, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.utxos[ref.String()]
	if !ok {
		return 0, nil, errors.Wrap(ErrNotFound, ref.String())
	}
	return rec.era, rec.cbor, nil
}

func (s *MemStore) Remove(ref ledger.OutputRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.utxos, ref.String())
	return nil
}

func (s *MemStore) Close() error { return nil }

// Len reports how many outputs are currently stored.
func (s *MemStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.utxos)
}
