// Copyright 2022-2023, MLabs, Ltd.
// For license information, see https://github.com/mlabs-haskell/scrolls/blob/main/LICENSE

package enrich

import (
	"encoding/binary"

	"github.com/dgraph-io/badger/v3"
	"github.com/pkg/errors"

	"github.com/mlabs-haskell/scrolls/ledger"
)

// BadgerStore keeps the live UTXO set in a local badger database so the
// enricher can resolve inputs without a full node. Values are the era tag
// followed by the output's original CBOR.
type BadgerStore struct {
	db *badger.DB
}

func OpenBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "opening badger store at %s", path)
	}
	return &BadgerStore{db: db}, nil
}

func storeKey(ref ledger.OutputRef) []byte {
	return []byte(ref.String())
}

func storeValue(era ledger.Era, cbor []byte) []byte {
	v := make([]byte, 2+len(cbor))
	binary.BigEndian.PutUint16(v, uint16(era))
	copy(v[2:], cbor)
	return v
}

func (s *BadgerStore) Insert(ref ledger.OutputRef, era ledger.Era, cbor []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(storeKey(ref), storeValue(era, cbor))
	})
}

func (s *BadgerStore) Resolve(ref ledger.OutputRef) (ledger.Era, []byte, error) {
	var era ledger.Era
	var cbor []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(storeKey(ref))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) < 2 {
				return errors.Errorf("corrupt store value for %s", ref)
			}
			era = ledger.Era(binary.BigEndian.Uint16(val))
			cbor = append([]byte(nil), val[2:]...)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil, errors.Wrap(ErrNotFound, ref.String())
	}
	if err != nil {
		return 0, nil, err
	}
	return era, cbor, nil
}

func (s *BadgerStore) Remove(ref ledger.OutputRef) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(storeKey(ref))
	})
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
