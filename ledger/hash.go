// Copyright 2022-2023, MLabs, Ltd.
// For license information, see https://github.com/mlabs-haskell/scrolls/blob/main/LICENSE

package ledger

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Hash32 is a blake2b-256 digest: block hashes, transaction ids, datum hashes.
type Hash32 [32]byte

// Hash28 is a blake2b-224 digest: key hashes and minting policy ids.
type Hash28 [28]byte

func (h Hash32) String() string { return hex.EncodeToString(h[:]) }
func (h Hash32) Bytes() []byte  { return h[:] }

func (h Hash28) String() string { return hex.EncodeToString(h[:]) }
func (h Hash28) Bytes() []byte  { return h[:] }

// Hash32FromBytes copies b into a Hash32, rejecting wrong lengths.
func Hash32FromBytes(b []byte) (Hash32, error) {
	var h Hash32
	if len(b) != len(h) {
		return h, fmt.Errorf("expected %d hash bytes, got %d", len(h), len(b))
	}
	copy(h[:], b)
	return h, nil
}

// Hash28FromBytes copies b into a Hash28, rejecting wrong lengths.
func Hash28FromBytes(b []byte) (Hash28, error) {
	var h Hash28
	if len(b) != len(h) {
		return h, fmt.Errorf("expected %d hash bytes, got %d", len(h), len(b))
	}
	copy(h[:], b)
	return h, nil
}

// Blake2b256 hashes data with blake2b-256.
func Blake2b256(data []byte) Hash32 {
	return blake2b.Sum256(data)
}

// Blake2b224 hashes data with blake2b-224.
func Blake2b224(data []byte) Hash28 {
	h, err := blake2b.New(28, nil)
	if err != nil {
		panic(err)
	}
	h.Write(data)
	var out Hash28
	copy(out[:], h.Sum(nil))
	return out
}

// OutputRef identifies a transaction output by producing tx and index.
type OutputRef struct {
	Hash  Hash32
	Index uint32
}

func (r OutputRef) String() string {
	return fmt.Sprintf("%s#%d", r.Hash, r.Index)
}
