// Copyright 2022-2023, MLabs, Ltd.
// For license information, see https://github.com/mlabs-haskell/scrolls/blob/main/LICENSE

package ledger

import (
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/require"
)

func testAddr(b byte) []byte {
	return NewShelleyAddress(NetworkMainnet, hash28(b), nil).Bytes()
}

func TestDecodeBabbageBlock(t *testing.T) {
	built, err := BuildBlock(EraBabbage, 9, 100, []TxSpec{
		{
			Inputs: []OutputRef{{Hash: hash32(0x01), Index: 0}},
			Outputs: []OutputSpec{
				{Address: testAddr(0xaa), Lovelace: 1_000_000},
			},
		},
	})
	require.NoError(t, err)

	block, err := DecodeBlock(built.Bytes)
	require.NoError(t, err)

	require.Equal(t, EraBabbage, block.Era)
	require.Equal(t, uint64(9), block.Number)
	require.Equal(t, uint64(100), block.Slot)
	require.Equal(t, built.Hash, block.Hash)
	require.Len(t, block.Txs, 1)

	tx := block.Txs[0]
	require.Equal(t, built.TxHashes[0], tx.Hash)
	require.Equal(t, []OutputRef{{Hash: hash32(0x01), Index: 0}}, tx.Consumes())
	require.Len(t, tx.Produces(), 1)
	require.Equal(t, uint64(1_000_000), tx.Produces()[0].LovelaceAmount())
	require.Equal(t, OutputRef{Hash: tx.Hash, Index: 0}, tx.ProducedRef(0))
}

func TestDecodeBlockWithAssets(t *testing.T) {
	policy := hash28(0xde)
	built, err := BuildBlock(EraBabbage, 1, 7, []TxSpec{
		{
			Outputs: []OutputSpec{
				{
					Address:  testAddr(0xbb),
					Lovelace: 5,
					Assets:   []Asset{{PolicyID: policy, Name: []byte("tok"), Amount: 7}},
				},
			},
		},
	})
	require.NoError(t, err)

	block, err := DecodeBlock(built.Bytes)
	require.NoError(t, err)

	out := block.Txs[0].Produces()[0]
	require.Equal(t, uint64(5), out.LovelaceAmount())
	require.Len(t, out.NonAdaAssets(), 1)
	require.Equal(t, policy, out.NonAdaAssets()[0].PolicyID)
	require.Equal(t, []byte("tok"), out.NonAdaAssets()[0].Name)
	require.Equal(t, uint64(7), out.NonAdaAssets()[0].Amount)
}

func TestDecodeMaryEraArrayOutputs(t *testing.T) {
	built, err := BuildBlock(EraMary, 2, 8, []TxSpec{
		{Outputs: []OutputSpec{{Address: testAddr(0xcc), Lovelace: 3}}},
	})
	require.NoError(t, err)

	block, err := DecodeBlock(built.Bytes)
	require.NoError(t, err)
	require.Equal(t, EraMary, block.Era)
	require.Equal(t, uint64(3), block.Txs[0].Produces()[0].LovelaceAmount())
	require.Empty(t, block.Datums())
}

func TestDecodeBlockCollectsWitnessDatums(t *testing.T) {
	datum, err := cbor.Marshal(cbor.Tag{Number: 121, Content: []interface{}{[]byte{0x99}}})
	require.NoError(t, err)

	built, err := BuildBlock(EraBabbage, 3, 9, []TxSpec{
		{
			Outputs:       []OutputSpec{{Address: testAddr(0xdd), Lovelace: 1}},
			WitnessDatums: [][]byte{datum},
		},
	})
	require.NoError(t, err)

	block, err := DecodeBlock(built.Bytes)
	require.NoError(t, err)
	require.Len(t, block.Datums(), 1)

	want := Blake2b256(datum)
	got, ok := block.Datums()[want]
	require.True(t, ok)
	require.NotNil(t, got.Constr())
}

func TestDecodeInlineDatumOutput(t *testing.T) {
	datum, err := cbor.Marshal(cbor.Tag{Number: 121, Content: []interface{}{uint64(1)}})
	require.NoError(t, err)

	built, err := BuildBlock(EraBabbage, 4, 10, []TxSpec{
		{Outputs: []OutputSpec{{Address: testAddr(0xee), Lovelace: 1, InlineDatum: datum}}},
	})
	require.NoError(t, err)

	block, err := DecodeBlock(built.Bytes)
	require.NoError(t, err)

	out := block.Txs[0].Produces()[0]
	require.NotNil(t, out.InlineDatum())
	require.Nil(t, out.DatumHash())
	require.Equal(t, uint64(0), out.InlineDatum().Constr().Tag)
}

func TestDecodeDatumHashOutput(t *testing.T) {
	h := hash32(0x12)
	built, err := BuildBlock(EraBabbage, 5, 11, []TxSpec{
		{Outputs: []OutputSpec{{Address: testAddr(0xef), Lovelace: 1, DatumHash: &h}}},
	})
	require.NoError(t, err)

	block, err := DecodeBlock(built.Bytes)
	require.NoError(t, err)

	out := block.Txs[0].Produces()[0]
	require.Nil(t, out.InlineDatum())
	require.NotNil(t, out.DatumHash())
	require.Equal(t, h, *out.DatumHash())
}

func TestDecodeOutputRoundTripsThroughStore(t *testing.T) {
	spec := OutputSpec{Address: testAddr(0x10), Lovelace: 77}
	raw, err := EncodeOutput(EraBabbage, spec)
	require.NoError(t, err)

	out, err := DecodeOutput(EraBabbage, raw)
	require.NoError(t, err)
	require.Equal(t, uint64(77), out.LovelaceAmount())
	require.Equal(t, raw, out.Cbor())

	again, err := DecodeOutput(EraBabbage, out.Cbor())
	require.NoError(t, err)
	require.Equal(t, out.LovelaceAmount(), again.LovelaceAmount())
}

func TestDecodeBlockMetadataLabels(t *testing.T) {
	built, err := BuildBlock(EraBabbage, 6, 12, []TxSpec{
		{
			Outputs:        []OutputSpec{{Address: testAddr(0x20), Lovelace: 1}},
			MetadataLabels: []uint64{721, 674},
		},
		{
			Outputs: []OutputSpec{{Address: testAddr(0x21), Lovelace: 1}},
		},
	})
	require.NoError(t, err)

	block, err := DecodeBlock(built.Bytes)
	require.NoError(t, err)

	require.Equal(t, []uint64{674, 721}, block.Txs[0].MetadataLabels())
	require.Empty(t, block.Txs[1].MetadataLabels())
}

func TestDecodeMetadataLabelEncodings(t *testing.T) {
	metadata := map[uint64]interface{}{674: "msg", 721: "nft"}

	// bare shelley metadata map
	bare := mustMarshal(t, metadata)
	require.Equal(t, []uint64{674, 721}, decodeMetadataLabels(bare))

	// shelley-ma [metadata, auxiliary_scripts]
	pair := mustMarshal(t, []interface{}{metadata, []interface{}{}})
	require.Equal(t, []uint64{674, 721}, decodeMetadataLabels(pair))

	// alonzo+ #6.259({0: metadata, ...})
	tagged := mustMarshal(t, cbor.Tag{Number: 259, Content: map[uint64]interface{}{0: metadata}})
	require.Equal(t, []uint64{674, 721}, decodeMetadataLabels(tagged))

	// structural misses read as "no labels"
	require.Empty(t, decodeMetadataLabels(mustMarshal(t, cbor.Tag{Number: 42, Content: metadata})))
	require.Empty(t, decodeMetadataLabels(mustMarshal(t, []interface{}{})))
	require.Empty(t, decodeMetadataLabels(mustMarshal(t, "nope")))
}

func TestDecodeBlockRejectsByron(t *testing.T) {
	wrapper, err := cbor.Marshal([]interface{}{uint64(0), []byte{0x80}})
	require.NoError(t, err)

	_, err = DecodeBlock(wrapper)
	require.ErrorIs(t, err, ErrUnsupportedEra)
}

func TestDecodeBlockRejectsGarbage(t *testing.T) {
	_, err := DecodeBlock([]byte{0x00})
	require.Error(t, err)

	_, err = DecodeBlock(nil)
	require.Error(t, err)
}
