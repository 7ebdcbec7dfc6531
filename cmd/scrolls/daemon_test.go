// Copyright 2022-2023, MLabs, Ltd.
// For license information, see https://github.com/mlabs-haskell/scrolls/blob/main/LICENSE

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mlabs-haskell/scrolls/bootstrap"
	"github.com/mlabs-haskell/scrolls/crosscut"
	"github.com/mlabs-haskell/scrolls/enrich"
	"github.com/mlabs-haskell/scrolls/ledger"
	"github.com/mlabs-haskell/scrolls/pipeline"
	"github.com/mlabs-haskell/scrolls/reducers"
	"github.com/mlabs-haskell/scrolls/sources"
	"github.com/mlabs-haskell/scrolls/storage"
)

func writeBlockFiles(t *testing.T, dir string, blocks ...*ledger.BuiltBlock) {
	t.Helper()
	for i, b := range blocks {
		name := filepath.Join(dir, fmt.Sprintf("%03d.cbor", i))
		require.NoError(t, os.WriteFile(name, b.Bytes, 0o644))
	}
}

// The full pipeline: replay source, memory enrichment, one reducer, skip
// sink. Three chained blocks move one payment along; the cursor must land
// on the last block.
func TestPipelineEndToEnd(t *testing.T) {
	addr := func(b byte) ledger.ShelleyAddress {
		return ledger.NewShelleyAddress(ledger.NetworkMainnet, ledger.Hash28{b}, nil)
	}

	b1, err := ledger.BuildBlock(ledger.EraBabbage, 1, 100, []ledger.TxSpec{
		{Outputs: []ledger.OutputSpec{{Address: addr(0x01).Bytes(), Lovelace: 10}}},
	})
	require.NoError(t, err)

	b2, err := ledger.BuildBlock(ledger.EraBabbage, 2, 101, []ledger.TxSpec{
		{
			Inputs:  []ledger.OutputRef{{Hash: b1.TxHashes[0], Index: 0}},
			Outputs: []ledger.OutputSpec{{Address: addr(0x02).Bytes(), Lovelace: 10}},
		},
	})
	require.NoError(t, err)

	b3, err := ledger.BuildBlock(ledger.EraBabbage, 3, 102, []ledger.TxSpec{
		{
			Inputs:  []ledger.OutputRef{{Hash: b2.TxHashes[0], Index: 0}},
			Outputs: []ledger.OutputSpec{{Address: addr(0x03).Bytes(), Lovelace: 10}},
		},
	})
	require.NoError(t, err)

	dir := t.TempDir()
	writeBlockFiles(t, dir, b1, b2, b3)

	policy := crosscut.DefaultPolicy()
	sink := storage.NewSkip()
	source := sources.NewReplay(dir, nil)
	enrichStage := enrich.NewStage(enrich.Config{Type: "memory"}, &policy)
	reducerStage, err := reducers.NewStage([]reducers.Config{
		{Type: "BalanceByAddress"},
	}, &policy)
	require.NoError(t, err)

	pl := bootstrap.NewPipeline()
	pipeline.Connect(pl.Done(), source.OutputPort(), enrichStage.InputPort(), 4)
	pipeline.Connect(pl.Done(), enrichStage.OutputPort(), reducerStage.InputPort(), 4)
	pipeline.Connect(pl.Done(), reducerStage.OutputPort(), sink.InputPort(), 8)

	stagePolicy := pipeline.DefaultPolicy()
	stagePolicy.TickTimeout = 200 * time.Millisecond // keeps an idle drain short

	source.SpawnInto(pl, stagePolicy)
	enrichStage.SpawnInto(pl, stagePolicy)
	reducerStage.SpawnInto(pl, stagePolicy)
	sink.SpawnInto(pl, stagePolicy)

	require.NoError(t, pl.Run(make(chan struct{})))

	cursor, err := sink.Cursor().LastPoint()
	require.NoError(t, err)
	require.NotNil(t, cursor)
	require.Equal(t, uint64(102), cursor.Slot)
	require.Equal(t, b3.Hash.String(), cursor.Hash)
}
