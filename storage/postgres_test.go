// Copyright 2022-2023, MLabs, Ltd.
// For license information, see https://github.com/mlabs-haskell/scrolls/blob/main/LICENSE

package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mlabs-haskell/scrolls/ledger"
	"github.com/mlabs-haskell/scrolls/model"
	"github.com/mlabs-haskell/scrolls/pipeline"
)

// The durable sink's happy path needs a live server; what is testable in
// isolation is the command-protocol checking that guards the schema.

func TestPostgresRejectsMutationsAtOrigin(t *testing.T) {
	w := NewPostgres("postgres://ignored").worker

	err := w.apply(model.VotingPowerCreated{Point: model.Origin})
	require.Equal(t, pipeline.KindPanic, pipeline.Kind(err))

	err = w.apply(model.VotingPowerSpent{Point: model.Origin})
	require.Equal(t, pipeline.KindPanic, pipeline.Kind(err))
}

func TestPostgresRejectsCoarseChange(t *testing.T) {
	w := NewPostgres("postgres://ignored").worker
	err := w.apply(model.VotingPowerChange{Policy: "p", Delta: 1})
	require.Equal(t, pipeline.KindPanic, pipeline.Kind(err))
}

func TestPostgresDropsOrphanedTailWhileResuming(t *testing.T) {
	w := NewPostgres("postgres://ignored").worker
	require.True(t, w.resuming)

	// a redelivered mid-block command right after bootstrap is dropped,
	// not treated as a protocol violation
	err := w.apply(model.VotingPowerSpent{
		TxID:  ledger.Hash32{0x01},
		Point: model.SpecificPoint(5, []byte{0x01}),
	})
	require.NoError(t, err)

	err = w.apply(model.BlockFinished{Point: model.SpecificPoint(5, []byte{0x01})})
	require.NoError(t, err)
}

func TestPostgresSchemaShape(t *testing.T) {
	require.Contains(t, pgSchema, "REFERENCES cursor ON DELETE CASCADE")
	require.Contains(t, pgSchema, "spent_slot   BIGINT NULL")
	for _, col := range []string{"spending", "staking", "policy", "token", "tx_id"} {
		require.True(t, strings.Contains(pgSchema, col), "schema misses %s", col)
	}
}

func TestStorageConfigSelection(t *testing.T) {
	_, err := Config{Type: "Skip"}.Bootstrapper()
	require.NoError(t, err)

	_, err = Config{Type: "Postgres", ConnectionParams: "postgres://x"}.Bootstrapper()
	require.NoError(t, err)

	_, err = Config{Type: "Postgres"}.Bootstrapper()
	require.Error(t, err)

	_, err = Config{Type: "Redis", URL: "redis://localhost:6379"}.Bootstrapper()
	require.NoError(t, err)

	_, err = Config{Type: "Redis"}.Bootstrapper()
	require.Error(t, err)

	_, err = Config{Type: "Elastic"}.Bootstrapper()
	require.Error(t, err)
}
