// Copyright 2022-2023, MLabs, Ltd.
// For license information, see https://github.com/mlabs-haskell/scrolls/blob/main/LICENSE

package storage

import (
	"database/sql"
	"encoding/hex"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/mlabs-haskell/scrolls/bootstrap"
	"github.com/mlabs-haskell/scrolls/crosscut"
	"github.com/mlabs-haskell/scrolls/model"
	"github.com/mlabs-haskell/scrolls/pipeline"
)

// The cursor table doubles as the commit marker: deleting rows newer than a
// rollback point cascades away every voting_power row created after it.
const pgSchema = `
CREATE TABLE IF NOT EXISTS cursor (
    slot   BIGINT NOT NULL,
    hash   TEXT NOT NULL,
    PRIMARY KEY (slot)
);

CREATE TABLE IF NOT EXISTS voting_power (
    id           SERIAL PRIMARY KEY,
    spending     TEXT NOT NULL,
    staking      TEXT NOT NULL,
    policy       TEXT NOT NULL,
    token        TEXT NOT NULL,
    amount       BIGINT NOT NULL,
    created_slot BIGINT NOT NULL REFERENCES cursor ON DELETE CASCADE,
    tx_id        TEXT NOT NULL,
    tx_idx       BIGINT NOT NULL,
    spent_slot   BIGINT NULL
);

CREATE INDEX IF NOT EXISTS voting_power_spending_idx ON voting_power (spending);
CREATE INDEX IF NOT EXISTS voting_power_staking_idx ON voting_power (staking);
CREATE INDEX IF NOT EXISTS voting_power_policy_idx ON voting_power (policy);
CREATE INDEX IF NOT EXISTS voting_power_token_idx ON voting_power (token);
CREATE INDEX IF NOT EXISTS voting_power_utxo_idx ON voting_power (tx_id, tx_idx);
`

// Postgres is the durable relational sink.
type Postgres struct {
	connStr string
	input   pipeline.TwoPhaseInputPort[model.CRDTCommand]
	worker  *pgWorker
}

func NewPostgres(connStr string) *Postgres {
	p := &Postgres{connStr: connStr}
	p.worker = &pgWorker{
		connStr:  connStr,
		input:    &p.input,
		logger:   log.New("stage", "storage.postgres"),
		ops:      pipeline.NewCounter("storage", "ops"),
		tick:     pipeline.DefaultPolicy().TickTimeout,
		resuming: true,
	}
	return p
}

func (p *Postgres) InputPort() *pipeline.TwoPhaseInputPort[model.CRDTCommand] {
	return &p.input
}

func (p *Postgres) Cursor() Cursor {
	return pgCursor{connStr: p.connStr}
}

func (p *Postgres) SpawnInto(pl *bootstrap.Pipeline, policy pipeline.Policy) {
	p.worker.tick = policy.TickTimeout
	pl.Spawn("storage", p.worker, policy)
}

type pgCursor struct {
	connStr string
}

func (c pgCursor) LastPoint() (*crosscut.PointArg, error) {
	db, err := sql.Open("postgres", c.connStr)
	if err != nil {
		return nil, errors.Wrap(err, "opening cursor connection")
	}
	defer db.Close()

	var slot int64
	var hash string
	err = db.QueryRow("SELECT slot, hash FROM cursor ORDER BY slot DESC LIMIT 1").Scan(&slot, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading cursor")
	}
	return &crosscut.PointArg{Slot: uint64(slot), Hash: hash}, nil
}

type pgWorker struct {
	connStr string
	db      *sql.DB
	tx      *sql.Tx

	// resuming is set from bootstrap until the first block boundary; it
	// marks the window where a mid-block redelivery can legally arrive
	// with no open transaction.
	resuming bool

	input  *pipeline.TwoPhaseInputPort[model.CRDTCommand]
	logger log.Logger
	ops    metrics.Counter
	tick   time.Duration
}

func (w *pgWorker) Bootstrap() error {
	db, err := sql.Open("postgres", w.connStr)
	if err != nil {
		return err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return err
	}
	if _, err := db.Exec(pgSchema); err != nil {
		db.Close()
		return err
	}
	w.db = db
	w.resuming = true
	return nil
}

func (w *pgWorker) Teardown() error {
	if w.tx != nil {
		if err := w.tx.Rollback(); err != nil {
			w.logger.Warn("rolling back open block transaction", "err", err)
		}
		w.tx = nil
	}
	if w.db != nil {
		err := w.db.Close()
		w.db = nil
		return err
	}
	return nil
}

func (w *pgWorker) Work() (pipeline.WorkOutcome, error) {
	msg, idle, err := w.input.RecvOrIdle(w.tick)
	if err != nil {
		return pipeline.WorkIdle, err
	}
	if idle {
		return pipeline.WorkIdle, nil
	}

	if err := w.apply(msg.Payload); err != nil {
		return pipeline.WorkIdle, err
	}

	w.ops.Inc(1)
	w.input.Commit()
	return pipeline.WorkPartial, nil
}

func (w *pgWorker) apply(cmd model.CRDTCommand) error {
	switch c := cmd.(type) {
	case model.BlockStarting:
		return w.blockStarting(c)
	case model.VotingPowerCreated:
		return w.votingPowerCreated(c)
	case model.VotingPowerSpent:
		return w.votingPowerSpent(c)
	case model.BlockFinished:
		return w.blockFinished(c)
	case model.RollBack:
		return w.rollBack(c)
	case model.VotingPowerChange:
		// The per-UTXO schema has no home for coarse deltas; reducers in
		// this daemon never emit them.
		return pipeline.ErrPanic(errors.Errorf("coarse command not representable: %s", c))
	default:
		return pipeline.ErrPanic(errors.Errorf("unknown command %T", cmd))
	}
}

// blockStarting opens the per-block database transaction. The cursor row is
// inserted up front; ON CONFLICT keeps redelivered blocks idempotent.
func (w *pgWorker) blockStarting(c model.BlockStarting) error {
	if w.tx != nil {
		return pipeline.ErrPanic(errors.Errorf("block starting %s with open block transaction", c.Point))
	}
	tx, err := w.db.Begin()
	if err != nil {
		return pipeline.ErrRestart(err)
	}
	w.tx = tx
	w.resuming = false

	if c.Point.IsOrigin() {
		return nil
	}
	_, err = tx.Exec(
		"INSERT INTO cursor (slot, hash) VALUES ($1, $2) ON CONFLICT (slot) DO NOTHING",
		int64(c.Point.Slot), c.Point.HashHex(),
	)
	if err != nil {
		return w.abort(err)
	}
	return nil
}

func (w *pgWorker) votingPowerCreated(c model.VotingPowerCreated) error {
	if c.Point.IsOrigin() {
		return pipeline.ErrPanic(errors.New("voting power created at origin"))
	}
	if w.tx == nil {
		return w.orphaned(c)
	}
	staking := ""
	if c.Owner.HasDelegation() {
		staking = c.Owner.DelegationHash.String()
	}
	_, err := w.tx.Exec(
		`INSERT INTO voting_power
		   (spending, staking, policy, token, amount, created_slot, tx_id, tx_idx, spent_slot)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULL)`,
		c.Owner.PaymentHash.String(),
		staking,
		c.Policy,
		hex.EncodeToString(c.Token),
		int64(c.Amount),
		int64(c.Point.Slot),
		c.TxID.String(),
		int64(c.TxIdx),
	)
	if err != nil {
		return w.abort(err)
	}
	return nil
}

func (w *pgWorker) votingPowerSpent(c model.VotingPowerSpent) error {
	if c.Point.IsOrigin() {
		return pipeline.ErrPanic(errors.New("voting power spent at origin"))
	}
	if w.tx == nil {
		return w.orphaned(c)
	}
	res, err := w.tx.Exec(
		"UPDATE voting_power SET spent_slot = $1 WHERE tx_id = $2 AND tx_idx = $3",
		int64(c.Point.Slot), c.TxID.String(), int64(c.TxIdx),
	)
	if err != nil {
		return w.abort(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		w.logger.Debug("spend without prior creation", "utxo", c.TxID.String(), "idx", c.TxIdx)
	}
	return nil
}

func (w *pgWorker) blockFinished(c model.BlockFinished) error {
	if w.tx == nil {
		return w.orphaned(c)
	}
	err := w.tx.Commit()
	w.tx = nil
	if err != nil {
		return pipeline.ErrRestart(err)
	}
	return nil
}

// rollBack discards all effects strictly after the point: dropping cursor
// rows cascades away the voting power created after it, and the spent-slot
// reset undoes later spends of older rows.
func (w *pgWorker) rollBack(c model.RollBack) error {
	if w.tx != nil {
		return pipeline.ErrPanic(errors.Errorf("rollback %s interleaved with open block", c.Point))
	}
	tx, err := w.db.Begin()
	if err != nil {
		return pipeline.ErrRestart(err)
	}
	slot := int64(c.Point.Slot)
	if c.Point.IsOrigin() {
		slot = -1
	}
	if _, err := tx.Exec("DELETE FROM cursor WHERE slot > $1", slot); err != nil {
		tx.Rollback()
		return pipeline.ErrRestart(err)
	}
	if _, err := tx.Exec("UPDATE voting_power SET spent_slot = NULL WHERE spent_slot > $1", slot); err != nil {
		tx.Rollback()
		return pipeline.ErrRestart(err)
	}
	if err := tx.Commit(); err != nil {
		return pipeline.ErrRestart(err)
	}
	w.resuming = false
	return nil
}

// orphaned handles a command arriving with no open block transaction.
// Right after (re)bootstrap this is the redelivered tail of a block whose
// transaction died with the previous connection: the block has no cursor
// row, so it will be re-served once the source resumes from the cursor.
// Outside that window it is a protocol violation.
func (w *pgWorker) orphaned(cmd model.CRDTCommand) error {
	if w.resuming {
		w.logger.Warn("dropping command from interrupted block; will be replayed from cursor", "cmd", cmd)
		return nil
	}
	return pipeline.ErrPanic(errors.Errorf("command outside block transaction: %s", cmd))
}

// abort classifies a statement failure: the open block transaction is
// rolled back and the stage restarts, so the whole block is redelivered or
// re-served from the cursor.
func (w *pgWorker) abort(err error) error {
	if w.tx != nil {
		w.tx.Rollback()
		w.tx = nil
	}
	return pipeline.ErrRestart(err)
}
