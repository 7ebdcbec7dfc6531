// Copyright 2022-2023, MLabs, Ltd.
// For license information, see https://github.com/mlabs-haskell/scrolls/blob/main/LICENSE

package storage

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"

	"github.com/mlabs-haskell/scrolls/bootstrap"
	"github.com/mlabs-haskell/scrolls/crosscut"
	"github.com/mlabs-haskell/scrolls/model"
	"github.com/mlabs-haskell/scrolls/pipeline"
)

// sharedPoint is the skip sink's cursor cell: written by the worker on
// BlockFinished, read by the cursor view.
type sharedPoint struct {
	mu sync.Mutex
	p  *crosscut.PointArg
}

func (s *sharedPoint) set(p crosscut.PointArg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.p = &p
}

func (s *sharedPoint) get() *crosscut.PointArg {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.p == nil {
		return nil
	}
	cp := *s.p
	return &cp
}

// Skip is the in-memory sink: it logs commands and tracks the cursor, and
// is used for dry runs and tests.
type Skip struct {
	input     pipeline.TwoPhaseInputPort[model.CRDTCommand]
	lastPoint *sharedPoint
	worker    *skipWorker
}

func NewSkip() *Skip {
	s := &Skip{lastPoint: &sharedPoint{}}
	s.worker = &skipWorker{
		input:     &s.input,
		lastPoint: s.lastPoint,
		logger:    log.New("stage", "storage.skip"),
		ops:       pipeline.NewCounter("storage", "ops"),
		tick:      pipeline.DefaultPolicy().TickTimeout,
	}
	return s
}

func (s *Skip) InputPort() *pipeline.TwoPhaseInputPort[model.CRDTCommand] {
	return &s.input
}

func (s *Skip) Cursor() Cursor {
	return skipCursor{lastPoint: s.lastPoint}
}

func (s *Skip) SpawnInto(p *bootstrap.Pipeline, policy pipeline.Policy) {
	s.worker.tick = policy.TickTimeout
	p.Spawn("storage", s.worker, policy)
}

type skipCursor struct {
	lastPoint *sharedPoint
}

func (c skipCursor) LastPoint() (*crosscut.PointArg, error) {
	return c.lastPoint.get(), nil
}

type skipWorker struct {
	input     *pipeline.TwoPhaseInputPort[model.CRDTCommand]
	lastPoint *sharedPoint
	logger    log.Logger
	ops       metrics.Counter
	tick      time.Duration
}

func (w *skipWorker) Bootstrap() error { return nil }
func (w *skipWorker) Teardown() error  { return nil }

func (w *skipWorker) Work() (pipeline.WorkOutcome, error) {
	msg, idle, err := w.input.RecvOrIdle(w.tick)
	if err != nil {
		return pipeline.WorkIdle, err
	}
	if idle {
		return pipeline.WorkIdle, nil
	}

	switch cmd := msg.Payload.(type) {
	case model.BlockStarting:
		w.logger.Debug("block starting", "point", cmd.Point)
	case model.VotingPowerChange:
		w.logger.Debug("voting power change",
			"address", cmd.Address, "policy", cmd.Policy, "delta", cmd.Delta, "point", cmd.Point)
	case model.VotingPowerCreated:
		w.logger.Debug("voting power created",
			"owner", cmd.Owner, "policy", cmd.Policy, "token", cmd.Token,
			"amount", cmd.Amount, "utxo", cmd.TxID.String(), "idx", cmd.TxIdx)
	case model.VotingPowerSpent:
		w.logger.Debug("voting power spent",
			"utxo", cmd.TxID.String(), "idx", cmd.TxIdx, "point", cmd.Point)
	case model.BlockFinished:
		w.logger.Debug("block finished", "point", cmd.Point)
		if !cmd.Point.IsOrigin() {
			w.lastPoint.set(crosscut.PointArgFrom(cmd.Point))
		}
	case model.RollBack:
		w.logger.Debug("rollback", "point", cmd.Point)
	}

	w.ops.Inc(1)
	w.input.Commit()
	return pipeline.WorkPartial, nil
}
