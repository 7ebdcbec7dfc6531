// Copyright 2022-2023, MLabs, Ltd.
// For license information, see https://github.com/mlabs-haskell/scrolls/blob/main/LICENSE

package reducers

import (
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"

	"github.com/mlabs-haskell/scrolls/bootstrap"
	"github.com/mlabs-haskell/scrolls/crosscut"
	"github.com/mlabs-haskell/scrolls/ledger"
	"github.com/mlabs-haskell/scrolls/model"
	"github.com/mlabs-haskell/scrolls/pipeline"
)

// Stage owns the reducer stage's ports and worker.
type Stage struct {
	input  pipeline.TwoPhaseInputPort[model.EnrichedBlockPayload]
	output pipeline.OutputPort[model.CRDTCommand]
	worker *Worker
}

// NewStage instantiates every configured reducer, in order.
func NewStage(configs []Config, policy *crosscut.RuntimePolicy) (*Stage, error) {
	reducers := make([]Reducer, 0, len(configs))
	for _, cfg := range configs {
		r, err := cfg.Plugin(policy)
		if err != nil {
			return nil, err
		}
		reducers = append(reducers, r)
	}
	s := &Stage{}
	s.worker = &Worker{
		reducers: reducers,
		policy:   policy,
		input:    &s.input,
		output:   &s.output,
		logger:   log.New("stage", "reducers"),
		blocks:   pipeline.NewCounter("reducers", "blocks"),
		tick:     pipeline.DefaultPolicy().TickTimeout,
	}
	return s, nil
}

func (s *Stage) InputPort() *pipeline.TwoPhaseInputPort[model.EnrichedBlockPayload] {
	return &s.input
}

func (s *Stage) OutputPort() *pipeline.OutputPort[model.CRDTCommand] {
	return &s.output
}

// SpawnInto registers the stage with the pipeline.
func (s *Stage) SpawnInto(p *bootstrap.Pipeline, policy pipeline.Policy) {
	s.worker.tick = policy.TickTimeout
	p.Spawn("reducers", s.worker, policy)
}

// Worker fans each enriched block out to the configured reducers, bracketed
// by BlockStarting and BlockFinished.
type Worker struct {
	reducers []Reducer
	policy   *crosscut.RuntimePolicy

	input  *pipeline.TwoPhaseInputPort[model.EnrichedBlockPayload]
	output *pipeline.OutputPort[model.CRDTCommand]

	logger log.Logger
	blocks metrics.Counter
	tick   time.Duration
}

func (w *Worker) Bootstrap() error { return nil }
func (w *Worker) Teardown() error  { return nil }

// CloseOutputs cascades end-of-stream to the storage stage.
func (w *Worker) CloseOutputs() { w.output.Close() }

func (w *Worker) Work() (pipeline.WorkOutcome, error) {
	msg, idle, err := w.input.RecvOrIdle(w.tick)
	if err != nil {
		return pipeline.WorkIdle, err
	}
	if idle {
		return pipeline.WorkIdle, nil
	}

	if msg.Payload.Rollback != nil {
		if err := sendCommand(w.output, model.RollBack{Point: *msg.Payload.Rollback}); err != nil {
			return pipeline.WorkIdle, err
		}
		w.input.Commit()
		return pipeline.WorkPartial, nil
	}

	block, err := ledger.DecodeBlock(msg.Payload.Block)
	if err != nil {
		if perr := w.policy.OnDecodeError(err); perr != nil {
			return pipeline.WorkIdle, pipeline.ErrPanic(perr)
		}
		w.logger.Warn("skipping undecodable block", "err", err)
		w.input.Commit()
		return pipeline.WorkPartial, nil
	}

	if err := sendCommand(w.output, model.BlockStartingFrom(block)); err != nil {
		return pipeline.WorkIdle, err
	}
	for _, r := range w.reducers {
		if err := r.ReduceBlock(block, msg.Payload.Context, w.output); err != nil {
			return pipeline.WorkIdle, err
		}
	}
	if err := sendCommand(w.output, model.BlockFinishedFrom(block)); err != nil {
		return pipeline.WorkIdle, err
	}

	w.blocks.Inc(1)
	w.input.Commit()
	return pipeline.WorkPartial, nil
}
