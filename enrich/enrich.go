// Copyright 2022-2023, MLabs, Ltd.
// For license information, see https://github.com/mlabs-haskell/scrolls/blob/main/LICENSE

// Package enrich resolves every input of every transaction in a block into
// the full prior output, producing the block context downstream reducers
// read from.
package enrich

import (
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/pkg/errors"

	"github.com/mlabs-haskell/scrolls/bootstrap"
	"github.com/mlabs-haskell/scrolls/crosscut"
	"github.com/mlabs-haskell/scrolls/ledger"
	"github.com/mlabs-haskell/scrolls/model"
	"github.com/mlabs-haskell/scrolls/pipeline"
)

// Config selects the UTXO store backing the enricher.
type Config struct {
	Type string `koanf:"type"` // badger | memory
	Path string `koanf:"path"`
}

func (c *Config) Validate() error {
	switch c.Type {
	case "", "badger":
		if c.Path == "" {
			return errors.New("enrich: badger store needs a path")
		}
		return nil
	case "memory":
		return nil
	default:
		return errors.Errorf("enrich: unknown store type %q", c.Type)
	}
}

// Stage owns the enricher's ports and worker.
type Stage struct {
	input  pipeline.TwoPhaseInputPort[model.RawBlockPayload]
	output pipeline.OutputPort[model.EnrichedBlockPayload]
	worker *Worker
}

// NewStage builds the enricher around a store picked by config.
func NewStage(cfg Config, policy *crosscut.RuntimePolicy) *Stage {
	s := &Stage{}
	s.worker = &Worker{
		cfg:     cfg,
		policy:  policy,
		input:   &s.input,
		output:  &s.output,
		logger:  log.New("stage", "enrich"),
		blocks:  pipeline.NewCounter("enrich", "blocks"),
		inserts: pipeline.NewCounter("enrich", "inserts"),
		matches: pipeline.NewCounter("enrich", "matches"),
		misses:  pipeline.NewCounter("enrich", "misses"),
		tick:    pipeline.DefaultPolicy().TickTimeout,
	}
	return s
}

func (s *Stage) InputPort() *pipeline.TwoPhaseInputPort[model.RawBlockPayload] {
	return &s.input
}

func (s *Stage) OutputPort() *pipeline.OutputPort[model.EnrichedBlockPayload] {
	return &s.output
}

// SpawnInto registers the stage with the pipeline.
func (s *Stage) SpawnInto(p *bootstrap.Pipeline, policy pipeline.Policy) {
	s.worker.tick = policy.TickTimeout
	p.Spawn("enrich", s.worker, policy)
}

// Worker is the enrich stage loop.
type Worker struct {
	cfg    Config
	policy *crosscut.RuntimePolicy
	store  Store

	input  *pipeline.TwoPhaseInputPort[model.RawBlockPayload]
	output *pipeline.OutputPort[model.EnrichedBlockPayload]

	logger  log.Logger
	blocks  metrics.Counter
	inserts metrics.Counter
	matches metrics.Counter
	misses  metrics.Counter

	tick time.Duration
}

func (w *Worker) Bootstrap() error {
	switch w.cfg.Type {
	case "memory":
		w.store = NewMemStore()
	default:
		store, err := OpenBadgerStore(w.cfg.Path)
		if err != nil {
			return err
		}
		w.store = store
	}
	return nil
}

// CloseOutputs cascades end-of-stream to the reducer stage.
func (w *Worker) CloseOutputs() { w.output.Close() }

func (w *Worker) Teardown() error {
	if w.store == nil {
		return nil
	}
	err := w.store.Close()
	w.store = nil
	return err
}

func (w *Worker) Work() (pipeline.WorkOutcome, error) {
	msg, idle, err := w.input.RecvOrIdle(w.tick)
	if err != nil {
		return pipeline.WorkIdle, err
	}
	if idle {
		return pipeline.WorkIdle, nil
	}

	if msg.Payload.Rollback != nil {
		if err := w.output.Send(pipeline.NewMessage(model.EnrichedRollBack(*msg.Payload.Rollback))); err != nil {
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

	ctx, err := w.buildContext(block)
	if err != nil {
		return pipeline.WorkIdle, err
	}

	if err := w.output.Send(pipeline.NewMessage(model.EnrichedRollForward(msg.Payload.Block, ctx))); err != nil {
		return pipeline.WorkIdle, err
	}
	w.blocks.Inc(1)
	w.input.Commit()
	return pipeline.WorkPartial, nil
}

// buildContext stores the block's produced outputs, then resolves every
// consumed ref. Produced-then-consumed ordering lets transactions chain
// within a single block.
func (w *Worker) buildContext(block *ledger.Block) (*model.BlockContext, error) {
	for _, tx := range block.Txs {
		for idx, out := range tx.Produces() {
			if err := w.store.Insert(tx.ProducedRef(idx), out.Era(), out.Cbor()); err != nil {
				return nil, pipeline.ErrRestart(err)
			}
			w.inserts.Inc(1)
		}
	}

	ctx := model.NewBlockContext()
	var consumed []ledger.OutputRef
	for _, tx := range block.Txs {
		for _, ref := range tx.Consumes() {
			era, cbor, err := w.store.Resolve(ref)
			switch {
			case err == nil:
				ctx.ImportRefOutput(ref, era, cbor)
				consumed = append(consumed, ref)
				w.matches.Inc(1)
			case errors.Is(err, ErrNotFound):
				w.misses.Inc(1)
				if perr := w.policy.OnMissingUTxO(err); perr != nil {
					return nil, pipeline.ErrPanic(perr)
				}
			default:
				return nil, pipeline.ErrRestart(err)
			}
		}
	}

	for _, ref := range consumed {
		if err := w.store.Remove(ref); err != nil {
			return nil, pipeline.ErrRestart(err)
		}
	}
	return ctx, nil
}
