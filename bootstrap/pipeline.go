// Copyright 2022-2023, MLabs, Ltd.
// For license information, see https://github.com/mlabs-haskell/scrolls/blob/main/LICENSE

// Package bootstrap assembles the stage pipeline and supervises it until
// shutdown or failure.
package bootstrap

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"

	"github.com/mlabs-haskell/scrolls/pipeline"
)

// Pipeline owns the stage tethers and the shared shutdown signal every port
// listens on.
type Pipeline struct {
	ctx     context.Context
	cancel  context.CancelFunc
	tethers []*pipeline.Tether
	logger  log.Logger
}

func NewPipeline() *Pipeline {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		ctx:    ctx,
		cancel: cancel,
		logger: log.New("component", "pipeline"),
	}
}

// Done is the shutdown signal handed to pipeline.Connect.
func (p *Pipeline) Done() <-chan struct{} { return p.ctx.Done() }

// Spawn starts a stage and tracks its tether.
func (p *Pipeline) Spawn(name string, w pipeline.Worker, policy pipeline.Policy) *pipeline.Tether {
	t := pipeline.Spawn(p.ctx, name, w, policy)
	p.tethers = append(p.tethers, t)
	p.logger.Info("stage spawned", "name", name)
	return t
}

// Shutdown stops every stage and waits for the goroutines to exit.
func (p *Pipeline) Shutdown() {
	p.cancel()
	for _, t := range p.tethers {
		t.Stop()
	}
	for _, t := range p.tethers {
		t.Wait()
	}
}

// Run supervises the stages until one errors, all end, or stop fires.
// A stage in PhaseErrored halts the whole pipeline with its error.
func (p *Pipeline) Run(stop <-chan struct{}) error {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			p.logger.Info("shutdown requested")
			p.Shutdown()
			return nil
		case <-ticker.C:
			ended := 0
			for _, t := range p.tethers {
				switch t.Phase() {
				case pipeline.PhaseErrored:
					err := errors.Wrapf(t.Err(), "stage %s halted", t.Name())
					p.logger.Error("pipeline stopping", "stage", t.Name(), "err", t.Err())
					p.Shutdown()
					return err
				case pipeline.PhaseEnded:
					ended++
				}
			}
			if ended == len(p.tethers) && len(p.tethers) > 0 {
				p.logger.Info("all stages ended")
				p.Shutdown()
				return nil
			}
		}
	}
}
