// Copyright 2022-2023, MLabs, Ltd.
// For license information, see https://github.com/mlabs-haskell/scrolls/blob/main/LICENSE

package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
)

// WorkOutcome reports what a single work invocation accomplished.
type WorkOutcome int

const (
	// WorkIdle means the tick timeout elapsed with no input.
	WorkIdle WorkOutcome = iota
	// WorkPartial means one unit of work was processed; call again.
	WorkPartial
	// WorkDone means the stage has exhausted its input for good.
	WorkDone
)

// Worker is one pipeline stage's behavior. Bootstrap is retried under the
// stage's bootstrap policy; Work runs in a loop; Teardown releases
// resources on restart and on exit.
type Worker interface {
	Bootstrap() error
	Work() (WorkOutcome, error)
	Teardown() error
}

// OutputCloser is implemented by workers with downstream ports; the runtime
// calls it when the stage ends for good, so end-of-stream cascades and the
// rest of the pipeline can drain and stop.
type OutputCloser interface {
	CloseOutputs()
}

// Policy is the per-stage runtime policy.
type Policy struct {
	TickTimeout    time.Duration
	BootstrapRetry RetryPolicy
	WorkRetry      RetryPolicy
}

// DefaultPolicy mirrors the stock stage discipline: ten-minute ticks,
// bounded bootstrap retries, unbounded short work retries.
func DefaultPolicy() Policy {
	return Policy{
		TickTimeout:    600 * time.Second,
		BootstrapRetry: DefaultBootstrapRetry(),
		WorkRetry:      DefaultWorkRetry(),
	}
}

// StagePhase is the externally visible state of a stage.
type StagePhase int32

const (
	PhaseBootstrap StagePhase = iota
	PhaseWorking
	PhaseTeardown
	PhaseEnded
	PhaseErrored
)

func (p StagePhase) String() string {
	switch p {
	case PhaseBootstrap:
		return "bootstrap"
	case PhaseWorking:
		return "working"
	case PhaseTeardown:
		return "teardown"
	case PhaseEnded:
		return "ended"
	default:
		return "errored"
	}
}

// Tether is the runtime's handle on a spawned stage: its goroutine, phase,
// and terminal error.
type Tether struct {
	name   string
	worker Worker
	policy Policy
	logger log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	phase atomic.Int32

	errMu sync.Mutex
	err   error

	restarts metrics.Counter
	idles    metrics.Counter
	units    metrics.Counter
}

// Spawn starts a stage goroutine under the given pipeline context. The
// returned tether is used by the supervisor to watch and stop the stage.
func Spawn(ctx context.Context, name string, w Worker, policy Policy) *Tether {
	stageCtx, cancel := context.WithCancel(ctx)
	t := &Tether{
		name:     name,
		worker:   w,
		policy:   policy,
		logger:   log.New("stage", name),
		ctx:      stageCtx,
		cancel:   cancel,
		done:     make(chan struct{}),
		restarts: NewCounter(name, "restarts"),
		idles:    NewCounter(name, "idle_ticks"),
		units:    NewCounter(name, "work_units"),
	}
	go t.run()
	return t
}

func (t *Tether) Name() string { return t.name }

func (t *Tether) Phase() StagePhase {
	return StagePhase(t.phase.Load())
}

// Err is the terminal error, set once the stage reaches PhaseErrored.
func (t *Tether) Err() error {
	t.errMu.Lock()
	defer t.errMu.Unlock()
	return t.err
}

// Stop asks the stage to exit between work invocations.
func (t *Tether) Stop() { t.cancel() }

// Wait blocks until the stage goroutine has exited.
func (t *Tether) Wait() { <-t.done }

func (t *Tether) fail(err error) {
	t.errMu.Lock()
	t.err = err
	t.errMu.Unlock()
	t.phase.Store(int32(PhaseErrored))
}

func (t *Tether) run() {
	defer close(t.done)

	workBackoff := t.policy.WorkRetry.backoff(t.ctx)

	for {
		t.phase.Store(int32(PhaseBootstrap))
		err := t.policy.BootstrapRetry.Retry(t.ctx, func() error {
			if err := t.worker.Bootstrap(); err != nil {
				t.logger.Warn("bootstrap attempt failed", "err", err)
				return err
			}
			return nil
		})
		if err != nil {
			if t.ctx.Err() != nil {
				t.phase.Store(int32(PhaseEnded))
			} else {
				t.logger.Error("bootstrap retries exhausted", "err", err)
				t.fail(err)
			}
			t.closeOutputs()
			return
		}

		restart := t.workLoop(workBackoff)
		t.teardown()
		if !restart {
			t.closeOutputs()
			return
		}
	}
}

func (t *Tether) closeOutputs() {
	if closer, ok := t.worker.(OutputCloser); ok {
		closer.CloseOutputs()
	}
}

// workLoop runs work until the stage ends, errors out, or asks for a
// restart. It reports whether the stage should re-bootstrap.
func (t *Tether) workLoop(workBackoff backoff.BackOff) bool {
	t.phase.Store(int32(PhaseWorking))
	for {
		if t.ctx.Err() != nil {
			t.phase.Store(int32(PhaseEnded))
			return false
		}

		outcome, err := t.worker.Work()
		if err != nil {
			switch Kind(err) {
			case KindShutdown:
				t.logger.Debug("work stopped", "reason", err)
				t.phase.Store(int32(PhaseEnded))
				return false
			case KindRestart:
				wait := workBackoff.NextBackOff()
				t.restarts.Inc(1)
				t.logger.Warn("restarting stage", "err", err, "backoff", wait)
				select {
				case <-time.After(wait):
				case <-t.ctx.Done():
				}
				return true
			default:
				t.logger.Error("stage panic, operator intervention required", "err", err)
				t.fail(err)
				return false
			}
		}

		switch outcome {
		case WorkIdle:
			t.idles.Inc(1)
		case WorkPartial:
			t.units.Inc(1)
			workBackoff.Reset()
		case WorkDone:
			t.logger.Info("stage work complete")
			t.phase.Store(int32(PhaseEnded))
			return false
		}
	}
}

// teardown releases worker resources. It leaves the phase alone: the work
// loop has already stored the terminal phase (or the loop restarts into
// PhaseBootstrap).
func (t *Tether) teardown() {
	if err := t.worker.Teardown(); err != nil {
		t.logger.Warn("teardown failed", "err", err)
	}
}
