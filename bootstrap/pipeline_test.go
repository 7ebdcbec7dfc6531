// Copyright 2022-2023, MLabs, Ltd.
// For license information, see https://github.com/mlabs-haskell/scrolls/blob/main/LICENSE

package bootstrap

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/mlabs-haskell/scrolls/pipeline"
)

type stubWorker struct {
	work func() (pipeline.WorkOutcome, error)
}

func (stubWorker) Bootstrap() error { return nil }
func (stubWorker) Teardown() error  { return nil }
func (w stubWorker) Work() (pipeline.WorkOutcome, error) {
	return w.work()
}

func quickPolicy() pipeline.Policy {
	p := pipeline.DefaultPolicy()
	p.TickTimeout = 10 * time.Millisecond
	p.BootstrapRetry.BackoffUnit = time.Millisecond
	p.WorkRetry.BackoffUnit = time.Millisecond
	return p
}

func TestRunReturnsWhenAllStagesEnd(t *testing.T) {
	pl := NewPipeline()
	pl.Spawn("a", stubWorker{work: func() (pipeline.WorkOutcome, error) {
		return pipeline.WorkDone, nil
	}}, quickPolicy())
	pl.Spawn("b", stubWorker{work: func() (pipeline.WorkOutcome, error) {
		return pipeline.WorkDone, nil
	}}, quickPolicy())

	require.NoError(t, pl.Run(make(chan struct{})))
}

func TestRunSurfacesStageFailure(t *testing.T) {
	boom := errors.New("corrupt state")
	pl := NewPipeline()
	pl.Spawn("sick", stubWorker{work: func() (pipeline.WorkOutcome, error) {
		return pipeline.WorkIdle, pipeline.ErrPanic(boom)
	}}, quickPolicy())
	pl.Spawn("healthy", stubWorker{work: func() (pipeline.WorkOutcome, error) {
		time.Sleep(time.Millisecond)
		return pipeline.WorkIdle, nil
	}}, quickPolicy())

	err := pl.Run(make(chan struct{}))
	require.ErrorIs(t, err, boom)
	require.Contains(t, err.Error(), "sick")
}

func TestRunHonorsStopSignal(t *testing.T) {
	pl := NewPipeline()
	pl.Spawn("forever", stubWorker{work: func() (pipeline.WorkOutcome, error) {
		time.Sleep(time.Millisecond)
		return pipeline.WorkIdle, nil
	}}, quickPolicy())

	stop := make(chan struct{})
	go func() {
		time.Sleep(20 * time.Millisecond)
		close(stop)
	}()

	done := make(chan error, 1)
	go func() { done <- pl.Run(stop) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not stop")
	}
}
