// Copyright 2022-2023, MLabs, Ltd.
// For license information, see https://github.com/mlabs-haskell/scrolls/blob/main/LICENSE

package sources

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"

	"github.com/mlabs-haskell/scrolls/bootstrap"
	"github.com/mlabs-haskell/scrolls/crosscut"
	"github.com/mlabs-haskell/scrolls/model"
	"github.com/mlabs-haskell/scrolls/pipeline"
)

// Replay reads CBOR block files from a directory in lexical order and rolls
// them forward, then closes its output so the pipeline can drain and end.
type Replay struct {
	output pipeline.OutputPort[model.RawBlockPayload]
	worker *replayWorker
}

func NewReplay(dir string, cursor *crosscut.PointArg) *Replay {
	r := &Replay{}
	r.worker = &replayWorker{
		dir:    dir,
		cursor: cursor,
		output: &r.output,
		logger: log.New("stage", "source.replay"),
		blocks: pipeline.NewCounter("source", "blocks"),
	}
	return r
}

func (r *Replay) OutputPort() *pipeline.OutputPort[model.RawBlockPayload] {
	return &r.output
}

func (r *Replay) SpawnInto(p *bootstrap.Pipeline, policy pipeline.Policy) {
	p.Spawn("source", r.worker, policy)
}

type replayWorker struct {
	dir    string
	cursor *crosscut.PointArg
	files  []string
	next   int

	output *pipeline.OutputPort[model.RawBlockPayload]
	logger log.Logger
	blocks metrics.Counter
}

func (w *replayWorker) Bootstrap() error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return err
	}
	w.files = w.files[:0]
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		w.files = append(w.files, filepath.Join(w.dir, e.Name()))
	}
	sort.Strings(w.files)
	w.next = 0
	if w.cursor != nil {
		w.logger.Info("replaying over existing store", "cursor", w.cursor)
	}
	w.logger.Info("replay source ready", "blocks", len(w.files))
	return nil
}

func (w *replayWorker) Teardown() error { return nil }

// CloseOutputs cascades end-of-stream once the directory is exhausted.
func (w *replayWorker) CloseOutputs() { w.output.Close() }

func (w *replayWorker) Work() (pipeline.WorkOutcome, error) {
	if w.next >= len(w.files) {
		return pipeline.WorkDone, nil
	}

	raw, err := os.ReadFile(w.files[w.next])
	if err != nil {
		return pipeline.WorkIdle, pipeline.ErrRestart(err)
	}
	if err := w.output.Send(pipeline.NewMessage(model.RollForwardPayload(raw))); err != nil {
		return pipeline.WorkIdle, err
	}
	w.next++
	w.blocks.Inc(1)
	return pipeline.WorkPartial, nil
}
