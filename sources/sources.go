// Copyright 2022-2023, MLabs, Ltd.
// For license information, see https://github.com/mlabs-haskell/scrolls/blob/main/LICENSE

// Package sources feeds raw blocks into the pipeline. The production
// chain-sync network client is an external collaborator; what ships here is
// the file-backed replay source used for dry runs, backfills from block
// dumps, and end-to-end tests.
package sources

import (
	"github.com/pkg/errors"

	"github.com/mlabs-haskell/scrolls/bootstrap"
	"github.com/mlabs-haskell/scrolls/crosscut"
	"github.com/mlabs-haskell/scrolls/model"
	"github.com/mlabs-haskell/scrolls/pipeline"
)

// Config selects the block source.
type Config struct {
	Type string `koanf:"type"` // Replay
	Dir  string `koanf:"dir"`
}

// Bootstrapper is a block source ready to be wired and spawned.
type Bootstrapper interface {
	OutputPort() *pipeline.OutputPort[model.RawBlockPayload]
	SpawnInto(p *bootstrap.Pipeline, policy pipeline.Policy)
}

// Bootstrapper instantiates the configured source. The cursor and intersect
// tell a resuming source where to pick up; the replay source only logs the
// cursor and does not use the intersect.
func (c Config) Bootstrapper(cursor *crosscut.PointArg, intersect crosscut.IntersectConfig) (Bootstrapper, error) {
	switch c.Type {
	case "Replay":
		if c.Dir == "" {
			return nil, errors.New("replay source needs a dir")
		}
		return NewReplay(c.Dir, cursor), nil
	default:
		return nil, errors.Errorf("unknown source type %q", c.Type)
	}
}
