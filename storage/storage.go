// Copyright 2022-2023, MLabs, Ltd.
// For license information, see https://github.com/mlabs-haskell/scrolls/blob/main/LICENSE

// Package storage hosts the terminal consumers of the CRDT command stream.
package storage

import (
	"github.com/pkg/errors"

	"github.com/mlabs-haskell/scrolls/bootstrap"
	"github.com/mlabs-haskell/scrolls/crosscut"
	"github.com/mlabs-haskell/scrolls/model"
	"github.com/mlabs-haskell/scrolls/pipeline"
)

// Config selects and parameterizes the storage variant.
type Config struct {
	Type             string `koanf:"type"` // Skip | Postgres | Redis
	ConnectionParams string `koanf:"connection_params"`
	URL              string `koanf:"url"`
}

// Bootstrapper is one storage variant ready to be wired and spawned.
type Bootstrapper interface {
	InputPort() *pipeline.TwoPhaseInputPort[model.CRDTCommand]
	Cursor() Cursor
	SpawnInto(p *bootstrap.Pipeline, policy pipeline.Policy)
}

// Cursor reads the last fully applied point, used by the chain source to
// resume. A nil point with a nil error means the store is empty.
type Cursor interface {
	LastPoint() (*crosscut.PointArg, error)
}

// Bootstrapper instantiates the configured variant.
func (c Config) Bootstrapper() (Bootstrapper, error) {
	switch c.Type {
	case "Skip":
		return NewSkip(), nil
	case "Postgres":
		if c.ConnectionParams == "" {
			return nil, errors.New("postgres storage needs connection_params")
		}
		return NewPostgres(c.ConnectionParams), nil
	case "Redis":
		if c.URL == "" {
			return nil, errors.New("redis storage needs a url")
		}
		return NewRedis(c.URL), nil
	default:
		return nil, errors.Errorf("unknown storage type %q", c.Type)
	}
}
