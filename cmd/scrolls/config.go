// Copyright 2022-2023, MLabs, Ltd.
// For license information, see https://github.com/mlabs-haskell/scrolls/blob/main/LICENSE

package main

import (
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/pkg/errors"
	flag "github.com/spf13/pflag"

	"github.com/mlabs-haskell/scrolls/crosscut"
	"github.com/mlabs-haskell/scrolls/enrich"
	"github.com/mlabs-haskell/scrolls/reducers"
	"github.com/mlabs-haskell/scrolls/sources"
	"github.com/mlabs-haskell/scrolls/storage"
)

// ScrollsConfig is the single declarative document driving the daemon: one
// source, one enricher, an ordered reducer list, one storage sink.
type ScrollsConfig struct {
	Source    sources.Config              `koanf:"source"`
	Enrich    enrich.Config               `koanf:"enrich"`
	Reducers  []reducers.Config           `koanf:"reducers"`
	Storage   storage.Config              `koanf:"storage"`
	Policy    crosscut.RuntimePolicy      `koanf:"policy"`
	Intersect crosscut.IntersectConfig    `koanf:"intersect"`
	Chain     crosscut.ChainWellKnownInfo `koanf:"chain"`
}

// Options are the process-level knobs that stay out of the config document.
type Options struct {
	LogLevel    string
	MetricsAddr string
}

// ParseScrolls loads the YAML configuration and applies flag overrides on
// top of it.
func ParseScrolls(args []string) (*ScrollsConfig, *Options, error) {
	f := flag.NewFlagSet("scrolls", flag.ContinueOnError)
	configPath := f.String("config", "scrolls.yaml", "path to the daemon configuration document")
	logLevel := f.String("log-level", "info", "log level: trace|debug|info|warn|error")
	metricsAddr := f.String("metrics-addr", "", "address to expose metrics on (empty disables)")
	if err := f.Parse(args); err != nil {
		return nil, nil, err
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(*configPath), yaml.Parser()); err != nil {
		return nil, nil, errors.Wrapf(err, "loading config %s", *configPath)
	}
	if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
		return nil, nil, err
	}

	var cfg ScrollsConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, nil, errors.Wrap(err, "unmarshaling config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	opts := &Options{
		LogLevel:    *logLevel,
		MetricsAddr: *metricsAddr,
	}
	return &cfg, opts, nil
}

func (c *ScrollsConfig) Validate() error {
	if len(c.Reducers) == 0 {
		return errors.New("at least one reducer must be configured")
	}
	if err := c.Policy.Validate(); err != nil {
		return err
	}
	if err := c.Intersect.Validate(); err != nil {
		return err
	}
	if err := c.Enrich.Validate(); err != nil {
		return err
	}
	if c.Chain.Name != "" && c.Chain.NetworkMagic == 0 {
		known, err := crosscut.WellKnownChain(c.Chain.Name)
		if err != nil {
			return err
		}
		c.Chain = known
	}
	return nil
}
