// Copyright 2022-2023, MLabs, Ltd.
// For license information, see https://github.com/mlabs-haskell/scrolls/blob/main/LICENSE

package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/ethereum/go-ethereum/metrics/prometheus"

	"github.com/mlabs-haskell/scrolls/bootstrap"
	"github.com/mlabs-haskell/scrolls/crosscut"
	"github.com/mlabs-haskell/scrolls/enrich"
	"github.com/mlabs-haskell/scrolls/pipeline"
	"github.com/mlabs-haskell/scrolls/reducers"
	"github.com/mlabs-haskell/scrolls/storage"
)

// Buffers are single digits on purpose: a slow store throttles reducers,
// which throttles the enricher, which throttles the source.
const (
	rawBlockBuffer  = 4
	enrichedBuffer  = 4
	commandBuffer   = 8
)

func runDaemon(cfg *ScrollsConfig, opts *Options) error {
	log.Info("starting scrolls",
		"chain", cfg.Chain.Name, "magic", cfg.Chain.NetworkMagic,
		"reducers", len(cfg.Reducers), "storage", cfg.Storage.Type)

	if opts.MetricsAddr != "" {
		go serveMetrics(opts.MetricsAddr)
	}

	storageBoot, err := cfg.Storage.Bootstrapper()
	if err != nil {
		return err
	}

	cursor := resumePoint(storageBoot)
	sourceBoot, err := cfg.Source.Bootstrapper(cursor, cfg.Intersect)
	if err != nil {
		return err
	}

	enrichStage := enrich.NewStage(cfg.Enrich, &cfg.Policy)
	reducerStage, err := reducers.NewStage(cfg.Reducers, &cfg.Policy)
	if err != nil {
		return err
	}

	pl := bootstrap.NewPipeline()
	pipeline.Connect(pl.Done(), sourceBoot.OutputPort(), enrichStage.InputPort(), rawBlockBuffer)
	pipeline.Connect(pl.Done(), enrichStage.OutputPort(), reducerStage.InputPort(), enrichedBuffer)
	pipeline.Connect(pl.Done(), reducerStage.OutputPort(), storageBoot.InputPort(), commandBuffer)

	policy := pipeline.DefaultPolicy()
	sourceBoot.SpawnInto(pl, policy)
	enrichStage.SpawnInto(pl, policy)
	reducerStage.SpawnInto(pl, policy)
	storageBoot.SpawnInto(pl, policy)

	stop := make(chan struct{})
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigc
		close(stop)
	}()

	return pl.Run(stop)
}

// resumePoint asks the sink where to pick up; an unreachable sink is fine
// here, its own stage will retry the connection during bootstrap.
func resumePoint(boot storage.Bootstrapper) *crosscut.PointArg {
	point, err := boot.Cursor().LastPoint()
	if err != nil {
		log.Warn("could not read cursor, starting from intersect", "err", err)
		return nil
	}
	if point != nil {
		log.Info("resuming from stored cursor", "point", point)
	}
	return point
}

func serveMetrics(addr string) {
	log.Info("serving metrics", "addr", addr)
	handler := prometheus.Handler(metrics.DefaultRegistry)
	if err := http.ListenAndServe(addr, handler); err != nil {
		log.Error("metrics server failed", "err", err)
	}
}
