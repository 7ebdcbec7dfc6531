// Copyright 2022-2023, MLabs, Ltd.
// For license information, see https://github.com/mlabs-haskell/scrolls/blob/main/LICENSE

package pipeline

import "github.com/ethereum/go-ethereum/metrics"

// NewCounter registers a stage-scoped counter on the default registry.
// Names come out as scrolls/<stage>/<name>.
func NewCounter(stage, name string) metrics.Counter {
	return metrics.NewRegisteredCounter("scrolls/"+stage+"/"+name, nil)
}
