package harness

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/sarchlab/mdpsim/timing/config"
	"github.com/sarchlab/mdpsim/trace"
)

// Grid expands the cross product of window sizes, store resolve latencies
// and predictor table sizes on top of base. Combinations rejected by
// Validate are skipped. Empty lists keep the base value.
func Grid(base *config.SimConfig, windows, latencies, predictors []int) []*config.SimConfig {
	orBase := func(values []int, base int) []int {
		if len(values) == 0 {
			return []int{base}
		}
		return values
	}

	windows = orBase(windows, base.Predictor.WindowSize)
	latencies = orBase(latencies, base.Predictor.StoreResolveLatency)
	predictors = orBase(predictors, base.Predictor.PredictorSize)

	var configs []*config.SimConfig
	for _, w := range windows {
		for _, l := range latencies {
			for _, p := range predictors {
				c := base.Clone()
				c.Predictor.WindowSize = w
				c.Predictor.StoreResolveLatency = l
				c.Predictor.PredictorSize = p
				if c.Validate() != nil {
					continue
				}
				configs = append(configs, c)
			}
		}
	}

	return configs
}

// Sweep runs one independent simulation per configuration, up to jobs at
// a time, each on its own copy of the workload stream. Results are returned
// in the order of configs. The first failure cancels the remaining runs.
func Sweep(
	ctx context.Context,
	configs []*config.SimConfig,
	workload trace.Workload,
	seed uint64,
	length int,
	jobs int,
) ([]*Result, error) {
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	results := make([]*Result, len(configs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)

	for i, cfg := range configs {
		g.Go(func() error {
			result, _, err := Run(ctx, workload.Name, cfg, workload.Source(seed, length))
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}
