// Package harness feeds instruction streams into the dependence predictor
// and collects the results of single runs and parameter sweeps.
package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/sarchlab/mdpsim/timing/config"
	"github.com/sarchlab/mdpsim/timing/mdp"
	"github.com/sarchlab/mdpsim/trace"
)

// cancelCheckInterval is how many events are fed between context checks.
const cancelCheckInterval = 4096

// Result holds the outcome of one simulation run.
type Result struct {
	// RunID uniquely identifies the run.
	RunID string `json:"run_id"`

	// Workload names the trace or synthetic workload that was fed.
	Workload string `json:"workload"`

	// Config is the configuration the engine ran with.
	Config config.SimConfig `json:"config"`

	// Report holds the raw counters.
	Report mdp.Report `json:"report"`

	// Derived rates. Nil when the denominator was zero.
	MispredictionRate   *float64 `json:"misprediction_rate,omitempty"`
	MisSpeculationRate  *float64 `json:"mis_speculation_rate,omitempty"`
	FalseDependencyRate *float64 `json:"false_dependency_rate,omitempty"`
	AvgLoadBufferTime   *float64 `json:"avg_load_buffer_time,omitempty"`

	// FalseDepsPerMisSpeculation matches the ratio printed by the Pin tool.
	FalseDepsPerMisSpeculation *float64 `json:"false_deps_per_mis_speculation,omitempty"`

	// SimulatedTime is the cycle count expressed in seconds at the
	// configured clock.
	SimulatedTime float64 `json:"simulated_time_sec"`

	// WallTime is the actual time taken to run the simulation.
	WallTime time.Duration `json:"wall_time_ns"`
}

func definedOrNil(rate float64) *float64 {
	if !mdp.Defined(rate) {
		return nil
	}
	return &rate
}

// NewResult derives the rates of a report.
func NewResult(workload string, cfg *config.SimConfig, report mdp.Report, cycles uint64) *Result {
	return &Result{
		RunID:               uuid.NewString(),
		Workload:            workload,
		Config:              *cfg.Clone(),
		Report:              report,
		MispredictionRate:   definedOrNil(report.MispredictionRate()),
		MisSpeculationRate:  definedOrNil(report.MisSpeculationRate()),
		FalseDependencyRate: definedOrNil(report.FalseDependencyRate()),
		AvgLoadBufferTime:   definedOrNil(report.AvgLoadBufferTime()),
		SimulatedTime:       float64(cfg.SimulatedTime(cycles)),

		FalseDepsPerMisSpeculation: definedOrNil(report.FalseDependenciesPerMisSpeculation()),
	}
}

// Feed drives the engine from src until io.EOF. With memoryOnly set,
// instructions that do not access memory are skipped and do not advance
// the cycle counter. It returns the number of events fed to the engine.
func Feed(ctx context.Context, engine *mdp.Engine, src trace.Source, memoryOnly bool) (uint64, error) {
	var fed uint64
	for i := 0; ; i++ {
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return fed, err
			}
		}

		ev, err := src.Next()
		if errors.Is(err, io.EOF) {
			return fed, nil
		}
		if err != nil {
			return fed, err
		}

		if memoryOnly && !ev.IsMemory() {
			continue
		}

		engine.OnInstruction(ev.PC, ev.Kind == trace.KindLoad, ev.Kind == trace.KindStore, ev.Addr)
		fed++
	}
}

// Run simulates one source under one configuration.
func Run(
	ctx context.Context,
	workload string,
	cfg *config.SimConfig,
	src trace.Source,
	opts ...mdp.Option,
) (*Result, *mdp.Engine, error) {
	engine, err := mdp.NewEngine(cfg.Predictor, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid predictor config: %w", err)
	}

	start := time.Now()
	if _, err := Feed(ctx, engine, src, cfg.MemoryOnly); err != nil {
		return nil, engine, fmt.Errorf("failed to feed %s: %w", workload, err)
	}

	result := NewResult(workload, cfg, engine.Finalize(), engine.Cycle())
	result.WallTime = time.Since(start)

	return result, engine, nil
}

// WriteJSON writes results as an indented JSON array.
func WriteJSON(w io.Writer, results []*Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	return nil
}

func formatRate(rate *float64) string {
	if rate == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.4f", *rate)
}

// PrintReport writes a human-readable report of one run.
func PrintReport(w io.Writer, r *Result) {
	rep := r.Report
	p := r.Config.Predictor

	fmt.Fprintf(w, "Workload: %s\n", r.Workload)
	fmt.Fprintf(w, "Window/MDPT/MDST: %d/%d/%d, store resolve latency: %d cycles\n",
		p.WindowSize, p.PredictorSize, p.SyncSize, p.StoreResolveLatency)
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "Total Instructions: %d\n", rep.Instructions)
	fmt.Fprintf(w, "Total Loads: %d\n", rep.Loads)
	fmt.Fprintf(w, "Total Stores: %d\n", rep.Stores)
	fmt.Fprintf(w, "Total MDPT Predictions: %d\n", rep.Predictions)
	fmt.Fprintf(w, "Total MDPT Mispredictions: %d\n", rep.Mispredictions)
	fmt.Fprintf(w, "Misprediction Rate: %s\n", formatRate(r.MispredictionRate))
	fmt.Fprintf(w, "Total Load Speculations: %d\n", rep.Speculations)
	fmt.Fprintf(w, "Total Load Mis-speculations: %d\n", rep.MisSpeculations)
	fmt.Fprintf(w, "Mis-speculation Rate: %s\n", formatRate(r.MisSpeculationRate))
	fmt.Fprintf(w, "Total False Dependencies: %d\n", rep.FalseDependencies)
	fmt.Fprintf(w, "Mispredictions due to False Dependencies: %s\n", formatRate(r.FalseDependencyRate))
	fmt.Fprintf(w, "False Dependencies per Mis-speculation: %s\n", formatRate(r.FalseDepsPerMisSpeculation))
	fmt.Fprintf(w, "Avg. Time in LD/ST Buffer (Loads): %s\n", formatRate(r.AvgLoadBufferTime))
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "Simulated time: %.3e s\n", r.SimulatedTime)
	fmt.Fprintf(w, "Wall time: %v\n", r.WallTime)
}
