// Package main provides the entry point for MDPSim.
// MDPSim is a cycle-level memory-dependence predictor simulator.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/davecgh/go-spew/spew"
	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/sarchlab/mdpsim/harness"
	"github.com/sarchlab/mdpsim/resultdb"
	"github.com/sarchlab/mdpsim/timing/config"
	"github.com/sarchlab/mdpsim/timing/mdp"
	"github.com/sarchlab/mdpsim/trace"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root := newRootCommand(os.Stdout, os.Stderr)
	if err := root.ParseAndRun(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand(stdout, stderr io.Writer) *ffcli.Command {
	appName := "mdpsim"
	rootFlagSet := flag.NewFlagSet(appName, flag.ContinueOnError)
	rootFlagSet.SetOutput(stderr)

	return &ffcli.Command{
		ShortUsage: appName + " <subcommand> [flags]",
		ShortHelp:  "Cycle-level memory-dependence predictor simulator",
		FlagSet:    rootFlagSet,
		Subcommands: []*ffcli.Command{
			runCommand(stdout, stderr),
			sweepCommand(stdout, stderr),
			workloadsCommand(stdout),
			traceCommand(stdout, stderr),
			configCommand(stdout),
			historyCommand(stdout, stderr),
		},
		Exec: func(context.Context, []string) error {
			return flag.ErrHelp
		},
	}
}

// newLogger returns a stderr logger when verbose is set.
func newLogger(stderr io.Writer, verbose bool) logr.Logger {
	if !verbose {
		return logr.Discard()
	}
	return funcr.New(func(prefix, args string) {
		fmt.Fprintln(stderr, prefix, args)
	}, funcr.Options{Verbosity: 1})
}

func loadConfig(path string) (*config.SimConfig, error) {
	if path == "" {
		return config.DefaultConfig(), nil
	}
	return config.LoadConfig(path)
}

func openSource(tracePath, workload string, seed uint64, length int) (trace.Source, string, func() error, error) {
	noop := func() error { return nil }

	if tracePath != "" {
		f, err := os.Open(tracePath)
		if err != nil {
			return nil, "", noop, fmt.Errorf("failed to open trace: %w", err)
		}
		return trace.NewReader(f), filepath.Base(tracePath), f.Close, nil
	}

	w, err := trace.GetWorkload(workload)
	if err != nil {
		return nil, "", noop, err
	}
	return w.Source(seed, length), w.Name, noop, nil
}

// openStore opens the result database, logging queries to queryLog when
// it is not nil.
func openStore(ctx context.Context, dsn string, queryLog io.Writer) (*resultdb.Store, error) {
	var opts []resultdb.Option
	if queryLog != nil {
		opts = append(opts, resultdb.WithQueryLog(queryLog))
	}
	return resultdb.Open(ctx, dsn, opts...)
}

func queryLogTo(stderr io.Writer, enabled bool) io.Writer {
	if !enabled {
		return nil
	}
	return stderr
}

func saveResults(ctx context.Context, dsn string, queryLog io.Writer, results ...*harness.Result) error {
	store, err := openStore(ctx, dsn, queryLog)
	if err != nil {
		return err
	}
	defer store.Close()

	return store.Save(ctx, results...)
}

func runCommand(stdout, stderr io.Writer) *ffcli.Command {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		configPath = fs.String("config", "", "Path to a JSON or YAML simulation config")
		tracePath  = fs.String("trace", "", "Path to a text instruction trace")
		workload   = fs.String("workload", "store_load_pair", "Synthetic workload, when no trace is given")
		length     = fs.Int("n", 100000, "Number of synthetic instructions")
		seed       = fs.Uint64("seed", 1, "Synthetic workload seed")
		memoryOnly = fs.Bool("memory-only", false, "Feed only loads and stores to the engine")
		asJSON     = fs.Bool("json", false, "Print the result as JSON")
		dsn        = fs.String("db", "", "SQLite database to record the run in")
		dbLog      = fs.Bool("db-log", false, "Log database queries to stderr")
		dump       = fs.Bool("dump", false, "Dump the final predictor and sync tables")
		verbose    = fs.Bool("v", false, "Log predictor table events")
	)

	return &ffcli.Command{
		Name:       "run",
		ShortUsage: "mdpsim run [flags]",
		ShortHelp:  "Simulate one trace or synthetic workload",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if *memoryOnly {
				cfg.MemoryOnly = true
			}

			src, name, closeSrc, err := openSource(*tracePath, *workload, *seed, *length)
			if err != nil {
				return err
			}
			defer closeSrc()

			result, engine, err := harness.Run(ctx, name, cfg, src,
				mdp.WithLogger(newLogger(stderr, *verbose)))
			if err != nil {
				return err
			}

			if *asJSON {
				err = harness.WriteJSON(stdout, []*harness.Result{result})
			} else {
				harness.PrintReport(stdout, result)
			}
			if err != nil {
				return err
			}

			if *dump {
				fmt.Fprintf(stdout, "\nPredictor table:\n")
				spew.Fdump(stdout, engine.Predictor().Entries())
				fmt.Fprintf(stdout, "\nSync table:\n")
				spew.Fdump(stdout, engine.SyncTable().Entries())
			}

			if *dsn != "" {
				return saveResults(ctx, *dsn, queryLogTo(stderr, *dbLog), result)
			}
			return nil
		},
	}
}

// parseIntList parses a comma-separated list such as "16,32,64".
func parseIntList(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}

	var out []int
	for _, field := range strings.Split(s, ",") {
		v, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil {
			return nil, fmt.Errorf("invalid list value %q: %w", field, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func sweepCommand(stdout, stderr io.Writer) *ffcli.Command {
	fs := flag.NewFlagSet("sweep", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		configPath = fs.String("config", "", "Base JSON or YAML simulation config")
		workload   = fs.String("workload", "mixed_random", "Synthetic workload")
		length     = fs.Int("n", 100000, "Number of synthetic instructions per run")
		seed       = fs.Uint64("seed", 1, "Synthetic workload seed")
		windows    = fs.String("windows", "16,32,64", "Window sizes")
		latencies  = fs.String("latencies", "5,10", "Store resolve latencies")
		predictors = fs.String("predictors", "", "Predictor table sizes")
		jobs       = fs.Int("jobs", 0, "Parallel runs (0 = GOMAXPROCS)")
		asJSON     = fs.Bool("json", false, "Print results as JSON")
		dsn        = fs.String("db", "", "SQLite database to record the runs in")
		dbLog      = fs.Bool("db-log", false, "Log database queries to stderr")
	)

	return &ffcli.Command{
		Name:       "sweep",
		ShortUsage: "mdpsim sweep [flags]",
		ShortHelp:  "Run one workload across a grid of predictor configurations",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			base, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			var lists [3][]int
			for i, s := range []string{*windows, *latencies, *predictors} {
				if lists[i], err = parseIntList(s); err != nil {
					return err
				}
			}

			w, err := trace.GetWorkload(*workload)
			if err != nil {
				return err
			}

			configs := harness.Grid(base, lists[0], lists[1], lists[2])
			if len(configs) == 0 {
				return fmt.Errorf("no valid configuration in the sweep grid")
			}

			results, err := harness.Sweep(ctx, configs, w, *seed, *length, *jobs)
			if err != nil {
				return err
			}

			if *asJSON {
				err = harness.WriteJSON(stdout, results)
			} else {
				err = printSweep(stdout, results)
			}
			if err != nil {
				return err
			}

			if *dsn != "" {
				return saveResults(ctx, *dsn, queryLogTo(stderr, *dbLog), results...)
			}
			return nil
		},
	}
}

func rateOrNA(rate *float64) string {
	if rate == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.4f", *rate)
}

func printSweep(w io.Writer, results []*harness.Result) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "WINDOW\tLATENCY\tMDPT\tPREDICTIONS\tMISPRED RATE\tMISSPEC RATE\tAVG LD BUFFER")
	for _, r := range results {
		p := r.Config.Predictor
		fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%s\t%s\t%s\n",
			p.WindowSize, p.StoreResolveLatency, p.PredictorSize,
			r.Report.Predictions,
			rateOrNA(r.MispredictionRate),
			rateOrNA(r.MisSpeculationRate),
			rateOrNA(r.AvgLoadBufferTime))
	}
	return tw.Flush()
}

func workloadsCommand(stdout io.Writer) *ffcli.Command {
	return &ffcli.Command{
		Name:       "workloads",
		ShortUsage: "mdpsim workloads",
		ShortHelp:  "List the synthetic workloads",
		Exec: func(context.Context, []string) error {
			for _, w := range trace.Workloads() {
				fmt.Fprintf(stdout, "%-20s %s\n", w.Name, w.Description)
			}
			return nil
		},
	}
}

func traceCommand(stdout, stderr io.Writer) *ffcli.Command {
	fs := flag.NewFlagSet("trace", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		workload = fs.String("workload", "store_load_pair", "Synthetic workload")
		length   = fs.Int("n", 1000, "Number of instructions")
		seed     = fs.Uint64("seed", 1, "Synthetic workload seed")
		out      = fs.String("o", "", "Output path (default stdout)")
	)

	return &ffcli.Command{
		Name:       "trace",
		ShortUsage: "mdpsim trace [-workload n] [-n len] [-o file]",
		ShortHelp:  "Export a synthetic workload as a text trace",
		FlagSet:    fs,
		Exec: func(context.Context, []string) error {
			wl, err := trace.GetWorkload(*workload)
			if err != nil {
				return err
			}

			dst := stdout
			if *out != "" {
				f, err := os.Create(*out)
				if err != nil {
					return fmt.Errorf("failed to create trace: %w", err)
				}
				defer f.Close()
				dst = f
			}

			w := trace.NewWriter(dst)
			for _, ev := range wl.Generate(*seed, *length) {
				if err := w.Write(ev); err != nil {
					return fmt.Errorf("failed to write trace: %w", err)
				}
			}
			return w.Flush()
		},
	}
}

func configCommand(stdout io.Writer) *ffcli.Command {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	out := fs.String("o", "mdpsim.json", "Output path (.json, .yaml or .yml)")

	return &ffcli.Command{
		Name:       "config",
		ShortUsage: "mdpsim config [-o path]",
		ShortHelp:  "Write the default simulation config",
		FlagSet:    fs,
		Exec: func(context.Context, []string) error {
			if err := config.DefaultConfig().SaveConfig(*out); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Wrote %s\n", *out)
			return nil
		},
	}
}

func historyCommand(stdout, stderr io.Writer) *ffcli.Command {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		dsn      = fs.String("db", "mdpsim.db", "SQLite database with recorded runs")
		limit    = fs.Int("n", 20, "Number of runs to show (0 = all)")
		workload = fs.String("workload", "", "Show every run of one workload, oldest first")
		dbLog    = fs.Bool("db-log", false, "Log database queries to stderr")
	)

	return &ffcli.Command{
		Name:       "history",
		ShortUsage: "mdpsim history [-db dsn] [-n limit | -workload name]",
		ShortHelp:  "List recorded runs",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			store, err := openStore(ctx, *dsn, queryLogTo(stderr, *dbLog))
			if err != nil {
				return err
			}
			defer store.Close()

			var records []resultdb.RunRecord
			if *workload != "" {
				records, err = store.ByWorkload(ctx, *workload)
			} else {
				records, err = store.List(ctx, *limit)
			}
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN\tWORKLOAD\tWINDOW\tLATENCY\tMDPT\tINSTRUCTIONS\tMISPRED RATE")
			for _, r := range records {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
					r.RunID, r.Workload, r.WindowSize, r.StoreResolveLatency,
					r.PredictorSize, r.Instructions, rateOrNA(r.MispredictionRate))
			}
			return tw.Flush()
		},
	}
}
