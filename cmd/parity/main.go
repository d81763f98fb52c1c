package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/pprof"
	"syscall"

	"github.com/vanderheijden86/stepparity/pkg/config"
	"github.com/vanderheijden86/stepparity/pkg/debug"
	"github.com/vanderheijden86/stepparity/pkg/parity"
	"github.com/vanderheijden86/stepparity/pkg/version"
	"github.com/vanderheijden86/stepparity/pkg/worker"
)

// options holds the parsed command line.
type options struct {
	configPath   string
	gameType     string
	chart        string
	weightsPath  string
	serve        bool
	watchWeights bool
	exportSQLite string
	batch        bool
	jsonOut      bool
	lanes        int
	charts       []string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("parity", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts options
	cpuProfile := fs.String("cpu-profile", "", "Write CPU profile to file")
	help := fs.Bool("help", false, "Show help")
	versionFlag := fs.Bool("version", false, "Show version")
	fs.StringVar(&opts.configPath, "config", "", "Config file (default: XDG config dir)")
	fs.StringVar(&opts.gameType, "game", "", "Game type, e.g. dance-single (overrides config and chart)")
	fs.StringVar(&opts.chart, "chart", "", "Chart file (.json document or .jsonl notes)")
	fs.StringVar(&opts.weightsPath, "weights", "", "Weights file (overrides weights_file in config)")
	fs.BoolVar(&opts.serve, "serve", false, "Run the JSON-lines worker on stdin/stdout")
	fs.BoolVar(&opts.watchWeights, "watch-weights", false, "Reload the weights file on change (with -serve)")
	fs.StringVar(&opts.exportSQLite, "export-sqlite", "", "Write the result of a single chart to a SQLite database")
	fs.BoolVar(&opts.batch, "batch", false, "Analyze every chart argument concurrently")
	fs.BoolVar(&opts.jsonOut, "json", false, "Print results as JSON lines")
	fs.IntVar(&opts.lanes, "lanes", 0, "Print the first N rows of the assignment (-1 for all)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if *help {
		fmt.Fprintln(stdout, "Usage: parity [options] [chart ...]")
		fmt.Fprintln(stdout, "\nAssigns feet to the notes of step charts.")
		fs.SetOutput(stdout)
		fs.PrintDefaults()
		return 0
	}

	if *versionFlag {
		fmt.Fprintf(stdout, "parity %s\n", version.Version)
		return 0
	}

	// CPU profiling support
	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			fmt.Fprintf(stderr, "Could not create CPU profile: %v\n", err)
			return 1
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(stderr, "Could not start CPU profile: %v\n", err)
			return 1
		}
		defer pprof.StopCPUProfile()
	}

	if opts.chart != "" {
		opts.charts = append(opts.charts, opts.chart)
	}
	opts.charts = append(opts.charts, fs.Args()...)

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return 1
	}

	if opts.serve {
		if err := serve(ctx, cfg, opts, stdin, stdout); err != nil && !errors.Is(err, context.Canceled) {
			fmt.Fprintf(stderr, "Error serving: %v\n", err)
			return 1
		}
		return 0
	}

	switch {
	case len(opts.charts) == 0:
		fmt.Fprintln(stderr, "Error: no chart given (use -chart, pass chart files, or -serve)")
		return 2
	case len(opts.charts) > 1 && !opts.batch:
		fmt.Fprintln(stderr, "Error: several charts given; use -batch to analyze them together")
		return 2
	case opts.exportSQLite != "" && len(opts.charts) != 1:
		fmt.Fprintln(stderr, "Error: -export-sqlite takes exactly one chart")
		return 2
	}

	reports, err := analyzeAll(ctx, cfg, opts)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if opts.exportSQLite != "" {
		if err := exportSQLite(reports[0], cfg, opts.exportSQLite); err != nil {
			fmt.Fprintf(stderr, "Error exporting: %v\n", err)
			return 1
		}
	}

	if err := printReports(stdout, reports, opts); err != nil {
		fmt.Fprintf(stderr, "Error writing output: %v\n", err)
		return 1
	}
	return 0
}

// loadConfig reads the config file and applies the command line on top.
// A missing default config is not an error.
func loadConfig(opts options) (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if opts.configPath != "" {
		cfg, err = config.LoadFrom(opts.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return cfg, err
	}

	if opts.gameType != "" {
		cfg.GameType = opts.gameType
	}
	if opts.weightsPath != "" {
		cfg.WeightsFile = opts.weightsPath
	}
	if cfg.WeightsFile != "" {
		wf, err := config.LoadWeightsFile(cfg.WeightsFile)
		if err != nil {
			return cfg, err
		}
		if cfg.Weights == nil {
			cfg.Weights = make(map[string]float64)
		}
		for k, v := range wf.Weights {
			cfg.Weights[k] = v
		}
		cfg.Tuning = wf.Tuning
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	debug.Log("config: game=%s weights_file=%s overrides=%d", cfg.GameType, cfg.WeightsFile, len(cfg.Weights))
	return cfg, nil
}

func serve(ctx context.Context, cfg config.Config, opts options, stdin io.Reader, stdout io.Writer) error {
	weights, err := cfg.ParityWeights()
	if err != nil {
		return err
	}
	tuning := cfg.Tuning
	wcfg := worker.Config{Buffer: cfg.Worker.Buffer, Weights: weights, Tuning: &tuning}
	if cfg.Worker.LogLevel != "" && os.Getenv("PARITY_WORKER_LOG_LEVEL") == "" {
		level := worker.ParseLogLevel(cfg.Worker.LogLevel)
		wcfg.LogLevel = &level
	}

	w := worker.New(wcfg)
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	if opts.watchWeights {
		if cfg.WeightsFile == "" {
			return fmt.Errorf("-watch-weights needs a weights file (-weights or weights_file in config)")
		}
		wt, err := w.WatchWeights(ctx, cfg.WeightsFile, 0)
		if err != nil {
			return fmt.Errorf("watching %s: %w", cfg.WeightsFile, err)
		}
		defer wt.Stop()
	}

	return w.Serve(ctx, stdin, stdout)
}

func engineOptions(cfg config.Config) ([]parity.Option, error) {
	weights, err := cfg.ParityWeights()
	if err != nil {
		return nil, err
	}
	return []parity.Option{parity.WithWeights(weights), parity.WithTuning(cfg.Tuning)}, nil
}
