package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/vanderheijden86/stepparity/pkg/config"
	"github.com/vanderheijden86/stepparity/pkg/debug"
	"github.com/vanderheijden86/stepparity/pkg/export"
	"github.com/vanderheijden86/stepparity/pkg/layout"
	"github.com/vanderheijden86/stepparity/pkg/loader"
	"github.com/vanderheijden86/stepparity/pkg/parity"
	"github.com/vanderheijden86/stepparity/pkg/ui"
)

// chartReport is the analysis of one chart file.
type chartReport struct {
	Path     string         `json:"chart"`
	GameType string         `json:"gameType"`
	Summary  parity.Summary `json:"summary"`
	Result   *parity.Result `json:"result"`
	Elapsed  time.Duration  `json:"-"`
	Notes    []parity.Note  `json:"-"`
	Weights  parity.Weights `json:"-"`
}

// analyzeAll analyzes every chart in opts, concurrently in batch mode.
// Reports come back in argument order.
func analyzeAll(ctx context.Context, cfg config.Config, opts options) ([]chartReport, error) {
	reports := make([]chartReport, len(opts.charts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, path := range opts.charts {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rep, err := analyzeChart(cfg, path, opts.gameType != "")
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			reports[i] = rep
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

// analyzeChart loads and computes one chart. The chart's own game type is
// used unless the command line forced one.
func analyzeChart(cfg config.Config, path string, forcedGame bool) (chartReport, error) {
	chart, err := loader.LoadChartWithOptions(path, loader.ParseOptions{
		WarningHandler: func(msg string) { debug.Log("%s: %s", path, msg) },
	})
	if err != nil {
		return chartReport{}, err
	}

	gameType := cfg.GameType
	if chart.GameType != "" && !forcedGame {
		gameType = chart.GameType
	}
	l, err := layout.ForGameType(gameType)
	if err != nil {
		return chartReport{}, err
	}
	engineOpts, err := engineOptions(cfg)
	if err != nil {
		return chartReport{}, err
	}
	engine := parity.NewEngine(l, engineOpts...)

	start := time.Now()
	res, err := engine.Compute(math.Inf(-1), math.Inf(1), chart.Notes, false)
	if err != nil {
		return chartReport{}, err
	}
	elapsed := time.Since(start)
	debug.LogTiming("analyze "+filepath.Base(path), elapsed)

	rep := chartReport{
		Path:     path,
		GameType: gameType,
		Result:   res,
		Elapsed:  elapsed,
		Notes:    chart.Notes,
		Weights:  engine.Weights(),
	}
	if res != nil {
		rep.Summary = res.Summary()
	}
	return rep, nil
}

func exportSQLite(rep chartReport, cfg config.Config, path string) error {
	if rep.Result == nil {
		return fmt.Errorf("%s has no playable notes", rep.Path)
	}
	exp := export.NewSQLiteExporter(rep.Result, rep.Notes, rep.GameType)
	exp.Weights = rep.Weights
	exp.Title = filepath.Base(rep.Path)
	if path == "-" {
		path = cfg.ExportPath()
	}
	if err := exp.Export(path); err != nil {
		return err
	}
	debug.Log("exported %s to %s", rep.Path, path)
	return nil
}

func printReports(out io.Writer, reports []chartReport, opts options) error {
	bw := bufio.NewWriter(out)
	defer bw.Flush()

	if opts.jsonOut {
		enc := json.NewEncoder(bw)
		for _, rep := range reports {
			if err := enc.Encode(rep); err != nil {
				return err
			}
		}
		return bw.Flush()
	}

	width := ui.DefaultWidth
	if f, ok := out.(*os.File); ok {
		width = ui.TerminalWidth(f)
	}
	styles := ui.NewStyles(out)
	for _, rep := range reports {
		view := ui.Report{
			Name:     filepath.Base(rep.Path),
			GameType: rep.GameType,
			Result:   rep.Result,
			Elapsed:  rep.Elapsed,
			Width:    width,
		}
		fmt.Fprintln(bw, styles.RenderSummary(view))
		if opts.lanes != 0 {
			fmt.Fprint(bw, styles.RenderLanes(view, opts.lanes))
		}
	}
	return bw.Flush()
}
