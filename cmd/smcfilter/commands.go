package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"text/tabwriter"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/san-kum/smcfilter/internal/analysis"
	"github.com/san-kum/smcfilter/internal/config"
	"github.com/san-kum/smcfilter/internal/diag"
	"github.com/san-kum/smcfilter/internal/experiment"
	"github.com/san-kum/smcfilter/internal/export"
	"github.com/san-kum/smcfilter/internal/lineage"
	"github.com/san-kum/smcfilter/internal/logging"
	"github.com/san-kum/smcfilter/internal/models"
	"github.com/san-kum/smcfilter/internal/storage"
	"github.com/san-kum/smcfilter/internal/viz"
)

// buildConfig layers defaults, preset, config file and explicitly set flags,
// in that order.
func buildConfig(cmd *cobra.Command, modelArg string) (*config.Config, error) {
	model := modelArg
	if model == "" {
		model = models.NameRandomWalk
	}

	cfg := config.DefaultConfig()
	cfg.Model = model

	if preset != "" {
		p := config.GetPreset(model, preset)
		if p == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets(model))
		}
		cfg = p
	}

	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
		if modelArg != "" {
			cfg.Model = modelArg
		}
	}

	flags := cmd.Flags()
	if flags.Changed("particles") {
		cfg.Particles = particles
	}
	if flags.Changed("generations") {
		cfg.Generations = generations
	}
	if flags.Changed("mode") {
		cfg.Mode = mode
	}
	if flags.Changed("threshold") {
		cfg.Threshold = threshold
	}
	if flags.Changed("variable") {
		cfg.Variable = variable
	}
	if flags.Changed("history") {
		cfg.History = history
	}
	if flags.Changed("threads") {
		cfg.Threads = threads
	}
	if flags.Changed("seed") {
		cfg.Seed = seed
	}
	if flags.Changed("cap") {
		cfg.PopulationCap = popCap
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func modelArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}

func interruptible() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

// newExperiment wires an experiment with a fresh run id and a logger
// carrying it.
func newExperiment(cfg *config.Config) (*experiment.Experiment, string) {
	runID := storage.NewRunID(cfg.Model)
	ex := experiment.New(cfg)
	ex.SetRunID(runID)
	ex.SetLogger(logging.WithRun(logger, runID, cfg.Model))
	return ex, runID
}

func runSampler(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, modelArg(args))
	if err != nil {
		return err
	}

	ex, runID := newExperiment(cfg)

	var lin *lineage.Graph
	if lineagePath != "" {
		lin = lineage.New()
		ex.SetLineage(lin)
	}

	if essDB != "" {
		db, err := diag.OpenSQLite(essDB, runID)
		if err != nil {
			return err
		}
		defer db.Close()
		ex.SetESSSink(db)
	}

	ctx, stop := interruptible()
	defer stop()

	fmt.Printf("running %s sampler (%d particles, %d generations)...\n", cfg.Model, cfg.Particles, cfg.Generations)
	res, err := ex.Run(ctx)
	if err != nil {
		return err
	}

	if lin != nil {
		if err := lin.WriteDOT(lineagePath, runID); err != nil {
			return err
		}
		logger.Info("lineage written", zap.String("path", lineagePath), zap.Int("generations", lin.Generations()))
	}

	if !noSave {
		st := storage.New(dataDir)
		if err := st.Init(); err != nil {
			return err
		}
		if _, err := st.Save(cfg, res); err != nil {
			return err
		}
	}

	switch jsonOut {
	case "":
	case "-":
		if err := storage.ExportJSONStdout(res, cfg.Params()); err != nil {
			return err
		}
	default:
		if err := storage.ExportJSON(jsonOut, res, cfg.Params()); err != nil {
			return err
		}
	}

	fmt.Println(viz.RenderSummary(res))
	if len(res.Truth) > 0 {
		fmt.Println(viz.PlotTracking(res.Series("estimate")[1:], res.Truth, 10, 80))
	}
	return nil
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, modelArg(args))
	if err != nil {
		return err
	}

	// zap writes to stderr, which would tear the TUI
	logger = zap.NewNop()
	ex, runID := newExperiment(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed := viz.NewFeed(cfg.Generations)
	ex.AddObserver(feed)
	go func() {
		feed.Finish(ex.Run(ctx))
	}()

	final, err := tea.NewProgram(viz.NewMonitor(runID, cfg.Generations, feed, cancel)).Run()
	if err != nil {
		return err
	}

	res, runErr := final.(viz.Monitor).Result()
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	if res != nil {
		fmt.Println(viz.RenderSummary(res))
	}
	return nil
}

func runLineage(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, modelArg(args))
	if err != nil {
		return err
	}

	ex, runID := newExperiment(cfg)
	lin := lineage.New()
	ex.SetLineage(lin)

	ctx, stop := interruptible()
	defer stop()

	if _, err := ex.Run(ctx); err != nil {
		return err
	}

	last := lin.Generations() - 1
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "GEN\tSIZE\tSURVIVING")
	for g := 0; g <= last; g++ {
		n, err := lin.Surviving(g)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%d\t%d\t%d\n", g, lin.Size(g), n)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if lineagePath != "" {
		return lin.WriteDOT(lineagePath, runID)
	}
	return nil
}

func runEnsemble(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, modelArg(args))
	if err != nil {
		return err
	}

	ens := experiment.NewEnsemble(cfg, numRuns, cfg.Seed, workers)
	ens.SetLogger(logger)

	ctx, stop := interruptible()
	defer stop()

	results, err := ens.Run(ctx)
	if err != nil {
		return err
	}

	sum := experiment.Summarize(results)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "replicates\t%d\n", sum.Runs)
	fmt.Fprintf(w, "log evidence\t%.4f ± %.4f\n", sum.LogEvidence.Mean, sum.LogEvidence.Std)
	fmt.Fprintf(w, "final estimate\t%.4f ± %.4f\n", sum.FinalEstimate.Mean, sum.FinalEstimate.Std)
	fmt.Fprintf(w, "mean ESS\t%.1f ± %.1f\n", sum.MeanESS.Mean, sum.MeanESS.Std)
	if cfg.Model == models.NameTempered {
		fmt.Fprintf(w, "exact\t%.4f\n", cfg.NewTempered().LogEvidence())
	}
	return w.Flush()
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMODEL\tTIME\tN\tGENS\tMODE\tLOG Z")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t%.4f\n",
			run.ID,
			run.Model,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Particles,
			run.Generations,
			run.Mode,
			run.LogEvidence,
		)
	}

	return w.Flush()
}

// loadResult rebuilds the stored part of a result.
func loadResult(runID string) (*storage.RunMetadata, *experiment.Result, error) {
	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return nil, nil, err
	}
	gens, err := st.LoadTrace(runID)
	if err != nil {
		return nil, nil, err
	}
	return meta, &experiment.Result{
		RunID:            meta.ID,
		Model:            meta.Model,
		Generations:      gens,
		LogEvidence:      meta.LogEvidence,
		PathSampling:     meta.PathSampling,
		ExactLogEvidence: meta.Exact,
		Metrics:          meta.Metrics,
		Elapsed:          meta.Elapsed,
	}, nil
}

func plotRun(cmd *cobra.Command, args []string) error {
	meta, res, err := loadResult(args[0])
	if err != nil {
		return err
	}

	if len(res.Generations) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("model: %s\n\n", meta.Model)

	for _, col := range []string{"estimate", "ess", "accepted", "evidence"} {
		fmt.Println(viz.Plot(res.Series(col), col, 10, 80))
		fmt.Println()
	}

	if svgPath != "" {
		if err := export.WriteSVG(svgPath, export.EstimateBandSVG(res, 120, 30, 4)); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", svgPath)
	}
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	meta, res, err := loadResult(args[0])
	if err != nil {
		return err
	}
	if jsonOut == "" {
		return storage.ExportJSONStdout(res, meta.Params)
	}
	return storage.ExportJSON(jsonOut, res, meta.Params)
}

func analyzeRun(cmd *cobra.Command, args []string) error {
	_, res, err := loadResult(args[0])
	if err != nil {
		return err
	}

	series := res.Series(field)
	sum, err := analysis.Summarize(series)
	if err != nil {
		return err
	}
	rho, err := analysis.Autocorrelation(series, maxLag)
	if err != nil {
		return err
	}

	fmt.Printf("column: %s (%d values)\n", field, sum.N)
	fmt.Printf("mean: %.6f  std: %.6f\n", sum.Mean, sum.Std)
	fmt.Printf("integrated autocorrelation time: %.2f\n", sum.Tau)
	fmt.Printf("effective samples: %.1f\n\n", sum.Effective)

	fmt.Println(viz.Plot(rho, "autocorrelation by lag", 10, 80))
	fmt.Println()
	fmt.Println(viz.Plot(analysis.PowerSpectrum(series), "power spectrum", 10, 80))
	return nil
}

func showESS(cmd *cobra.Command, args []string) error {
	db, err := diag.OpenSQLite(args[0], "")
	if err != nil {
		return err
	}
	defer db.Close()

	if len(args) == 1 {
		runs, err := db.Runs()
		if err != nil {
			return err
		}
		for _, r := range runs {
			fmt.Println(r)
		}
		return nil
	}

	records, err := db.Records(args[1])
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "GEN\tROUND\tESS\tSIZE")
	for _, r := range records {
		fmt.Fprintf(w, "%d\t%d\t%.2f\t%d\n", r.Generation, r.Round, r.ESS, r.Size)
	}
	return w.Flush()
}

func writeConfig(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, modelArg(args[1:]))
	if err != nil {
		return err
	}
	if err := config.Save(args[0], cfg); err != nil {
		return err
	}
	fmt.Printf("wrote %s config to %s\n", cfg.Model, args[0])
	return nil
}
