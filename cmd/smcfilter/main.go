package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/san-kum/smcfilter/internal/config"
	"github.com/san-kum/smcfilter/internal/experiment"
	"github.com/san-kum/smcfilter/internal/logging"
)

var (
	dataDir string
	verbose bool
	logger  = zap.NewNop()

	configFile  string
	preset      string
	particles   int
	generations int
	mode        string
	threshold   float64
	variable    bool
	history     bool
	threads     int
	seed        uint64
	popCap      int

	lineagePath string
	essDB       string
	noSave      bool
	jsonOut     string

	// ensemble
	numRuns int
	workers int

	// analyze and plot
	field   string
	maxLag  int
	svgPath string

	// tune and sweep
	grid      []string
	objective string
	sweepMin  float64
	sweepMax  float64
	sweepN    int
)

func addSamplerFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&configFile, "config", "", "config file path (yaml)")
	f.StringVar(&preset, "preset", "", "use preset configuration")
	f.IntVar(&particles, "particles", config.DefaultParticles, "number of particles")
	f.IntVar(&generations, "generations", config.DefaultGenerations, "number of generations")
	f.StringVar(&mode, "mode", config.DefaultMode, "resampling mode (multinomial|residual|stratified|systematic|adaptive)")
	f.Float64Var(&threshold, "threshold", 0.5, "ESS threshold; values below 1 are a fraction of the particle count")
	f.BoolVar(&variable, "variable", false, "grow the population until the ESS threshold is met")
	f.BoolVar(&history, "history", false, "keep population history (enables path sampling)")
	f.IntVar(&threads, "threads", config.DefaultThreads, "worker threads")
	f.Uint64Var(&seed, "seed", config.DefaultSeed, "random seed")
	f.IntVar(&popCap, "cap", 0, "population cap for adaptive growth (0 = default)")
}

// main registers the commands and runs the root command, exiting with
// status 1 on error.
func main() {
	rootCmd := &cobra.Command{
		Use:           "smcfilter",
		Short:         "sequential Monte Carlo sampler lab",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			l, err := logging.New(verbose)
			if err != nil {
				return err
			}
			logger = l
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Sync()
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".smcfilter", "data directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	runCmd := &cobra.Command{
		Use:   "run [model]",
		Short: "run a sampler",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSampler,
	}
	addSamplerFlags(runCmd)
	runCmd.Flags().StringVar(&lineagePath, "lineage", "", "write the particle lineage as DOT to this path")
	runCmd.Flags().StringVar(&essDB, "ess-db", "", "record every ESS evaluation in this sqlite database")
	runCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the run")
	runCmd.Flags().StringVar(&jsonOut, "json", "", "also export the full result as JSON to this path (- for stdout)")

	liveCmd := &cobra.Command{
		Use:   "live [model]",
		Short: "run a sampler with a live monitor",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLive,
	}
	addSamplerFlags(liveCmd)

	lineageCmd := &cobra.Command{
		Use:   "lineage [model]",
		Short: "run a sampler and report ancestor survival",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLineage,
	}
	addSamplerFlags(lineageCmd)
	lineageCmd.Flags().StringVar(&lineagePath, "out", "", "write the lineage graph as DOT to this path")

	ensembleCmd := &cobra.Command{
		Use:   "ensemble [model]",
		Short: "repeat a run over consecutive seeds",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runEnsemble,
	}
	addSamplerFlags(ensembleCmd)
	ensembleCmd.Flags().IntVar(&numRuns, "runs", 8, "number of replicates")
	ensembleCmd.Flags().IntVar(&workers, "workers", 4, "replicates run concurrently")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot run trace",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	plotCmd.Flags().StringVar(&svgPath, "svg", "", "also write the estimate band chart as SVG")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export run as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().StringVar(&jsonOut, "out", "", "output path (default stdout)")

	analyzeCmd := &cobra.Command{
		Use:   "analyze [run_id]",
		Short: "autocorrelation analysis of a trace column",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeRun,
	}
	analyzeCmd.Flags().StringVar(&field, "field", "estimate", "trace column (estimate|ess|accepted|spread|evidence)")
	analyzeCmd.Flags().IntVar(&maxLag, "max-lag", 20, "largest lag to print")

	essCmd := &cobra.Command{
		Use:   "ess [db] [run_id]",
		Short: "show recorded ESS rounds from a sqlite database",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  showESS,
	}

	tuneCmd := &cobra.Command{
		Use:   "tune [model]",
		Short: "grid search over sampler and model parameters",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runTune,
	}
	addSamplerFlags(tuneCmd)
	tuneCmd.Flags().StringArrayVar(&grid, "grid", nil, "parameter values, e.g. threshold=0.3,0.5,0.8 (repeatable)")
	tuneCmd.Flags().StringVar(&objective, "objective", "auto", "metric to minimise, or 'evidence' for |log Z - exact|")
	tuneCmd.Flags().IntVar(&workers, "workers", 4, "grid points run concurrently")

	sweepCmd := &cobra.Command{
		Use:   "sweep [model] [param]",
		Short: "sweep one parameter over a linear range",
		Args:  cobra.ExactArgs(2),
		RunE:  runSweep,
	}
	addSamplerFlags(sweepCmd)
	sweepCmd.Flags().Float64Var(&sweepMin, "min", 0.1, "first value")
	sweepCmd.Flags().Float64Var(&sweepMax, "max", 0.9, "last value")
	sweepCmd.Flags().IntVar(&sweepN, "steps", 5, "number of values")

	scenarioCmd := &cobra.Command{
		Use:   "scenario [file]",
		Short: "run a yaml scenario of sampler runs and store them",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets [model]",
		Short: "list available presets for a model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			presets := config.ListPresets(args[0])
			if len(presets) == 0 {
				fmt.Printf("no presets for model: %s\n", args[0])
				return nil
			}
			fmt.Printf("presets for %s:\n", args[0])
			for _, p := range presets {
				fmt.Printf("  %s\n", p)
			}
			return nil
		},
	}

	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "list models",
		Run: func(cmd *cobra.Command, args []string) {
			reg := experiment.NewRegistry()
			for _, name := range reg.ListModels() {
				fmt.Printf("  %-10s %s\n", name, reg.Describe(name))
			}
		},
	}

	initCmd := &cobra.Command{
		Use:   "init [path] [model]",
		Short: "write a config file for a model",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  writeConfig,
	}
	addSamplerFlags(initCmd)

	rootCmd.AddCommand(runCmd, liveCmd, lineageCmd, ensembleCmd, listCmd, plotCmd, exportCmd, analyzeCmd, essCmd, tuneCmd, sweepCmd, scenarioCmd, presetsCmd, modelsCmd, initCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
