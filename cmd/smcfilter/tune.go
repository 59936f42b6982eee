package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/san-kum/smcfilter/internal/automation"
	"github.com/san-kum/smcfilter/internal/config"
	"github.com/san-kum/smcfilter/internal/experiment"
	"github.com/san-kum/smcfilter/internal/models"
	"github.com/san-kum/smcfilter/internal/optim"
	"github.com/san-kum/smcfilter/internal/storage"
)

// parseGrid reads name=v1,v2,... flags.
func parseGrid(flags []string) ([]string, [][]float64, error) {
	names := make([]string, 0, len(flags))
	ranges := make([][]float64, 0, len(flags))
	for _, flag := range flags {
		name, list, ok := strings.Cut(flag, "=")
		if !ok || name == "" || list == "" {
			return nil, nil, fmt.Errorf("bad grid %q, want name=v1,v2", flag)
		}
		var vals []float64
		for _, f := range strings.Split(list, ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
			if err != nil {
				return nil, nil, fmt.Errorf("grid %s: %w", name, err)
			}
			vals = append(vals, v)
		}
		names = append(names, strings.TrimSpace(name))
		ranges = append(ranges, vals)
	}
	return names, ranges, nil
}

func pickObjective(name, model string) (optim.Objective, string) {
	if name == "auto" {
		if model == models.NameTempered {
			name = "evidence"
		} else {
			name = "rmse"
		}
	}
	if name == "evidence" {
		return optim.EvidenceError, name
	}
	return optim.MetricObjective(name), name
}

func formatParams(p map[string]float64) string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%g", k, p[k])
	}
	return strings.Join(parts, " ")
}

func runTune(cmd *cobra.Command, args []string) error {
	base, err := buildConfig(cmd, modelArg(args))
	if err != nil {
		return err
	}
	names, ranges, err := parseGrid(grid)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return fmt.Errorf("at least one --grid is required (parameters: %v)", config.ParamNames())
	}

	obj, objName := pickObjective(objective, base.Model)
	gs := optim.NewGridSearch(names, ranges)
	gs.SetWorkers(workers)

	ctx, stop := interruptible()
	defer stop()

	best, all, err := gs.Search(ctx, func(params map[string]float64) (*experiment.Experiment, error) {
		cfg := *base
		for k, v := range params {
			if err := cfg.SetParam(k, v); err != nil {
				return nil, err
			}
		}
		ex := experiment.New(&cfg)
		ex.SetLogger(logger)
		return ex, nil
	}, obj)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "POINT\t%s\n", strings.ToUpper(objName))
	for _, p := range all {
		if p.Err != nil {
			fmt.Fprintf(w, "%s\terror: %v\n", formatParams(p.Params), p.Err)
			continue
		}
		fmt.Fprintf(w, "%s\t%.6f\n", formatParams(p.Params), p.Score)
	}
	if ferr := w.Flush(); ferr != nil {
		return ferr
	}
	if err != nil {
		return err
	}

	fmt.Printf("\nbest: %s (%s %.6f)\n", formatParams(best.Params), objName, best.Score)
	return nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	base, err := buildConfig(cmd, args[0])
	if err != nil {
		return err
	}

	ctx, stop := interruptible()
	defer stop()

	results, err := automation.RunSweep(ctx, &automation.ParameterSweep{
		Base:      base,
		ParamName: args[1],
		ParamMin:  sweepMin,
		ParamMax:  sweepMax,
		NumSteps:  sweepN,
	}, logger)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\tLOG Z\tFINAL\tMEAN ESS\n", strings.ToUpper(args[1]))
	for _, r := range results {
		fmt.Fprintf(w, "%g\t%.4f\t%.4f\t%.1f\n", r.ParamValue, r.LogEvidence, r.FinalEstimate, r.MeanESS)
	}
	return w.Flush()
}

func runScenario(cmd *cobra.Command, args []string) error {
	sc, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}

	ctx, stop := interruptible()
	defer stop()

	results, err := automation.RunScenario(ctx, sc, logger)

	st := storage.New(dataDir)
	if ierr := st.Init(); ierr != nil {
		return ierr
	}
	for _, r := range results {
		runID, serr := st.Save(r.Config, r.Result)
		if serr != nil {
			return serr
		}
		fmt.Printf("%s: %s log Z %.4f\n", runID, r.Config.Model, r.Result.LogEvidence)
	}
	return err
}
