package viz

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/smcfilter/internal/experiment"
)

// Plot draws one series with a caption. NaN and Inf values are dropped.
func Plot(series []float64, caption string, height, width int) string {
	data := finite(series)
	if len(data) == 0 {
		return Subtle.Render("(no data for " + caption + ")")
	}
	return asciigraph.Plot(data,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Caption(caption),
	)
}

// PlotTracking overlays the filter estimate on the true track.
func PlotTracking(estimate, truth []float64, height, width int) string {
	n := min(len(estimate), len(truth))
	if n == 0 {
		return Plot(estimate, "estimate", height, width)
	}
	return asciigraph.PlotMany([][]float64{finite(truth[:n]), finite(estimate[:n])},
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.SeriesColors(asciigraph.Green, asciigraph.Cyan),
		asciigraph.Caption("truth (green) vs estimate (cyan)"),
	)
}

func finite(xs []float64) []float64 {
	out := make([]float64, 0, len(xs))
	for _, x := range xs {
		if !math.IsNaN(x) && !math.IsInf(x, 0) {
			out = append(out, x)
		}
	}
	return out
}

// RenderSummary formats the headline numbers of a finished run.
func RenderSummary(res *experiment.Result) string {
	var s strings.Builder

	title := res.Model
	if res.RunID != "" {
		title = res.RunID
	}
	s.WriteString(Header.Render(strings.ToUpper(title)) + "\n\n")

	gens := res.Generations
	s.WriteString(metricLine("Generations", fmt.Sprintf("%d", max(len(gens)-1, 0))))
	s.WriteString(metricLine("Log evidence", fmt.Sprintf("%.4f", res.LogEvidence)))
	if res.PathSampling != nil {
		s.WriteString(metricLine("Path sampling", fmt.Sprintf("%.4f", *res.PathSampling)))
	}
	if res.ExactLogEvidence != nil {
		s.WriteString(metricLine("Exact", fmt.Sprintf("%.4f", *res.ExactLogEvidence)))
	}

	if len(gens) > 0 {
		last := gens[len(gens)-1]
		resampled, capHits := 0, 0
		for _, g := range gens {
			if g.Resampled {
				resampled++
			}
			if g.CapHit {
				capHits++
			}
		}
		s.WriteString(metricLine("Final ESS", fmt.Sprintf("%.1f", last.ESS)))
		s.WriteString(metricLine("Estimate", fmt.Sprintf("%.4f ± %.4f", last.Estimate, last.Spread)))
		s.WriteString(metricLine("Resampled", fmt.Sprintf("%d/%d", resampled, len(gens))))
		if capHits > 0 {
			s.WriteString(MetricLabel.Render("Cap hits") + StatusFailed.Render(fmt.Sprintf("%d", capHits)) + "\n")
		}
		s.WriteString(MetricLabel.Render("ESS") + Sparkline(res.Series("ess"), 40) + "\n")
	}
	if len(res.Rounds) > 0 {
		s.WriteString(metricLine("ESS rounds", fmt.Sprintf("%d", len(res.Rounds))))
	}
	names := make([]string, 0, len(res.Metrics))
	for name := range res.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s.WriteString(metricLine(name, fmt.Sprintf("%.4f", res.Metrics[name])))
	}
	s.WriteString(metricLine("Elapsed", res.Elapsed.Round(time.Millisecond).String()))

	return Panel.Render(s.String())
}
