package export

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/san-kum/smcfilter/internal/experiment"
	"github.com/san-kum/smcfilter/internal/viz"
)

const svgHeader = `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
`

var pixelMap = [4][2]int{
	{0x01, 0x08},
	{0x02, 0x10},
	{0x04, 0x20},
	{0x40, 0x80},
}

// CanvasToSVG draws every set Braille dot of the canvas as a circle.
func CanvasToSVG(canvas *viz.Canvas, scale float64) string {
	if canvas == nil {
		return ""
	}

	width := int(float64(canvas.Width) * scale * 2)
	height := int(float64(canvas.Height) * scale * 4)

	var sb strings.Builder
	fmt.Fprintf(&sb, svgHeader, width, height, width, height)
	sb.WriteString(`<g fill="#00ff88">` + "\n")

	dotRadius := scale * 0.4
	for row := 0; row < canvas.Height; row++ {
		for col := 0; col < canvas.Width; col++ {
			r := canvas.Grid[row][col]
			if r < 0x2800 {
				continue
			}
			pattern := int(r - 0x2800)

			baseX := float64(col) * scale * 2
			baseY := float64(row) * scale * 4

			for dy := 0; dy < 4; dy++ {
				for dx := 0; dx < 2; dx++ {
					if pattern&pixelMap[dy][dx] != 0 {
						cx := baseX + float64(dx)*scale + scale/2
						cy := baseY + float64(dy)*scale + scale/2
						fmt.Fprintf(&sb, "<circle cx=\"%.1f\" cy=\"%.1f\" r=\"%.1f\"/>\n", cx, cy, dotRadius)
					}
				}
			}
		}
	}

	sb.WriteString("</g>\n</svg>")
	return sb.String()
}

// SeriesToSVG draws ys against their index as a polyline, padded by 10% on
// each side. Non-finite values break the line.
func SeriesToSVG(ys []float64, width, height int, strokeColor string) string {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, y := range ys {
		if math.IsNaN(y) || math.IsInf(y, 0) {
			continue
		}
		lo = math.Min(lo, y)
		hi = math.Max(hi, y)
	}
	if len(ys) < 2 || lo > hi {
		return ""
	}

	span := hi - lo
	if span == 0 {
		span = 1
	}
	lo -= span * 0.1
	hi += span * 0.1
	span = hi - lo

	var sb strings.Builder
	fmt.Fprintf(&sb, svgHeader, width, height, width, height)
	fmt.Fprintf(&sb, `<path fill="none" stroke="%s" stroke-width="1.5" d="`, strokeColor)

	pen := false
	for i, y := range ys {
		if math.IsNaN(y) || math.IsInf(y, 0) {
			pen = false
			continue
		}
		px := float64(i) / float64(len(ys)-1) * float64(width)
		py := float64(height) - (y-lo)/span*float64(height)
		if pen {
			fmt.Fprintf(&sb, " L%.1f,%.1f", px, py)
		} else {
			fmt.Fprintf(&sb, "M%.1f,%.1f", px, py)
			pen = true
		}
	}

	sb.WriteString(`"/>
</svg>`)
	return sb.String()
}

// EstimateBandSVG renders the estimate ± spread chart the live monitor shows.
func EstimateBandSVG(res *experiment.Result, width, height int, scale float64) string {
	n := len(res.Generations)
	centre := make([]float64, n)
	half := make([]float64, n)
	lo := make([]float64, n)
	hi := make([]float64, n)
	for i, g := range res.Generations {
		centre[i], half[i] = g.Estimate, g.Spread
		lo[i], hi[i] = g.Estimate-g.Spread, g.Estimate+g.Spread
	}

	canvas := viz.NewCanvas(width, height)
	s := viz.FitScale(n, lo, hi)
	canvas.Band(s, centre, half)
	canvas.Line(s, centre)
	return CanvasToSVG(canvas, scale)
}

func WriteSVG(path, svg string) error {
	if svg == "" {
		return fmt.Errorf("nothing to draw for %s", path)
	}
	return os.WriteFile(path, []byte(svg), 0644)
}
