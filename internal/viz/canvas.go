package viz

import (
	"math"
	"strings"
)

// Braille cells are 2x4 dots:
// 1 4
// 2 5
// 3 6
// 7 8
var pixelMap = [4][2]int{
	{0x1, 0x8},
	{0x2, 0x10},
	{0x4, 0x20},
	{0x40, 0x80},
}

const blank = 0x2800

// Canvas is a Braille pixel grid of Width x Height cells, i.e.
// (Width*2) x (Height*4) dots.
type Canvas struct {
	Width, Height int
	Grid          [][]rune
}

func NewCanvas(w, h int) *Canvas {
	c := &Canvas{
		Width:  w,
		Height: h,
		Grid:   make([][]rune, h),
	}
	for i := range c.Grid {
		c.Grid[i] = make([]rune, w)
		for j := range c.Grid[i] {
			c.Grid[i][j] = blank
		}
	}
	return c
}

func (c *Canvas) Set(x, y int) {
	if x < 0 || y < 0 {
		return
	}

	col := x / 2
	row := y / 4
	if col >= c.Width || row >= c.Height {
		return
	}

	c.Grid[row][col] |= rune(pixelMap[y%4][x%2])
}

func (c *Canvas) Clear() {
	for i := range c.Grid {
		for j := range c.Grid[i] {
			c.Grid[i][j] = blank
		}
	}
}

// DrawLine draws a line using Bresenham's algorithm
func (c *Canvas) DrawLine(x0, y0, x1, y1 int) {
	dx := absInt(x1 - x0)
	dy := absInt(y1 - y0)
	sx := -1
	if x0 < x1 {
		sx = 1
	}
	sy := -1
	if y0 < y1 {
		sy = 1
	}
	err := dx - dy

	for {
		c.Set(x0, y0)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x0 += sx
		}
		if e2 < dx {
			err += dx
			y0 += sy
		}
	}
}

// Scale maps data coordinates onto canvas dots. Generation i of n lands on
// column i*(dots-1)/(n-1); values in [Lo, Hi] land top to bottom.
type Scale struct {
	N      int
	Lo, Hi float64
}

// FitScale covers every finite value in the given series.
func FitScale(n int, series ...[]float64) Scale {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, s := range series {
		for _, v := range s {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	if lo > hi {
		lo, hi = 0, 1
	}
	if hi == lo {
		lo, hi = lo-0.5, hi+0.5
	}
	return Scale{N: n, Lo: lo, Hi: hi}
}

func (c *Canvas) project(s Scale, i int, v float64) (int, int) {
	w, h := c.Width*2-1, c.Height*4-1
	x := 0
	if s.N > 1 {
		x = i * w / (s.N - 1)
	}
	y := h - int(math.Round((v-s.Lo)/(s.Hi-s.Lo)*float64(h)))
	return x, y
}

// Line draws ys as a polyline.
func (c *Canvas) Line(s Scale, ys []float64) {
	for i := 1; i < len(ys); i++ {
		x0, y0 := c.project(s, i-1, ys[i-1])
		x1, y1 := c.project(s, i, ys[i])
		c.DrawLine(x0, y0, x1, y1)
	}
	if len(ys) == 1 {
		c.Set(c.project(s, 0, ys[0]))
	}
}

// Band draws a vertical bar centre[i] ± half[i] at every generation.
func (c *Canvas) Band(s Scale, centre, half []float64) {
	for i := range centre {
		x, top := c.project(s, i, centre[i]+half[i])
		_, bottom := c.project(s, i, centre[i]-half[i])
		c.DrawLine(x, top, x, bottom)
	}
}

func (c *Canvas) String() string {
	var b strings.Builder
	for _, row := range c.Grid {
		b.WriteString(string(row) + "\n")
	}
	return b.String()
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
