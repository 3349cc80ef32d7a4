// Package heatmap builds and draws the gaze density overlay.
package heatmap

import (
	"math"

	"github.com/golang/geo/r1"
	"github.com/golang/geo/r2"

	"github.com/verte-zerg/gazemap/internal/model"
)

// DefaultScale is the grid downsample factor.
const DefaultScale = 4

// Grid is a downsampled intensity accumulator, row-major.
type Grid struct {
	Width  int
	Height int
	Cells  []float64
}

// NewGrid allocates a zeroed grid covering a width x height viewport.
func NewGrid(width, height, scale int) Grid {
	if scale <= 0 {
		scale = DefaultScale
	}
	gw := ceilDiv(width, scale)
	gh := ceilDiv(height, scale)
	return Grid{Width: gw, Height: gh, Cells: make([]float64, gw*gh)}
}

// At returns the value at cell (x, y), or 0 outside the grid.
func (g Grid) At(x, y int) float64 {
	if x < 0 || y < 0 || x >= g.Width || y >= g.Height {
		return 0
	}
	return g.Cells[y*g.Width+x]
}

// Max returns the largest cell value.
func (g Grid) Max() float64 {
	maxVal := 0.0
	for _, v := range g.Cells {
		if v > maxVal {
			maxVal = v
		}
	}
	return maxVal
}

// Empty reports whether no cell received any intensity.
func (g Grid) Empty() bool {
	return g.Max() == 0
}

// Build accumulates Gaussian-weighted contributions of the samples visible
// in view. Samples whose viewport Y falls outside [0, view.Height] are
// skipped for this pass only.
func Build(samples []model.GazeSample, view model.Viewport, radius float64, scale int) Grid {
	if scale <= 0 {
		scale = DefaultScale
	}
	grid := NewGrid(view.Width, view.Height, scale)
	if len(grid.Cells) == 0 || len(samples) == 0 {
		return grid
	}
	visible := r1.Interval{Lo: 0, Hi: float64(view.Height)}
	s := float64(scale)
	gr := int(math.Ceil(radius / s))
	if gr < 1 {
		gr = 1
	}
	sigma := float64(gr) / 2
	twoSigmaSq := 2 * sigma * sigma
	limit := float64(gr)

	for _, sample := range samples {
		viewportY := sample.Y - view.ScrollY
		if !visible.Contains(viewportY) {
			continue
		}
		cx := int(math.Floor(sample.X / s))
		cy := int(math.Floor(viewportY / s))
		center := r2.Point{X: float64(cx), Y: float64(cy)}

		y0, y1 := maxInt(0, cy-gr), minInt(grid.Height-1, cy+gr)
		x0, x1 := maxInt(0, cx-gr), minInt(grid.Width-1, cx+gr)
		for y := y0; y <= y1; y++ {
			row := grid.Cells[y*grid.Width : (y+1)*grid.Width]
			for x := x0; x <= x1; x++ {
				d := r2.Point{X: float64(x), Y: float64(y)}.Sub(center).Norm()
				if d > limit {
					continue
				}
				row[x] += math.Exp(-(d * d) / twoSigmaSq)
			}
		}
	}
	return grid
}

func ceilDiv(n, d int) int {
	if n <= 0 {
		return 0
	}
	return (n + d - 1) / d
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
