package heatmap

import (
	"image"
	"image/draw"
	"math"

	xdraw "golang.org/x/image/draw"

	"github.com/verte-zerg/gazemap/internal/model"
)

// AlphaRange returns the 8-bit alpha bounds that honour the opacity range.
func AlphaRange(minOpacity, maxOpacity float64) (uint8, uint8) {
	minOpacity = clamp01(minOpacity)
	maxOpacity = clamp01(maxOpacity)
	if maxOpacity < minOpacity {
		maxOpacity = minOpacity
	}
	lo := math.Ceil(minOpacity * 255)
	hi := math.Floor(maxOpacity * 255)
	if hi < lo {
		hi = lo
	}
	return uint8(lo), uint8(hi)
}

// Colorize maps each non-zero grid cell to a ramp color with an alpha
// scaled linearly between minOpacity and maxOpacity. Zero cells stay
// transparent. The result has one pixel per grid cell.
func Colorize(grid Grid, ramp *Ramp, minOpacity, maxOpacity float64) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, grid.Width, grid.Height))
	maxVal := grid.Max()
	if maxVal == 0 {
		return img
	}
	lo, hi := AlphaRange(minOpacity, maxOpacity)
	minOpacity = clamp01(minOpacity)
	maxOpacity = math.Max(clamp01(maxOpacity), minOpacity)

	for y := 0; y < grid.Height; y++ {
		for x := 0; x < grid.Width; x++ {
			cell := grid.Cells[y*grid.Width+x]
			if cell <= 0 {
				continue
			}
			v := cell / maxVal
			c := ramp.At(v)
			a := math.Round((minOpacity + (maxOpacity-minOpacity)*v) * 255)
			if a < float64(lo) {
				a = float64(lo)
			}
			if a > float64(hi) {
				a = float64(hi)
			}
			i := img.PixOffset(x, y)
			img.Pix[i] = c.R
			img.Pix[i+1] = c.G
			img.Pix[i+2] = c.B
			img.Pix[i+3] = uint8(a)
		}
	}
	return img
}

// Composite clears dst and draws the blurred, upscaled density of grid over
// it. It reports false when the grid holds no intensity, leaving dst clear.
func Composite(dst *image.RGBA, grid Grid, ramp *Ramp, params model.HeatmapParams) bool {
	draw.Draw(dst, dst.Bounds(), image.Transparent, image.Point{}, draw.Src)
	if grid.Empty() {
		return false
	}
	low := Colorize(grid, ramp, params.MinOpacity, params.MaxOpacity)

	premul := image.NewRGBA(low.Bounds())
	draw.Draw(premul, premul.Bounds(), low, image.Point{}, draw.Src)

	scale := params.Scale
	if scale <= 0 {
		scale = DefaultScale
	}
	Blur(premul, params.Blur/float64(scale))

	xdraw.BiLinear.Scale(dst, dst.Bounds(), premul, premul.Bounds(), xdraw.Over, nil)
	lo, hi := AlphaRange(params.MinOpacity, params.MaxOpacity)
	clampAlpha(dst, lo, hi)
	return true
}

// clampAlpha keeps blurred and interpolated pixels inside the opacity
// range: alpha below lo is cleared and alpha above hi is scaled down.
func clampAlpha(img *image.RGBA, lo, hi uint8) {
	for i := 0; i+3 < len(img.Pix); i += 4 {
		a := img.Pix[i+3]
		switch {
		case a == 0:
		case a < lo:
			img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 0, 0, 0, 0
		case a > hi:
			f := float64(hi) / float64(a)
			img.Pix[i] = uint8(float64(img.Pix[i]) * f)
			img.Pix[i+1] = uint8(float64(img.Pix[i+1]) * f)
			img.Pix[i+2] = uint8(float64(img.Pix[i+2]) * f)
			img.Pix[i+3] = hi
		}
	}
}

// Render builds the grid for samples and composites it onto dst.
func Render(dst *image.RGBA, samples []model.GazeSample, view model.Viewport, ramp *Ramp, params model.HeatmapParams) bool {
	grid := Build(samples, view, params.Radius, params.Scale)
	return Composite(dst, grid, ramp, params)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
