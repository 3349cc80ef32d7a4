package heatmap

import (
	"image"
	"image/color"
	"testing"

	"github.com/verte-zerg/gazemap/internal/model"
)

func TestRampEndpoints(t *testing.T) {
	r := MustDefaultRamp()
	if got := r.At(0); got != (color.RGBA{0, 0, 255, 255}) {
		t.Fatalf("unexpected low color %v", got)
	}
	if got := r.At(1); got != (color.RGBA{255, 0, 0, 255}) {
		t.Fatalf("unexpected high color %v", got)
	}
	// The table is sampled at floor(v*255), one step short of the lime stop.
	if got := r.At(0.5); got.R != 0 || got.G != 255 || got.B > 8 {
		t.Fatalf("unexpected mid color %v", got)
	}
}

func TestNewRampRejectsBadStops(t *testing.T) {
	if _, err := NewRamp([]Stop{{At: 0.2}, {At: 1}}); err == nil {
		t.Fatalf("expected error for missing 0 stop")
	}
	if _, err := NewRamp([]Stop{{At: 0}, {At: 0}, {At: 1}}); err == nil {
		t.Fatalf("expected error for duplicate stop")
	}
}

func TestParseStops(t *testing.T) {
	stops, err := ParseStops(map[string]string{"0": "black", "1": "#fff"})
	if err != nil {
		t.Fatalf("parse stops: %v", err)
	}
	r, err := NewRamp(stops)
	if err != nil {
		t.Fatalf("new ramp: %v", err)
	}
	if got := r.At(1); got != (color.RGBA{255, 255, 255, 255}) {
		t.Fatalf("unexpected color %v", got)
	}
	if _, err := ParseStops(map[string]string{"0": "chartreuse-ish"}); err == nil {
		t.Fatalf("expected error for unknown color")
	}
}

func TestColorizeOpacityBounds(t *testing.T) {
	view := model.Viewport{Width: 200, Height: 200}
	samples := []model.GazeSample{{X: 50, Y: 50}, {X: 52, Y: 51}, {X: 150, Y: 120}}
	grid := Build(samples, view, 40, 4)
	img := Colorize(grid, MustDefaultRamp(), 0.05, 0.7)

	lo, hi := AlphaRange(0.05, 0.7)
	seen := 0
	for i := 3; i < len(img.Pix); i += 4 {
		a := img.Pix[i]
		if a == 0 {
			continue
		}
		seen++
		if a < lo || a > hi {
			t.Fatalf("alpha %d outside [%d, %d]", a, lo, hi)
		}
	}
	if seen == 0 {
		t.Fatalf("expected colored cells")
	}
	if lo != 13 || hi != 178 {
		t.Fatalf("unexpected alpha range %d..%d", lo, hi)
	}
}

func TestCompositeZeroSamplesClears(t *testing.T) {
	dst := image.NewRGBA(image.Rect(0, 0, 40, 40))
	for i := range dst.Pix {
		dst.Pix[i] = 0xff
	}
	grid := Build(nil, model.Viewport{Width: 40, Height: 40}, 40, 4)
	if Composite(dst, grid, MustDefaultRamp(), model.DefaultHeatmapParams()) {
		t.Fatalf("expected no draw for empty grid")
	}
	for i, v := range dst.Pix {
		if v != 0 {
			t.Fatalf("expected cleared surface, byte %d = %d", i, v)
		}
	}
}

func TestCompositeAlphaBounds(t *testing.T) {
	params := model.DefaultHeatmapParams()
	params.Blur = 30
	view := model.Viewport{Width: 160, Height: 120}
	dst := image.NewRGBA(image.Rect(0, 0, view.Width, view.Height))
	samples := []model.GazeSample{{X: 80, Y: 60}, {X: 80, Y: 60}, {X: 20, Y: 20}}
	if !Render(dst, samples, view, MustDefaultRamp(), params) {
		t.Fatalf("expected a draw")
	}
	lo, hi := AlphaRange(params.MinOpacity, params.MaxOpacity)
	nonzero := 0
	for i := 3; i < len(dst.Pix); i += 4 {
		a := dst.Pix[i]
		if a == 0 {
			continue
		}
		nonzero++
		if a < lo || a > hi {
			t.Fatalf("alpha %d outside [%d, %d]", a, lo, hi)
		}
		if dst.Pix[i-1] > a || dst.Pix[i-2] > a || dst.Pix[i-3] > a {
			t.Fatalf("premultiplied color exceeds alpha at byte %d", i)
		}
	}
	if nonzero == 0 {
		t.Fatalf("expected visible density")
	}
}

func TestGaussianKernelNormalized(t *testing.T) {
	k := GaussianKernel(3.75)
	sum := float32(0)
	for _, v := range k {
		sum += v
	}
	if sum < 0.999 || sum > 1.001 {
		t.Fatalf("kernel sum %v", sum)
	}
	if len(k) != 2*12+1 {
		t.Fatalf("unexpected kernel size %d", len(k))
	}
}
