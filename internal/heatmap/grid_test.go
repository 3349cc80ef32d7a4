package heatmap

import (
	"math"
	"testing"

	"github.com/verte-zerg/gazemap/internal/model"
)

func TestBuildDimensions(t *testing.T) {
	grid := Build(nil, model.Viewport{Width: 1001, Height: 797}, 40, 4)
	if grid.Width != 251 || grid.Height != 200 {
		t.Fatalf("unexpected grid size %dx%d", grid.Width, grid.Height)
	}
	if !grid.Empty() {
		t.Fatalf("expected empty grid")
	}
}

func TestBuildSingleSample(t *testing.T) {
	view := model.Viewport{Width: 400, Height: 400}
	samples := []model.GazeSample{{X: 200, Y: 200, Page: "/"}}
	grid := Build(samples, view, 40, 4)

	if got := grid.At(50, 50); got != 1 {
		t.Fatalf("expected centre weight 1, got %v", got)
	}
	if grid.Max() != 1 {
		t.Fatalf("expected max 1, got %v", grid.Max())
	}
	// gr = 10, sigma = 5; the disc edge is still inside the radius.
	want := math.Exp(-100.0 / 50.0)
	if got := grid.At(60, 50); math.Abs(got-want) > 1e-12 {
		t.Fatalf("expected edge weight %v, got %v", want, got)
	}
	if got := grid.At(61, 50); got != 0 {
		t.Fatalf("expected zero outside radius, got %v", got)
	}
	if got := grid.At(58, 58); got != 0 {
		t.Fatalf("expected corner outside disc to be zero, got %v", got)
	}
}

func TestBuildCullsOutsideViewport(t *testing.T) {
	view := model.Viewport{Width: 400, Height: 300, ScrollY: 1000}
	samples := []model.GazeSample{
		{X: 100, Y: 500},
		{X: 100, Y: 1400},
		{X: 100, Y: 999},
	}
	grid := Build(samples, view, 40, 4)
	if !grid.Empty() {
		t.Fatalf("expected culled samples to contribute nothing")
	}

	samples = append(samples, model.GazeSample{X: 100, Y: 1300})
	grid = Build(samples, view, 40, 4)
	if grid.Empty() {
		t.Fatalf("expected sample at the bottom edge to count")
	}
}

func TestBuildIdempotent(t *testing.T) {
	view := model.Viewport{Width: 320, Height: 240, ScrollY: 20}
	samples := []model.GazeSample{
		{X: 10, Y: 30}, {X: 318, Y: 255}, {X: 160, Y: 140}, {X: 161, Y: 141},
	}
	a := Build(samples, view, 30, 4)
	b := Build(samples, view, 30, 4)
	if len(a.Cells) != len(b.Cells) {
		t.Fatalf("grid size changed between builds")
	}
	for i := range a.Cells {
		if math.Float64bits(a.Cells[i]) != math.Float64bits(b.Cells[i]) {
			t.Fatalf("cell %d differs: %v vs %v", i, a.Cells[i], b.Cells[i])
		}
	}
}

func TestBuildAccumulates(t *testing.T) {
	view := model.Viewport{Width: 100, Height: 100}
	one := Build([]model.GazeSample{{X: 50, Y: 50}}, view, 20, 4)
	two := Build([]model.GazeSample{{X: 50, Y: 50}, {X: 50, Y: 50}}, view, 20, 4)
	if two.Max() != 2*one.Max() {
		t.Fatalf("expected doubled intensity, got %v vs %v", two.Max(), one.Max())
	}
}

func TestBuildTwoNearbySamples(t *testing.T) {
	view := model.Viewport{Width: 400, Height: 300}
	samples := []model.GazeSample{{X: 100, Y: 100, Page: "/a"}, {X: 110, Y: 100, Page: "/a"}}
	grid := Build(samples, view, 40, 4)

	// The samples land in cells 25 and 27; the cell between them collects
	// the most weight.
	maxX, maxY := -1, -1
	for y := 0; y < grid.Height; y++ {
		for x := 0; x < grid.Width; x++ {
			if grid.At(x, y) == grid.Max() {
				maxX, maxY = x, y
			}
		}
	}
	if maxX != 26 || maxY != 25 {
		t.Fatalf("expected maximum at (26,25), got (%d,%d)", maxX, maxY)
	}
	want := 2 * math.Exp(-1.0/50.0)
	if got := grid.Max(); math.Abs(got-want) > 1e-12 {
		t.Fatalf("expected max %v, got %v", want, got)
	}
	if grid.At(25, 25) != grid.At(27, 25) {
		t.Fatalf("expected symmetric weights, got %v and %v", grid.At(25, 25), grid.At(27, 25))
	}
}
