package heatmap

import (
	"image"

	"github.com/verte-zerg/gazemap/internal/model"
)

// Overlay owns the visibility flag, the rendering parameters and the
// drawable surface. The surface exists only while the overlay is visible
// and the viewport has a non-zero size.
type Overlay struct {
	visible   bool
	params    model.HeatmapParams
	ramp      *Ramp
	width     int
	height    int
	surface   *image.RGBA
	onSurface func()
	drawn     bool
}

// NewOverlay returns a hidden overlay. A nil ramp selects the default ramp.
func NewOverlay(params model.HeatmapParams, ramp *Ramp) *Overlay {
	if ramp == nil {
		ramp = MustDefaultRamp()
	}
	return &Overlay{params: params, ramp: ramp}
}

// OnSurface registers fn to run each time a new surface becomes available.
func (o *Overlay) OnSurface(fn func()) {
	o.onSurface = fn
}

// Visible reports whether the overlay is shown.
func (o *Overlay) Visible() bool {
	return o.visible
}

// Show makes the overlay visible and allocates its surface.
func (o *Overlay) Show() {
	if o.visible {
		return
	}
	o.visible = true
	o.allocate()
}

// Hide releases the surface.
func (o *Overlay) Hide() {
	o.visible = false
	o.surface = nil
	o.drawn = false
}

// Toggle flips visibility and returns the new state.
func (o *Overlay) Toggle() bool {
	if o.visible {
		o.Hide()
	} else {
		o.Show()
	}
	return o.visible
}

// Resize drops the current surface. A visible overlay gets a fresh blank
// surface of the new size.
func (o *Overlay) Resize(width, height int) {
	if width == o.width && height == o.height && o.surface != nil {
		return
	}
	o.width, o.height = width, height
	o.surface = nil
	o.drawn = false
	if o.visible {
		o.allocate()
	}
}

// Params returns the parameters used by the next render pass.
func (o *Overlay) Params() model.HeatmapParams {
	return o.params
}

// SetParams replaces the parameters. Already rendered frames are untouched.
func (o *Overlay) SetParams(p model.HeatmapParams) {
	o.params = p
}

// Ramp returns the active color ramp.
func (o *Overlay) Ramp() *Ramp {
	return o.ramp
}

// SetRamp replaces the color ramp. A nil ramp is ignored.
func (o *Overlay) SetRamp(r *Ramp) {
	if r != nil {
		o.ramp = r
	}
}

// Surface returns the drawable surface, or nil when none exists.
func (o *Overlay) Surface() *image.RGBA {
	return o.surface
}

// Drawn reports whether the last pass put any density on the surface.
func (o *Overlay) Drawn() bool {
	return o.drawn
}

// Render runs one pass over samples. It is a no-op when the overlay is
// hidden or has no surface, and reports whether anything was drawn.
func (o *Overlay) Render(samples []model.GazeSample, view model.Viewport) bool {
	if !o.visible || o.surface == nil {
		return false
	}
	o.drawn = Render(o.surface, samples, view, o.ramp, o.params)
	return o.drawn
}

// Capture draws samples onto a fresh image the size of the surface, using
// the current parameters. It returns nil when there is no surface.
func (o *Overlay) Capture(samples []model.GazeSample, view model.Viewport) *image.RGBA {
	if !o.visible || o.surface == nil {
		return nil
	}
	img := image.NewRGBA(o.surface.Bounds())
	Render(img, samples, view, o.ramp, o.params)
	return img
}

func (o *Overlay) allocate() {
	if !model.ValidSize(o.width, o.height) {
		return
	}
	o.surface = image.NewRGBA(image.Rect(0, 0, o.width, o.height))
	if o.onSurface != nil {
		o.onSurface()
	}
}
