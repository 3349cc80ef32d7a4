package tui

import (
	"math"

	"github.com/verte-zerg/gazemap/internal/model"
)

type paramsEdit struct {
	p model.HeatmapParams
}

func (e *paramsEdit) radius(delta float64) {
	e.p.Radius = math.Max(1, e.p.Radius+delta)
}

func (e *paramsEdit) blur(delta float64) {
	e.p.Blur = math.Max(0, e.p.Blur+delta)
}

// opacity moves the upper bound, keeping it within [MinOpacity, 1].
func (e *paramsEdit) opacity(delta float64) {
	v := math.Round((e.p.MaxOpacity+delta)*100) / 100
	e.p.MaxOpacity = math.Min(1, math.Max(e.p.MinOpacity, v))
}

func (m *Model) adjust(fn func(*paramsEdit)) {
	cur := m.ctrl.Params()
	e := paramsEdit{p: cur}
	fn(&e)
	if e.p != cur {
		m.ctrl.SetParams(e.p)
	}
}
