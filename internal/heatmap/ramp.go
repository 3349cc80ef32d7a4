package heatmap

import (
	"fmt"
	"image/color"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Stop is one gradient stop.
type Stop struct {
	At    float64
	Color color.RGBA
}

// Ramp maps normalized intensity to color through a precomputed table.
type Ramp struct {
	stops []Stop
	lut   [256]color.RGBA
}

// DefaultStops is the blue to red density gradient.
func DefaultStops() []Stop {
	return []Stop{
		{At: 0.0, Color: color.RGBA{R: 0, G: 0, B: 255, A: 255}},
		{At: 0.25, Color: color.RGBA{R: 0, G: 255, B: 255, A: 255}},
		{At: 0.5, Color: color.RGBA{R: 0, G: 255, B: 0, A: 255}},
		{At: 0.75, Color: color.RGBA{R: 255, G: 255, B: 0, A: 255}},
		{At: 1.0, Color: color.RGBA{R: 255, G: 0, B: 0, A: 255}},
	}
}

// NewRamp validates the stops and precomputes the lookup table.
// Stops must be strictly increasing and span exactly [0, 1].
func NewRamp(stops []Stop) (*Ramp, error) {
	if len(stops) < 2 {
		return nil, fmt.Errorf("gradient needs at least 2 stops, got %d", len(stops))
	}
	sorted := make([]Stop, len(stops))
	copy(sorted, stops)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].At < sorted[j].At })
	if sorted[0].At != 0 || sorted[len(sorted)-1].At != 1 {
		return nil, fmt.Errorf("gradient stops must start at 0 and end at 1")
	}
	for i := 1; i < len(sorted); i++ {
		if sorted[i].At == sorted[i-1].At {
			return nil, fmt.Errorf("duplicate gradient stop at %g", sorted[i].At)
		}
	}
	r := &Ramp{stops: sorted}
	for i := range r.lut {
		r.lut[i] = r.interpolate(float64(i) / 255)
	}
	return r, nil
}

// MustDefaultRamp returns the ramp built from DefaultStops.
func MustDefaultRamp() *Ramp {
	r, err := NewRamp(DefaultStops())
	if err != nil {
		panic(err)
	}
	return r
}

// At returns the color for v, clamped to [0, 1].
func (r *Ramp) At(v float64) color.RGBA {
	if math.IsNaN(v) || v <= 0 {
		return r.lut[0]
	}
	if v >= 1 {
		return r.lut[255]
	}
	return r.lut[int(math.Floor(v*255))]
}

// Stops returns a copy of the ramp stops.
func (r *Ramp) Stops() []Stop {
	out := make([]Stop, len(r.stops))
	copy(out, r.stops)
	return out
}

func (r *Ramp) interpolate(t float64) color.RGBA {
	for i := 1; i < len(r.stops); i++ {
		lo, hi := r.stops[i-1], r.stops[i]
		if t > hi.At && i < len(r.stops)-1 {
			continue
		}
		f := (t - lo.At) / (hi.At - lo.At)
		if f < 0 {
			f = 0
		}
		if f > 1 {
			f = 1
		}
		return color.RGBA{
			R: lerp8(lo.Color.R, hi.Color.R, f),
			G: lerp8(lo.Color.G, hi.Color.G, f),
			B: lerp8(lo.Color.B, hi.Color.B, f),
			A: 255,
		}
	}
	return r.stops[len(r.stops)-1].Color
}

func lerp8(a, b uint8, t float64) uint8 {
	return uint8(math.Round(float64(a) + (float64(b)-float64(a))*t))
}

// ParseStops converts config entries ("0.5" = "lime" or "#00ff00") to stops.
func ParseStops(entries map[string]string) ([]Stop, error) {
	stops := make([]Stop, 0, len(entries))
	for k, v := range entries {
		at, err := strconv.ParseFloat(strings.TrimSpace(k), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid gradient stop %q: %w", k, err)
		}
		if at < 0 || at > 1 {
			return nil, fmt.Errorf("gradient stop %q outside [0, 1]", k)
		}
		c, err := ParseColor(v)
		if err != nil {
			return nil, err
		}
		stops = append(stops, Stop{At: at, Color: c})
	}
	sort.Slice(stops, func(i, j int) bool { return stops[i].At < stops[j].At })
	return stops, nil
}

var namedColors = map[string]color.RGBA{
	"black":   {0, 0, 0, 255},
	"white":   {255, 255, 255, 255},
	"red":     {255, 0, 0, 255},
	"lime":    {0, 255, 0, 255},
	"green":   {0, 128, 0, 255},
	"blue":    {0, 0, 255, 255},
	"cyan":    {0, 255, 255, 255},
	"aqua":    {0, 255, 255, 255},
	"magenta": {255, 0, 255, 255},
	"yellow":  {255, 255, 0, 255},
	"orange":  {255, 165, 0, 255},
	"purple":  {128, 0, 128, 255},
	"navy":    {0, 0, 128, 255},
}

// ParseColor accepts a CSS color name from a small set or #rgb/#rrggbb.
func ParseColor(s string) (color.RGBA, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if c, ok := namedColors[s]; ok {
		return c, nil
	}
	if !strings.HasPrefix(s, "#") {
		return color.RGBA{}, fmt.Errorf("unknown color %q", s)
	}
	hex := s[1:]
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid hex color %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid hex color %q: %w", s, err)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}
