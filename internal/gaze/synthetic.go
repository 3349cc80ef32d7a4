package gaze

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"
)

// Fixation is a weighted attention target for the synthetic source.
type Fixation struct {
	X, Y   float64
	Weight float64
}

// SyntheticOptions configure a Synthetic source.
type SyntheticOptions struct {
	Seed      int64
	Width     int
	Height    int
	Jitter    float64
	Interval  time.Duration
	Fixations []Fixation
	// Routes, when set, are visited in order, switching every PageEvery
	// samples.
	Routes    []string
	PageEvery int
}

// Synthetic emits deterministic gaze samples clustered around fixations.
type Synthetic struct {
	opts SyntheticOptions
	rnd  *rand.Rand

	mu       sync.Mutex
	onSample SampleFunc
	onPage   PageFunc

	started atomic.Bool
	paused  atomic.Bool
	emitted int
	route   int
	clock   int64
}

// NewSynthetic returns a seeded synthetic source.
func NewSynthetic(opts SyntheticOptions) *Synthetic {
	if opts.Width <= 0 {
		opts.Width = 1280
	}
	if opts.Height <= 0 {
		opts.Height = 800
	}
	if opts.Jitter <= 0 {
		opts.Jitter = 18
	}
	if opts.Interval <= 0 {
		opts.Interval = 33 * time.Millisecond
	}
	if len(opts.Fixations) == 0 {
		w, h := float64(opts.Width), float64(opts.Height)
		opts.Fixations = []Fixation{
			{X: w * 0.25, Y: h * 0.2, Weight: 3},
			{X: w * 0.6, Y: h * 0.35, Weight: 2},
			{X: w * 0.5, Y: h * 0.75, Weight: 1},
		}
	}
	return &Synthetic{opts: opts, rnd: rand.New(rand.NewSource(opts.Seed))}
}

// SetSampleCallback implements Source.
func (s *Synthetic) SetSampleCallback(fn SampleFunc) {
	s.mu.Lock()
	s.onSample = fn
	s.mu.Unlock()
}

// SetPageCallback implements PageFeed.
func (s *Synthetic) SetPageCallback(fn PageFunc) {
	s.mu.Lock()
	s.onPage = fn
	s.mu.Unlock()
}

// IsReady implements Source.
func (s *Synthetic) IsReady() bool {
	return len(s.opts.Fixations) > 0
}

// Begin starts the emitter goroutine.
func (s *Synthetic) Begin(ctx context.Context) error {
	s.paused.Store(false)
	if !s.started.CompareAndSwap(false, true) {
		return nil
	}
	go func() {
		ticker := time.NewTicker(s.opts.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !s.paused.Load() {
					s.Step()
				}
			}
		}
	}()
	return nil
}

// Pause implements Source.
func (s *Synthetic) Pause() {
	s.paused.Store(true)
}

// Resume implements Source.
func (s *Synthetic) Resume() {
	s.paused.Store(false)
}

// Step emits one sample synchronously, switching route first when due.
func (s *Synthetic) Step() {
	s.mu.Lock()
	onSample, onPage := s.onSample, s.onPage
	var nav *PageEvent
	if len(s.opts.Routes) > 0 && s.opts.PageEvery > 0 && s.emitted > 0 && s.emitted%s.opts.PageEvery == 0 {
		s.route = (s.route + 1) % len(s.opts.Routes)
		nav = &PageEvent{Kind: PageNavigate, Route: s.opts.Routes[s.route]}
	}
	x, y := s.next()
	s.emitted++
	s.clock += s.opts.Interval.Milliseconds()
	t := s.clock
	s.mu.Unlock()

	if nav != nil && onPage != nil {
		onPage(*nav)
	}
	if onSample != nil {
		onSample(x, y, t)
	}
}

// Points returns n deterministic points without invoking callbacks.
func (s *Synthetic) Points(n int) [][2]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][2]float64, 0, n)
	for i := 0; i < n; i++ {
		x, y := s.next()
		out = append(out, [2]float64{x, y})
	}
	return out
}

func (s *Synthetic) next() (float64, float64) {
	f := s.pick()
	x := f.X + s.rnd.NormFloat64()*s.opts.Jitter
	y := f.Y + s.rnd.NormFloat64()*s.opts.Jitter
	x = math.Max(0, math.Min(float64(s.opts.Width-1), x))
	y = math.Max(0, math.Min(float64(s.opts.Height-1), y))
	return x, y
}

func (s *Synthetic) pick() Fixation {
	total := 0.0
	for _, f := range s.opts.Fixations {
		total += math.Max(f.Weight, 0)
	}
	if total == 0 {
		return s.opts.Fixations[s.rnd.Intn(len(s.opts.Fixations))]
	}
	r := s.rnd.Float64() * total
	acc := 0.0
	for _, f := range s.opts.Fixations {
		acc += math.Max(f.Weight, 0)
		if r <= acc {
			return f
		}
	}
	return s.opts.Fixations[len(s.opts.Fixations)-1]
}
