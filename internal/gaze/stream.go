package gaze

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/verte-zerg/gazemap/internal/logging"
	"github.com/verte-zerg/gazemap/internal/model"
)

// Record is one JSON line of a gaze stream.
type Record struct {
	Type  string   `json:"type"`
	X     *float64 `json:"x,omitempty"`
	Y     *float64 `json:"y,omitempty"`
	T     int64    `json:"t,omitempty"`
	Route string   `json:"route,omitempty"`
	W     int      `json:"w,omitempty"`
	H     int      `json:"h,omitempty"`
}

// StreamOptions configure a StreamSource.
type StreamOptions struct {
	// ReplaySpeed paces gaze records by their timestamps. Zero disables
	// pacing; 2 replays twice as fast as recorded.
	ReplaySpeed float64
	// MaxSleep caps a single replay pause. Zero means no cap.
	MaxSleep time.Duration
	Logger   *slog.Logger
}

// StreamSource reads JSON-lines records from a reader.
type StreamSource struct {
	r    io.Reader
	opts StreamOptions

	mu       sync.Mutex
	onSample SampleFunc
	onPage   PageFunc

	started atomic.Bool
	paused  atomic.Bool
	done    chan struct{}
	err     error
}

// NewStreamSource returns a source reading from r.
func NewStreamSource(r io.Reader, opts StreamOptions) *StreamSource {
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	return &StreamSource{r: r, opts: opts, done: make(chan struct{})}
}

// SetSampleCallback implements Source.
func (s *StreamSource) SetSampleCallback(fn SampleFunc) {
	s.mu.Lock()
	s.onSample = fn
	s.mu.Unlock()
}

// SetPageCallback implements PageFeed.
func (s *StreamSource) SetPageCallback(fn PageFunc) {
	s.mu.Lock()
	s.onPage = fn
	s.mu.Unlock()
}

// IsReady implements Source.
func (s *StreamSource) IsReady() bool {
	return s.r != nil
}

// Begin starts reading. Calling Begin again resumes a paused source.
func (s *StreamSource) Begin(ctx context.Context) error {
	if s.r == nil {
		return ErrNotReady
	}
	s.paused.Store(false)
	if !s.started.CompareAndSwap(false, true) {
		return nil
	}
	go s.run(ctx)
	return nil
}

// Pause suppresses sample delivery. Page events keep flowing.
func (s *StreamSource) Pause() {
	s.paused.Store(true)
}

// Resume restarts sample delivery.
func (s *StreamSource) Resume() {
	s.paused.Store(false)
}

// Done is closed when the stream ends.
func (s *StreamSource) Done() <-chan struct{} {
	return s.done
}

// Err returns the read error after Done is closed. A clean EOF is nil.
func (s *StreamSource) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

func (s *StreamSource) run(ctx context.Context) {
	defer close(s.done)
	scanner := bufio.NewScanner(s.r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	var prev int64
	line := 0
	for scanner.Scan() {
		line++
		if ctx.Err() != nil {
			return
		}
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			s.opts.Logger.Warn("skipping malformed record", "line", line, "err", err)
			continue
		}
		if rec.Type == "gaze" && s.opts.ReplaySpeed > 0 {
			if prev != 0 && rec.T > prev {
				if !s.sleep(ctx, time.Duration(float64(time.Duration(rec.T-prev)*time.Millisecond)/s.opts.ReplaySpeed)) {
					return
				}
			}
			prev = rec.T
		}
		s.dispatch(rec)
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		s.err = fmt.Errorf("failed to read gaze stream: %w", err)
	}
}

func (s *StreamSource) sleep(ctx context.Context, d time.Duration) bool {
	if s.opts.MaxSleep > 0 && d > s.opts.MaxSleep {
		d = s.opts.MaxSleep
	}
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (s *StreamSource) dispatch(rec Record) {
	s.mu.Lock()
	onSample, onPage := s.onSample, s.onPage
	s.mu.Unlock()
	Deliver(rec, onSample, onPage, s.paused.Load())
}

// Deliver routes a decoded record to the callbacks. Gaze records with
// missing coordinates are dropped, as are all gaze records while paused.
func Deliver(rec Record, onSample SampleFunc, onPage PageFunc, paused bool) {
	switch rec.Type {
	case "gaze":
		if paused || onSample == nil || rec.X == nil || rec.Y == nil {
			return
		}
		onSample(*rec.X, *rec.Y, rec.T)
	case "nav":
		if onPage != nil {
			onPage(PageEvent{Kind: PageNavigate, Route: rec.Route})
		}
	case "scroll":
		if onPage != nil && rec.Y != nil {
			onPage(PageEvent{Kind: PageScroll, ScrollY: *rec.Y})
		}
	case "resize":
		if onPage != nil && model.ValidSize(rec.W, rec.H) {
			onPage(PageEvent{Kind: PageResize, Width: rec.W, Height: rec.H})
		}
	}
}
