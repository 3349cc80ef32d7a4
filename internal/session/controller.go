package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/verte-zerg/gazemap/internal/clock"
	"github.com/verte-zerg/gazemap/internal/export"
	"github.com/verte-zerg/gazemap/internal/gaze"
	"github.com/verte-zerg/gazemap/internal/heatmap"
	"github.com/verte-zerg/gazemap/internal/logging"
	"github.com/verte-zerg/gazemap/internal/model"
	"github.com/verte-zerg/gazemap/internal/schedule"
)

var (
	// ErrSourceUnavailable is returned by Start when the gaze source is
	// missing, not ready, or fails to begin.
	ErrSourceUnavailable = errors.New("gaze source unavailable")
	// ErrSurfaceNotFound is reported when an image export gives up waiting
	// for a drawable surface.
	ErrSurfaceNotFound = errors.New("render surface not found")
	// ErrExportBusy is returned by ExportNow while another export runs.
	ErrExportBusy = errors.New("export already in progress")
	// ErrEmptyDataset is returned by ExportNow when the buffer is empty.
	ErrEmptyDataset = errors.New("no samples")
	// ErrHeatmapHidden is returned by ExportNow while the overlay is hidden.
	ErrHeatmapHidden = errors.New("heatmap hidden")
)

// Surface lookup budget for image exports.
const (
	DefaultSurfaceRetries    = 10
	DefaultSurfaceRetryDelay = 200 * time.Millisecond
)


// State is the tracking state.
type State int

const (
	Idle State = iota
	Tracking
)

func (s State) String() string {
	if s == Tracking {
		return "tracking"
	}
	return "idle"
}

// Guard is the export guard.
type Guard int

const (
	Free Guard = iota
	Busy
)

func (g Guard) String() string {
	if g == Busy {
		return "busy"
	}
	return "free"
}

// Collision selects what happens to a page boundary that fires while an
// export is in flight.
type Collision string

const (
	CollisionDrop  Collision = "drop"
	CollisionQueue Collision = "queue"
)

// ParseCollision validates a collision policy name. Empty means drop.
func ParseCollision(s string) (Collision, error) {
	switch Collision(s) {
	case "", CollisionDrop:
		return CollisionDrop, nil
	case CollisionQueue:
		return CollisionQueue, nil
	default:
		return "", fmt.Errorf("unknown collision policy %q (use drop or queue)", s)
	}
}

// EventKind identifies a controller notification.
type EventKind int

const (
	EventStarted EventKind = iota
	EventStopped
	EventCleared
	EventRendered
	EventExported
	EventExportFailed
	EventImageSkipped
	EventCollision
)

// Event is delivered to the observer on the loop goroutine.
type Event struct {
	Kind     EventKind
	Page     string
	Artifact model.Artifact
	Path     string
	Dropped  int
	Err      error
}

// Options configure a Controller.
type Options struct {
	Source   gaze.Source
	Sink     export.Sink
	Overlay  *heatmap.Overlay
	Clock    clock.Clock
	Logger   *slog.Logger
	Observer func(Event)
	// Post runs fn on the loop goroutine. Nil calls fn directly, which is
	// only correct when the source already delivers on the loop.
	Post           func(fn func())
	Collision      Collision
	Locale         export.Locale
	Route          string
	Viewport       model.Viewport
	RenderInterval time.Duration
	SurfaceRetries int
	RetryDelay     time.Duration
}

type inflight struct {
	page    string
	samples []model.GazeSample
	rotate  bool
	// crossed is set when a page boundary fires during a manual export.
	crossed bool
	// covered counts head samples already written by this export.
	covered  int
	attempts int
	timer    clock.Timer
}

// Controller is the tracking state machine. All methods must be called
// from the loop goroutine.
type Controller struct {
	opts  Options
	log   *slog.Logger
	clock clock.Clock

	state State
	guard Guard
	buf   Buffer
	route string
	view  model.Viewport
	begun bool

	overlay *heatmap.Overlay
	sched   *schedule.Throttle
	exp     *inflight
}

// New builds a Controller and subscribes to the source's page feed.
func New(opts Options) *Controller {
	if opts.Clock == nil {
		panic("session: nil clock")
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Post == nil {
		opts.Post = func(fn func()) { fn() }
	}
	if opts.Overlay == nil {
		opts.Overlay = heatmap.NewOverlay(model.DefaultHeatmapParams(), nil)
	}
	if opts.Sink == nil {
		opts.Sink = &export.MemorySink{}
	}
	if opts.Collision == "" {
		opts.Collision = CollisionDrop
	}
	if opts.SurfaceRetries <= 0 {
		opts.SurfaceRetries = DefaultSurfaceRetries
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultSurfaceRetryDelay
	}
	if opts.Route == "" {
		opts.Route = "/"
	}
	if v := opts.Viewport; (v.Width != 0 || v.Height != 0) && !model.ValidSize(v.Width, v.Height) {
		opts.Logger.Warn("ignoring viewport size", "width", v.Width, "height", v.Height, "max", model.MaxViewportSide)
		opts.Viewport.Width, opts.Viewport.Height = 0, 0
	}
	c := &Controller{
		opts:    opts,
		log:     opts.Logger,
		clock:   opts.Clock,
		route:   opts.Route,
		view:    opts.Viewport,
		overlay: opts.Overlay,
	}
	c.sched = schedule.New(opts.Clock, opts.RenderInterval, c.render)
	c.overlay.Resize(c.view.Width, c.view.Height)
	c.overlay.OnSurface(c.surfaceReady)
	if feed, ok := opts.Source.(gaze.PageFeed); ok {
		feed.SetPageCallback(func(ev gaze.PageEvent) {
			c.opts.Post(func() { c.HandlePage(ev) })
		})
	}
	return c
}

// State returns the tracking state.
func (c *Controller) State() State { return c.state }

// Guard returns the export guard.
func (c *Controller) Guard() Guard { return c.guard }

// Route returns the active page identifier.
func (c *Controller) Route() string { return c.route }

// Viewport returns the current viewport.
func (c *Controller) Viewport() model.Viewport { return c.view }

// Overlay returns the surface owner.
func (c *Controller) Overlay() *heatmap.Overlay { return c.overlay }

// Len returns the number of samples in the current buffer.
func (c *Controller) Len() int { return c.buf.Len() }

// Total returns the number of buffered samples including queued pages.
func (c *Controller) Total() int { return c.buf.Total() }

// Snapshot returns a copy of the current buffer.
func (c *Controller) Snapshot() []model.GazeSample { return c.buf.Snapshot() }

// Pages lists buffered page generations from head to newest.
func (c *Controller) Pages() []string { return c.buf.Pages() }

// Start begins tracking. On failure the controller stays Idle.
func (c *Controller) Start(ctx context.Context) error {
	if c.state == Tracking {
		return nil
	}
	src := c.opts.Source
	if src == nil || !src.IsReady() {
		return ErrSourceUnavailable
	}
	if c.begun {
		src.Resume()
	} else {
		if err := src.Begin(ctx); err != nil {
			return fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
		}
		c.begun = true
	}
	c.buf.Clear()
	src.SetSampleCallback(func(x, y float64, t int64) {
		c.opts.Post(func() { c.Ingest(x, y, t) })
	})
	c.state = Tracking
	c.overlay.Show()
	c.log.Info("tracking started", "route", c.route)
	c.emit(Event{Kind: EventStarted, Page: c.route})
	c.sched.Trigger()
	return nil
}

// Stop ends tracking and exports the CSV of the current buffer. Heatmap
// visibility is left as is and the buffer is kept.
func (c *Controller) Stop() {
	if c.state != Tracking {
		return
	}
	c.state = Idle
	if c.exp != nil {
		c.abortImage()
	}
	for _, samples := range c.buf.Generations() {
		if len(samples) == 0 {
			continue
		}
		c.exportCSV(samples, samples[0].Page, c.clock.Now())
	}
	if src := c.opts.Source; src != nil {
		src.SetSampleCallback(nil)
		src.Pause()
	}
	c.sched.Cancel()
	c.log.Info("tracking stopped", "route", c.route, "samples", c.buf.Total())
	c.emit(Event{Kind: EventStopped, Page: c.route})
}

// Clear empties the buffer in any state. An export in flight keeps its
// snapshot but no longer rotates.
func (c *Controller) Clear() {
	c.buf.Clear()
	if c.exp != nil {
		c.exp.rotate = false
		c.exp.covered = 0
	}
	c.emit(Event{Kind: EventCleared, Page: c.route})
	c.sched.Trigger()
}

// Ingest records a raw sample from the source.
func (c *Controller) Ingest(x, y float64, t int64) {
	if c.state != Tracking {
		return
	}
	if !finite(x) || !finite(y) {
		return
	}
	if t == 0 {
		t = c.clock.Now().UnixMilli()
	}
	c.buf.Append(model.GazeSample{X: x, Y: y + c.view.ScrollY, Timestamp: t, Page: c.route})
	if c.overlay.Visible() {
		c.sched.Trigger()
	}
}

// HandlePage applies a page-context event.
func (c *Controller) HandlePage(ev gaze.PageEvent) {
	switch ev.Kind {
	case gaze.PageNavigate:
		c.Navigate(ev.Route)
	case gaze.PageScroll:
		c.Scroll(ev.ScrollY)
	case gaze.PageResize:
		c.Resize(ev.Width, ev.Height)
	}
}

// Navigate switches the active page. While tracking, leaving a page with
// samples exports it and rotates the buffer.
func (c *Controller) Navigate(route string) {
	if route == "" {
		route = "/"
	}
	if route == c.route {
		return
	}
	prev := c.route
	c.route = route
	c.buf.Seal()
	if c.state != Tracking {
		return
	}
	if c.buf.Len() == 0 {
		return
	}
	if c.guard == Busy {
		if c.exp != nil && !c.exp.rotate {
			c.exp.crossed = true
		}
		c.log.Warn("page boundary during export", "from", prev, "to", route, "policy", string(c.opts.Collision))
		c.emit(Event{Kind: EventCollision, Page: prev})
		return
	}
	c.beginExport(true)
}

// Scroll updates the vertical scroll offset.
func (c *Controller) Scroll(y float64) {
	if !finite(y) {
		return
	}
	c.view.ScrollY = y
	if c.overlay.Visible() {
		c.sched.Trigger()
	}
}

// Resize updates the viewport size. The surface is recreated. Sizes
// outside (0, model.MaxViewportSide] are ignored.
func (c *Controller) Resize(width, height int) {
	if !model.ValidSize(width, height) {
		c.log.Warn("ignoring viewport size", "width", width, "height", height, "max", model.MaxViewportSide)
		return
	}
	c.view.Width, c.view.Height = width, height
	c.overlay.Resize(width, height)
	if c.overlay.Visible() {
		c.sched.Trigger()
	}
}

// ToggleHeatmap flips overlay visibility and returns the new state.
func (c *Controller) ToggleHeatmap() bool {
	visible := c.overlay.Toggle()
	if visible {
		c.sched.Trigger()
	} else {
		c.sched.Cancel()
		c.emit(Event{Kind: EventRendered, Page: c.route})
	}
	return visible
}

// Params returns the heatmap parameters.
func (c *Controller) Params() model.HeatmapParams { return c.overlay.Params() }

// SetParams replaces the heatmap parameters for subsequent passes.
func (c *Controller) SetParams(p model.HeatmapParams) {
	c.overlay.SetParams(p)
	if c.overlay.Visible() {
		c.sched.Trigger()
	}
}

// ExportNow exports the current buffer without rotating it. It requires
// a visible heatmap.
func (c *Controller) ExportNow() error {
	if c.buf.Len() == 0 {
		return ErrEmptyDataset
	}
	if !c.overlay.Visible() {
		return ErrHeatmapHidden
	}
	if c.guard == Busy {
		return ErrExportBusy
	}
	c.beginExport(false)
	return nil
}

// Close releases timers and detaches from the source without exporting.
func (c *Controller) Close() {
	c.sched.Cancel()
	if c.exp != nil && c.exp.timer != nil {
		c.exp.timer.Stop()
	}
	c.exp = nil
	c.guard = Free
	if c.state == Tracking {
		if src := c.opts.Source; src != nil {
			src.SetSampleCallback(nil)
			src.Pause()
		}
		c.state = Idle
	}
	c.overlay.OnSurface(nil)
}

func (c *Controller) beginExport(rotate bool) {
	c.guard = Busy
	page := c.buf.Page()
	samples := c.buf.Snapshot()
	if rotate && !c.buf.HeadSealed() {
		c.buf.Seal()
	}
	c.exportCSV(samples, page, c.clock.Now())
	c.exp = &inflight{page: page, samples: samples, rotate: rotate, covered: len(samples)}
	c.tryImage()
}

func (c *Controller) tryImage() {
	exp := c.exp
	if exp == nil {
		return
	}
	exp.timer = nil
	exp.attempts++
	capture := c.overlay.Capture(exp.samples, c.view)
	if capture == nil {
		if exp.attempts >= c.opts.SurfaceRetries {
			c.log.Warn("image export skipped", "page", exp.page, "attempts", exp.attempts, "err", ErrSurfaceNotFound)
			c.emit(Event{Kind: EventImageSkipped, Page: exp.page, Err: ErrSurfaceNotFound})
			c.finishExport()
			return
		}
		exp.timer = c.clock.AfterFunc(c.opts.RetryDelay, c.tryImage)
		return
	}
	now := c.clock.Now()
	art, err := export.Image(capture, exp.page, now, c.opts.Locale)
	if err != nil {
		c.log.Error("image export failed", "page", exp.page, "err", err)
		c.emit(Event{Kind: EventExportFailed, Page: exp.page, Err: err})
	} else {
		c.save(art)
	}
	c.finishExport()
}

func (c *Controller) surfaceReady() {
	if c.exp != nil && c.exp.timer != nil {
		c.exp.timer.Stop()
		c.tryImage()
	}
}

func (c *Controller) abortImage() {
	exp := c.exp
	if exp.timer != nil {
		exp.timer.Stop()
	}
	c.log.Warn("image export abandoned", "page", exp.page)
	c.finishExport()
}

func (c *Controller) finishExport() {
	exp := c.exp
	c.exp = nil
	if (exp.rotate || exp.crossed) && c.buf.HeadSealed() && c.buf.Page() == exp.page {
		dropped := 0
		switch {
		case exp.rotate:
			c.buf.Rotate()
		case c.opts.Collision == CollisionDrop:
			// The manual export wrote the head up to its snapshot; the
			// boundary that closed it is dropped with the rest.
			if extra := len(c.buf.Rotate()) - exp.covered; extra > 0 {
				dropped += extra
			}
		}
		keep := 0
		if c.opts.Collision == CollisionQueue {
			keep = 1
		}
		if dropped += c.buf.Trim(keep); dropped > 0 {
			c.log.Warn("discarded samples of skipped pages", "samples", dropped, "policy", string(c.opts.Collision))
			c.emit(Event{Kind: EventCollision, Dropped: dropped})
		}
	}
	c.guard = Free
	if c.overlay.Visible() {
		c.sched.Trigger()
	}
	if c.state == Tracking && c.opts.Collision == CollisionQueue && c.buf.HeadSealed() && c.buf.Len() > 0 {
		c.beginExport(true)
	}
}

func (c *Controller) exportCSV(samples []model.GazeSample, page string, now time.Time) {
	art, err := export.CSV(samples, page, now)
	if err != nil {
		if !errors.Is(err, export.ErrEmpty) {
			c.log.Error("csv export failed", "page", page, "err", err)
			c.emit(Event{Kind: EventExportFailed, Page: page, Err: err})
		}
		return
	}
	c.save(art)
}

func (c *Controller) save(art model.Artifact) {
	path, err := c.opts.Sink.Save(art)
	if err != nil {
		c.log.Error("failed to save artifact", "file", art.Filename, "err", err)
		c.emit(Event{Kind: EventExportFailed, Page: art.Page, Artifact: art, Err: err})
		return
	}
	c.log.Info("exported", "kind", string(art.Kind), "page", art.Page, "path", path, "rows", art.Rows)
	c.emit(Event{Kind: EventExported, Page: art.Page, Artifact: art, Path: path})
}

func (c *Controller) render() {
	c.overlay.Render(c.buf.Snapshot(), c.view)
	c.emit(Event{Kind: EventRendered, Page: c.route})
}

func (c *Controller) emit(ev Event) {
	if c.opts.Observer != nil {
		c.opts.Observer(ev)
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
