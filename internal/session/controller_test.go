package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/verte-zerg/gazemap/internal/clock"
	"github.com/verte-zerg/gazemap/internal/export"
	"github.com/verte-zerg/gazemap/internal/gaze"
	"github.com/verte-zerg/gazemap/internal/heatmap"
	"github.com/verte-zerg/gazemap/internal/model"
)

type fakeSource struct {
	ready    bool
	beginErr error
	begins   int
	resumes  int
	pauses   int
	onSample gaze.SampleFunc
	onPage   gaze.PageFunc
}

func (f *fakeSource) Begin(context.Context) error {
	f.begins++
	return f.beginErr
}
func (f *fakeSource) SetSampleCallback(fn gaze.SampleFunc) { f.onSample = fn }
func (f *fakeSource) SetPageCallback(fn gaze.PageFunc)     { f.onPage = fn }
func (f *fakeSource) Pause()                               { f.pauses++ }
func (f *fakeSource) Resume()                              { f.resumes++ }
func (f *fakeSource) IsReady() bool                        { return f.ready }

func (f *fakeSource) emit(x, y float64, t int64) {
	if f.onSample != nil {
		f.onSample(x, y, t)
	}
}

type harness struct {
	src    *fakeSource
	clk    *clock.Manual
	sink   *export.MemorySink
	ctrl   *Controller
	events []Event
}

func newHarness(t *testing.T, mutate func(*Options)) *harness {
	t.Helper()
	h := &harness{
		src:  &fakeSource{ready: true},
		clk:  clock.NewManual(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)),
		sink: &export.MemorySink{},
	}
	opts := Options{
		Source:   h.src,
		Sink:     h.sink,
		Clock:    h.clk,
		Route:    "/a",
		Viewport: model.Viewport{Width: 200, Height: 160},
		Observer: func(ev Event) { h.events = append(h.events, ev) },
	}
	if mutate != nil {
		mutate(&opts)
	}
	h.ctrl = New(opts)
	return h
}

func (h *harness) artifacts(kind model.ArtifactKind) []model.Artifact {
	var out []model.Artifact
	for _, a := range h.sink.Artifacts {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}

func TestStartFailureLeavesIdle(t *testing.T) {
	h := newHarness(t, nil)
	h.src.ready = false
	if err := h.ctrl.Start(context.Background()); !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
	if h.ctrl.State() != Idle || h.ctrl.Overlay().Visible() || h.src.onSample != nil {
		t.Fatalf("failed start changed state")
	}

	h.src.ready = true
	h.src.beginErr = errors.New("camera denied")
	if err := h.ctrl.Start(context.Background()); !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("expected wrapped ErrSourceUnavailable, got %v", err)
	}
	if h.ctrl.State() != Idle {
		t.Fatalf("expected idle after begin error")
	}
}

func TestStartResumesAfterFirstBegin(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.ctrl.Stop()
	if err := h.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if h.src.begins != 1 || h.src.resumes != 1 {
		t.Fatalf("expected one begin and one resume, got %d/%d", h.src.begins, h.src.resumes)
	}
	if !h.ctrl.Overlay().Visible() {
		t.Fatalf("tracking should show the heatmap")
	}
}

func TestIngestAddsScrollAndRoute(t *testing.T) {
	h := newHarness(t, nil)
	_ = h.ctrl.Start(context.Background())
	h.ctrl.Scroll(300)
	h.src.emit(10, 20, 5)
	h.src.emit(10, 20, 0)
	h.src.emit(1, 0, 0)
	snap := h.ctrl.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(snap))
	}
	if snap[0].Y != 320 || snap[0].Page != "/a" || snap[0].Timestamp != 5 {
		t.Fatalf("unexpected sample %+v", snap[0])
	}
	if snap[1].Timestamp != h.clk.Now().UnixMilli() {
		t.Fatalf("expected missing timestamp to use the clock, got %d", snap[1].Timestamp)
	}
}

func TestIngestIgnoredWhenIdle(t *testing.T) {
	h := newHarness(t, nil)
	h.ctrl.Ingest(1, 2, 3)
	if h.ctrl.Len() != 0 {
		t.Fatalf("idle controller buffered a sample")
	}
}

func TestNavigationExportsPreviousPage(t *testing.T) {
	h := newHarness(t, nil)
	_ = h.ctrl.Start(context.Background())
	for i := 0; i < 5; i++ {
		h.src.emit(float64(50+i), 60, int64(1000+i*50))
	}
	h.ctrl.Navigate("/b")

	csvs := h.artifacts(model.ArtifactCSV)
	if len(csvs) != 1 || csvs[0].Rows != 5 || csvs[0].Page != "/a" {
		t.Fatalf("expected one 5-row csv for /a, got %+v", csvs)
	}
	lines := strings.Split(strings.TrimSpace(string(csvs[0].Bytes)), "\n")
	if len(lines) != 6 {
		t.Fatalf("expected header plus 5 rows, got %d lines", len(lines))
	}
	for _, line := range lines[1:] {
		if !strings.HasSuffix(line, ",/a") {
			t.Fatalf("row not tagged with /a: %q", line)
		}
	}
	if len(h.artifacts(model.ArtifactImage)) != 1 {
		t.Fatalf("expected image export for /a")
	}
	if h.ctrl.Len() != 0 || h.ctrl.Guard() != Free || h.ctrl.State() != Tracking {
		t.Fatalf("expected empty buffer, free guard, still tracking")
	}

	h.src.emit(1, 1, 2000)
	for _, s := range h.ctrl.Snapshot() {
		if s.Page != "/b" {
			t.Fatalf("new buffer holds %q sample", s.Page)
		}
	}
}

func TestNavigationEmptyBufferNoExport(t *testing.T) {
	h := newHarness(t, nil)
	_ = h.ctrl.Start(context.Background())
	h.ctrl.Navigate("/b")
	h.ctrl.Navigate("/b?tab=2")
	if len(h.sink.Artifacts) != 0 {
		t.Fatalf("expected no exports, got %d", len(h.sink.Artifacts))
	}
	if h.ctrl.Route() != "/b?tab=2" {
		t.Fatalf("query change should update the route")
	}
}

func TestImageRetryUntilSurface(t *testing.T) {
	h := newHarness(t, nil)
	_ = h.ctrl.Start(context.Background())
	h.src.emit(50, 50, 1)
	h.ctrl.ToggleHeatmap()

	h.ctrl.Navigate("/b")
	if h.ctrl.Guard() != Busy {
		t.Fatalf("expected busy guard while the image waits for a surface")
	}
	if len(h.artifacts(model.ArtifactCSV)) != 1 {
		t.Fatalf("csv should be exported immediately")
	}
	h.clk.Advance(450 * time.Millisecond)
	if len(h.artifacts(model.ArtifactImage)) != 0 {
		t.Fatalf("image exported without a surface")
	}

	h.ctrl.ToggleHeatmap()
	if len(h.artifacts(model.ArtifactImage)) != 1 {
		t.Fatalf("surface notification should export the image")
	}
	h.clk.Advance(time.Second)
	if h.ctrl.Guard() != Free || h.clk.Pending() != 0 {
		t.Fatalf("expected free guard and no pending retries, pending=%d", h.clk.Pending())
	}
	if len(h.artifacts(model.ArtifactImage)) != 1 {
		t.Fatalf("image exported more than once")
	}
}

func TestImageRetryExhausted(t *testing.T) {
	h := newHarness(t, nil)
	_ = h.ctrl.Start(context.Background())
	h.src.emit(50, 50, 1)
	h.ctrl.ToggleHeatmap()
	h.ctrl.Navigate("/b")

	h.clk.Advance(2 * time.Second)
	if h.ctrl.Guard() != Free {
		t.Fatalf("expected guard released after retries")
	}
	if len(h.artifacts(model.ArtifactImage)) != 0 || len(h.artifacts(model.ArtifactCSV)) != 1 {
		t.Fatalf("expected csv only")
	}
	skipped := false
	for _, ev := range h.events {
		if ev.Kind == EventImageSkipped && errors.Is(ev.Err, ErrSurfaceNotFound) {
			skipped = true
		}
	}
	if !skipped {
		t.Fatalf("expected an image skipped event")
	}
}

func TestCollisionDropped(t *testing.T) {
	h := newHarness(t, nil)
	_ = h.ctrl.Start(context.Background())
	h.src.emit(50, 50, 1)
	h.ctrl.ToggleHeatmap()
	h.ctrl.Navigate("/b")
	h.src.emit(60, 60, 2)
	h.ctrl.Navigate("/c")
	h.src.emit(70, 70, 3)
	h.src.emit(71, 70, 4)

	h.clk.Advance(2 * time.Second)
	csvs := h.artifacts(model.ArtifactCSV)
	if len(csvs) != 1 || csvs[0].Page != "/a" {
		t.Fatalf("expected only /a exported, got %+v", csvs)
	}
	if h.ctrl.Len() != 2 || h.ctrl.Total() != 2 {
		t.Fatalf("expected only the /c samples left, got %d/%d", h.ctrl.Len(), h.ctrl.Total())
	}
	for _, s := range h.ctrl.Snapshot() {
		if s.Page != "/c" {
			t.Fatalf("unexpected page %q after drop", s.Page)
		}
	}
}

func TestCollisionQueued(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Collision = CollisionQueue })
	_ = h.ctrl.Start(context.Background())
	h.src.emit(50, 50, 1)
	h.ctrl.ToggleHeatmap()
	h.ctrl.Navigate("/b")
	h.src.emit(60, 60, 2)
	h.ctrl.Navigate("/c")
	h.src.emit(70, 70, 3)

	h.clk.Advance(5 * time.Second)
	csvs := h.artifacts(model.ArtifactCSV)
	if len(csvs) != 2 || csvs[0].Page != "/a" || csvs[1].Page != "/b" {
		t.Fatalf("expected /a then /b exported, got %+v", csvs)
	}
	if h.ctrl.Guard() != Free || h.ctrl.Len() != 1 || h.ctrl.Snapshot()[0].Page != "/c" {
		t.Fatalf("expected /c buffered with a free guard")
	}
}

func TestReturningToExportingPageKeepsNewSamples(t *testing.T) {
	h := newHarness(t, nil)
	_ = h.ctrl.Start(context.Background())
	h.src.emit(50, 50, 1)
	h.ctrl.ToggleHeatmap()
	h.ctrl.Navigate("/b")
	h.ctrl.Navigate("/a")
	h.src.emit(80, 80, 2)
	h.clk.Advance(2 * time.Second)
	if h.ctrl.Len() != 1 || h.ctrl.Snapshot()[0].Timestamp != 2 {
		t.Fatalf("expected the post-export /a sample to survive rotation")
	}
}

func TestStopExportsCSVOnly(t *testing.T) {
	h := newHarness(t, nil)
	_ = h.ctrl.Start(context.Background())
	h.src.emit(50, 50, 1)
	h.src.emit(51, 50, 2)
	h.ctrl.Stop()

	if h.ctrl.State() != Idle {
		t.Fatalf("expected idle")
	}
	if csvs := h.artifacts(model.ArtifactCSV); len(csvs) != 1 || csvs[0].Rows != 2 {
		t.Fatalf("expected 2-row csv on stop, got %+v", csvs)
	}
	if len(h.artifacts(model.ArtifactImage)) != 0 {
		t.Fatalf("stop must not export an image")
	}
	if !h.ctrl.Overlay().Visible() {
		t.Fatalf("stop must leave visibility untouched")
	}
	if h.src.onSample != nil || h.src.pauses != 1 {
		t.Fatalf("expected unsubscribe and pause")
	}
	if h.ctrl.Len() != 2 {
		t.Fatalf("stop must keep the buffer")
	}
}

func TestStopDuringRetryCancelsTimer(t *testing.T) {
	h := newHarness(t, nil)
	_ = h.ctrl.Start(context.Background())
	h.src.emit(50, 50, 1)
	h.ctrl.ToggleHeatmap()
	h.ctrl.Navigate("/b")
	h.src.emit(60, 60, 2)
	h.ctrl.Stop()
	if h.clk.Pending() != 0 {
		t.Fatalf("expected no pending timers after stop, got %d", h.clk.Pending())
	}
	csvs := h.artifacts(model.ArtifactCSV)
	if len(csvs) != 2 || csvs[1].Page != "/b" {
		t.Fatalf("expected /a then /b csv, got %+v", csvs)
	}
	if h.ctrl.Guard() != Free {
		t.Fatalf("expected free guard after stop")
	}
}

func TestClearAnyState(t *testing.T) {
	h := newHarness(t, nil)
	_ = h.ctrl.Start(context.Background())
	h.src.emit(50, 50, 1)
	h.ctrl.Clear()
	if h.ctrl.Len() != 0 || len(h.sink.Artifacts) != 0 {
		t.Fatalf("clear must empty without exporting")
	}
	h.ctrl.Stop()
	h.ctrl.Clear()
	if h.ctrl.State() != Idle {
		t.Fatalf("clear changed state")
	}
}

func TestExportNow(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.ctrl.ExportNow(); !errors.Is(err, ErrEmptyDataset) {
		t.Fatalf("expected ErrEmptyDataset, got %v", err)
	}
	_ = h.ctrl.Start(context.Background())
	h.src.emit(50, 50, 1)
	if err := h.ctrl.ExportNow(); err != nil {
		t.Fatalf("export now: %v", err)
	}
	if len(h.artifacts(model.ArtifactCSV)) != 1 || len(h.artifacts(model.ArtifactImage)) != 1 {
		t.Fatalf("expected csv and image")
	}
	if h.ctrl.Len() != 1 {
		t.Fatalf("export now must not rotate")
	}

	h.ctrl.ToggleHeatmap()
	if err := h.ctrl.ExportNow(); !errors.Is(err, ErrHeatmapHidden) {
		t.Fatalf("expected ErrHeatmapHidden, got %v", err)
	}
	if len(h.artifacts(model.ArtifactCSV)) != 1 {
		t.Fatalf("hidden heatmap must not export")
	}
}

// startWithoutSurface begins tracking with a visible overlay that has no
// surface yet, so image exports wait on retries.
func startWithoutSurface(t *testing.T, collision Collision) *harness {
	t.Helper()
	h := newHarness(t, func(o *Options) {
		o.Viewport = model.Viewport{}
		o.Collision = collision
	})
	if err := h.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	return h
}

func csvSummary(arts []model.Artifact) string {
	parts := make([]string, len(arts))
	for i, a := range arts {
		parts[i] = fmt.Sprintf("%s:%d", a.Page, a.Rows)
	}
	return strings.Join(parts, " ")
}

func TestNavigateDuringExportNowDrops(t *testing.T) {
	h := startWithoutSurface(t, CollisionDrop)
	h.src.emit(50, 50, 1)
	if err := h.ctrl.ExportNow(); err != nil {
		t.Fatalf("export now: %v", err)
	}
	if err := h.ctrl.ExportNow(); !errors.Is(err, ErrExportBusy) {
		t.Fatalf("expected ErrExportBusy, got %v", err)
	}
	h.src.emit(55, 55, 2)
	h.ctrl.Navigate("/b")
	h.src.emit(60, 60, 3)

	h.clk.Advance(3 * time.Second)
	if h.ctrl.Guard() != Free {
		t.Fatalf("expected free guard after retries")
	}
	if pages := h.ctrl.Pages(); len(pages) != 1 || pages[0] != "/b" {
		t.Fatalf("expected only /b buffered, got %v", pages)
	}
	for _, s := range h.ctrl.Snapshot() {
		if s.Page != "/b" {
			t.Fatalf("head still holds %q samples", s.Page)
		}
	}
	dropped := 0
	for _, ev := range h.events {
		if ev.Kind == EventCollision {
			dropped += ev.Dropped
		}
	}
	if dropped != 1 {
		t.Fatalf("expected the unexported /a sample reported as dropped, got %d", dropped)
	}

	h.ctrl.Resize(200, 160)
	h.ctrl.Navigate("/c")
	if got := csvSummary(h.artifacts(model.ArtifactCSV)); got != "/a:1 /b:1" {
		t.Fatalf("unexpected csv exports %q", got)
	}
	if h.ctrl.Total() != 0 || h.ctrl.Guard() != Free {
		t.Fatalf("expected empty buffer and free guard, total=%d", h.ctrl.Total())
	}
}

func TestNavigateDuringExportNowQueues(t *testing.T) {
	h := startWithoutSurface(t, CollisionQueue)
	h.src.emit(50, 50, 1)
	_ = h.ctrl.ExportNow()
	h.src.emit(55, 55, 2)
	h.ctrl.Navigate("/b")
	h.src.emit(60, 60, 3)

	h.clk.Advance(3 * time.Second)
	if h.ctrl.Guard() != Busy {
		t.Fatalf("expected the queued /a boundary to be exporting")
	}
	h.clk.Advance(3 * time.Second)
	if pages := h.ctrl.Pages(); len(pages) != 1 || pages[0] != "/b" {
		t.Fatalf("expected only /b buffered, got %v", pages)
	}

	h.ctrl.Resize(200, 160)
	h.ctrl.Navigate("/c")
	if got := csvSummary(h.artifacts(model.ArtifactCSV)); got != "/a:1 /a:2 /b:1" {
		t.Fatalf("unexpected csv exports %q", got)
	}
	if h.ctrl.Total() != 0 {
		t.Fatalf("expected empty buffer, total=%d", h.ctrl.Total())
	}
}

func TestResizeIgnoresOversizedViewport(t *testing.T) {
	h := newHarness(t, nil)
	_ = h.ctrl.Start(context.Background())
	h.src.onPage(gaze.PageEvent{Kind: gaze.PageResize, Width: 1 << 30, Height: 1 << 30})
	h.ctrl.Resize(60000, 600)
	if v := h.ctrl.Viewport(); v.Width != 200 || v.Height != 160 {
		t.Fatalf("oversized resize applied: %+v", v)
	}
	if b := h.ctrl.Overlay().Surface().Bounds(); b.Dx() != 200 || b.Dy() != 160 {
		t.Fatalf("surface reallocated to %v", b)
	}
	h.ctrl.Resize(model.MaxViewportSide, 10)
	if v := h.ctrl.Viewport(); v.Width != model.MaxViewportSide || v.Height != 10 {
		t.Fatalf("expected resize at the limit, got %+v", v)
	}

	big := newHarness(t, func(o *Options) { o.Viewport = model.Viewport{Width: 1 << 30, Height: 10} })
	if v := big.ctrl.Viewport(); v.Width != 0 || v.Height != 0 {
		t.Fatalf("expected oversized initial viewport to be dropped, got %+v", v)
	}
}

func TestRenderThrottled(t *testing.T) {
	renders := 0
	h := newHarness(t, func(o *Options) {
		prev := o.Observer
		o.Observer = func(ev Event) {
			if ev.Kind == EventRendered {
				renders++
			}
			prev(ev)
		}
	})
	_ = h.ctrl.Start(context.Background())
	h.clk.Advance(150 * time.Millisecond)
	renders = 0
	for i := 0; i < 10; i++ {
		h.clk.Advance(5 * time.Millisecond)
		h.src.emit(50, 50, int64(i+1))
	}
	if renders != 1 {
		t.Fatalf("expected one render during the burst, got %d", renders)
	}
	h.clk.Advance(200 * time.Millisecond)
	if renders != 2 {
		t.Fatalf("expected one trailing render, got %d", renders)
	}
	if !h.ctrl.Overlay().Drawn() {
		t.Fatalf("expected density on the surface")
	}
}

func TestPageFeedRoutesEvents(t *testing.T) {
	h := newHarness(t, nil)
	h.src.onPage(gaze.PageEvent{Kind: gaze.PageResize, Width: 320, Height: 240})
	h.src.onPage(gaze.PageEvent{Kind: gaze.PageScroll, ScrollY: 40})
	h.src.onPage(gaze.PageEvent{Kind: gaze.PageNavigate, Route: "/shop"})
	v := h.ctrl.Viewport()
	if v.Width != 320 || v.Height != 240 || v.ScrollY != 40 || h.ctrl.Route() != "/shop" {
		t.Fatalf("unexpected page context %+v route=%q", v, h.ctrl.Route())
	}
}

func TestCloseCancelsTimers(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Overlay = heatmap.NewOverlay(model.DefaultHeatmapParams(), nil) })
	_ = h.ctrl.Start(context.Background())
	h.src.emit(50, 50, 1)
	h.clk.Advance(10 * time.Millisecond)
	h.src.emit(50, 50, 2)
	h.ctrl.ToggleHeatmap()
	h.ctrl.Navigate("/b")
	h.ctrl.Close()
	if h.clk.Pending() != 0 {
		t.Fatalf("expected all timers cancelled, got %d", h.clk.Pending())
	}
}
