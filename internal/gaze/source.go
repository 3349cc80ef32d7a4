// Package gaze provides gaze-estimation sources and page-context feeds.
package gaze

import (
	"context"
	"errors"
)

// ErrNotReady is returned by Begin when the source cannot start.
var ErrNotReady = errors.New("gaze source not ready")

// SampleFunc receives raw viewport coordinates and a millisecond timestamp.
// It is called on the source's own goroutine.
type SampleFunc func(x, y float64, t int64)

// Source is a gaze-estimation capability.
type Source interface {
	Begin(ctx context.Context) error
	SetSampleCallback(fn SampleFunc)
	Pause()
	Resume()
	IsReady() bool
}

// PageEventKind identifies a page-context change.
type PageEventKind int

const (
	PageNavigate PageEventKind = iota
	PageScroll
	PageResize
)

func (k PageEventKind) String() string {
	switch k {
	case PageNavigate:
		return "navigate"
	case PageScroll:
		return "scroll"
	case PageResize:
		return "resize"
	default:
		return "unknown"
	}
}

// PageEvent reports navigation, scroll or viewport changes.
type PageEvent struct {
	Kind    PageEventKind
	Route   string
	ScrollY float64
	Width   int
	Height  int
}

// PageFunc receives page-context events on the feed's goroutine.
type PageFunc func(PageEvent)

// PageFeed is implemented by sources that also report page context.
type PageFeed interface {
	SetPageCallback(fn PageFunc)
}
