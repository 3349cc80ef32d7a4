// Package model defines shared data structures.
package model

import "time"

// GazeSample is one estimated point of regard.
// X is viewport-relative, Y is document-relative (viewport Y plus the
// vertical scroll offset at capture time).
type GazeSample struct {
	X         float64
	Y         float64
	Timestamp int64 // milliseconds
	Page      string
}

// Viewport describes the visible part of the page.
type Viewport struct {
	Width   int
	Height  int
	ScrollY float64
}

// MaxViewportSide bounds each side of a viewport and of the surfaces
// allocated for it.
const MaxViewportSide = 16384

// ValidSize reports whether width and height are both in
// (0, MaxViewportSide].
func ValidSize(width, height int) bool {
	return width > 0 && height > 0 && width <= MaxViewportSide && height <= MaxViewportSide
}

// HeatmapParams are the tunable rendering settings. They are re-read on
// every render pass.
type HeatmapParams struct {
	Radius     float64
	Blur       float64
	MinOpacity float64
	MaxOpacity float64
	Scale      int
}

// DefaultHeatmapParams mirrors the stock overlay configuration.
func DefaultHeatmapParams() HeatmapParams {
	return HeatmapParams{
		Radius:     40,
		Blur:       15,
		MinOpacity: 0.05,
		MaxOpacity: 0.7,
		Scale:      4,
	}
}

// ArtifactKind identifies an export format.
type ArtifactKind string

const (
	ArtifactCSV   ArtifactKind = "csv"
	ArtifactImage ArtifactKind = "png"
)

// Artifact is a downloadable export. It has no lifecycle of its own.
type Artifact struct {
	Kind     ArtifactKind
	Page     string
	Filename string
	Bytes    []byte
	Rows     int
}

// Config defines tracking settings resolved from flags and the config file.
type Config struct {
	Heatmap      HeatmapParams
	Gradient     map[string]string
	Viewport     Viewport
	OutDir       string
	Locale       string
	Collision    string
	InitialRoute string
	Input        string
	Listen       string
	TokenSecret  string
	Synthetic    bool
	ReplaySpeed  float64
}

// ExportRecord is a stored export history row.
type ExportRecord struct {
	ID        int64
	SessionID string
	Kind      ArtifactKind
	Page      string
	Filename  string
	Path      string
	Rows      int
	CreatedAt time.Time
}

// PageAggregate summarizes exports per page.
type PageAggregate struct {
	Page       string
	Exports    int
	Samples    int
	LastExport time.Time
}

// HistoryConfig defines filters for history output.
type HistoryConfig struct {
	Page  string
	Since *time.Time
	Last  int
}

// SessionRecord is a stored tracking session.
type SessionRecord struct {
	ID        string
	StartedAt time.Time
	EndedAt   *time.Time
	Route     string
	Source    string
	Exports   int
}
