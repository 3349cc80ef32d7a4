// Package report summarizes the export history for terminal output.
package report

import (
	"context"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/verte-zerg/gazemap/internal/export"
	"github.com/verte-zerg/gazemap/internal/model"
)

const sparkChars = " .:-=+*#%@"

// History is the read side of the export store.
type History interface {
	PageAggregates(ctx context.Context, cfg model.HistoryConfig) ([]model.PageAggregate, error)
	ListExports(ctx context.Context, cfg model.HistoryConfig) ([]model.ExportRecord, error)
	ListSessions(ctx context.Context, limit int) ([]model.SessionRecord, error)
}

// Report contains precomputed data for history rendering.
type Report struct {
	Pages    []model.PageAggregate
	Exports  []model.ExportRecord
	Sessions []model.SessionRecord
}

// Build loads pages, exports and the latest sessions.
func Build(ctx context.Context, h History, cfg model.HistoryConfig, sessions int) (Report, error) {
	pages, err := h.PageAggregates(ctx, cfg)
	if err != nil {
		return Report{}, fmt.Errorf("failed to load page aggregates: %w", err)
	}
	exports, err := h.ListExports(ctx, cfg)
	if err != nil {
		return Report{}, fmt.Errorf("failed to load exports: %w", err)
	}
	recent, err := h.ListSessions(ctx, sessions)
	if err != nil {
		return Report{}, fmt.Errorf("failed to load sessions: %w", err)
	}
	return Report{Pages: pages, Exports: exports, Sessions: recent}, nil
}

// SampleTrend returns CSV row counts oldest first.
func SampleTrend(exports []model.ExportRecord) []float64 {
	var out []float64
	for i := len(exports) - 1; i >= 0; i-- {
		if exports[i].Kind == model.ArtifactCSV {
			out = append(out, float64(exports[i].Rows))
		}
	}
	return out
}

// Sparkline renders a single-line ASCII sparkline for the values.
func Sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	minVal := values[0]
	maxVal := values[0]
	for _, v := range values[1:] {
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
	}
	if math.Abs(maxVal-minVal) < 1e-9 {
		return strings.Repeat(string(sparkChars[len(sparkChars)/2]), len(values))
	}
	var b strings.Builder
	for _, v := range values {
		pos := (v - minVal) / (maxVal - minVal)
		idx := int(math.Round(pos * float64(len(sparkChars)-1)))
		if idx < 0 {
			idx = 0
		}
		if idx >= len(sparkChars) {
			idx = len(sparkChars) - 1
		}
		b.WriteByte(sparkChars[idx])
	}
	return b.String()
}

// RenderSummary prints totals and the sample trend.
func RenderSummary(w io.Writer, r Report, loc export.Locale) error {
	if len(r.Exports) == 0 {
		_, err := fmt.Fprintln(w, "No exports found.")
		return err
	}
	samples := 0
	for _, p := range r.Pages {
		samples += p.Samples
	}
	lines := []string{
		"Summary",
		fmt.Sprintf("Pages: %s", loc.Count(len(r.Pages))),
		fmt.Sprintf("Exports: %s", loc.Count(len(r.Exports))),
		fmt.Sprintf("Samples: %s", loc.Count(samples)),
	}
	if trend := SampleTrend(r.Exports); len(trend) > 1 {
		lines = append(lines, fmt.Sprintf("Trend: %s", Sparkline(trend)))
	}
	lines = append(lines, "")
	_, err := io.WriteString(w, strings.Join(lines, "\n")+"\n")
	return err
}

// RenderPages prints one row per page.
func RenderPages(w io.Writer, pages []model.PageAggregate, loc export.Locale, width int) error {
	if len(pages) == 0 {
		_, err := fmt.Fprintln(w, "No pages found.")
		return err
	}
	rows := make([][]string, 0, len(pages))
	for _, p := range pages {
		rows = append(rows, []string{p.Page, loc.Count(p.Exports), loc.Count(p.Samples), loc.DateTime(p.LastExport.Local())})
	}
	lines := formatTable([]string{"Page", "Exports", "Samples", "Last export"}, rows, map[int]bool{1: true, 2: true})
	return writeLines(w, "Pages", fitWidth(lines, width))
}

// RenderExports prints the export list, newest first.
func RenderExports(w io.Writer, exports []model.ExportRecord, loc export.Locale, width int) error {
	if len(exports) == 0 {
		_, err := fmt.Fprintln(w, "No exports found.")
		return err
	}
	rows := make([][]string, 0, len(exports))
	for _, e := range exports {
		rowCount := "-"
		if e.Kind == model.ArtifactCSV {
			rowCount = loc.Count(e.Rows)
		}
		rows = append(rows, []string{loc.DateTime(e.CreatedAt.Local()), string(e.Kind), e.Page, rowCount, e.Path})
	}
	lines := formatTable([]string{"When", "Kind", "Page", "Rows", "Path"}, rows, map[int]bool{3: true})
	return writeLines(w, "Exports", fitWidth(lines, width))
}

// RenderSessions prints recent tracking sessions.
func RenderSessions(w io.Writer, sessions []model.SessionRecord, loc export.Locale, width int) error {
	if len(sessions) == 0 {
		_, err := fmt.Fprintln(w, "No sessions found.")
		return err
	}
	rows := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		rows = append(rows, []string{loc.DateTime(s.StartedAt.Local()), sessionDuration(s), s.Route, s.Source, loc.Count(s.Exports)})
	}
	lines := formatTable([]string{"Started", "Duration", "Route", "Source", "Exports"}, rows, map[int]bool{1: true, 4: true})
	return writeLines(w, "Sessions", fitWidth(lines, width))
}

func sessionDuration(s model.SessionRecord) string {
	if s.EndedAt == nil {
		return "open"
	}
	return s.EndedAt.Sub(s.StartedAt).Truncate(time.Second).String()
}

func writeLines(w io.Writer, title string, lines []string) error {
	if _, err := fmt.Fprintln(w, title); err != nil {
		return err
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}
