// Package export turns sample snapshots and rendered surfaces into
// downloadable artifacts.
package export

import (
	"strings"
	"time"
)

const (
	csvPrefix   = "eyetracking_"
	imagePrefix = "heatmap_"
	stampLayout = "2006-01-02T15-04-05"
)

// Slug converts a page identifier into a filename-safe token.
func Slug(page string) string {
	s := strings.ReplaceAll(page, "/", "_")
	s = strings.TrimPrefix(s, "_")
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "home"
	}
	return b.String()
}

// Stamp formats t as a UTC ISO-8601 second with colons replaced.
func Stamp(t time.Time) string {
	return t.UTC().Format(stampLayout)
}

// CSVName returns the CSV artifact filename for page at t.
func CSVName(page string, t time.Time) string {
	return csvPrefix + Slug(page) + "_" + Stamp(t) + ".csv"
}

// ImageName returns the PNG artifact filename for page at t.
func ImageName(page string, t time.Time) string {
	return imagePrefix + Slug(page) + "_" + Stamp(t) + ".png"
}
