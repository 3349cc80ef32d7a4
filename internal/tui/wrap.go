package tui

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// wrapLine breaks s into lines no wider than width cells, preferring to
// break after spaces and path separators.
func wrapLine(s string, width int) []string {
	if width <= 0 || runewidth.StringWidth(s) <= width {
		return []string{s}
	}
	var out []string
	line := make([]rune, 0, width)
	lineWidth := 0
	lastBreak := -1

	runes := []rune(s)
	for i := 0; i < len(runes); {
		r := runes[i]
		w := runewidth.RuneWidth(r)
		if lineWidth+w > width && len(line) > 0 {
			if lastBreak >= 0 {
				out = append(out, strings.TrimRight(string(line[:lastBreak+1]), " "))
				line = append([]rune{}, line[lastBreak+1:]...)
			} else {
				out = append(out, string(line))
				line = line[:0]
			}
			lineWidth = runewidth.StringWidth(string(line))
			lastBreak = lastBreakIndex(line)
			continue
		}
		line = append(line, r)
		lineWidth += w
		if isBreak(r) {
			lastBreak = len(line) - 1
		}
		i++
	}
	if len(line) > 0 {
		out = append(out, string(line))
	}
	return out
}

func isBreak(r rune) bool {
	return r == ' ' || r == '/' || r == '_'
}

func lastBreakIndex(line []rune) int {
	for i := len(line) - 1; i >= 0; i-- {
		if isBreak(line[i]) {
			return i
		}
	}
	return -1
}

// truncate cuts s to width cells with an ellipsis.
func truncate(s string, width int) string {
	if width <= 0 {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}
