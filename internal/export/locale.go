package export

import (
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var supportedLocales = []language.Tag{
	language.AmericanEnglish,
	language.BritishEnglish,
	language.Italian,
	language.German,
	language.French,
	language.Spanish,
	language.Japanese,
}

var localeLayouts = []string{
	"1/2/2006, 3:04:05 PM",
	"02/01/2006, 15:04:05",
	"2/1/2006, 15:04:05",
	"2.1.2006, 15:04:05",
	"02/01/2006 15:04:05",
	"2/1/2006, 15:04:05",
	"2006/1/2 15:04:05",
}

var localeMatcher = language.NewMatcher(supportedLocales)

// Locale formats datetimes and counts for on-image labels and the UI.
type Locale struct {
	tag     language.Tag
	layout  string
	printer *message.Printer
}

// ParseLocale picks the closest supported locale. Unknown or empty names
// fall back to en-US.
func ParseLocale(name string) Locale {
	idx := 0
	if name != "" {
		if tag, err := language.Parse(name); err == nil {
			_, i, conf := localeMatcher.Match(tag)
			if conf != language.No {
				idx = i
			}
		}
	}
	tag := supportedLocales[idx]
	return Locale{tag: tag, layout: localeLayouts[idx], printer: message.NewPrinter(tag)}
}

// Tag returns the matched language tag.
func (l Locale) Tag() language.Tag {
	return l.tag
}

// DateTime formats t the way the locale writes a short date and time.
func (l Locale) DateTime(t time.Time) string {
	if l.layout == "" {
		return ParseLocale("").DateTime(t)
	}
	return t.Format(l.layout)
}

// Count formats n with locale digit grouping.
func (l Locale) Count(n int) string {
	if l.printer == nil {
		return ParseLocale("").Count(n)
	}
	return l.printer.Sprintf("%d", n)
}
