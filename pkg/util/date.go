package util

import (
	"strings"
	"time"
)

// DateLayouts are the textual date forms accepted from sales sources, tried in order.
var DateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05Z07",
	"2006-01-02T15:04:05",
	"2006/01/02",
	"01/02/2006",
	"02-Jan-2006",
	"20060102",
	"2006-01",
}

// ParseTime tries DateLayouts in order. Bare integers are not read as
// timestamps: "2023" or "20230115" must never land in 1970.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range DateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
