// Package dates turns transaction timestamps into calendar dates.
package dates

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"cryptofmv/models"
)

// layouts are tried in order after the ISO-8601 forms.
var layouts = []string{
	"2006-01-02 15:04:05 MST",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02",
	"Jan 2, 2006 15:04:05",
	"Jan 2, 2006 3:04:05 PM",
	"Jan 2, 2006",
	"2 Jan 2006 15:04:05",
	"2 Jan 2006",
	"January 2, 2006",
	time.RFC1123Z,
	time.RFC1123,
	time.UnixDate,
	time.RubyDate,
	time.ANSIC,
}

var isoLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
}

// Parse converts a cell value to a calendar date. All-digit values are unix
// timestamps, in milliseconds when 13 digits or longer, and are dated in
// UTC. Timestamps with an offset keep the date as written.
func Parse(value string) (models.Date, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return models.Date{}, fmt.Errorf("empty date value")
	}

	if isDigits(v) {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return models.Date{}, fmt.Errorf("parse unix timestamp %q: %w", v, err)
		}
		if len(v) >= 13 {
			return models.DateOf(time.UnixMilli(n)), nil
		}
		return models.DateOf(time.Unix(n, 0)), nil
	}

	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return models.DateIn(t), nil
		}
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, v); err == nil {
			return models.DateIn(t), nil
		}
	}
	return models.Date{}, fmt.Errorf("unrecognised date %q", v)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
