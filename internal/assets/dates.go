package assets

import (
	"fmt"
	"strings"
	"time"

	"github.com/ukaya/piyasa/internal/domain"
)

// dateLayouts are the textual formats accepted for user-supplied dates,
// tried in order. Turkish sources and users mix dotted, dashed and slashed
// forms freely.
var dateLayouts = []string{
	"2006-01-02",
	"02.01.2006",
	"02/01/2006",
	"02-01-2006",
	"2006.01.02",
	"January 2, 2006",
	"2 January 2006",
}

// ParseDate parses a user-supplied date in any accepted format.
// Fails with domain.ErrInvalidDate when none match.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, domain.ErrInvalidDate
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("date %q: %w", s, domain.ErrInvalidDate)
}

// ParseRange parses start and end strings into a validated range. An empty
// end defaults to today; start must not be after end.
func ParseRange(startStr, endStr string) (start, end time.Time, err error) {
	start, err = ParseDate(startStr)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if strings.TrimSpace(endStr) == "" {
		end = time.Now()
	} else {
		end, err = ParseDate(endStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("start after end: %w", domain.ErrInvalidParameter)
	}
	return start, end, nil
}
