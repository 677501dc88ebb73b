package extract

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/ternarybob/praeco/internal/common"
)

// Indian government sites publish dates in a day-first mix of numeric and
// written formats. These layouts are tried in order before falling back to
// dateparse; the list is ordered most-common-first.
var dateLayouts = []string{
	"02/01/2006",
	"02-01-2006",
	"2/1/2006",
	"2-1-2006",
	"02.01.2006",
	"2 January 2006",
	"2 Jan 2006",
	"02 January 2006",
	"02 Jan 2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2006-01-02",
}

var (
	ordinalRe    = regexp.MustCompile(`(?i)\b(\d{1,2})(st|nd|rd|th)\b`)
	numberRe     = regexp.MustCompile(`\d[\d,]*`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// ParseDate normalizes a scraped date string into a time.Time. Day-first
// Indian layouts are tried before the generic fallback parser. Returns a
// ParseError when nothing matches; callers leave the field null and tally
// the failure rather than aborting the candidate.
func ParseDate(raw string) (*time.Time, error) {
	cleaned := cleanDateString(raw)
	if cleaned == "" {
		return nil, nil
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, cleaned); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}

	// Last resort: generic parser, day-first to match Indian convention
	if t, err := dateparse.ParseAny(cleaned, dateparse.PreferMonthFirst(false)); err == nil {
		t = t.UTC()
		return &t, nil
	}

	return nil, &common.ParseError{Field: "date", Value: raw, Err: fmt.Errorf("no matching date layout")}
}

// cleanDateString strips label prefixes, ordinal suffixes and excess
// whitespace from a scraped date value.
func cleanDateString(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	// "Last Date: 21/03/2025" style labels
	if idx := strings.LastIndex(s, ":"); idx >= 0 && idx < len(s)-1 {
		candidate := strings.TrimSpace(s[idx+1:])
		if numberRe.MatchString(candidate) {
			s = candidate
		}
	}

	s = ordinalRe.ReplaceAllString(s, "$1") // "21st March" -> "21 March"
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// ParseCount extracts a post count from text such as "1,284 Posts" or
// "Total Vacancies - 350". Returns a ParseError when no number is present.
func ParseCount(raw string) (*int, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, nil
	}

	match := numberRe.FindString(s)
	if match == "" {
		return nil, &common.ParseError{Field: "post_count", Value: raw, Err: fmt.Errorf("no number found")}
	}

	n, err := strconv.Atoi(strings.ReplaceAll(match, ",", ""))
	if err != nil {
		return nil, &common.ParseError{Field: "post_count", Value: raw, Err: err}
	}
	return &n, nil
}

// waitDelay sleeps for the per-source request delay with context support.
func waitDelay(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
