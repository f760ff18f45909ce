package xmlparse

import (
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

var monthAbbr = map[string]int{
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
	"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
}

func parseMonth(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return monthAbbr[strings.ToLower(s[:min3(len(s), 3)])]
}

func min3(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// safeParseDate mirrors the original's safe_parse_date: a year/month/day
// triple that fails calendar validation is corrected by clamping the day to
// the last valid day of that month, with the correction logged alongside the
// article id for traceability (§3, §8 B2).
func safeParseDate(year, month, day, articleID, context string) (time.Time, bool) {
	y, err := strconv.Atoi(strings.TrimSpace(year))
	if err != nil || y == 0 {
		return time.Time{}, false
	}
	m := parseMonth(month)
	if m < 1 || m > 12 {
		return time.Time{}, false
	}
	d, err := strconv.Atoi(strings.TrimSpace(day))
	if err != nil {
		d = 1
	}

	if t, ok := tryDate(y, m, d); ok {
		return t, true
	}

	log.Warn().Str("article_id", articleID).Str("context", context).
		Int("year", y).Int("month", m).Int("day", d).
		Msg("invalid date, attempting correction")

	last := lastDayOfMonth(y, m)
	corrected := d
	if corrected > last {
		corrected = last
	}
	if corrected < 1 {
		corrected = 1
	}
	t, ok := tryDate(y, m, corrected)
	if !ok {
		log.Error().Str("article_id", articleID).Str("context", context).Msg("date correction failed")
		return time.Time{}, false
	}
	log.Info().Str("article_id", articleID).Str("context", context).
		Time("corrected_date", t).Msg("corrected date")
	return t, true
}

func tryDate(y, m, d int) (time.Time, bool) {
	if d < 1 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes out-of-range days into the next month; detect that
	// and treat it as invalid so the caller clamps instead of silently rolling over.
	if int(t.Month()) != m || t.Year() != y || t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}

func lastDayOfMonth(y, m int) int {
	firstOfNext := time.Date(y, time.Month(m)+1, 1, 0, 0, 0, 0, time.UTC)
	return firstOfNext.AddDate(0, 0, -1).Day()
}
