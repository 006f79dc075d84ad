// Package season maps calendar export weeks onto the agricultural season,
// which starts at a pivot week and wraps over the year boundary.
package season

import (
	"strconv"
	"strings"
)

// DefaultPivotWeek is the first week of a season
const DefaultPivotWeek = 35

// WeeksPerYear is the highest ISO week number
const WeeksPerYear = 53

// AbsoluteWeek converts a calendar week into a 1-based week within the season.
// Weeks at or after pivot come first; earlier weeks continue after week 53.
func AbsoluteWeek(week, pivot int64) int64 {
	if week >= pivot {
		return week - pivot + 1
	}
	return week + (WeeksPerYear - pivot) + 1
}

// SplitSeason parses a "2019-2020" season label into its start and end
// years. Each part is reported independently; an unparseable part is not ok.
func SplitSeason(label string) (start int64, startOK bool, end int64, endOK bool) {
	first, second, found := strings.Cut(strings.TrimSpace(label), "-")
	start, startOK = parseYear(first)
	if found {
		end, endOK = parseYear(second)
	}
	return start, startOK, end, endOK
}

func parseYear(s string) (int64, bool) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, false
	}
	return v, true
}
