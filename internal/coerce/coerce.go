// Package coerce implements non-strict value casting. Casts never fail the
// caller: an unparsable value yields an invalid Result with Failed set, so
// callers can count degraded cells instead of re-deriving them afterwards.
package coerce

import (
	"strconv"
	"strings"
)

// Result is the outcome of one non-strict cast.
// Valid is false for nulls and failures; Failed is true only for failures.
type Result[T any] struct {
	Value  T
	Valid  bool
	Failed bool
}

// Null returns the result for a null input
func Null[T any]() Result[T] {
	return Result[T]{}
}

func ok[T any](v T) Result[T] {
	return Result[T]{Value: v, Valid: true}
}

func failed[T any]() Result[T] {
	return Result[T]{Failed: true}
}

// Int parses a base-10 integer after trimming surrounding whitespace.
// A blank string is treated as null.
func Int(s string) Result[int64] {
	s = strings.TrimSpace(s)
	if s == "" {
		return Null[int64]()
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return failed[int64]()
	}
	return ok(v)
}

// Float parses a decimal float after trimming surrounding whitespace.
// A blank string is treated as null.
func Float(s string) Result[float64] {
	s = strings.TrimSpace(s)
	if s == "" {
		return Null[float64]()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return failed[float64]()
	}
	return ok(v)
}

// Delocalize removes every '.' and then trims surrounding whitespace.
// In the export files '.' is always a thousands separator, never a decimal point.
func Delocalize(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, ".", ""))
}

// DelocalizedInt parses a thousands-grouped integer such as "1.234.567"
func DelocalizedInt(s string) Result[int64] {
	return Int(Delocalize(s))
}

// DelocalizedFloat parses a thousands-grouped number such as "25.412.581.716"
// as a float
func DelocalizedFloat(s string) Result[float64] {
	return Float(Delocalize(s))
}

// SplitPart returns the i-th part of s split on sep, trimmed.
// The second return is false when s has fewer than i+1 parts.
func SplitPart(s, sep string, i int) (string, bool) {
	parts := strings.Split(s, sep)
	if i < 0 || i >= len(parts) {
		return "", false
	}
	return strings.TrimSpace(parts[i]), true
}

// Counter aggregates cast outcomes for one column
type Counter struct {
	Valid  int
	Nulls  int
	Failed int
}

// Observe records one result
func Observe[T any](c *Counter, r Result[T]) {
	switch {
	case r.Valid:
		c.Valid++
	case r.Failed:
		c.Failed++
	default:
		c.Nulls++
	}
}
