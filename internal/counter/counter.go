// Package counter implements Redis INCRBY arithmetic over stored bytes.
package counter

import (
	"errors"
	"math"
	"strconv"
)

var (
	ErrNotInteger = errors.New("value is not an integer or out of range")
	ErrOverflow   = errors.New("increment or decrement would overflow")
)

// Parse accepts exactly what Redis accepts: a base-10 int64 with no padding.
func Parse(b []byte) (int64, error) {
	if len(b) == 0 || len(b) > 20 {
		return 0, ErrNotInteger
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0, ErrNotInteger
	}
	// reject "+1", "01" and "-0" which ParseInt tolerates but Redis does not
	if b[0] == '+' || (len(b) > 1 && (b[0] == '0' || (b[0] == '-' && b[1] == '0'))) {
		return 0, ErrNotInteger
	}
	return n, nil
}

func Format(n int64) []byte {
	return strconv.AppendInt(nil, n, 10)
}

// Add returns cur+by or ErrOverflow.
func Add(cur, by int64) (int64, error) {
	if (by > 0 && cur > math.MaxInt64-by) || (by < 0 && cur < math.MinInt64-by) {
		return 0, ErrOverflow
	}
	return cur + by, nil
}

// Apply parses stored, adds by and returns the new value with its encoding.
func Apply(stored []byte, by int64) (int64, []byte, error) {
	cur, err := Parse(stored)
	if err != nil {
		return 0, nil, err
	}
	next, err := Add(cur, by)
	if err != nil {
		return 0, nil, err
	}
	return next, Format(next), nil
}
