// Package agents holds helpers shared by the domain agents.
package agents

import (
	"math"
	"strconv"
	"strings"
)

// CoerceNumber reports integral values as int64 so JSON renders 42, not 42.0.
func CoerceNumber(f float64) interface{} {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return int64(f)
	}
	return f
}

// ParseNumber parses a numeric-looking cell. Thousands separators are tolerated.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err == nil {
		return f, true
	}
	if strings.Contains(s, ",") {
		f, err = strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
		return f, err == nil
	}
	return 0, false
}

// CoerceCell turns a raw cell into nil, a number or the trimmed string.
func CoerceCell(s string, numeric bool) interface{} {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if numeric {
		if f, ok := ParseNumber(s); ok {
			return CoerceNumber(f)
		}
	}
	return s
}
