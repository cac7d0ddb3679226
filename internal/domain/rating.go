package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// ParseRating reads a star rating stored as a number or a numeric string. Fractional values and
// values outside [MinRating, MaxRating] are rejected.
func ParseRating(value any) (int, bool) {
	var f float64
	switch v := value.(type) {
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case float64:
		f = v
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if f != math.Trunc(f) || f < MinRating || f > MaxRating {
		return 0, false
	}
	return int(f), true
}
