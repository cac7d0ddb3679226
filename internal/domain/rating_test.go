package domain

import (
	"encoding/json"
	"testing"
)

func TestParseRating(t *testing.T) {
	cases := []struct {
		name  string
		value any
		want  int
		ok    bool
	}{
		{"int", 4, 4, true},
		{"float", float64(5), 5, true},
		{"string", "3", 3, true},
		{"padded string", " 2 ", 2, true},
		{"json number", json.Number("1"), 1, true},
		{"fraction", 4.5, 0, false},
		{"zero", 0, 0, false},
		{"six", "6", 0, false},
		{"empty", "", 0, false},
		{"nil", nil, 0, false},
		{"bool", true, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseRating(tc.value)
			if ok != tc.ok || got != tc.want {
				t.Fatalf("ParseRating(%v) = %d, %v; want %d, %v", tc.value, got, ok, tc.want, tc.ok)
			}
		})
	}
}
