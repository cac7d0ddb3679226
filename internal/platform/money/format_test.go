package money

import "testing"

func TestFormat(t *testing.T) {
	cases := []struct {
		label  string
		amount int64
		want   string
	}{
		{"Rs.", 0, "Rs. 0.00"},
		{"Rs.", 3900, "Rs. 3,900.00"},
		{"Rs.", 1234567, "Rs. 1,234,567.00"},
		{"", 500, "500.00"},
	}
	for _, tc := range cases {
		if got := Format(tc.label, tc.amount); got != tc.want {
			t.Fatalf("Format(%q, %d) = %q, want %q", tc.label, tc.amount, got, tc.want)
		}
	}
}

func TestDiscountPercent(t *testing.T) {
	cases := []struct {
		price, original int64
		want            int
	}{
		{3900, 4500, 13},
		{2500, 5000, 50},
		{1000, 1000, 0},
		{1000, 0, 0},
		{1999, 3000, 33},
		{1, 3, 67},
	}
	for _, tc := range cases {
		if got := DiscountPercent(tc.price, tc.original); got != tc.want {
			t.Fatalf("DiscountPercent(%d, %d) = %d, want %d", tc.price, tc.original, got, tc.want)
		}
	}
}
