package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestCommissionRoundsHalfUpAfterSumming(t *testing.T) {
	cases := []struct {
		total string
		rate  float64
		want  string
	}{
		{"100.00", 0.5, "50.00"},
		{"50.00", 0.3, "15.00"},
		{"0.05", 0.5, "0.03"},
		{"10.01", 0.5, "5.01"},
		{"33.33", 0, "0.00"},
	}
	for _, tc := range cases {
		got := Commission(decimal.RequireFromString(tc.total), tc.rate)
		if !got.Equal(decimal.RequireFromString(tc.want)) {
			t.Fatalf("Commission(%s, %v) = %s, want %s", tc.total, tc.rate, got, tc.want)
		}
	}

	// Rounding each 0.01 item would give 0.02 in total; the summed 0.02 gives 0.01.
	summed := SumMoney(decimal.RequireFromString("0.01"), decimal.RequireFromString("0.01"))
	if got := Commission(summed, 0.5); !got.Equal(decimal.RequireFromString("0.01")) {
		t.Fatalf("expected commission on summed total 0.01, got %s", got)
	}
}

func TestParseMoney(t *testing.T) {
	if d, err := ParseMoney(" 12.5 "); err != nil || !d.Equal(decimal.RequireFromString("12.50")) {
		t.Fatalf("expected 12.50, got %s %v", d, err)
	}
	for _, raw := range []string{"abc", "-1.00", "1.005", ""} {
		if _, err := ParseMoney(raw); !errors.Is(err, ErrValidation) {
			t.Fatalf("ParseMoney(%q) expected validation error, got %v", raw, err)
		}
	}
}

func TestHasAtMostTwoPlaces(t *testing.T) {
	if !HasAtMostTwoPlaces(decimal.RequireFromString("3.10")) {
		t.Fatalf("3.10 has two places")
	}
	if HasAtMostTwoPlaces(decimal.RequireFromString("3.101")) {
		t.Fatalf("3.101 has three places")
	}
}
