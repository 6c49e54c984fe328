package dex

import (
	"math/big"
	"testing"
)

func TestParseUnits(t *testing.T) {
	cases := []struct {
		in       string
		decimals uint8
		want     string
	}{
		{"0.000001", 18, "1000000000000"},
		{"1000", 18, "1000000000000000000000"},
		{"0.01", 9, "10000000"},
		{"495", 6, "495000000"},
	}
	for _, tc := range cases {
		got, err := ParseUnits(tc.in, tc.decimals)
		if err != nil {
			t.Fatalf("ParseUnits(%q): %v", tc.in, err)
		}
		if got.String() != tc.want {
			t.Fatalf("ParseUnits(%q, %d) = %s, want %s", tc.in, tc.decimals, got, tc.want)
		}
	}
}

func TestParseUnitsRejects(t *testing.T) {
	for _, in := range []string{"abc", "-1", "0.0000001"} {
		if _, err := ParseUnits(in, 6); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}

func TestFormatUnits(t *testing.T) {
	amount, _ := new(big.Int).SetString("1234567890000000000", 10)
	if got := FormatUnits(amount, 18); got != "1.23456789" {
		t.Fatalf("FormatUnits = %s", got)
	}
	if got := FormatFixed(amount, 18, 4); got != "1.2345" {
		t.Fatalf("FormatFixed = %s", got)
	}
	if got := FormatUnits(nil, 18); got != "0" {
		t.Fatalf("FormatUnits(nil) = %s", got)
	}
}
