package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestToDecimal128(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "whole amount", input: "200", want: "200.00"},
		{name: "two places preserved", input: "149.97", want: "149.97"},
		{name: "rounds half up", input: "10.005", want: "10.01"},
		{name: "truncates extra places", input: "33.333", want: "33.33"},
		{name: "zero", input: "0", want: "0.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToDecimal128(decimal.RequireFromString(tt.input))
			if err != nil {
				t.Fatalf("ToDecimal128() error = %v", err)
			}
			if got.String() != tt.want {
				t.Errorf("ToDecimal128() = %s, want %s", got.String(), tt.want)
			}
		})
	}
}

func TestRoundTrip(t *testing.T) {
	original := decimal.RequireFromString("179.70")

	stored, err := ToDecimal128(original)
	if err != nil {
		t.Fatalf("ToDecimal128() error = %v", err)
	}

	back, err := FromDecimal128(stored)
	if err != nil {
		t.Fatalf("FromDecimal128() error = %v", err)
	}

	if !back.Equal(original) {
		t.Errorf("round trip changed value: got %s, want %s", back, original)
	}
}

func TestMustDecimal128(t *testing.T) {
	got := MustDecimal128(decimal.RequireFromString("42.50"))
	if got.String() != "42.50" {
		t.Errorf("MustDecimal128() = %s, want 42.50", got.String())
	}
}
