package record

import (
	"math"
	"testing"
)

func TestParseNumeric(t *testing.T) {
	tests := []struct {
		in       string
		expected float64
		ok       bool
	}{
		{"1234", 1234, true},
		{"$ 1,234.50", 1234.5, true},
		{"14.1%", 14.1, true},
		{"(123)", -123, true},
		{"( 56.2 )", -56.2, true},
		{"-42", -42, true},
		{"", 0, false},
		{"n/a", 0, false},
		{"see note 12", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseNumeric(tt.in)
			if ok != tt.ok {
				t.Fatalf("ParseNumeric(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			}
			if ok && got != tt.expected {
				t.Errorf("ParseNumeric(%q) = %f, want %f", tt.in, got, tt.expected)
			}
		})
	}
}

func TestPercentChange(t *testing.T) {
	tests := []struct {
		name              string
		current, previous float64
		expected          float64
	}{
		{"increase", 120, 100, 20},
		{"decrease", 80, 100, -20},
		{"negative base", 50, -100, 150},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PercentChange(tt.current, tt.previous)
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("got %f, want %f", got, tt.expected)
			}
		})
	}
}

func TestPercentChangeZeroBase(t *testing.T) {
	if got := PercentChange(10, 0); !math.IsInf(got, 1) {
		t.Errorf("expected +Inf, got %f", got)
	}
	if got := PercentChange(-10, 0); !math.IsInf(got, -1) {
		t.Errorf("expected -Inf, got %f", got)
	}
}

func TestFormatPercentage(t *testing.T) {
	if got := FormatPercentage(14.123); got != "14.12%" {
		t.Errorf("got %q", got)
	}
	if got := FormatPercentage(-0.5); got != "-0.50%" {
		t.Errorf("got %q", got)
	}
}
