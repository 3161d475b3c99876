package units

import (
	"errors"
	"math"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		dim  Dimension
		want float64
	}{
		{"20[min]", Time, 1200},
		{"1.5 [h]", Time, 5400},
		{"30", Time, 30},
		{"96[hr]", Time, 345600},
		{"60[ug/l]", Concentration, 60e-6},
		{"2.5[mg/L]", Concentration, 2.5e-3},
		{"1e2[ng/l]", Concentration, 1e-7},
		{".5[g]", Mass, 5e-4},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in, tt.dim)
			if err != nil {
				t.Fatalf("Parse(%q): %v", tt.in, err)
			}
			if math.Abs(got-tt.want) > 1e-12*math.Abs(tt.want) {
				t.Errorf("Parse(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		in   string
		dim  Dimension
		want error
	}{
		{"", Time, ErrSyntax},
		{"abc", Time, ErrSyntax},
		{"10[min", Time, ErrSyntax},
		{"10[furlong]", Time, ErrUnknownUnit},
		{"10[min]", Concentration, ErrUnknownUnit},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			_, err := Parse(tt.in, tt.dim)
			if !errors.Is(err, tt.want) {
				t.Errorf("Parse(%q) err = %v, want %v", tt.in, err, tt.want)
			}
		})
	}
}
