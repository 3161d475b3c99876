// Package units parses configuration quantities such as "20[min]" or
// "60[ug/l]" into SI base values (seconds, kg/m³, kg).
package units

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Dimension is the physical dimension of a quantity.
type Dimension int

const (
	Time Dimension = iota
	Concentration
	Mass
)

func (d Dimension) String() string {
	switch d {
	case Time:
		return "time"
	case Concentration:
		return "concentration"
	case Mass:
		return "mass"
	default:
		return fmt.Sprintf("Dimension(%d)", int(d))
	}
}

// ErrUnknownUnit is returned for a unit not defined for the requested dimension.
var ErrUnknownUnit = errors.New("units: unknown unit")

// ErrSyntax is returned when a quantity cannot be parsed.
var ErrSyntax = errors.New("units: invalid quantity")

var scales = map[Dimension]map[string]float64{
	Time: {
		"s": 1, "sec": 1, "min": 60, "h": 3600, "hr": 3600,
		"d": 86400, "day": 86400, "wk": 604800, "yr": 31536000,
	},
	// Concentrations are mass per volume; one g/l is one kg/m³.
	Concentration: {
		"kg/m3": 1, "g/l": 1, "mg/l": 1e-3, "ug/l": 1e-6, "ng/l": 1e-9,
		"ppm": 1e-3, "ppb": 1e-6,
	},
	Mass: {
		"kg": 1, "g": 1e-3, "mg": 1e-6, "ug": 1e-9, "ng": 1e-12,
	},
}

var quantityRE = regexp.MustCompile(`^\s*([-+]?(?:\d+\.?\d*|\.\d+)(?:[eE][-+]?\d+)?)\s*(?:\[\s*([^\]\s]+)\s*\])?\s*$`)

// Parse converts s to the base unit of d. A bare number is taken to be in
// base units already.
func Parse(s string, d Dimension) (float64, error) {
	m := quantityRE.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrSyntax, s)
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrSyntax, s, err)
	}
	if m[2] == "" {
		return v, nil
	}
	scale, ok := scales[d][strings.ToLower(m[2])]
	if !ok {
		return 0, fmt.Errorf("%w: %q is not a %s unit", ErrUnknownUnit, m[2], d)
	}
	return v * scale, nil
}

// MustParse is like Parse but panics on error. It is meant for constants.
func MustParse(s string, d Dimension) float64 {
	v, err := Parse(s, d)
	if err != nil {
		panic(err)
	}
	return v
}
