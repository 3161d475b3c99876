// Package doseresponse models mortality or impairment as a function of
// exposure concentration and duration.
//
// A surface is fitted from two observed points, each the fraction p of a
// population affected after time t at concentration c. The model is a
// constant hazard whose rate follows a power law in concentration:
//
//	P(c, t) = 1 - exp(-k · c^a · t)
//
// so ln(-ln(1-p)) - ln t = ln k + a·ln c is linear in ln c.
package doseresponse

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/pthm-cable/exposure/units"
)

// ErrInvalid is returned for surface definitions that cannot be fitted.
var ErrInvalid = errors.New("doseresponse: invalid surface")

// NoneLiteral is the configuration value for an explicitly absent response.
const NoneLiteral = "none"

// Surface is a fitted dose-response relationship. The zero value is an
// unconfigured surface that always reports 0.
type Surface struct {
	k, a float64
	set  bool
	def  string
}

// Point is one observation on a surface.
type Point struct {
	Percent       float64 // affected fraction, in percent
	Concentration float64 // kg/m³
	Time          float64 // seconds
}

// Fit builds a surface through two points.
func Fit(p0, p1 Point) (Surface, error) {
	pts := [2]Point{p0, p1}
	var x, y [2]float64
	for i, p := range pts {
		if !(p.Percent > 0 && p.Percent < 100) {
			return Surface{}, fmt.Errorf("%w: percentage %v outside (0,100)", ErrInvalid, p.Percent)
		}
		if !(p.Concentration > 0) || !(p.Time > 0) {
			return Surface{}, fmt.Errorf("%w: non-positive concentration or time in point %d", ErrInvalid, i)
		}
		x[i] = math.Log(p.Concentration)
		y[i] = math.Log(-math.Log1p(-p.Percent/100)) - math.Log(p.Time)
	}

	if x[0] == x[1] {
		if math.Abs(y[0]-y[1]) > 1e-9*math.Max(1, math.Abs(y[0])) {
			return Surface{}, fmt.Errorf("%w: points at equal concentration disagree", ErrInvalid)
		}
		return Surface{k: math.Exp(y[0] - x[0]), a: 1, set: true}, nil
	}

	design := mat.NewDense(2, 2, []float64{
		1, x[0],
		1, x[1],
	})
	var sol mat.VecDense
	if err := sol.SolveVec(design, mat.NewVecDense(2, y[:])); err != nil {
		return Surface{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	s := Surface{k: math.Exp(sol.AtVec(0)), a: sol.AtVec(1), set: true}
	if !(s.a > 0) || math.IsInf(s.k, 0) || !(s.k > 0) {
		return Surface{}, fmt.Errorf("%w: response does not rise with concentration (a=%v)", ErrInvalid, s.a)
	}
	return s, nil
}

var pointRE = regexp.MustCompile(`^\s*([0-9.eE+-]+)\s*%\s*([^@]+?)\s*@\s*(.+?)\s*$`)

// Parse reads a surface definition of the form "P0% C0@T0, P1% C1@T1" or the
// literal "none". Concentrations and times accept unit suffixes such as
// "60[ug/l]" and "96[hr]".
func Parse(def string) (Surface, error) {
	if strings.EqualFold(strings.TrimSpace(def), NoneLiteral) {
		return Surface{def: NoneLiteral}, nil
	}
	parts := strings.Split(def, ",")
	if len(parts) != 2 {
		return Surface{}, fmt.Errorf("%w: %q: want two points", ErrInvalid, def)
	}
	var pts [2]Point
	for i, part := range parts {
		m := pointRE.FindStringSubmatch(part)
		if m == nil {
			return Surface{}, fmt.Errorf("%w: %q: malformed point %q", ErrInvalid, def, part)
		}
		pct, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return Surface{}, fmt.Errorf("%w: %q: percentage: %v", ErrInvalid, def, err)
		}
		conc, err := units.Parse(m[2], units.Concentration)
		if err != nil {
			return Surface{}, fmt.Errorf("%w: %q: %v", ErrInvalid, def, err)
		}
		dur, err := units.Parse(m[3], units.Time)
		if err != nil {
			return Surface{}, fmt.Errorf("%w: %q: %v", ErrInvalid, def, err)
		}
		pts[i] = Point{Percent: pct, Concentration: conc, Time: dur}
	}
	s, err := Fit(pts[0], pts[1])
	if err != nil {
		return Surface{}, fmt.Errorf("%q: %w", def, err)
	}
	s.def = strings.TrimSpace(def)
	return s, nil
}

// Configured reports whether the surface was fitted from points.
func (s Surface) Configured() bool {
	return s.set
}

// Params returns the rate coefficient k and concentration exponent a.
func (s Surface) Params() (k, a float64) {
	return s.k, s.a
}

// Value returns the fraction affected by exposure to conc over one interval
// of length dt. Per-interval values compose multiplicatively on their
// complements, so a run of intervals at constant conc reproduces
// Cumulative(conc, Σdt).
func (s Surface) Value(conc, dt float64) float64 {
	if !s.set || !(conc > 0) || !(dt > 0) {
		return 0
	}
	return -math.Expm1(-s.k * math.Pow(conc, s.a) * dt)
}

// Cumulative returns the fraction affected after continuous exposure to
// conc for duration t.
func (s Surface) Cumulative(conc, t float64) float64 {
	return s.Value(conc, t)
}

// String returns the definition the surface was parsed from.
func (s Surface) String() string {
	return s.def
}
