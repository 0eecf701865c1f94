package axis

import (
	"flag"
	"fmt"
	"math"

	"github.com/antongulenko/unav/kinematics"
)

var DefaultMapper = Mapper{
	MaxAxis:       1,
	MaxForward:    0.5,
	MaxRotational: 90,
}

// Mapper converts raw input device axis samples into a target robot velocity.
type Mapper struct {
	// Range of the input device axes: samples lie in -MaxAxis..MaxAxis
	MaxAxis float64

	MaxForward    float64 // m/s
	MaxRotational float64 // deg/s
}

func (m *Mapper) RegisterFlags() {
	flag.Float64Var(&m.MaxForward, "max-fw-speed", m.MaxForward, "Maximum forward speed in m/s")
	flag.Float64Var(&m.MaxRotational, "max-rot-speed", m.MaxRotational, "Maximum rotational speed in deg/s")
}

// Map shapes both axes and scales them by the ceilings. Y drives forward speed, X the rotation.
// Samples outside of -MaxAxis..MaxAxis violate the input device contract and are not checked.
func (m Mapper) Map(x, y float64) kinematics.Velocity {
	return kinematics.Velocity{
		Forward:    m.MaxForward * Shape(y, m.MaxAxis),
		Rotational: m.MaxRotational * Shape(x, m.MaxAxis),
	}
}

// Validate rejects an empty axis range and ceilings that are negative or not finite.
func (m Mapper) Validate() error {
	if !(m.MaxAxis > 0) || math.IsInf(m.MaxAxis, 0) {
		return fmt.Errorf("Axis range must be positive, got %v", m.MaxAxis)
	}
	if !(m.MaxForward >= 0) || math.IsInf(m.MaxForward, 0) {
		return fmt.Errorf("Invalid forward speed ceiling: %v m/s", m.MaxForward)
	}
	if !(m.MaxRotational >= 0) || math.IsInf(m.MaxRotational, 0) {
		return fmt.Errorf("Invalid rotational speed ceiling: %v deg/s", m.MaxRotational)
	}
	return nil
}

// Shape normalizes v to -1..1 and squares it, keeping the sign. This gives fine control near
// the center and full authority at the extremes.
func Shape(v, maxAxis float64) float64 {
	n := v / maxAxis
	if n < 0 {
		return -n * n
	}
	return n * n
}

// Percentages expresses v as signed percentages of the forward and rotational ceilings.
// A zero ceiling yields zero.
func (m Mapper) Percentages(v kinematics.Velocity) (forward, rotational float64) {
	return percentOf(v.Forward, m.MaxForward), percentOf(v.Rotational, m.MaxRotational)
}

func percentOf(v, ceiling float64) float64 {
	if ceiling == 0 {
		return 0
	}
	return v / ceiling * 100
}
