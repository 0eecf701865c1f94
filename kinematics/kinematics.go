// Package kinematics converts between robot-frame velocities and wheel angular velocities
// of a two-wheeled differential drive.
package kinematics

import (
	"flag"
	"fmt"
	"math"
)

const (
	// Hardware actuation ceiling of a single wheel in rad/s
	MaxWheelSpeed = 32.0

	// Wire unit of wheel speeds is 0.001 rad/s
	FixedPointScale = 1000

	DegToRad = math.Pi / 180
	RadToDeg = 180 / math.Pi
)

// Velocity is an operator-facing robot velocity: Forward in m/s, Rotational in deg/s.
type Velocity struct {
	Forward    float64
	Rotational float64
}

func (v Velocity) String() string {
	return fmt.Sprintf("%.3f m/s, %.1f deg/s", v.Forward, v.Rotational)
}

var DefaultGeometry = Geometry{
	WheelRadius: 0.05,
	WheelBase:   0.3,
}

// Geometry holds the wheel radius and the distance between the wheels' contact points, both in meters.
type Geometry struct {
	WheelRadius float64
	WheelBase   float64
}

// RegisterFlags binds the geometry to millimeter command line flags, as the motor board settings store them.
func (g *Geometry) RegisterFlags() {
	flag.Var(millimeters{&g.WheelRadius}, "wheel-radius", "Wheel radius in mm")
	flag.Var(millimeters{&g.WheelBase}, "wheel-base", "Distance between the wheels in mm")
}

func (g Geometry) Validate() error {
	if !(g.WheelRadius > 0) {
		return fmt.Errorf("Wheel radius must be positive, got %v m", g.WheelRadius)
	}
	if !(g.WheelBase > 0) {
		return fmt.Errorf("Wheel base must be positive, got %v m", g.WheelBase)
	}
	return nil
}

// RawWheelSpeeds computes the unclamped left and right wheel speeds in rad/s.
// Positive rotation turns the left wheel faster than the right one.
func (g Geometry) RawWheelSpeeds(v Velocity) (left, right float64) {
	rot := v.Rotational * DegToRad
	left = (2*v.Forward + rot*g.WheelBase) / (2 * g.WheelRadius)
	right = (2*v.Forward - rot*g.WheelBase) / (2 * g.WheelRadius)
	return
}

// WheelSpeeds is RawWheelSpeeds with both results saturated to ±MaxWheelSpeed.
func (g Geometry) WheelSpeeds(v Velocity) (left, right float64) {
	left, right = g.RawWheelSpeeds(v)
	return Clamp(left), Clamp(right)
}

// RobotVelocity is the inverse of RawWheelSpeeds.
func (g Geometry) RobotVelocity(left, right float64) Velocity {
	return Velocity{
		Forward:    0.5 * (left + right) * g.WheelRadius,
		Rotational: (left - right) * g.WheelRadius / g.WheelBase * RadToDeg,
	}
}

// Clamp silently saturates a wheel speed to the actuation ceiling.
func Clamp(omega float64) float64 {
	return math.Max(-MaxWheelSpeed, math.Min(MaxWheelSpeed, omega))
}

// ToFixedPoint clamps a wheel speed and converts it to milli-rad/s, truncating towards zero.
// NaN is sent as standstill.
func ToFixedPoint(omega float64) int16 {
	if math.IsNaN(omega) {
		return 0
	}
	return int16(math.Trunc(Clamp(omega) * FixedPointScale))
}

func FromFixedPoint(val int16) float64 {
	return float64(val) / FixedPointScale
}

type millimeters struct {
	meters *float64
}

func (m millimeters) String() string {
	if m.meters == nil {
		return "0"
	}
	return fmt.Sprint(*m.meters * 1000)
}

func (m millimeters) Set(s string) error {
	var mm float64
	if _, err := fmt.Sscan(s, &mm); err != nil {
		return fmt.Errorf("Invalid length '%v': %v", s, err)
	}
	*m.meters = mm / 1000
	return nil
}
