package kinematics

import (
	"flag"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

const delta = 1e-9

var geometries = []Geometry{
	{WheelRadius: 0.05, WheelBase: 0.3},
	{WheelRadius: 0.1, WheelBase: 0.3},
	{WheelRadius: 0.0325, WheelBase: 0.174},
	{WheelRadius: 0.2, WheelBase: 1.1},
}

func TestWheelSpeedsStraight(t *testing.T) {
	a := assert.New(t)
	test := func(g Geometry, forward, expect float64) {
		l, r := g.WheelSpeeds(Velocity{Forward: forward})
		a.InDelta(expect, l, delta, "left")
		a.InDelta(expect, r, delta, "right")
	}
	test(Geometry{0.1, 0.3}, 1, 10)
	test(Geometry{0.1, 0.3}, -1, -10)
	test(Geometry{0.05, 0.3}, 1, 20)
	test(Geometry{0.05, 0.3}, 0, 0)
}

func TestWheelSpeedsRotation(t *testing.T) {
	a := assert.New(t)
	g := Geometry{WheelRadius: 0.1, WheelBase: 0.4}

	// 90 deg/s on the spot: each wheel covers pi/2 * L/2 per second
	l, r := g.WheelSpeeds(Velocity{Rotational: 90})
	expect := math.Pi / 2 * 0.2 / 0.1
	a.InDelta(expect, l, delta)
	a.InDelta(-expect, r, delta)

	// Positive rotation means left faster than right
	l, r = g.WheelSpeeds(Velocity{Forward: 0.5, Rotational: 10})
	a.True(l > r)
}

func TestRoundTripWheels(t *testing.T) {
	a := assert.New(t)
	for _, g := range geometries {
		for left := -MaxWheelSpeed; left <= MaxWheelSpeed; left += 3.2 {
			for right := -MaxWheelSpeed; right <= MaxWheelSpeed; right += 4 {
				l, r := g.WheelSpeeds(g.RobotVelocity(left, right))
				a.InDelta(left, l, 1e-9, "left wheel, geometry %v", g)
				a.InDelta(right, r, 1e-9, "right wheel, geometry %v", g)
			}
		}
	}
}

func TestRoundTripVelocity(t *testing.T) {
	a := assert.New(t)
	for _, g := range geometries {
		for fw := -1.0; fw <= 1.0; fw += 0.25 {
			for rot := -180.0; rot <= 180.0; rot += 45 {
				v := Velocity{fw, rot}
				l, r := g.RawWheelSpeeds(v)
				if math.Abs(l) > MaxWheelSpeed || math.Abs(r) > MaxWheelSpeed {
					continue
				}
				back := g.RobotVelocity(l, r)
				a.InDelta(fw, back.Forward, 1e-9)
				a.InDelta(rot, back.Rotational, 1e-9)
			}
		}
	}
}

func TestClampBoundary(t *testing.T) {
	a := assert.New(t)
	a.Equal(32.0, Clamp(32.0))
	a.Equal(-32.0, Clamp(-32.0))
	a.Equal(32.0, Clamp(32.0001))
	a.Equal(-32.0, Clamp(-32.0001))
	a.Equal(31.9999, Clamp(31.9999))

	// Forward speed that drives both wheels to exactly 32 rad/s with r=0.5 is 16 m/s
	g := Geometry{WheelRadius: 0.5, WheelBase: 1}
	l, r := g.WheelSpeeds(Velocity{Forward: 16})
	a.Equal(32.0, l)
	a.Equal(32.0, r)
	l, r = g.WheelSpeeds(Velocity{Forward: 16.00005})
	a.Equal(32.0, l)
	a.Equal(32.0, r)
	l, r = g.RawWheelSpeeds(Velocity{Forward: 16.00005})
	a.True(l > 32)
	a.True(r > 32)
}

func TestFixedPoint(t *testing.T) {
	a := assert.New(t)
	test := func(omega float64, expect int16) {
		a.Equal(expect, ToFixedPoint(omega), "omega %v", omega)
	}
	test(0, 0)
	test(10, 10000)
	test(-10, -10000)
	test(32, 32000)
	test(-32, -32000)
	test(100, 32000)
	test(-100, -32000)
	test(0.0015, 1)
	test(-0.0015, -1)
	test(31.9995, 31999)
	test(2.9999999, 2999)
	test(math.NaN(), 0)
	test(math.Inf(1), 32000)
	test(math.Inf(-1), -32000)
	a.Equal(10.0, FromFixedPoint(10000))
	a.Equal(-0.001, FromFixedPoint(-1))
}

func TestValidate(t *testing.T) {
	a := assert.New(t)
	a.NoError(Geometry{0.05, 0.3}.Validate())
	a.Error(Geometry{0, 0.3}.Validate())
	a.Error(Geometry{0.05, -1}.Validate())
	a.Error(Geometry{math.NaN(), 0.3}.Validate())
}

func TestMillimeterFlags(t *testing.T) {
	a := assert.New(t)
	var g Geometry
	flags := flag.NewFlagSet("test", flag.ContinueOnError)
	flags.Var(millimeters{&g.WheelRadius}, "wheel-radius", "")
	flags.Var(millimeters{&g.WheelBase}, "wheel-base", "")
	a.NoError(flags.Parse([]string{"-wheel-radius", "50", "-wheel-base", "300"}))
	a.InDelta(0.05, g.WheelRadius, delta)
	a.InDelta(0.3, g.WheelBase, delta)
	a.Error(flags.Parse([]string{"-wheel-base", "abc"}))
}
