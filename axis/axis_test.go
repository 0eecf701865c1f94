package axis

import (
	"math"
	"testing"

	"github.com/antongulenko/unav/kinematics"
	"github.com/stretchr/testify/assert"
)

func TestShape(t *testing.T) {
	a := assert.New(t)
	test := func(v, maxAxis, expect float64) {
		a.InDelta(expect, Shape(v, maxAxis), 1e-12, "shape(%v, %v)", v, maxAxis)
	}

	test(0, 1, 0)
	test(1, 1, 1)
	test(-1, 1, -1)
	test(0.5, 1, 0.25)
	test(-0.5, 1, -0.25)
	test(32767, 32767, 1)
	test(-32767, 32767, -1)
	test(16383.5, 32767, 0.25)
}

func TestShapeOddSymmetric(t *testing.T) {
	a := assert.New(t)
	for _, maxAxis := range []float64{1, 100, 32767} {
		for v := -maxAxis; v <= maxAxis; v += maxAxis / 16 {
			a.Equal(-Shape(v, maxAxis), Shape(-v, maxAxis))
			a.True(Shape(v, maxAxis) <= 1)
			a.True(Shape(v, maxAxis) >= -1)
		}
	}
}

func TestMap(t *testing.T) {
	a := assert.New(t)
	m := Mapper{MaxAxis: 100, MaxForward: 0.8, MaxRotational: 120}
	test := func(x, y float64, expect kinematics.Velocity) {
		v := m.Map(x, y)
		a.InDelta(expect.Forward, v.Forward, 1e-12, "forward for (%v, %v)", x, y)
		a.InDelta(expect.Rotational, v.Rotational, 1e-12, "rotation for (%v, %v)", x, y)
	}

	test(0, 0, kinematics.Velocity{})
	test(0, 100, kinematics.Velocity{Forward: 0.8})
	test(0, -100, kinematics.Velocity{Forward: -0.8})
	test(100, 0, kinematics.Velocity{Rotational: 120})
	test(-100, 0, kinematics.Velocity{Rotational: -120})
	test(50, 50, kinematics.Velocity{Forward: 0.2, Rotational: 30})
	test(-50, -10, kinematics.Velocity{Forward: -0.008, Rotational: -30})
}

func TestPercentages(t *testing.T) {
	a := assert.New(t)
	m := Mapper{MaxAxis: 1, MaxForward: 0.5, MaxRotational: 90}
	test := func(v kinematics.Velocity, expectFw, expectRot float64) {
		fw, rot := m.Percentages(v)
		a.InDelta(expectFw, fw, 1e-9, "forward of %v", v)
		a.InDelta(expectRot, rot, 1e-9, "rotational of %v", v)
	}
	test(kinematics.Velocity{}, 0, 0)
	test(kinematics.Velocity{Forward: 0.25, Rotational: -45}, 50, -50)
	test(kinematics.Velocity{Forward: -0.5, Rotational: 90}, -100, 100)
	test(kinematics.Velocity{Forward: 0.75, Rotational: 135}, 150, 150)

	fw, rot := Mapper{}.Percentages(kinematics.Velocity{Forward: 1, Rotational: 1})
	a.Equal(0.0, fw)
	a.Equal(0.0, rot)
}

func TestValidate(t *testing.T) {
	a := assert.New(t)
	a.NoError(DefaultMapper.Validate())
	a.NoError(Mapper{MaxAxis: 32767}.Validate())
	test := func(m Mapper) {
		a.Error(m.Validate(), "%+v", m)
	}
	test(Mapper{MaxForward: 1, MaxRotational: 90})
	test(Mapper{MaxAxis: -1, MaxForward: 1, MaxRotational: 90})
	test(Mapper{MaxAxis: math.NaN(), MaxForward: 1, MaxRotational: 90})
	test(Mapper{MaxAxis: math.Inf(1), MaxForward: 1, MaxRotational: 90})
	test(Mapper{MaxAxis: 1, MaxForward: math.Inf(1), MaxRotational: 90})
	test(Mapper{MaxAxis: 1, MaxForward: 1, MaxRotational: math.NaN()})
	test(Mapper{MaxAxis: 1, MaxForward: -1, MaxRotational: 90})
}
