package drive

import (
	"flag"
	"math"
	"time"

	"github.com/antongulenko/unav/kinematics"
)

// Ramp limits how fast the commanded velocity follows the operator target. Accel applies while
// the speed magnitude grows in the current direction, Decel otherwise. Both are per-second
// limits (m/s² and deg/s²), zero disables the limit on that axis.
type Ramp struct {
	Accel kinematics.Velocity
	Decel kinematics.Velocity
}

func (r *Ramp) RegisterFlags() {
	flag.Float64Var(&r.Accel.Forward, "fw-accel", r.Accel.Forward, "Forward acceleration limit in m/s² (0 disables)")
	flag.Float64Var(&r.Decel.Forward, "fw-decel", r.Decel.Forward, "Forward deceleration limit in m/s² (0 disables)")
	flag.Float64Var(&r.Accel.Rotational, "rot-accel", r.Accel.Rotational, "Rotational acceleration limit in deg/s² (0 disables)")
	flag.Float64Var(&r.Decel.Rotational, "rot-decel", r.Decel.Rotational, "Rotational deceleration limit in deg/s² (0 disables)")
}

func (r Ramp) Enabled() bool {
	return r.Accel != kinematics.Velocity{} || r.Decel != kinematics.Velocity{}
}

// Step moves current towards target by at most the limits allowed within dt.
func (r Ramp) Step(current, target kinematics.Velocity, dt time.Duration) kinematics.Velocity {
	sec := dt.Seconds()
	return kinematics.Velocity{
		Forward:    approach(current.Forward, target.Forward, r.Accel.Forward*sec, r.Decel.Forward*sec),
		Rotational: approach(current.Rotational, target.Rotational, r.Accel.Rotational*sec, r.Decel.Rotational*sec),
	}
}

func approach(cur, target, accelStep, decelStep float64) float64 {
	forward := cur > 0         // Currently moving in positive direction
	increasing := target > cur // Target is more positive than the current value

	step := decelStep
	if forward == increasing || cur == 0 {
		step = accelStep
	}
	if step <= 0 || math.Abs(target-cur) <= step {
		return target
	}
	if increasing {
		return cur + step
	}
	return cur - step
}
