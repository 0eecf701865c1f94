package robot

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/antongulenko/unav/drive"
	"github.com/antongulenko/unav/kinematics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dummyRobot() Robot {
	r := DefaultRobot
	r.Backend = BackendDummy
	r.Drive.CommandPeriod = 2 * time.Millisecond
	r.Drive.TelemetryPeriod = 2 * time.Millisecond
	return r
}

func TestDummyDriving(t *testing.T) {
	r := dummyRobot()
	a := require.New(t)
	ctrl, err := r.Connect()
	a.NoError(err)
	defer r.Cleanup()
	a.Nil(r.MotorBoard())

	ctrl.SetTargetFromAxes(0.5, 1)
	target := ctrl.Target()
	a.InDelta(0.5, target.Forward, 1e-12)
	a.InDelta(22.5, target.Rotational, 1e-12)

	reached := func(v kinematics.Velocity) bool {
		return math.Abs(v.Forward-target.Forward) < 0.001 && math.Abs(v.Rotational-target.Rotational) < 0.1
	}
	deadline := time.Now().Add(2 * time.Second)
	for !reached(ctrl.CurrentEstimate()) {
		a.True(time.Now().Before(deadline), "estimate does not follow the target")
		time.Sleep(2 * time.Millisecond)
	}

	r.Cleanup()
	a.Equal(drive.Stopped, ctrl.State())
	r.Cleanup()
}

func TestConnectErrors(t *testing.T) {
	a := assert.New(t)
	r := dummyRobot()
	r.Backend = "nonsense"
	_, err := r.Connect()
	a.Error(err)

	r = dummyRobot()
	r.Geometry.WheelRadius = 0
	_, err = r.Connect()
	a.Error(err)
}

func TestDummyWheels(t *testing.T) {
	a := assert.New(t)
	w := new(dummyWheels)
	ctx := context.Background()
	a.NoError(w.SendVelocity(ctx, drive.WheelCommand{Wheel: drive.Right, Velocity: -1500}))
	telemetry, err := w.ReadVelocity(ctx, drive.Right)
	a.NoError(err)
	a.Equal(drive.WheelTelemetry{Wheel: drive.Right, Velocity: -1.5}, telemetry)
	a.Error(w.SendVelocity(ctx, drive.WheelCommand{Wheel: 3}))

	a.NoError(w.Close())
	a.True(drive.IsFatal(w.SendVelocity(ctx, drive.WheelCommand{})))
}
