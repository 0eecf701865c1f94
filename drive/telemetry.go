package drive

import (
	"context"

	"github.com/antongulenko/unav/kinematics"
)

// telemetryScheduler polls both wheel velocities and commits a new robot velocity estimate
// only when both reads of a round succeed.
type telemetryScheduler struct {
	link     *Link
	geometry kinematics.Geometry
	estimate *velocityCell
	observer func(kinematics.Velocity)
}

func (t *telemetryScheduler) tick(ctx context.Context) error {
	var speeds [len(Wheels)]float64
	for _, wheel := range Wheels {
		telemetry, err := t.link.RequestVelocityTelemetry(ctx, wheel)
		if err != nil {
			// The round is discarded, the previous estimate stays in place
			return err
		}
		speeds[telemetry.Wheel] = telemetry.Velocity
	}
	estimate := t.geometry.RobotVelocity(speeds[Left], speeds[Right])
	t.estimate.Store(estimate)
	if t.observer != nil {
		t.observer(estimate)
	}
	return nil
}
