package drive

import (
	"context"
	"time"

	"github.com/antongulenko/unav/kinematics"
	log "github.com/sirupsen/logrus"
)

// commandScheduler pushes the latest target velocity to both wheels on every tick.
type commandScheduler struct {
	link     *Link
	geometry kinematics.Geometry
	target   *velocityCell
	ramp     Ramp
	period   time.Duration

	// Only accessed from the tick goroutine
	commanded kinematics.Velocity
}

func (c *commandScheduler) reset() {
	c.commanded = kinematics.Velocity{}
}

// wheelCommands converts a robot velocity into saturated per-wheel commands.
func wheelCommands(g kinematics.Geometry, v kinematics.Velocity) [2]WheelCommand {
	left, right := g.WheelSpeeds(v)
	return [2]WheelCommand{
		{Wheel: Left, Velocity: kinematics.ToFixedPoint(left)},
		{Wheel: Right, Velocity: kinematics.ToFixedPoint(right)},
	}
}

// tick sends both wheel commands as independent exchanges. A failed left wheel command does not
// prevent the right one. The returned error is the first failure, or the fatal one.
func (c *commandScheduler) tick(ctx context.Context) error {
	target := c.target.Load()
	if c.ramp.Enabled() {
		target = c.ramp.Step(c.commanded, target, c.period)
	}
	c.commanded = target

	var result error
	for _, cmd := range wheelCommands(c.geometry, target) {
		err := c.link.SendVelocityCommand(ctx, cmd)
		if err == nil {
			continue
		}
		if ctx.Err() != nil || IsFatal(err) {
			return err
		}
		log.Warnln(err)
		if result == nil {
			result = err
		}
	}
	return result
}
