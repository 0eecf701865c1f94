package robot

import (
	"context"
	"sync"

	"github.com/antongulenko/unav/drive"
	"github.com/antongulenko/unav/kinematics"
	log "github.com/sirupsen/logrus"
)

// dummyWheels reach every commanded velocity immediately.
type dummyWheels struct {
	mutex  sync.Mutex
	speeds [2]int16
	closed bool
}

func (d *dummyWheels) SendVelocity(ctx context.Context, cmd drive.WheelCommand) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.closed {
		return drive.ErrLinkClosed
	}
	if !cmd.Wheel.Valid() {
		return drive.Protocolf("Invalid wheel %v", uint8(cmd.Wheel))
	}
	if d.speeds[cmd.Wheel] != cmd.Velocity {
		log.Debugf("Dummy %v wheel: %v mrad/s", cmd.Wheel, cmd.Velocity)
	}
	d.speeds[cmd.Wheel] = cmd.Velocity
	return nil
}

func (d *dummyWheels) ReadVelocity(ctx context.Context, wheel drive.Wheel) (drive.WheelTelemetry, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.closed {
		return drive.WheelTelemetry{}, drive.ErrLinkClosed
	}
	if !wheel.Valid() {
		return drive.WheelTelemetry{}, drive.Protocolf("Invalid wheel %v", uint8(wheel))
	}
	return drive.WheelTelemetry{
		Wheel:    wheel,
		Velocity: kinematics.FromFixedPoint(d.speeds[wheel]),
	}, nil
}

func (d *dummyWheels) Close() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.closed = true
	return nil
}
