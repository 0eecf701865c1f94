// Package servobus drives robots whose wheels are Feetech serial bus servos in velocity mode.
package servobus

import (
	"context"
	"flag"
	"math"
	"time"

	"github.com/antongulenko/unav/drive"
	"github.com/antongulenko/unav/kinematics"
	"github.com/hipsterbrown/feetech-servo/feetech"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Servo positions and speeds are counted in steps, one revolution has this many
const stepsPerRevolution = 4096

const radPerStep = 2 * math.Pi / stepsPerRevolution

// Older position samples are discarded, a wheel at full speed could have turned more than half a
// revolution since then and the wrapped delta would be ambiguous.
var maxSampleAge = time.Duration(math.Trunc(math.Pi / kinematics.MaxWheelSpeed * float64(time.Second)))

var DefaultConfig = Config{
	BaudRate:    1000000,
	LeftID:      1,
	RightID:     2,
	InvertRight: true,
	Timeout:     100 * time.Millisecond,
}

type Config struct {
	BaudRate    int
	LeftID      int
	RightID     int
	InvertLeft  bool
	InvertRight bool
	Timeout     time.Duration // Bus response timeout
}

func (c *Config) RegisterFlags() {
	flag.IntVar(&c.BaudRate, "servo-baud", c.BaudRate, "Baud rate of the servo bus")
	flag.IntVar(&c.LeftID, "left-servo", c.LeftID, "Bus ID of the left wheel servo")
	flag.IntVar(&c.RightID, "right-servo", c.RightID, "Bus ID of the right wheel servo")
	flag.BoolVar(&c.InvertLeft, "servo-invert-left", c.InvertLeft, "Invert the left wheel servo")
	flag.BoolVar(&c.InvertRight, "servo-invert-right", c.InvertRight, "Invert the right wheel servo")
	flag.DurationVar(&c.Timeout, "servo-timeout", c.Timeout, "Response timeout of the servo bus")
}

type wheelServo interface {
	Enable(ctx context.Context) error
	Disable(ctx context.Context) error
	SetVelocity(ctx context.Context, velocity int) error
	Position(ctx context.Context) (int, error)
}

type positionSample struct {
	position int
	time     time.Time
}

// Wheels implements drive.Transport for two wheel servos on one bus. Wheel velocity telemetry
// is derived from the position change between two reads, so the first read of each wheel
// reports zero.
type Wheels struct {
	bus    interface{ Close() error }
	servos [2]wheelServo
	invert [2]bool
	last   [2]*positionSample
	now    func() time.Time
}

var _ drive.Transport = new(Wheels)

// Open connects to the servo bus on port and switches both wheel servos into velocity mode.
func (c Config) Open(ctx context.Context, port string) (*Wheels, error) {
	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: c.BaudRate,
		Protocol: feetech.ProtocolSTS,
		Timeout:  c.Timeout,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "Failed to open servo bus %v", port)
	}
	var servos [2]wheelServo
	for wheel, id := range [2]int{c.LeftID, c.RightID} {
		servo := feetech.NewServo(bus, id, nil)
		if err := velocityMode(ctx, servo); err != nil {
			bus.Close()
			return nil, errors.Wrapf(err, "Failed to configure %v wheel servo %v", drive.Wheel(wheel), id)
		}
		servos[wheel] = servo
	}
	log.Printf("Opened servo bus %v, left servo %v, right servo %v", port, c.LeftID, c.RightID)
	return newWheels(bus, servos, [2]bool{c.InvertLeft, c.InvertRight}), nil
}

func velocityMode(ctx context.Context, servo *feetech.Servo) error {
	// The operating mode can only be changed while torque is off
	if err := servo.Disable(ctx); err != nil {
		return err
	}
	if err := servo.SetOperatingMode(ctx, feetech.ModeVelocity); err != nil {
		return err
	}
	return servo.Enable(ctx)
}

func newWheels(bus interface{ Close() error }, servos [2]wheelServo, invert [2]bool) *Wheels {
	return &Wheels{
		bus:    bus,
		servos: servos,
		invert: invert,
		now:    time.Now,
	}
}

func (w *Wheels) direction(wheel drive.Wheel) float64 {
	if w.invert[wheel] {
		return -1
	}
	return 1
}

func (w *Wheels) SendVelocity(ctx context.Context, cmd drive.WheelCommand) error {
	if !cmd.Wheel.Valid() {
		return drive.Protocolf("Invalid wheel %v", uint8(cmd.Wheel))
	}
	rad := float64(cmd.Velocity) / 1000 * w.direction(cmd.Wheel)
	steps := int(math.Round(rad / radPerStep))
	return w.servos[cmd.Wheel].SetVelocity(ctx, steps)
}

func (w *Wheels) ReadVelocity(ctx context.Context, wheel drive.Wheel) (drive.WheelTelemetry, error) {
	if !wheel.Valid() {
		return drive.WheelTelemetry{}, drive.Protocolf("Invalid wheel %v", uint8(wheel))
	}
	pos, err := w.servos[wheel].Position(ctx)
	if err != nil {
		return drive.WheelTelemetry{}, err
	}
	sample := &positionSample{position: pos, time: w.now()}
	last := w.last[wheel]
	w.last[wheel] = sample

	result := drive.WheelTelemetry{Wheel: wheel}
	if last != nil && sample.time.Sub(last.time) <= maxSampleAge {
		if dt := sample.time.Sub(last.time).Seconds(); dt > 0 {
			steps := positionDelta(last.position, pos)
			result.Velocity = float64(steps) * radPerStep / dt * w.direction(wheel)
		}
	}
	return result, nil
}

// positionDelta returns the shortest signed step difference between two positions on the
// wrapping position scale.
func positionDelta(from, to int) int {
	delta := (to - from) % stepsPerRevolution
	if delta > stepsPerRevolution/2 {
		delta -= stepsPerRevolution
	} else if delta < -stepsPerRevolution/2 {
		delta += stepsPerRevolution
	}
	return delta
}

// Close turns off the torque of both servos and closes the bus.
func (w *Wheels) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for wheel, servo := range w.servos {
		if err := servo.Disable(ctx); err != nil {
			log.Warnf("Failed to disable %v wheel servo: %v", drive.Wheel(wheel), err)
		}
	}
	return w.bus.Close()
}
