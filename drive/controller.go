package drive

import (
	"context"
	"flag"
	"fmt"
	"sync"
	"time"

	"github.com/antongulenko/unav/axis"
	"github.com/antongulenko/unav/kinematics"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var DefaultConfig = Config{
	CommandPeriod:   30 * time.Millisecond,
	TelemetryPeriod: 30 * time.Millisecond,
	Timeout:         200 * time.Millisecond,
	Attempts:        3,
	AxisRange:       1,
}

type Config struct {
	CommandPeriod   time.Duration
	TelemetryPeriod time.Duration
	Timeout         time.Duration // Per exchange attempt
	Attempts        int
	AxisRange       float64 // Input device axes report values in -AxisRange..AxisRange
	Ramp            Ramp

	// Called from the telemetry goroutine after every committed estimate
	OnEstimate func(kinematics.Velocity)
}

func (c *Config) RegisterFlags() {
	flag.DurationVar(&c.CommandPeriod, "cmd-period", c.CommandPeriod, "Period for sending wheel velocity commands")
	flag.DurationVar(&c.TelemetryPeriod, "status-period", c.TelemetryPeriod, "Period for polling wheel velocity telemetry")
	flag.DurationVar(&c.Timeout, "exchange-timeout", c.Timeout, "Response timeout of a single exchange attempt")
	flag.IntVar(&c.Attempts, "attempts", c.Attempts, "Number of attempts per exchange")
	c.Ramp.RegisterFlags()
}

// Controller drives a differential robot over one connection. It is started once after connecting
// and stopped once before disconnecting. Stop releases the transport.
type Controller struct {
	config Config
	link   *Link

	mapperLock sync.RWMutex
	mapper     axis.Mapper

	target   velocityCell
	estimate velocityCell

	command     commandScheduler
	telemetry   telemetryScheduler
	commandTask periodicTask
	statusTask  periodicTask

	lifecycle sync.Mutex
	running   bool
	released  bool
	done      chan struct{}

	errLock sync.Mutex
	err     error
}

func NewController(transport Transport, config Config) *Controller {
	c := &Controller{
		config: config,
		link:   NewLink(transport, config.Attempts, config.Timeout),
		done:   make(chan struct{}),
	}
	c.mapper.MaxAxis = config.AxisRange
	c.command = commandScheduler{
		link:   c.link,
		target: &c.target,
		ramp:   config.Ramp,
		period: config.CommandPeriod,
	}
	c.telemetry = telemetryScheduler{
		link:     c.link,
		estimate: &c.estimate,
		observer: config.OnEstimate,
	}
	c.commandTask = periodicTask{
		name:    "command scheduler",
		period:  config.CommandPeriod,
		tick:    c.command.tick,
		onFatal: c.fail,
	}
	c.statusTask = periodicTask{
		name:    "telemetry scheduler",
		period:  config.TelemetryPeriod,
		tick:    c.telemetry.tick,
		onFatal: c.fail,
	}
	return c
}

// Link gives access to the serialized exchange channel, e.g. for sending motor parameters while running.
func (c *Controller) Link() *Link {
	return c.link
}

// Start resets target and estimate and starts both schedulers.
func (c *Controller) Start(geometry kinematics.Geometry, maxForward, maxRotational float64) error {
	if err := geometry.Validate(); err != nil {
		return err
	}
	ceilings := axis.Mapper{MaxAxis: c.config.AxisRange, MaxForward: maxForward, MaxRotational: maxRotational}
	if err := ceilings.Validate(); err != nil {
		return err
	}
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	if c.running {
		return errors.New("Controller is already running")
	}
	if c.released {
		return errors.New("Controller transport has already been released")
	}

	c.SetCeilings(maxForward, maxRotational)
	c.target.Store(kinematics.Velocity{})
	c.estimate.Store(kinematics.Velocity{})
	c.command.geometry = geometry
	c.command.reset()
	c.telemetry.geometry = geometry

	if err := c.commandTask.Start(); err != nil {
		return err
	}
	if err := c.statusTask.Start(); err != nil {
		c.commandTask.Stop()
		return err
	}
	c.running = true
	log.Printf("Started driving (wheel radius %v m, wheel base %v m, ceilings %v m/s, %v deg/s)",
		geometry.WheelRadius, geometry.WheelBase, maxForward, maxRotational)
	return nil
}

// Stop halts both schedulers, commands zero velocity to both wheels and releases the transport.
// Calling Stop on a stopped controller does nothing.
func (c *Controller) Stop() error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	if !c.running {
		return nil
	}
	return c.teardown(nil)
}

func (c *Controller) fail(err error) {
	// Runs on a scheduler goroutine, which must not wait for itself
	go func() {
		c.lifecycle.Lock()
		defer c.lifecycle.Unlock()
		if !c.running {
			return
		}
		log.Errorf("Fatal transport error, disconnecting: %v", err)
		if stopErr := c.teardown(err); stopErr != nil {
			log.Warnf("Error while disconnecting: %v", stopErr)
		}
	}()
}

func (c *Controller) teardown(cause error) error {
	c.running = false
	c.commandTask.Stop()
	c.statusTask.Stop()

	var errs []error
	for _, wheel := range Wheels {
		err := c.link.SendVelocityCommand(context.Background(), WheelCommand{Wheel: wheel})
		if err != nil {
			errs = append(errs, errors.Wrapf(err, "Failed to stop %v wheel", wheel))
		}
	}
	if err := c.link.Close(); err != nil {
		errs = append(errs, errors.Wrap(err, "Failed to close transport"))
	}
	c.released = true
	c.target.Store(kinematics.Velocity{})
	c.estimate.Store(kinematics.Velocity{})
	c.errLock.Lock()
	c.err = cause
	c.errLock.Unlock()
	close(c.done)
	log.Println("Stopped driving")

	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return fmt.Errorf("Multiple errors while stopping: %v", errs)
	}
}

// Done is closed when the controller has stopped, either through Stop or a fatal transport error.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Err returns the fatal error that stopped the controller, if any.
func (c *Controller) Err() error {
	c.errLock.Lock()
	defer c.errLock.Unlock()
	return c.err
}

// State is Running while both schedulers run.
func (c *Controller) State() State {
	if c.commandTask.State() == Running && c.statusTask.State() == Running {
		return Running
	}
	return Stopped
}

// SetTargetFromAxes is called for every input device sample. Only the latest target is ever sent.
func (c *Controller) SetTargetFromAxes(x, y float64) {
	c.mapperLock.RLock()
	m := c.mapper
	c.mapperLock.RUnlock()
	c.target.Store(m.Map(x, y))
}

// SetCeilings changes the forward (m/s) and rotational (deg/s) speed ceilings for following axis samples.
func (c *Controller) SetCeilings(maxForward, maxRotational float64) {
	c.mapperLock.Lock()
	defer c.mapperLock.Unlock()
	c.mapper.MaxForward = maxForward
	c.mapper.MaxRotational = maxRotational
}

func (c *Controller) Ceilings() (maxForward, maxRotational float64) {
	c.mapperLock.RLock()
	defer c.mapperLock.RUnlock()
	return c.mapper.MaxForward, c.mapper.MaxRotational
}

func (c *Controller) Target() kinematics.Velocity {
	return c.target.Load()
}

// CurrentEstimate returns the last committed robot velocity estimate without blocking on the transport.
func (c *Controller) CurrentEstimate() kinematics.Velocity {
	return c.estimate.Load()
}

type ControllerStats struct {
	Command   Stats
	Telemetry Stats
}

func (c *Controller) Stats() ControllerStats {
	return ControllerStats{
		Command:   c.commandTask.Stats(),
		Telemetry: c.statusTask.Stats(),
	}
}
