// Package robot assembles the transport, controller and telemetry publishing of a
// differential drive robot from command line flags.
package robot

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/antongulenko/golib"
	"github.com/antongulenko/unav/axis"
	"github.com/antongulenko/unav/drive"
	"github.com/antongulenko/unav/kinematics"
	"github.com/antongulenko/unav/mqttsink"
	"github.com/antongulenko/unav/servobus"
	"github.com/antongulenko/unav/unav"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	BackendBoard = "board" // uNav motor board on a serial port
	BackendServo = "servo" // Feetech wheel servos on a serial bus
	BackendDummy = "dummy" // Simulated wheels, no hardware
)

var DefaultRobot = Robot{
	Backend:      BackendBoard,
	Connection:   unav.DefaultConnection,
	Board:        unav.DefaultSetup,
	Servos:       servobus.DefaultConfig,
	Geometry:     kinematics.DefaultGeometry,
	Mapper:       axis.DefaultMapper,
	Drive:        drive.DefaultConfig,
	Mqtt:         mqttsink.DefaultConfig,
	SetupTimeout: 5 * time.Second,
}

type Robot struct {
	Backend      string
	Connection   unav.Connection
	Board        unav.Setup
	Servos       servobus.Config
	Geometry     kinematics.Geometry
	Mapper       axis.Mapper
	Drive        drive.Config
	Mqtt         mqttsink.Config
	SkipSetup    bool
	SetupTimeout time.Duration

	board      *unav.Board
	controller *drive.Controller
	sink       *mqttsink.Sink
}

func (r *Robot) RegisterFlags() {
	flag.StringVar(&r.Backend, "backend", r.Backend, fmt.Sprintf("Wheel backend, one of %v, %v, %v", BackendBoard, BackendServo, BackendDummy))
	flag.BoolVar(&r.SkipSetup, "skip-setup", r.SkipSetup, "Do not send motor parameters and PID gains to the board after connecting")
	flag.DurationVar(&r.SetupTimeout, "setup-timeout", r.SetupTimeout, "Timeout for configuring the wheels after connecting")
	r.Connection.RegisterFlags()
	r.Board.RegisterFlags()
	r.Servos.RegisterFlags()
	r.Geometry.RegisterFlags()
	r.Mapper.RegisterFlags()
	r.Drive.RegisterFlags()
	r.Mqtt.RegisterFlags()
}

// Open connects to the wheels of the configured backend. The board backend is not
// configured yet, see Configure.
func (r *Robot) Open() (drive.Transport, error) {
	switch r.Backend {
	case BackendBoard:
		port, err := r.Connection.Open()
		if err != nil {
			return nil, err
		}
		r.board = unav.NewBoard(port)
		log.Printf("Opened motor board on %v", r.Connection)
		return r.board, nil
	case BackendServo:
		ctx, cancel := context.WithTimeout(context.Background(), r.SetupTimeout)
		defer cancel()
		return r.Servos.Open(ctx, r.Connection.Port)
	case BackendDummy:
		log.Println("Dummy robot: simulating wheels without hardware")
		return new(dummyWheels), nil
	default:
		return nil, fmt.Errorf("Unknown backend: %v", r.Backend)
	}
}

// MotorBoard returns the opened board, or nil for other backends.
func (r *Robot) MotorBoard() *unav.Board {
	return r.board
}

// Configure pushes the board setup over link. Other backends need no setup.
func (r *Robot) Configure(link *drive.Link) error {
	if r.board == nil || r.SkipSetup {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.SetupTimeout)
	defer cancel()
	return r.Board.Apply(ctx, link, r.board)
}

// Connect opens the wheels, configures them and starts driving.
func (r *Robot) Connect() (*drive.Controller, error) {
	if err := r.Geometry.Validate(); err != nil {
		return nil, err
	}
	transport, err := r.Open()
	if err != nil {
		return nil, err
	}
	config := r.Drive
	config.AxisRange = r.Mapper.MaxAxis
	if r.Mqtt.Enabled() {
		sink, err := r.Mqtt.Connect()
		if err != nil {
			golib.Printerr(transport.Close())
			return nil, err
		}
		r.sink = sink
		config.OnEstimate = sink.Observe
	}

	ctrl := drive.NewController(transport, config)
	if err := r.Configure(ctrl.Link()); err != nil {
		r.closeSink()
		golib.Printerr(ctrl.Link().Close())
		return nil, errors.Wrap(err, "Failed to configure wheels")
	}
	if err := ctrl.Start(r.Geometry, r.Mapper.MaxForward, r.Mapper.MaxRotational); err != nil {
		r.closeSink()
		golib.Printerr(ctrl.Link().Close())
		return nil, err
	}
	r.controller = ctrl
	return ctrl, nil
}

// PublishStats sends the controller statistics to the MQTT broker, if one is configured.
func (r *Robot) PublishStats() {
	if r.sink != nil && r.controller != nil {
		r.sink.PublishStats(r.controller.Stats())
	}
}

// Cleanup stops the robot and releases all connections. It is safe to call more than once.
func (r *Robot) Cleanup() {
	if r.controller != nil {
		golib.Printerr(r.controller.Stop())
	}
	r.closeSink()
}

func (r *Robot) closeSink() {
	if r.sink != nil {
		r.sink.Close()
		r.sink = nil
	}
}
