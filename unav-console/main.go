package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/antongulenko/golib"
	"github.com/antongulenko/unav/drive"
	"github.com/antongulenko/unav/robot"
	tea "github.com/charmbracelet/bubbletea"
	log "github.com/sirupsen/logrus"
	"github.com/splace/joysticks"
)

func main() {
	c := console{
		robot:         robot.DefaultRobot,
		joystickIndex: 1,
		joystickRetry: 2 * time.Second,
		Axis: JoystickAxis{
			AxisNumber:      1,
			ZeroFrom:        -0.1,
			ZeroTo:          0.1,
			ScaleZeroFromTo: true,
			InvertY:         true,
		},
		statsInterval: time.Second,
	}
	c.registerFlags()
	golib.RegisterFlags(golib.FlagsAll)
	flag.Parse()
	golib.ConfigureLogging()

	ctrl, err := c.robot.Connect()
	golib.Checkerr(err)
	c.ctrl = ctrl

	// "Clean" shutdown with Ctrl-C signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	var cleanupOnce sync.Once
	cleanup := func() {
		cleanupOnce.Do(c.robot.Cleanup)
	}
	defer cleanup()
	go func() {
		fmt.Println("Received signal", <-sig)
		cleanup()
		os.Exit(0)
	}()

	if c.joystickIndex >= 0 {
		go c.waitAndInitJoystick()
	}
	if c.robot.Mqtt.Enabled() {
		go c.publishStats()
	}
	if c.headless {
		c.runHeadless()
	} else {
		c.runDashboard()
	}
}

type console struct {
	robot         robot.Robot
	joystickIndex int
	joystickRetry time.Duration
	Axis          JoystickAxis
	headless      bool
	statsInterval time.Duration

	ctrl *drive.Controller
}

func (c *console) registerFlags() {
	c.robot.RegisterFlags()
	c.Axis.RegisterFlags("axis", "driving")
	flag.IntVar(&c.joystickIndex, "js", c.joystickIndex, "Joystick device index (negative to disable)")
	flag.DurationVar(&c.joystickRetry, "js-retry", c.joystickRetry, "Time to retry joystick initialization")
	flag.BoolVar(&c.headless, "headless", c.headless, "Do not show the terminal dashboard, only log")
	flag.DurationVar(&c.statsInterval, "stats-interval", c.statsInterval, "Interval for publishing scheduler statistics over MQTT")
}

func (c *console) waitAndInitJoystick() {
	// Wait until the joystick can be initialized successfully
	var js *joysticks.HID
	for {
		select {
		case <-c.ctrl.Done():
			return
		default:
		}
		var err error
		if js, err = c.setupJoystick(); err != nil {
			log.Errorf("Failed to setup joystick: %v. Retrying in %v...", err, c.joystickRetry)
			time.Sleep(c.joystickRetry)
		} else {
			log.Printf("Opened joystick device index %v (%v buttons, %v axes)", c.joystickIndex, len(js.Buttons), len(js.HatAxes))
			break
		}
	}
	js.ParcelOutEvents() // Does not return
}

func (c *console) setupJoystick() (*joysticks.HID, error) {
	js := joysticks.Connect(c.joystickIndex)
	if js == nil {
		return nil, fmt.Errorf("Failed to open joystick with index %v", c.joystickIndex)
	}
	err := c.Axis.Notify(js, func(x, y float64) {
		c.ctrl.SetTargetFromAxes(x, y)
	})
	return js, err
}

func (c *console) publishStats() {
	ticker := time.NewTicker(c.statsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctrl.Done():
			return
		case <-ticker.C:
			c.robot.PublishStats()
		}
	}
}

// reconfigure sends the motor parameters and enables the wheels, or disables them.
func (c *console) reconfigure(enable bool) error {
	board := c.robot.MotorBoard()
	link := c.ctrl.Link()
	ctx, cancel := context.WithTimeout(context.Background(), c.robot.SetupTimeout)
	defer cancel()
	if enable {
		return c.robot.Board.Apply(ctx, link, board)
	}
	for _, wheel := range drive.Wheels {
		wheel := wheel
		err := link.Do(ctx, "Disable "+wheel.String()+" wheel", func(ctx context.Context) error {
			return board.SetEnable(ctx, wheel, false)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *console) runHeadless() {
	log.Println("Driving without dashboard, press Ctrl-C to stop")
	<-c.ctrl.Done()
	golib.Checkerr(c.ctrl.Err())
}

func (c *console) runDashboard() {
	logs := make(chan string, 100)
	log.SetOutput(&logWriter{lines: logs})
	defer log.SetOutput(os.Stderr)

	title := fmt.Sprintf("uNav console - %v backend", c.robot.Backend)
	if c.robot.Backend != robot.BackendDummy {
		title += " on " + c.robot.Connection.Port
	}
	model := newDashboard(c.ctrl, title, logs)
	if c.robot.MotorBoard() != nil {
		model.reconfigure = c.reconfigure
	}
	final, err := tea.NewProgram(model, tea.WithAltScreen()).Run()
	if err != nil {
		log.SetOutput(os.Stderr)
		log.Errorf("Error running dashboard: %v", err)
		return
	}
	if d, ok := final.(dashboard); ok && d.err != nil {
		log.SetOutput(os.Stderr)
		log.Errorf("Disconnected: %v", d.err)
	}
}
