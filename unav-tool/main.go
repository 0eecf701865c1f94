package main

import (
	"context"
	"flag"
	"fmt"
	"sort"
	"time"

	"github.com/antongulenko/golib"
	"github.com/antongulenko/unav/drive"
	"github.com/antongulenko/unav/kinematics"
	"github.com/antongulenko/unav/robot"
	"github.com/antongulenko/unav/unav"
	log "github.com/sirupsen/logrus"
)

type commandFunc func() error

var (
	r        = robot.DefaultRobot
	command  = "measure"
	commands = map[string]commandFunc{
		"none":    func() error { return nil },
		"ports":   listPorts,
		"setup":   setup,
		"enable":  func() error { return setEnable(true) },
		"disable": func() error { return setEnable(false) },
		"pid":     sendGains,
		"stop":    stop,
		"speed":   runSpeed,
		"measure": measure,
	}
	leftSpeed  = float64(0)
	rightSpeed = float64(0)
	duration   = 2 * time.Second
	interval   = 100 * time.Millisecond

	link *drive.Link
)

func main() {
	r.RegisterFlags()
	flag.StringVar(&command, "c", command, fmt.Sprintf("Command to execute, one of: %v", commandNames()))
	flag.Float64Var(&leftSpeed, "l", leftSpeed, "Angular velocity of the left wheel in rad/s (speed command)")
	flag.Float64Var(&rightSpeed, "r", rightSpeed, "Angular velocity of the right wheel in rad/s (speed command)")
	flag.DurationVar(&duration, "duration", duration, "Time to keep the wheels turning (speed command)")
	flag.DurationVar(&interval, "interval", interval, "Interval between velocity commands and measurements (speed command)")
	golib.RegisterLogFlags()
	flag.Parse()
	golib.ConfigureLogging()
	golib.Checkerr(doMain())
}

func commandNames() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func doMain() error {
	commandFunc, ok := commands[command]
	if !ok {
		return fmt.Errorf("Unknown command %v, available commands: %v", command, commandNames())
	}
	if command != "ports" && command != "none" {
		transport, err := r.Open()
		if err != nil {
			return err
		}
		link = drive.NewLink(transport, r.Drive.Attempts, r.Drive.Timeout)
		defer func() {
			golib.Printerr(link.Close())
		}()
	}
	return commandFunc()
}

func setupContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), r.SetupTimeout)
}

func motorBoard() (*unav.Board, error) {
	board := r.MotorBoard()
	if board == nil {
		return nil, fmt.Errorf("Command %v requires the %v backend", command, robot.BackendBoard)
	}
	return board, nil
}

func listPorts() error {
	ports, err := unav.ListPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		log.Println("No serial ports found")
	}
	for _, port := range ports {
		fmt.Println(port)
	}
	return nil
}

func setup() error {
	board, err := motorBoard()
	if err != nil {
		return err
	}
	ctx, cancel := setupContext()
	defer cancel()
	return r.Board.Apply(ctx, link, board)
}

func setEnable(enable bool) error {
	board, err := motorBoard()
	if err != nil {
		return err
	}
	ctx, cancel := setupContext()
	defer cancel()
	for _, wheel := range drive.Wheels {
		wheel := wheel
		err := link.Do(ctx, fmt.Sprintf("Enable %v wheel (%v)", wheel, enable), func(ctx context.Context) error {
			return board.SetEnable(ctx, wheel, enable)
		})
		if err != nil {
			return err
		}
	}
	log.Printf("Motors enabled: %v", enable)
	return nil
}

func sendGains() error {
	board, err := motorBoard()
	if err != nil {
		return err
	}
	ctx, cancel := setupContext()
	defer cancel()
	gains := r.Board.Gains()
	for _, wheel := range drive.Wheels {
		wheel := wheel
		err := link.Do(ctx, "PID gains of "+wheel.String()+" wheel", func(ctx context.Context) error {
			return board.SetPIDGains(ctx, wheel, gains)
		})
		if err != nil {
			return err
		}
	}
	log.Printf("Sent PID gains %+v", gains)
	return nil
}

func sendSpeeds(left, right float64) error {
	ctx := context.Background()
	for _, cmd := range []drive.WheelCommand{
		{Wheel: drive.Left, Velocity: kinematics.ToFixedPoint(left)},
		{Wheel: drive.Right, Velocity: kinematics.ToFixedPoint(right)},
	} {
		if err := link.SendVelocityCommand(ctx, cmd); err != nil {
			return err
		}
	}
	return nil
}

func stop() error {
	return sendSpeeds(0, 0)
}

func runSpeed() error {
	log.Printf("Turning wheels at %v rad/s (left) and %v rad/s (right) for %v", leftSpeed, rightSpeed, duration)
	deadline := time.Now().Add(duration)
	var result error
	for time.Now().Before(deadline) {
		if result = sendSpeeds(leftSpeed, rightSpeed); result != nil {
			break
		}
		if result = printVelocities(); result != nil && drive.IsFatal(result) {
			break
		}
		time.Sleep(interval)
	}
	if err := stop(); err != nil && result == nil {
		result = err
	}
	return result
}

func printVelocities() error {
	var speeds [len(drive.Wheels)]float64
	for _, wheel := range drive.Wheels {
		telemetry, err := link.RequestVelocityTelemetry(context.Background(), wheel)
		if err != nil {
			log.Warnln(err)
			return err
		}
		speeds[wheel] = telemetry.Velocity
	}
	velocity := r.Geometry.RobotVelocity(speeds[drive.Left], speeds[drive.Right])
	log.Printf("Wheels: %.3f rad/s (left), %.3f rad/s (right), robot: %v", speeds[drive.Left], speeds[drive.Right], velocity)
	return nil
}

func measure() error {
	board := r.MotorBoard()
	if board == nil {
		return printVelocities()
	}
	ctx, cancel := setupContext()
	defer cancel()
	for _, wheel := range drive.Wheels {
		wheel := wheel
		var m unav.Measurement
		err := link.Do(ctx, "Measure "+wheel.String()+" wheel", func(ctx context.Context) (err error) {
			m, err = board.Measure(ctx, wheel)
			return
		})
		if err != nil {
			return err
		}
		fmt.Printf("%v wheel: position %v, velocity %v mrad/s, current %v, effort %v\n",
			wheel, m.Position, m.Velocity, m.Current, m.Effort)
	}
	return nil
}
