package unav

import (
	"context"
	"flag"
	"time"

	"github.com/antongulenko/unav/drive"
	"github.com/antongulenko/unav/kinematics"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Board speaks the packet protocol of the uNav motor board over a serial port. Every call is
// one request/response exchange bounded by the context deadline. A Board is not safe for
// concurrent use: wrap it in a drive.Link, which serializes exchanges and retries them.
type Board struct {
	port Port

	// Upper bound for a single blocking read, so that cancellation is noticed
	PollInterval time.Duration
}

var _ drive.Transport = new(Board)

func NewBoard(port Port) *Board {
	return &Board{
		port:         port,
		PollInterval: 20 * time.Millisecond,
	}
}

func (b *Board) Close() error {
	return b.port.Close()
}

func (b *Board) SendVelocity(ctx context.Context, cmd drive.WheelCommand) error {
	return b.send(ctx, typeMotor, cmdVelocityRef, cmd.Wheel, encode(cmd.Velocity))
}

func (b *Board) ReadVelocity(ctx context.Context, wheel drive.Wheel) (drive.WheelTelemetry, error) {
	respWheel, m, err := b.measure(ctx, wheel)
	if err != nil {
		return drive.WheelTelemetry{}, err
	}
	return drive.WheelTelemetry{
		Wheel:    respWheel,
		Velocity: kinematics.FromFixedPoint(m.Velocity),
	}, nil
}

// Measure reads the full motion state of one wheel.
func (b *Board) Measure(ctx context.Context, wheel drive.Wheel) (Measurement, error) {
	respWheel, m, err := b.measure(ctx, wheel)
	if err == nil && respWheel != wheel {
		err = drive.Protocolf("Requested measurement of %v wheel, received %v wheel", wheel, respWheel)
	}
	return m, err
}

func (b *Board) SendMotorParams(ctx context.Context, wheel drive.Wheel, params MotorParams) error {
	return b.send(ctx, typeMotor, cmdParameter, wheel, encode(params))
}

// SetEnable switches a wheel between velocity control and a disabled bridge.
func (b *Board) SetEnable(ctx context.Context, wheel drive.Wheel, enable bool) error {
	state := stateDisable
	if enable {
		state = stateVelocity
	}
	return b.send(ctx, typeMotor, cmdState, wheel, encode(state))
}

func (b *Board) SetPIDGains(ctx context.Context, wheel drive.Wheel, gains PIDGains) error {
	return b.send(ctx, typeMotor, cmdVelocityPID, wheel, encode(gains))
}

func (b *Board) measure(ctx context.Context, wheel drive.Wheel) (drive.Wheel, Measurement, error) {
	req := message{option: optionRequest, kind: typeMotion, command: cmdMeasure, wheel: wheel}
	resp, err := b.exchange(ctx, req)
	if err != nil {
		return 0, Measurement{}, err
	}
	if resp.option != optionData || resp.kind != typeMotion || resp.command != cmdMeasure {
		return 0, Measurement{}, drive.Protocolf("Unexpected response to %v: %v", req, resp)
	}
	if !resp.wheel.Valid() {
		return 0, Measurement{}, drive.Protocolf("Measurement for unknown wheel %v", uint8(resp.wheel))
	}
	m, err := parseMeasurement(resp.data)
	return resp.wheel, m, err
}

// send transmits a data message and waits for the board to acknowledge it.
func (b *Board) send(ctx context.Context, kind byte, cmd command, wheel drive.Wheel, data []byte) error {
	req := message{option: optionData, kind: kind, command: cmd, wheel: wheel, data: data}
	resp, err := b.exchange(ctx, req)
	if err != nil {
		return err
	}
	if resp.kind != kind || resp.command != cmd || resp.wheel != wheel {
		return drive.Protocolf("Unexpected response to %v: %v", req, resp)
	}
	switch resp.option {
	case optionAck:
		return nil
	case optionNack:
		return drive.Protocolf("Board rejected %v", req)
	default:
		return drive.Protocolf("Unexpected response to %v: %v", req, resp)
	}
}

func (b *Board) exchange(ctx context.Context, req message) (message, error) {
	frame, err := encodeFrame(req.payload())
	if err != nil {
		return message{}, drive.ProtocolError(err)
	}
	// Drop late responses to earlier, timed out attempts
	if err := b.port.ResetInputBuffer(); err != nil {
		return message{}, drive.IOError(errors.Wrap(err, "Failed to reset serial input"))
	}
	if _, err := b.port.Write(frame); err != nil {
		return message{}, drive.IOError(errors.Wrap(err, "Serial write failed"))
	}
	resp, err := b.receive(ctx)
	if err == nil {
		log.Debugf("Board exchange: %v -> %v", req, resp)
	}
	return resp, err
}

func (b *Board) receive(ctx context.Context) (message, error) {
	var decoder frameDecoder
	chunk := make([]byte, 64)
	for {
		payload, err := decoder.next()
		if err != nil {
			return message{}, err
		}
		if payload != nil {
			return parseMessage(payload)
		}
		if err := ctx.Err(); err != nil {
			return message{}, err
		}

		timeout := b.PollInterval
		if deadline, ok := ctx.Deadline(); ok {
			if remaining := time.Until(deadline); remaining < timeout {
				timeout = remaining
			}
		}
		if timeout <= 0 {
			return message{}, drive.TimeoutError(context.DeadlineExceeded)
		}
		if err := b.port.SetReadTimeout(timeout); err != nil {
			return message{}, drive.IOError(errors.Wrap(err, "Failed to set serial read timeout"))
		}
		n, err := b.port.Read(chunk)
		if err != nil {
			return message{}, drive.IOError(errors.Wrap(err, "Serial read failed"))
		}
		decoder.write(chunk[:n])
	}
}

var DefaultSetup = Setup{
	CPR:           300,
	Ratio:         30,
	EnableMode:    1,
	BridgeVoltage: 12000,
	InvertRight:   true,
	Kp:            0.05,
	Ki:            0.2,
	Kd:            0.45,
}

// Setup is the board configuration pushed after connecting, before driving starts.
type Setup struct {
	CPR             uint
	Ratio           float64
	EnableMode      uint
	EncoderPosition uint
	BridgeVoltage   int // mV
	InvertLeft      bool
	InvertRight     bool

	Kp, Ki, Kd float64
}

func (s *Setup) RegisterFlags() {
	flag.UintVar(&s.CPR, "cpr", s.CPR, "Encoder counts per revolution")
	flag.Float64Var(&s.Ratio, "ratio", s.Ratio, "Motor gear ratio")
	flag.UintVar(&s.EnableMode, "enable-mode", s.EnableMode, "Logic level enabling the motor bridge (0 or 1)")
	flag.UintVar(&s.EncoderPosition, "enc-pos", s.EncoderPosition, "Encoder position (0: before gear, 1: after gear)")
	flag.IntVar(&s.BridgeVoltage, "bridge-volt", s.BridgeVoltage, "Motor bridge supply voltage in mV")
	flag.BoolVar(&s.InvertLeft, "invert-left", s.InvertLeft, "Invert the rotation of the left wheel")
	flag.BoolVar(&s.InvertRight, "invert-right", s.InvertRight, "Invert the rotation of the right wheel")
	flag.Float64Var(&s.Kp, "kp", s.Kp, "Proportional gain of the velocity controller")
	flag.Float64Var(&s.Ki, "ki", s.Ki, "Integral gain of the velocity controller")
	flag.Float64Var(&s.Kd, "kd", s.Kd, "Derivative gain of the velocity controller")
}

// WheelParams returns the motor parameters of one wheel, with its rotation direction applied.
func (s Setup) WheelParams(wheel drive.Wheel) MotorParams {
	params := MotorParams{
		CPR:             uint16(s.CPR),
		Ratio:           float32(s.Ratio),
		Rotation:        1,
		EnableMode:      uint8(s.EnableMode),
		EncoderPosition: uint8(s.EncoderPosition),
		BridgeVoltage:   int16(s.BridgeVoltage),
	}
	if (wheel == drive.Left && s.InvertLeft) || (wheel == drive.Right && s.InvertRight) {
		params.Rotation = -1
	}
	return params
}

func (s Setup) Gains() PIDGains {
	return PIDGains{Kp: float32(s.Kp), Ki: float32(s.Ki), Kd: float32(s.Kd)}
}

// Apply pushes motor parameters, enables velocity control and sends the PID gains, for both
// wheels. Every step is a separate exchange on the link. The first failure aborts.
func (s Setup) Apply(ctx context.Context, link *drive.Link, board *Board) error {
	for _, wheel := range drive.Wheels {
		wheel := wheel
		steps := []struct {
			op       string
			exchange func(ctx context.Context) error
		}{
			{"Motor parameters", func(ctx context.Context) error {
				return board.SendMotorParams(ctx, wheel, s.WheelParams(wheel))
			}},
			{"Enable velocity control", func(ctx context.Context) error {
				return board.SetEnable(ctx, wheel, true)
			}},
			{"PID gains", func(ctx context.Context) error {
				return board.SetPIDGains(ctx, wheel, s.Gains())
			}},
		}
		for _, step := range steps {
			if err := link.Do(ctx, step.op+" of "+wheel.String()+" wheel", step.exchange); err != nil {
				return err
			}
		}
	}
	log.Printf("Configured motor board: %v CPR, ratio %v, bridge %v mV, PID gains %+v",
		s.CPR, s.Ratio, s.BridgeVoltage, s.Gains())
	return nil
}
