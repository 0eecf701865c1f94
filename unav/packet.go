package unav

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/antongulenko/unav/drive"
)

// Frame layout: header, payload length, payload, crc7 over length and payload.
const (
	frameHeader   = '#'
	frameOverhead = 3
	maxPayload    = 255
)

// Message options
const (
	optionData    = 'D' // Carries a value, must be acknowledged
	optionRequest = 'R' // Asks the board for a value
	optionAck     = 'K'
	optionNack    = 'N'
)

// Message types
const (
	typeMotor  = 'M'
	typeMotion = 'm'
)

type command uint8

const (
	cmdParameter command = iota
	cmdVelocityPID
	cmdState
	cmdVelocityRef
	cmdMeasure
)

var commandNames = map[command]string{
	cmdParameter:   "motor parameters",
	cmdVelocityPID: "velocity PID gains",
	cmdState:       "motor state",
	cmdVelocityRef: "velocity reference",
	cmdMeasure:     "measure",
}

func (c command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("command %v", uint8(c))
}

// Motor control states
const (
	stateDisable  int8 = 0
	stateVelocity int8 = 2
)

var byteOrder = binary.LittleEndian

type message struct {
	option  byte
	kind    byte
	command command
	wheel   drive.Wheel
	data    []byte
}

func (m message) String() string {
	return fmt.Sprintf("%c%c %v (%v wheel, %v data bytes)", m.option, m.kind, m.command, m.wheel, len(m.data))
}

func commandByte(cmd command, wheel drive.Wheel) byte {
	return byte(cmd)<<4 | byte(wheel)&0x0f
}

func (m message) payload() []byte {
	return append([]byte{m.option, m.kind, commandByte(m.command, m.wheel)}, m.data...)
}

func parseMessage(payload []byte) (message, error) {
	if len(payload) < 3 {
		return message{}, drive.Protocolf("Message too short (%v bytes)", len(payload))
	}
	return message{
		option:  payload[0],
		kind:    payload[1],
		command: command(payload[2] >> 4),
		wheel:   drive.Wheel(payload[2] & 0x0f),
		data:    payload[3:],
	}, nil
}

func encodeFrame(payload []byte) ([]byte, error) {
	if len(payload) > maxPayload {
		return nil, fmt.Errorf("Payload of %v bytes exceeds the maximum of %v", len(payload), maxPayload)
	}
	frame := make([]byte, 0, len(payload)+frameOverhead)
	frame = append(frame, frameHeader, byte(len(payload)))
	frame = append(frame, payload...)
	return append(frame, crc7(0, frame[1:])), nil
}

// frameDecoder collects bytes received from the board and splits them into frame payloads.
// Noise before a frame header is dropped.
type frameDecoder struct {
	buf []byte
}

func (d *frameDecoder) write(data []byte) {
	d.buf = append(d.buf, data...)
}

// next returns the payload of the next complete frame, or nil if more data is needed.
func (d *frameDecoder) next() ([]byte, error) {
	start := bytes.IndexByte(d.buf, frameHeader)
	if start < 0 {
		d.buf = d.buf[:0]
		return nil, nil
	}
	d.buf = d.buf[start:]
	if len(d.buf) < 2 {
		return nil, nil
	}
	size := int(d.buf[1]) + frameOverhead
	if len(d.buf) < size {
		return nil, nil
	}
	frame := d.buf[:size]
	d.buf = d.buf[size:]
	if sum, expected := frame[size-1], crc7(0, frame[1:size-1]); sum != expected {
		return nil, drive.Protocolf("Frame checksum mismatch: received %#x, expected %#x", sum, expected)
	}
	return append([]byte(nil), frame[2:size-1]...), nil
}

// MotorParams configures the motor bridge and encoder of one wheel.
type MotorParams struct {
	CPR             uint16  // Encoder counts per revolution
	Ratio           float32 // Gear ratio
	Rotation        int8    // 1 or -1, inverts the wheel direction
	EnableMode      uint8   // Logic level that enables the motor bridge
	EncoderPosition uint8   // 0: encoder before the gear, 1: after
	BridgeVoltage   int16   // Millivolts
}

// PIDGains of the velocity control loop on the board.
type PIDGains struct {
	Kp, Ki, Kd float32
}

// Measurement is the motion state of one wheel as reported by the board.
type Measurement struct {
	Position int16 // Milliradians
	Velocity int16 // Milliradians per second
	Current  int16 // Milliamperes
	Effort   int16
}

const measurementSize = 8

func parseMeasurement(data []byte) (m Measurement, err error) {
	if len(data) != measurementSize {
		return m, drive.Protocolf("Measurement has %v bytes instead of %v", len(data), measurementSize)
	}
	err = binary.Read(bytes.NewReader(data), byteOrder, &m)
	return
}

// encode serializes fixed-size values only, so writing into the buffer cannot fail.
func encode(v interface{}) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, byteOrder, v)
	return buf.Bytes()
}
