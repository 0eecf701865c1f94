package unav

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
	tarm "github.com/tarm/serial"
	bugst "go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// Port is a serial connection to the board. Read returns 0, nil when the read timeout expires.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
}

const (
	DriverBugst = "bugst"
	DriverTarm  = "tarm"
)

var DefaultConnection = Connection{
	Port:   "/dev/ttyUSB0",
	Baud:   115200,
	Driver: DriverBugst,
}

type Connection struct {
	Port   string
	Baud   int
	Driver string
}

func (c *Connection) RegisterFlags() {
	flag.StringVar(&c.Port, "port", c.Port, "Serial port of the motor board")
	flag.IntVar(&c.Baud, "baud", c.Baud, "Baud rate of the serial port")
	flag.StringVar(&c.Driver, "serial-driver", c.Driver, fmt.Sprintf("Serial port driver (%v or %v)", DriverBugst, DriverTarm))
}

func (c Connection) String() string {
	return fmt.Sprintf("%v (%v baud, %v driver)", c.Port, c.Baud, c.Driver)
}

func (c Connection) Open() (Port, error) {
	switch c.Driver {
	case DriverBugst, "":
		port, err := bugst.Open(c.Port, &bugst.Mode{BaudRate: c.Baud})
		if err != nil {
			return nil, errors.Wrapf(err, "Failed to open %v", c.Port)
		}
		return port, nil
	case DriverTarm:
		port, err := tarm.OpenPort(&tarm.Config{
			Name:        c.Port,
			Baud:        c.Baud,
			ReadTimeout: tarmReadTimeout,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "Failed to open %v", c.Port)
		}
		return &tarmPort{ReadWriteCloser: port, flush: port.Flush}, nil
	default:
		return nil, fmt.Errorf("Unknown serial driver: %v", c.Driver)
	}
}

// The tarm driver fixes the read timeout when opening the port. Reads poll in these steps.
const tarmReadTimeout = 100 * time.Millisecond

type tarmPort struct {
	io.ReadWriteCloser
	flush func() error
}

func (p *tarmPort) Read(b []byte) (int, error) {
	n, err := p.ReadWriteCloser.Read(b)
	if n == 0 && err == io.EOF {
		// Read timeout
		err = nil
	}
	return n, err
}

func (p *tarmPort) SetReadTimeout(time.Duration) error {
	return nil
}

func (p *tarmPort) ResetInputBuffer() error {
	return p.flush()
}

type PortInfo struct {
	Name        string
	Description string
}

func (p PortInfo) String() string {
	if p.Description == "" {
		return p.Name
	}
	return p.Name + " (" + p.Description + ")"
}

// ListPorts returns the serial ports present on this system.
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, errors.Wrap(err, "Failed to enumerate serial ports")
	}
	result := make([]PortInfo, 0, len(details))
	for _, port := range details {
		info := PortInfo{Name: port.Name}
		if port.IsUSB {
			info.Description = fmt.Sprintf("USB %v:%v", port.VID, port.PID)
			if port.Product != "" {
				info.Description += " " + port.Product
			}
			if port.SerialNumber != "" {
				info.Description += ", serial " + port.SerialNumber
			}
		}
		result = append(result, info)
	}
	return result, nil
}
