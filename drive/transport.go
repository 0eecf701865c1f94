package drive

import (
	"context"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/pkg/errors"
)

type Wheel uint8

const (
	Left  Wheel = 0
	Right Wheel = 1
)

var Wheels = [...]Wheel{Left, Right}

func (w Wheel) String() string {
	switch w {
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return fmt.Sprintf("wheel %d", uint8(w))
	}
}

func (w Wheel) Valid() bool {
	return w == Left || w == Right
}

// WheelCommand carries an angular velocity setpoint in milli-rad/s.
type WheelCommand struct {
	Wheel    Wheel
	Velocity int16
}

// WheelTelemetry is a measured wheel angular velocity in rad/s.
type WheelTelemetry struct {
	Wheel    Wheel
	Velocity float64
}

// Transport performs single request/response exchanges with the motor board. The context of each
// call carries the deadline of one attempt. Retries and mutual exclusion are handled by Link.
// Errors should be created through IOError, ProtocolError or TimeoutError where the
// implementation knows better than Classify.
type Transport interface {
	SendVelocity(ctx context.Context, cmd WheelCommand) error
	ReadVelocity(ctx context.Context, wheel Wheel) (WheelTelemetry, error)
	Close() error
}

// Kind classifies exchange failures.
type Kind int

const (
	// Cable or port failure, fatal to the connection
	KindIO Kind = iota + 1
	// Unexpected or malformed response, retried
	KindProtocol
	// No response in time, retried
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "I/O error"
	case KindProtocol:
		return "protocol error"
	case KindTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("error kind %d", int(k))
	}
}

type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string {
	return e.err.Error()
}

func (e *kindError) Unwrap() error {
	return e.err
}

func IOError(err error) error {
	return &kindError{KindIO, err}
}

func ProtocolError(err error) error {
	return &kindError{KindProtocol, err}
}

func TimeoutError(err error) error {
	return &kindError{KindTimeout, err}
}

func Protocolf(format string, args ...interface{}) error {
	return ProtocolError(errors.Errorf(format, args...))
}

// ExchangeError is returned by Link when an exchange failed permanently, either because the
// retry budget is exhausted or because of a fatal I/O error.
type ExchangeError struct {
	Op       string
	Kind     Kind
	Attempts int
	Err      error
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("%v failed after %v attempt(s) (%v): %v", e.Op, e.Attempts, e.Kind, e.Err)
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}

func (e *ExchangeError) Fatal() bool {
	return e.Kind == KindIO
}

// Classify maps an arbitrary transport error onto the error taxonomy.
func Classify(err error) Kind {
	var kindErr *kindError
	if errors.As(err, &kindErr) {
		return kindErr.kind
	}
	var exchangeErr *ExchangeError
	if errors.As(err, &exchangeErr) {
		return exchangeErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return KindTimeout
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) || errors.Is(err, os.ErrClosed) {
		return KindIO
	}
	var pathErr *os.PathError
	var errno syscall.Errno
	if errors.As(err, &pathErr) || errors.As(err, &errno) {
		return KindIO
	}
	return KindProtocol
}

// IsFatal reports whether err must tear down the connection.
func IsFatal(err error) bool {
	return err != nil && Classify(err) == KindIO
}
