package drive

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var ErrLinkClosed = IOError(errors.New("Transport link is closed"))

// Link owns a Transport and serializes all exchanges over it. Every exchange is retried up to
// Attempts times with Timeout per attempt. I/O errors are not retried.
type Link struct {
	Attempts int
	Timeout  time.Duration

	transport Transport
	mutex     sync.Mutex
	closed    bool
}

func NewLink(transport Transport, attempts int, timeout time.Duration) *Link {
	if attempts < 1 {
		attempts = 1
	}
	return &Link{
		Attempts:  attempts,
		Timeout:   timeout,
		transport: transport,
	}
}

func (l *Link) Transport() Transport {
	return l.transport
}

// Do runs exchange under the link's retry budget. The link is held for all attempts, so no other
// exchange runs between the retries of this one. A cancelled ctx ends the exchange with ctx.Err().
func (l *Link) Do(ctx context.Context, op string, exchange func(ctx context.Context) error) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	var err error
	for attempt := 1; attempt <= l.Attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = l.attempt(ctx, exchange)
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		kind := Classify(err)
		if kind == KindIO {
			return &ExchangeError{Op: op, Kind: kind, Attempts: attempt, Err: err}
		}
		log.Debugf("%v: attempt %v of %v failed (%v): %v", op, attempt, l.Attempts, kind, err)
	}
	return &ExchangeError{Op: op, Kind: Classify(err), Attempts: l.Attempts, Err: err}
}

// attempt must be called with the mutex held.
func (l *Link) attempt(ctx context.Context, exchange func(ctx context.Context) error) error {
	if l.closed {
		return ErrLinkClosed
	}
	if l.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.Timeout)
		defer cancel()
	}
	return exchange(ctx)
}

func (l *Link) SendVelocityCommand(ctx context.Context, cmd WheelCommand) error {
	op := fmt.Sprintf("Velocity command %v to %v wheel", cmd.Velocity, cmd.Wheel)
	return l.Do(ctx, op, func(ctx context.Context) error {
		return l.transport.SendVelocity(ctx, cmd)
	})
}

// RequestVelocityTelemetry reads the velocity of one wheel. A response tagged with another
// wheel counts as a failed attempt.
func (l *Link) RequestVelocityTelemetry(ctx context.Context, wheel Wheel) (WheelTelemetry, error) {
	var result WheelTelemetry
	op := fmt.Sprintf("Velocity telemetry of %v wheel", wheel)
	err := l.Do(ctx, op, func(ctx context.Context) error {
		telemetry, err := l.transport.ReadVelocity(ctx, wheel)
		if err != nil {
			return err
		}
		if telemetry.Wheel != wheel {
			return Protocolf("Received telemetry of %v wheel, expected %v", telemetry.Wheel, wheel)
		}
		result = telemetry
		return nil
	})
	return result, err
}

// Close releases the transport. Exchanges issued afterwards fail with ErrLinkClosed.
func (l *Link) Close() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.transport.Close()
}
