package drive

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/mock"
)

type call struct {
	op       string // "send", "read" or "close"
	wheel    Wheel
	velocity int16
}

func (c call) String() string {
	return fmt.Sprintf("%v(%v, %v)", c.op, c.wheel, c.velocity)
}

// recordingTransport records every exchange in order. Failures can be injected per wheel.
type recordingTransport struct {
	mutex  sync.Mutex
	calls  []call
	speeds [2]float64

	sendErr [2]error
	readErr [2]error
	delay   time.Duration
	closed  bool

	inFlight    int32
	maxInFlight int32
}

func (r *recordingTransport) enter() func() {
	n := atomic.AddInt32(&r.inFlight, 1)
	for {
		max := atomic.LoadInt32(&r.maxInFlight)
		if n <= max || atomic.CompareAndSwapInt32(&r.maxInFlight, max, n) {
			break
		}
	}
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	return func() {
		atomic.AddInt32(&r.inFlight, -1)
	}
}

func (r *recordingTransport) SendVelocity(ctx context.Context, cmd WheelCommand) error {
	defer r.enter()()
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.calls = append(r.calls, call{op: "send", wheel: cmd.Wheel, velocity: cmd.Velocity})
	if r.closed {
		return IOError(fmt.Errorf("send on closed transport"))
	}
	return r.sendErr[cmd.Wheel]
}

func (r *recordingTransport) ReadVelocity(ctx context.Context, wheel Wheel) (WheelTelemetry, error) {
	defer r.enter()()
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.calls = append(r.calls, call{op: "read", wheel: wheel})
	if r.closed {
		return WheelTelemetry{}, IOError(fmt.Errorf("read on closed transport"))
	}
	if err := r.readErr[wheel]; err != nil {
		return WheelTelemetry{}, err
	}
	return WheelTelemetry{Wheel: wheel, Velocity: r.speeds[wheel]}, nil
}

func (r *recordingTransport) Close() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.calls = append(r.calls, call{op: "close"})
	r.closed = true
	return nil
}

func (r *recordingTransport) setSendErr(wheel Wheel, err error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.sendErr[wheel] = err
}

func (r *recordingTransport) setReadErr(wheel Wheel, err error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.readErr[wheel] = err
}

func (r *recordingTransport) setSpeeds(left, right float64) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.speeds = [2]float64{left, right}
}

func (r *recordingTransport) recorded() []call {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]call(nil), r.calls...)
}

func (r *recordingTransport) count(op string) int {
	n := 0
	for _, c := range r.recorded() {
		if c.op == op {
			n++
		}
	}
	return n
}

// mockTransport is driven by testify expectations.
type mockTransport struct {
	mock.Mock
}

func (m *mockTransport) SendVelocity(ctx context.Context, cmd WheelCommand) error {
	return m.Called(cmd).Error(0)
}

func (m *mockTransport) ReadVelocity(ctx context.Context, wheel Wheel) (WheelTelemetry, error) {
	args := m.Called(wheel)
	return args.Get(0).(WheelTelemetry), args.Error(1)
}

func (m *mockTransport) Close() error {
	return m.Called().Error(0)
}
