package drive

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

type State int

const (
	Stopped State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

type Stats struct {
	Ticks    uint64
	Degraded uint64 // Ticks that ended with a non-fatal exchange failure
	Skipped  uint64 // Periods skipped because a tick overran
}

// periodicTask runs tick once per period. A tick that overruns its period causes all missed
// periods to be skipped, the following tick runs at the next period boundary. A fatal tick error
// moves the task to Stopped and is reported to onFatal from the task's goroutine.
type periodicTask struct {
	name    string
	period  time.Duration
	tick    func(ctx context.Context) error
	onFatal func(err error)

	mutex  sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}

	ticks    atomic.Uint64
	degraded atomic.Uint64
	skipped  atomic.Uint64
}

func (p *periodicTask) Start() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.state == Running {
		return fmt.Errorf("%v is already running", p.name)
	}
	if p.period <= 0 {
		return fmt.Errorf("%v: invalid period %v", p.name, p.period)
	}
	if p.cancel != nil {
		p.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	p.state = Running
	go p.loop(ctx, p.done)
	log.Debugf("Started %v with period %v", p.name, p.period)
	return nil
}

// Stop can be called from any goroutine except the task's own. When it returns, the task
// issues no further ticks.
func (p *periodicTask) Stop() {
	p.mutex.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.state = Stopped
	p.mutex.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

func (p *periodicTask) State() State {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.state
}

func (p *periodicTask) Stats() Stats {
	return Stats{
		Ticks:    p.ticks.Load(),
		Degraded: p.degraded.Load(),
		Skipped:  p.skipped.Load(),
	}
}

func (p *periodicTask) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	next := time.Now().Add(p.period)
	timer := time.NewTimer(p.period)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		err := p.tick(ctx)
		if ctx.Err() != nil {
			return
		}
		p.ticks.Add(1)
		if err != nil {
			if IsFatal(err) {
				log.Errorf("Stopping %v: %v", p.name, err)
				p.mutex.Lock()
				p.state = Stopped
				p.mutex.Unlock()
				if p.onFatal != nil {
					p.onFatal(err)
				}
				return
			}
			p.degraded.Add(1)
			log.Debugf("%v tick degraded: %v", p.name, err)
		}

		next = next.Add(p.period)
		now := time.Now()
		if late := now.Sub(next); late >= 0 {
			missed := late/p.period + 1
			p.skipped.Add(uint64(missed))
			next = next.Add(missed * p.period)
			log.Debugf("%v overran by %v, skipping %v tick(s)", p.name, late, missed)
		}
		timer.Reset(next.Sub(now))
	}
}
