package main

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/antongulenko/unav/drive"
	"github.com/antongulenko/unav/kinematics"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
)

type fakeDriver struct {
	axes          [][2]float64
	maxForward    float64
	maxRotational float64
	estimate      kinematics.Velocity
	done          chan struct{}
	err           error
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{maxForward: 1, maxRotational: 90, done: make(chan struct{})}
}

func (f *fakeDriver) SetTargetFromAxes(x, y float64) {
	f.axes = append(f.axes, [2]float64{x, y})
}

func (f *fakeDriver) SetCeilings(maxForward, maxRotational float64) {
	f.maxForward, f.maxRotational = maxForward, maxRotational
}

func (f *fakeDriver) Ceilings() (float64, float64) {
	return f.maxForward, f.maxRotational
}

func (f *fakeDriver) Target() kinematics.Velocity          { return kinematics.Velocity{} }
func (f *fakeDriver) CurrentEstimate() kinematics.Velocity { return f.estimate }
func (f *fakeDriver) Stats() drive.ControllerStats         { return drive.ControllerStats{} }
func (f *fakeDriver) Done() <-chan struct{}                { return f.done }
func (f *fakeDriver) Err() error                           { return f.err }

func runeKey(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(m dashboard, msg tea.Msg) (dashboard, tea.Cmd) {
	model, cmd := m.Update(msg)
	return model.(dashboard), cmd
}

func TestDashboardJog(t *testing.T) {
	a := assert.New(t)
	ctrl := newFakeDriver()
	m := newDashboard(ctrl, "test", nil)

	m, _ = update(m, runeKey("w"))
	m, _ = update(m, tea.KeyMsg{Type: tea.KeyUp})
	m, _ = update(m, runeKey("d"))
	for i := 0; i < 10; i++ {
		m, _ = update(m, tea.KeyMsg{Type: tea.KeyLeft})
	}
	a.Equal([2]float64{0, 0.25}, ctrl.axes[0])
	a.Equal([2]float64{0, 0.5}, ctrl.axes[1])
	a.Equal([2]float64{0.25, 0.5}, ctrl.axes[2])
	a.Equal([2]float64{-1, 0.5}, ctrl.axes[len(ctrl.axes)-1])

	m, _ = update(m, tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
	a.Equal([2]float64{0, 0}, ctrl.axes[len(ctrl.axes)-1])
	a.Equal(0.0, m.jogX)
	a.Equal(0.0, m.jogY)
}

func TestDashboardCeilings(t *testing.T) {
	a := assert.New(t)
	ctrl := newFakeDriver()
	m := newDashboard(ctrl, "test", nil)

	m, _ = update(m, runeKey("+"))
	a.InDelta(1.1, ctrl.maxForward, 1e-9)
	a.InDelta(99, ctrl.maxRotational, 1e-9)
	m, _ = update(m, runeKey("-"))
	a.InDelta(1, ctrl.maxForward, 1e-9)
	a.InDelta(90, ctrl.maxRotational, 1e-9)
	a.Len(m.lines, 2)
}

func TestDashboardReconfigure(t *testing.T) {
	a := assert.New(t)
	m := newDashboard(newFakeDriver(), "test", nil)

	_, cmd := update(m, runeKey("p"))
	a.Equal(logMsg("The wheel backend has no configurable parameters"), cmd())

	var calls []bool
	m.reconfigure = func(enable bool) error {
		calls = append(calls, enable)
		if !enable {
			return errors.New("no response")
		}
		return nil
	}
	_, cmd = update(m, runeKey("p"))
	a.Equal(logMsg("Motor parameters sent"), cmd())
	_, cmd = update(m, runeKey("x"))
	a.Equal(logMsg("Failed: no response"), cmd())
	a.Equal([]bool{true, false}, calls)
}

func TestDashboardQuitsWhenDisconnected(t *testing.T) {
	a := assert.New(t)
	ctrl := newFakeDriver()
	m := newDashboard(ctrl, "test", nil)

	m, cmd := update(m, tickMsg(time.Now()))
	a.False(m.quitting)
	a.NotNil(cmd)

	ctrl.err = errors.New("device disconnected")
	close(ctrl.done)
	m, cmd = update(m, tickMsg(time.Now()))
	a.True(m.quitting)
	a.Equal(ctrl.err, m.err)
	a.Equal(tea.QuitMsg{}, cmd())
	a.Contains(m.View(), "device disconnected")
}

func TestDashboardLogs(t *testing.T) {
	a := assert.New(t)
	logs := make(chan string, 10)
	m := newDashboard(newFakeDriver(), "test", logs)

	w := &logWriter{lines: logs}
	fmt.Fprint(w, "first line\nsecond ")
	fmt.Fprint(w, "line\n\n")
	a.Len(logs, 2)

	var cmd tea.Cmd = m.waitForLog()
	for i := 0; i < 2; i++ {
		m, cmd = update(m, cmd())
	}
	a.Equal([]string{"first line", "second line"}, m.lines)

	for i := 0; i < maxLogs+3; i++ {
		m, _ = update(m, logMsg(fmt.Sprintf("msg %v", i)))
	}
	a.Len(m.lines, maxLogs)
	a.Equal(fmt.Sprintf("msg %v", maxLogs+2), m.lines[maxLogs-1])
	a.Contains(m.View(), "msg 3")
}

func TestLogWriterDropsWhenFull(t *testing.T) {
	a := assert.New(t)
	logs := make(chan string, 1)
	w := &logWriter{lines: logs}
	n, err := w.Write([]byte("a\nb\nc\n"))
	a.NoError(err)
	a.Equal(6, n)
	a.Equal("a", <-logs)
	a.Len(logs, 0)
}
