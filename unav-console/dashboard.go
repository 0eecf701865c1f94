package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"
	"github.com/antongulenko/unav/axis"
	"github.com/antongulenko/unav/drive"
	"github.com/antongulenko/unav/kinematics"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	headerHeight = 6 // title, target, estimate, stats, keys, blank line
	footerHeight = 7 // log box height
	maxLogs      = 5
	borderSize   = 2

	forwardSeries    = "forward"
	rotationalSeries = "rotational"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))

	seriesColors = map[string]string{
		forwardSeries:    "46", // green
		rotationalSeries: "51", // cyan
	}
)

// driver is the part of the controller the dashboard operates on.
type driver interface {
	SetTargetFromAxes(x, y float64)
	SetCeilings(maxForward, maxRotational float64)
	Ceilings() (maxForward, maxRotational float64)
	Target() kinematics.Velocity
	CurrentEstimate() kinematics.Velocity
	Stats() drive.ControllerStats
	Done() <-chan struct{}
	Err() error
}

type dashboard struct {
	ctrl    driver
	title   string
	refresh time.Duration
	jogStep float64
	logs    <-chan string

	// Called asynchronously for the 'p' and 'x' keys, nil when not supported
	reconfigure func(enable bool) error

	chart         *streamlinechart.Model
	width, height int
	jogX, jogY    float64
	lines         []string
	err           error
	quitting      bool
}

type tickMsg time.Time
type logMsg string

func newDashboard(ctrl driver, title string, logs <-chan string) dashboard {
	chart := streamlinechart.New(80, 20, streamlinechart.WithYRange(-100, 100))
	for name, color := range seriesColors {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(color))
		chart.SetDataSetStyles(name, runes.ThinLineStyle, style)
	}
	return dashboard{
		ctrl:    ctrl,
		title:   title,
		refresh: 100 * time.Millisecond,
		jogStep: 0.25,
		logs:    logs,
		chart:   &chart,
	}
}

func (m dashboard) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m dashboard) waitForLog() tea.Cmd {
	if m.logs == nil {
		return nil
	}
	return func() tea.Msg {
		return logMsg(<-m.logs)
	}
}

func (m dashboard) Init() tea.Cmd {
	return tea.Batch(m.tick(), m.waitForLog())
}

func (m *dashboard) addLog(msg string) {
	m.lines = append(m.lines, msg)
	if len(m.lines) > maxLogs {
		m.lines = m.lines[len(m.lines)-maxLogs:]
	}
}

func (m *dashboard) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 20
	}
	width = m.width - borderSize - 2
	if width < 40 {
		width = 40
	}
	height = m.height - headerHeight - footerHeight - borderSize - 2
	if height < 10 {
		height = 10
	}
	return width, height
}

func (m *dashboard) jog(dx, dy float64) {
	m.jogX = clampUnit(m.jogX + dx)
	m.jogY = clampUnit(m.jogY + dy)
	m.ctrl.SetTargetFromAxes(m.jogX, m.jogY)
}

func (m *dashboard) scaleCeilings(factor float64) {
	fw, rot := m.ctrl.Ceilings()
	m.ctrl.SetCeilings(fw*factor, rot*factor)
	fw, rot = m.ctrl.Ceilings()
	m.addLog(fmt.Sprintf("Speed ceilings: %.2f m/s, %.0f deg/s", fw, rot))
}

func (m dashboard) runReconfigure(enable bool, done string) tea.Cmd {
	if m.reconfigure == nil {
		return func() tea.Msg {
			return logMsg("The wheel backend has no configurable parameters")
		}
	}
	reconfigure := m.reconfigure
	return func() tea.Msg {
		if err := reconfigure(enable); err != nil {
			return logMsg("Failed: " + err.Error())
		}
		return logMsg(done)
	}
}

func (m dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.chart.Resize(m.chartSize())
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "up", "w":
			m.jog(0, m.jogStep)
		case "down", "s":
			m.jog(0, -m.jogStep)
		case "left", "a":
			m.jog(-m.jogStep, 0)
		case "right", "d":
			m.jog(m.jogStep, 0)
		case " ":
			m.jogX, m.jogY = 0, 0
			m.ctrl.SetTargetFromAxes(0, 0)
		case "+":
			m.scaleCeilings(1.1)
		case "-":
			m.scaleCeilings(1 / 1.1)
		case "p":
			return m, m.runReconfigure(true, "Motor parameters sent")
		case "x":
			return m, m.runReconfigure(false, "Motors disabled")
		}
		return m, nil

	case tickMsg:
		select {
		case <-m.ctrl.Done():
			m.err = m.ctrl.Err()
			m.quitting = true
			return m, tea.Quit
		default:
		}
		fw, rot := m.ctrl.Ceilings()
		fwPercent, rotPercent := axis.Mapper{MaxForward: fw, MaxRotational: rot}.Percentages(m.ctrl.CurrentEstimate())
		m.chart.PushDataSet(forwardSeries, fwPercent)
		m.chart.PushDataSet(rotationalSeries, rotPercent)
		m.chart.DrawAll()
		return m, m.tick()

	case logMsg:
		m.addLog(string(msg))
		return m, m.waitForLog()
	}
	return m, nil
}

func (m dashboard) View() string {
	if m.quitting {
		if m.err != nil {
			return errorStyle.Render("Disconnected: "+m.err.Error()) + "\n"
		}
		return "Stopped.\n"
	}

	fw, rot := m.ctrl.Ceilings()
	mapper := axis.Mapper{MaxForward: fw, MaxRotational: rot}
	target, estimate := m.ctrl.Target(), m.ctrl.CurrentEstimate()
	fwPercent, rotPercent := mapper.Percentages(estimate)
	stats := m.ctrl.Stats()

	var sb strings.Builder
	sb.WriteString(titleStyle.Render(m.title))
	sb.WriteString(statusStyle.Render(fmt.Sprintf("  ceilings %.2f m/s, %.0f deg/s", fw, rot)))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Target:   %v\n", target))
	sb.WriteString(fmt.Sprintf("Estimate: %v (%+4.0f%% forward, %+4.0f%% rotational)\n", estimate, fwPercent, rotPercent))
	sb.WriteString(statusStyle.Render(fmt.Sprintf("Commands: %v ticks, %v degraded, %v skipped | Telemetry: %v ticks, %v degraded, %v skipped",
		stats.Command.Ticks, stats.Command.Degraded, stats.Command.Skipped,
		stats.Telemetry.Ticks, stats.Telemetry.Degraded, stats.Telemetry.Skipped)))
	sb.WriteString("\n")
	sb.WriteString(statusStyle.Render("arrows/wasd: jog  space: stop  +/-: ceilings  p: send parameters  x: disable motors  q: quit"))
	sb.WriteString("\n\n")

	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")
	sb.WriteString(renderLegend())
	sb.WriteString("\n")

	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240"))
	if m.width > 4 {
		logStyle = logStyle.Width(m.width - 4)
	}
	logLines := statusStyle.Render("No messages")
	if len(m.lines) > 0 {
		logLines = strings.Join(m.lines, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")
	return sb.String()
}

func renderLegend() string {
	var items []string
	for _, name := range []string{forwardSeries, rotationalSeries} {
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(seriesColors[name])).Bold(true)
		items = append(items, colorStyle.Render("━━")+" "+name+" (% of ceiling)")
	}
	return strings.Join(items, "  ")
}

func clampUnit(v float64) float64 {
	if v > 1 {
		return 1
	} else if v < -1 {
		return -1
	}
	return v
}
