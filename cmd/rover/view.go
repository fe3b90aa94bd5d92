package main

import (
	"context"
	"fmt"
	"math"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/gwillem/rover/pkg/drive"
	"github.com/gwillem/rover/pkg/pilot"
	"github.com/gwillem/rover/pkg/telemetry"
)

const (
	headerHeight = 2 // title + blank line
	statusHeight = 2 // command row + blank
	footerHeight = 7 // log box height
	maxLogs      = 5 // number of log messages to show
	borderSize   = 2 // chart border
	tableWidth   = 44

	// chartMaxCM is where "no obstacle" readings are drawn.
	chartMaxCM = 200.0
)

const (
	distanceSeries  = "distance"
	thresholdSeries = "threshold"
)

// Command colors
var commandColors = map[drive.Command]string{
	drive.Forward:   "46",  // green
	drive.Backward:  "208", // orange
	drive.TurnLeft:  "226", // yellow
	drive.TurnRight: "51",  // cyan
	drive.Stop:      "196", // red
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	hitStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	headStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
)

// operatorModel shows what the rover senses and decides each cycle.
type operatorModel struct {
	ctrl     *pilot.Controller
	cancel   context.CancelFunc
	chart    *streamlinechart.Model
	width    int // terminal width
	height   int // terminal height
	logs     []string
	last     pilot.Snapshot
	hasLast  bool
	quitting bool
	stopped  bool
	err      error
}

func (m *operatorModel) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// Messages from the controller
type snapshotMsg pilot.Snapshot
type logMsg string
type stoppedMsg struct{ err error }

func waitForSnapshot(ctrl *pilot.Controller) tea.Cmd {
	return func() tea.Msg {
		return snapshotMsg(<-ctrl.Snapshots())
	}
}

func waitForLog(ctrl *pilot.Controller) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-ctrl.Logs())
	}
}

// chartSize calculates the size of the chart based on terminal dimensions
func (m *operatorModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 60, 16 // default size before we know terminal size
	}
	width = m.width - tableWidth - borderSize - 2
	if width < 30 {
		width = 30
	}
	height = m.height - headerHeight - statusHeight - footerHeight - borderSize
	if height < 8 {
		height = 8
	}
	return width, height
}

func (m *operatorModel) resizeChart() {
	w, h := m.chartSize()
	m.chart.Resize(w, h)
}

func newOperatorModel(ctrl *pilot.Controller, cancel context.CancelFunc) operatorModel {
	chart := streamlinechart.New(60, 16,
		streamlinechart.WithYRange(0, chartMaxCM),
	)
	chart.SetDataSetStyles(distanceSeries, runes.ThinLineStyle,
		lipgloss.NewStyle().Foreground(lipgloss.Color("51")))
	chart.SetDataSetStyles(thresholdSeries, runes.ThinLineStyle,
		lipgloss.NewStyle().Foreground(lipgloss.Color("196")))

	return operatorModel{
		ctrl:   ctrl,
		cancel: cancel,
		chart:  &chart,
	}
}

func (m operatorModel) Init() tea.Cmd {
	return tea.Batch(
		waitForSnapshot(m.ctrl),
		waitForLog(m.ctrl),
	)
}

func (m operatorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeChart()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.quitting {
				// Second press: leave the view, shutdown still completes in Run.
				return m, tea.Quit
			}
			m.quitting = true
			m.cancel()
			return m, nil
		}

	case snapshotMsg:
		s := pilot.Snapshot(msg)
		m.last = s
		m.hasLast = true
		m.chart.PushDataSet(distanceSeries, chartDistance(s.Distance))
		m.chart.PushDataSet(thresholdSeries, m.ctrl.Policy().NearObstacleCM)
		m.chart.DrawAll()
		return m, waitForSnapshot(m.ctrl)

	case logMsg:
		m.addLog(string(msg))
		return m, waitForLog(m.ctrl)

	case stoppedMsg:
		m.stopped = true
		m.err = msg.err
		return m, tea.Quit
	}

	return m, nil
}

// chartDistance clamps a reading into the chart range.
func chartDistance(r telemetry.Reading) float64 {
	return math.Min(r.Effective().Centimeters(), chartMaxCM)
}

func (m operatorModel) View() string {
	if m.stopped {
		if m.err != nil {
			return fmt.Sprintf("Rover stopped: %v\n", m.err)
		}
		return "Rover stopped.\n"
	}

	var sb strings.Builder

	// Header
	sb.WriteString(titleStyle.Render("Rover"))
	sb.WriteString(statusStyle.Render(fmt.Sprintf("  run %s", m.ctrl.RunID()[:8])))
	if m.width > 0 {
		sb.WriteString(statusStyle.Render(fmt.Sprintf("  [%dx%d]", m.width, m.height)))
	}
	sb.WriteString("\n\n")

	// Chart and detections side by side
	chart := chartStyle.Render(m.chart.View())
	sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, chart, " ", m.renderDetections()))
	sb.WriteString("\n")

	// Status row
	sb.WriteString(m.renderStatus())
	sb.WriteString("\n")

	if m.quitting {
		sb.WriteString(hitStyle.Render("Stopping rover..."))
		sb.WriteString("\n")
	}

	// Log box
	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(max(m.width-4, 20))

	var logLines string
	if len(m.logs) == 0 {
		logLines = statusStyle.Render("Press 'q' to stop the rover")
	} else {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")

	return sb.String()
}

func (m operatorModel) renderStatus() string {
	if !m.hasLast {
		return dimStyle.Render("waiting for first cycle...")
	}
	var cmds []string
	for _, c := range m.last.Decision.Commands() {
		style := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(commandColors[c]))
		cmds = append(cmds, style.Render(c.String()))
	}
	return fmt.Sprintf("cycle %d  distance %s  rule %s  → %s",
		m.last.Cycle, m.last.Distance, m.last.Decision.Rule, strings.Join(cmds, " + "))
}

func (m operatorModel) renderDetections() string {
	threshold := m.ctrl.Policy().ConfidenceThreshold

	rows := make([][]string, 0, len(m.last.Detections))
	hits := make([]bool, 0, len(m.last.Detections))
	for _, d := range m.last.Detections {
		rows = append(rows, []string{
			d.ClassName,
			fmt.Sprintf("%.2f", d.Confidence),
			fmt.Sprintf("%d,%d %dx%d", d.Box.X1, d.Box.Y1, d.Box.Width(), d.Box.Height()),
		})
		hits = append(hits, d.Confidence >= threshold)
	}
	if len(rows) == 0 {
		rows = append(rows, []string{"-", "-", "-"})
		hits = append(hits, false)
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Object", "Conf", "Box").
		Rows(rows...).
		Width(tableWidth).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headStyle
			}
			if row >= 0 && row < len(hits) && hits[row] {
				return hitStyle
			}
			return cellStyle
		})
	return t.Render()
}
