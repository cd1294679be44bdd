// Package tui is the live monitor's Bubble Tea model: it polls DataGet for
// committed containers and renders rolling per-stream rates plus host
// resource usage in lipgloss-styled panels.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"daviscore/internal/event"
	"daviscore/pkg/davis"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("69"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	valueStyle = lipgloss.NewStyle().Bold(true)
	frameStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// counts holds the rolling per-stream event totals observed in a window.
type counts struct {
	Polarity int
	Special  int
	Frame    int
	IMU6     int
}

type containerMsg *event.Container

type tickMsg time.Time

type hostStatsMsg struct {
	cpuPercent float64
	memPercent float64
}

// Model is the Bubble Tea model driving the monitor screen.
type Model struct {
	dev    *davis.Device
	ctx    context.Context
	cancel context.CancelFunc

	windowTotal counts
	grandTotal  counts
	host        hostStatsMsg
	lastCopyMsg string
	quitting    bool

	polarityGauge progress.Model
}

// polarityRateCeiling is the per-second polarity count treated as "full"
// on the throughput gauge; DAVIS sensors rarely sustain above this.
const polarityRateCeiling = 2_000_000.0

// New builds a Model bound to an already-opened, already-streaming Device.
func New(dev *davis.Device) Model {
	ctx, cancel := context.WithCancel(context.Background())
	return Model{
		dev:           dev,
		ctx:           ctx,
		cancel:        cancel,
		polarityGauge: progress.New(progress.WithDefaultGradient()),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.waitForContainer(), tick(), pollHostStats())
}

func (m Model) waitForContainer() tea.Cmd {
	return func() tea.Msg {
		c, err := m.dev.DataGet(m.ctx)
		if err == davis.ErrNoData {
			time.Sleep(10 * time.Millisecond)
			return containerMsg(nil)
		}
		if err != nil {
			return nil
		}
		return containerMsg(c)
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func pollHostStats() tea.Cmd {
	return func() tea.Msg {
		var stats hostStatsMsg
		if pcts, err := cpu.Percent(0, false); err == nil && len(pcts) > 0 {
			stats.cpuPercent = pcts[0]
		}
		if vm, err := mem.VirtualMemory(); err == nil {
			stats.memPercent = vm.UsedPercent
		}
		return stats
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.cancel()
			m.quitting = true
			return m, tea.Quit
		case "c":
			summary := m.summaryText()
			clipboard.WriteAll(summary)
			m.lastCopyMsg = "copied summary to clipboard"
			return m, nil
		}
	case containerMsg:
		if msg != nil {
			m.accumulate(msg)
		}
		return m, m.waitForContainer()
	case tickMsg:
		m.windowTotal = counts{}
		return m, tick()
	case hostStatsMsg:
		m.host = msg
		return m, pollHostStats()
	}
	return m, nil
}

func (m *Model) accumulate(c *event.Container) {
	if c.Polarity != nil {
		m.windowTotal.Polarity += c.Polarity.Position
		m.grandTotal.Polarity += c.Polarity.Position
	}
	if c.Special != nil {
		m.windowTotal.Special += c.Special.Position
		m.grandTotal.Special += c.Special.Position
	}
	if c.Frame != nil {
		m.windowTotal.Frame += c.Frame.Position
		m.grandTotal.Frame += c.Frame.Position
	}
	if c.IMU6 != nil {
		m.windowTotal.IMU6 += c.IMU6.Position
		m.grandTotal.IMU6 += c.IMU6.Position
	}
}

func (m Model) summaryText() string {
	return fmt.Sprintf("polarity=%d special=%d frame=%d imu6=%d",
		m.grandTotal.Polarity, m.grandTotal.Special, m.grandTotal.Frame, m.grandTotal.IMU6)
}

func (m Model) View() string {
	if m.quitting {
		return "stopped monitoring.\n"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("davis live monitor") + "\n\n")

	rate := fmt.Sprintf(
		"%s %s   %s %s   %s %s   %s %s",
		labelStyle.Render("polarity/s"), valueStyle.Render(fmt.Sprint(m.windowTotal.Polarity)),
		labelStyle.Render("special/s"), valueStyle.Render(fmt.Sprint(m.windowTotal.Special)),
		labelStyle.Render("frame/s"), valueStyle.Render(fmt.Sprint(m.windowTotal.Frame)),
		labelStyle.Render("imu6/s"), valueStyle.Render(fmt.Sprint(m.windowTotal.IMU6)),
	)
	total := fmt.Sprintf(
		"%s %s   %s %s   %s %s   %s %s",
		labelStyle.Render("polarity total"), valueStyle.Render(fmt.Sprint(m.grandTotal.Polarity)),
		labelStyle.Render("special total"), valueStyle.Render(fmt.Sprint(m.grandTotal.Special)),
		labelStyle.Render("frame total"), valueStyle.Render(fmt.Sprint(m.grandTotal.Frame)),
		labelStyle.Render("imu6 total"), valueStyle.Render(fmt.Sprint(m.grandTotal.IMU6)),
	)
	host := fmt.Sprintf(
		"%s %s   %s %s",
		labelStyle.Render("host cpu"), valueStyle.Render(fmt.Sprintf("%.1f%%", m.host.cpuPercent)),
		labelStyle.Render("host mem"), valueStyle.Render(fmt.Sprintf("%.1f%%", m.host.memPercent)),
	)

	ratio := float64(m.windowTotal.Polarity) / polarityRateCeiling
	if ratio > 1 {
		ratio = 1
	}
	gauge := labelStyle.Render("polarity throughput ") + m.polarityGauge.ViewAs(ratio)

	body := strings.Join([]string{rate, total, host, gauge}, "\n")
	b.WriteString(frameStyle.Render(body) + "\n\n")

	if m.lastCopyMsg != "" {
		b.WriteString(helpStyle.Render(m.lastCopyMsg) + "\n")
	}
	b.WriteString(helpStyle.Render("q: quit   c: copy summary to clipboard"))
	return b.String()
}
