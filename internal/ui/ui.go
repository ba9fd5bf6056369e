package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Dicklesworthstone/sysmon/internal/history"
	"github.com/Dicklesworthstone/sysmon/internal/model"
	"github.com/Dicklesworthstone/sysmon/internal/publish"
)

// InfoSource yields the machine description shown in the header.
type InfoSource interface {
	StaticInfo(ctx context.Context) (model.StaticInfo, error)
}

// Terminator ends the process selected in the table.
type Terminator interface {
	Terminate(ctx context.Context, pid int32) (bool, error)
}

type Options struct {
	Title           string
	Info            InfoSource
	Terminator      Terminator
	HistoryCapacity int
}

type View int

const (
	ViewDashboard View = iota
	ViewProcessor
	ViewStorage
	ViewSystem
)

var viewNames = []string{"Dashboard", "Processor", "Storage", "System"}

func (v View) String() string { return viewNames[v] }

// Messages
type (
	SnapshotMsg   model.Snapshot
	staticInfoMsg struct {
		info model.StaticInfo
		err  error
	}
	terminatedMsg struct {
		pid  int32
		name string
		ok   bool
		err  error
	}
)

const requestTimeout = 5 * time.Second

// Model renders snapshots received from a publisher.
type Model struct {
	opts    Options
	latest  model.Snapshot
	hasData bool
	tracker *history.Tracker
	info    *model.StaticInfo

	view   View
	cursor int
	status string
	width  int
	height int

	help  help.Model
	gauge progress.Model
}

func New(opts Options) *Model {
	if opts.Title == "" {
		opts.Title = "System Monitor"
	}
	return &Model{
		opts:    opts,
		tracker: history.NewTracker(opts.HistoryCapacity),
		width:   120,
		height:  40,
		help:    help.New(),
		gauge: progress.New(
			progress.WithWidth(28),
			progress.WithoutPercentage(),
			progress.WithSolidFill("45"),
		),
	}
}

func (m *Model) Init() tea.Cmd {
	if m.opts.Info == nil {
		return nil
	}
	src := m.opts.Info
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		info, err := src.StaticInfo(ctx)
		return staticInfoMsg{info: info, err: err}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
	case SnapshotMsg:
		m.latest = model.Snapshot(msg)
		m.hasData = true
		m.tracker.Observe(m.latest)
		if n := len(m.latest.TopProcesses); m.cursor >= n {
			m.cursor = max(n-1, 0)
		}
	case staticInfoMsg:
		if msg.err != nil {
			m.status = "static info unavailable: " + msg.err.Error()
			break
		}
		info := msg.info
		m.info = &info
	case terminatedMsg:
		switch {
		case msg.err != nil:
			m.status = fmt.Sprintf("could not end %s (%d): %v", msg.name, msg.pid, msg.err)
		case msg.ok:
			m.status = fmt.Sprintf("ended %s (%d)", msg.name, msg.pid)
		default:
			m.status = fmt.Sprintf("%s (%d) had already exited", msg.name, msg.pid)
		}
	case tea.KeyMsg:
		return m, m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, keys.Quit):
		return tea.Quit
	case key.Matches(msg, keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(msg, keys.NextView):
		m.view = (m.view + 1) % View(len(viewNames))
	case key.Matches(msg, keys.PrevView):
		m.view = (m.view + View(len(viewNames)) - 1) % View(len(viewNames))
	case key.Matches(msg, keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, keys.Down):
		if m.cursor < len(m.latest.TopProcesses)-1 {
			m.cursor++
		}
	case key.Matches(msg, keys.Terminate):
		return m.terminateSelected()
	}
	return nil
}

func (m *Model) terminateSelected() tea.Cmd {
	procs := m.latest.TopProcesses
	if m.opts.Terminator == nil || m.cursor >= len(procs) {
		return nil
	}
	p := procs[m.cursor]
	term := m.opts.Terminator
	m.status = fmt.Sprintf("ending %s (%d)...", p.Name, p.PID)
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		ok, err := term.Terminate(ctx, p.PID)
		return terminatedMsg{pid: p.PID, name: p.Name, ok: ok, err: err}
	}
}

// Styles
var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("45"))
	subtleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	labelStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("81")).Bold(true)
	activeTab     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("45")).Padding(0, 1)
	inactiveTab   = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Padding(0, 1)
	selectedStyle = lipgloss.NewStyle().Reverse(true)
	cardStyle     = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("60")).
			Padding(0, 1).
			MarginRight(1)
)

const chartColor = lipgloss.Color("45")

func (m *Model) View() string {
	header := titleStyle.Render(m.opts.Title)
	if m.hasData {
		header += "  " + subtleStyle.Render(m.latest.Timestamp.Format("Mon Jan 2 15:04:05 MST 2006"))
	}
	if m.info != nil {
		header += "\n" + subtleStyle.Render(m.info.CPUModel+" | "+m.info.OS)
	}

	var body string
	switch {
	case !m.hasData:
		body = subtleStyle.Render("waiting for first sample...")
	case m.view == ViewProcessor:
		body = m.processorView()
	case m.view == ViewStorage:
		body = m.storageView()
	case m.view == ViewSystem:
		body = m.systemView()
	default:
		body = m.dashboardView()
	}

	parts := []string{header, m.tabs(), body}
	if m.status != "" {
		parts = append(parts, subtleStyle.Render(m.status))
	}
	parts = append(parts, m.help.View(keys))
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m *Model) tabs() string {
	out := make([]string, len(viewNames))
	for i, name := range viewNames {
		if View(i) == m.view {
			out[i] = activeTab.Render(name)
		} else {
			out[i] = inactiveTab.Render(name)
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, out...)
}

func (m *Model) dashboardView() string {
	s := m.latest
	line1 := lipgloss.JoinHorizontal(lipgloss.Top,
		card("CPU", m.gaugeLine(s.CPUUsage)),
		card("Memory", m.gaugeLine(s.RAMUsage)),
		card("Storage", m.gaugeLine(s.StorageUsage)),
	)
	chart := card("CPU history", sparkline(m.tracker.CPU().Values(), m.chartWidth(), 0, 100, chartColor))
	return lipgloss.JoinVertical(lipgloss.Left, line1, chart, m.processCard())
}

func (m *Model) processorView() string {
	lines := []string{m.gaugeLine(m.latest.CPUUsage)}
	if m.info != nil {
		lines = append(lines, fmt.Sprintf("%s @ %.2f GHz", m.info.CPUModel, m.info.CPUSpeedGHz))
	}
	lines = append(lines, sparkline(m.tracker.CPU().Values(), m.chartWidth(), 0, 100, chartColor))
	return lipgloss.JoinVertical(lipgloss.Left, card("Processor", strings.Join(lines, "\n")), m.processCard())
}

func (m *Model) storageView() string {
	lines := []string{m.gaugeLine(m.latest.StorageUsage)}
	if m.info != nil && m.info.TotalStorage != nil {
		used := *m.info.TotalStorage * m.latest.StorageUsage
		lines = append(lines, fmt.Sprintf("%.1f / %.1f GB used", used, *m.info.TotalStorage))
	}
	lines = append(lines, sparkline(m.tracker.Storage().Values(), m.chartWidth(), 0, 100, chartColor))
	return card("Storage", strings.Join(lines, "\n"))
}

func (m *Model) systemView() string {
	if m.info == nil {
		return card("System", subtleStyle.Render("no static info"))
	}
	i := m.info
	rows := []string{
		fmt.Sprintf("%-10s %s", "CPU", i.CPUModel),
		fmt.Sprintf("%-10s %.2f GHz", "Speed", i.CPUSpeedGHz),
		fmt.Sprintf("%-10s %s", "OS", i.OS),
		fmt.Sprintf("%-10s %.1f GB", "Memory", i.TotalMemoryGB),
	}
	if i.TotalStorage != nil {
		rows = append(rows, fmt.Sprintf("%-10s %.1f GB", "Storage", *i.TotalStorage))
	}
	if i.HasBattery != nil {
		battery := "no"
		if *i.HasBattery {
			battery = "yes"
		}
		rows = append(rows, fmt.Sprintf("%-10s %s", "Battery", battery))
	}
	return card("System", strings.Join(rows, "\n"))
}

func (m *Model) processCard() string {
	return card("Top CPU", renderTable(m.latest.TopProcesses, m.cursor))
}

func (m *Model) gaugeLine(fraction float64) string {
	return fmt.Sprintf("%s %5.1f%%", m.gauge.ViewAs(model.Clamp01(fraction)), fraction*100)
}

func (m *Model) chartWidth() int {
	return min(max(m.width-8, 10), m.tracker.CPU().Cap())
}

// Helpers
func card(title, body string) string {
	return cardStyle.Render(labelStyle.Render(title) + "\n" + body)
}

func renderTable(rows []model.ProcessSample, cursor int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-7s %6s %6s", "name", "pid", "cpu", "mem")
	for i, r := range rows {
		line := fmt.Sprintf("%-20s %-7d %6.1f %6.1f", truncate(r.Name, 20), r.PID, r.CPU, r.Memory)
		if i == cursor {
			line = selectedStyle.Render(line)
		}
		b.WriteString("\n" + line)
	}
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// Run shows the dashboard for snapshots published on broker until the user
// quits or ctx ends.
func Run(ctx context.Context, broker *publish.Broker, opts Options) error {
	prog := tea.NewProgram(New(opts), tea.WithAltScreen(), tea.WithContext(ctx))
	unsub, err := broker.Subscribe(func(s model.Snapshot) { prog.Send(SnapshotMsg(s)) })
	if err != nil {
		return err
	}
	defer unsub()

	_, err = prog.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
