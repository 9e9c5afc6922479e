// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/scanstat/pkg/rangefinder"
	"github.com/Thermoquad/scanstat/pkg/rplidar"
)

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for notices
}

// TUI model
type model struct {
	connInfo    string
	deviceInfo  string
	resolution  float64
	sectorCount int
	setRange    func(min, max float64) error

	stats         rplidar.Statistics
	ranges        []float64
	status        rangefinder.DeviceStatus
	state         rangefinder.State
	eventLog      []eventLogEntry
	maxLogEntries int
	synchronized  bool
	lastDesyncs   uint64
	lastClipped   uint64
	started       time.Time

	minDist, maxDist float64
	sectors          table.Model
	rangeInput       textinput.Model
	editingRange     bool

	width    int
	height   int
	quitting bool
}

// Messages
type tickMsg time.Time

// formatUptime formats a duration to a human-friendly string
func formatUptime(d time.Duration) string {
	seconds := int64(d / time.Second)
	if seconds <= 0 {
		return "0 seconds"
	}

	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	plural := func(n int64, unit string) string {
		if n == 1 {
			return "1 " + unit
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}

	parts := []string{}
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	if seconds > 0 {
		parts = append(parts, plural(seconds, "second"))
	}

	// Join with commas and "and" for last item
	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

func initialModel(connInfo, deviceInfo string, resolution float64, sectorCount int, setRange func(min, max float64) error) model {
	// Initialize text input for the clip range
	ti := textinput.New()
	ti.Placeholder = "0.1 2.5"
	ti.CharLimit = 24
	ti.Width = 24
	ti.Prompt = "min max (m): "

	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Sector", Width: 13},
			{Title: "Coverage", Width: 9},
			{Title: "Nearest", Width: 10},
			{Title: "Mean", Width: 10},
		}),
		table.WithHeight(sectorCount),
		table.WithFocused(false),
	)

	return model{
		connInfo:      connInfo,
		deviceInfo:    deviceInfo,
		resolution:    resolution,
		sectorCount:   sectorCount,
		setRange:      setRange,
		eventLog:      make([]eventLogEntry, 0),
		maxLogEntries: 100,
		started:       time.Now(),
		sectors:       t,
		rangeInput:    ti,
		width:         80,
		height:        24,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		tea.EnterAltScreen,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.editingRange {
			return m.updateRangeInput(msg)
		}
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			m.editingRange = true
			m.rangeInput.SetValue(fmt.Sprintf("%g %g", m.minDist, m.maxDist))
			return m, m.rangeInput.Focus()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		return m, tickCmd()

	case scanMsg:
		m.applySnapshot(msg)
	}

	return m, nil
}

// updateRangeInput handles keys while the clip range is being edited
func (m model) updateRangeInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "esc":
		m.editingRange = false
		m.rangeInput.Blur()
		return m, nil
	case "enter":
		m.editingRange = false
		m.rangeInput.Blur()
		lo, hi, err := parseRange(m.rangeInput.Value())
		if err == nil {
			err = m.setRange(lo, hi)
		}
		if err != nil {
			m.addLogEntry(fmt.Sprintf("Range not changed: %v", err), true)
			return m, nil
		}
		m.minDist, m.maxDist = lo, hi
		m.addLogEntry(fmt.Sprintf("Distance range set to [%g, %g] m", lo, hi), false)
		return m, nil
	}

	var cmd tea.Cmd
	m.rangeInput, cmd = m.rangeInput.Update(msg)
	return m, cmd
}

// parseRange parses "min max" or "min,max"
func parseRange(s string) (float64, float64, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ',' })
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("expected two distances, got %q", s)
	}
	lo, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("min: %w", err)
	}
	hi, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("max: %w", err)
	}
	return lo, hi, nil
}

// applySnapshot folds a driver snapshot into the model and logs what changed
func (m *model) applySnapshot(msg scanMsg) {
	if msg.err != nil {
		m.addLogEntry(fmt.Sprintf("Driver: %v", msg.err), true)
		m.state = msg.state
		return
	}

	if msg.status != m.status && m.stats.BytesReceived > 0 {
		m.addLogEntry(fmt.Sprintf("Status %s -> %s", m.status, msg.status), msg.status == rangefinder.StatusError)
	}
	m.status = msg.status
	m.state = msg.state

	wasSynchronized := m.synchronized
	if !m.synchronized && msg.stats.Scans > 0 {
		m.synchronized = true
		if msg.stats.Desyncs > 0 {
			m.addLogEntry(fmt.Sprintf("First revolution after %d desyncs", msg.stats.Desyncs), false)
		} else {
			m.addLogEntry("First revolution", false)
		}
	}
	if wasSynchronized && msg.stats.Desyncs > m.lastDesyncs {
		m.addLogEntry(fmt.Sprintf("DESYNC: %d new (%s)", msg.stats.Desyncs-m.lastDesyncs, desyncBreakdown(msg.stats)), true)
	}
	m.lastDesyncs = msg.stats.Desyncs

	clipped := msg.stats.ClippedMin + msg.stats.ClippedMax
	if clipped > m.lastClipped && m.lastClipped == 0 {
		m.addLogEntry("Samples outside the distance range are being clipped", false)
	}
	m.lastClipped = clipped

	m.stats = msg.stats
	m.ranges = msg.ranges
	m.sectors.SetRows(sectorRows(m.ranges, m.resolution, m.sectorCount))
}

// sectorRows renders the sector summary as table rows
func sectorRows(ranges []float64, resolution float64, n int) []table.Row {
	stats := sectorStats(ranges, resolution, n)
	rows := make([]table.Row, 0, len(stats))
	for _, s := range stats {
		rows = append(rows, table.Row{
			fmt.Sprintf("%5.1f°-%5.1f°", s.Start, s.End),
			fmt.Sprintf("%.1f%%", s.Coverage()*100),
			formatMeters(s.Nearest),
			formatMeters(s.Mean),
		})
	}
	return rows
}

func (m *model) addLogEntry(message string, isError bool) {
	entry := eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)

	// Keep only last N entries
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("SCANSTAT - SCAN MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | %s | Up %s | 'r' range, 'q' quit",
		m.connInfo, m.deviceInfo, formatUptime(time.Since(m.started)))))
	s.WriteString("\n\n")

	// Sync status
	if !m.synchronized {
		s.WriteString(warningStyle.Render("⏳ Waiting for the first revolution..."))
	} else {
		s.WriteString(statsValueStyle.Render(fmt.Sprintf("✓ %s", m.status)))
		s.WriteString(headerStyle.Render(fmt.Sprintf(" (%s)", m.state)))
	}
	s.WriteString("\n\n")

	// Statistics
	st := m.stats
	windows := st.Samples + st.Desyncs
	var acceptedPercent float64
	if windows > 0 {
		acceptedPercent = float64(st.Samples) * 100.0 / float64(windows)
	}

	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Samples:"), statsValueStyle.Render(fmt.Sprintf("%d (%.1f%%)", st.Samples, acceptedPercent)),
		statsLabelStyle.Render("Revolutions:"), statsValueStyle.Render(fmt.Sprintf("%d", st.Scans)),
		statsLabelStyle.Render("Desyncs:"), func() string {
			if st.Desyncs > 0 {
				return errorStyle.Render(fmt.Sprintf("%d", st.Desyncs))
			}
			return statsValueStyle.Render("0")
		}(),
	))

	if st.Desyncs > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s\n",
			statsLabelStyle.Render("By Reason:"), headerStyle.Render(desyncBreakdown(st))))
	}

	if st.ClippedMin > 0 || st.ClippedMax > 0 || st.InfiniteSamples > 0 || st.OutOfRange > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
			statsLabelStyle.Render("Clipped:"), warningStyle.Render(fmt.Sprintf("%d/%d", st.ClippedMin, st.ClippedMax)),
			statsLabelStyle.Render("No Return:"), warningStyle.Render(fmt.Sprintf("%d", st.InfiniteSamples)),
			statsLabelStyle.Render("Out Of Limits:"), warningStyle.Render(fmt.Sprintf("%d", st.OutOfRange)),
		))
	}

	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s",
		statsLabelStyle.Render("Sample Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f/s", st.SampleRate)),
		statsLabelStyle.Render("Scan Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f Hz", st.ScanRate)),
		statsLabelStyle.Render("Range:"), statsValueStyle.Render(fmt.Sprintf("[%g, %g] m", m.minDist, m.maxDist)),
	))

	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n")

	if m.editingRange {
		s.WriteString(m.rangeInput.View())
		s.WriteString(headerStyle.Render("  enter to apply, esc to cancel"))
		s.WriteString("\n")
	}
	s.WriteString("\n")

	// Sector table
	s.WriteString(statsLabelStyle.Render("Sectors:"))
	s.WriteString("\n")
	s.WriteString(boxStyle.Render(m.sectors.View()))
	s.WriteString("\n\n")

	// Event log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	// Calculate how many log entries we can show
	logHeight := m.height - 17 - m.sectorCount // Reserve space for header, stats and sectors
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.eventLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("01/02/06 15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}
