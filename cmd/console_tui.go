// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/ventilink/pkg/alarm"
	"github.com/Thermoquad/ventilink/pkg/comms"
	"github.com/Thermoquad/ventilink/pkg/link"
	"github.com/Thermoquad/ventilink/pkg/settings"
	"github.com/Thermoquad/ventilink/pkg/ventproto"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	maxLogEntries = 100
	modeCount     = int(ventproto.ModeSIMV) + 1
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// settingField is one editable row of the settings panel
type settingField struct {
	label  string
	format func(s settings.Settings) string
	step   func(s *settings.Settings, dir int)
	parse  func(s *settings.Settings, text string) error // nil: step only
}

func intField(ptr func(*settings.Settings) *int) func(*settings.Settings, string) error {
	return func(s *settings.Settings, text string) error {
		v, err := strconv.Atoi(text)
		if err != nil {
			return fmt.Errorf("not a whole number: %q", text)
		}
		*ptr(s) = v
		return nil
	}
}

func floatField(ptr func(*settings.Settings) *float64) func(*settings.Settings, string) error {
	return func(s *settings.Settings, text string) error {
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return fmt.Errorf("not a number: %q", text)
		}
		*ptr(s) = v
		return nil
	}
}

var settingFields = []settingField{
	{
		label:  "Mode",
		format: func(s settings.Settings) string { return s.Mode.String() },
		step: func(s *settings.Settings, dir int) {
			s.Mode = ventproto.VentMode((int(s.Mode) + dir + modeCount) % modeCount)
		},
	},
	{
		label:  "Run",
		format: func(s settings.Settings) string { return s.RunState.String() },
		step: func(s *settings.Settings, dir int) {
			if s.RunState == ventproto.RunRunning {
				s.RunState = ventproto.RunStopped
			} else {
				s.RunState = ventproto.RunRunning
			}
		},
	},
	{
		label:  "Resp rate",
		format: func(s settings.Settings) string { return fmt.Sprintf("%d bpm", s.RespRate) },
		step:   func(s *settings.Settings, dir int) { s.RespRate += dir },
		parse:  intField(func(s *settings.Settings) *int { return &s.RespRate }),
	},
	{
		label:  "Tidal volume",
		format: func(s settings.Settings) string { return fmt.Sprintf("%d mL", s.TidalVolume) },
		step:   func(s *settings.Settings, dir int) { s.TidalVolume += 10 * dir },
		parse:  intField(func(s *settings.Settings) *int { return &s.TidalVolume }),
	},
	{
		label:  "I:E",
		format: func(s settings.Settings) string { return s.IELabel() },
		step:   func(s *settings.Settings, dir int) { s.IERatio += dir },
	},
	{
		label:  "Pressure",
		format: func(s settings.Settings) string { return fmt.Sprintf("%.1f cmH2O", s.Pressure) },
		step:   func(s *settings.Settings, dir int) { s.Pressure += 0.5 * float64(dir) },
		parse:  floatField(func(s *settings.Settings) *float64 { return &s.Pressure }),
	},
	{
		label:  "High pressure",
		format: func(s settings.Settings) string { return fmt.Sprintf("%.1f cmH2O", s.HighPressure) },
		step:   func(s *settings.Settings, dir int) { s.HighPressure += float64(dir) },
		parse:  floatField(func(s *settings.Settings) *float64 { return &s.HighPressure }),
	},
	{
		label:  "Low pressure",
		format: func(s settings.Settings) string { return fmt.Sprintf("%.1f cmH2O", s.LowPressure) },
		step:   func(s *settings.Settings, dir int) { s.LowPressure += float64(dir) },
		parse:  floatField(func(s *settings.Settings) *float64 { return &s.LowPressure }),
	},
	{
		label:  "High volume",
		format: func(s settings.Settings) string { return fmt.Sprintf("%d mL", s.HighVolume) },
		step:   func(s *settings.Settings, dir int) { s.HighVolume += 10 * dir },
		parse:  intField(func(s *settings.Settings) *int { return &s.HighVolume }),
	},
	{
		label:  "High resp rate",
		format: func(s settings.Settings) string { return fmt.Sprintf("%d bpm", s.HighRespRate) },
		step:   func(s *settings.Settings, dir int) { s.HighRespRate += dir },
		parse:  intField(func(s *settings.Settings) *int { return &s.HighRespRate }),
	},
}

// consoleModel is the Bubble Tea model for the operator console
type consoleModel struct {
	store   *settings.Store
	alarms  *alarm.Manager
	adapter *comms.Adapter

	// Session
	connInfo  string
	connected bool
	retryIn   time.Duration
	stats     *ventproto.Statistics

	// Telemetry
	params    *ventproto.Params
	alarmBits uint32

	// Settings editor
	selected int
	editing  bool
	input    textinput.Model

	eventLog []logEntry

	width    int
	height   int
	quitting bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type consoleTickMsg time.Time

type paramsMsg ventproto.Params

type alarmsMsg uint32

type frameEventMsg link.FrameEvent

type linkUpMsg struct {
	info  string
	stats *ventproto.Statistics
}

type linkDownMsg struct {
	err     error
	retryIn time.Duration
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialConsoleModel(store *settings.Store, alarms *alarm.Manager, adapter *comms.Adapter) consoleModel {
	ti := textinput.New()
	ti.CharLimit = 8
	ti.Width = 10

	return consoleModel{
		store:    store,
		alarms:   alarms,
		adapter:  adapter,
		input:    ti,
		eventLog: make([]logEntry, 0),
		width:    100,
		height:   30,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m consoleModel) Init() tea.Cmd {
	return consoleTickCmd()
}

func consoleTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return consoleTickMsg(t)
	})
}

func (m consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case consoleTickMsg:
		// Redraw so rates and alarm ages stay current
		return m, consoleTickCmd()

	case paramsMsg:
		p := ventproto.Params(msg)
		m.params = &p

	case alarmsMsg:
		m.onAlarms(uint32(msg))

	case frameEventMsg:
		m.onFrameEvent(link.FrameEvent(msg))

	case linkUpMsg:
		m.connected = true
		m.connInfo = msg.info
		m.stats = msg.stats
		m.addLogEntry("Connected: "+msg.info, false)

	case linkDownMsg:
		m.connected = false
		m.retryIn = msg.retryIn
		reason := "closed"
		if msg.err != nil {
			reason = msg.err.Error()
		}
		m.addLogEntry(fmt.Sprintf("Connection lost (%s), retrying in %s", reason, msg.retryIn), true)
	}

	return m, nil
}

func (m consoleModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.editing {
		switch msg.String() {
		case "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "enter":
			m.commitEdit()
			return m, nil
		case "esc":
			m.stopEditing()
			return m, nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "up", "k":
		m.selected = (m.selected - 1 + len(settingFields)) % len(settingFields)

	case "down", "j":
		m.selected = (m.selected + 1) % len(settingFields)

	case "left", "h", "-":
		m.stepSelected(-1)

	case "right", "l", "+", "=":
		m.stepSelected(1)

	case "enter", "e":
		field := settingFields[m.selected]
		if field.parse == nil {
			m.stepSelected(1)
			return m, nil
		}
		m.editing = true
		m.input.SetValue("")
		m.input.Placeholder = field.format(m.store.Staged())
		return m, m.input.Focus()

	case "s":
		m.applySettings()

	case "u":
		if m.store.Dirty() {
			m.store.Discard()
			m.addLogEntry("Discarded staged settings", false)
		}

	case "a":
		m.acknowledge()
	}

	return m, nil
}

func (m consoleModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

	// Header
	s.WriteString(titleStyle.Render("VENTILINK CONSOLE"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if !m.connected {
		connStatus = warningStyle.Render(fmt.Sprintf("RECONNECTING (every %s)...", m.retryIn))
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | q=quit s=apply u=discard a=ack", connStatus)))
	s.WriteString("\n\n")

	s.WriteString(m.renderTelemetry())
	s.WriteString("\n")

	half := (m.width - 6) / 2
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		boxStyle.Width(half).Render(m.renderSettings()),
		" ",
		boxStyle.Width(half).Render(m.renderAlarms()),
	))
	s.WriteString("\n")

	s.WriteString(m.renderStatisticsBar())
	s.WriteString("\n")

	s.WriteString(m.renderEventLog())

	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

func (m consoleModel) renderTelemetry() string {
	var c strings.Builder
	c.WriteString(labelStyle.Render("TELEMETRY"))
	c.WriteString("\n")

	if m.params == nil {
		c.WriteString(headerStyle.Render("Waiting for telemetry..."))
		return boxStyle.Width(m.width - 4).Render(c.String())
	}
	p := m.params

	c.WriteString(fmt.Sprintf("%s %s %s   %s %s   %s %s   %s %s\n",
		labelStyle.Render("Mode:"), valueStyle.Render(p.Mode.String()), valueStyle.Render(p.RunState.String()),
		labelStyle.Render("Cycle:"), valueStyle.Render(p.ControlState.String()),
		labelStyle.Render("Battery:"), valueStyle.Render(fmt.Sprintf("%d%%", p.BatteryLevel)),
		labelStyle.Render("Seq:"), valueStyle.Render(fmt.Sprintf("%d", p.Sequence)),
	))
	c.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		labelStyle.Render("RR:"), valueStyle.Render(fmt.Sprintf("%d/%d bpm", p.RespRateMeas, p.RespRateSet)),
		labelStyle.Render("VT:"), valueStyle.Render(fmt.Sprintf("%.0f/%.0f mL", p.TidalVolumeMeas, p.TidalVolumeSet)),
		labelStyle.Render("I:E:"), valueStyle.Render(ventproto.FormatIERatio(p.IERatioMeas)+" / "+ventproto.FormatIERatio(p.IERatioSet)),
	))
	c.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s   %s %s\n",
		labelStyle.Render("PEEP:"), valueStyle.Render(fmt.Sprintf("%.1f", p.PEEP)),
		labelStyle.Render("Ppeak:"), valueStyle.Render(fmt.Sprintf("%.1f", p.PeakPressure)),
		labelStyle.Render("Pplat:"), valueStyle.Render(fmt.Sprintf("%.1f", p.PlateauPressure)),
		labelStyle.Render("P:"), valueStyle.Render(fmt.Sprintf("%.1f cmH2O", p.Pressure)),
	))
	c.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s",
		labelStyle.Render("Flow:"), valueStyle.Render(fmt.Sprintf("%.2f SLM", p.Flow)),
		labelStyle.Render("Vin:"), valueStyle.Render(fmt.Sprintf("%.0f mL", p.VolumeIn)),
		labelStyle.Render("Vex:"), valueStyle.Render(fmt.Sprintf("%.0f mL", p.VolumeEx)),
	))

	return boxStyle.Width(m.width - 4).Render(c.String())
}

func (m consoleModel) renderSettings() string {
	committed := m.store.Committed()
	staged := m.store.Staged()

	var c strings.Builder
	c.WriteString(labelStyle.Render("SETTINGS"))
	if m.store.Dirty() {
		c.WriteString(" " + warningStyle.Render("(staged, press s to apply)"))
	}
	c.WriteString("\n")

	for i, f := range settingFields {
		marker := "  "
		if i == m.selected {
			marker = labelStyle.Render("> ")
		}
		now := f.format(committed)
		next := f.format(staged)

		value := valueStyle.Render(now)
		switch {
		case m.editing && i == m.selected:
			value = now + " -> " + m.input.View()
		case next != now:
			value = now + " -> " + warningStyle.Render(next)
		}
		c.WriteString(fmt.Sprintf("%s%-15s %s\n", marker, f.label, value))
	}
	return strings.TrimRight(c.String(), "\n")
}

func (m consoleModel) renderAlarms() string {
	var c strings.Builder
	c.WriteString(labelStyle.Render("ALARMS"))
	c.WriteString("\n")

	pending := m.alarms.Pending()
	if len(pending) == 0 {
		c.WriteString(valueStyle.Render("No pending alarms"))
		c.WriteString("\n")
	}
	for i, a := range pending {
		line := fmt.Sprintf("%s %s (%s ago)", a.Type, a.Message(), time.Since(a.CreatedAt).Truncate(time.Second))
		if i == 0 {
			c.WriteString(errorStyle.Render("! "+line) + "\n")
		} else {
			c.WriteString("  " + line + "\n")
		}
	}

	c.WriteString("\n")
	if m.alarmBits != 0 {
		c.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Active:"), describeAlarmBits(m.alarmBits)))
	}
	if ack := m.alarms.AckBits(); ack != 0 {
		c.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Acknowledged:"), describeAlarmBits(ack)))
	}
	return strings.TrimRight(c.String(), "\n")
}

func (m consoleModel) renderStatisticsBar() string {
	if m.stats == nil {
		return boxStyle.Width(m.width - 4).Render(headerStyle.Render("No session"))
	}
	snap := m.stats.Snapshot()

	var validPercent float64
	if snap.TotalFrames > 0 {
		validPercent = float64(snap.ValidFrames) * 100.0 / float64(snap.TotalFrames)
	}
	errors := valueStyle.Render("0")
	if snap.Errors() > 0 {
		errors = errorStyle.Render(fmt.Sprintf("%d", snap.Errors()))
	}
	sync := warningStyle.Render("searching")
	if snap.ValidFrames > 0 {
		sync = valueStyle.Render("locked")
	}

	content := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s  %s %s  %s %s",
		labelStyle.Render("Frames:"), valueStyle.Render(fmt.Sprintf("%d", snap.TotalFrames)),
		labelStyle.Render("Valid:"), valueStyle.Render(fmt.Sprintf("%.1f%%", validPercent)),
		labelStyle.Render("Errors:"), errors,
		labelStyle.Render("Rate:"), valueStyle.Render(fmt.Sprintf("%.1f fr/s", snap.PacketRate)),
		labelStyle.Render("Sent:"), valueStyle.Render(fmt.Sprintf("%d", snap.FramesSent)),
		labelStyle.Render("Sync:"), sync,
	)
	return boxStyle.Width(m.width - 4).Render(content)
}

func (m consoleModel) renderEventLog() string {
	var s strings.Builder
	s.WriteString(labelStyle.Render("EVENTS"))
	s.WriteString("\n")

	logHeight := m.height - 28
	if logHeight < 5 {
		logHeight = 5
	}
	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.eventLog) == 0 {
		s.WriteString(headerStyle.Render("  (no events yet)"))
	}
	for i := startIdx; i < len(m.eventLog); i++ {
		entry := m.eventLog[i]
		icon, style := "i", warningStyle
		if entry.isError {
			icon, style = "x", errorStyle
		}
		s.WriteString(fmt.Sprintf("%s %s %s\n",
			headerStyle.Render(entry.timestamp.Format("15:04:05.000")),
			style.Render(icon),
			entry.message))
	}

	return boxStyle.Width(m.width - 4).Render(strings.TrimRight(s.String(), "\n"))
}

//////////////////////////////////////////////////////////////
// Data Processing
//////////////////////////////////////////////////////////////

func (m *consoleModel) onAlarms(bits uint32) {
	for _, ev := range alarm.Diff(m.alarmBits, bits) {
		switch {
		case ev.Kind == alarm.Activated && ev.Known:
			m.addLogEntry(fmt.Sprintf("ALARM %s: %s", ev.Type, ev.Type.Message()), true)
		case ev.Kind == alarm.Activated:
			m.addLogEntry(fmt.Sprintf("Unrecognized alarm bit %d ignored", ev.Bit), true)
		case ev.Known:
			m.addLogEntry(fmt.Sprintf("Cleared %s", ev.Type), false)
		}
	}
	m.alarmBits = bits
}

func (m *consoleModel) onFrameEvent(ev link.FrameEvent) {
	switch ev.Kind {
	case link.SyncAcquired:
		m.addLogEntry("Frame sync acquired", false)
	case link.SyncLost:
		m.addLogEntry("Frame sync lost, searching", true)
	case link.FrameCRCError:
		m.addLogEntry("CRC error, frame dropped", true)
	case link.FrameShort:
		m.addLogEntry("Short frame dropped", true)
	case link.FrameDecodeError:
		m.addLogEntry(fmt.Sprintf("DECODE ERROR: %v", ev.Err), true)
	case link.FrameSequenceGap:
		m.addLogEntry(fmt.Sprintf("Sequence gap at seq=%d", ev.Sequence), true)
	case link.FrameWriteError:
		m.addLogEntry(fmt.Sprintf("Command frame lost: %v", ev.Err), true)
	}
}

//////////////////////////////////////////////////////////////
// Commands
//////////////////////////////////////////////////////////////

func (m *consoleModel) stepSelected(dir int) {
	field := settingFields[m.selected]
	err := m.store.Stage(func(s *settings.Settings) { field.step(s, dir) })
	if err != nil {
		m.addLogEntry(fmt.Sprintf("%s: %v", field.label, err), true)
	}
}

func (m *consoleModel) commitEdit() {
	field := settingFields[m.selected]
	text := strings.TrimSpace(m.input.Value())
	m.stopEditing()
	if text == "" {
		return
	}

	var parseErr error
	err := m.store.Stage(func(s *settings.Settings) { parseErr = field.parse(s, text) })
	switch {
	case parseErr != nil:
		m.addLogEntry(fmt.Sprintf("%s: %v", field.label, parseErr), true)
	case err != nil:
		m.addLogEntry(fmt.Sprintf("%s: %v", field.label, err), true)
	}
}

func (m *consoleModel) stopEditing() {
	m.editing = false
	m.input.Blur()
	m.input.SetValue("")
}

func (m *consoleModel) applySettings() {
	if !m.store.Dirty() {
		m.addLogEntry("No staged changes to apply", false)
		return
	}
	s, err := m.adapter.ApplySettings()
	if err != nil {
		m.addLogEntry(fmt.Sprintf("Apply failed: %v", err), true)
		return
	}
	msg := "Applied: " + comms.Describe(s)
	if !m.connected {
		msg += " (sent on reconnect)"
	}
	m.addLogEntry(msg, false)
}

func (m *consoleModel) acknowledge() {
	a, ok := m.adapter.Acknowledge()
	if !ok {
		m.addLogEntry("No pending alarm", false)
		return
	}
	m.addLogEntry(fmt.Sprintf("Acknowledged %s", a.Type), false)
}

//////////////////////////////////////////////////////////////
// Helpers
//////////////////////////////////////////////////////////////

func (m *consoleModel) addLogEntry(message string, isError bool) {
	m.eventLog = append(m.eventLog, logEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})
	if len(m.eventLog) > maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-maxLogEntries:]
	}
}
