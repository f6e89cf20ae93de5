// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package comms connects the link to the rest of the UI: telemetry goes to
// the display, alarm bits go through the alarm manager, and committed
// settings and acknowledgments go back to the link.
package comms

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Thermoquad/ventilink/pkg/alarm"
	"github.com/Thermoquad/ventilink/pkg/eventlog"
	"github.com/Thermoquad/ventilink/pkg/settings"
	"github.com/Thermoquad/ventilink/pkg/ventproto"
)

// UI receives typed telemetry. Both calls arrive on the link goroutine.
type UI interface {
	OnParams(p ventproto.Params)
	OnAlarms(bits uint32)
}

// SettingsTarget is the session that mirrors settings and the acknowledge
// mask to the ECU
type SettingsTarget interface {
	UpdateSettings(s settings.Settings)
	SetAckBits(bits uint32)
}

// Adapter implements link.Listener and settings.Sink
type Adapter struct {
	store  *settings.Store
	alarms *alarm.Manager
	ui     UI
	events *eventlog.Log
	logger *zap.Logger

	mu       sync.Mutex
	target   SettingsTarget
	lastBits uint32
}

// Option configures an Adapter
type Option func(*Adapter)

// WithEventLog records alarm, acknowledgment, settings and link events
func WithEventLog(events *eventlog.Log) Option {
	return func(a *Adapter) { a.events = events }
}

// WithLogger sets the structured logger
func WithLogger(logger *zap.Logger) Option {
	return func(a *Adapter) { a.logger = logger }
}

type noopUI struct{}

func (noopUI) OnParams(ventproto.Params) {}
func (noopUI) OnAlarms(uint32)           {}

// New creates an adapter and registers it as the store's sink. ui may be nil.
func New(store *settings.Store, alarms *alarm.Manager, ui UI, opts ...Option) *Adapter {
	if ui == nil {
		ui = noopUI{}
	}
	a := &Adapter{
		store:  store,
		alarms: alarms,
		ui:     ui,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	store.SetSink(a)
	return a
}

// Bind makes target the receiver of committed settings and acknowledge
// masks, and brings it up to date. Passing nil unbinds.
func (a *Adapter) Bind(target SettingsTarget) {
	a.mu.Lock()
	a.target = target
	a.mu.Unlock()

	if target == nil {
		a.alarms.SetAckSink(nil)
		return
	}
	target.UpdateSettings(a.store.Committed())
	// The manager sends the current mask to a new sink and every change after
	a.alarms.SetAckSink(target)
}

func (a *Adapter) boundTarget() SettingsTarget {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.target
}

// OnParams forwards a telemetry snapshot to the UI
func (a *Adapter) OnParams(p ventproto.Params) {
	a.ui.OnParams(p)
}

// OnAlarms feeds the alarm manager, records transitions and notifies the UI.
// The manager pushes acknowledge mask changes to the bound target.
func (a *Adapter) OnAlarms(bits uint32) {
	a.mu.Lock()
	prev := a.lastBits
	a.lastBits = bits
	a.mu.Unlock()

	added := a.alarms.SetActiveAlarms(bits)
	for _, al := range added {
		a.record(eventlog.KindAlarmRaised, fmt.Sprintf("%s: %s", al.Type, al.Message()))
	}
	for _, ev := range alarm.Diff(prev, bits) {
		if ev.Kind == alarm.Cleared && ev.Known {
			a.record(eventlog.KindAlarmCleared, fmt.Sprintf("%s: %s", ev.Type, ev.Type.Message()))
		}
	}

	a.ui.OnAlarms(bits)
}

// OnSettingsChanged forwards committed settings to the bound target
func (a *Adapter) OnSettingsChanged(s settings.Settings) {
	if target := a.boundTarget(); target != nil {
		target.UpdateSettings(s)
	}
	a.record(eventlog.KindSettingsApplied, Describe(s))
	a.logger.Info("settings applied", zap.String("settings", Describe(s)))
}

// ApplySettings commits the staged settings
func (a *Adapter) ApplySettings() (settings.Settings, error) {
	return a.store.Apply()
}

// Acknowledge acknowledges the most urgent pending alarm
func (a *Adapter) Acknowledge() (alarm.Alarm, bool) {
	al, ok := a.alarms.Acknowledge()
	if ok {
		a.record(eventlog.KindAlarmAcknowledged, fmt.Sprintf("%s: %s", al.Type, al.Message()))
	}
	return al, ok
}

// LinkUp records that a session started
func (a *Adapter) LinkUp(description string) {
	a.record(eventlog.KindLinkUp, description)
}

// LinkDown records that a session ended
func (a *Adapter) LinkDown(err error) {
	msg := "closed"
	if err != nil {
		msg = err.Error()
	}
	a.record(eventlog.KindLinkDown, msg)
}

func (a *Adapter) record(kind eventlog.Kind, message string) {
	if a.events != nil {
		a.events.Record(kind, message)
	}
}

// Describe summarizes settings on one line
func Describe(s settings.Settings) string {
	return fmt.Sprintf("mode=%s run=%s rr=%d vt=%d ie=%s p=%.1f limits p=%.1f-%.1f vt<=%d rr<=%d",
		s.Mode, s.RunState, s.RespRate, s.TidalVolume, s.IELabel(), s.Pressure,
		s.LowPressure, s.HighPressure, s.HighVolume, s.HighRespRate)
}
