// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package comms

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/ventilink/pkg/alarm"
	"github.com/Thermoquad/ventilink/pkg/eventlog"
	"github.com/Thermoquad/ventilink/pkg/link"
	"github.com/Thermoquad/ventilink/pkg/settings"
	"github.com/Thermoquad/ventilink/pkg/transport"
	"github.com/Thermoquad/ventilink/pkg/ventproto"
)

type recordingUI struct {
	mu     sync.Mutex
	params []ventproto.Params
	alarms []uint32
}

func (r *recordingUI) OnParams(p ventproto.Params) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.params = append(r.params, p)
}

func (r *recordingUI) OnAlarms(bits uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alarms = append(r.alarms, bits)
}

type fakeTarget struct {
	settings []settings.Settings
	ackBits  []uint32
}

func (f *fakeTarget) UpdateSettings(s settings.Settings) { f.settings = append(f.settings, s) }
func (f *fakeTarget) SetAckBits(bits uint32)             { f.ackBits = append(f.ackBits, bits) }

func kinds(records []eventlog.Record) []eventlog.Kind {
	var out []eventlog.Kind
	for _, r := range records {
		out = append(out, r.Type)
	}
	return out
}

func TestAdapter_BindSyncsTarget(t *testing.T) {
	store := settings.NewStore(settings.Default())
	a := New(store, alarm.NewManager(), nil)

	target := &fakeTarget{}
	a.Bind(target)
	require.Len(t, target.settings, 1)
	assert.Equal(t, settings.Default(), target.settings[0])
	assert.Equal(t, []uint32{0}, target.ackBits)
}

func TestAdapter_ApplyForwardsCommitted(t *testing.T) {
	store := settings.NewStore(settings.Default())
	events := eventlog.New(nil, eventlog.WithFlushEvery(100))
	a := New(store, alarm.NewManager(), nil, WithEventLog(events))
	target := &fakeTarget{}
	a.Bind(target)

	require.NoError(t, store.Stage(func(s *settings.Settings) { s.TidalVolume = 450 }))
	assert.Len(t, target.settings, 1, "staged values never reach the link")

	applied, err := a.ApplySettings()
	require.NoError(t, err)
	require.Len(t, target.settings, 2)
	assert.Equal(t, 450, target.settings[1].TidalVolume)
	assert.Equal(t, applied, target.settings[1])

	recs := events.Buffered()
	require.Len(t, recs, 1)
	assert.Equal(t, eventlog.KindSettingsApplied, recs[0].Type)
	assert.Contains(t, recs[0].Message, "vt=450")
}

func TestAdapter_AlarmWorkflow(t *testing.T) {
	ui := &recordingUI{}
	alarms := alarm.NewManager()
	events := eventlog.New(nil, eventlog.WithFlushEvery(100))
	a := New(settings.NewStore(settings.Default()), alarms, ui, WithEventLog(events))
	target := &fakeTarget{}
	a.Bind(target)

	a.OnAlarms(alarm.HighPressure.Mask())
	assert.True(t, alarms.IsPending())
	assert.Equal(t, []uint32{alarm.HighPressure.Mask()}, ui.alarms)

	acked, ok := a.Acknowledge()
	require.True(t, ok)
	assert.Equal(t, alarm.HighPressure, acked.Type)
	assert.Equal(t, alarm.HighPressure.Mask(), target.ackBits[len(target.ackBits)-1])

	// Condition clears: the ack bit is withdrawn from the link
	a.OnAlarms(0)
	assert.Equal(t, uint32(0), target.ackBits[len(target.ackBits)-1])

	_, ok = a.Acknowledge()
	assert.False(t, ok)

	assert.Equal(t, []eventlog.Kind{
		eventlog.KindAlarmRaised,
		eventlog.KindAlarmAcknowledged,
		eventlog.KindAlarmCleared,
	}, kinds(events.Buffered()))
}

func TestAdapter_LinkEvents(t *testing.T) {
	events := eventlog.New(nil, eventlog.WithFlushEvery(100))
	a := New(settings.NewStore(settings.Default()), alarm.NewManager(), nil, WithEventLog(events))
	a.LinkUp("Serial: /dev/ttyUSB0 @ 115200 baud")
	a.LinkDown(io.EOF)
	a.LinkDown(nil)

	recs := events.Buffered()
	require.Len(t, recs, 3)
	assert.Equal(t, "EOF", recs[1].Message)
	assert.Equal(t, "closed", recs[2].Message)
}

// End to end over a scripted connection: telemetry in, alarms queued,
// acknowledge mask out.
func TestAdapter_WithLink(t *testing.T) {
	frame := func(seq uint16, bits uint32) []byte {
		p := ventproto.InPacket{
			Sequence: seq, Version: ventproto.ProtocolVersion, Type: ventproto.PacketTypeData,
			RespRateMeas: 15, TidalVolumeMeas: 500, BatteryLevel: 80, AlarmBits: bits,
		}
		b, err := p.MarshalBinary()
		require.NoError(t, err)
		return b
	}

	ui := &recordingUI{}
	alarms := alarm.NewManager()
	store := settings.NewStore(settings.Default())
	a := New(store, alarms, ui)

	conn := transport.NewScriptedConnection(
		transport.Chunk(frame(0, alarm.ACPowerLoss.Mask()|alarm.SetpointMismatch.Mask())),
	)
	l := link.New(conn, link.WithListener(a))
	a.Bind(l)

	require.ErrorIs(t, l.Run(context.Background()), io.EOF)
	require.Len(t, ui.params, 1)

	head, err := alarms.HighestPriority()
	require.NoError(t, err)
	assert.Equal(t, alarm.ACPowerLoss, head.Type)

	a.Acknowledge()
	assert.Equal(t, alarm.ACPowerLoss.Mask(), l.AckBits())

	conn.Append(transport.Chunk(frame(1, alarm.ACPowerLoss.Mask()|alarm.SetpointMismatch.Mask())))
	require.ErrorIs(t, l.Run(context.Background()), io.EOF)

	writes := conn.Writes()
	require.Len(t, writes, 2)
	var out ventproto.OutPacket
	require.NoError(t, out.UnmarshalBinary(writes[1]))
	assert.Equal(t, alarm.ACPowerLoss.Mask(), out.AlarmBits)
	assert.Equal(t, alarm.SetpointMismatch, alarms.Pending()[0].Type)
}

type stalledSink struct {
	release chan struct{}
}

func (s *stalledSink) Write([]eventlog.Record) error {
	<-s.release
	return nil
}

func (s *stalledSink) Close() error { return nil }

func TestAdapter_LinkAnswersWhileEventSinkStalls(t *testing.T) {
	sink := &stalledSink{release: make(chan struct{})}
	events := eventlog.New(sink, eventlog.WithFlushEvery(1))
	a := New(settings.NewStore(settings.Default()), alarm.NewManager(), nil, WithEventLog(events))

	var steps []transport.ReadStep
	for seq := uint16(0); seq < 5; seq++ {
		bits := uint32(0)
		if seq%2 == 0 {
			bits = alarm.HighPressure.Mask()
		}
		p := ventproto.InPacket{
			Sequence: seq, Version: ventproto.ProtocolVersion, Type: ventproto.PacketTypeData,
			BatteryLevel: 80, AlarmBits: bits,
		}
		b, err := p.MarshalBinary()
		require.NoError(t, err)
		steps = append(steps, transport.Chunk(b))
	}
	conn := transport.NewScriptedConnection(steps...)
	l := link.New(conn, link.WithListener(a))
	a.Bind(l)

	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background()) }()

	select {
	case err := <-done:
		require.ErrorIs(t, err, io.EOF)
	case <-time.After(2 * time.Second):
		t.Fatalf("read loop stalled: %d of 5 frames answered", len(conn.Writes()))
	}
	assert.Len(t, conn.Writes(), 5)

	close(sink.release)
	require.NoError(t, events.Close())
}

// Acknowledgments racing alarm scans still leave the link with the
// manager's final mask
func TestAdapter_AckMaskOrdering(t *testing.T) {
	alarms := alarm.NewManager()
	a := New(settings.NewStore(settings.Default()), alarms, nil)
	l := link.New(transport.NewScriptedConnection())
	a.Bind(l)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 300; i++ {
			if i%2 == 0 {
				a.OnAlarms(alarm.HighPressure.Mask() | alarm.LowBattery.Mask())
			} else {
				a.OnAlarms(0)
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 300; i++ {
			a.Acknowledge()
		}
	}()
	wg.Wait()

	assert.Equal(t, alarms.AckBits(), l.AckBits())
	assert.Equal(t, uint32(0), alarms.AckBits()&^alarms.ActiveBits(), "only active conditions are acknowledged")
}

func TestDescribe(t *testing.T) {
	assert.Equal(t,
		"mode=VC run=STOPPED rr=15 vt=500 ie=1:2 p=20.0 limits p=5.0-40.0 vt<=800 rr<=30",
		Describe(settings.Default()))
}
