// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package link runs the request/response session with the ECU: it reads
// telemetry frames, recovers frame alignment, checks sequence and CRC, and
// answers every valid frame with exactly one command frame built from the
// committed settings.
package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/Thermoquad/ventilink/pkg/settings"
	"github.com/Thermoquad/ventilink/pkg/transport"
	"github.com/Thermoquad/ventilink/pkg/ventproto"
)

// Listener receives decoded telemetry from the read loop. Callbacks run on
// the read goroutine and should return quickly.
type Listener interface {
	OnParams(p ventproto.Params)
	OnAlarms(bits uint32)
}

// FrameKind classifies a FrameEvent
type FrameKind int

const (
	FrameValid FrameKind = iota
	FrameCRCError
	FrameShort
	FrameDecodeError
	FrameSequenceGap
	FrameSent
	FrameWriteError
	SyncAcquired
	SyncLost
)

func (k FrameKind) String() string {
	names := []string{"VALID", "CRC_ERROR", "SHORT", "DECODE_ERROR", "SEQUENCE_GAP",
		"SENT", "WRITE_ERROR", "SYNC_ACQUIRED", "SYNC_LOST"}
	if int(k) < len(names) {
		return names[k]
	}
	return "UNKNOWN"
}

// FrameEvent describes one frame-level occurrence on the link
type FrameEvent struct {
	Kind     FrameKind
	Frame    []byte // copy of the bytes involved, if any
	Sequence uint16
	Err      error
	Params   *ventproto.Params // set for FrameValid
}

// Link owns one session over a connection
type Link struct {
	conn   transport.Connection
	logger *zap.Logger
	stats  *ventproto.Statistics

	readAttempts   int
	resyncAfter    int
	strictSequence bool
	passive        bool
	flush          bool
	observer       func(FrameEvent)

	// mu guards settings, ackBits and listeners. It is never held across I/O.
	mu        sync.Mutex
	settings  settings.Settings
	ackBits   uint32
	listeners []Listener

	synchronized atomic.Bool

	// Read loop state
	crcFailures int
	haveSeq     bool
	lastSeq     uint16
	alarmsSeen  bool
	lastAlarms  uint32
	txSeq       uint16
}

// New creates a link over conn. Run starts the session.
func New(conn transport.Connection, opts ...Option) *Link {
	l := &Link{
		conn:         conn,
		logger:       zap.NewNop(),
		readAttempts: DefaultReadAttempts,
		resyncAfter:  DefaultResyncAfter,
		flush:        true,
		settings:     settings.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.stats == nil {
		l.stats = ventproto.NewStatistics()
	}
	if l.resyncAfter < 1 {
		l.resyncAfter = 1
	}
	return l
}

// Subscribe adds a listener
func (l *Link) Subscribe(listener Listener) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, listener)
}

// UpdateSettings replaces the committed settings mirrored to the ECU
func (l *Link) UpdateSettings(s settings.Settings) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.settings = s
}

// Settings returns the settings the next command frame will carry
func (l *Link) Settings() settings.Settings {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.settings
}

// SetAckBits sets the alarm acknowledge mask sent in command frames
func (l *Link) SetAckBits(bits uint32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ackBits = bits
}

// AckBits returns the acknowledge mask sent in command frames
func (l *Link) AckBits() uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ackBits
}

// Stats returns the session statistics
func (l *Link) Stats() *ventproto.Statistics {
	return l.stats
}

// Synchronized reports whether frame alignment is established
func (l *Link) Synchronized() bool {
	return l.synchronized.Load()
}

// Run reads frames until ctx is cancelled, which closes the connection, or
// the connection fails. It returns nil on cancellation. Bad frames are
// counted and skipped; they never end the session.
func (l *Link) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { l.conn.Close() })
	defer stop()

	frame := make([]byte, ventproto.InPacketSize)
	filled := 0

	for {
		if ctx.Err() != nil {
			return nil
		}

		n, err := ReadExactWithRetries(l.conn, frame[filled:], l.readAttempts)
		filled += n
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, ErrShortFrame) || errors.Is(err, ErrNoData) {
				switch {
				case filled == 0:
				case !l.synchronized.Load():
					// Still searching for alignment: the line went quiet,
					// so restart the search at the next byte to arrive
					l.stats.RecordResyncBytes(filled)
				default:
					l.stats.RecordShortFrame()
					l.emit(FrameEvent{Kind: FrameShort, Frame: frame[:filled], Err: err})
				}
				filled = 0
				continue
			}
			return fmt.Errorf("link read: %w", err)
		}
		filled = 0

		if !ventproto.CheckCRC(frame) {
			if !l.synchronized.Load() {
				// Slide the window one byte and look again
				copy(frame, frame[1:])
				filled = len(frame) - 1
				l.stats.RecordResyncBytes(1)
				continue
			}
			l.handleCRCError(frame)
			continue
		}

		if !l.synchronized.Load() {
			l.synchronized.Store(true)
			l.logger.Info("frame sync acquired",
				zap.Uint64("resync_bytes", l.stats.Snapshot().ResyncBytes))
			l.emit(FrameEvent{Kind: SyncAcquired})
		}
		l.crcFailures = 0

		if l.flush {
			if f, ok := l.conn.(transport.Flusher); ok {
				if err := f.ResetInputBuffer(); err != nil {
					l.logger.Warn("input flush failed", zap.Error(err))
				}
			}
		}

		l.handleFrame(frame)
	}
}

func (l *Link) handleCRCError(frame []byte) {
	l.stats.RecordCRCError()
	l.crcFailures++
	received, _ := ventproto.FrameCRC(frame)
	l.logger.Warn("dropping frame with bad CRC",
		zap.String("received", ventproto.FormatCRC(received)),
		zap.String("calculated", ventproto.FormatCRC(ventproto.CalculateCRC(frame[:len(frame)-ventproto.CRCSize]))),
		zap.Int("consecutive", l.crcFailures))
	l.emit(FrameEvent{Kind: FrameCRCError, Frame: frame, Err: ventproto.ErrCRCMismatch})

	if l.crcFailures >= l.resyncAfter {
		l.synchronized.Store(false)
		l.crcFailures = 0
		l.logger.Warn("frame sync lost", zap.Int("after_failures", l.resyncAfter))
		l.emit(FrameEvent{Kind: SyncLost})
	}
}

func (l *Link) handleFrame(frame []byte) {
	var pkt ventproto.InPacket
	if err := pkt.UnmarshalBinary(frame); err != nil {
		l.stats.RecordDecodeError()
		l.logger.Warn("dropping undecodable frame", zap.Error(err))
		l.emit(FrameEvent{Kind: FrameDecodeError, Frame: frame, Err: err})
		return
	}

	first := !l.haveSeq
	prev := l.lastSeq
	l.haveSeq = true
	l.lastSeq = pkt.Sequence
	if !SequenceValid(prev, pkt.Sequence, first) {
		l.stats.RecordSequenceError()
		l.logger.Warn("sequence discontinuity",
			zap.Uint16("previous", prev),
			zap.Uint16("received", pkt.Sequence),
			zap.Bool("first", first),
			zap.Bool("dropped", l.strictSequence))
		l.emit(FrameEvent{Kind: FrameSequenceGap, Frame: frame, Sequence: pkt.Sequence})
		if l.strictSequence {
			return
		}
	}

	params := pkt.Params()
	anomalies := ventproto.ValidateParams(params)
	l.stats.RecordValid(len(anomalies))
	for _, a := range anomalies {
		l.logger.Debug("telemetry anomaly",
			zap.Stringer("type", a.Type),
			zap.String("message", a.Message),
			zap.Uint16("sequence", pkt.Sequence))
	}
	l.emit(FrameEvent{Kind: FrameValid, Frame: frame, Sequence: pkt.Sequence, Params: &params})

	l.mu.Lock()
	listeners := append([]Listener(nil), l.listeners...)
	l.mu.Unlock()

	alarmsChanged := !l.alarmsSeen || params.AlarmBits != l.lastAlarms
	l.alarmsSeen = true
	l.lastAlarms = params.AlarmBits

	for _, listener := range listeners {
		listener.OnParams(params)
		if alarmsChanged {
			listener.OnAlarms(params.AlarmBits)
		}
	}

	if !l.passive {
		l.transmit()
	}
}

// transmit sends one command frame mirroring the committed settings
func (l *Link) transmit() {
	l.mu.Lock()
	s := l.settings
	ack := l.ackBits
	l.mu.Unlock()

	pkt := NewOutPacket(l.txSeq, s, ack)
	l.txSeq++

	frame, err := pkt.MarshalBinary()
	if err != nil {
		l.stats.RecordWriteError()
		l.logger.Error("cannot encode command frame", zap.Error(err))
		l.emit(FrameEvent{Kind: FrameWriteError, Sequence: pkt.Sequence, Err: err})
		return
	}

	n, err := l.conn.Write(frame)
	if err == nil && n != len(frame) {
		err = io.ErrShortWrite
	}
	if err != nil {
		l.stats.RecordWriteError()
		l.logger.Warn("command frame lost", zap.Uint16("sequence", pkt.Sequence), zap.Error(err))
		l.emit(FrameEvent{Kind: FrameWriteError, Frame: frame, Sequence: pkt.Sequence, Err: err})
		return
	}
	l.stats.RecordSent()
	l.emit(FrameEvent{Kind: FrameSent, Frame: frame, Sequence: pkt.Sequence})
}

func (l *Link) emit(ev FrameEvent) {
	if l.observer == nil {
		return
	}
	if ev.Frame != nil {
		ev.Frame = append([]byte(nil), ev.Frame...)
	}
	l.observer(ev)
}

// NewOutPacket maps committed settings and the acknowledge mask onto a
// command frame
func NewOutPacket(seq uint16, s settings.Settings, ackBits uint32) ventproto.OutPacket {
	return ventproto.OutPacket{
		Sequence:       seq,
		Version:        ventproto.ProtocolVersion,
		Type:           ventproto.PacketTypeCommand,
		Mode:           s.Mode,
		RunState:       s.RunState,
		Command:        ventproto.CommandSettings,
		RespRateSet:    s.RespRate,
		TidalVolumeSet: int(ventproto.MLToECU(float64(s.TidalVolume))),
		IERatioSet:     ventproto.IEFractionToFixed(s.IEFraction()),
		PressureSet:    int(ventproto.CmH2OToECU(s.Pressure)),
		HighPressure:   int(ventproto.CmH2OToECU(s.HighPressure)),
		LowPressure:    int(ventproto.CmH2OToECU(s.LowPressure)),
		HighVolume:     s.HighVolume,
		HighRespRate:   s.HighRespRate,
		AlarmBits:      ackBits,
	}
}
