// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package alarm

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNoPendingAlarm is returned when the queue is empty.
// Callers should check IsPending first.
var ErrNoPendingAlarm = errors.New("no pending alarm")

// AckSink receives the acknowledge mask after every acknowledgment.
// The link implements it to mirror the mask into outbound frames.
type AckSink interface {
	SetAckBits(bits uint32)
}

// Manager ingests alarm bitfields and runs the acknowledge workflow.
//
// Per type the lifecycle is inactive → pending → acknowledged-active →
// inactive, and a condition that re-occurs after clearing alerts again.
type Manager struct {
	// pushMu orders acknowledge mask deliveries to the sink
	pushMu sync.Mutex

	mu      sync.Mutex
	queue   *Queue
	active  uint32
	ackBits uint32
	sink    AckSink
	logger  *zap.Logger
	now     func() time.Time
}

// Option configures a Manager
type Option func(*Manager)

// WithLogger sets the logger used for unrecognized bits and acknowledgments
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithAckSink sets the receiver for acknowledge masks
func WithAckSink(sink AckSink) Option {
	return func(m *Manager) { m.sink = sink }
}

// WithClock overrides the time source for alarm timestamps
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a manager with an empty queue
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		queue:  NewQueue(),
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetAckSink replaces the acknowledge mask receiver and sends it the
// current mask
func (m *Manager) SetAckSink(sink AckSink) {
	m.mu.Lock()
	m.sink = sink
	m.mu.Unlock()
	m.pushAckBits()
}

// pushAckBits sends the mask as it is when the push starts. Pushes are
// serialized, so the last mask delivered is never older than the last change.
func (m *Manager) pushAckBits() {
	m.pushMu.Lock()
	defer m.pushMu.Unlock()

	m.mu.Lock()
	sink := m.sink
	mask := m.ackBits
	m.mu.Unlock()

	if sink != nil {
		sink.SetAckBits(mask)
	}
}

// SetActiveAlarms ingests the current alarm field and returns the alarms it
// enqueued. A recognized set bit is enqueued unless that type is already
// pending or acknowledged. Acknowledged bits whose condition has cleared are
// then dropped from the acknowledge mask, and the sink is sent the new mask,
// so the next occurrence alerts again.
func (m *Manager) SetActiveAlarms(bits uint32) []Alarm {
	m.mu.Lock()

	for _, ev := range Diff(m.active, bits) {
		if ev.Kind == Activated && !ev.Known {
			m.logger.Warn("ignoring unrecognized alarm bit", zap.Int("bit", ev.Bit))
		}
	}

	var added []Alarm
	for _, t := range Types() {
		if bits&t.Mask() == 0 || m.ackBits&t.Mask() != 0 || m.queue.Contains(t) {
			continue
		}
		a := Alarm{ID: uuid.New().String(), Type: t, CreatedAt: m.now()}
		m.queue.Push(a)
		added = append(added, a)
		m.logger.Info("alarm raised",
			zap.String("type", t.String()),
			zap.Int("priority", t.Priority()),
			zap.String("id", a.ID))
	}

	m.active = bits
	prevAck := m.ackBits
	m.ackBits &= bits
	changed := m.ackBits != prevAck
	m.mu.Unlock()

	if changed {
		m.pushAckBits()
	}
	return added
}

// HighestPriority returns the most urgent pending alarm without removing it
func (m *Manager) HighestPriority() (Alarm, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.queue.Peek()
	if !ok {
		return Alarm{}, ErrNoPendingAlarm
	}
	return a, nil
}

// IsPending reports whether any alarm awaits acknowledgment
func (m *Manager) IsPending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queue.Len() > 0
}

// Acknowledge removes the most urgent pending alarm, marks its bit
// acknowledged if the condition is still active and emits the acknowledge
// mask to the sink. It returns false and does nothing when no alarm is
// pending.
func (m *Manager) Acknowledge() (Alarm, bool) {
	m.mu.Lock()
	a, ok := m.queue.Pop()
	if !ok {
		m.mu.Unlock()
		return Alarm{}, false
	}
	// A condition that cleared while pending stays unacknowledged so its
	// next occurrence is queued again
	m.ackBits |= a.Type.Mask() & m.active
	mask := m.ackBits
	m.mu.Unlock()

	m.logger.Info("alarm acknowledged",
		zap.String("type", a.Type.String()),
		zap.String("id", a.ID),
		zap.Uint32("ack_bits", mask))

	m.pushAckBits()
	return a, true
}

// Pending returns the pending alarms in service order
func (m *Manager) Pending() []Alarm {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queue.Items()
}

// AckBits returns the current acknowledge mask
func (m *Manager) AckBits() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ackBits
}

// ActiveBits returns the most recently ingested alarm field
func (m *Manager) ActiveBits() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}
