// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package alarm

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type recordingSink struct {
	mu    sync.Mutex
	masks []uint32
}

func (s *recordingSink) SetAckBits(bits uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.masks = append(s.masks, bits)
}

func TestManager_EmptyQueue(t *testing.T) {
	m := NewManager()
	assert.False(t, m.IsPending())

	_, err := m.HighestPriority()
	assert.ErrorIs(t, err, ErrNoPendingAlarm)

	_, ok := m.Acknowledge()
	assert.False(t, ok)
}

func TestManager_PriorityOrdering(t *testing.T) {
	sink := &recordingSink{}
	m := NewManager(WithAckSink(sink))

	m.SetActiveAlarms(ACPowerLoss.Mask() | SetpointMismatch.Mask())

	a, err := m.HighestPriority()
	require.NoError(t, err)
	assert.Equal(t, ACPowerLoss, a.Type)

	acked, ok := m.Acknowledge()
	require.True(t, ok)
	assert.Equal(t, ACPowerLoss, acked.Type)

	a, err = m.HighestPriority()
	require.NoError(t, err)
	assert.Equal(t, SetpointMismatch, a.Type)

	assert.Equal(t, []uint32{ACPowerLoss.Mask()}, sink.masks)
}

func TestManager_RetriggerAfterAck(t *testing.T) {
	sink := &recordingSink{}
	m := NewManager(WithAckSink(sink))

	added := m.SetActiveAlarms(1 << 3)
	require.Len(t, added, 1)
	first := added[0]
	assert.Equal(t, HighPressure, first.Type)
	assert.True(t, m.IsPending())

	_, ok := m.Acknowledge()
	require.True(t, ok)
	assert.Equal(t, uint32(1<<3), m.AckBits())
	assert.False(t, m.IsPending())
	assert.Equal(t, []uint32{1 << 3}, sink.masks)

	// Still active and acknowledged: suppressed
	assert.Empty(t, m.SetActiveAlarms(1<<3))
	assert.False(t, m.IsPending())

	// Clears, then re-occurs
	m.SetActiveAlarms(0)
	assert.Equal(t, uint32(0), m.AckBits())

	added = m.SetActiveAlarms(1 << 3)
	require.Len(t, added, 1)
	assert.Equal(t, HighPressure, added[0].Type)
	assert.NotEqual(t, first.ID, added[0].ID)
	assert.True(t, m.IsPending())
}

func TestManager_NoDuplicatePending(t *testing.T) {
	m := NewManager()
	for i := 0; i < 5; i++ {
		m.SetActiveAlarms(LowBattery.Mask() | HighPressure.Mask())
	}
	assert.Len(t, m.Pending(), 2)

	// A pending alarm survives its bit clearing and is not duplicated on return
	m.SetActiveAlarms(0)
	m.SetActiveAlarms(LowBattery.Mask())
	pending := m.Pending()
	require.Len(t, pending, 2)
	assert.Equal(t, HighPressure, pending[0].Type)
	assert.Equal(t, LowBattery, pending[1].Type)
}

func TestManager_UnknownBitsIgnored(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	m := NewManager(WithLogger(zap.New(core)))

	added := m.SetActiveAlarms(1<<13 | 1<<18 | 1<<31 | LowPressure.Mask())
	require.Len(t, added, 1)
	assert.Equal(t, LowPressure, added[0].Type)
	assert.Equal(t, 3, logs.FilterMessage("ignoring unrecognized alarm bit").Len())

	// Already-set unknown bits are not logged again
	m.SetActiveAlarms(1<<13 | 1<<18 | 1<<31 | LowPressure.Mask())
	assert.Equal(t, 3, logs.Len())

	assert.Equal(t, uint32(1<<13|1<<18|1<<31|1<<4), m.ActiveBits())
}

func TestManager_AckMaskAccumulates(t *testing.T) {
	sink := &recordingSink{}
	m := NewManager()
	m.SetAckSink(sink)

	m.SetActiveAlarms(HighPressure.Mask() | LowTidalVolume.Mask())
	m.Acknowledge()
	m.Acknowledge()

	want := HighPressure.Mask() | LowTidalVolume.Mask()
	assert.Equal(t, []uint32{0, HighPressure.Mask(), want}, sink.masks)

	// Only the cleared condition leaves the mask, and the sink hears of it
	m.SetActiveAlarms(LowTidalVolume.Mask())
	assert.Equal(t, LowTidalVolume.Mask(), m.AckBits())
	assert.Equal(t, []uint32{0, HighPressure.Mask(), want, LowTidalVolume.Mask()}, sink.masks)

	// Unchanged mask is not pushed again
	m.SetActiveAlarms(LowTidalVolume.Mask())
	assert.Len(t, sink.masks, 4)
}

func TestManager_AckAfterConditionCleared(t *testing.T) {
	sink := &recordingSink{}
	m := NewManager(WithAckSink(sink))

	m.SetActiveAlarms(HighPressure.Mask())
	m.SetActiveAlarms(0)
	require.True(t, m.IsPending(), "pending alarm survives its condition clearing")

	acked, ok := m.Acknowledge()
	require.True(t, ok)
	assert.Equal(t, HighPressure, acked.Type)
	assert.Equal(t, uint32(0), m.AckBits(), "cleared condition is not marked acknowledged")
	assert.Equal(t, []uint32{0}, sink.masks)

	// The next occurrence alerts again
	added := m.SetActiveAlarms(HighPressure.Mask())
	require.Len(t, added, 1)
	assert.Equal(t, HighPressure, added[0].Type)
	assert.True(t, m.IsPending())
}

func TestManager_Clock(t *testing.T) {
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewManager(WithClock(func() time.Time { return fixed }))
	added := m.SetActiveAlarms(ActuatorFault.Mask())
	require.Len(t, added, 1)
	assert.Equal(t, fixed, added[0].CreatedAt)
	assert.Equal(t, "Actuator fault", added[0].Message())
	assert.Equal(t, 4, added[0].Priority())
}

func TestManager_Concurrent(t *testing.T) {
	sink := &recordingSink{}
	m := NewManager(WithAckSink(sink))
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			m.SetActiveAlarms(uint32(i) & KnownMask)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			if m.IsPending() {
				m.Acknowledge()
			}
			_ = m.Pending()
		}
	}()
	wg.Wait()

	// Invariant holds after any interleaving
	seen := make(map[Type]bool)
	for _, a := range m.Pending() {
		assert.False(t, seen[a.Type], "duplicate pending %s", a.Type)
		seen[a.Type] = true
	}

	// The last mask delivered matches the final state
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.masks) > 0 {
		assert.Equal(t, m.AckBits(), sink.masks[len(sink.masks)-1])
	}
}
