// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package settings

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/ventilink/pkg/ventproto"
)

type recordingSink struct {
	mu   sync.Mutex
	seen []Settings
}

func (r *recordingSink) OnSettingsChanged(s Settings) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, s)
}

func TestDefault_Valid(t *testing.T) {
	require.NoError(t, Default().Validate())
	assert.Equal(t, "1:2", Default().IELabel())
	assert.InDelta(t, 0.5, Default().IEFraction(), 1e-9)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *Settings)
	}{
		{"unknown mode", func(s *Settings) { s.Mode = 7 }},
		{"unknown run state", func(s *Settings) { s.RunState = 2 }},
		{"resp rate low", func(s *Settings) { s.RespRate = MinRespRate - 1 }},
		{"resp rate high", func(s *Settings) { s.RespRate = MaxRespRate + 1 }},
		{"tidal volume", func(s *Settings) { s.TidalVolume = 10 }},
		{"ie index negative", func(s *Settings) { s.IERatio = -1 }},
		{"ie index past table", func(s *Settings) { s.IERatio = len(IERatioTable) }},
		{"pressure", func(s *Settings) { s.Pressure = 100 }},
		{"limits inverted", func(s *Settings) { s.LowPressure, s.HighPressure = 30, 20 }},
		{"high volume below tidal", func(s *Settings) { s.HighVolume = s.TidalVolume - 1 }},
		{"high rate below rate", func(s *Settings) { s.HighRespRate = s.RespRate - 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Default()
			tt.mutate(&s)
			assert.ErrorIs(t, s.Validate(), ErrInvalid)
		})
	}
}

func TestIERatioTable(t *testing.T) {
	require.Len(t, IERatioTable, 7)
	for i := 1; i < len(IERatioTable); i++ {
		assert.Greater(t, IERatioTable[i].Fraction, IERatioTable[i-1].Fraction)
	}
	s := Settings{IERatio: 99}
	assert.Equal(t, 0.0, s.IEFraction())
	assert.Equal(t, "--", s.IELabel())
}

// ============================================================
// Store Tests
// ============================================================

func TestStore_StagedNeverCommittedUntilApply(t *testing.T) {
	sink := &recordingSink{}
	st := NewStore(Default())
	st.SetSink(sink)

	require.NoError(t, st.Stage(func(s *Settings) { s.RespRate = 20 }))
	assert.Equal(t, 15, st.Committed().RespRate)
	assert.Equal(t, 20, st.Staged().RespRate)
	assert.True(t, st.Dirty())
	assert.Empty(t, sink.seen)

	committed, err := st.Apply()
	require.NoError(t, err)
	assert.Equal(t, 20, committed.RespRate)
	assert.Equal(t, 20, st.Committed().RespRate)
	assert.False(t, st.Dirty())
	require.Len(t, sink.seen, 1)
	assert.Equal(t, 20, sink.seen[0].RespRate)
}

func TestStore_Discard(t *testing.T) {
	st := NewStore(Default())
	require.NoError(t, st.Stage(func(s *Settings) {
		s.TidalVolume = 600
		s.RunState = ventproto.RunRunning
	}))
	st.Discard()
	assert.Equal(t, st.Committed(), st.Staged())
	assert.Equal(t, 500, st.Staged().TidalVolume)
}

func TestStore_StageRejectsInvalid(t *testing.T) {
	st := NewStore(Default())
	err := st.Stage(func(s *Settings) { s.RespRate = 0 })
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Equal(t, Default(), st.Staged())
}

func TestStore_NoAliasing(t *testing.T) {
	st := NewStore(Default())
	require.NoError(t, st.Stage(func(s *Settings) { s.RespRate = 22 }))
	_, err := st.Apply()
	require.NoError(t, err)

	// Mutating returned copies touches neither side
	c := st.Committed()
	c.RespRate = 40
	assert.Equal(t, 22, st.Committed().RespRate)
	assert.Equal(t, 22, st.Staged().RespRate)

	// A new edit on staged leaves committed as applied
	require.NoError(t, st.Stage(func(s *Settings) { s.RespRate = 30 }))
	assert.Equal(t, 22, st.Committed().RespRate)
	assert.Equal(t, 30, st.Staged().RespRate)
}

func TestStore_SinkMayReadStore(t *testing.T) {
	st := NewStore(Default())
	done := make(chan Settings, 1)
	st.SetSink(sinkFunc(func(s Settings) { done <- st.Committed() }))

	require.NoError(t, st.Stage(func(s *Settings) { s.HighRespRate = 35 }))
	_, err := st.Apply()
	require.NoError(t, err)
	assert.Equal(t, 35, (<-done).HighRespRate)
}

type sinkFunc func(Settings)

func (f sinkFunc) OnSettingsChanged(s Settings) { f(s) }

func TestIERatioIndex(t *testing.T) {
	i, ok := IERatioIndex("1:2")
	require.True(t, ok)
	assert.Equal(t, DefaultIERatio, i)

	i, ok = IERatioIndex("2:1")
	require.True(t, ok)
	assert.Equal(t, len(IERatioTable)-1, i)

	_, ok = IERatioIndex("3:1")
	assert.False(t, ok)
}
