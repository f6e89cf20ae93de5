// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ventproto

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatistics_Counters(t *testing.T) {
	st := NewStatistics()
	st.RecordValid(0)
	st.RecordValid(2)
	st.RecordCRCError()
	st.RecordShortFrame()
	st.RecordDecodeError()
	st.RecordSequenceError()
	st.RecordResyncBytes(5)
	st.RecordSent()
	st.RecordWriteError()

	s := st.Snapshot()
	assert.Equal(t, uint64(5), s.TotalFrames)
	assert.Equal(t, uint64(2), s.ValidFrames)
	assert.Equal(t, uint64(2), s.Anomalies)
	assert.Equal(t, uint64(3), s.Errors())
	assert.Equal(t, uint64(1), s.SequenceErrors)
	assert.Equal(t, uint64(5), s.ResyncBytes)
	assert.Equal(t, uint64(1), s.FramesSent)
	assert.Equal(t, uint64(1), s.WriteErrors)
	assert.False(t, s.LastUpdateTime.Before(s.StartTime))
}

func TestStatistics_Concurrent(t *testing.T) {
	st := NewStatistics()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				st.RecordValid(0)
				_ = st.Snapshot()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, uint64(800), st.Snapshot().ValidFrames)
}

func TestStatistics_String(t *testing.T) {
	st := NewStatistics()
	st.RecordValid(0)
	out := st.String()
	assert.True(t, strings.Contains(out, "Total Frames:"))
	assert.False(t, strings.Contains(out, "CRC Errors"), "zero counters are omitted")

	st.RecordCRCError()
	assert.True(t, strings.Contains(st.String(), "CRC Errors:"))
}
