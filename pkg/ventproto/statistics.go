// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ventproto

import (
	"fmt"
	"sync"
	"time"
)

// Statistics tracks frame counters and error rates for one link session.
// It is safe for concurrent use: the read loop updates it while the UI reads.
type Statistics struct {
	mu sync.Mutex
	s  StatisticsSnapshot
}

// StatisticsSnapshot is a point-in-time copy of the counters
type StatisticsSnapshot struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Inbound
	TotalFrames    uint64
	ValidFrames    uint64
	CRCErrors      uint64
	ShortFrames    uint64
	DecodeErrors   uint64
	SequenceErrors uint64
	ResyncBytes    uint64
	Anomalies      uint64

	// Outbound
	FramesSent  uint64
	WriteErrors uint64

	// Rates (calculated)
	PacketRate float64 // frames/sec
	ErrorRate  float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{s: StatisticsSnapshot{StartTime: now, LastUpdateTime: now}}
}

func (st *Statistics) update(f func(s *StatisticsSnapshot)) {
	st.mu.Lock()
	defer st.mu.Unlock()
	f(&st.s)
	st.s.LastUpdateTime = time.Now()
}

// RecordValid counts a frame that passed CRC and decoded cleanly
func (st *Statistics) RecordValid(anomalies int) {
	st.update(func(s *StatisticsSnapshot) {
		s.TotalFrames++
		s.ValidFrames++
		s.Anomalies += uint64(anomalies)
	})
}

// RecordCRCError counts a frame dropped for a CRC mismatch
func (st *Statistics) RecordCRCError() {
	st.update(func(s *StatisticsSnapshot) {
		s.TotalFrames++
		s.CRCErrors++
	})
}

// RecordShortFrame counts a partial frame abandoned after the re-read limit
func (st *Statistics) RecordShortFrame() {
	st.update(func(s *StatisticsSnapshot) {
		s.TotalFrames++
		s.ShortFrames++
	})
}

// RecordDecodeError counts a CRC-valid frame whose fields failed to decode
func (st *Statistics) RecordDecodeError() {
	st.update(func(s *StatisticsSnapshot) {
		s.TotalFrames++
		s.DecodeErrors++
	})
}

// RecordSequenceError counts a sequence discontinuity
func (st *Statistics) RecordSequenceError() {
	st.update(func(s *StatisticsSnapshot) { s.SequenceErrors++ })
}

// RecordResyncBytes counts bytes skipped while searching for frame alignment
func (st *Statistics) RecordResyncBytes(n int) {
	st.update(func(s *StatisticsSnapshot) { s.ResyncBytes += uint64(n) })
}

// RecordSent counts an outbound frame written in full
func (st *Statistics) RecordSent() {
	st.update(func(s *StatisticsSnapshot) { s.FramesSent++ })
}

// RecordWriteError counts an outbound frame lost to a write failure
func (st *Statistics) RecordWriteError() {
	st.update(func(s *StatisticsSnapshot) { s.WriteErrors++ })
}

// Snapshot returns a copy of the counters with rates calculated
func (st *Statistics) Snapshot() StatisticsSnapshot {
	st.mu.Lock()
	defer st.mu.Unlock()
	snap := st.s
	snap.calculateRates()
	return snap
}

// Errors returns the number of inbound frames that were dropped
func (s StatisticsSnapshot) Errors() uint64 {
	return s.CRCErrors + s.ShortFrames + s.DecodeErrors
}

func (s *StatisticsSnapshot) calculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.PacketRate = float64(s.TotalFrames) / elapsed
		s.ErrorRate = float64(s.Errors()) / elapsed
	}
}

// String returns a formatted statistics summary
func (st *Statistics) String() string {
	return st.Snapshot().String()
}

// String returns a formatted statistics summary
func (s StatisticsSnapshot) String() string {
	var validPercent, crcPercent, shortPercent, decodePercent float64
	if s.TotalFrames > 0 {
		validPercent = float64(s.ValidFrames) * 100.0 / float64(s.TotalFrames)
		crcPercent = float64(s.CRCErrors) * 100.0 / float64(s.TotalFrames)
		shortPercent = float64(s.ShortFrames) * 100.0 / float64(s.TotalFrames)
		decodePercent = float64(s.DecodeErrors) * 100.0 / float64(s.TotalFrames)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Frames:    %8d\n", s.TotalFrames)
	result += fmt.Sprintf("Valid Frames:    %8d (%.1f%%)\n", s.ValidFrames, validPercent)

	if s.CRCErrors > 0 {
		result += fmt.Sprintf("CRC Errors:      %8d (%.1f%%)\n", s.CRCErrors, crcPercent)
	}
	if s.ShortFrames > 0 {
		result += fmt.Sprintf("Short Frames:    %8d (%.1f%%)\n", s.ShortFrames, shortPercent)
	}
	if s.DecodeErrors > 0 {
		result += fmt.Sprintf("Decode Errors:   %8d (%.1f%%)\n", s.DecodeErrors, decodePercent)
	}
	if s.SequenceErrors > 0 {
		result += fmt.Sprintf("Sequence Gaps:   %8d\n", s.SequenceErrors)
	}
	if s.ResyncBytes > 0 {
		result += fmt.Sprintf("Resync Bytes:    %8d\n", s.ResyncBytes)
	}
	if s.Anomalies > 0 {
		result += fmt.Sprintf("Anomalies:       %8d\n", s.Anomalies)
	}

	result += fmt.Sprintf("Frames Sent:     %8d\n", s.FramesSent)
	if s.WriteErrors > 0 {
		result += fmt.Sprintf("Write Errors:    %8d\n", s.WriteErrors)
	}
	result += fmt.Sprintf("Packet Rate:     %8.1f frames/sec\n", s.PacketRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}
