// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package eventlog

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Defaults
const (
	DefaultCapacity   = 1024
	DefaultFlushEvery = 16
)

type entry struct {
	seq    uint64
	record Record
}

// Log buffers records in a bounded ring and hands them to the sink every
// FlushEvery records. Records stay buffered until a flush succeeds; when the
// ring is full the oldest record is dropped.
//
// Batches are written by a background flusher, so Record never waits on the
// sink.
type Log struct {
	mu         sync.Mutex
	buf        []entry
	nextSeq    uint64
	dropped    uint64
	capacity   int
	flushEvery int
	patientID  string
	sessionID  string

	flushMu sync.Mutex
	sink    Sink
	logger  *zap.Logger
	now     func() time.Time

	kick      chan struct{}
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// Option configures a Log
type Option func(*Log)

// WithPatientID tags every record with the patient identifier
func WithPatientID(id string) Option {
	return func(l *Log) { l.patientID = id }
}

// WithSessionID overrides the generated session identifier
func WithSessionID(id string) Option {
	return func(l *Log) { l.sessionID = id }
}

// WithCapacity bounds the number of unflushed records kept
func WithCapacity(n int) Option {
	return func(l *Log) { l.capacity = n }
}

// WithFlushEvery sets the batch size that triggers a flush
func WithFlushEvery(n int) Option {
	return func(l *Log) { l.flushEvery = n }
}

// WithLogger sets the logger for flush failures
func WithLogger(logger *zap.Logger) Option {
	return func(l *Log) { l.logger = logger }
}

// WithClock overrides the record timestamp source
func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

// New creates a log writing to sink. A nil sink keeps records in memory only.
func New(sink Sink, opts ...Option) *Log {
	l := &Log{
		capacity:   DefaultCapacity,
		flushEvery: DefaultFlushEvery,
		sessionID:  uuid.New().String(),
		sink:       sink,
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.capacity < 1 {
		l.capacity = 1
	}
	if l.flushEvery < 1 {
		l.flushEvery = 1
	}
	if l.flushEvery > l.capacity {
		l.flushEvery = l.capacity
	}
	if l.sink != nil {
		l.kick = make(chan struct{}, 1)
		l.stop = make(chan struct{})
		l.done = make(chan struct{})
		go l.flusher()
	}
	return l
}

func (l *Log) flusher() {
	defer close(l.done)
	for {
		select {
		case <-l.stop:
			return
		case <-l.kick:
			if err := l.Flush(); err != nil {
				l.logger.Warn("event log flush failed", zap.Error(err))
			}
		}
	}
}

// SessionID returns the identifier shared by every record of this log
func (l *Log) SessionID() string {
	return l.sessionID
}

// Record appends an event and wakes the flusher if the batch is full
func (l *Log) Record(kind Kind, message string) {
	l.mu.Lock()
	rec := Record{
		PatientID: l.patientID,
		SessionID: l.sessionID,
		Timestamp: l.now(),
		Type:      kind,
		Message:   message,
	}
	if len(l.buf) == l.capacity {
		l.buf = l.buf[1:]
		l.dropped++
	}
	l.buf = append(l.buf, entry{seq: l.nextSeq, record: rec})
	l.nextSeq++
	due := len(l.buf) >= l.flushEvery
	l.mu.Unlock()

	if due && l.kick != nil {
		select {
		case l.kick <- struct{}{}:
		default:
			// A flush is already due
		}
	}
}

// Flush writes every buffered record to the sink
func (l *Log) Flush() error {
	l.flushMu.Lock()
	defer l.flushMu.Unlock()

	if l.sink == nil {
		return nil
	}

	l.mu.Lock()
	if len(l.buf) == 0 {
		l.mu.Unlock()
		return nil
	}
	batch := make([]Record, len(l.buf))
	for i, e := range l.buf {
		batch[i] = e.record
	}
	last := l.buf[len(l.buf)-1].seq
	l.mu.Unlock()

	if err := l.sink.Write(batch); err != nil {
		return err
	}

	// Records appended while the sink was writing stay buffered
	l.mu.Lock()
	i := 0
	for i < len(l.buf) && l.buf[i].seq <= last {
		i++
	}
	l.buf = l.buf[i:]
	l.mu.Unlock()
	return nil
}

// Buffered returns the records not yet flushed
func (l *Log) Buffered() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Record, len(l.buf))
	for i, e := range l.buf {
		out[i] = e.record
	}
	return out
}

// Dropped returns the number of records lost to a full ring
func (l *Log) Dropped() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

// Close stops the flusher, waiting for a write in progress, then flushes
// what is left and closes the sink
func (l *Log) Close() error {
	if l.stop != nil {
		l.closeOnce.Do(func() { close(l.stop) })
		<-l.done
	}
	err := l.Flush()
	if l.sink != nil {
		if cerr := l.sink.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
