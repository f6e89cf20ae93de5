// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package eventlog

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// Timestamps keep sub-second precision on disk
var encMode, _ = cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()

// FileSink appends records to a file as a CBOR sequence
type FileSink struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

// NewFileSink opens path for appending, creating it if needed
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log %s: %w", path, err)
	}
	return &FileSink{f: f, path: path}, nil
}

// Write encodes and appends records
func (s *FileSink) Write(records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// One write per batch
	var data []byte
	for _, r := range records {
		b, err := encMode.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
		data = append(data, b...)
	}
	if _, err := s.f.Write(data); err != nil {
		return fmt.Errorf("failed to write event log %s: %w", s.path, err)
	}
	return s.f.Sync()
}

// Close closes the file
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}

// ReadFile decodes every record in a CBOR event log file
func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []Record
	dec := cbor.NewDecoder(f)
	for {
		var r Record
		if err := dec.Decode(&r); err != nil {
			if errors.Is(err, io.EOF) {
				return records, nil
			}
			return records, fmt.Errorf("failed to decode event %d: %w", len(records), err)
		}
		records = append(records, r)
	}
}
