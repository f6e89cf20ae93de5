// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"errors"
	"io"
)

var (
	// ErrShortFrame means part of a frame arrived before the re-read limit
	ErrShortFrame = errors.New("short frame")
	// ErrNoData means nothing arrived before the re-read limit
	ErrNoData = errors.New("no data")
)

// ReadExactWithRetries fills buf from r. Reads that return no bytes (serial
// read timeouts) count against attempts; reads that make progress do not.
// It returns ErrShortFrame when the limit is hit with buf partly filled and
// ErrNoData when it is hit with nothing read. Reader errors are returned
// as-is unless buf was already full.
func ReadExactWithRetries(r io.Reader, buf []byte, attempts int) (int, error) {
	if attempts < 1 {
		attempts = 1
	}

	n := 0
	empty := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			if n == len(buf) {
				return n, nil
			}
			return n, err
		}
		if m == 0 {
			empty++
			if empty >= attempts {
				break
			}
		}
	}

	switch {
	case n == len(buf):
		return n, nil
	case n == 0:
		return 0, ErrNoData
	default:
		return n, ErrShortFrame
	}
}

// SequenceValid reports whether cur follows prev. Sequence 0 always starts a
// valid run and prev+1 wraps at 65536. The first frame of a session is only
// valid if it carries sequence 0.
func SequenceValid(prev, cur uint16, first bool) bool {
	if cur == 0 {
		return true
	}
	if first {
		return false
	}
	return cur == prev+1
}
