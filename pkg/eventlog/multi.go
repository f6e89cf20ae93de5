// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package eventlog

import "errors"

// MultiSink writes every batch to each sink. A failure in any sink fails the
// batch, so sinks that succeeded may see it again on retry.
type MultiSink []Sink

func (m MultiSink) Write(records []Record) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(records); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiSink) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
