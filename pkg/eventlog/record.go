// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package eventlog keeps the structured record of clinically relevant
// events (alarms, acknowledgments, settings changes, link state) and flushes
// it in batches to durable sinks.
package eventlog

import "time"

// Kind classifies a record
type Kind string

const (
	KindAlarmRaised       Kind = "alarm_raised"
	KindAlarmAcknowledged Kind = "alarm_acknowledged"
	KindAlarmCleared      Kind = "alarm_cleared"
	KindSettingsApplied   Kind = "settings_applied"
	KindLinkUp            Kind = "link_up"
	KindLinkDown          Kind = "link_down"
)

// Record is one logged event
type Record struct {
	PatientID string    `cbor:"1,keyasint" json:"patient_id"`
	SessionID string    `cbor:"2,keyasint,omitempty" json:"session_id,omitempty"`
	Timestamp time.Time `cbor:"3,keyasint" json:"timestamp"`
	Type      Kind      `cbor:"4,keyasint" json:"type"`
	Message   string    `cbor:"5,keyasint" json:"message"`
}

// Sink persists batches of records
type Sink interface {
	Write(records []Record) error
	Close() error
}
