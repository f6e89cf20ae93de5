// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Thermoquad/ventilink/pkg/eventlog"
	"github.com/Thermoquad/ventilink/pkg/link"
)

// openEventLog builds the event log from every configured sink. With no
// sink configured, events stay in memory.
func openEventLog() (*eventlog.Log, error) {
	var sinks eventlog.MultiSink
	fail := func(err error) (*eventlog.Log, error) {
		_ = sinks.Close()
		return nil, err
	}

	if cfg.EventLog.Path != "" {
		fs, err := eventlog.NewFileSink(cfg.EventLog.Path)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, fs)
	}
	if cfg.EventLog.SQLitePath != "" {
		ss, err := eventlog.NewSQLiteSink(cfg.EventLog.SQLitePath)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, ss)
	}
	if cfg.EventLog.MQTTBroker != "" {
		client, err := eventlog.NewMQTTClient(cfg.EventLog.MQTTBroker, cfg.EventLog.MQTTClientID,
			cfg.EventLog.MQTTUsername, cfg.EventLog.MQTTPassword)
		if err != nil {
			return fail(fmt.Errorf("event log: %w", err))
		}
		sinks = append(sinks, eventlog.NewMQTTSink(client, cfg.EventLog.MQTTTopic))
	}

	var sink eventlog.Sink
	switch len(sinks) {
	case 0:
	case 1:
		sink = sinks[0]
	default:
		sink = sinks
	}

	events := eventlog.New(sink,
		eventlog.WithPatientID(cfg.EventLog.PatientID),
		eventlog.WithCapacity(cfg.EventLog.Capacity),
		eventlog.WithFlushEvery(cfg.EventLog.FlushEvery),
		eventlog.WithLogger(logger.Named("eventlog")),
	)
	logger.Info("event log opened",
		zap.String("session_id", events.SessionID()),
		zap.String("patient_id", cfg.EventLog.PatientID),
		zap.Int("sinks", len(sinks)))
	return events, nil
}

// linkOptions maps the configuration onto link options. extra is applied
// last and wins.
func linkOptions(extra ...link.Option) []link.Option {
	opts := []link.Option{
		link.WithLogger(logger.Named("link")),
		link.WithReadAttempts(cfg.Serial.ReadAttempts),
		link.WithResyncAfter(cfg.Link.ResyncAfter),
		link.WithStrictSequence(cfg.Link.StrictSequence),
		link.WithPassive(cfg.Link.Passive),
		link.WithFlush(cfg.Link.FlushInput),
	}
	return append(opts, extra...)
}
