// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads ventilink settings from VENTILINK_* environment
// variables. Command-line flags override the loaded values.
package config

import (
	"errors"
	"os"
	"strconv"
	"time"
)

// Config is the full runtime configuration
type Config struct {
	Serial    SerialConfig
	WebSocket WebSocketConfig
	Link      LinkConfig
	EventLog  EventLogConfig
	Log       LogConfig
}

// SerialConfig configures the local serial port
type SerialConfig struct {
	Port         string
	Baud         int
	ReadTimeout  time.Duration
	ReadAttempts int
}

// WebSocketConfig configures a bridged connection. The password is read
// separately and never stored here.
type WebSocketConfig struct {
	URL         string
	Username    string
	NoSSLVerify bool
}

// LinkConfig configures session behaviour
type LinkConfig struct {
	StrictSequence bool
	Passive        bool
	ResyncAfter    int
	FlushInput     bool
}

// EventLogConfig configures event persistence
type EventLogConfig struct {
	Path         string
	SQLitePath   string
	PatientID    string
	FlushEvery   int
	Capacity     int
	MQTTBroker   string
	MQTTTopic    string
	MQTTClientID string
	MQTTUsername string
	MQTTPassword string
}

// LogConfig configures the structured logger
type LogConfig struct {
	Level  string
	Format string
	File   string
}

// Load reads the environment, falling back to defaults
func Load() *Config {
	return &Config{
		Serial: SerialConfig{
			Port:         getEnv("VENTILINK_SERIAL_PORT", ""),
			Baud:         getEnvInt("VENTILINK_SERIAL_BAUD", 115200),
			ReadTimeout:  getEnvDuration("VENTILINK_SERIAL_READ_TIMEOUT", 100*time.Millisecond),
			ReadAttempts: getEnvInt("VENTILINK_SERIAL_READ_ATTEMPTS", 5),
		},
		WebSocket: WebSocketConfig{
			URL:         getEnv("VENTILINK_WS_URL", ""),
			Username:    getEnv("VENTILINK_WS_USERNAME", ""),
			NoSSLVerify: getEnvBool("VENTILINK_WS_NO_SSL_VERIFY", false),
		},
		Link: LinkConfig{
			StrictSequence: getEnvBool("VENTILINK_STRICT_SEQUENCE", false),
			Passive:        getEnvBool("VENTILINK_PASSIVE", false),
			ResyncAfter:    getEnvInt("VENTILINK_RESYNC_AFTER", 3),
			FlushInput:     getEnvBool("VENTILINK_FLUSH_INPUT", true),
		},
		EventLog: EventLogConfig{
			Path:         getEnv("VENTILINK_EVENT_LOG", ""),
			SQLitePath:   getEnv("VENTILINK_EVENT_DB", ""),
			PatientID:    getEnv("VENTILINK_PATIENT_ID", "unassigned"),
			FlushEvery:   getEnvInt("VENTILINK_EVENT_FLUSH_EVERY", 16),
			Capacity:     getEnvInt("VENTILINK_EVENT_CAPACITY", 1024),
			MQTTBroker:   getEnv("VENTILINK_MQTT_BROKER", ""),
			MQTTTopic:    getEnv("VENTILINK_MQTT_TOPIC", "ventilink/events"),
			MQTTClientID: getEnv("VENTILINK_MQTT_CLIENT_ID", "ventilink"),
			MQTTUsername: getEnv("VENTILINK_MQTT_USERNAME", ""),
			MQTTPassword: getEnv("VENTILINK_MQTT_PASSWORD", ""),
		},
		Log: LogConfig{
			Level:  getEnv("VENTILINK_LOG_LEVEL", "info"),
			Format: getEnv("VENTILINK_LOG_FORMAT", "console"),
			File:   getEnv("VENTILINK_LOG_FILE", ""),
		},
	}
}

// Validate checks values that would make a session unusable
func (c *Config) Validate() error {
	if c.Serial.Port == "" && c.WebSocket.URL == "" {
		return errors.New("either --port or --url must be specified")
	}
	if c.Serial.Port != "" && c.WebSocket.URL != "" {
		return errors.New("--port and --url are mutually exclusive")
	}
	if c.Serial.Baud <= 0 {
		return errors.New("baud rate must be positive")
	}
	if c.Serial.ReadAttempts < 1 {
		return errors.New("read attempts must be at least 1")
	}
	if c.Link.ResyncAfter < 1 {
		return errors.New("resync-after must be at least 1")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
