// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package alarm tracks ECU fault conditions reported in the telemetry alarm
// bitfield and queues them for operator acknowledgment in priority order.
package alarm

import "fmt"

// Type identifies an alarm condition. Its value is the bit position of the
// condition in the 32-bit alarm field.
type Type uint8

// Alarm types. Bits 13-15, 18 and 20-31 are reserved.
const (
	ACPowerLoss         Type = 0
	LowBattery          Type = 1
	CriticalBattery     Type = 2
	HighPressure        Type = 3
	LowPressure         Type = 4
	HighTidalVolume     Type = 5
	LowTidalVolume      Type = 6
	HighRespRate        Type = 7
	LowRespRate         Type = 8
	PressureSensorFault Type = 9
	FlowSensorFault     Type = 10
	ECUCommsTimeout     Type = 11
	ECUCommsCRCError    Type = 12
	ActuatorFault       Type = 16
	CircuitDisconnect   Type = 17
	SetpointMismatch    Type = 19
)

type definition struct {
	name     string
	message  string
	priority int
}

// Lower priority value is serviced first.
var definitions = map[Type]definition{
	ACPowerLoss:         {"AC_POWER_LOSS", "AC power lost, running on battery", 0},
	CircuitDisconnect:   {"CIRCUIT_DISCONNECT", "Patient circuit disconnected", 1},
	CriticalBattery:     {"CRITICAL_BATTERY", "Battery critically low", 2},
	HighPressure:        {"HIGH_PRESSURE", "High airway pressure", 3},
	ActuatorFault:       {"ACTUATOR_FAULT", "Actuator fault", 4},
	ECUCommsTimeout:     {"ECU_COMMS_TIMEOUT", "ECU communication timeout", 5},
	PressureSensorFault: {"PRESSURE_SENSOR_FAULT", "Pressure sensor fault", 6},
	FlowSensorFault:     {"FLOW_SENSOR_FAULT", "Flow sensor fault", 7},
	LowPressure:         {"LOW_PRESSURE", "Low airway pressure", 8},
	ECUCommsCRCError:    {"ECU_COMMS_CRC_ERROR", "ECU communication CRC errors", 9},
	LowBattery:          {"LOW_BATTERY", "Battery low", 10},
	HighTidalVolume:     {"HIGH_TIDAL_VOLUME", "High tidal volume", 11},
	LowTidalVolume:      {"LOW_TIDAL_VOLUME", "Low tidal volume", 12},
	HighRespRate:        {"HIGH_RESP_RATE", "High respiratory rate", 13},
	LowRespRate:         {"LOW_RESP_RATE", "Low respiratory rate", 14},
	SetpointMismatch:    {"SETPOINT_MISMATCH", "Setpoint mismatch between UI and ECU", 15},
}

// KnownMask has a bit set for every recognized alarm type
var KnownMask uint32

func init() {
	for t := range definitions {
		KnownMask |= t.Mask()
	}
}

// TypeForBit returns the alarm type carried by bit, or false for reserved bits
func TypeForBit(bit int) (Type, bool) {
	if bit < 0 || bit > 31 {
		return 0, false
	}
	t := Type(bit)
	_, ok := definitions[t]
	return t, ok
}

// Types returns every recognized type in bit order
func Types() []Type {
	types := make([]Type, 0, len(definitions))
	for bit := 0; bit < 32; bit++ {
		if t, ok := TypeForBit(bit); ok {
			types = append(types, t)
		}
	}
	return types
}

// Valid reports whether t is a recognized alarm type
func (t Type) Valid() bool {
	_, ok := definitions[t]
	return ok
}

// Bit returns the bit position of t in the alarm field
func (t Type) Bit() int {
	return int(t)
}

// Mask returns t as a single-bit mask
func (t Type) Mask() uint32 {
	if t > 31 {
		return 0
	}
	return 1 << uint(t)
}

// Priority returns the static priority of t (0 is most urgent).
// Unknown types sort after every known type.
func (t Type) Priority() int {
	if d, ok := definitions[t]; ok {
		return d.priority
	}
	return len(definitions)
}

// Message returns the operator-facing description of t
func (t Type) Message() string {
	if d, ok := definitions[t]; ok {
		return d.message
	}
	return fmt.Sprintf("Unknown alarm (bit %d)", t)
}

func (t Type) String() string {
	if d, ok := definitions[t]; ok {
		return d.name
	}
	return fmt.Sprintf("UNKNOWN_%d", t)
}
