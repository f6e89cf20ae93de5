// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package ventproto implements the fixed-length binary protocol spoken between
// the ventilator UI and its ECU.
//
// Every frame starts with a 4-byte header (sequence, version, packet type) and
// ends with a little-endian CRC-16 over all preceding bytes. Inbound frames
// (ECU → UI) carry telemetry; outbound frames (UI → ECU) carry the committed
// settings and the alarm acknowledge mask. Fields are little-endian throughout.
package ventproto

import "errors"

// Protocol version carried in byte 2 of every frame
const ProtocolVersion = 2

// Frame sizes (including header and CRC)
const (
	HeaderSize    = 4
	CRCSize       = 2
	InPacketSize  = 67
	OutPacketSize = 30
)

// CRC-16 configuration (poly 0x1021, init 0xFFFF, no reflection)
const (
	crcPolynomial = 0x1021
	crcInitial    = 0xFFFF
)

// Packet types
const (
	PacketTypeData    = 0x01 // ECU → UI telemetry
	PacketTypeCommand = 0x02 // UI → ECU settings command
)

// Command values for OutPacket.Command
const (
	CommandNone     = 0x00
	CommandSettings = 0x01
)

// Inbound field offsets
const (
	inOffSequence     = 0
	inOffVersion      = 2
	inOffType         = 3
	inOffMode         = 4
	inOffRespRateMeas = 5
	inOffRespRateSet  = 9
	inOffTidalMeas    = 13
	inOffTidalSet     = 17
	inOffIEMeas       = 21
	inOffIESet        = 25
	inOffPEEP         = 29
	inOffPeak         = 33
	inOffPlateau      = 37
	inOffPressure     = 41
	inOffFlow         = 45
	inOffVolumeIn     = 49
	inOffVolumeEx     = 53
	inOffControlState = 57
	inOffBattery      = 58
	inOffReserved     = 59
	inOffAlarmBits    = 61
	inOffCRC          = 65
)

// Sentinel errors
var (
	ErrFrameLength        = errors.New("frame length mismatch")
	ErrUnsupportedVersion = errors.New("unsupported protocol version")
	ErrPacketType         = errors.New("unexpected packet type")
	ErrIEOutOfRange       = errors.New("I:E fixed-point value out of range")
	ErrFieldRange         = errors.New("field value does not fit wire width")
	ErrCRCMismatch        = errors.New("CRC mismatch")
)

// VentMode is the ventilation mode carried in bits 0-6 of the mode byte
type VentMode uint8

// Ventilation modes
const (
	ModeVolumeControl   VentMode = 0x00
	ModePressureControl VentMode = 0x01
	ModePressureSupport VentMode = 0x02
	ModeSIMV            VentMode = 0x03
)

// Valid reports whether the mode is one the UI knows how to display
func (m VentMode) Valid() bool {
	return m <= ModeSIMV
}

func (m VentMode) String() string {
	switch m {
	case ModeVolumeControl:
		return "VC"
	case ModePressureControl:
		return "PC"
	case ModePressureSupport:
		return "PS"
	case ModeSIMV:
		return "SIMV"
	default:
		return "UNKNOWN"
	}
}

// RunState is carried in bit 7 of the mode byte
type RunState uint8

// Run states
const (
	RunStopped RunState = 0
	RunRunning RunState = 1
)

func (r RunState) String() string {
	if r == RunRunning {
		return "RUNNING"
	}
	return "STOPPED"
}

// ControlState is the ECU breathing-cycle state reported in telemetry
type ControlState uint8

// Control states
const (
	ControlIdle ControlState = iota
	ControlInhale
	ControlPlateau
	ControlExhale
	ControlPEEP
	ControlFault
)

// Valid reports whether the control state is known
func (c ControlState) Valid() bool {
	return c <= ControlFault
}

func (c ControlState) String() string {
	names := []string{"IDLE", "INHALE", "PLATEAU", "EXHALE", "PEEP", "FAULT"}
	if int(c) < len(names) {
		return names[c]
	}
	return "UNKNOWN"
}
