// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ventproto

import (
	"encoding/binary"
	"fmt"
	"time"
)

// CalculateMode packs run state into bit 7 and mode into bits 0-6
func CalculateMode(mode VentMode, run RunState) byte {
	return (byte(mode) & 0x7F) | ((byte(run) << 7) & 0x80)
}

// SplitMode is the inverse of CalculateMode
func SplitMode(b byte) (VentMode, RunState) {
	return VentMode(b & 0x7F), RunState(b >> 7)
}

// InPacket is one decoded ECU → UI telemetry frame in wire units
type InPacket struct {
	Sequence        uint16
	Version         uint8
	Type            uint8
	Mode            VentMode
	RunState        RunState
	RespRateMeas    uint32
	RespRateSet     uint32
	TidalVolumeMeas int32
	TidalVolumeSet  int32
	IEMeas          uint32
	IESet           uint32
	PEEP            int32
	PeakPressure    int32
	PlateauPressure int32
	Pressure        int32
	Flow            int32
	VolumeIn        int32
	VolumeEx        int32
	ControlState    ControlState
	BatteryLevel    uint8
	AlarmBits       uint32
	CRC             uint16
}

// UnmarshalBinary decodes a full inbound frame.
// The CRC is copied but not checked; the link validates it before decoding.
func (p *InPacket) UnmarshalBinary(buf []byte) error {
	if len(buf) != InPacketSize {
		return fmt.Errorf("%w: got %d bytes, expected %d", ErrFrameLength, len(buf), InPacketSize)
	}
	le := binary.LittleEndian

	p.Sequence = le.Uint16(buf[inOffSequence:])
	p.Version = buf[inOffVersion]
	if p.Version != ProtocolVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, p.Version)
	}
	p.Type = buf[inOffType]
	if p.Type != PacketTypeData {
		return fmt.Errorf("%w: 0x%02X", ErrPacketType, p.Type)
	}

	p.Mode, p.RunState = SplitMode(buf[inOffMode])
	p.RespRateMeas = le.Uint32(buf[inOffRespRateMeas:])
	p.RespRateSet = le.Uint32(buf[inOffRespRateSet:])
	p.TidalVolumeMeas = int32(le.Uint32(buf[inOffTidalMeas:]))
	p.TidalVolumeSet = int32(le.Uint32(buf[inOffTidalSet:]))
	p.IEMeas = le.Uint32(buf[inOffIEMeas:])
	p.IESet = le.Uint32(buf[inOffIESet:])
	if p.IEMeas > IEFixedMax || p.IESet > IEFixedMax {
		return fmt.Errorf("%w: measured=%d set=%d", ErrIEOutOfRange, p.IEMeas, p.IESet)
	}
	p.PEEP = int32(le.Uint32(buf[inOffPEEP:]))
	p.PeakPressure = int32(le.Uint32(buf[inOffPeak:]))
	p.PlateauPressure = int32(le.Uint32(buf[inOffPlateau:]))
	p.Pressure = int32(le.Uint32(buf[inOffPressure:]))
	p.Flow = int32(le.Uint32(buf[inOffFlow:]))
	p.VolumeIn = int32(le.Uint32(buf[inOffVolumeIn:]))
	p.VolumeEx = int32(le.Uint32(buf[inOffVolumeEx:]))
	p.ControlState = ControlState(buf[inOffControlState])
	p.BatteryLevel = buf[inOffBattery]
	p.AlarmBits = le.Uint32(buf[inOffAlarmBits:])
	p.CRC = le.Uint16(buf[inOffCRC:])
	return nil
}

// MarshalBinary encodes the packet with a freshly computed CRC.
// The UI never sends InPackets; this exists for tests and the encode tool.
func (p *InPacket) MarshalBinary() ([]byte, error) {
	if p.IEMeas > IEFixedMax || p.IESet > IEFixedMax {
		return nil, fmt.Errorf("%w: measured=%d set=%d", ErrIEOutOfRange, p.IEMeas, p.IESet)
	}
	buf := make([]byte, 0, InPacketSize)
	buf = binary.LittleEndian.AppendUint16(buf, p.Sequence)
	buf = append(buf, p.Version, p.Type, CalculateMode(p.Mode, p.RunState))
	for _, v := range []uint32{
		p.RespRateMeas,
		p.RespRateSet,
		uint32(p.TidalVolumeMeas),
		uint32(p.TidalVolumeSet),
		p.IEMeas,
		p.IESet,
		uint32(p.PEEP),
		uint32(p.PeakPressure),
		uint32(p.PlateauPressure),
		uint32(p.Pressure),
		uint32(p.Flow),
		uint32(p.VolumeIn),
		uint32(p.VolumeEx),
	} {
		buf = binary.LittleEndian.AppendUint32(buf, v)
	}
	buf = append(buf, byte(p.ControlState), p.BatteryLevel, 0, 0)
	buf = binary.LittleEndian.AppendUint32(buf, p.AlarmBits)
	buf = AppendCRC(buf)
	if len(buf) != InPacketSize {
		return nil, fmt.Errorf("%w: assembled %d bytes, expected %d", ErrFrameLength, len(buf), InPacketSize)
	}
	return buf, nil
}

// Params converts the packet into physical units
func (p *InPacket) Params() Params {
	// Range was checked in UnmarshalBinary; errors here are impossible.
	ieMeas, _ := IEFixedToFraction(int(p.IEMeas))
	ieSet, _ := IEFixedToFraction(int(p.IESet))

	return Params{
		Sequence:        p.Sequence,
		Version:         p.Version,
		Mode:            p.Mode,
		RunState:        p.RunState,
		RespRateMeas:    p.RespRateMeas,
		RespRateSet:     p.RespRateSet,
		TidalVolumeMeas: ECUToML(p.TidalVolumeMeas),
		TidalVolumeSet:  ECUToML(p.TidalVolumeSet),
		IERatioMeas:     ieMeas,
		IERatioSet:      ieSet,
		PEEP:            ECUToCmH2O(p.PEEP),
		PeakPressure:    ECUToCmH2O(p.PeakPressure),
		PlateauPressure: ECUToCmH2O(p.PlateauPressure),
		Pressure:        ECUToCmH2O(p.Pressure),
		Flow:            ECUToSLM(p.Flow),
		VolumeIn:        ECUToML(p.VolumeIn),
		VolumeEx:        ECUToML(p.VolumeEx),
		ControlState:    p.ControlState,
		BatteryLevel:    p.BatteryLevel,
		AlarmBits:       p.AlarmBits,
		ReceivedAt:      time.Now(),
	}
}

// DecodeParams decodes a CRC-validated inbound frame straight into Params
func DecodeParams(frame []byte) (Params, error) {
	var p InPacket
	if err := p.UnmarshalBinary(frame); err != nil {
		return Params{}, err
	}
	return p.Params(), nil
}

// Params is an immutable telemetry snapshot in physical units.
// A new value is produced for every valid inbound frame.
type Params struct {
	Sequence        uint16
	Version         uint8
	Mode            VentMode
	RunState        RunState
	RespRateMeas    uint32  // breaths/min
	RespRateSet     uint32  // breaths/min
	TidalVolumeMeas float64 // mL
	TidalVolumeSet  float64 // mL
	IERatioMeas     float64 // I/E
	IERatioSet      float64 // I/E
	PEEP            float64 // cmH2O
	PeakPressure    float64 // cmH2O
	PlateauPressure float64 // cmH2O
	Pressure        float64 // cmH2O
	Flow            float64 // SLM
	VolumeIn        float64 // mL
	VolumeEx        float64 // mL
	ControlState    ControlState
	BatteryLevel    uint8 // percent
	AlarmBits       uint32
	ReceivedAt      time.Time
}

// OutPacket is one UI → ECU command frame in wire units
type OutPacket struct {
	Sequence       uint16
	Version        uint8
	Type           uint8
	Mode           VentMode
	RunState       RunState
	Command        uint8
	RespRateSet    int
	TidalVolumeSet int
	IERatioSet     uint8 // fixed point
	PressureSet    int   // cmH2O × 100
	HighPressure   int   // cmH2O × 100
	LowPressure    int   // cmH2O × 100
	HighVolume     int   // mL
	HighRespRate   int
	AlarmBits      uint32
}

// MarshalBinary serializes the command frame and appends the CRC.
// Every 2-byte field must fit in uint16 and the assembled frame must be
// exactly OutPacketSize bytes.
func (p *OutPacket) MarshalBinary() ([]byte, error) {
	fields := []struct {
		name  string
		value int
	}{
		{"resp_rate_set", p.RespRateSet},
		{"tidal_volume_set", p.TidalVolumeSet},
		{"ie_ratio_set", int(p.IERatioSet)},
		{"pressure_set", p.PressureSet},
		{"high_pressure", p.HighPressure},
		{"low_pressure", p.LowPressure},
		{"high_volume", p.HighVolume},
		{"high_resp_rate", p.HighRespRate},
	}

	buf := make([]byte, 0, OutPacketSize)
	buf = binary.LittleEndian.AppendUint16(buf, p.Sequence)
	buf = append(buf, p.Version, p.Type, CalculateMode(p.Mode, p.RunState), p.Command, 0, 0)
	for _, f := range fields {
		if f.value < 0 || f.value > 0xFFFF {
			return nil, fmt.Errorf("%w: %s=%d", ErrFieldRange, f.name, f.value)
		}
		buf = binary.LittleEndian.AppendUint16(buf, uint16(f.value))
	}
	buf = binary.LittleEndian.AppendUint32(buf, p.AlarmBits)
	buf = AppendCRC(buf)

	if len(buf) != OutPacketSize {
		return nil, fmt.Errorf("%w: assembled %d bytes, expected %d", ErrFrameLength, len(buf), OutPacketSize)
	}
	return buf, nil
}

// UnmarshalBinary decodes an outbound frame (used by the decode tool and tests)
func (p *OutPacket) UnmarshalBinary(buf []byte) error {
	if len(buf) != OutPacketSize {
		return fmt.Errorf("%w: got %d bytes, expected %d", ErrFrameLength, len(buf), OutPacketSize)
	}
	if !CheckCRC(buf) {
		return ErrCRCMismatch
	}
	le := binary.LittleEndian
	p.Sequence = le.Uint16(buf[0:])
	p.Version = buf[2]
	p.Type = buf[3]
	p.Mode, p.RunState = SplitMode(buf[4])
	p.Command = buf[5]
	p.RespRateSet = int(le.Uint16(buf[8:]))
	p.TidalVolumeSet = int(le.Uint16(buf[10:]))
	p.IERatioSet = ClampIEFixed(int(le.Uint16(buf[12:])))
	p.PressureSet = int(le.Uint16(buf[14:]))
	p.HighPressure = int(le.Uint16(buf[16:]))
	p.LowPressure = int(le.Uint16(buf[18:]))
	p.HighVolume = int(le.Uint16(buf[20:]))
	p.HighRespRate = int(le.Uint16(buf[22:]))
	p.AlarmBits = le.Uint32(buf[24:])
	return nil
}
