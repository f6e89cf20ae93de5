// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ventproto

import (
	"fmt"
	"strings"
)

// FormatParams formats a telemetry snapshot into a human-readable block
func FormatParams(p Params) string {
	timestamp := p.ReceivedAt.Format("15:04:05.000")

	var s strings.Builder
	s.WriteString(fmt.Sprintf("[%s] DATA seq=%d v%d %s %s ctrl=%s battery=%d%%\n",
		timestamp, p.Sequence, p.Version, p.Mode, p.RunState, p.ControlState, p.BatteryLevel))
	s.WriteString(fmt.Sprintf("  RR: %d/%d bpm  VT: %.0f/%.0f mL  I:E: %s/%s\n",
		p.RespRateMeas, p.RespRateSet,
		p.TidalVolumeMeas, p.TidalVolumeSet,
		FormatIERatio(p.IERatioMeas), FormatIERatio(p.IERatioSet)))
	s.WriteString(fmt.Sprintf("  PEEP: %.2f  Ppeak: %.2f  Pplat: %.2f  P: %.2f cmH2O\n",
		p.PEEP, p.PeakPressure, p.PlateauPressure, p.Pressure))
	s.WriteString(fmt.Sprintf("  Flow: %.2f SLM  Vin: %.0f mL  Vex: %.0f mL\n",
		p.Flow, p.VolumeIn, p.VolumeEx))
	if p.AlarmBits != 0 {
		s.WriteString(fmt.Sprintf("  Alarms: 0x%08X %s\n", p.AlarmBits, FormatAlarmBits(p.AlarmBits)))
	}
	return s.String()
}

// FormatIERatio renders an I/E fraction as "I:E" with the smaller side at 1
func FormatIERatio(ratio float64) string {
	switch {
	case ratio <= 0:
		return "--"
	case ratio >= 1:
		return fmt.Sprintf("%.1f:1", ratio)
	default:
		return fmt.Sprintf("1:%.1f", 1/ratio)
	}
}

// FormatAlarmBits lists the set bit positions, e.g. "[0 3 19]"
func FormatAlarmBits(bits uint32) string {
	parts := []string{}
	for i := 0; i < 32; i++ {
		if bits&(1<<i) != 0 {
			parts = append(parts, fmt.Sprintf("%d", i))
		}
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// FormatFrame renders raw frame bytes as a hex dump, 16 bytes per line
func FormatFrame(frame []byte) string {
	result := "  Frame: "
	for i, b := range frame {
		if i > 0 && i%16 == 0 {
			result += "\n         "
		}
		result += fmt.Sprintf("%02X ", b)
	}
	return result + "\n"
}

// FormatOutPacket summarizes a command frame on one line
func FormatOutPacket(p OutPacket) string {
	ie, err := IEFixedToFraction(int(p.IERatioSet))
	if err != nil {
		ie = 0
	}
	return fmt.Sprintf("seq=%d v%d %s %s cmd=0x%02X RR=%d VT=%d I:E=%s P=%.2f limits P=%.2f-%.2f VT<=%d RR<=%d ack=0x%08X",
		p.Sequence, p.Version, p.Mode, p.RunState, p.Command,
		p.RespRateSet, p.TidalVolumeSet, FormatIERatio(ie),
		ECUToCmH2O(int32(p.PressureSet)),
		ECUToCmH2O(int32(p.LowPressure)), ECUToCmH2O(int32(p.HighPressure)),
		p.HighVolume, p.HighRespRate, p.AlarmBits)
}
