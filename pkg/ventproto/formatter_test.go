// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ventproto

import (
	"strings"
	"testing"
)

func TestFormatIERatio(t *testing.T) {
	tests := []struct {
		ratio float64
		want  string
	}{
		{0, "--"},
		{0.5, "1:2.0"},
		{0.25, "1:4.0"},
		{1, "1.0:1"},
		{2, "2.0:1"},
	}
	for _, tt := range tests {
		if got := FormatIERatio(tt.ratio); got != tt.want {
			t.Errorf("FormatIERatio(%v) = %q, want %q", tt.ratio, got, tt.want)
		}
	}
}

func TestFormatAlarmBits(t *testing.T) {
	tests := []struct {
		bits uint32
		want string
	}{
		{0, "[]"},
		{1, "[0]"},
		{1<<0 | 1<<3 | 1<<19, "[0 3 19]"},
		{1 << 31, "[31]"},
	}
	for _, tt := range tests {
		if got := FormatAlarmBits(tt.bits); got != tt.want {
			t.Errorf("FormatAlarmBits(0x%08X) = %q, want %q", tt.bits, got, tt.want)
		}
	}
}

func TestFormatParams(t *testing.T) {
	p := plausibleParams()
	p.AlarmBits = 1 << 3
	out := FormatParams(p)

	for _, want := range []string{"VC", "RUNNING", "INHALE", "battery=100%", "Alarms: 0x00000008 [3]"} {
		if !strings.Contains(out, want) {
			t.Errorf("FormatParams output missing %q:\n%s", want, out)
		}
	}

	p.AlarmBits = 0
	if strings.Contains(FormatParams(p), "Alarms") {
		t.Error("FormatParams should omit the alarm line when no bits are set")
	}
}

func TestFormatFrame(t *testing.T) {
	frame := make([]byte, 17)
	frame[16] = 0xAB
	out := FormatFrame(frame)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines for 17 bytes, got %d:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[1], "AB") {
		t.Errorf("second line should hold the 17th byte: %q", lines[1])
	}
}

func TestFormatOutPacket(t *testing.T) {
	p := OutPacket{
		Sequence:       7,
		Version:        ProtocolVersion,
		Type:           PacketTypeCommand,
		Mode:           ModeVolumeControl,
		RunState:       RunRunning,
		Command:        CommandSettings,
		RespRateSet:    15,
		TidalVolumeSet: 500,
		IERatioSet:     85,
		PressureSet:    2000,
		HighPressure:   4000,
		LowPressure:    500,
		HighVolume:     800,
		HighRespRate:   30,
		AlarmBits:      1 << 3,
	}
	want := "seq=7 v2 VC RUNNING cmd=0x01 RR=15 VT=500 I:E=1:2.0 P=20.00 limits P=5.00-40.00 VT<=800 RR<=30 ack=0x00000008"
	if got := FormatOutPacket(p); got != want {
		t.Errorf("FormatOutPacket:\n got %q\nwant %q", got, want)
	}
}
