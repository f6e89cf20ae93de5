// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/ventilink/pkg/ventproto"
)

var decodeCmd = &cobra.Command{
	Use:   "decode <hex>...",
	Short: "Decode a captured frame",
	Long: `Decode one frame given as hex, without a connection.

The frame type is chosen by length: 67 bytes is ECU telemetry, 30 bytes is a
UI command. Spaces, colons and dashes between bytes are ignored, so output
copied from the monitor's hex dump can be pasted directly.

Reports the CRC check, every decoded field in physical units, telemetry
anomalies and the names of set alarm bits.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		frame, err := parseHexFrame(strings.Join(args, ""))
		if err != nil {
			return err
		}
		report, err := describeFrame(frame)
		fmt.Fprint(cmd.OutOrStdout(), report)
		return err
	},
}

func init() {
	rootCmd.AddCommand(decodeCmd)
}

// parseHexFrame accepts "0x"-prefixed or separated hex
func parseHexFrame(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	clean := strings.Map(func(r rune) rune {
		switch r {
		case ' ', ':', '-', '\t', '\n', '\r':
			return -1
		}
		return r
	}, s)
	frame, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return frame, nil
}

// describeFrame renders a human-readable report. On error the partial
// report is still returned.
func describeFrame(frame []byte) (string, error) {
	var s strings.Builder

	switch len(frame) {
	case ventproto.InPacketSize:
		s.WriteString(fmt.Sprintf("Telemetry frame (%d bytes, ECU -> UI)\n", len(frame)))
		crcOK := writeCRCLine(&s, frame)

		var pkt ventproto.InPacket
		if err := pkt.UnmarshalBinary(frame); err != nil {
			return s.String(), fmt.Errorf("decode: %w", err)
		}
		if !crcOK {
			s.WriteString("  (fields below are unverified)\n")
		}
		params := pkt.Params()
		s.WriteString(ventproto.FormatParams(params))
		if params.AlarmBits != 0 {
			s.WriteString(fmt.Sprintf("  Alarm names: %s\n", describeAlarmBits(params.AlarmBits)))
		}
		for i, a := range ventproto.ValidateParams(params) {
			s.WriteString(fmt.Sprintf("  Anomaly %d: %s (%s)\n", i+1, a.Message, a.Type))
		}

	case ventproto.OutPacketSize:
		s.WriteString(fmt.Sprintf("Command frame (%d bytes, UI -> ECU)\n", len(frame)))
		writeCRCLine(&s, frame)

		var pkt ventproto.OutPacket
		if err := pkt.UnmarshalBinary(frame); err != nil {
			return s.String(), fmt.Errorf("decode: %w", err)
		}
		s.WriteString("  " + ventproto.FormatOutPacket(pkt) + "\n")
		if pkt.AlarmBits != 0 {
			s.WriteString(fmt.Sprintf("  Acknowledged: %s\n", describeAlarmBits(pkt.AlarmBits)))
		}

	default:
		return "", fmt.Errorf("%w: %d bytes, expected %d (telemetry) or %d (command)",
			ventproto.ErrFrameLength, len(frame), ventproto.InPacketSize, ventproto.OutPacketSize)
	}

	return s.String(), nil
}

func writeCRCLine(s *strings.Builder, frame []byte) bool {
	received, _ := ventproto.FrameCRC(frame)
	calculated := ventproto.CalculateCRC(frame[:len(frame)-ventproto.CRCSize])
	if received == calculated {
		s.WriteString(fmt.Sprintf("  CRC: OK (%s)\n", ventproto.FormatCRC(received)))
		return true
	}
	s.WriteString(fmt.Sprintf("  CRC: BAD (received %s, calculated %s)\n",
		ventproto.FormatCRC(received), ventproto.FormatCRC(calculated)))
	return false
}
