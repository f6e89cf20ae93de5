// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/ventilink/pkg/link"
	"github.com/Thermoquad/ventilink/pkg/settings"
	"github.com/Thermoquad/ventilink/pkg/ventproto"
)

var (
	encodeSeq      uint16
	encodeMode     string
	encodeRun      bool
	encodeIE       string
	encodeAck      uint32
	encodeSettings = settings.Default()
)

var encodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "Build a command frame and print it as hex",
	Long: `Build the command frame the UI would send for the given settings.

Settings start from the defaults and are validated exactly as the console
validates them before applying. The output can be replayed with a serial
terminal or checked with the decode command.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := buildEncodeSettings()
		if err != nil {
			return err
		}
		out, err := encodeCommandFrame(encodeSeq, s, encodeAck)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(encodeCmd)
	d := settings.Default()
	f := encodeCmd.Flags()
	f.Uint16Var(&encodeSeq, "seq", 0, "Sequence number")
	f.StringVar(&encodeMode, "mode", "vc", "Ventilation mode (vc, pc, ps, simv)")
	f.BoolVar(&encodeRun, "run", false, "Set the run bit")
	f.IntVar(&encodeSettings.RespRate, "rr", d.RespRate, "Respiratory rate (breaths/min)")
	f.IntVar(&encodeSettings.TidalVolume, "vt", d.TidalVolume, "Tidal volume (mL)")
	f.StringVar(&encodeIE, "ie", d.IELabel(), "I:E ratio ("+ieLabels()+")")
	f.Float64Var(&encodeSettings.Pressure, "pressure", d.Pressure, "Pressure setpoint (cmH2O)")
	f.Float64Var(&encodeSettings.HighPressure, "high-pressure", d.HighPressure, "High pressure alarm limit (cmH2O)")
	f.Float64Var(&encodeSettings.LowPressure, "low-pressure", d.LowPressure, "Low pressure alarm limit (cmH2O)")
	f.IntVar(&encodeSettings.HighVolume, "high-volume", d.HighVolume, "High tidal volume alarm limit (mL)")
	f.IntVar(&encodeSettings.HighRespRate, "high-rr", d.HighRespRate, "High respiratory rate alarm limit")
	f.Uint32Var(&encodeAck, "ack", 0, "Alarm acknowledge mask (e.g. 0x8)")
}

func ieLabels() string {
	labels := make([]string, len(settings.IERatioTable))
	for i, r := range settings.IERatioTable {
		labels[i] = r.Label
	}
	return strings.Join(labels, ", ")
}

func buildEncodeSettings() (settings.Settings, error) {
	s := encodeSettings

	mode, err := parseVentMode(encodeMode)
	if err != nil {
		return s, err
	}
	s.Mode = mode

	s.RunState = ventproto.RunStopped
	if encodeRun {
		s.RunState = ventproto.RunRunning
	}

	idx, ok := settings.IERatioIndex(encodeIE)
	if !ok {
		return s, fmt.Errorf("unknown I:E ratio %q (use one of %s)", encodeIE, ieLabels())
	}
	s.IERatio = idx

	return s, s.Validate()
}

func parseVentMode(name string) (ventproto.VentMode, error) {
	for m := ventproto.ModeVolumeControl; m.Valid(); m++ {
		if strings.EqualFold(name, m.String()) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown mode %q (use vc, pc, ps or simv)", name)
}

// encodeCommandFrame returns the frame as upper-case hex
func encodeCommandFrame(seq uint16, s settings.Settings, ackBits uint32) (string, error) {
	pkt := link.NewOutPacket(seq, s, ackBits)
	frame, err := pkt.MarshalBinary()
	if err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(frame)), nil
}
