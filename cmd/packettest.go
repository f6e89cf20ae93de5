// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/ventilink/pkg/link"
	"github.com/Thermoquad/ventilink/pkg/ventproto"
)

var (
	packetTestTimeout int
)

var packetTestCmd = &cobra.Command{
	Use:   "packet_test",
	Short: "Test connection by waiting for a valid telemetry frame",
	Long: `Wait for a valid ECU telemetry frame on the connection until timeout.

This command connects to a serial port or WebSocket and listens, without
transmitting, for one complete frame that passes the CRC check and decodes.
Misaligned bytes are skipped while searching for the frame boundary.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a valid frame
  2 - Connection error`,
	RunE: runPacketTest,
}

func init() {
	rootCmd.AddCommand(packetTestCmd)
	packetTestCmd.Flags().IntVar(&packetTestTimeout, "timeout", 10, "Timeout in seconds to wait for a frame")
}

func runPacketTest(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(packetTestTimeout)*time.Second)
	defer cancel()

	conn, connInfo, _, err := OpenConnection(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Ventilink - Packet Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", packetTestTimeout)
	fmt.Printf("Waiting for valid telemetry frame...\n\n")

	stats := ventproto.NewStatistics()
	received := make(chan ventproto.Params, 1)
	l := link.New(conn, linkOptions(
		link.WithStatistics(stats),
		link.WithPassive(true),
		link.WithObserver(func(ev link.FrameEvent) {
			if ev.Kind != link.FrameValid || ev.Params == nil {
				return
			}
			select {
			case received <- *ev.Params:
			default:
			}
			cancel()
		}),
	)...)

	// Returns nil once cancelled, by success or timeout
	runErr := l.Run(ctx)

	select {
	case p := <-received:
		if skipped := stats.Snapshot().ResyncBytes; skipped > 0 {
			fmt.Printf("(skipped %d bytes before sync)\n", skipped)
		}
		fmt.Printf("SUCCESS: Received valid frame\n")
		fmt.Printf("  Sequence: %d\n", p.Sequence)
		fmt.Printf("  Version: %d\n", p.Version)
		fmt.Printf("  Mode: %s %s\n", p.Mode, p.RunState)
		fmt.Printf("  Alarms: 0x%08X\n", p.AlarmBits)
		os.Exit(0)
	default:
	}

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Read error: %v\n", runErr)
		os.Exit(2)
	}

	fmt.Fprintf(os.Stderr, "TIMEOUT: No valid frame received within %d seconds\n", packetTestTimeout)
	os.Exit(1)
	return nil
}
