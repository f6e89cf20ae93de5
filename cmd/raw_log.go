// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/ventilink/pkg/transport"
	"github.com/Thermoquad/ventilink/pkg/ventproto"
)

var rawLogDuration int

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Log raw bytes as they arrive, without decoding",
	Long: `Print every chunk read from the connection as hex with a timestamp.

Nothing is transmitted and no frame is decoded, which makes this the tool for
checking that bytes arrive at all, and how the transport splits them. On exit
a summary reports the byte count and how many CRC-valid telemetry frames were
found in the stream.

With --duration the log stops after that many seconds; otherwise it runs
until Ctrl+C. A connection error ends the log with a non-zero exit code.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().IntVar(&rawLogDuration, "duration", 0, "Stop after this many seconds (0 = until Ctrl+C)")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if rawLogDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(rawLogDuration)*time.Second)
		defer cancel()
	}

	conn, connInfo, _, err := OpenConnection(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Ventilink - Raw Log\n")
	fmt.Fprintf(out, "Connection: %s\n", connInfo)
	fmt.Fprintf(out, "Press Ctrl+C to exit\n\n")

	// Unblock the read when the log ends
	stopClose := context.AfterFunc(ctx, func() { conn.Close() })
	defer stopClose()

	start := time.Now()
	scanner := &frameScanner{}
	total := 0
	buf := make([]byte, 256)

	var readErr error
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			total += n
			scanner.Feed(buf[:n])
			fmt.Fprintf(out, "[%s] %3d bytes: % X\n", time.Now().Format("15:04:05.000"), n, buf[:n])
		}
		if ctx.Err() != nil {
			break
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, transport.ErrConnectionClosed) {
				readErr = fmt.Errorf("connection closed: %w", err)
			} else {
				readErr = err
			}
			break
		}
	}

	fmt.Fprintf(out, "\n--- Summary ---\n")
	fmt.Fprintf(out, "Duration: %s\n", time.Since(start).Truncate(time.Millisecond))
	fmt.Fprintf(out, "Bytes received: %d\n", total)
	fmt.Fprintf(out, "Telemetry frames found: %d (%d bytes outside frames)\n", scanner.frames, scanner.skipped)
	return readErr
}

// frameScanner counts CRC-valid telemetry frames in a raw byte stream
type frameScanner struct {
	buf     []byte
	frames  int
	skipped int
}

// Feed appends data and consumes every complete window
func (f *frameScanner) Feed(data []byte) {
	f.buf = append(f.buf, data...)
	for len(f.buf) >= ventproto.InPacketSize {
		if ventproto.CheckCRC(f.buf[:ventproto.InPacketSize]) {
			f.frames++
			f.buf = f.buf[ventproto.InPacketSize:]
			continue
		}
		f.buf = f.buf[1:]
		f.skipped++
	}
}
