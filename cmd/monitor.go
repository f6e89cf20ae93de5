// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/ventilink/pkg/alarm"
	"github.com/Thermoquad/ventilink/pkg/comms"
	"github.com/Thermoquad/ventilink/pkg/link"
	"github.com/Thermoquad/ventilink/pkg/settings"
	"github.com/Thermoquad/ventilink/pkg/ventproto"
)

var (
	showAll       bool
	statsInterval int
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Decode link traffic and report errors, anomalies and alarms",
	Long: `Run a link session and report what happens on the wire.

Reports:
  - CRC errors, short frames and undecodable frames
  - Sequence discontinuities and frame sync changes
  - Telemetry anomalies (unknown mode, battery above 100%, plateau above peak)
  - Alarm activations and clears
  - Periodic statistics (frame rate, error rate)

By default, only errors are displayed. Use --show-all to display every frame,
including the command frames sent back to the ECU. With --passive the tool
only listens and never transmits.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all frames (not just errors)")
	monitorCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	monitorCmd.Flags().BoolVar(&cfg.Link.Passive, "passive", cfg.Link.Passive, "Listen only, never send command frames")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, connInfo, _, err := OpenConnection(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	events, err := openEventLog()
	if err != nil {
		return err
	}
	defer events.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Ventilink - Monitor\n")
	fmt.Fprintf(out, "Connection: %s\n", connInfo)
	fmt.Fprintf(out, "Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Fprintf(out, "Mode: All frames\n")
	} else {
		fmt.Fprintf(out, "Mode: Errors only\n")
	}
	if cfg.Link.Passive {
		fmt.Fprintf(out, "Transmit: disabled (passive)\n")
	}
	fmt.Fprintf(out, "Press Ctrl+C to exit\n\n")

	stats := ventproto.NewStatistics()
	printer := &monitorPrinter{out: out, showAll: showAll, stats: stats}

	alarms := alarm.NewManager(alarm.WithLogger(logger.Named("alarm")))
	adapter := comms.New(settings.NewStore(settings.Default()), alarms, printer,
		comms.WithEventLog(events), comms.WithLogger(logger))

	l := link.New(conn, linkOptions(
		link.WithStatistics(stats),
		link.WithListener(adapter),
		link.WithObserver(printer.onFrame),
	)...)
	adapter.Bind(l)
	adapter.LinkUp(connInfo)

	tickerCtx, cancelTicker := context.WithCancel(ctx)
	defer cancelTicker()
	if statsInterval > 0 {
		go printer.statsLoop(tickerCtx, time.Duration(statsInterval)*time.Second)
	}

	err = l.Run(ctx)
	cancelTicker()
	adapter.LinkDown(err)
	printer.printStats()
	return err
}

// monitorPrinter renders link events as text
type monitorPrinter struct {
	mu      sync.Mutex
	out     io.Writer
	showAll bool
	stats   *ventproto.Statistics
}

func (mp *monitorPrinter) printf(format string, args ...interface{}) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	fmt.Fprintf(mp.out, format, args...)
}

func (mp *monitorPrinter) statsLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mp.printStats()
		}
	}
}

func (mp *monitorPrinter) printStats() {
	mp.printf("\n%s\n", mp.stats.String())
}

// OnParams is a no-op; frames are printed from the observer
func (mp *monitorPrinter) OnParams(ventproto.Params) {}

// OnAlarms prints the active alarm set whenever it changes
func (mp *monitorPrinter) OnAlarms(bits uint32) {
	timestamp := time.Now().Format("15:04:05.000")
	if bits == 0 {
		mp.printf("[%s] \033[1;32mALARMS CLEAR\033[0m\n\n", timestamp)
		return
	}
	mp.printf("[%s] \033[1;31mALARMS:\033[0m 0x%08X %s\n\n", timestamp, bits, describeAlarmBits(bits))
}

func (mp *monitorPrinter) onFrame(ev link.FrameEvent) {
	timestamp := time.Now().Format("15:04:05.000")

	switch ev.Kind {
	case link.SyncAcquired:
		skipped := mp.stats.Snapshot().ResyncBytes
		if skipped > 0 {
			mp.printf("[SYNC] Synchronized after skipping %d bytes\n\n", skipped)
		} else {
			mp.printf("[SYNC] Synchronized\n\n")
		}

	case link.SyncLost:
		mp.printf("[SYNC] \033[1;33mLost\033[0m, searching for frame boundary\n\n")

	case link.FrameCRCError:
		received, _ := ventproto.FrameCRC(ev.Frame)
		calculated := ventproto.CalculateCRC(ev.Frame[:len(ev.Frame)-ventproto.CRCSize])
		mp.printf("[%s] \033[1;31mCRC ERROR:\033[0m received=%s calculated=%s\n%s  >>> FRAME DROPPED <<<\n\n",
			timestamp, ventproto.FormatCRC(received), ventproto.FormatCRC(calculated), ventproto.FormatFrame(ev.Frame))

	case link.FrameShort:
		mp.printf("[%s] \033[1;31mSHORT FRAME:\033[0m %d of %d bytes\n%s  >>> FRAME DROPPED <<<\n\n",
			timestamp, len(ev.Frame), ventproto.InPacketSize, ventproto.FormatFrame(ev.Frame))

	case link.FrameDecodeError:
		mp.printf("[%s] \033[1;31mDECODE ERROR:\033[0m %v\n  >>> FRAME DROPPED <<<\n\n", timestamp, ev.Err)

	case link.FrameSequenceGap:
		mp.printf("[%s] \033[1;33mSEQUENCE GAP:\033[0m received seq=%d\n\n", timestamp, ev.Sequence)

	case link.FrameWriteError:
		mp.printf("[%s] \033[1;31mWRITE ERROR:\033[0m seq=%d %v\n\n", timestamp, ev.Sequence, ev.Err)

	case link.FrameSent:
		if mp.showAll {
			var pkt ventproto.OutPacket
			if err := pkt.UnmarshalBinary(ev.Frame); err == nil {
				mp.printf("[%s] SENT %s\n", timestamp, ventproto.FormatOutPacket(pkt))
			}
		}

	case link.FrameValid:
		if ev.Params == nil {
			return
		}
		anomalies := ventproto.ValidateParams(*ev.Params)
		if len(anomalies) > 0 {
			mp.printf("%s", formatAnomalies(timestamp, ev.Params.Sequence, anomalies))
		} else if mp.showAll {
			mp.printf("%s", ventproto.FormatParams(*ev.Params))
		}
	}
}

// formatAnomalies renders implausible telemetry values for one frame
func formatAnomalies(timestamp string, seq uint16, anomalies []ventproto.ValidationError) string {
	var s strings.Builder
	s.WriteString(fmt.Sprintf("[%s] \033[1;33mANOMALY:\033[0m seq=%d\n", timestamp, seq))
	s.WriteString("  CRC: \033[1;32mOK\033[0m\n")
	for i, a := range anomalies {
		s.WriteString(fmt.Sprintf("  Issue %d: %s (%s)\n", i+1, a.Message, a.Type))
	}
	s.WriteString("\n")
	return s.String()
}

// describeAlarmBits names every set bit, e.g. "HIGH_PRESSURE, UNKNOWN_21"
func describeAlarmBits(bits uint32) string {
	names := []string{}
	for bit := 0; bit < 32; bit++ {
		if bits&(1<<bit) == 0 {
			continue
		}
		if t, ok := alarm.TypeForBit(bit); ok {
			names = append(names, t.String())
		} else {
			names = append(names, fmt.Sprintf("UNKNOWN_%d", bit))
		}
	}
	return strings.Join(names, ", ")
}
