// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/ventilink/pkg/alarm"
	"github.com/Thermoquad/ventilink/pkg/comms"
	"github.com/Thermoquad/ventilink/pkg/link"
	"github.com/Thermoquad/ventilink/pkg/settings"
	"github.com/Thermoquad/ventilink/pkg/transport"
	"github.com/Thermoquad/ventilink/pkg/ventproto"
)

const (
	reconnectMin = 1 * time.Second
	reconnectMax = 30 * time.Second
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Interactive operator console",
	Long: `Operate the ventilator link from an interactive terminal UI.

Features:
  - Live telemetry in physical units
  - Pending alarms in priority order, acknowledged one at a time
  - Settings editor: changes are staged and only sent to the ECU once applied
  - Link statistics and an event log
  - Automatic reconnection with exponential backoff on connection loss

Keys:
  up/down     select setting        left/right  adjust selected setting
  e, enter    type a value          s           apply staged settings
  u           discard staged        a           acknowledge top alarm
  q           quit

Structured logs are discarded unless --log-file is set, since they would
draw over the UI.`,
	RunE: runConsole,
}

func init() {
	rootCmd.AddCommand(consoleCmd)
}

// teaUI forwards adapter callbacks into the program's event loop
type teaUI struct {
	p *tea.Program
}

func (u *teaUI) OnParams(p ventproto.Params) { u.p.Send(paramsMsg(p)) }
func (u *teaUI) OnAlarms(bits uint32)        { u.p.Send(alarmsMsg(bits)) }

// sessionManager handles connection lifecycle and reconnection
type sessionManager struct {
	opener  *connectionOpener
	adapter *comms.Adapter
	p       *tea.Program
	done    chan struct{}
}

func runConsole(cmd *cobra.Command, args []string) error {
	if cfg.Log.File == "" {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	conn, connInfo, opener, err := OpenConnection(ctx)
	if err != nil {
		return err
	}

	events, err := openEventLog()
	if err != nil {
		conn.Close()
		return err
	}
	defer events.Close()

	alarms := alarm.NewManager(alarm.WithLogger(logger.Named("alarm")))
	store := settings.NewStore(settings.Default())
	ui := &teaUI{}
	adapter := comms.New(store, alarms, ui, comms.WithEventLog(events), comms.WithLogger(logger))

	m := initialConsoleModel(store, alarms, adapter)
	p := tea.NewProgram(m, tea.WithAltScreen())
	ui.p = p

	sm := &sessionManager{
		opener:  opener,
		adapter: adapter,
		p:       p,
		done:    make(chan struct{}),
	}
	go sm.run(ctx, conn, connInfo)

	_, err = p.Run()
	cancel()
	<-sm.done
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// run serves conn, then reconnects with exponential backoff until ctx ends
func (sm *sessionManager) run(ctx context.Context, conn transport.Connection, connInfo string) {
	defer close(sm.done)

	backoff := reconnectMin
	for {
		err := sm.serve(ctx, conn, connInfo)
		if ctx.Err() != nil {
			return
		}
		sm.p.Send(linkDownMsg{err: err, retryIn: backoff})

		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = nextBackoff(backoff)

			conn, connInfo, err = sm.opener.Open(ctx)
			if err == nil {
				backoff = reconnectMin
				break
			}
			if ctx.Err() != nil {
				return
			}
			sm.p.Send(linkDownMsg{err: err, retryIn: backoff})
		}
	}
}

// serve runs one link session until the connection fails or ctx ends
func (sm *sessionManager) serve(ctx context.Context, conn transport.Connection, connInfo string) error {
	defer conn.Close()

	stats := ventproto.NewStatistics()
	l := link.New(conn, linkOptions(
		link.WithStatistics(stats),
		link.WithListener(sm.adapter),
		link.WithObserver(sm.observe),
	)...)

	sm.adapter.Bind(l)
	sm.adapter.LinkUp(connInfo)
	sm.p.Send(linkUpMsg{info: connInfo, stats: stats})

	err := l.Run(ctx)

	sm.adapter.Bind(nil)
	sm.adapter.LinkDown(err)
	return err
}

// observe forwards link trouble to the event pane. Valid and sent frames
// are already reflected in telemetry and statistics.
func (sm *sessionManager) observe(ev link.FrameEvent) {
	switch ev.Kind {
	case link.FrameValid, link.FrameSent:
		return
	}
	ev.Frame = nil
	sm.p.Send(frameEventMsg(ev))
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > reconnectMax {
		return reconnectMax
	}
	return d
}
