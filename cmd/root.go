// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/ventilink/pkg/config"
	"github.com/Thermoquad/ventilink/pkg/logging"
)

// passwordEnv holds the WebSocket password so it never appears in flags
const passwordEnv = "VENTILINK_PASSWORD"

var (
	// Environment first, flags override
	cfg = config.Load()

	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "ventilink",
	Short: "Ventilator UI to ECU link tool",
	Long: `Ventilink - monitor, drive and debug the ventilator UI/ECU serial link.

Decodes ECU telemetry frames, tracks alarm conditions, mirrors committed
settings back to the ECU and records clinical events.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]

Every flag defaults to its VENTILINK_* environment variable. For WebSocket
authentication, the password is read from the VENTILINK_PASSWORD environment
variable, or prompted interactively if not set. The --password flag is
intentionally not provided to avoid leaking credentials in shell history.`,
	Version:       "0.3.0",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := logging.New(cfg.Log.Level, cfg.Log.Format, "ventilink", logOutputs()...)
		if err != nil {
			return fmt.Errorf("logger: %w", err)
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	flags := rootCmd.PersistentFlags()

	// Serial connection flags
	flags.StringVarP(&cfg.Serial.Port, "port", "p", cfg.Serial.Port, "Serial port device")
	flags.IntVarP(&cfg.Serial.Baud, "baud", "b", cfg.Serial.Baud, "Baud rate (serial only)")
	flags.DurationVar(&cfg.Serial.ReadTimeout, "read-timeout", cfg.Serial.ReadTimeout, "Serial read timeout")
	flags.IntVar(&cfg.Serial.ReadAttempts, "read-attempts", cfg.Serial.ReadAttempts, "Empty reads tolerated while completing a frame")

	// WebSocket connection flags
	flags.StringVarP(&cfg.WebSocket.URL, "url", "u", cfg.WebSocket.URL, "WebSocket URL (ws:// or wss://)")
	flags.StringVar(&cfg.WebSocket.Username, "username", cfg.WebSocket.Username, "Username for HTTP Basic auth")
	flags.BoolVar(&cfg.WebSocket.NoSSLVerify, "no-ssl-verify", cfg.WebSocket.NoSSLVerify, "Skip TLS certificate verification (wss:// only)")

	// Link behaviour
	flags.BoolVar(&cfg.Link.StrictSequence, "strict-sequence", cfg.Link.StrictSequence, "Drop frames whose sequence number is not previous+1")
	flags.IntVar(&cfg.Link.ResyncAfter, "resync-after", cfg.Link.ResyncAfter, "Consecutive CRC failures before searching for frame alignment again")

	// Logging
	flags.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "Log level (debug, info, warn, error, off)")
	flags.StringVar(&cfg.Log.Format, "log-format", cfg.Log.Format, "Log format (console, json)")
	flags.StringVar(&cfg.Log.File, "log-file", cfg.Log.File, "Write logs to this file instead of stderr")
}

func logOutputs() []string {
	if cfg.Log.File != "" {
		return []string{cfg.Log.File}
	}
	return nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
