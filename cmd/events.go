// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/ventilink/pkg/eventlog"
)

var (
	eventsJSON    bool
	eventsDB      string
	eventsPatient string
)

var eventsCmd = &cobra.Command{
	Use:   "events [file]",
	Short: "Print a recorded event log",
	Long: `Print the clinical event log written by monitor or console.

Reads the CBOR file given as argument, or with --db the SQLite database,
filtered to one patient. --json prints one JSON object per line.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEvents,
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.Flags().BoolVar(&eventsJSON, "json", false, "Print JSON lines")
	eventsCmd.Flags().StringVar(&eventsDB, "db", "", "Read from a SQLite event database")
	eventsCmd.Flags().StringVar(&eventsPatient, "patient", cfg.EventLog.PatientID, "Patient ID to read from the database")
}

func runEvents(cmd *cobra.Command, args []string) error {
	var records []eventlog.Record

	switch {
	case eventsDB != "":
		db, err := eventlog.NewSQLiteSink(eventsDB)
		if err != nil {
			return err
		}
		defer db.Close()
		records, err = db.Records(cmd.Context(), eventsPatient)
		if err != nil {
			return fmt.Errorf("query events: %w", err)
		}
	case len(args) == 1:
		var err error
		records, err = eventlog.ReadFile(args[0])
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("give an event log file or --db")
	}

	return printRecords(cmd.OutOrStdout(), records, eventsJSON)
}

func printRecords(out io.Writer, records []eventlog.Record, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		for _, r := range records {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return nil
	}

	for _, r := range records {
		session := r.SessionID
		if len(session) > 8 {
			session = session[:8]
		}
		fmt.Fprintf(out, "%s  %-12s %-8s %-18s %s\n",
			r.Timestamp.Format("2006-01-02 15:04:05.000"), r.PatientID, session, r.Type, r.Message)
	}
	fmt.Fprintf(out, "%d record(s)\n", len(records))
	return nil
}
