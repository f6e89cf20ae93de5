// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package eventlog

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteSink stores records in an SQLite database
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink opens (or creates) the database at path and applies the schema
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection so ":memory:" databases are shared across calls
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply event schema: %w", err)
	}
	return &SQLiteSink{db: db}, nil
}

// Write inserts records in one transaction
func (s *SQLiteSink) Write(records []Record) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO events (patient_id, session_id, timestamp_ns, type, message)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.Exec(r.PatientID, r.SessionID, r.Timestamp.UnixNano(), string(r.Type), r.Message); err != nil {
			return fmt.Errorf("failed to insert event: %v", err)
		}
	}
	return tx.Commit()
}

// Records returns a patient's records in time order
func (s *SQLiteSink) Records(ctx context.Context, patientID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT patient_id, session_id, timestamp_ns, type, message
		FROM events
		WHERE patient_id = ?
		ORDER BY timestamp_ns, id
	`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var ts int64
		var kind string
		if err := rows.Scan(&r.PatientID, &r.SessionID, &ts, &kind, &r.Message); err != nil {
			return nil, err
		}
		r.Timestamp = time.Unix(0, ts)
		r.Type = Kind(kind)
		records = append(records, r)
	}
	return records, rows.Err()
}

// Close closes the database
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
