// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package scanstore keeps scan sessions in a SQLite database.
//
// A session is one run of the driver. Each stored scan holds the bucket
// ranges as a CBOR array together with the decoder counters at capture time.
package scanstore

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/Thermoquad/scanstat/internal/monitoring"
	"github.com/Thermoquad/scanstat/pkg/rplidar"
	"github.com/Thermoquad/scanstat/pkg/scanlog"
)

// ErrSessionNotFound is returned for an unknown session ID
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionEnded is returned when recording into an ended session
var ErrSessionEnded = errors.New("session already ended")

// Store is a scan session database
type Store struct {
	db *sql.DB
}

// Session describes one recorded run
type Session struct {
	ID         string     `json:"id"`
	Source     string     `json:"source"`
	DeviceInfo string     `json:"device_info"`
	MinAngle   float64    `json:"min_angle"`
	MaxAngle   float64    `json:"max_angle"`
	Resolution float64    `json:"resolution"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	Notes      string     `json:"notes,omitempty"`
	Samples    uint64     `json:"samples"`
	Desyncs    uint64     `json:"desyncs"`
	Scans      int        `json:"scans"`
}

// Open opens or creates the database at path and migrates it to the latest
// schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection keeps ":memory:" databases shared and serialises writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}

	version, _, err := s.MigrateVersion()
	if err != nil {
		db.Close()
		return nil, err
	}
	monitoring.Infof("scan store %s at schema version %d", path, version)
	return s, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// StartSession inserts a session and assigns its ID. A zero StartedAt is
// set to now.
func (s *Store) StartSession(sess Session) (Session, error) {
	sess.ID = uuid.New().String()
	if sess.StartedAt.IsZero() {
		sess.StartedAt = time.Now()
	}
	sess.EndedAt = nil
	sess.Scans = 0

	_, err := s.db.Exec(`
		INSERT INTO scan_sessions (session_id, source, device_info, min_angle, max_angle, resolution, started_at, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, sess.ID, sess.Source, sess.DeviceInfo, sess.MinAngle, sess.MaxAngle, sess.Resolution,
		sess.StartedAt.UnixNano(), sess.Notes)
	if err != nil {
		return Session{}, fmt.Errorf("failed to start session: %w", err)
	}
	return sess, nil
}

// RecordScan stores one scan in an open session
func (s *Store) RecordScan(sessionID string, seq uint64, at time.Time, ranges []float64, stats rplidar.Statistics) error {
	blob, err := cbor.Marshal(ranges)
	if err != nil {
		return fmt.Errorf("encode ranges: %w", err)
	}

	var ended sql.NullInt64
	err = s.db.QueryRow(`SELECT ended_at FROM scan_sessions WHERE session_id = ?`, sessionID).Scan(&ended)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return fmt.Errorf("failed to look up session: %w", err)
	}
	if ended.Valid {
		return fmt.Errorf("%w: %s", ErrSessionEnded, sessionID)
	}

	_, err = s.db.Exec(`
		INSERT INTO scans (session_id, seq, captured_at, buckets, ranges_cbor, samples, revolutions, desyncs)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, sessionID, seq, at.UnixNano(), len(ranges), blob, stats.Samples, stats.Scans, stats.Desyncs)
	if err != nil {
		return fmt.Errorf("failed to insert scan %d: %w", seq, err)
	}
	return nil
}

// EndSession marks a session ended and stores the final decoder counters
func (s *Store) EndSession(sessionID string, at time.Time, stats rplidar.Statistics) error {
	res, err := s.db.Exec(`
		UPDATE scan_sessions SET ended_at = ?, samples = ?, desyncs = ?
		WHERE session_id = ? AND ended_at IS NULL
	`, at.UnixNano(), stats.Samples, stats.Desyncs, sessionID)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.GetSession(sessionID); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s", ErrSessionEnded, sessionID)
	}
	return nil
}

const sessionColumns = `
	s.session_id, s.source, s.device_info, s.min_angle, s.max_angle, s.resolution,
	s.started_at, s.ended_at, s.notes, s.samples, s.desyncs,
	(SELECT COUNT(*) FROM scans c WHERE c.session_id = s.session_id)`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (Session, error) {
	var sess Session
	var started int64
	var ended sql.NullInt64
	err := row.Scan(&sess.ID, &sess.Source, &sess.DeviceInfo, &sess.MinAngle, &sess.MaxAngle, &sess.Resolution,
		&started, &ended, &sess.Notes, &sess.Samples, &sess.Desyncs, &sess.Scans)
	if err != nil {
		return Session{}, err
	}
	sess.StartedAt = time.Unix(0, started)
	if ended.Valid {
		t := time.Unix(0, ended.Int64)
		sess.EndedAt = &t
	}
	return sess, nil
}

// GetSession returns one session
func (s *Store) GetSession(sessionID string) (Session, error) {
	row := s.db.QueryRow(`SELECT `+sessionColumns+` FROM scan_sessions s WHERE s.session_id = ?`, sessionID)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return Session{}, fmt.Errorf("failed to read session: %w", err)
	}
	return sess, nil
}

// ListSessions returns every session, newest first
func (s *Store) ListSessions() ([]Session, error) {
	rows, err := s.db.Query(`SELECT ` + sessionColumns + ` FROM scan_sessions s ORDER BY s.started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to read session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// Scans returns the scans of a session in capture order as recording frames
func (s *Store) Scans(sessionID string) ([]scanlog.Frame, error) {
	if _, err := s.GetSession(sessionID); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`
		SELECT seq, captured_at, ranges_cbor, samples, revolutions, desyncs
		FROM scans WHERE session_id = ? ORDER BY seq
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query scans: %w", err)
	}
	defer rows.Close()

	var frames []scanlog.Frame
	for rows.Next() {
		var f scanlog.Frame
		var blob []byte
		if err := rows.Scan(&f.Seq, &f.Time, &blob, &f.Samples, &f.Scans, &f.Desyncs); err != nil {
			return nil, fmt.Errorf("failed to read scan: %w", err)
		}
		if err := cbor.Unmarshal(blob, &f.Ranges); err != nil {
			return nil, fmt.Errorf("decode scan %d: %w", f.Seq, err)
		}
		frames = append(frames, f)
	}
	return frames, rows.Err()
}

// Header returns a recording header describing the session
func (sess Session) Header() scanlog.Header {
	return scanlog.Header{
		Created:    sess.StartedAt.UnixNano(),
		MinAngle:   sess.MinAngle,
		MaxAngle:   sess.MaxAngle,
		Resolution: sess.Resolution,
		DeviceInfo: sess.DeviceInfo,
		Source:     sess.Source,
	}
}

// DeleteSession removes a session and its scans
func (s *Store) DeleteSession(sessionID string) error {
	res, err := s.db.Exec(`DELETE FROM scan_sessions WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return nil
}
