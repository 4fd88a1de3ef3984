// Package hwmirror persists the optional "hardware-mirror" fitted-track
// records spec §6's output contract allows for bit-level firmware
// comparison. The schema also creates a stub_records table, but nothing
// in this package writes stub records to it. It is a side-store the core
// never reads from: producer output is the source of truth, hwmirror
// only archives it.
//
// Grounded on the teacher's internal/db (pure-Go modernc.org/sqlite,
// golang-migrate with the iofs source driver), simplified: the
// teacher's schema-detection/baselining machinery
// (DetectSchemaVersion/CompareSchemas/GetSchemaAtMigration) exists to
// reconcile a long-lived, hand-evolved production database against
// multiple historical schema snapshots; a diagnostic side-store with one
// linear migration history has no such reconciliation problem, so this
// package runs migrateUp once at Open and stops there (see DESIGN.md).
package hwmirror

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/jkastelic/tmtracktrigger/internal/track"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is a handle to the hardware-mirror sqlite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the sqlite database at path and
// migrates it to the latest schema version.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("hwmirror: open %s: %w", path, err)
	}
	s := &Store{db: db}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrateUp() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("hwmirror: iofs source: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("hwmirror: sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("hwmirror: migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("hwmirror: migrate up: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordFittedTracks archives one event's fitted-track output, assigning
// each record a stable UUID (spec SF.2 wiring: "stable per-event/per-track
// identifiers for hardware-mirror export and diagnostic correlation").
func (s *Store) RecordFittedTracks(eventID string, tracks []*track.FittedTrack) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("hwmirror: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO track_records
		(id, event_id, i_phi_sector, i_eta_region, q_over_pt, phi0, z0, tan_lambda, d0, chi2, num_params, fitter_name)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("hwmirror: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range tracks {
		id := uuid.NewString()
		if _, err := stmt.Exec(id, eventID, t.IPhiSec, t.IEtaReg, t.QOverPt, t.Phi0, t.Z0, t.TanLambda, t.D0, t.Chi2, t.NumParams, t.FitterName); err != nil {
			return fmt.Errorf("hwmirror: insert track record: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("hwmirror: commit: %w", err)
	}
	return nil
}

// TrackRecord is one archived row, returned by FittedTracksForEvent for
// firmware bit-level comparison tooling.
type TrackRecord struct {
	ID                      string
	EventID                 string
	IPhiSec, IEtaReg        int
	QOverPt, Phi0, Z0       float64
	TanLambda, D0, Chi2     float64
	NumParams               int
	FitterName              string
}

// FittedTracksForEvent returns every archived track record for eventID.
func (s *Store) FittedTracksForEvent(eventID string) ([]TrackRecord, error) {
	rows, err := s.db.Query(`SELECT id, event_id, i_phi_sector, i_eta_region, q_over_pt, phi0, z0, tan_lambda, d0, chi2, num_params, fitter_name
		FROM track_records WHERE event_id = ?`, eventID)
	if err != nil {
		return nil, fmt.Errorf("hwmirror: query event %s: %w", eventID, err)
	}
	defer rows.Close()

	var out []TrackRecord
	for rows.Next() {
		var r TrackRecord
		if err := rows.Scan(&r.ID, &r.EventID, &r.IPhiSec, &r.IEtaReg, &r.QOverPt, &r.Phi0, &r.Z0, &r.TanLambda, &r.D0, &r.Chi2, &r.NumParams, &r.FitterName); err != nil {
			return nil, fmt.Errorf("hwmirror: scan track record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
