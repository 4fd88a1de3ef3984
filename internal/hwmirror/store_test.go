package hwmirror

import (
	"os"
	"testing"

	"github.com/jkastelic/tmtracktrigger/internal/track"
)

// setupTestStore mirrors the teacher's internal/db setupTestDB helper: a
// fresh file-backed sqlite database per test, removed before and after.
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	path := t.Name() + ".db"
	_ = os.Remove(path)

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return s
}

func cleanupTestStore(t *testing.T, s *Store) {
	t.Helper()
	path := t.Name() + ".db"
	s.Close()
	_ = os.Remove(path)
}

func TestOpenMigratesSchema(t *testing.T) {
	s := setupTestStore(t)
	defer cleanupTestStore(t, s)

	var name string
	err := s.db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='track_records'`).Scan(&name)
	if err != nil {
		t.Fatalf("track_records table missing after Open/migrateUp: %v", err)
	}
	if name != "track_records" {
		t.Errorf("got table %q, want track_records", name)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := t.Name() + ".db"
	_ = os.Remove(path)
	defer os.Remove(path)

	s1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	s1.Close()

	// Re-opening an already-migrated database must not error (migrate.Up
	// returns ErrNoChange, which migrateUp treats as success).
	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	s2.Close()
}

func TestRecordAndFetchFittedTracks(t *testing.T) {
	s := setupTestStore(t)
	defer cleanupTestStore(t, s)

	tracks := []*track.FittedTrack{
		{
			IPhiSec: 2, IEtaReg: 1,
			QOverPt: 0.1, Phi0: 0.2, Z0: 1.5, TanLambda: 0.5, D0: 0.0,
			Chi2: 3.4, NumParams: 4, FitterName: "LinearRegression",
		},
		{
			IPhiSec: 2, IEtaReg: 1,
			QOverPt: -0.2, Phi0: 0.25, Z0: -1.5, TanLambda: 0.45, D0: 0.01,
			Chi2: 5.6, NumParams: 5, FitterName: "KF5ParamsComb",
		},
	}

	const eventID = "evt-0001"
	if err := s.RecordFittedTracks(eventID, tracks); err != nil {
		t.Fatalf("RecordFittedTracks failed: %v", err)
	}

	got, err := s.FittedTracksForEvent(eventID)
	if err != nil {
		t.Fatalf("FittedTracksForEvent failed: %v", err)
	}
	if len(got) != len(tracks) {
		t.Fatalf("got %d records, want %d", len(got), len(tracks))
	}

	byFitter := map[string]TrackRecord{}
	for _, r := range got {
		byFitter[r.FitterName] = r
	}

	lr, ok := byFitter["LinearRegression"]
	if !ok {
		t.Fatal("missing LinearRegression record")
	}
	if lr.EventID != eventID {
		t.Errorf("EventID = %q, want %q", lr.EventID, eventID)
	}
	if lr.IPhiSec != 2 || lr.IEtaReg != 1 {
		t.Errorf("sector indices = (%d,%d), want (2,1)", lr.IPhiSec, lr.IEtaReg)
	}
	if lr.QOverPt != 0.1 || lr.Phi0 != 0.2 || lr.Z0 != 1.5 || lr.TanLambda != 0.5 {
		t.Errorf("helix params mismatch for LinearRegression record: %+v", lr)
	}
	if lr.NumParams != 4 {
		t.Errorf("NumParams = %d, want 4", lr.NumParams)
	}
	if lr.ID == "" {
		t.Error("ID should be a non-empty generated UUID")
	}

	kf, ok := byFitter["KF5ParamsComb"]
	if !ok {
		t.Fatal("missing KF5ParamsComb record")
	}
	if kf.D0 != 0.01 || kf.NumParams != 5 {
		t.Errorf("got %+v, want D0=0.01 NumParams=5", kf)
	}
	if kf.ID == lr.ID {
		t.Error("two records were assigned the same id")
	}
}

func TestFittedTracksForEventOnlyReturnsMatchingEvent(t *testing.T) {
	s := setupTestStore(t)
	defer cleanupTestStore(t, s)

	one := []*track.FittedTrack{{FitterName: "LinearRegression", NumParams: 4}}
	two := []*track.FittedTrack{{FitterName: "LinearRegression", NumParams: 4}, {FitterName: "ChiSquaredTracklet", NumParams: 4}}

	if err := s.RecordFittedTracks("evt-a", one); err != nil {
		t.Fatalf("RecordFittedTracks(evt-a) failed: %v", err)
	}
	if err := s.RecordFittedTracks("evt-b", two); err != nil {
		t.Fatalf("RecordFittedTracks(evt-b) failed: %v", err)
	}

	gotA, err := s.FittedTracksForEvent("evt-a")
	if err != nil {
		t.Fatalf("FittedTracksForEvent(evt-a) failed: %v", err)
	}
	if len(gotA) != 1 {
		t.Fatalf("evt-a: got %d records, want 1", len(gotA))
	}

	gotB, err := s.FittedTracksForEvent("evt-b")
	if err != nil {
		t.Fatalf("FittedTracksForEvent(evt-b) failed: %v", err)
	}
	if len(gotB) != 2 {
		t.Fatalf("evt-b: got %d records, want 2", len(gotB))
	}

	gotNone, err := s.FittedTracksForEvent("evt-missing")
	if err != nil {
		t.Fatalf("FittedTracksForEvent(evt-missing) failed: %v", err)
	}
	if len(gotNone) != 0 {
		t.Errorf("evt-missing: got %d records, want 0", len(gotNone))
	}
}

func TestRecordFittedTracksEmptySliceCommitsCleanly(t *testing.T) {
	s := setupTestStore(t)
	defer cleanupTestStore(t, s)

	if err := s.RecordFittedTracks("evt-empty", nil); err != nil {
		t.Fatalf("RecordFittedTracks with no tracks should succeed, got: %v", err)
	}

	got, err := s.FittedTracksForEvent("evt-empty")
	if err != nil {
		t.Fatalf("FittedTracksForEvent failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d records, want 0", len(got))
	}
}

func TestCloseThenQueryFails(t *testing.T) {
	s := setupTestStore(t)
	path := t.Name() + ".db"
	defer os.Remove(path)

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, err := s.FittedTracksForEvent("evt-x"); err == nil {
		t.Error("expected an error querying a closed store, got nil")
	}
}
