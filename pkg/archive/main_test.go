package archive

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/CTAG07/Cadence/pkg/score"
)

// setupTestDB creates a new SQLite database file and an Archive for testing.
// It uses t.Cleanup to ensure resources are released.
func setupTestDB(t *testing.T) (*sql.DB, *Archive) {
	dbFile := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", dbFile+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := SetupSchema(db); err != nil {
		t.Fatalf("failed to set up schema: %v", err)
	}

	a, err := New(db)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(a.Close)

	return db, a
}

func ev(t score.EventType, content string, dur float64) score.Event {
	return score.Event{Type: t, Content: content, QuarterLength: dur, Measure: 1, Beat: 1}
}

// testRun returns a two-instrument run of three steps.
func testRun() Run {
	return Run{
		Unit:        "duet",
		Model:       "markov",
		Mode:        "joint",
		Instruments: []string{"cello", "violin"},
		Params:      []byte(`{"order":2}`),
		Seed:        1<<63 + 5,
		Elapsed:     3.5,
		CreatedAt:   time.Unix(1700000000, 0),
		States: []score.JointState{
			{ev(score.Note, "C3", 1), ev(score.Note, "E5", 1)},
			{ev(score.Rest, score.RestContent, 1), ev(score.Chord, "E5;G5", 0.5)},
			{ev(score.Note, "G2", 1.5), ev(score.Note, "D5", 1)},
		},
	}
}

// recordTestRun records testRun and fails the test on error.
func recordTestRun(t *testing.T, ctx context.Context, a *Archive) string {
	t.Helper()
	id, err := a.RecordRun(ctx, testRun())
	if err != nil {
		t.Fatalf("setup: RecordRun() failed: %v", err)
	}
	return id
}

// setupBench creates an archive for benchmarking.
func setupBench(b *testing.B) (*sql.DB, *Archive) {
	dbFile := filepath.Join(b.TempDir(), "bench.db")
	db, err := sql.Open("sqlite3", dbFile+"?_journal_mode=WAL&_synchronous=OFF")
	if err != nil {
		b.Fatalf("failed to open database: %v", err)
	}
	b.Cleanup(func() { _ = db.Close() })

	if err := SetupSchema(db); err != nil {
		b.Fatalf("failed to set up schema: %v", err)
	}

	a, err := New(db)
	if err != nil {
		b.Fatalf("New() error = %v", err)
	}
	b.Cleanup(a.Close)

	return db, a
}
