package archive

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// ErrRunNotFound is returned when no run has the requested ID.
var ErrRunNotFound = errors.New("run not found")

// SetupSchema initializes the necessary tables in the provided database. It
// is idempotent and safe to call on an already-initialized database.
func SetupSchema(db *sql.DB) error {

	const (
		schemaRuns = `
CREATE TABLE IF NOT EXISTS cadence_runs (
    run_id TEXT PRIMARY KEY,
    unit TEXT NOT NULL,
    model TEXT NOT NULL,
    mode TEXT NOT NULL,
    instruments TEXT NOT NULL,
    params TEXT NOT NULL,
    seed TEXT NOT NULL,
    steps INTEGER NOT NULL,
    elapsed REAL NOT NULL,
    insufficient INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL
);
`
		schemaSteps = `
CREATE TABLE IF NOT EXISTS cadence_steps (
    run_id TEXT NOT NULL,
    step INTEGER NOT NULL,
    instrument_idx INTEGER NOT NULL,
    type TEXT NOT NULL,
    content TEXT NOT NULL,
    duration REAL NOT NULL,
    measure REAL NOT NULL,
    beat REAL NOT NULL,
    PRIMARY KEY (run_id, step, instrument_idx)
);
`
		indexRunsCreated = `CREATE INDEX IF NOT EXISTS cadence_runs_created ON cadence_runs (created_at);`
	)

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.Exec(schemaRuns); err != nil {
		return fmt.Errorf("could not create runs schema: %w", err)
	}

	if _, err = tx.Exec(schemaSteps); err != nil {
		return fmt.Errorf("could not create steps schema: %w", err)
	}

	if _, err = tx.Exec(indexRunsCreated); err != nil {
		return fmt.Errorf("could not create runs index: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	return nil
}

// Archive holds the database connection and the prepared statements used to
// record and query runs.
type Archive struct {
	db              *sql.DB
	stmtInsertRun   *sql.Stmt
	stmtInsertStep  *sql.Stmt
	stmtGetRun      *sql.Stmt
	stmtListRuns    *sql.Stmt
	stmtGetSteps    *sql.Stmt
	stmtCountRuns   *sql.Stmt
	stmtCountSteps  *sql.Stmt
	stmtModelCounts *sql.Stmt
	logger          *slog.Logger
}

const runColumns = `run_id, unit, model, mode, instruments, params, seed, steps, elapsed, insufficient, created_at`

// New creates an Archive over db. It pre-compiles all necessary SQL
// statements, returning an error if any preparation fails.
func New(db *sql.DB) (*Archive, error) {
	stmtInsertRun, err := db.Prepare(`INSERT INTO cadence_runs (` + runColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`)
	if err != nil {
		return nil, err
	}

	stmtInsertStep, err := db.Prepare(`INSERT INTO cadence_steps (run_id, step, instrument_idx, type, content, duration, measure, beat) VALUES (?, ?, ?, ?, ?, ?, ?, ?);`)
	if err != nil {
		return nil, err
	}

	stmtGetRun, err := db.Prepare(`SELECT ` + runColumns + ` FROM cadence_runs WHERE run_id = ?;`)
	if err != nil {
		return nil, err
	}

	stmtListRuns, err := db.Prepare(`SELECT ` + runColumns + ` FROM cadence_runs ORDER BY created_at DESC, run_id;`)
	if err != nil {
		return nil, err
	}

	stmtGetSteps, err := db.Prepare(`SELECT step, instrument_idx, type, content, duration, measure, beat FROM cadence_steps WHERE run_id = ? ORDER BY step, instrument_idx;`)
	if err != nil {
		return nil, err
	}

	stmtCountRuns, err := db.Prepare(`SELECT COUNT(*), coalesce(SUM(insufficient), 0) FROM cadence_runs;`)
	if err != nil {
		return nil, err
	}

	stmtCountSteps, err := db.Prepare(`SELECT COUNT(*) FROM cadence_steps;`)
	if err != nil {
		return nil, err
	}

	stmtModelCounts, err := db.Prepare(`SELECT model, COUNT(*) FROM cadence_runs GROUP BY model;`)
	if err != nil {
		return nil, err
	}

	return &Archive{
		db:              db,
		stmtInsertRun:   stmtInsertRun,
		stmtInsertStep:  stmtInsertStep,
		stmtGetRun:      stmtGetRun,
		stmtListRuns:    stmtListRuns,
		stmtGetSteps:    stmtGetSteps,
		stmtCountRuns:   stmtCountRuns,
		stmtCountSteps:  stmtCountSteps,
		stmtModelCounts: stmtModelCounts,
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, nil
}

// Close releases all prepared SQL statements held by the Archive. The
// database itself stays open.
func (a *Archive) Close() {
	_ = a.stmtInsertRun.Close()
	_ = a.stmtInsertStep.Close()
	_ = a.stmtGetRun.Close()
	_ = a.stmtListRuns.Close()
	_ = a.stmtGetSteps.Close()
	_ = a.stmtCountRuns.Close()
	_ = a.stmtCountSteps.Close()
	_ = a.stmtModelCounts.Close()
}

// SetLogger sets the logger for the Archive. By default, all logs are discarded.
func (a *Archive) SetLogger(logger *slog.Logger) {
	if logger != nil {
		a.logger = logger
	}
}
