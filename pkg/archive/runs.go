package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/CTAG07/Cadence/pkg/score"
)

// Run is one archived generation run. States is only used when recording;
// runs read back from the archive carry their sequence in Steps.
type Run struct {
	ID           string          `json:"id"`
	Unit         string          `json:"unit"`
	Model        string          `json:"model"`
	Mode         string          `json:"mode"`
	Instruments  []string        `json:"instruments"`
	Params       json.RawMessage `json:"params,omitempty"`
	Seed         uint64          `json:"seed"`
	Steps        int             `json:"steps"`
	Elapsed      float64         `json:"elapsed"`
	Insufficient bool            `json:"insufficient"`
	CreatedAt    time.Time       `json:"created_at"`

	States []score.JointState `json:"-"`
}

// RecordRun stores run and its states in a single transaction and returns
// the ID of the new run. An empty ID is replaced with a fresh UUID and a
// zero CreatedAt with the current time. Every state must have one event per
// instrument.
func (a *Archive) RecordRun(ctx context.Context, run Run) (string, error) {
	for i, state := range run.States {
		if len(state) != len(run.Instruments) {
			return "", fmt.Errorf("state %d has %d events for %d instruments", i, len(state), len(run.Instruments))
		}
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	if len(run.Params) == 0 {
		run.Params = json.RawMessage("{}")
	}
	instruments, err := json.Marshal(run.Instruments)
	if err != nil {
		return "", fmt.Errorf("could not encode instruments: %w", err)
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	stmtInsertRun := tx.StmtContext(ctx, a.stmtInsertRun)
	stmtInsertStep := tx.StmtContext(ctx, a.stmtInsertStep)

	_, err = stmtInsertRun.ExecContext(ctx,
		run.ID,
		run.Unit,
		run.Model,
		run.Mode,
		string(instruments),
		string(run.Params),
		strconv.FormatUint(run.Seed, 10),
		len(run.States),
		run.Elapsed,
		run.Insufficient,
		run.CreatedAt.UnixNano(),
	)
	if err != nil {
		return "", fmt.Errorf("could not insert run %s: %w", run.ID, err)
	}

	for step, state := range run.States {
		for idx, e := range state {
			_, err = stmtInsertStep.ExecContext(ctx, run.ID, step, idx, string(e.Type), e.Content, e.QuarterLength, e.Measure, e.Beat)
			if err != nil {
				return "", fmt.Errorf("failed to insert step %d of run %s: %w", step, run.ID, err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return "", fmt.Errorf("could not commit run %s: %w", run.ID, err)
	}

	a.logger.InfoContext(ctx, "Run recorded",
		slog.String("run_id", run.ID),
		slog.String("unit", run.Unit),
		slog.Int("steps", len(run.States)),
		slog.Int("instruments", len(run.Instruments)),
	)
	return run.ID, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run         Run
		instruments string
		params      string
		seed        string
		createdAt   int64
	)
	err := row.Scan(&run.ID, &run.Unit, &run.Model, &run.Mode, &instruments, &params, &seed,
		&run.Steps, &run.Elapsed, &run.Insufficient, &createdAt)
	if err != nil {
		return Run{}, err
	}
	if err = json.Unmarshal([]byte(instruments), &run.Instruments); err != nil {
		return Run{}, fmt.Errorf("run %s: corrupt instrument list: %w", run.ID, err)
	}
	if run.Seed, err = strconv.ParseUint(seed, 10, 64); err != nil {
		return Run{}, fmt.Errorf("run %s: corrupt seed: %w", run.ID, err)
	}
	run.Params = json.RawMessage(params)
	run.CreatedAt = time.Unix(0, createdAt)
	return run, nil
}

// GetRun retrieves the metadata of a single run.
func (a *Archive) GetRun(ctx context.Context, id string) (Run, error) {
	run, err := scanRun(a.stmtGetRun.QueryRowContext(ctx, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

// ListRuns retrieves the metadata of every run, newest first.
func (a *Archive) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := a.stmtListRuns.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

// Steps rebuilds the generated joint sequence of a run.
func (a *Archive) Steps(ctx context.Context, id string) ([]score.JointState, error) {
	run, err := a.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}

	rows, err := a.stmtGetSteps.QueryContext(ctx, id)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	states := make([]score.JointState, run.Steps)
	for i := range states {
		states[i] = make(score.JointState, len(run.Instruments))
	}
	for rows.Next() {
		var (
			step, idx int
			eventType string
			e         score.Event
		)
		if err := rows.Scan(&step, &idx, &eventType, &e.Content, &e.QuarterLength, &e.Measure, &e.Beat); err != nil {
			return nil, err
		}
		if step < 0 || step >= len(states) || idx < 0 || idx >= len(run.Instruments) {
			return nil, fmt.Errorf("run %s: step %d, instrument %d out of range", id, step, idx)
		}
		e.Type = score.EventType(eventType)
		states[step][idx] = e
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return states, nil
}

// Streams returns the generated sequence of a run split per instrument.
func (a *Archive) Streams(ctx context.Context, id string) ([]score.Stream, error) {
	run, err := a.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	states, err := a.Steps(ctx, id)
	if err != nil {
		return nil, err
	}
	return score.JointStreams(run.Instruments, states, run.Insufficient), nil
}

// RemoveRun deletes a run and all of its steps. The operation is performed
// within a transaction.
func (a *Archive) RemoveRun(ctx context.Context, id string) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.ExecContext(ctx, "DELETE FROM cadence_steps WHERE run_id = ?", id); err != nil {
		return fmt.Errorf("failed to remove steps for run %s: %w", id, err)
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM cadence_runs WHERE run_id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to remove run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}

	a.logger.InfoContext(ctx, "Run removed successfully",
		slog.String("run_id", id),
	)

	return tx.Commit()
}
