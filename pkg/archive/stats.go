package archive

import (
	"context"
	"database/sql"
)

// Stats holds aggregated statistics for the entire archive.
type Stats struct {
	Runs         int            // The number of archived runs
	Insufficient int            // The number of runs that produced sentinel output
	Steps        int            // The number of stored step rows, one per instrument and step
	Models       map[string]int // The number of runs per model
}

// Stats returns a snapshot of statistics for the archive.
func (a *Archive) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{Models: make(map[string]int)}

	err := a.stmtCountRuns.QueryRowContext(ctx).Scan(&stats.Runs, &stats.Insufficient)
	if err != nil {
		return nil, err
	}

	err = a.stmtCountSteps.QueryRowContext(ctx).Scan(&stats.Steps)
	if err != nil {
		return nil, err
	}

	rows, err := a.stmtModelCounts.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)
	for rows.Next() {
		var model string
		var n int
		if err = rows.Scan(&model, &n); err != nil {
			return nil, err
		}
		stats.Models[model] = n
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	return stats, nil
}
