package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/model"
	apperrors "github.com/PSA-Corporate-Learning-Branch/psaelmsync/pkg/errors"
)

// RunRepository persists per-cycle summaries. Summaries are written once,
// after the cycle finishes, and never updated.
type RunRepository interface {
	Create(ctx context.Context, run *model.RunSummary) error
	FindByID(ctx context.Context, id string) (*model.RunSummary, error)
	ListRecent(ctx context.Context, limit int) ([]model.RunSummary, error)
}

type runRepository struct {
	db *sql.DB
}

func NewRunRepository(db *sql.DB) RunRepository {
	return &runRepository{db: db}
}

const runColumns = `id, trigger_source, query, window_start, window_end, started_at, finished_at,
	fetched, enrolled, suspended, errored, skipped`

func (r *runRepository) Create(ctx context.Context, run *model.RunSummary) error {
	query := `INSERT INTO reconcile_runs
		(` + runColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		run.ID, run.Trigger, run.Query, run.WindowStart, run.WindowEnd,
		run.StartedAt, run.FinishedAt, run.Fetched,
		run.Enrolled, run.Suspended, run.Errored, run.Skipped,
	)
	return err
}

func (r *runRepository) FindByID(ctx context.Context, id string) (*model.RunSummary, error) {
	query := `SELECT ` + runColumns + ` FROM reconcile_runs WHERE id = ?`

	run, err := scanRun(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (r *runRepository) ListRecent(ctx context.Context, limit int) ([]model.RunSummary, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `SELECT ` + runColumns + ` FROM reconcile_runs ORDER BY started_at DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []model.RunSummary
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*model.RunSummary, error) {
	var run model.RunSummary
	err := row.Scan(
		&run.ID, &run.Trigger, &run.Query, &run.WindowStart, &run.WindowEnd,
		&run.StartedAt, &run.FinishedAt, &run.Fetched,
		&run.Enrolled, &run.Suspended, &run.Errored, &run.Skipped,
	)
	if err != nil {
		return nil, err
	}
	return &run, nil
}
