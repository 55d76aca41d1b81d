package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"feasibility.app/etl/core/db"
	"feasibility.app/etl/internal/model"
)

const pipelineRunColumns = `id, trigger, status, fetched, dropped, loaded, failed_rows, dropped_percent, error, started_at, finished_at`

type pipelineRunStore struct {
	conn db.DBTX
}

func newPipelineRunStore(conn db.DBTX) PipelineRunStore {
	return &pipelineRunStore{conn: conn}
}

func (s *pipelineRunStore) Create(ctx context.Context, run *model.PipelineRun) (*model.PipelineRun, error) {
	row := s.conn.QueryRow(ctx, `
		INSERT INTO etl_runs (id, trigger, status)
		VALUES ($1, $2, $3)
		RETURNING `+pipelineRunColumns,
		run.ID, run.Trigger, run.Status)
	return scanPipelineRun(row)
}

func (s *pipelineRunStore) Finish(ctx context.Context, run *model.PipelineRun) error {
	tag, err := s.conn.Exec(ctx, `
		UPDATE etl_runs
		SET status = $2, fetched = $3, dropped = $4, loaded = $5, failed_rows = $6,
		    dropped_percent = $7, error = $8, finished_at = now()
		WHERE id = $1`,
		run.ID, run.Status, run.Fetched, run.Dropped, run.Loaded, run.FailedRows,
		run.DroppedPercent, run.Error)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pipelineRunStore) GetByID(ctx context.Context, id int64) (*model.PipelineRun, error) {
	row := s.conn.QueryRow(ctx, `SELECT `+pipelineRunColumns+` FROM etl_runs WHERE id = $1`, id)
	run, err := scanPipelineRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return run, nil
}

func (s *pipelineRunStore) List(ctx context.Context, limit int32) ([]model.PipelineRun, error) {
	rows, err := s.conn.Query(ctx, `SELECT `+pipelineRunColumns+` FROM etl_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []model.PipelineRun{}
	for rows.Next() {
		run, err := scanPipelineRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func scanPipelineRun(row pgx.Row) (*model.PipelineRun, error) {
	var run model.PipelineRun
	if err := row.Scan(
		&run.ID,
		&run.Trigger,
		&run.Status,
		&run.Fetched,
		&run.Dropped,
		&run.Loaded,
		&run.FailedRows,
		&run.DroppedPercent,
		&run.Error,
		&run.StartedAt,
		&run.FinishedAt,
	); err != nil {
		return nil, err
	}
	return &run, nil
}
