package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"companionradar/internal/domain/entity"
	"companionradar/internal/repository"
)

type IngestRunRepo struct{ db *sql.DB }

func NewIngestRunRepo(db *sql.DB) repository.IngestRunRepository {
	return &IngestRunRepo{db: db}
}

func (repo *IngestRunRepo) Start(ctx context.Context) (int64, error) {
	const query = `INSERT INTO ingest_runs (status) VALUES ($1) RETURNING id`
	var id int64
	if err := repo.db.QueryRowContext(ctx, query, entity.IngestRunStatusRunning).Scan(&id); err != nil {
		return 0, fmt.Errorf("Start: %w", err)
	}
	return id, nil
}

func (repo *IngestRunRepo) Finish(ctx context.Context, run *entity.IngestRun) error {
	errs, err := json.Marshal(run.Errors)
	if err != nil {
		return fmt.Errorf("Finish: marshal errors: %w", err)
	}

	const query = `
UPDATE ingest_runs SET
    finished_at = $1, status = $2, fetched = $3, accepted = $4, rejected = $5, errors = $6
WHERE id = $7`
	res, err := repo.db.ExecContext(ctx, query,
		run.FinishedAt, run.Status, run.Fetched, run.Accepted, run.Rejected, errs, run.ID,
	)
	if err != nil {
		return fmt.Errorf("Finish: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return entity.ErrNotFound
	}
	return nil
}

func (repo *IngestRunRepo) List(ctx context.Context, limit int) ([]*entity.IngestRun, error) {
	const query = `
SELECT id, started_at, finished_at, status, fetched, accepted, rejected, errors
FROM ingest_runs ORDER BY started_at DESC LIMIT $1`
	rows, err := repo.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*entity.IngestRun
	for rows.Next() {
		var r entity.IngestRun
		var errsRaw []byte
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Status, &r.Fetched, &r.Accepted, &r.Rejected, &errsRaw); err != nil {
			return nil, fmt.Errorf("List: Scan: %w", err)
		}
		if len(errsRaw) > 0 {
			if err := json.Unmarshal(errsRaw, &r.Errors); err != nil {
				return nil, fmt.Errorf("List: unmarshal errors: %w", err)
			}
		}
		runs = append(runs, &r)
	}
	return runs, rows.Err()
}
