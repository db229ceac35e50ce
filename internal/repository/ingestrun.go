package repository

import (
	"context"

	"companionradar/internal/domain/entity"
)

// IngestRunRepository manages the audit row written once per pipeline
// cycle.
type IngestRunRepository interface {
	// Start inserts a new RUNNING IngestRun and returns its ID.
	Start(ctx context.Context) (int64, error)

	// Finish updates counters, status, error list, and finish timestamp.
	Finish(ctx context.Context, run *entity.IngestRun) error

	// List returns recent ingest runs, newest first, capped at limit.
	List(ctx context.Context, limit int) ([]*entity.IngestRun, error)
}
