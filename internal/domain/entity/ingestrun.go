package entity

import "time"

// IngestRun is the audit row for one pipeline cycle.
type IngestRun struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     IngestRunStatus
	Fetched    int
	Accepted   int
	Rejected   int
	Errors     []RunError
}
