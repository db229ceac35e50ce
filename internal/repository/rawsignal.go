package repository

import (
	"context"

	"companionradar/internal/domain/entity"
)

// RawSignalRepository persists fetched items and answers the content-hash
// dedup check that gates creation.
type RawSignalRepository interface {
	// ExistingHashes returns the subset of hashes already present in the
	// store, used to batch-skip duplicates before inserting a fetch batch.
	ExistingHashes(ctx context.Context, hashes []string) (map[string]bool, error)

	// Create inserts a RawSignal and its companion PENDING Signal in one
	// transaction. Returns the assigned RawSignal.ID and Signal.ID.
	Create(ctx context.Context, raw *entity.RawSignal, pending *entity.Signal) (rawID, signalID int64, err error)

	// FindByID loads a RawSignal by its primary key, giving the normalizer
	// access to the fetched source name and text a Signal doesn't carry.
	// Returns entity.ErrNotFound if no row exists.
	FindByID(ctx context.Context, id int64) (*entity.RawSignal, error)
}
