package repository

import (
	"context"

	"companionradar/internal/domain/entity"
)

// SignalRepository manages the interpreted view of fetched items: its
// PENDING→terminal status transition and, once accepted, its cluster link.
type SignalRepository interface {
	// FindByID loads a Signal by its primary key. Returns entity.ErrNotFound
	// if no row exists.
	FindByID(ctx context.Context, id int64) (*entity.Signal, error)

	// ListPending returns every PENDING signal, for the normalizer to
	// consume. The pipeline runs single-coordinator, so no concurrent cycle
	// can create new PENDING rows while one cycle's normalize stage runs.
	ListPending(ctx context.Context) ([]*entity.Signal, error)

	// ApplyNormalization persists the normalizer's verdict: ingest status,
	// reason, and (when accepted) the extracted facts. Called at most once
	// per signal.
	ApplyNormalization(ctx context.Context, s *entity.Signal) error

	// AttachToCluster sets clusterId on an ACCEPTED signal. Called exactly
	// once per signal, inside the same transaction as the cluster
	// assignment that decided it.
	AttachToCluster(ctx context.Context, signalID, clusterID int64) error

	// RecentByCluster counts the cluster's signals created within the last
	// withinMinutes, feeding the ranker's velocity term.
	RecentByCluster(ctx context.Context, clusterID int64, withinMinutes int) (int, error)

	// ListByCluster returns a cluster's signals, newest first, capped at
	// limit, for presentation and for the ranker's source-diversity and
	// credibility terms.
	ListByCluster(ctx context.Context, clusterID int64, limit int) ([]*entity.Signal, error)

	// ListByClusterWithSource is ListByCluster joined against each signal's
	// RawSignal for the source name/domain the feed response presents.
	ListByClusterWithSource(ctx context.Context, clusterID int64, limit int) ([]SignalWithSource, error)

	// CountByCluster returns the total number of signals attached to a
	// cluster, for the feed response's signalCount (which is not bounded by
	// the presentation limit ListByCluster applies).
	CountByCluster(ctx context.Context, clusterID int64) (int, error)
}

// SignalWithSource pairs a Signal with the source attribution carried by its
// RawSignal, mirroring the teacher's ArticleWithSource join.
type SignalWithSource struct {
	Signal       *entity.Signal
	SourceName   string
	SourceDomain string
}
