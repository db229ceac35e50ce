package repository

import (
	"context"
	"time"

	"companionradar/internal/domain/entity"
)

// ClusterCandidate is a Phase 1 trigram-search hit, carrying just enough to
// drive the Phase 2 TF-IDF refinement without a second round-trip.
type ClusterCandidate struct {
	Cluster    *entity.StoryCluster
	Platforms  []string
	Similarity float64
}

// FeedFilter narrows the cluster feed query.
type FeedFilter struct {
	Category     *entity.Category
	PlatformSlug *string
	Since        time.Time
	Cursor       *FeedCursor
	Limit        int
}

// FeedCursor is the decoded keyset position of the last row of a prior page.
type FeedCursor struct {
	ImportanceScore int64
	LastSignalAt    time.Time
	ID              int64
}

// FeedCluster is one row of the feed query result, pre-joined with its
// platform links for presentation.
type FeedCluster struct {
	Cluster   *entity.StoryCluster
	Platforms []string
}

// ClusterRepository manages story clusters: lookup, locked create-or-attach,
// trigram candidate search, the stale sweep, and the paginated feed read.
type ClusterRepository interface {
	// Lock acquires a transaction-scoped advisory lock keyed by
	// lockKey, blocking until held. Must run inside tx and auto-releases on
	// commit or rollback.
	Lock(ctx context.Context, lockKey int64) error

	// FindByFingerprint looks up a cluster by its unique fingerprint.
	// Returns entity.ErrNotFound if none exists.
	FindByFingerprint(ctx context.Context, fingerprint string) (*entity.StoryCluster, error)

	// FindCandidates runs the Phase 1 trigram search: ACTIVE clusters with
	// lastSignalAt within activeDays whose searchText is trigram-similar to
	// querySearchText above trgmThreshold, ordered by similarity descending,
	// capped at 10. Sets the similarity threshold local to the current
	// transaction before querying.
	FindCandidates(ctx context.Context, querySearchText string, trgmThreshold float64, activeDays int) ([]ClusterCandidate, error)

	// Create inserts a new StoryCluster and links the given platform slugs
	// (ignoring slugs absent from the Platform table). Returns
	// entity.ErrAlreadyExists if the fingerprint unique constraint fires,
	// so the caller can fall back to FindByFingerprint and attach.
	Create(ctx context.Context, c *entity.StoryCluster, platformSlugs []string) (int64, error)

	// Attach sets lastSignalAt and lastSeenAt to now on the cluster.
	Attach(ctx context.Context, clusterID int64, now time.Time) error

	// PlatformsForCluster returns the slugs linked to a cluster.
	PlatformsForCluster(ctx context.Context, clusterID int64) ([]string, error)

	// SweepStale marks ACTIVE clusters with lastSignalAt older than
	// activeDays as STALE, returning the count demoted.
	SweepStale(ctx context.Context, activeDays int) (int, error)

	// ListActive returns every ACTIVE cluster, for recomputeAll.
	ListActive(ctx context.Context) ([]*entity.StoryCluster, error)

	// UpdateScore persists a freshly computed importance score and
	// breakdown.
	UpdateScore(ctx context.Context, clusterID int64, score int64, breakdown entity.ScoreBreakdown) error

	// Feed returns up to filter.Limit+1 clusters matching filter, in strict
	// importanceScore DESC, lastSignalAt DESC, id DESC order.
	Feed(ctx context.Context, filter FeedFilter) ([]FeedCluster, error)

	// ActiveCountsByPlatform returns, for every platform slug linked to at
	// least one ACTIVE cluster, the number of such clusters.
	ActiveCountsByPlatform(ctx context.Context) (map[string]int, error)
}
