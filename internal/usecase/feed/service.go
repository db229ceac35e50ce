// Package feed implements the cursor-paginated cluster query, per
// spec.md §4.9.
package feed

import (
	"context"
	"fmt"
	"time"

	"companionradar/internal/domain/entity"
	"companionradar/internal/pkg/cursor"
	"companionradar/internal/repository"
)

// signalsPerCluster bounds how many of a cluster's newest signals are
// attached to each feed row for presentation.
const signalsPerCluster = 10

const (
	defaultLimit  = 20
	maxLimit      = 50
	defaultWindow = "7d"
)

var windowDurations = map[string]time.Duration{
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
}

// Query holds the parsed, still-unvalidated input to List.
type Query struct {
	Category     *entity.Category
	PlatformSlug string
	Window       string
	Cursor       string
	Limit        int
}

// PlatformRef is a platform's presentation identity on a feed row.
type PlatformRef struct {
	Slug string
	Name string
}

// Signal is one cluster's attached signal, joined with its source
// attribution for presentation.
type Signal struct {
	ID           int64
	Title        string
	CanonicalURL string
	ImageURL     string
	SourceName   string
	SourceDomain string
	PublishedAt  time.Time
	CreatedAt    time.Time
}

// Cluster is one row of the feed response.
type Cluster struct {
	ID              int64
	Headline        string
	ContextSummary  string
	Categories      []entity.Category
	Platforms       []PlatformRef
	ImportanceScore int64
	ScoreBreakdown  entity.ScoreBreakdown
	SignalCount     int
	FirstSeenAt     time.Time
	LastSignalAt    time.Time
	Signals         []Signal
}

// Result is the full response to a feed query.
type Result struct {
	Clusters   []Cluster
	NextCursor string
	HasMore    bool
}

// Service answers the paginated cluster feed query.
type Service struct {
	clusterRepo  repository.ClusterRepository
	signalRepo   repository.SignalRepository
	platformRepo repository.PlatformRepository
}

// New builds a Service.
func New(clusterRepo repository.ClusterRepository, signalRepo repository.SignalRepository, platformRepo repository.PlatformRepository) *Service {
	return &Service{clusterRepo: clusterRepo, signalRepo: signalRepo, platformRepo: platformRepo}
}

// List answers one page of the cluster feed, per spec.md §4.9: strict
// importanceScore DESC, lastSignalAt DESC, id DESC order, with an opaque
// keyset cursor and each cluster's ≤10 newest signals and platform links
// attached for presentation.
func (s *Service) List(ctx context.Context, q Query) (*Result, error) {
	window, err := resolveWindow(q.Window)
	if err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit < 1 || limit > maxLimit {
		return nil, &entity.ValidationError{Field: "limit", Message: fmt.Sprintf("must be between 1 and %d", maxLimit)}
	}

	filter := repository.FeedFilter{
		Category: q.Category,
		Since:    time.Now().Add(-window),
		Limit:    limit,
	}
	if q.PlatformSlug != "" {
		slug := q.PlatformSlug
		filter.PlatformSlug = &slug
	}
	if q.Cursor != "" {
		c, err := cursor.Decode(q.Cursor)
		if err != nil {
			return nil, &entity.ValidationError{Field: "cursor", Message: "malformed"}
		}
		fc := repository.FeedCursor{ImportanceScore: c.ImportanceScore, LastSignalAt: c.LastSignalAt, ID: c.ID}
		filter.Cursor = &fc
	}

	rows, err := s.clusterRepo.Feed(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("feed: query clusters: %w", err)
	}

	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}

	clusters, err := s.buildClusters(ctx, rows)
	if err != nil {
		return nil, err
	}

	result := &Result{Clusters: clusters, HasMore: hasMore}
	if hasMore {
		last := rows[len(rows)-1].Cluster
		token, err := cursor.Encode(cursor.Cursor{ImportanceScore: last.ImportanceScore, LastSignalAt: last.LastSignalAt, ID: last.ID})
		if err != nil {
			return nil, fmt.Errorf("feed: encode cursor: %w", err)
		}
		result.NextCursor = token
	}
	return result, nil
}

func (s *Service) buildClusters(ctx context.Context, rows []repository.FeedCluster) ([]Cluster, error) {
	platformNames, err := s.fetchPlatformNames(ctx, rows)
	if err != nil {
		return nil, err
	}

	clusters := make([]Cluster, 0, len(rows))
	for _, row := range rows {
		signals, err := s.signalRepo.ListByClusterWithSource(ctx, row.Cluster.ID, signalsPerCluster)
		if err != nil {
			return nil, fmt.Errorf("feed: list signals for cluster %d: %w", row.Cluster.ID, err)
		}
		count, err := s.signalRepo.CountByCluster(ctx, row.Cluster.ID)
		if err != nil {
			return nil, fmt.Errorf("feed: count signals for cluster %d: %w", row.Cluster.ID, err)
		}

		c := Cluster{
			ID:              row.Cluster.ID,
			Headline:        row.Cluster.Headline,
			ContextSummary:  row.Cluster.ContextSummary,
			Categories:      row.Cluster.Categories,
			ImportanceScore: row.Cluster.ImportanceScore,
			ScoreBreakdown:  row.Cluster.ScoreBreakdown,
			SignalCount:     count,
			FirstSeenAt:     row.Cluster.FirstSeenAt,
			LastSignalAt:    row.Cluster.LastSignalAt,
			Signals:         make([]Signal, 0, len(signals)),
		}
		for _, slug := range row.Platforms {
			c.Platforms = append(c.Platforms, PlatformRef{Slug: slug, Name: platformNames[slug]})
		}
		for _, sig := range signals {
			c.Signals = append(c.Signals, Signal{
				ID:           sig.Signal.ID,
				Title:        sig.Signal.Title,
				CanonicalURL: sig.Signal.CanonicalURL,
				ImageURL:     sig.Signal.ImageURL,
				SourceName:   sig.SourceName,
				SourceDomain: sig.SourceDomain,
				PublishedAt:  sig.Signal.PublishedAt,
				CreatedAt:    sig.Signal.CreatedAt,
			})
		}
		clusters = append(clusters, c)
	}
	return clusters, nil
}

// fetchPlatformNames batches a single lookup across every slug referenced
// by rows, rather than one round-trip per cluster.
func (s *Service) fetchPlatformNames(ctx context.Context, rows []repository.FeedCluster) (map[string]string, error) {
	seen := make(map[string]struct{})
	var slugs []string
	for _, row := range rows {
		for _, slug := range row.Platforms {
			if _, ok := seen[slug]; !ok {
				seen[slug] = struct{}{}
				slugs = append(slugs, slug)
			}
		}
	}
	if len(slugs) == 0 {
		return map[string]string{}, nil
	}

	platforms, err := s.platformRepo.FindBySlugs(ctx, slugs)
	if err != nil {
		return nil, fmt.Errorf("feed: find platforms: %w", err)
	}
	names := make(map[string]string, len(platforms))
	for slug, p := range platforms {
		names[slug] = p.Name
	}
	return names, nil
}

func resolveWindow(w string) (time.Duration, error) {
	if w == "" {
		w = defaultWindow
	}
	d, ok := windowDurations[w]
	if !ok {
		return 0, &entity.ValidationError{Field: "window", Message: "must be one of 24h, 7d, 30d"}
	}
	return d, nil
}
