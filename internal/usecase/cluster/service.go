// Package cluster assigns an accepted Signal to the StoryCluster reporting
// the same underlying event, creating one if none matches.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"time"

	"companionradar/internal/domain/entity"
	"companionradar/internal/pkg/hashutil"
	"companionradar/internal/pkg/textutil"
	"companionradar/internal/pkg/tfidf"
	"companionradar/internal/repository"
)

// Config holds the clusterer's tunable thresholds, per spec.md §4.6.
type Config struct {
	SimilarityThreshold float64 // Phase 2 TF-IDF+platform-bonus match cutoff, default 0.4
	TrgmThreshold       float64 // Phase 1 trigram candidate cutoff, default 0.2
	ActiveDays          int     // candidate/stale-sweep recency window, default 7
}

// DefaultConfig returns spec.md §4.6's defaults.
func DefaultConfig() Config {
	return Config{SimilarityThreshold: 0.4, TrgmThreshold: 0.2, ActiveDays: 7}
}

// Service implements the clusterer's assignment protocol and stale sweep.
type Service struct {
	tx          repository.Transactor
	clusterRepo repository.ClusterRepository
	signalRepo  repository.SignalRepository
	cfg         Config
}

// New builds a Service.
func New(tx repository.Transactor, clusterRepo repository.ClusterRepository, signalRepo repository.SignalRepository, cfg Config) *Service {
	return &Service{tx: tx, clusterRepo: clusterRepo, signalRepo: signalRepo, cfg: cfg}
}

// Assign runs the full create-or-attach protocol for one accepted signal
// inside a single transaction, per spec.md §4.6 steps 1-7, and returns the
// cluster it ended up attached to.
func (s *Service) Assign(ctx context.Context, signal *entity.Signal) (int64, error) {
	platformSlugs := slugify(signal.Entities.Platforms)
	fingerprint := Fingerprint(signal, platformSlugs)
	lockKey := hashutil.AdvisoryLockKey(fingerprint)

	var clusterID int64
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.clusterRepo.Lock(ctx, lockKey); err != nil {
			return fmt.Errorf("Assign: %w", err)
		}

		existing, err := s.clusterRepo.FindByFingerprint(ctx, fingerprint)
		if err == nil {
			clusterID = existing.ID
			return s.attach(ctx, signal, existing.ID)
		}
		if !errors.Is(err, entity.ErrNotFound) {
			return fmt.Errorf("Assign: %w", err)
		}

		searchText := tfidf.BuildSearchText(signal.SuggestedHeadline, signal.Summary)

		candidates, err := s.clusterRepo.FindCandidates(ctx, searchText, s.cfg.TrgmThreshold, s.cfg.ActiveDays)
		if err != nil {
			return fmt.Errorf("Assign: %w", err)
		}
		if best := bestMatch(searchText, platformSlugs, candidates); best != nil {
			if tfidf.AdjustedSimilarity(searchText, best.Cluster.SearchText, platformSlugs, best.Platforms) >= s.cfg.SimilarityThreshold {
				clusterID = best.Cluster.ID
				return s.attach(ctx, signal, best.Cluster.ID)
			}
		}

		id, err := s.createCluster(ctx, signal, fingerprint, searchText, platformSlugs)
		if errors.Is(err, entity.ErrAlreadyExists) {
			raced, ferr := s.clusterRepo.FindByFingerprint(ctx, fingerprint)
			if ferr != nil {
				return fmt.Errorf("Assign: race fallback: %w", ferr)
			}
			clusterID = raced.ID
			return s.attach(ctx, signal, raced.ID)
		}
		if err != nil {
			return fmt.Errorf("Assign: %w", err)
		}
		clusterID = id
		return s.attach(ctx, signal, id)
	})
	if err != nil {
		return 0, err
	}
	return clusterID, nil
}

// bestMatch returns the candidate with the highest Phase 2 adjusted
// similarity, or nil if candidates is empty.
func bestMatch(searchText string, platformSlugs []string, candidates []repository.ClusterCandidate) *repository.ClusterCandidate {
	if len(candidates) == 0 {
		return nil
	}
	best := candidates[0]
	bestScore := tfidf.AdjustedSimilarity(searchText, best.Cluster.SearchText, platformSlugs, best.Platforms)
	for _, c := range candidates[1:] {
		score := tfidf.AdjustedSimilarity(searchText, c.Cluster.SearchText, platformSlugs, c.Platforms)
		if score > bestScore {
			best, bestScore = c, score
		}
	}
	return &best
}

func (s *Service) createCluster(ctx context.Context, signal *entity.Signal, fingerprint, searchText string, platformSlugs []string) (int64, error) {
	now := time.Now()
	firstSeen := signal.PublishedAt
	if firstSeen.IsZero() {
		firstSeen = now
	}

	headline := signal.SuggestedHeadline
	if headline == "" {
		headline = "Untitled Story"
	}

	c := &entity.StoryCluster{
		Fingerprint:    fingerprint,
		Headline:       textutil.Truncate(headline, entity.ClusterHeadlineLimit),
		ContextSummary: textutil.Truncate(signal.Summary, entity.ClusterSummaryLimit),
		SearchText:     searchText,
		Categories:     signal.Categories,
		FirstSeenAt:    firstSeen,
		LastSeenAt:     now,
		LastSignalAt:   now,
		Status:         entity.ClusterStatusActive,
	}
	return s.clusterRepo.Create(ctx, c, platformSlugs)
}

func (s *Service) attach(ctx context.Context, signal *entity.Signal, clusterID int64) error {
	now := time.Now()
	if err := s.clusterRepo.Attach(ctx, clusterID, now); err != nil {
		return fmt.Errorf("attach: %w", err)
	}
	if err := s.signalRepo.AttachToCluster(ctx, signal.ID, clusterID); err != nil {
		return fmt.Errorf("attach: %w", err)
	}
	return nil
}

// SweepStale demotes ACTIVE clusters whose lastSignalAt has aged past the
// active-days window to STALE, returning the count demoted.
func (s *Service) SweepStale(ctx context.Context) (int, error) {
	n, err := s.clusterRepo.SweepStale(ctx, s.cfg.ActiveDays)
	if err != nil {
		return 0, fmt.Errorf("SweepStale: %w", err)
	}
	return n, nil
}

func slugify(names []string) []string {
	slugs := make([]string, 0, len(names))
	for _, name := range names {
		if slug := textutil.Slugify(name); slug != "" {
			slugs = append(slugs, slug)
		}
	}
	return slugs
}
