// Package rank computes the multi-factor importance score persisted on
// each StoryCluster, per spec.md §4.7.
package rank

import (
	"context"
	"log/slog"
	"math"
	"time"

	"companionradar/internal/domain/entity"
	"companionradar/internal/pkg/hashutil"
	"companionradar/internal/repository"
)

// DefaultCredibilityWeight is applied to any source domain absent from the
// credibility table.
const DefaultCredibilityWeight = 0.5

// rankSignalFetchLimit bounds how many of a cluster's signals are read to
// compute its score; generous enough that no real cluster is truncated
// (a cluster past the stale-sweep window holds at most a few dozen items).
const rankSignalFetchLimit = 1000

// velocityWindowMinutes is the lookback the velocity term counts signals
// within.
const velocityWindowMinutes = 60

// Config holds the ranker's tunables, per spec.md §4.7.
type Config struct {
	MaxDomains        int     // sourceDiversity cap, default 6
	RecencyDecayHours float64 // recency term's decay constant, default 24
}

// DefaultConfig returns spec.md §4.7's defaults.
func DefaultConfig() Config {
	return Config{MaxDomains: 6, RecencyDecayHours: 24}
}

// Service computes and persists StoryCluster importance scores.
type Service struct {
	clusterRepo     repository.ClusterRepository
	signalRepo      repository.SignalRepository
	credibilityRepo repository.SourceCredibilityRepository
	cfg             Config
}

// New builds a Service.
func New(clusterRepo repository.ClusterRepository, signalRepo repository.SignalRepository, credibilityRepo repository.SourceCredibilityRepository, cfg Config) *Service {
	return &Service{clusterRepo: clusterRepo, signalRepo: signalRepo, credibilityRepo: credibilityRepo, cfg: cfg}
}

// Recompute scores one cluster and persists the result.
func (s *Service) Recompute(ctx context.Context, c *entity.StoryCluster) error {
	signals, err := s.signalRepo.ListByCluster(ctx, c.ID, rankSignalFetchLimit)
	if err != nil {
		return err
	}

	recent, err := s.signalRepo.RecentByCluster(ctx, c.ID, velocityWindowMinutes)
	if err != nil {
		return err
	}

	credibility, err := s.credibilityTerm(ctx, signals)
	if err != nil {
		return err
	}

	breakdown := entity.ScoreBreakdown{
		SourceDiversity: s.sourceDiversityTerm(signals),
		Velocity:        math.Log(1+float64(recent)) * 3.0,
		Credibility:     credibility * 1.5,
		Category:        categoryWeight(c.Categories) * 2.0,
		Recency:         math.Exp(-hoursSince(c.LastSignalAt)/s.cfg.RecencyDecayHours) * 1.0,
		Manual:          float64(c.ManualBoost) * 5.0,
	}
	breakdown.Total = breakdown.SourceDiversity + breakdown.Velocity + breakdown.Credibility +
		breakdown.Category + breakdown.Recency + breakdown.Manual

	score := int64(math.Round(breakdown.Total * 1000))
	return s.clusterRepo.UpdateScore(ctx, c.ID, score, breakdown)
}

// RecomputeAll rescoes every ACTIVE cluster. A single cluster's failure is
// logged and does not abort the rest of the batch.
func (s *Service) RecomputeAll(ctx context.Context) error {
	clusters, err := s.clusterRepo.ListActive(ctx)
	if err != nil {
		return err
	}
	for _, c := range clusters {
		if err := s.Recompute(ctx, c); err != nil {
			slog.WarnContext(ctx, "rank: failed to recompute cluster", slog.Int64("cluster_id", c.ID), slog.Any("error", err))
		}
	}
	return nil
}

func (s *Service) sourceDiversityTerm(signals []*entity.Signal) float64 {
	domains := make(map[string]struct{})
	for _, sig := range signals {
		domains[hashutil.Domain(sig.CanonicalURL)] = struct{}{}
	}
	n := len(domains)
	if n > s.cfg.MaxDomains {
		n = s.cfg.MaxDomains
	}
	return float64(n) * 2.0
}

func (s *Service) credibilityTerm(ctx context.Context, signals []*entity.Signal) (float64, error) {
	if len(signals) == 0 {
		return DefaultCredibilityWeight, nil
	}

	domains := make(map[string]struct{}, len(signals))
	for _, sig := range signals {
		domains[hashutil.Domain(sig.CanonicalURL)] = struct{}{}
	}
	domainList := make([]string, 0, len(domains))
	for d := range domains {
		domainList = append(domainList, d)
	}

	weights, err := s.credibilityRepo.WeightsForDomains(ctx, domainList)
	if err != nil {
		return 0, err
	}

	var total float64
	for _, sig := range signals {
		w, ok := weights[hashutil.Domain(sig.CanonicalURL)]
		if !ok {
			w = DefaultCredibilityWeight
		}
		total += w
	}
	return total / float64(len(signals)), nil
}

// categoryHighWeight lists the categories whose editorial weight is higher
// than the 1.0 baseline.
var categoryHighWeight = map[entity.Category]float64{
	entity.CategorySafetyYouthRisk: 1.5,
	entity.CategoryRegulatoryLegal: 1.5,
}

func categoryWeight(categories []entity.Category) float64 {
	best := 1.0
	for _, c := range categories {
		if w, ok := categoryHighWeight[c]; ok && w > best {
			best = w
		}
	}
	return best
}

func hoursSince(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return time.Since(t).Hours()
}
