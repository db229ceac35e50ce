package rank_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"companionradar/internal/domain/entity"
	"companionradar/internal/repository"
	"companionradar/internal/usecase/rank"
)

type fakeClusterRepo struct {
	active        []*entity.StoryCluster
	updatedScore  int64
	updatedBreak  entity.ScoreBreakdown
	updateErr     error
	updateCalls   int
}

func (f *fakeClusterRepo) Lock(ctx context.Context, lockKey int64) error { return nil }
func (f *fakeClusterRepo) FindByFingerprint(ctx context.Context, fingerprint string) (*entity.StoryCluster, error) {
	return nil, entity.ErrNotFound
}
func (f *fakeClusterRepo) FindCandidates(ctx context.Context, querySearchText string, trgmThreshold float64, activeDays int) ([]repository.ClusterCandidate, error) {
	return nil, nil
}
func (f *fakeClusterRepo) Create(ctx context.Context, c *entity.StoryCluster, platformSlugs []string) (int64, error) {
	return 0, nil
}
func (f *fakeClusterRepo) Attach(ctx context.Context, clusterID int64, now time.Time) error { return nil }
func (f *fakeClusterRepo) PlatformsForCluster(ctx context.Context, clusterID int64) ([]string, error) {
	return nil, nil
}
func (f *fakeClusterRepo) SweepStale(ctx context.Context, activeDays int) (int, error) { return 0, nil }
func (f *fakeClusterRepo) ListActive(ctx context.Context) ([]*entity.StoryCluster, error) {
	return f.active, nil
}
func (f *fakeClusterRepo) UpdateScore(ctx context.Context, clusterID int64, score int64, breakdown entity.ScoreBreakdown) error {
	f.updateCalls++
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updatedScore = score
	f.updatedBreak = breakdown
	return nil
}
func (f *fakeClusterRepo) Feed(ctx context.Context, filter repository.FeedFilter) ([]repository.FeedCluster, error) {
	return nil, nil
}

func (f *fakeClusterRepo) ActiveCountsByPlatform(ctx context.Context) (map[string]int, error) {
	return nil, nil
}

type fakeSignalRepo struct {
	byCluster map[int64][]*entity.Signal
	recent    map[int64]int
}

func (f *fakeSignalRepo) FindByID(ctx context.Context, id int64) (*entity.Signal, error) { return nil, nil }
func (f *fakeSignalRepo) ListPending(ctx context.Context) ([]*entity.Signal, error) {
	return nil, nil
}
func (f *fakeSignalRepo) ApplyNormalization(ctx context.Context, s *entity.Signal) error { return nil }
func (f *fakeSignalRepo) AttachToCluster(ctx context.Context, signalID, clusterID int64) error {
	return nil
}
func (f *fakeSignalRepo) RecentByCluster(ctx context.Context, clusterID int64, withinMinutes int) (int, error) {
	return f.recent[clusterID], nil
}
func (f *fakeSignalRepo) ListByCluster(ctx context.Context, clusterID int64, limit int) ([]*entity.Signal, error) {
	return f.byCluster[clusterID], nil
}
func (f *fakeSignalRepo) ListByClusterWithSource(ctx context.Context, clusterID int64, limit int) ([]repository.SignalWithSource, error) {
	return nil, nil
}
func (f *fakeSignalRepo) CountByCluster(ctx context.Context, clusterID int64) (int, error) {
	return 0, nil
}

type fakeCredibilityRepo struct {
	weights map[string]float64
}

func (f *fakeCredibilityRepo) WeightsForDomains(ctx context.Context, domains []string) (map[string]float64, error) {
	out := make(map[string]float64)
	for _, d := range domains {
		if w, ok := f.weights[d]; ok {
			out[d] = w
		}
	}
	return out, nil
}

func TestService_Recompute_NoSignals(t *testing.T) {
	clusterRepo := &fakeClusterRepo{}
	signalRepo := &fakeSignalRepo{byCluster: map[int64][]*entity.Signal{}, recent: map[int64]int{}}
	credRepo := &fakeCredibilityRepo{}
	svc := rank.New(clusterRepo, signalRepo, credRepo, rank.DefaultConfig())

	c := &entity.StoryCluster{ID: 1, LastSignalAt: time.Now()}
	err := svc.Recompute(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, 1, clusterRepo.updateCalls)
	// No signals: sourceDiversity=0, velocity=ln(1)=0, credibility=0.5*1.5=0.75,
	// category floor 1.0*2.0=2.0, recency~=1.0*1.0 (just scored), manual=0.
	assert.InDelta(t, 0.75+2.0+1.0, clusterRepo.updatedBreak.Total, 0.05)
}

func TestService_Recompute_WeightsSourceDiversityAndCredibility(t *testing.T) {
	clusterRepo := &fakeClusterRepo{}
	signals := []*entity.Signal{
		{CanonicalURL: "https://a.example.com/1", CreatedAt: time.Now()},
		{CanonicalURL: "https://b.example.com/1", CreatedAt: time.Now()},
	}
	signalRepo := &fakeSignalRepo{
		byCluster: map[int64][]*entity.Signal{1: signals},
		recent:    map[int64]int{1: 2},
	}
	credRepo := &fakeCredibilityRepo{weights: map[string]float64{"a.example.com": 1.0, "b.example.com": 0.8}}
	svc := rank.New(clusterRepo, signalRepo, credRepo, rank.DefaultConfig())

	c := &entity.StoryCluster{ID: 1, LastSignalAt: time.Now(), Categories: []entity.Category{entity.CategoryRegulatoryLegal}}
	err := svc.Recompute(context.Background(), c)
	require.NoError(t, err)

	b := clusterRepo.updatedBreak
	assert.InDelta(t, 2*2.0, b.SourceDiversity, 0.001)
	assert.InDelta(t, 0.9*1.5, b.Credibility, 0.001)
	assert.InDelta(t, 1.5*2.0, b.Category, 0.001)
	assert.Greater(t, clusterRepo.updatedScore, int64(0))
}

func TestService_RecomputeAll_ContinuesPastFailure(t *testing.T) {
	clusterRepo := &fakeClusterRepo{
		active: []*entity.StoryCluster{
			{ID: 1, LastSignalAt: time.Now()},
			{ID: 2, LastSignalAt: time.Now()},
		},
	}
	signalRepo := &fakeSignalRepo{byCluster: map[int64][]*entity.Signal{}, recent: map[int64]int{}}
	credRepo := &fakeCredibilityRepo{}
	svc := rank.New(clusterRepo, signalRepo, credRepo, rank.DefaultConfig())

	err := svc.RecomputeAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, clusterRepo.updateCalls)
}
