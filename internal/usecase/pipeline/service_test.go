package pipeline_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"companionradar/internal/domain/entity"
	"companionradar/internal/infra/fetch"
	"companionradar/internal/repository"
	"companionradar/internal/usecase/cluster"
	"companionradar/internal/usecase/ingest"
	"companionradar/internal/usecase/normalize"
	"companionradar/internal/usecase/pipeline"
	"companionradar/internal/usecase/rank"
)

// --- fakes shared across the cycle ---

type fakeConnector struct {
	items []fetch.Item
	err   error
}

func (f *fakeConnector) CanHandle(cfg fetch.SourceConfig) bool { return true }
func (f *fakeConnector) Fetch(ctx context.Context, cfg fetch.SourceConfig) (fetch.FetchResult, error) {
	if f.err != nil {
		return fetch.FetchResult{}, f.err
	}
	return fetch.FetchResult{Items: f.items}, nil
}

type fakeRawSignalRepo struct {
	byID       map[int64]*entity.RawSignal
	signalRepo *fakeSignalRepo
	nextR      int64
	nextS      int64
}

func newFakeRawSignalRepo(signalRepo *fakeSignalRepo) *fakeRawSignalRepo {
	return &fakeRawSignalRepo{byID: map[int64]*entity.RawSignal{}, signalRepo: signalRepo}
}

func (f *fakeRawSignalRepo) ExistingHashes(ctx context.Context, hashes []string) (map[string]bool, error) {
	return map[string]bool{}, nil
}

// Create mimics the real RawSignalRepository, which inserts the raw item
// and its companion PENDING signal in one transaction: the signal becomes
// visible to ListPending immediately.
func (f *fakeRawSignalRepo) Create(ctx context.Context, raw *entity.RawSignal, pending *entity.Signal) (int64, int64, error) {
	f.nextR++
	f.nextS++
	raw.ID = f.nextR
	pending.ID = f.nextS
	pending.RawSignalID = f.nextR
	f.byID[raw.ID] = raw
	f.signalRepo.pending = append(f.signalRepo.pending, pending)
	return raw.ID, pending.ID, nil
}

func (f *fakeRawSignalRepo) FindByID(ctx context.Context, id int64) (*entity.RawSignal, error) {
	raw, ok := f.byID[id]
	if !ok {
		return nil, entity.ErrNotFound
	}
	return raw, nil
}

type fakeSignalRepo struct {
	pending  []*entity.Signal
	attached map[int64]int64
}

func (f *fakeSignalRepo) FindByID(ctx context.Context, id int64) (*entity.Signal, error) { return nil, nil }
func (f *fakeSignalRepo) ListPending(ctx context.Context) ([]*entity.Signal, error) {
	return f.pending, nil
}
func (f *fakeSignalRepo) ApplyNormalization(ctx context.Context, s *entity.Signal) error { return nil }
func (f *fakeSignalRepo) AttachToCluster(ctx context.Context, signalID, clusterID int64) error {
	if f.attached == nil {
		f.attached = make(map[int64]int64)
	}
	f.attached[signalID] = clusterID
	return nil
}
func (f *fakeSignalRepo) RecentByCluster(ctx context.Context, clusterID int64, withinMinutes int) (int, error) {
	return 0, nil
}
func (f *fakeSignalRepo) ListByCluster(ctx context.Context, clusterID int64, limit int) ([]*entity.Signal, error) {
	return nil, nil
}
func (f *fakeSignalRepo) ListByClusterWithSource(ctx context.Context, clusterID int64, limit int) ([]repository.SignalWithSource, error) {
	return nil, nil
}
func (f *fakeSignalRepo) CountByCluster(ctx context.Context, clusterID int64) (int, error) {
	return 0, nil
}

type fakePlatformRepo struct{}

func (f *fakePlatformRepo) FindBySlugs(ctx context.Context, slugs []string) (map[string]*entity.Platform, error) {
	return map[string]*entity.Platform{}, nil
}
func (f *fakePlatformRepo) LinkSignal(ctx context.Context, signalID, platformID int64) error { return nil }
func (f *fakePlatformRepo) List(ctx context.Context) ([]*entity.Platform, error)             { return nil, nil }

type fakeChatProvider struct {
	response string
	err      error
}

func (f *fakeChatProvider) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

type fakeTransactor struct{}

func (fakeTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeClusterRepo struct {
	byFingerprint map[string]*entity.StoryCluster
	platforms     map[int64][]string
	nextID        int64
	sweptDays     int
}

func newFakeClusterRepo() *fakeClusterRepo {
	return &fakeClusterRepo{byFingerprint: map[string]*entity.StoryCluster{}, platforms: map[int64][]string{}}
}

func (f *fakeClusterRepo) Lock(ctx context.Context, lockKey int64) error { return nil }
func (f *fakeClusterRepo) FindByFingerprint(ctx context.Context, fingerprint string) (*entity.StoryCluster, error) {
	c, ok := f.byFingerprint[fingerprint]
	if !ok {
		return nil, entity.ErrNotFound
	}
	return c, nil
}
func (f *fakeClusterRepo) FindCandidates(ctx context.Context, querySearchText string, trgmThreshold float64, activeDays int) ([]repository.ClusterCandidate, error) {
	return nil, nil
}
func (f *fakeClusterRepo) Create(ctx context.Context, c *entity.StoryCluster, platformSlugs []string) (int64, error) {
	f.nextID++
	c.ID = f.nextID
	f.byFingerprint[c.Fingerprint] = c
	f.platforms[c.ID] = platformSlugs
	return c.ID, nil
}
func (f *fakeClusterRepo) Attach(ctx context.Context, clusterID int64, now time.Time) error { return nil }
func (f *fakeClusterRepo) PlatformsForCluster(ctx context.Context, clusterID int64) ([]string, error) {
	return f.platforms[clusterID], nil
}
func (f *fakeClusterRepo) SweepStale(ctx context.Context, activeDays int) (int, error) {
	f.sweptDays = activeDays
	return 0, nil
}
func (f *fakeClusterRepo) ListActive(ctx context.Context) ([]*entity.StoryCluster, error) {
	var out []*entity.StoryCluster
	for _, c := range f.byFingerprint {
		out = append(out, c)
	}
	return out, nil
}
func (f *fakeClusterRepo) UpdateScore(ctx context.Context, clusterID int64, score int64, breakdown entity.ScoreBreakdown) error {
	return nil
}
func (f *fakeClusterRepo) Feed(ctx context.Context, filter repository.FeedFilter) ([]repository.FeedCluster, error) {
	return nil, nil
}

func (f *fakeClusterRepo) ActiveCountsByPlatform(ctx context.Context) (map[string]int, error) {
	return nil, nil
}

type fakeCredibilityRepo struct{}

func (f *fakeCredibilityRepo) WeightsForDomains(ctx context.Context, domains []string) (map[string]float64, error) {
	return map[string]float64{}, nil
}

type fakeIngestRunRepo struct {
	started  bool
	finished *entity.IngestRun
}

func (f *fakeIngestRunRepo) Start(ctx context.Context) (int64, error) {
	f.started = true
	return 1, nil
}
func (f *fakeIngestRunRepo) Finish(ctx context.Context, run *entity.IngestRun) error {
	f.finished = run
	return nil
}
func (f *fakeIngestRunRepo) List(ctx context.Context, limit int) ([]*entity.IngestRun, error) {
	return nil, nil
}

// --- tests ---

// harness bundles one full set of fakes wired into a pipeline.Service, so
// each test can swap in whichever fake it needs to exercise before calling
// build.
type harness struct {
	connector     *fakeConnector
	provider      *fakeChatProvider
	signalRepo    *fakeSignalRepo
	rawSignalRepo *fakeRawSignalRepo
	platformRepo  *fakePlatformRepo
	clusterRepo   *fakeClusterRepo
	credRepo      *fakeCredibilityRepo
	runRepo       *fakeIngestRunRepo
	cfg           pipeline.Config

	// signalRepoOverride, when set, is wired into every dependency instead
	// of signalRepo — lets a test exercise a SignalRepository that the
	// concrete fakeSignalRepo fields can't express (e.g. a failing query).
	signalRepoOverride repository.SignalRepository
}

func newHarness(connector *fakeConnector, provider *fakeChatProvider) *harness {
	signalRepo := &fakeSignalRepo{}
	return &harness{
		connector:     connector,
		provider:      provider,
		signalRepo:    signalRepo,
		rawSignalRepo: newFakeRawSignalRepo(signalRepo),
		platformRepo:  &fakePlatformRepo{},
		clusterRepo:   newFakeClusterRepo(),
		credRepo:      &fakeCredibilityRepo{},
		runRepo:       &fakeIngestRunRepo{},
		cfg:           pipeline.DefaultConfig(),
	}
}

func (h *harness) build() *pipeline.Service {
	var sr repository.SignalRepository = h.signalRepo
	if h.signalRepoOverride != nil {
		sr = h.signalRepoOverride
	}

	ingestSvc := ingest.NewService(h.rawSignalRepo)
	normalizeSvc := normalize.New(sr, h.rawSignalRepo, h.platformRepo, h.provider, "fake", "fake-model", nil, 0)
	clusterSvc := cluster.New(fakeTransactor{}, h.clusterRepo, sr, cluster.DefaultConfig())
	rankSvc := rank.New(h.clusterRepo, sr, h.credRepo, rank.DefaultConfig())
	sources := []fetch.SourceConfig{{Name: "test-feed", URL: "https://example.com/feed", SourceType: entity.SourceTypeMedia}}
	registry := fetch.NewRegistry(h.connector)
	return pipeline.New(sources, registry, ingestSvc, normalizeSvc, clusterSvc, rankSvc, h.runRepo, sr, h.cfg)
}

func TestService_Run_FetchesNormalizesAndClusters(t *testing.T) {
	connector := &fakeConnector{items: []fetch.Item{
		{
			URL:         "https://example.com/a1",
			Title:       "Replika adds group chat",
			PublishedAt: time.Now(),
			Extract:     "Replika launched a brand new group chat feature for premium subscribers today, the company announced.",
		},
	}}
	provider := &fakeChatProvider{response: `{"summary":"Replika launched a new group chat feature.","suggestedHeadline":"Replika Launches Group Chat","categories":["PRODUCT_UPDATE"],"entities":{"platforms":["Replika"],"companies":[],"people":[],"topics":[]},"confidence":0.9}`}

	h := newHarness(connector, provider)
	svc := h.build()

	run, err := svc.Run(context.Background(), "direct")
	require.NoError(t, err)
	assert.Equal(t, entity.IngestRunStatusCompleted, run.Status)
	assert.Equal(t, 1, run.Fetched)
	assert.Equal(t, 1, run.Accepted)
	assert.Equal(t, 0, run.Rejected)
	assert.NotNil(t, run.FinishedAt)
	require.True(t, h.runRepo.started)
	require.NotNil(t, h.runRepo.finished)
	require.Len(t, h.signalRepo.pending, 1)
	assert.Equal(t, entity.IngestStatusAccepted, h.signalRepo.pending[0].IngestStatus)
	assert.Equal(t, int64(1), h.signalRepo.attached[h.signalRepo.pending[0].ID])
}

func TestService_Run_CapsFetchedItemsAtMaxItems(t *testing.T) {
	items := make([]fetch.Item, 5)
	for i := range items {
		items[i] = fetch.Item{URL: "https://example.com/x", Title: "x", PublishedAt: time.Now(), Extract: "short"}
	}
	connector := &fakeConnector{items: items}
	provider := &fakeChatProvider{response: `{}`}

	h := newHarness(connector, provider)
	h.cfg.MaxItems = 2
	svc := h.build()

	run, err := svc.Run(context.Background(), "direct")
	require.NoError(t, err)
	assert.Equal(t, 2, run.Fetched)
}

func TestService_Run_FatalWhenListPendingFails(t *testing.T) {
	h := newHarness(&fakeConnector{}, &fakeChatProvider{})
	h.signalRepoOverride = &failingSignalRepo{}
	svc := h.build()

	run, err := svc.Run(context.Background(), "direct")
	require.Error(t, err)
	assert.Equal(t, entity.IngestRunStatusFailed, run.Status)
	require.NotEmpty(t, run.Errors)
}

// failingSignalRepo wraps fakeSignalRepo to simulate a database outage on
// the query the normalize stage depends on, exercising the pipeline's
// top-level-exception path.
type failingSignalRepo struct{ fakeSignalRepo }

func (f *failingSignalRepo) ListPending(ctx context.Context) ([]*entity.Signal, error) {
	return nil, errListPendingFailed
}

var errListPendingFailed = fakeErr("list pending signals: connection refused")

type fakeErr string

func (e fakeErr) Error() string { return string(e) }
