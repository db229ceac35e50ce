// Package pipeline orchestrates one ingest cycle end-to-end: fetch, store,
// normalize, cluster, sweep, and rank, under a wall-clock budget, per
// spec.md §4.8.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"companionradar/internal/domain/entity"
	"companionradar/internal/infra/fetch"
	"companionradar/internal/observability/metrics"
	"companionradar/internal/observability/tracing"
	"companionradar/internal/repository"
	"companionradar/internal/usecase/cluster"
	"companionradar/internal/usecase/ingest"
	"companionradar/internal/usecase/normalize"
	"companionradar/internal/usecase/rank"
)

// fetchConcurrency bounds how many sources are fetched at once, mirroring
// the teacher's contentSem tier in fetch/service.go.
const fetchConcurrency = 4

// normalizeSafetyMargin and clusterSafetyMargin are subtracted from the
// cycle deadline before starting each unit of work in their respective
// stage, per spec.md §4.8 steps 4-5.
const (
	normalizeSafetyMargin = 10 * time.Second
	clusterSafetyMargin   = 5 * time.Second
)

// Config holds the pipeline's tunables, per spec.md §6.
type Config struct {
	MaxItems       int           // DIRECT_MODE_MAX_ITEMS, default 30
	Timeout        time.Duration // DIRECT_MODE_TIMEOUT_MS, default 120s
	LLMConcurrency int           // DIRECT_MODE_LLM_CONCURRENCY, default 3
}

// DefaultConfig returns spec.md §4.8's defaults.
func DefaultConfig() Config {
	return Config{MaxItems: 30, Timeout: 120 * time.Second, LLMConcurrency: 3}
}

// Service runs one pipeline cycle.
type Service struct {
	sources      []fetch.SourceConfig
	registry     *fetch.Registry
	ingestSvc    *ingest.Service
	normalizeSvc *normalize.Service
	clusterSvc   *cluster.Service
	rankSvc      *rank.Service
	runRepo      repository.IngestRunRepository
	signalRepo   repository.SignalRepository
	cfg          Config
}

// New builds a Service.
func New(
	sources []fetch.SourceConfig,
	registry *fetch.Registry,
	ingestSvc *ingest.Service,
	normalizeSvc *normalize.Service,
	clusterSvc *cluster.Service,
	rankSvc *rank.Service,
	runRepo repository.IngestRunRepository,
	signalRepo repository.SignalRepository,
	cfg Config,
) *Service {
	return &Service{
		sources:      sources,
		registry:     registry,
		ingestSvc:    ingestSvc,
		normalizeSvc: normalizeSvc,
		clusterSvc:   clusterSvc,
		rankSvc:      rankSvc,
		runRepo:      runRepo,
		signalRepo:   signalRepo,
		cfg:          cfg,
	}
}

// Run executes one full cycle and persists its audit row. mode tags the
// trigger source ("scheduled" or "direct") on the emitted metric only; it is
// not persisted on the IngestRun. The returned error is non-nil only for a
// top-level exception (the cycle could not even enumerate the signals it was
// meant to normalize); per-item failures within a stage are recorded on
// run.Errors and never abort the cycle.
func (s *Service) Run(ctx context.Context, mode string) (*entity.IngestRun, error) {
	runID, err := s.runRepo.Start(ctx)
	if err != nil {
		return nil, fmt.Errorf("pipeline: start run: %w", err)
	}

	run := &entity.IngestRun{ID: runID, StartedAt: time.Now(), Status: entity.IngestRunStatusRunning}
	deadline := run.StartedAt.Add(s.cfg.Timeout)

	cycleCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()
	cycleCtx, span := tracing.GetTracer().Start(cycleCtx, "pipeline.run")
	defer span.End()

	fatal := s.runCycle(cycleCtx, deadline, run)

	finishedAt := time.Now()
	run.FinishedAt = &finishedAt
	if fatal != nil {
		run.Status = entity.IngestRunStatusFailed
		run.Errors = append(run.Errors, entity.RunError{Kind: entity.ErrorKindPipeline, Message: fatal.Error()})
	} else {
		run.Status = entity.IngestRunStatusCompleted
	}
	metrics.RecordIngestRun(mode, string(run.Status), finishedAt.Sub(run.StartedAt))

	if err := s.runRepo.Finish(ctx, run); err != nil {
		return run, fmt.Errorf("pipeline: finish run: %w", err)
	}
	return run, fatal
}

func (s *Service) runCycle(ctx context.Context, deadline time.Time, run *entity.IngestRun) error {
	fetchCtx, fetchSpan := tracing.GetTracer().Start(ctx, "pipeline.fetch")
	items := s.fetchAll(fetchCtx, run)
	fetchSpan.End()

	storeCtx, storeSpan := tracing.GetTracer().Start(ctx, "pipeline.store")
	s.storeSignals(storeCtx, items, run)
	storeSpan.End()

	normCtx, normSpan := tracing.GetTracer().Start(ctx, "pipeline.normalize")
	pending, err := s.signalRepo.ListPending(normCtx)
	if err != nil {
		normSpan.End()
		return fmt.Errorf("list pending signals: %w", err)
	}
	s.normalizeAll(normCtx, pending, deadline, run)
	normSpan.End()

	accepted := tally(run, pending)

	clusterCtx, clusterSpan := tracing.GetTracer().Start(ctx, "pipeline.cluster")
	s.clusterAll(clusterCtx, accepted, deadline, run)
	clusterSpan.End()

	if _, err := s.clusterSvc.SweepStale(ctx); err != nil {
		slog.WarnContext(ctx, "pipeline: sweep stale failed", slog.Any("error", err))
		run.Errors = append(run.Errors, entity.RunError{Kind: entity.ErrorKindPipeline, Source: "sweep", Message: err.Error()})
	}
	rankStart := time.Now()
	err = s.rankSvc.RecomputeAll(ctx)
	metrics.RecordRankingRun(time.Since(rankStart))
	if err != nil {
		slog.WarnContext(ctx, "pipeline: recompute rankings failed", slog.Any("error", err))
		run.Errors = append(run.Errors, entity.RunError{Kind: entity.ErrorKindPipeline, Source: "rank", Message: err.Error()})
	}
	return nil
}

// fetchedItem pairs a fetched item with the source it came from, so items
// from concurrently-fetched sources can be capped and regrouped afterward.
type fetchedItem struct {
	source fetch.SourceConfig
	item   fetch.Item
}

// fetchAll fetches every configured source with bounded concurrency and
// caps the combined item count at cfg.MaxItems, per spec.md §4.8 step 2.
func (s *Service) fetchAll(ctx context.Context, run *entity.IngestRun) []fetchedItem {
	var mu sync.Mutex
	var all []fetchedItem
	sem := make(chan struct{}, fetchConcurrency)
	eg, egCtx := errgroup.WithContext(ctx)

	for _, src := range s.sources {
		src := src
		eg.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			connector, ok := s.registry.Resolve(src)
			if !ok {
				mu.Lock()
				run.Errors = append(run.Errors, entity.RunError{Kind: entity.ErrorKindNotImplemented, Source: src.Name, Message: "no connector available for source"})
				mu.Unlock()
				return nil
			}

			fetchStart := time.Now()
			result, err := connector.Fetch(egCtx, src)
			metrics.RecordFetch(src.Name, time.Since(fetchStart))
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				metrics.RecordFetchError(src.Name, string(entity.ErrorKindFetch))
				mu.Lock()
				run.Errors = append(run.Errors, entity.RunError{Kind: entity.ErrorKindFetch, Source: src.Name, Message: err.Error()})
				mu.Unlock()
				return nil
			}

			mu.Lock()
			for _, itemErr := range result.Errors {
				run.Errors = append(run.Errors, entity.RunError{Kind: entity.ErrorKindFetch, Source: src.Name, Message: itemErr.Error()})
			}
			for _, it := range result.Items {
				all = append(all, fetchedItem{source: src, item: it})
			}
			mu.Unlock()
			metrics.RecordSignalsFetched(src.Name, len(result.Items))
			return nil
		})
	}
	// Context cancellation is the only thing worth aborting the rest of the
	// fetch fan-out for; every other per-source failure is recorded above
	// and the cycle continues with whatever other sources returned.
	_ = eg.Wait()

	if len(all) > s.cfg.MaxItems {
		run.Errors = append(run.Errors, entity.RunError{
			Kind:    entity.ErrorKindBudgetExceeded,
			Source:  "fetch",
			Message: fmt.Sprintf("fetched %d items, capped at %d", len(all), s.cfg.MaxItems),
		})
		all = all[:s.cfg.MaxItems]
	}
	run.Fetched = len(all)
	return all
}

// storeSignals regroups the capped item list by source and stores each
// group through ingest.Service, per spec.md §4.8 step 3.
func (s *Service) storeSignals(ctx context.Context, items []fetchedItem, run *entity.IngestRun) {
	type group struct {
		source fetch.SourceConfig
		items  []fetch.Item
	}
	var groups []*group
	index := make(map[string]int)
	for _, fi := range items {
		i, ok := index[fi.source.Name]
		if !ok {
			i = len(groups)
			index[fi.source.Name] = i
			groups = append(groups, &group{source: fi.source})
		}
		groups[i].items = append(groups[i].items, fi.item)
	}

	for _, g := range groups {
		stats, _, err := s.ingestSvc.StoreBatch(ctx, g.source, g.items)
		if err != nil {
			run.Errors = append(run.Errors, entity.RunError{Kind: entity.ErrorKindPipeline, Source: g.source.Name, Message: err.Error()})
			continue
		}
		run.Errors = append(run.Errors, stats.Errors...)
	}
}

// normalizeAll normalizes pending signals with bounded concurrency,
// checking the remaining wall-clock budget before dispatching each one,
// per spec.md §4.8 step 4.
func (s *Service) normalizeAll(ctx context.Context, pending []*entity.Signal, deadline time.Time, run *entity.IngestRun) {
	sem := make(chan struct{}, s.cfg.LLMConcurrency)
	var mu sync.Mutex
	eg, egCtx := errgroup.WithContext(ctx)
	skipped := 0

	for _, sig := range pending {
		if time.Until(deadline) <= normalizeSafetyMargin {
			skipped++
			continue
		}

		sig := sig
		sem <- struct{}{}
		eg.Go(func() error {
			defer func() { <-sem }()

			normStart := time.Now()
			err := s.normalizeSvc.Normalize(egCtx, sig)
			metrics.RecordNormalizationDuration(time.Since(normStart))
			if err != nil {
				slog.WarnContext(egCtx, "pipeline: normalize failed", slog.Int64("signal_id", sig.ID), slog.Any("error", err))
				mu.Lock()
				run.Errors = append(run.Errors, entity.RunError{Kind: entity.ErrorKindPipeline, Source: "normalize", Message: err.Error()})
				mu.Unlock()
				return nil
			}
			metrics.RecordSignalNormalized(string(sig.IngestStatus))
			return nil
		})
	}
	_ = eg.Wait()

	if skipped > 0 {
		run.Errors = append(run.Errors, entity.RunError{
			Kind:    entity.ErrorKindBudgetExceeded,
			Source:  "normalize",
			Message: fmt.Sprintf("skipped %d signals: wall-clock budget exhausted", skipped),
		})
	}
}

// tally counts each normalized signal's terminal status onto run and
// returns the accepted subset for clustering.
func tally(run *entity.IngestRun, pending []*entity.Signal) []*entity.Signal {
	var accepted []*entity.Signal
	for _, sig := range pending {
		switch sig.IngestStatus {
		case entity.IngestStatusAccepted:
			run.Accepted++
			accepted = append(accepted, sig)
		case entity.IngestStatusRejected, entity.IngestStatusFailed:
			run.Rejected++
		}
	}
	return accepted
}

// clusterAll sequentially assigns each accepted signal to a cluster,
// checking the remaining wall-clock budget before each one, per spec.md
// §4.8 step 5. Clustering is deliberately serialized to avoid cross-cluster
// lock contention and keep TF-IDF candidate snapshots consistent.
func (s *Service) clusterAll(ctx context.Context, accepted []*entity.Signal, deadline time.Time, run *entity.IngestRun) {
	skipped := 0
	for _, sig := range accepted {
		if time.Until(deadline) <= clusterSafetyMargin {
			skipped++
			continue
		}
		assignStart := time.Now()
		_, err := s.clusterSvc.Assign(ctx, sig)
		metrics.RecordClusterAssignmentDuration(time.Since(assignStart))
		if err != nil {
			slog.WarnContext(ctx, "pipeline: cluster assignment failed", slog.Int64("signal_id", sig.ID), slog.Any("error", err))
			run.Errors = append(run.Errors, entity.RunError{Kind: entity.ErrorKindPipeline, Source: "cluster", Message: err.Error()})
		}
	}

	if skipped > 0 {
		run.Errors = append(run.Errors, entity.RunError{
			Kind:    entity.ErrorKindBudgetExceeded,
			Source:  "cluster",
			Message: fmt.Sprintf("skipped %d signals: wall-clock budget exhausted", skipped),
		})
	}
}
