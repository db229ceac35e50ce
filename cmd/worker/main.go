// Command worker runs the ingest pipeline on a cron schedule, per
// spec.md §4.8/§6's "scheduled" trigger mode.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"companionradar/internal/domain/entity"
	pgRepo "companionradar/internal/infra/adapter/persistence/postgres"
	"companionradar/internal/infra/db"
	"companionradar/internal/infra/fetch"
	"companionradar/internal/infra/llm"
	workerPkg "companionradar/internal/infra/worker"
	internalconfig "companionradar/internal/pkg/config"
	"companionradar/internal/usecase/cluster"
	"companionradar/internal/usecase/ingest"
	"companionradar/internal/usecase/normalize"
	"companionradar/internal/usecase/pipeline"
	"companionradar/internal/usecase/rank"
	"companionradar/pkg/config"
)

func waitForMigrations(logger *slog.Logger, database *sql.DB) {
	const probe = "SELECT 1 FROM story_clusters LIMIT 1"
	for i := 0; i < 10; i++ {
		if _, err := database.Exec(probe); err == nil {
			return
		}
		logger.Info("waiting for migrations, retrying in 3s", slog.Int("attempt", i+1))
		time.Sleep(3 * time.Second)
	}
	logger.Error("migrations did not complete in time")
	os.Exit(1)
}

func main() {
	logger := initLogger()
	database := initDatabase(logger)
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	workerMetrics := workerPkg.NewWorkerMetrics()
	workerMetrics.MustRegister()
	workerConfig, err := workerPkg.LoadConfigFromEnv(logger, workerMetrics)
	if err != nil {
		logger.Error("failed to load worker configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker configuration loaded",
		slog.String("cron_schedule", workerConfig.CronSchedule),
		slog.String("timezone", workerConfig.Timezone),
		slog.Duration("run_timeout", workerConfig.CrawlTimeout),
		slog.Int("health_port", workerConfig.HealthPort))

	startMetricsServer(ctx, logger)

	healthAddr := fmt.Sprintf(":%d", workerConfig.HealthPort)
	healthServer := workerPkg.NewHealthServer(healthAddr, logger)
	go func() {
		if err := healthServer.Start(ctx); err != nil && err != http.ErrServerClosed {
			logger.Error("health server failed", slog.Any("error", err))
		}
	}()
	logger.Info("health check server started", slog.String("addr", healthAddr))

	pipelineSvc := setupPipeline(logger, database)

	startCronWorker(logger, pipelineSvc, workerConfig, workerMetrics, healthServer)
}

func initLogger() *slog.Logger {
	logLevel := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
	return logger
}

func initDatabase(logger *slog.Logger) *sql.DB {
	database := db.Open()
	waitForMigrations(logger, database)
	return database
}

// setupPipeline wires the same usecase graph as cmd/api, reading the
// identical PipelineConfig and FEED_SOURCES env so both processes agree on
// what "one cycle" means regardless of which triggered it.
func setupPipeline(logger *slog.Logger, database *sql.DB) *pipeline.Service {
	pipelineCfg := config.LoadPipelineConfigFromEnv(logger, internalconfig.NewConfigMetrics("pipeline"))

	clusterRepo := pgRepo.NewClusterRepo(database)
	signalRepo := pgRepo.NewSignalRepo(database)
	rawSignalRepo := pgRepo.NewRawSignalRepo(database)
	platformRepo := pgRepo.NewPlatformRepo(database)
	credibilityRepo := pgRepo.NewCredibilityRepo(database)
	runRepo := pgRepo.NewIngestRunRepo(database)
	tx := pgRepo.NewTransactor(database)

	provider := buildLLMProvider(pipelineCfg.LLMProvider, logger)

	normalizeSvc := normalize.New(signalRepo, rawSignalRepo, platformRepo, provider,
		pipelineCfg.LLMProvider, llmModel(pipelineCfg.LLMProvider), normalize.NewOGImageProber(),
		pipelineCfg.MinConfidenceThreshold)

	clusterSvc := cluster.New(tx, clusterRepo, signalRepo, cluster.Config{
		SimilarityThreshold: pipelineCfg.ClusterSimilarityThreshold,
		TrgmThreshold:       pipelineCfg.ClusterTrgmThreshold,
		ActiveDays:          pipelineCfg.ClusterActiveDays,
	})

	rankSvc := rank.New(clusterRepo, signalRepo, credibilityRepo, rank.Config{
		MaxDomains:        pipelineCfg.RankingMaxDomains,
		RecencyDecayHours: float64(pipelineCfg.RankingRecencyDecayHours),
	})

	ingestSvc := ingest.NewService(rawSignalRepo)

	registry := fetch.NewRegistry(fetch.NewSyndicationConnector(&http.Client{Timeout: 30 * time.Second}))
	sources := loadFeedSources()

	return pipeline.New(sources, registry, ingestSvc, normalizeSvc, clusterSvc, rankSvc,
		runRepo, signalRepo, pipeline.Config{
			MaxItems:       pipelineCfg.DirectModeMaxItems,
			Timeout:        pipelineCfg.DirectModeTimeout,
			LLMConcurrency: pipelineCfg.DirectModeLLMConcurrency,
		})
}

func buildLLMProvider(providerName string, logger *slog.Logger) llm.ChatProvider {
	switch providerName {
	case "anthropic", "claude":
		return llm.NewClaudeProvider(os.Getenv("ANTHROPIC_API_KEY"), anthropicModel(), 1024, 30*time.Second)
	default:
		logger.Info("llm: using openai provider", slog.String("configured", providerName))
		return llm.NewOpenAIProvider(os.Getenv("OPENAI_API_KEY"), openaiModel(), 30*time.Second)
	}
}

func llmModel(providerName string) string {
	switch providerName {
	case "anthropic", "claude":
		return anthropicModel()
	default:
		return openaiModel()
	}
}

func openaiModel() string {
	if m := os.Getenv("OPENAI_MODEL"); m != "" {
		return m
	}
	return "gpt-4o-mini"
}

func anthropicModel() string {
	if m := os.Getenv("ANTHROPIC_MODEL"); m != "" {
		return m
	}
	return "claude-3-5-haiku-latest"
}

// loadFeedSources parses FEED_SOURCES identically to cmd/api, so both
// processes poll the same feeds regardless of which triggered the cycle.
func loadFeedSources() []fetch.SourceConfig {
	raw := os.Getenv("FEED_SOURCES")
	if raw == "" {
		return nil
	}
	var sources []fetch.SourceConfig
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, url, ok := strings.Cut(pair, "=")
		if !ok || name == "" || url == "" {
			continue
		}
		sources = append(sources, fetch.SourceConfig{
			Name:       strings.TrimSpace(name),
			URL:        strings.TrimSpace(url),
			SourceType: entity.SourceTypeMedia,
		})
	}
	return sources
}

// startCronWorker starts the cron scheduler and runs the ingest pipeline
// on the configured schedule.
func startCronWorker(logger *slog.Logger, svc *pipeline.Service, cfg *workerPkg.WorkerConfig, metrics *workerPkg.WorkerMetrics, healthServer *workerPkg.HealthServer) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Error("invalid timezone, using UTC", slog.String("timezone", cfg.Timezone), slog.Any("error", err))
		loc = time.UTC
	}
	c := cron.New(cron.WithLocation(loc))

	_, err = c.AddFunc(cfg.CronSchedule, func() {
		runIngestJob(logger, svc, cfg, metrics)
	})
	if err != nil {
		logger.Error("failed to add cron job", slog.Any("error", err))
		os.Exit(1)
	}
	c.Start()

	healthServer.SetReady(true)
	logger.Info("worker marked as ready")

	logger.Info("worker started", slog.String("schedule", cfg.CronSchedule), slog.String("timezone", cfg.Timezone))
	select {}
}

// runIngestJob executes one scheduled pipeline cycle with timeout and
// error handling, recording the same job-run metrics the teacher's crawl
// job did.
func runIngestJob(logger *slog.Logger, svc *pipeline.Service, cfg *workerPkg.WorkerConfig, metrics *workerPkg.WorkerMetrics) {
	startTime := time.Now()
	metrics.RecordJobRun("started")
	logger.Info("ingest cycle started")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.CrawlTimeout)
	defer cancel()

	run, err := svc.Run(ctx, "scheduled")
	if err != nil {
		logger.Error("ingest cycle failed", slog.Any("error", err))
		metrics.RecordJobRun("failure")
		metrics.RecordJobDuration(time.Since(startTime).Seconds())
		return
	}

	metrics.RecordJobRun("success")
	metrics.RecordJobDuration(time.Since(startTime).Seconds())
	metrics.RecordFeedsProcessed(run.Fetched)
	metrics.RecordLastSuccess()

	logger.Info("ingest cycle completed",
		slog.Int("fetched", run.Fetched),
		slog.Int("accepted", run.Accepted),
		slog.Int("rejected", run.Rejected),
		slog.Int("errors", len(run.Errors)),
		slog.Duration("duration", time.Since(startTime)),
	)
}
