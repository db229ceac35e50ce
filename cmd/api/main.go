// Command api serves the companion-radar HTTP API: the read-only cluster
// feed, platform roster, ingest-run history, and the on-demand ingest
// trigger, per spec.md §5.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"companionradar/internal/domain/entity"
	hhttp "companionradar/internal/handler/http"
	"companionradar/internal/handler/http/clusters"
	"companionradar/internal/handler/http/health"
	"companionradar/internal/handler/http/ingestrun"
	"companionradar/internal/handler/http/platforms"
	"companionradar/internal/handler/http/requestid"
	"companionradar/internal/handler/http/requestmetrics"
	pgRepo "companionradar/internal/infra/adapter/persistence/postgres"
	"companionradar/internal/infra/db"
	"companionradar/internal/infra/fetch"
	"companionradar/internal/infra/llm"
	"companionradar/internal/observability/slo"
	internalconfig "companionradar/internal/pkg/config"
	"companionradar/internal/usecase/cluster"
	"companionradar/internal/usecase/feed"
	"companionradar/internal/usecase/ingest"
	"companionradar/internal/usecase/normalize"
	"companionradar/internal/usecase/pipeline"
	"companionradar/internal/usecase/rank"
	"companionradar/pkg/config"
)

func main() {
	logger := initLogger()

	database := db.Open()
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()
	if err := db.MigrateUp(database); err != nil {
		logger.Error("failed to migrate database", slog.Any("error", err))
		os.Exit(1)
	}

	pipelineSvc, feedSvc := buildServices(logger, database)

	mux := http.NewServeMux()
	health.Register(mux, database, getVersion())
	clusters.Register(mux, feedSvc, logger)
	platforms.Register(mux, pgRepo.NewPlatformRepo(database), pgRepo.NewClusterRepo(database))
	ingestrun.Register(mux, pgRepo.NewIngestRunRepo(database), pipelineSvc,
		os.Getenv("INGEST_SECRET"), os.Getenv("SCHEDULER_SECRET"), logger)
	mux.Handle("GET /metrics", requestmetrics.Handler())

	go reportSLOs()

	handler := hhttp.Recover(logger)(
		hhttp.Logging(logger)(
			hhttp.Timeout(30 * time.Second)(
				hhttp.InputValidation()(
					requestmetrics.Middleware(
						requestid.Middleware(mux),
					),
				),
			),
		),
	)

	runServer(logger, handler, getVersion())
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

func getVersion() string {
	if v := os.Getenv("VERSION"); v != "" {
		return v
	}
	return "dev"
}

// buildServices wires the pipeline and feed usecases from the configured
// repositories, LLM provider, and env-tunable PipelineConfig.
func buildServices(logger *slog.Logger, database *sql.DB) (*pipeline.Service, *feed.Service) {
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

	pipelineSvc := pipeline.New(sources, registry, ingestSvc, normalizeSvc, clusterSvc, rankSvc,
		runRepo, signalRepo, pipeline.Config{
			MaxItems:       pipelineCfg.DirectModeMaxItems,
			Timeout:        pipelineCfg.DirectModeTimeout,
			LLMConcurrency: pipelineCfg.DirectModeLLMConcurrency,
		})

	feedSvc := feed.New(clusterRepo, signalRepo, platformRepo)

	return pipelineSvc, feedSvc
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

// loadFeedSources parses FEED_SOURCES, a comma-separated list of
// "name=url" pairs naming the syndication feeds to poll each cycle. No
// Source table is persisted (spec.md has none); this is the pipeline's
// only source of truth for what to fetch, reloaded at process start.
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

// reportSLOs recomputes availability and error-rate ratios from
// requestmetrics' cumulative counters once a minute and publishes them on
// the slo gauges, so Prometheus alerting can compare against the SLO
// targets slo.go documents rather than deriving them from raw counters.
func reportSLOs() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		total, errs := requestmetrics.Snapshot()
		if total == 0 {
			continue
		}
		errorRate := float64(errs) / float64(total)
		slo.UpdateErrorRate(errorRate)
		slo.UpdateAvailability(1 - errorRate)
	}
}

func runServer(logger *slog.Logger, handler http.Handler, version string) {
	srv := &http.Server{
		Addr:              ":8080",
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", slog.String("addr", ":8080"), slog.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", slog.Any("error", err))
	}
}
