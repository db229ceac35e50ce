package config

import (
	"log/slog"
	"time"

	internalconfig "companionradar/internal/pkg/config"
)

// PipelineConfig holds every env-tunable named in spec.md §6, loaded with
// the same fail-open strategy as the teacher's worker config: a validation
// failure on one field logs a warning and falls back to its default rather
// than aborting startup.
type PipelineConfig struct {
	// ClusterSimilarityThreshold is the cosine-similarity cutoff (on
	// TF-IDF vectors) above which a candidate cluster is accepted.
	// CLUSTER_SIMILARITY_THRESHOLD, default 0.4, range [0,1].
	ClusterSimilarityThreshold float64

	// ClusterTrgmThreshold is pg_trgm's similarity() cutoff used to narrow
	// the candidate-cluster search before TF-IDF refinement.
	// CLUSTER_TRGM_THRESHOLD, default 0.2, range [0,1].
	ClusterTrgmThreshold float64

	// ClusterActiveDays bounds how far back a cluster may be reopened by
	// a new signal before it is swept to STALE.
	// CLUSTER_ACTIVE_DAYS, default 7, range [1,90].
	ClusterActiveDays int

	// RankingMaxDomains caps the source-diversity term's domain count.
	// RANKING_MAX_DOMAINS, default 6, range [1,50].
	RankingMaxDomains int

	// RankingRecencyDecayHours is the half-life used by the recency term.
	// RANKING_RECENCY_DECAY_HOURS, default 24, range [1,720].
	RankingRecencyDecayHours int

	// DirectModeMaxItems caps total signals accepted across all sources
	// in one pipeline cycle.
	// DIRECT_MODE_MAX_ITEMS, default 30, range [1,1000].
	DirectModeMaxItems int

	// DirectModeTimeout bounds one pipeline cycle's wall clock.
	// DIRECT_MODE_TIMEOUT_MS, default 120s, range [1s,30m].
	DirectModeTimeout time.Duration

	// DirectModeLLMConcurrency bounds concurrent normalize calls.
	// DIRECT_MODE_LLM_CONCURRENCY, default 3, range [1,20].
	DirectModeLLMConcurrency int

	// LLMProvider selects the chat-completion backend (openai, anthropic, ...).
	// LLM_PROVIDER, default "openai".
	LLMProvider string

	// MinConfidenceThreshold is the normalizer's acceptance floor on the
	// LLM's self-reported confidence.
	// MIN_CONFIDENCE_THRESHOLD, default 0.6, range [0,1].
	MinConfidenceThreshold float64
}

// DefaultPipelineConfig returns spec.md §6's defaults.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		ClusterSimilarityThreshold: 0.4,
		ClusterTrgmThreshold:       0.2,
		ClusterActiveDays:          7,
		RankingMaxDomains:          6,
		RankingRecencyDecayHours:   24,
		DirectModeMaxItems:         30,
		DirectModeTimeout:          120 * time.Second,
		DirectModeLLMConcurrency:   3,
		LLMProvider:                "openai",
		MinConfidenceThreshold:     0.6,
	}
}

// LoadPipelineConfigFromEnv loads PipelineConfig from the environment,
// falling back field-by-field to the default on any validation failure —
// the same never-fail strategy as worker.LoadConfigFromEnv, reported
// through the same ConfigMetrics instrumentation.
func LoadPipelineConfigFromEnv(logger *slog.Logger, metrics *internalconfig.ConfigMetrics) *PipelineConfig {
	cfg := DefaultPipelineConfig()

	loadFloat := func(field, envKey string, current float64, min, max float64) float64 {
		result := internalconfig.LoadEnvFloat(envKey, current, func(v float64) error {
			return internalconfig.ValidateFloatRange(v, min, max)
		})
		if result.FallbackApplied {
			metrics.RecordValidationError(field)
			metrics.RecordFallback(field, "default")
			for _, warning := range result.Warnings {
				logger.Warn("pipeline config fallback applied", slog.String("field", field), slog.String("warning", warning))
			}
		}
		return result.Value.(float64)
	}
	loadInt := func(field, envKey string, current, min, max int) int {
		result := internalconfig.LoadEnvInt(envKey, current, func(v int) error {
			return internalconfig.ValidateIntRange(v, min, max)
		})
		if result.FallbackApplied {
			metrics.RecordValidationError(field)
			metrics.RecordFallback(field, "default")
			for _, warning := range result.Warnings {
				logger.Warn("pipeline config fallback applied", slog.String("field", field), slog.String("warning", warning))
			}
		}
		return result.Value.(int)
	}

	cfg.ClusterSimilarityThreshold = loadFloat("cluster_similarity_threshold", "CLUSTER_SIMILARITY_THRESHOLD", cfg.ClusterSimilarityThreshold, 0, 1)
	cfg.ClusterTrgmThreshold = loadFloat("cluster_trgm_threshold", "CLUSTER_TRGM_THRESHOLD", cfg.ClusterTrgmThreshold, 0, 1)
	cfg.ClusterActiveDays = loadInt("cluster_active_days", "CLUSTER_ACTIVE_DAYS", cfg.ClusterActiveDays, 1, 90)
	cfg.RankingMaxDomains = loadInt("ranking_max_domains", "RANKING_MAX_DOMAINS", cfg.RankingMaxDomains, 1, 50)
	cfg.RankingRecencyDecayHours = loadInt("ranking_recency_decay_hours", "RANKING_RECENCY_DECAY_HOURS", cfg.RankingRecencyDecayHours, 1, 720)
	cfg.DirectModeMaxItems = loadInt("direct_mode_max_items", "DIRECT_MODE_MAX_ITEMS", cfg.DirectModeMaxItems, 1, 1000)
	cfg.DirectModeLLMConcurrency = loadInt("direct_mode_llm_concurrency", "DIRECT_MODE_LLM_CONCURRENCY", cfg.DirectModeLLMConcurrency, 1, 20)

	// DIRECT_MODE_TIMEOUT_MS is spelled in milliseconds (spec.md §6), not a
	// Go duration string, so it's loaded as an int and converted.
	timeoutMs := loadInt("direct_mode_timeout_ms", "DIRECT_MODE_TIMEOUT_MS", int(cfg.DirectModeTimeout/time.Millisecond), 1000, 30*60*1000)
	cfg.DirectModeTimeout = time.Duration(timeoutMs) * time.Millisecond

	cfg.LLMProvider = internalconfig.LoadEnvString("LLM_PROVIDER", cfg.LLMProvider)
	cfg.MinConfidenceThreshold = loadFloat("min_confidence_threshold", "MIN_CONFIDENCE_THRESHOLD", cfg.MinConfidenceThreshold, 0, 1)

	metrics.SetFallbackActive("", false)
	metrics.RecordLoadTimestamp()
	return &cfg
}
