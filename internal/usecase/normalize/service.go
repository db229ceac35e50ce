// Package normalize turns a PENDING Signal's raw text into the structured
// facts the rest of the pipeline depends on, by asking an LLM to extract
// them and validating what comes back before accepting it.
package normalize

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"companionradar/internal/domain/entity"
	"companionradar/internal/infra/llm"
	"companionradar/internal/repository"
)

// Service normalizes PENDING signals: it calls the configured LLM provider,
// validates the response shape, and persists the accept/reject/fail verdict.
type Service struct {
	signalRepo    repository.SignalRepository
	rawSignalRepo repository.RawSignalRepository
	platformRepo  repository.PlatformRepository
	provider      llm.ChatProvider
	providerName  string
	modelName     string
	ogProber      *OGImageProber
	minConfidence float64
}

// New builds a Service. providerName/modelName are stamped onto every
// normalized Signal for audit, since a provider swap can shift acceptance
// rates and this is the only place that correlation can be made later.
// A zero minConfidence falls back to spec.md §6's default of 0.6.
func New(
	signalRepo repository.SignalRepository,
	rawSignalRepo repository.RawSignalRepository,
	platformRepo repository.PlatformRepository,
	provider llm.ChatProvider,
	providerName, modelName string,
	ogProber *OGImageProber,
	minConfidence float64,
) *Service {
	if minConfidence == 0 {
		minConfidence = defaultMinConfidence
	}
	return &Service{
		signalRepo:    signalRepo,
		rawSignalRepo: rawSignalRepo,
		platformRepo:  platformRepo,
		provider:      provider,
		providerName:  providerName,
		modelName:     modelName,
		ogProber:      ogProber,
		minConfidence: minConfidence,
	}
}

// Normalize processes one PENDING signal to a terminal ingest status and
// persists the result. It never returns an error for a bad LLM response —
// those become a FAILED or REJECTED Signal — only for infrastructure
// failures (the raw signal is missing, or the database write itself fails).
func (s *Service) Normalize(ctx context.Context, signal *entity.Signal) error {
	raw, err := s.rawSignalRepo.FindByID(ctx, signal.RawSignalID)
	if err != nil {
		return fmt.Errorf("Normalize: load raw signal: %w", err)
	}

	text := ""
	if raw.RawText != nil {
		text = *raw.RawText
	}
	if len(signal.Title)+len(text) < minNormalizableTextLen {
		s.reject(signal, "text too short to normalize")
		return s.persist(ctx, signal)
	}

	prompt := userPrompt(raw.SourceName, raw.SourceURL, signal.Title, signal.PublishedAt.Format(time.RFC3339), text)

	resp, rawResponse, err := s.complete(ctx, prompt)
	signal.LLMRawResponse = rawResponse
	if err != nil {
		s.fail(signal, err.Error())
		return s.persist(ctx, signal)
	}

	s.applyResponse(signal, resp)
	if err := s.persist(ctx, signal); err != nil {
		return err
	}

	if signal.IngestStatus != entity.IngestStatusAccepted {
		return nil
	}

	if err := s.linkPlatforms(ctx, signal, resp); err != nil {
		slog.WarnContext(ctx, "normalize: failed to link platforms", slog.Int64("signal_id", signal.ID), slog.Any("error", err))
	}

	if s.ogProber != nil && signal.CanonicalURL != "" {
		if img := s.ogProber.Probe(ctx, signal.CanonicalURL); img != "" {
			signal.ImageURL = img
			if err := s.signalRepo.ApplyNormalization(ctx, signal); err != nil {
				slog.WarnContext(ctx, "normalize: failed to persist og:image", slog.Int64("signal_id", signal.ID), slog.Any("error", err))
			}
		}
	}

	return nil
}

// complete calls the LLM once, retrying exactly once with a stricter
// fallback prompt when the first response parses but fails shape
// validation. A raw JSON parse failure is not retried: per spec.md §4.4 a
// malformed response signals a provider/prompt mismatch, not a one-off
// fluke the model will self-correct on a second try.
func (s *Service) complete(ctx context.Context, prompt string) (llmResponse, string, error) {
	resp, raw, err := s.attempt(ctx, prompt)
	if err == nil {
		return resp, raw, nil
	}

	if !isValidationError(err) {
		return llmResponse{}, raw, err
	}

	resp, raw2, err2 := s.attempt(ctx, fallbackPrompt(prompt))
	if err2 != nil {
		return llmResponse{}, raw2, fmt.Errorf("%w (after fallback retry)", err2)
	}
	return resp, raw2, nil
}

func (s *Service) attempt(ctx context.Context, prompt string) (llmResponse, string, error) {
	raw, err := s.provider.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		return llmResponse{}, "", fmt.Errorf("llm call failed: %w", err)
	}

	obj, ok := extractJSONObject(raw)
	if !ok {
		return llmResponse{}, raw, fmt.Errorf("no JSON object found in response")
	}

	var resp llmResponse
	if err := json.Unmarshal([]byte(obj), &resp); err != nil {
		return llmResponse{}, raw, fmt.Errorf("invalid JSON response: %w", err)
	}

	if err := resp.validate(); err != nil {
		return llmResponse{}, raw, err
	}
	return resp, raw, nil
}

func isValidationError(err error) bool {
	var valErr *entity.ValidationError
	for e := err; e != nil; {
		if ve, ok := e.(*entity.ValidationError); ok {
			valErr = ve
			break
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		e = u.Unwrap()
	}
	return valErr != nil
}

func (s *Service) applyResponse(signal *entity.Signal, resp llmResponse) {
	now := time.Now()
	signal.Summary = resp.Summary
	signal.SuggestedHeadline = resp.SuggestedHeadline
	signal.Categories = resp.categories()
	signal.Entities = resp.entitySet()
	signal.Confidence = resp.Confidence
	signal.LLMProvider = s.providerName
	signal.LLMModel = s.modelName
	signal.PromptVersion = PromptVersion
	signal.NormalizedAt = &now

	if resp.Confidence < s.minConfidence {
		signal.IngestStatus = entity.IngestStatusRejected
		signal.IngestReason = fmt.Sprintf("confidence %.2f below threshold %.2f", resp.Confidence, s.minConfidence)
		return
	}
	signal.IngestStatus = entity.IngestStatusAccepted
	signal.IngestReason = ""
}

func (s *Service) reject(signal *entity.Signal, reason string) {
	now := time.Now()
	signal.IngestStatus = entity.IngestStatusRejected
	signal.IngestReason = reason
	signal.PromptVersion = PromptVersion
	signal.NormalizedAt = &now
}

func (s *Service) fail(signal *entity.Signal, reason string) {
	now := time.Now()
	signal.IngestStatus = entity.IngestStatusFailed
	signal.IngestReason = reason
	signal.PromptVersion = PromptVersion
	signal.LLMProvider = s.providerName
	signal.LLMModel = s.modelName
	signal.NormalizedAt = &now
}

func (s *Service) persist(ctx context.Context, signal *entity.Signal) error {
	if err := s.signalRepo.ApplyNormalization(ctx, signal); err != nil {
		return fmt.Errorf("Normalize: persist verdict: %w", err)
	}
	return nil
}

// linkPlatforms splits the LLM's extracted platform names into those
// recognized by the Platform reference table and those that aren't, linking
// only the recognized ones, per spec.md §4.4.
func (s *Service) linkPlatforms(ctx context.Context, signal *entity.Signal, resp llmResponse) error {
	slugs := slugifyPlatforms(resp.Entities.Platforms)
	if len(slugs) == 0 {
		return nil
	}

	known, err := s.platformRepo.FindBySlugs(ctx, slugs)
	if err != nil {
		return fmt.Errorf("linkPlatforms: %w", err)
	}

	var unknown []string
	for _, slug := range slugs {
		platform, ok := known[slug]
		if !ok {
			unknown = append(unknown, slug)
			continue
		}
		if err := s.platformRepo.LinkSignal(ctx, signal.ID, platform.ID); err != nil {
			return fmt.Errorf("linkPlatforms: link %s: %w", slug, err)
		}
	}
	if len(unknown) > 0 {
		slog.InfoContext(ctx, "normalize: unrecognized platforms mentioned",
			slog.Int64("signal_id", signal.ID), slog.Any("platforms", unknown))
	}
	return nil
}
