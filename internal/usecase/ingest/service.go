// Package ingest stores freshly fetched items as RawSignal/Signal rows,
// deduplicating by content hash before touching the database.
package ingest

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"companionradar/internal/domain/entity"
	"companionradar/internal/infra/fetch"
	"companionradar/internal/pkg/hashutil"
	"companionradar/internal/pkg/textutil"
	"companionradar/internal/repository"
)

// Stats summarizes the result of storing one batch of fetched items.
type Stats struct {
	Fetched    int
	Stored     int
	Duplicated int
	Errors     []entity.RunError
}

// Service stores raw fetch items, deduplicating by content hash and
// creating a companion pending Signal per new RawSignal.
type Service struct {
	rawSignalRepo repository.RawSignalRepository
}

// NewService builds a Service backed by the given RawSignalRepository.
func NewService(rawSignalRepo repository.RawSignalRepository) *Service {
	return &Service{rawSignalRepo: rawSignalRepo}
}

// StoreBatch computes a content hash per item, batch-checks existing hashes
// (avoiding one round-trip per item, same discipline as the teacher's
// ExistsByURLBatch), then stores each new item in its own transaction.
// A failure storing one item is logged and counted; it never aborts the
// rest of the batch.
func (s *Service) StoreBatch(ctx context.Context, source fetch.SourceConfig, items []fetch.Item) (*Stats, []int64, error) {
	stats := &Stats{Fetched: len(items)}
	if len(items) == 0 {
		return stats, nil, nil
	}

	hashes := make([]string, len(items))
	for i, item := range items {
		hashes[i] = contentHash(item)
	}

	existing, err := s.rawSignalRepo.ExistingHashes(ctx, hashes)
	if err != nil {
		return stats, nil, err
	}

	var signalIDs []int64
	for i, item := range items {
		hash := hashes[i]
		if existing[hash] {
			stats.Duplicated++
			continue
		}

		raw := &entity.RawSignal{
			SourceType:   source.SourceType,
			SourceName:   source.Name,
			SourceURL:    item.URL,
			SourceDomain: hashutil.Domain(item.URL),
			ExternalID:   item.ExternalID,
			FetchedAt:    time.Now(),
			ContentType:  item.ContentType,
			RawPayload:   item.Payload,
			RawText:      textPtr(item.Extract),
			ContentHash:  hash,
		}
		pending := &entity.Signal{
			CanonicalURL: hashutil.NormalizeURL(item.URL),
			Title:        textutil.Truncate(item.Title, entity.SignalTitleLimit),
			Author:       item.Author,
			PublishedAt:  item.PublishedAt,
			Language:     entity.DefaultLanguage,
			IngestStatus: entity.IngestStatusPending,
		}

		_, signalID, err := s.rawSignalRepo.Create(ctx, raw, pending)
		if err != nil {
			slog.Warn("ingest: failed to store raw signal",
				slog.String("source", source.Name), slog.String("url", item.URL), slog.Any("error", err))
			stats.Errors = append(stats.Errors, entity.RunError{
				Kind: entity.ErrorKindFetch, Source: source.Name, Message: err.Error(),
			})
			continue
		}

		stats.Stored++
		signalIDs = append(signalIDs, signalID)
	}

	return stats, signalIDs, nil
}

// contentHash implements spec.md §4.1's two-branch hash: prefer the feed's
// external id when present, else fall back to title + a coarse date bucket.
func contentHash(item fetch.Item) string {
	norm := hashutil.NormalizeURL(item.URL)
	if item.ExternalID != nil && *item.ExternalID != "" {
		return hashutil.ContentHash(norm, *item.ExternalID, "")
	}
	bucket := "unknown"
	if !item.PublishedAt.IsZero() {
		bucket = item.PublishedAt.UTC().Format("2006-01-02")
	}
	return hashutil.ContentHash(norm, strings.ToLower(item.Title), bucket)
}

func textPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
