package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"companionradar/internal/domain/entity"
	"companionradar/internal/repository"
)

type SignalRepo struct{ db *sql.DB }

func NewSignalRepo(db *sql.DB) repository.SignalRepository {
	return &SignalRepo{db: db}
}

const signalColumns = `
id, raw_signal_id, canonical_url, title, author, published_at, language, summary,
suggested_headline, categories, entities, confidence, llm_provider, llm_model,
prompt_version, llm_raw_response, ingest_status, ingest_reason, normalized_at,
cluster_id, image_url, created_at`

// qualifiedSignalColumns is signalColumns prefixed for a query joining
// signals against raw_signals, which also has id and created_at columns.
const qualifiedSignalColumns = `
s.id, s.raw_signal_id, s.canonical_url, s.title, s.author, s.published_at, s.language, s.summary,
s.suggested_headline, s.categories, s.entities, s.confidence, s.llm_provider, s.llm_model,
s.prompt_version, s.llm_raw_response, s.ingest_status, s.ingest_reason, s.normalized_at,
s.cluster_id, s.image_url, s.created_at`

func scanSignal(row interface{ Scan(...any) error }) (*entity.Signal, error) {
	var s entity.Signal
	var categories pq.StringArray
	var entitiesRaw []byte
	if err := row.Scan(
		&s.ID, &s.RawSignalID, &s.CanonicalURL, &s.Title, &s.Author, &s.PublishedAt, &s.Language,
		&s.Summary, &s.SuggestedHeadline, &categories, &entitiesRaw, &s.Confidence, &s.LLMProvider,
		&s.LLMModel, &s.PromptVersion, &s.LLMRawResponse, &s.IngestStatus, &s.IngestReason,
		&s.NormalizedAt, &s.ClusterID, &s.ImageURL, &s.CreatedAt,
	); err != nil {
		return nil, err
	}
	for _, c := range categories {
		s.Categories = append(s.Categories, entity.Category(c))
	}
	if len(entitiesRaw) > 0 {
		if err := json.Unmarshal(entitiesRaw, &s.Entities); err != nil {
			return nil, fmt.Errorf("unmarshal entities: %w", err)
		}
	}
	return &s, nil
}

func (repo *SignalRepo) FindByID(ctx context.Context, id int64) (*entity.Signal, error) {
	query := `SELECT ` + signalColumns + ` FROM signals WHERE id = $1`
	s, err := scanSignal(repo.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, entity.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("FindByID: %w", err)
	}
	return s, nil
}

func (repo *SignalRepo) ListPending(ctx context.Context) ([]*entity.Signal, error) {
	query := `SELECT ` + signalColumns + ` FROM signals WHERE ingest_status = $1 ORDER BY id`
	rows, err := repo.db.QueryContext(ctx, query, entity.IngestStatusPending)
	if err != nil {
		return nil, fmt.Errorf("ListPending: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var signals []*entity.Signal
	for rows.Next() {
		s, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("ListPending: Scan: %w", err)
		}
		signals = append(signals, s)
	}
	return signals, rows.Err()
}

func (repo *SignalRepo) ApplyNormalization(ctx context.Context, s *entity.Signal) error {
	entities, err := json.Marshal(s.Entities)
	if err != nil {
		return fmt.Errorf("ApplyNormalization: marshal entities: %w", err)
	}
	categories := make(pq.StringArray, len(s.Categories))
	for i, c := range s.Categories {
		categories[i] = string(c)
	}

	const query = `
UPDATE signals SET
    summary = $1, suggested_headline = $2, categories = $3, entities = $4,
    confidence = $5, llm_provider = $6, llm_model = $7, prompt_version = $8,
    llm_raw_response = $9, ingest_status = $10, ingest_reason = $11,
    normalized_at = $12, image_url = $13
WHERE id = $14`
	res, err := repo.db.ExecContext(ctx, query,
		s.Summary, s.SuggestedHeadline, categories, entities, s.Confidence,
		s.LLMProvider, s.LLMModel, s.PromptVersion, s.LLMRawResponse,
		s.IngestStatus, s.IngestReason, s.NormalizedAt, s.ImageURL, s.ID,
	)
	if err != nil {
		return fmt.Errorf("ApplyNormalization: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return entity.ErrNotFound
	}
	return nil
}

func (repo *SignalRepo) AttachToCluster(ctx context.Context, signalID, clusterID int64) error {
	const query = `UPDATE signals SET cluster_id = $1 WHERE id = $2`
	res, err := repo.db.ExecContext(ctx, query, clusterID, signalID)
	if err != nil {
		return fmt.Errorf("AttachToCluster: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return entity.ErrNotFound
	}
	return nil
}

func (repo *SignalRepo) RecentByCluster(ctx context.Context, clusterID int64, withinMinutes int) (int, error) {
	const query = `
SELECT COUNT(*) FROM signals
WHERE cluster_id = $1 AND created_at >= now() - make_interval(mins => $2)`
	var count int
	if err := repo.db.QueryRowContext(ctx, query, clusterID, withinMinutes).Scan(&count); err != nil {
		return 0, fmt.Errorf("RecentByCluster: %w", err)
	}
	return count, nil
}

func (repo *SignalRepo) ListByCluster(ctx context.Context, clusterID int64, limit int) ([]*entity.Signal, error) {
	query := `SELECT ` + signalColumns + ` FROM signals WHERE cluster_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := repo.db.QueryContext(ctx, query, clusterID, limit)
	if err != nil {
		return nil, fmt.Errorf("ListByCluster: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var signals []*entity.Signal
	for rows.Next() {
		s, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("ListByCluster: Scan: %w", err)
		}
		signals = append(signals, s)
	}
	return signals, rows.Err()
}

func (repo *SignalRepo) CountByCluster(ctx context.Context, clusterID int64) (int, error) {
	const query = `SELECT COUNT(*) FROM signals WHERE cluster_id = $1`
	var count int
	if err := repo.db.QueryRowContext(ctx, query, clusterID).Scan(&count); err != nil {
		return 0, fmt.Errorf("CountByCluster: %w", err)
	}
	return count, nil
}

func (repo *SignalRepo) ListByClusterWithSource(ctx context.Context, clusterID int64, limit int) ([]repository.SignalWithSource, error) {
	query := `
SELECT ` + qualifiedSignalColumns + `, r.source_name, r.source_domain
FROM signals s
JOIN raw_signals r ON r.id = s.raw_signal_id
WHERE s.cluster_id = $1
ORDER BY s.created_at DESC
LIMIT $2`
	rows, err := repo.db.QueryContext(ctx, query, clusterID, limit)
	if err != nil {
		return nil, fmt.Errorf("ListByClusterWithSource: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []repository.SignalWithSource
	for rows.Next() {
		var categories pq.StringArray
		var entitiesRaw []byte
		var s entity.Signal
		var sourceName, sourceDomain string
		if err := rows.Scan(
			&s.ID, &s.RawSignalID, &s.CanonicalURL, &s.Title, &s.Author, &s.PublishedAt, &s.Language,
			&s.Summary, &s.SuggestedHeadline, &categories, &entitiesRaw, &s.Confidence, &s.LLMProvider,
			&s.LLMModel, &s.PromptVersion, &s.LLMRawResponse, &s.IngestStatus, &s.IngestReason,
			&s.NormalizedAt, &s.ClusterID, &s.ImageURL, &s.CreatedAt, &sourceName, &sourceDomain,
		); err != nil {
			return nil, fmt.Errorf("ListByClusterWithSource: Scan: %w", err)
		}
		for _, c := range categories {
			s.Categories = append(s.Categories, entity.Category(c))
		}
		if len(entitiesRaw) > 0 {
			if err := json.Unmarshal(entitiesRaw, &s.Entities); err != nil {
				return nil, fmt.Errorf("ListByClusterWithSource: unmarshal entities: %w", err)
			}
		}
		out = append(out, repository.SignalWithSource{Signal: &s, SourceName: sourceName, SourceDomain: sourceDomain})
	}
	return out, rows.Err()
}
