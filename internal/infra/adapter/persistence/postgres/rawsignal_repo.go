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

type RawSignalRepo struct{ db *sql.DB }

func NewRawSignalRepo(db *sql.DB) repository.RawSignalRepository {
	return &RawSignalRepo{db: db}
}

func (repo *RawSignalRepo) ExistingHashes(ctx context.Context, hashes []string) (map[string]bool, error) {
	if len(hashes) == 0 {
		return make(map[string]bool), nil
	}

	const query = `SELECT content_hash FROM raw_signals WHERE content_hash = ANY($1)`
	rows, err := repo.db.QueryContext(ctx, query, pq.Array(hashes))
	if err != nil {
		return nil, fmt.Errorf("ExistingHashes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := make(map[string]bool, len(hashes))
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return nil, fmt.Errorf("ExistingHashes: Scan: %w", err)
		}
		result[hash] = true
	}
	return result, rows.Err()
}

const rawSignalColumns = `
id, source_type, source_name, source_url, source_domain, external_id, fetched_at,
content_type, raw_payload, raw_text, content_hash, created_at`

func (repo *RawSignalRepo) FindByID(ctx context.Context, id int64) (*entity.RawSignal, error) {
	query := `SELECT ` + rawSignalColumns + ` FROM raw_signals WHERE id = $1`

	var r entity.RawSignal
	var payload []byte
	err := repo.db.QueryRowContext(ctx, query, id).Scan(
		&r.ID, &r.SourceType, &r.SourceName, &r.SourceURL, &r.SourceDomain, &r.ExternalID,
		&r.FetchedAt, &r.ContentType, &payload, &r.RawText, &r.ContentHash, &r.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, entity.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("FindByID: %w", err)
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &r.RawPayload); err != nil {
			return nil, fmt.Errorf("FindByID: unmarshal raw_payload: %w", err)
		}
	}
	return &r, nil
}

func (repo *RawSignalRepo) Create(ctx context.Context, raw *entity.RawSignal, pending *entity.Signal) (int64, int64, error) {
	tx, err := repo.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("Create: BeginTx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	payload, err := json.Marshal(raw.RawPayload)
	if err != nil {
		return 0, 0, fmt.Errorf("Create: marshal raw_payload: %w", err)
	}

	const insertRaw = `
INSERT INTO raw_signals
       (source_type, source_name, source_url, source_domain, external_id, fetched_at, content_type, raw_payload, raw_text, content_hash)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING id`
	var rawID int64
	if err := tx.QueryRowContext(ctx, insertRaw,
		raw.SourceType, raw.SourceName, raw.SourceURL, raw.SourceDomain, raw.ExternalID,
		raw.FetchedAt, raw.ContentType, payload, raw.RawText, raw.ContentHash,
	).Scan(&rawID); err != nil {
		return 0, 0, fmt.Errorf("Create: insert raw_signals: %w", err)
	}

	entities, err := json.Marshal(pending.Entities)
	if err != nil {
		return 0, 0, fmt.Errorf("Create: marshal entities: %w", err)
	}

	const insertSignal = `
INSERT INTO signals
       (raw_signal_id, canonical_url, title, author, published_at, language, entities, ingest_status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id`
	var signalID int64
	if err := tx.QueryRowContext(ctx, insertSignal,
		rawID, pending.CanonicalURL, pending.Title, pending.Author, pending.PublishedAt,
		pending.Language, entities, pending.IngestStatus,
	).Scan(&signalID); err != nil {
		return 0, 0, fmt.Errorf("Create: insert signals: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("Create: commit: %w", err)
	}
	return rawID, signalID, nil
}
