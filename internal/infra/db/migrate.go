package db

import "database/sql"

// MigrateUp creates the schema if it does not already exist: tables,
// foreign keys, the pg_trgm extension (used by the clusterer's Phase 1
// candidate search), and every index the query paths rely on.
func MigrateUp(db *sql.DB) error {
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS raw_signals (
    id            BIGSERIAL PRIMARY KEY,
    source_type   VARCHAR(20) NOT NULL,
    source_name   TEXT NOT NULL,
    source_url    TEXT NOT NULL,
    source_domain TEXT NOT NULL,
    external_id   TEXT,
    fetched_at    TIMESTAMPTZ NOT NULL,
    content_type  TEXT NOT NULL,
    raw_payload   JSONB NOT NULL,
    raw_text      TEXT,
    content_hash  TEXT NOT NULL UNIQUE,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
)`); err != nil {
		return err
	}

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS platforms (
    id          BIGSERIAL PRIMARY KEY,
    slug        TEXT NOT NULL UNIQUE,
    name        TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    website     TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`); err != nil {
		return err
	}

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS story_clusters (
    id               BIGSERIAL PRIMARY KEY,
    fingerprint      TEXT NOT NULL UNIQUE,
    headline         TEXT NOT NULL,
    context_summary  TEXT NOT NULL DEFAULT '',
    search_text      TEXT NOT NULL DEFAULT '',
    categories       TEXT[] NOT NULL DEFAULT '{}',
    importance_score BIGINT NOT NULL DEFAULT 0,
    score_breakdown  JSONB NOT NULL DEFAULT '{}',
    manual_boost     INTEGER NOT NULL DEFAULT 0,
    first_seen_at    TIMESTAMPTZ NOT NULL,
    last_seen_at     TIMESTAMPTZ NOT NULL,
    last_signal_at   TIMESTAMPTZ NOT NULL,
    status           VARCHAR(10) NOT NULL DEFAULT 'ACTIVE'
)`); err != nil {
		return err
	}

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS signals (
    id                  BIGSERIAL PRIMARY KEY,
    raw_signal_id       BIGINT NOT NULL UNIQUE REFERENCES raw_signals(id),
    canonical_url       TEXT NOT NULL,
    title               TEXT NOT NULL,
    author              TEXT NOT NULL DEFAULT '',
    published_at        TIMESTAMPTZ NOT NULL,
    language            VARCHAR(10) NOT NULL DEFAULT 'en',
    summary             TEXT NOT NULL DEFAULT '',
    suggested_headline  TEXT NOT NULL DEFAULT '',
    categories          TEXT[] NOT NULL DEFAULT '{}',
    entities            JSONB NOT NULL DEFAULT '{}',
    confidence          DOUBLE PRECISION NOT NULL DEFAULT 0,
    llm_provider        TEXT NOT NULL DEFAULT '',
    llm_model           TEXT NOT NULL DEFAULT '',
    prompt_version      TEXT NOT NULL DEFAULT '',
    llm_raw_response    TEXT NOT NULL DEFAULT '',
    ingest_status       VARCHAR(10) NOT NULL DEFAULT 'PENDING',
    ingest_reason       TEXT NOT NULL DEFAULT '',
    normalized_at       TIMESTAMPTZ,
    cluster_id          BIGINT REFERENCES story_clusters(id),
    image_url           TEXT NOT NULL DEFAULT '',
    created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
)`); err != nil {
		return err
	}

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS cluster_platforms (
    cluster_id  BIGINT NOT NULL REFERENCES story_clusters(id),
    platform_id BIGINT NOT NULL REFERENCES platforms(id),
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (cluster_id, platform_id)
)`); err != nil {
		return err
	}

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS signal_platforms (
    signal_id   BIGINT NOT NULL REFERENCES signals(id),
    platform_id BIGINT NOT NULL REFERENCES platforms(id),
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (signal_id, platform_id)
)`); err != nil {
		return err
	}

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS source_credibility (
    domain TEXT PRIMARY KEY,
    weight DOUBLE PRECISION NOT NULL
)`); err != nil {
		return err
	}

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS ingest_runs (
    id          BIGSERIAL PRIMARY KEY,
    started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    finished_at TIMESTAMPTZ,
    status      VARCHAR(10) NOT NULL DEFAULT 'RUNNING',
    fetched     INTEGER NOT NULL DEFAULT 0,
    accepted    INTEGER NOT NULL DEFAULT 0,
    rejected    INTEGER NOT NULL DEFAULT 0,
    errors      JSONB NOT NULL DEFAULT '[]'
)`); err != nil {
		return err
	}

	// pg_trgm backs the clusterer's Phase 1 candidate search. Ignored on
	// error: a non-superuser connection cannot create extensions, and the
	// extension may already exist from a prior migration run.
	_, _ = db.Exec(`CREATE EXTENSION IF NOT EXISTS pg_trgm`)

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_signals_ingest_status ON signals(ingest_status)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_cluster_id ON signals(cluster_id)`,
		`CREATE INDEX IF NOT EXISTS idx_story_clusters_status_last_signal ON story_clusters(status, last_signal_at DESC)`,
		// backs the feed query's strict ordering
		`CREATE INDEX IF NOT EXISTS idx_story_clusters_feed ON story_clusters(importance_score DESC, last_signal_at DESC, id DESC)`,
	}
	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			return err
		}
	}

	// Trigram GIN index for the Phase 1 candidate search. Ignored on error:
	// requires pg_trgm, which may not have been grantable above.
	_, _ = db.Exec(`CREATE INDEX IF NOT EXISTS idx_story_clusters_search_text_trgm ON story_clusters USING gin(search_text gin_trgm_ops)`)

	return nil
}

// MigrateDown drops every table this package creates, in dependency order.
// Use with caution: this deletes all data.
func MigrateDown(db *sql.DB) error {
	dropStatements := []string{
		`DROP TABLE IF EXISTS ingest_runs`,
		`DROP TABLE IF EXISTS source_credibility`,
		`DROP TABLE IF EXISTS signal_platforms`,
		`DROP TABLE IF EXISTS cluster_platforms`,
		`DROP TABLE IF EXISTS signals`,
		`DROP TABLE IF EXISTS story_clusters`,
		`DROP TABLE IF EXISTS platforms`,
		`DROP TABLE IF EXISTS raw_signals`,
	}
	for _, stmt := range dropStatements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
