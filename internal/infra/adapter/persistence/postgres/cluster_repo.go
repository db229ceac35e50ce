package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"companionradar/internal/domain/entity"
	"companionradar/internal/repository"
)

type ClusterRepo struct{ db *sql.DB }

func NewClusterRepo(db *sql.DB) repository.ClusterRepository {
	return &ClusterRepo{db: db}
}

const clusterColumns = `
id, fingerprint, headline, context_summary, search_text, categories,
importance_score, score_breakdown, manual_boost, first_seen_at, last_seen_at,
last_signal_at, status`

func scanCluster(row interface{ Scan(...any) error }) (*entity.StoryCluster, error) {
	var c entity.StoryCluster
	var categories pq.StringArray
	var breakdownRaw []byte
	if err := row.Scan(
		&c.ID, &c.Fingerprint, &c.Headline, &c.ContextSummary, &c.SearchText, &categories,
		&c.ImportanceScore, &breakdownRaw, &c.ManualBoost, &c.FirstSeenAt, &c.LastSeenAt,
		&c.LastSignalAt, &c.Status,
	); err != nil {
		return nil, err
	}
	for _, cat := range categories {
		c.Categories = append(c.Categories, entity.Category(cat))
	}
	if len(breakdownRaw) > 0 {
		if err := json.Unmarshal(breakdownRaw, &c.ScoreBreakdown); err != nil {
			return nil, fmt.Errorf("unmarshal score_breakdown: %w", err)
		}
	}
	return &c, nil
}

// Lock acquires a transaction-scoped advisory lock. Must be called with a
// context carrying a transaction obtained via a *sql.Tx passed through ctx;
// here we rely on the caller running every step of the assignment protocol
// against the same *sql.Tx via txFromContext.
func (repo *ClusterRepo) Lock(ctx context.Context, lockKey int64) error {
	tx := txFromContext(ctx)
	if tx == nil {
		return fmt.Errorf("Lock: no transaction in context")
	}
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, lockKey); err != nil {
		return fmt.Errorf("Lock: %w", err)
	}
	return nil
}

func (repo *ClusterRepo) FindByFingerprint(ctx context.Context, fingerprint string) (*entity.StoryCluster, error) {
	query := `SELECT ` + clusterColumns + ` FROM story_clusters WHERE fingerprint = $1`
	c, err := scanCluster(repo.querier(ctx).QueryRowContext(ctx, query, fingerprint))
	if err == sql.ErrNoRows {
		return nil, entity.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("FindByFingerprint: %w", err)
	}
	return c, nil
}

func (repo *ClusterRepo) FindCandidates(ctx context.Context, querySearchText string, trgmThreshold float64, activeDays int) ([]repository.ClusterCandidate, error) {
	tx := txFromContext(ctx)
	if tx == nil {
		return nil, fmt.Errorf("FindCandidates: no transaction in context")
	}

	// Transaction-scoped: never bleeds across pooled connections.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL pg_trgm.similarity_threshold = %f", trgmThreshold)); err != nil {
		return nil, fmt.Errorf("FindCandidates: set similarity_threshold: %w", err)
	}

	query := `
SELECT ` + clusterColumns + `, similarity(search_text, $1) AS sim
FROM story_clusters
WHERE status = $2
  AND last_signal_at >= now() - make_interval(days => $3)
  AND search_text % $1
ORDER BY sim DESC
LIMIT 10`
	rows, err := tx.QueryContext(ctx, query, querySearchText, entity.ClusterStatusActive, activeDays)
	if err != nil {
		return nil, fmt.Errorf("FindCandidates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var candidates []repository.ClusterCandidate
	for rows.Next() {
		var c entity.StoryCluster
		var categories pq.StringArray
		var breakdownRaw []byte
		var sim float64
		if err := rows.Scan(
			&c.ID, &c.Fingerprint, &c.Headline, &c.ContextSummary, &c.SearchText, &categories,
			&c.ImportanceScore, &breakdownRaw, &c.ManualBoost, &c.FirstSeenAt, &c.LastSeenAt,
			&c.LastSignalAt, &c.Status, &sim,
		); err != nil {
			return nil, fmt.Errorf("FindCandidates: Scan: %w", err)
		}
		for _, cat := range categories {
			c.Categories = append(c.Categories, entity.Category(cat))
		}
		if len(breakdownRaw) > 0 {
			_ = json.Unmarshal(breakdownRaw, &c.ScoreBreakdown)
		}

		platforms, err := repo.platformsTx(ctx, tx, c.ID)
		if err != nil {
			return nil, fmt.Errorf("FindCandidates: platforms: %w", err)
		}

		candidates = append(candidates, repository.ClusterCandidate{
			Cluster:    &c,
			Platforms:  platforms,
			Similarity: sim,
		})
	}
	return candidates, rows.Err()
}

func (repo *ClusterRepo) Create(ctx context.Context, c *entity.StoryCluster, platformSlugs []string) (int64, error) {
	tx := txFromContext(ctx)
	if tx == nil {
		return 0, fmt.Errorf("Create: no transaction in context")
	}

	categories := make(pq.StringArray, len(c.Categories))
	for i, cat := range c.Categories {
		categories[i] = string(cat)
	}
	breakdown, err := json.Marshal(c.ScoreBreakdown)
	if err != nil {
		return 0, fmt.Errorf("Create: marshal score_breakdown: %w", err)
	}

	const query = `
INSERT INTO story_clusters
       (fingerprint, headline, context_summary, search_text, categories, importance_score,
        score_breakdown, manual_boost, first_seen_at, last_seen_at, last_signal_at, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING id`
	var id int64
	err = tx.QueryRowContext(ctx, query,
		c.Fingerprint, c.Headline, c.ContextSummary, c.SearchText, categories, c.ImportanceScore,
		breakdown, c.ManualBoost, c.FirstSeenAt, c.LastSeenAt, c.LastSignalAt, c.Status,
	).Scan(&id)
	if isUniqueViolation(err) {
		return 0, entity.ErrAlreadyExists
	}
	if err != nil {
		return 0, fmt.Errorf("Create: %w", err)
	}

	if len(platformSlugs) > 0 {
		rows, qerr := tx.QueryContext(ctx, `SELECT id FROM platforms WHERE slug = ANY($1)`, pq.Array(platformSlugs))
		if qerr != nil {
			return 0, fmt.Errorf("Create: lookup platforms: %w", qerr)
		}
		var platformIDs []int64
		for rows.Next() {
			var pid int64
			if err := rows.Scan(&pid); err != nil {
				_ = rows.Close()
				return 0, fmt.Errorf("Create: scan platform id: %w", err)
			}
			platformIDs = append(platformIDs, pid)
		}
		_ = rows.Close()
		if err := rows.Err(); err != nil {
			return 0, fmt.Errorf("Create: platforms rows: %w", err)
		}

		for _, pid := range platformIDs {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO cluster_platforms (cluster_id, platform_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				id, pid,
			); err != nil {
				return 0, fmt.Errorf("Create: link platform: %w", err)
			}
		}
	}

	return id, nil
}

func (repo *ClusterRepo) Attach(ctx context.Context, clusterID int64, now time.Time) error {
	const query = `UPDATE story_clusters SET last_signal_at = $1, last_seen_at = $1 WHERE id = $2`
	res, err := repo.querier(ctx).ExecContext(ctx, query, now, clusterID)
	if err != nil {
		return fmt.Errorf("Attach: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return entity.ErrNotFound
	}
	return nil
}

func (repo *ClusterRepo) PlatformsForCluster(ctx context.Context, clusterID int64) ([]string, error) {
	return repo.platformsTx(ctx, repo.querier(ctx), clusterID)
}

func (repo *ClusterRepo) platformsTx(ctx context.Context, q querier, clusterID int64) ([]string, error) {
	const query = `
SELECT p.slug FROM platforms p
JOIN cluster_platforms cp ON cp.platform_id = p.id
WHERE cp.cluster_id = $1
ORDER BY p.slug`
	rows, err := q.QueryContext(ctx, query, clusterID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var slugs []string
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, err
		}
		slugs = append(slugs, slug)
	}
	return slugs, rows.Err()
}

func (repo *ClusterRepo) SweepStale(ctx context.Context, activeDays int) (int, error) {
	const query = `
UPDATE story_clusters SET status = $1
WHERE status = $2 AND last_signal_at < now() - make_interval(days => $3)`
	res, err := repo.db.ExecContext(ctx, query, entity.ClusterStatusStale, entity.ClusterStatusActive, activeDays)
	if err != nil {
		return 0, fmt.Errorf("SweepStale: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (repo *ClusterRepo) ListActive(ctx context.Context) ([]*entity.StoryCluster, error) {
	query := `SELECT ` + clusterColumns + ` FROM story_clusters WHERE status = $1`
	rows, err := repo.db.QueryContext(ctx, query, entity.ClusterStatusActive)
	if err != nil {
		return nil, fmt.Errorf("ListActive: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var clusters []*entity.StoryCluster
	for rows.Next() {
		c, err := scanCluster(rows)
		if err != nil {
			return nil, fmt.Errorf("ListActive: Scan: %w", err)
		}
		clusters = append(clusters, c)
	}
	return clusters, rows.Err()
}

func (repo *ClusterRepo) UpdateScore(ctx context.Context, clusterID int64, score int64, breakdown entity.ScoreBreakdown) error {
	b, err := json.Marshal(breakdown)
	if err != nil {
		return fmt.Errorf("UpdateScore: marshal: %w", err)
	}
	const query = `UPDATE story_clusters SET importance_score = $1, score_breakdown = $2 WHERE id = $3`
	_, err = repo.db.ExecContext(ctx, query, score, b, clusterID)
	if err != nil {
		return fmt.Errorf("UpdateScore: %w", err)
	}
	return nil
}

func (repo *ClusterRepo) Feed(ctx context.Context, filter repository.FeedFilter) ([]repository.FeedCluster, error) {
	var where []string
	var args []any
	idx := 1

	where = append(where, fmt.Sprintf("status = $%d", idx))
	args = append(args, entity.ClusterStatusActive)
	idx++

	where = append(where, fmt.Sprintf("last_signal_at >= $%d", idx))
	args = append(args, filter.Since)
	idx++

	if filter.Category != nil {
		where = append(where, fmt.Sprintf("$%d = ANY(categories)", idx))
		args = append(args, string(*filter.Category))
		idx++
	}

	if filter.PlatformSlug != nil {
		where = append(where, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM cluster_platforms cp JOIN platforms p ON p.id = cp.platform_id WHERE cp.cluster_id = story_clusters.id AND p.slug = $%d)",
			idx))
		args = append(args, *filter.PlatformSlug)
		idx++
	}

	if filter.Cursor != nil {
		where = append(where, fmt.Sprintf(`(
    importance_score < $%d
    OR (importance_score = $%d AND last_signal_at < $%d)
    OR (importance_score = $%d AND last_signal_at = $%d AND id < $%d)
)`, idx, idx, idx+1, idx, idx+1, idx+2))
		args = append(args, filter.Cursor.ImportanceScore, filter.Cursor.LastSignalAt, filter.Cursor.ID)
		idx += 3
	}

	limit := filter.Limit + 1
	query := `SELECT ` + clusterColumns + ` FROM story_clusters
WHERE ` + strings.Join(where, " AND ") + `
ORDER BY importance_score DESC, last_signal_at DESC, id DESC
LIMIT ` + fmt.Sprintf("$%d", idx)
	args = append(args, limit)

	rows, err := repo.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("Feed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []repository.FeedCluster
	for rows.Next() {
		c, err := scanCluster(rows)
		if err != nil {
			return nil, fmt.Errorf("Feed: Scan: %w", err)
		}
		platforms, err := repo.PlatformsForCluster(ctx, c.ID)
		if err != nil {
			return nil, fmt.Errorf("Feed: platforms: %w", err)
		}
		results = append(results, repository.FeedCluster{Cluster: c, Platforms: platforms})
	}
	return results, rows.Err()
}

func (repo *ClusterRepo) ActiveCountsByPlatform(ctx context.Context) (map[string]int, error) {
	const query = `
SELECT p.slug, COUNT(*)
FROM cluster_platforms cp
JOIN platforms p ON p.id = cp.platform_id
JOIN story_clusters c ON c.id = cp.cluster_id
WHERE c.status = $1
GROUP BY p.slug`
	rows, err := repo.db.QueryContext(ctx, query, entity.ClusterStatusActive)
	if err != nil {
		return nil, fmt.Errorf("ActiveCountsByPlatform: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int)
	for rows.Next() {
		var slug string
		var n int
		if err := rows.Scan(&slug, &n); err != nil {
			return nil, fmt.Errorf("ActiveCountsByPlatform: Scan: %w", err)
		}
		counts[slug] = n
	}
	return counts, rows.Err()
}

// querier lets read helpers run against either the pool or an in-flight
// transaction, picking up isolation when the caller is mid-assignment.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (repo *ClusterRepo) querier(ctx context.Context) querier {
	if tx := txFromContext(ctx); tx != nil {
		return tx
	}
	return repo.db
}
