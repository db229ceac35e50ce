package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"companionradar/internal/domain/entity"
	"companionradar/internal/repository"
)

type PlatformRepo struct{ db *sql.DB }

func NewPlatformRepo(db *sql.DB) repository.PlatformRepository {
	return &PlatformRepo{db: db}
}

func (repo *PlatformRepo) FindBySlugs(ctx context.Context, slugs []string) (map[string]*entity.Platform, error) {
	if len(slugs) == 0 {
		return make(map[string]*entity.Platform), nil
	}

	const query = `
SELECT id, slug, name, description, website, created_at
FROM platforms WHERE slug = ANY($1)`
	rows, err := repo.db.QueryContext(ctx, query, pq.Array(slugs))
	if err != nil {
		return nil, fmt.Errorf("FindBySlugs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := make(map[string]*entity.Platform, len(slugs))
	for rows.Next() {
		var p entity.Platform
		if err := rows.Scan(&p.ID, &p.Slug, &p.Name, &p.Description, &p.Website, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("FindBySlugs: Scan: %w", err)
		}
		result[p.Slug] = &p
	}
	return result, rows.Err()
}

func (repo *PlatformRepo) LinkSignal(ctx context.Context, signalID, platformID int64) error {
	const query = `
INSERT INTO signal_platforms (signal_id, platform_id) VALUES ($1, $2)
ON CONFLICT DO NOTHING`
	if _, err := repo.db.ExecContext(ctx, query, signalID, platformID); err != nil {
		return fmt.Errorf("LinkSignal: %w", err)
	}
	return nil
}

func (repo *PlatformRepo) List(ctx context.Context) ([]*entity.Platform, error) {
	const query = `SELECT id, slug, name, description, website, created_at FROM platforms ORDER BY name`
	rows, err := repo.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var platforms []*entity.Platform
	for rows.Next() {
		var p entity.Platform
		if err := rows.Scan(&p.ID, &p.Slug, &p.Name, &p.Description, &p.Website, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("List: Scan: %w", err)
		}
		platforms = append(platforms, &p)
	}
	return platforms, rows.Err()
}
