package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"companionradar/internal/repository"
)

type CredibilityRepo struct{ db *sql.DB }

func NewCredibilityRepo(db *sql.DB) repository.SourceCredibilityRepository {
	return &CredibilityRepo{db: db}
}

func (repo *CredibilityRepo) WeightsForDomains(ctx context.Context, domains []string) (map[string]float64, error) {
	if len(domains) == 0 {
		return make(map[string]float64), nil
	}

	const query = `SELECT domain, weight FROM source_credibility WHERE domain = ANY($1)`
	rows, err := repo.db.QueryContext(ctx, query, pq.Array(domains))
	if err != nil {
		return nil, fmt.Errorf("WeightsForDomains: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := make(map[string]float64, len(domains))
	for rows.Next() {
		var domain string
		var weight float64
		if err := rows.Scan(&domain, &weight); err != nil {
			return nil, fmt.Errorf("WeightsForDomains: Scan: %w", err)
		}
		result[domain] = weight
	}
	return result, rows.Err()
}
