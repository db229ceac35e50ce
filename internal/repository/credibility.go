package repository

import "context"

// SourceCredibilityRepository is the read-mostly domain → weight table
// consulted by the ranker's credibility term.
type SourceCredibilityRepository interface {
	// WeightsForDomains returns the credibility weight for each domain
	// present in the table. Domains absent from the result should be
	// treated by the caller as the default weight.
	WeightsForDomains(ctx context.Context, domains []string) (map[string]float64, error)
}
