package fetch

import (
	"context"

	"companionradar/internal/domain/entity"
)

// ProductConnector would scrape product-changelog pages for PRODUCT sources.
// Not implemented; it never registers with a Registry so CanHandle is
// unreachable in practice, matching spec.md's excluded stub connectors.
type ProductConnector struct{}

func NewProductConnector() *ProductConnector { return &ProductConnector{} }

func (c *ProductConnector) CanHandle(cfg SourceConfig) bool {
	return cfg.SourceType == entity.SourceTypeProduct
}

func (c *ProductConnector) Fetch(ctx context.Context, cfg SourceConfig) (FetchResult, error) {
	return FetchResult{}, ErrNotImplemented
}
