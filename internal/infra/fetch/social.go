package fetch

import (
	"context"

	"companionradar/internal/domain/entity"
)

// SocialConnector would pull posts from social platforms for SOCIAL sources.
// Not implemented; it never registers with a Registry, matching spec.md's
// "excluded: stub connectors for social sources."
type SocialConnector struct{}

func NewSocialConnector() *SocialConnector { return &SocialConnector{} }

func (c *SocialConnector) CanHandle(cfg SourceConfig) bool {
	return cfg.SourceType == entity.SourceTypeSocial
}

func (c *SocialConnector) Fetch(ctx context.Context, cfg SourceConfig) (FetchResult, error) {
	return FetchResult{}, ErrNotImplemented
}
