package repository

import (
	"context"

	"companionradar/internal/domain/entity"
)

// PlatformRepository manages the reference table of recognized AI-companion
// platforms and the signal-level mentions linked to it.
type PlatformRepository interface {
	// FindBySlugs returns the platforms whose slug is in slugs, keyed by
	// slug. Slugs absent from the table are simply omitted from the result.
	FindBySlugs(ctx context.Context, slugs []string) (map[string]*entity.Platform, error)

	// LinkSignal records that a signal mentions a platform.
	LinkSignal(ctx context.Context, signalID, platformID int64) error

	// List returns every known platform, ordered by name.
	List(ctx context.Context) ([]*entity.Platform, error)
}
