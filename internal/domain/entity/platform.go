package entity

import "time"

// Platform is a reference row for a recognized AI-companion platform.
// Slugs are lowercase, hyphenated (see textutil.Slugify).
type Platform struct {
	ID          int64
	Slug        string
	Name        string
	Description string
	Website     string
	CreatedAt   time.Time
}

// ClusterPlatform links a StoryCluster to a Platform. The link set for a
// cluster is append-only and fixed at creation time (the union of its
// founding signals' recognized platforms).
type ClusterPlatform struct {
	ClusterID  int64
	PlatformID int64
	CreatedAt  time.Time
}

// SignalPlatform links a Signal to a Platform it mentions.
type SignalPlatform struct {
	SignalID   int64
	PlatformID int64
	CreatedAt  time.Time
}
