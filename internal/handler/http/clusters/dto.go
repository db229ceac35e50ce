// Package clusters provides the HTTP handler for the paginated cluster feed.
package clusters

import "time"

// ScoreBreakdownDTO mirrors entity.ScoreBreakdown for the wire format.
type ScoreBreakdownDTO struct {
	SourceDiversity float64 `json:"sourceDiversity"`
	Velocity        float64 `json:"velocity"`
	Credibility     float64 `json:"credibility"`
	Category        float64 `json:"category"`
	Recency         float64 `json:"recency"`
	Manual          float64 `json:"manual"`
	Total           float64 `json:"total"`
}

// PlatformDTO identifies a platform a cluster's signals were seen on.
type PlatformDTO struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

// SignalDTO is one of a cluster's attached signals.
type SignalDTO struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	CanonicalURL string    `json:"canonicalUrl"`
	ImageURL     string    `json:"imageUrl,omitempty"`
	SourceName   string    `json:"sourceName"`
	SourceDomain string    `json:"sourceDomain"`
	PublishedAt  time.Time `json:"publishedAt"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ClusterDTO is one row of the feed response.
type ClusterDTO struct {
	ID              int64             `json:"id"`
	Headline        string            `json:"headline"`
	ContextSummary  string            `json:"contextSummary"`
	Categories      []string          `json:"categories"`
	Platforms       []PlatformDTO     `json:"platforms"`
	ImportanceScore int64             `json:"importanceScore"`
	ScoreBreakdown  ScoreBreakdownDTO `json:"scoreBreakdown"`
	SignalCount     int               `json:"signalCount"`
	FirstSeenAt     time.Time         `json:"firstSeenAt"`
	LastSignalAt    time.Time         `json:"lastSignalAt"`
	Signals         []SignalDTO       `json:"signals"`
}

// ListResponse is the full response to GET /clusters.
type ListResponse struct {
	Clusters   []ClusterDTO `json:"clusters"`
	NextCursor *string      `json:"nextCursor"`
	HasMore    bool         `json:"hasMore"`
}
