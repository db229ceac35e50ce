package entity

import "time"

// Bounded-field limits for Signal, per the declared limits in the data model.
const (
	SignalTitleLimit       = 500
	SignalSummaryLimit     = 2000
	SignalHeadlineLimit    = 200
	SignalRawResponseLimit = 20000
)

// EntitySet holds the LLM-extracted named entities for a Signal, grouped by kind.
type EntitySet struct {
	Platforms []string `json:"platforms"`
	Companies []string `json:"companies"`
	People    []string `json:"people"`
	Topics    []string `json:"topics"`
}

// Signal is the interpreted view of a RawSignal: the normalizer's verdict
// plus the structured facts it extracted.
type Signal struct {
	ID                int64
	RawSignalID       int64
	CanonicalURL      string
	Title             string
	Author            string
	PublishedAt       time.Time
	Language          string
	Summary           string
	SuggestedHeadline string
	Categories        []Category
	Entities          EntitySet
	Confidence        float64
	LLMProvider       string
	LLMModel          string
	PromptVersion     string
	LLMRawResponse    string
	IngestStatus      IngestStatus
	IngestReason      string
	NormalizedAt      *time.Time
	ClusterID         *int64
	ImageURL          string
	CreatedAt         time.Time
}

// DefaultLanguage is the Signal.Language default when the normalizer
// extracts no language signal.
const DefaultLanguage = "en"
