package entity

import "time"

// RawSignalTextLimit bounds RawSignal.RawText.
const RawSignalTextLimit = 20000

// RawSignal is the immutable artifact of one fetch. It is created once and
// never mutated; a Signal is its interpreted 1:1 companion row.
type RawSignal struct {
	ID           int64
	SourceType   SourceType
	SourceName   string
	SourceURL    string
	SourceDomain string
	ExternalID   *string
	FetchedAt    time.Time
	ContentType  string
	RawPayload   map[string]any
	RawText      *string
	ContentHash  string
	CreatedAt    time.Time
}
