package cluster

import (
	"sort"
	"strings"

	"companionradar/internal/domain/entity"
	"companionradar/internal/pkg/tfidf"
)

const fingerprintKeywordCount = 5

// Fingerprint computes a Signal's coarse clustering key, per spec.md §4.6:
// sorted platform slugs, the UTC date of its publish time (falling back to
// its ingest time), and its top-5 summary keywords, pipe-joined. It is
// deliberately coarse: two items about the same story on the same day
// converge onto the same fingerprint before TF-IDF refinement ever runs.
func Fingerprint(signal *entity.Signal, platformSlugs []string) string {
	sorted := append([]string(nil), platformSlugs...)
	sort.Strings(sorted)

	day := signal.PublishedAt
	if day.IsZero() {
		day = signal.CreatedAt
	}

	keywords := tfidf.TopKeywords(signal.Summary, fingerprintKeywordCount)

	return strings.Join(sorted, ",") + "|" + day.UTC().Format("2006-01-02") + "|" + strings.Join(keywords, ",")
}
