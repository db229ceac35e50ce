// Package hashutil provides the content hashing and lock-key derivation
// used for raw-signal dedup and per-fingerprint cluster-creation
// serialization.
package hashutil

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"net/url"
	"regexp"
	"strings"
)

// ContentHash returns a hex-encoded SHA-256 digest of the given fields,
// joined by a separator byte that cannot appear in normalized URL or text
// input. Callers build RawSignal.ContentHash as
// ContentHash(NormalizeURL(url), externalID, "") when the feed supplied an
// external id, or ContentHash(NormalizeURL(url), strings.ToLower(title),
// dateBucket) otherwise, per the dedup key in the data model.
func ContentHash(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// NormalizeURL lowercases scheme, host, and path, strips a trailing slash,
// and discards query and fragment. Falls back to a lowercased, trimmed copy
// of rawURL if it fails to parse.
func NormalizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return strings.ToLower(strings.TrimRight(rawURL, "/"))
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Path = strings.ToLower(strings.TrimRight(u.Path, "/"))
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

// Domain extracts the lowercase hostname from a URL, dropping any port and
// a leading "www." label. Falls back to a conservative regex scan over the
// raw string if URL parsing fails or yields no host.
func Domain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err == nil && u.Hostname() != "" {
		return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	}
	match := domainFallbackPattern.FindStringSubmatch(rawURL)
	if match == nil {
		return ""
	}
	return strings.ToLower(match[1])
}

var domainFallbackPattern = regexp.MustCompile(`(?i)(?:www\.)?([a-z0-9-]+(?:\.[a-z0-9-]+)*\.[a-z]{2,})`)

// AdvisoryLockKey derives a deterministic signed 64-bit key from a
// fingerprint for use with pg_advisory_xact_lock. Postgres advisory locks
// take a bigint, so only the low 60 bits of the SHA-256 digest are used,
// keeping the value within int64 range with the sign bit clear.
func AdvisoryLockKey(fingerprint string) int64 {
	sum := sha256.Sum256([]byte(fingerprint))
	v := binary.BigEndian.Uint64(sum[:8])
	return int64(v &^ (0xF << 60))
}
