package normalize

import (
	"context"
	"crypto/tls"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"companionradar/internal/domain/entity"
)

const (
	ogImageTimeout     = 10 * time.Second
	ogImageReadLimit   = 50 * 1024
	ogImageMaxQueryLen = 200
)

// OGImageProber best-effort fetches a Signal's canonical URL and extracts
// its social preview image, per spec.md §4.4. Failures are always silent:
// a Signal with no image is a normal, fully-accepted outcome.
type OGImageProber struct {
	client *http.Client
}

// NewOGImageProber builds a prober using the teacher's web-scraper HTTP
// client shape: short timeout, TLS 1.2+ enforced, redirects left to Go's
// default (same-origin-preserving) policy.
func NewOGImageProber() *OGImageProber {
	return &OGImageProber{
		client: &http.Client{
			Timeout: ogImageTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     30 * time.Second,
				TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
			},
		},
	}
}

// Probe fetches pageURL and returns its og:image (falling back to
// twitter:image), or "" if none is found or anything goes wrong. It never
// returns an error; callers log at most a debug line on failure.
func (p *OGImageProber) Probe(ctx context.Context, pageURL string) string {
	img, err := p.probe(ctx, pageURL)
	if err != nil {
		slog.DebugContext(ctx, "normalize: og:image probe failed", slog.String("url", pageURL), slog.Any("error", err))
		return ""
	}
	return img
}

func (p *OGImageProber) probe(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; CompanionRadarBot/1.0; +https://companionradar.example/bot)")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", nil
	}

	limited := io.LimitReader(resp.Body, ogImageReadLimit)
	doc, err := goquery.NewDocumentFromReader(limited)
	if err != nil {
		return "", err
	}

	img := metaContent(doc, "og:image")
	if img == "" {
		img = metaContent(doc, "twitter:image")
	}
	if img == "" {
		return "", nil
	}

	resolved := resolveAgainst(pageURL, img)
	if !acceptableImageURL(resolved) {
		return "", nil
	}
	return resolved, nil
}

func metaContent(doc *goquery.Document, property string) string {
	var content string
	doc.Find("meta").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		prop, _ := s.Attr("property")
		name, _ := s.Attr("name")
		if prop == property || name == property {
			content = strings.TrimSpace(s.AttrOr("content", ""))
			return false
		}
		return true
	})
	return content
}

func resolveAgainst(pageURL, candidate string) string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return candidate
	}
	ref, err := url.Parse(candidate)
	if err != nil {
		return candidate
	}
	return base.ResolveReference(ref).String()
}

// acceptableImageURL rejects image URLs that look like tracking pixels or
// dynamically generated OG-image endpoints, and anything entity.ValidateURL
// itself would reject (scheme, length, private IPs).
func acceptableImageURL(raw string) bool {
	if err := entity.ValidateURL(raw); err != nil {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if len(u.RawQuery) > ogImageMaxQueryLen {
		return false
	}
	lowerPath := strings.ToLower(u.Path)
	if strings.Contains(lowerPath, "/api/og") || strings.Contains(lowerPath, "/og-image") {
		return false
	}
	return true
}
