package clusters

import (
	"log/slog"
	"net/http"
	"strconv"

	"companionradar/internal/domain/entity"
	"companionradar/internal/handler/http/requestid"
	"companionradar/internal/handler/http/respond"
	"companionradar/internal/observability/logging"
	"companionradar/internal/usecase/feed"
)

// ListHandler serves GET /clusters, the cursor-paginated cluster feed.
type ListHandler struct {
	Svc    *feed.Service
	Logger *slog.Logger
}

func (h ListHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := requestid.FromContext(ctx)
	logger := logging.WithRequestID(ctx, h.Logger)

	q := r.URL.Query()
	query := feed.Query{
		PlatformSlug: q.Get("platform"),
		Window:       q.Get("window"),
		Cursor:       q.Get("cursor"),
	}
	if raw := q.Get("category"); raw != "" {
		cat := entity.Category(raw)
		if !cat.Valid() {
			respond.Error(w, http.StatusBadRequest, &entity.ValidationError{Field: "category", Message: "unrecognized category"})
			return
		}
		query.Category = &cat
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respond.Error(w, http.StatusBadRequest, &entity.ValidationError{Field: "limit", Message: "must be an integer"})
			return
		}
		query.Limit = n
	}

	result, err := h.Svc.List(ctx, query)
	if err != nil {
		if ve, ok := err.(*entity.ValidationError); ok {
			respond.Error(w, http.StatusBadRequest, ve)
			return
		}
		logger.Error("list clusters failed", slog.Any("error", err), slog.String("request_id", reqID))
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}

	respond.JSON(w, http.StatusOK, toListResponse(result))
}

func toListResponse(result *feed.Result) ListResponse {
	resp := ListResponse{Clusters: make([]ClusterDTO, 0, len(result.Clusters)), HasMore: result.HasMore}
	if result.NextCursor != "" {
		cursor := result.NextCursor
		resp.NextCursor = &cursor
	}
	for _, c := range result.Clusters {
		resp.Clusters = append(resp.Clusters, toClusterDTO(c))
	}
	return resp
}

func toClusterDTO(c feed.Cluster) ClusterDTO {
	categories := make([]string, 0, len(c.Categories))
	for _, cat := range c.Categories {
		categories = append(categories, string(cat))
	}
	platforms := make([]PlatformDTO, 0, len(c.Platforms))
	for _, p := range c.Platforms {
		platforms = append(platforms, PlatformDTO{Slug: p.Slug, Name: p.Name})
	}
	signals := make([]SignalDTO, 0, len(c.Signals))
	for _, s := range c.Signals {
		signals = append(signals, SignalDTO{
			ID:           s.ID,
			Title:        s.Title,
			CanonicalURL: s.CanonicalURL,
			ImageURL:     s.ImageURL,
			SourceName:   s.SourceName,
			SourceDomain: s.SourceDomain,
			PublishedAt:  s.PublishedAt,
			CreatedAt:    s.CreatedAt,
		})
	}
	return ClusterDTO{
		ID:             c.ID,
		Headline:       c.Headline,
		ContextSummary: c.ContextSummary,
		Categories:     categories,
		Platforms:      platforms,
		ImportanceScore: c.ImportanceScore,
		ScoreBreakdown: ScoreBreakdownDTO{
			SourceDiversity: c.ScoreBreakdown.SourceDiversity,
			Velocity:        c.ScoreBreakdown.Velocity,
			Credibility:     c.ScoreBreakdown.Credibility,
			Category:        c.ScoreBreakdown.Category,
			Recency:         c.ScoreBreakdown.Recency,
			Manual:          c.ScoreBreakdown.Manual,
			Total:           c.ScoreBreakdown.Total,
		},
		SignalCount:  c.SignalCount,
		FirstSeenAt:  c.FirstSeenAt,
		LastSignalAt: c.LastSignalAt,
		Signals:      signals,
	}
}
