package platforms

import (
	"net/http"

	"companionradar/internal/handler/http/respond"
	"companionradar/internal/repository"
)

// ListHandler serves GET /platforms: every known platform alongside its
// current count of ACTIVE story clusters.
type ListHandler struct {
	Platforms repository.PlatformRepository
	Clusters  repository.ClusterRepository
}

func (h ListHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	list, err := h.Platforms.List(ctx)
	if err != nil {
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}
	counts, err := h.Clusters.ActiveCountsByPlatform(ctx)
	if err != nil {
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}

	out := make([]DTO, 0, len(list))
	for _, p := range list {
		out = append(out, DTO{
			Slug:        p.Slug,
			Name:        p.Name,
			Description: p.Description,
			Website:     p.Website,
			ActiveCount: counts[p.Slug],
		})
	}
	respond.JSON(w, http.StatusOK, out)
}
