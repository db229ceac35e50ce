package platforms

import (
	"net/http"

	"companionradar/internal/repository"
)

// Register wires GET /platforms into mux.
func Register(mux *http.ServeMux, platformRepo repository.PlatformRepository, clusterRepo repository.ClusterRepository) {
	mux.Handle("GET /platforms", ListHandler{Platforms: platformRepo, Clusters: clusterRepo})
}
