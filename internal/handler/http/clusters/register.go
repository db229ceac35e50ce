package clusters

import (
	"log/slog"
	"net/http"

	"companionradar/internal/usecase/feed"
)

// Register wires GET /clusters into mux.
func Register(mux *http.ServeMux, svc *feed.Service, logger *slog.Logger) {
	mux.Handle("GET /clusters", ListHandler{Svc: svc, Logger: logger})
}
