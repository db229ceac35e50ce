package ingestrun

import (
	"log/slog"
	"net/http"

	"companionradar/internal/repository"
	"companionradar/internal/usecase/pipeline"
)

// Register wires GET /ingest and POST /ingest into mux.
func Register(mux *http.ServeMux, runs repository.IngestRunRepository, pipelineSvc *pipeline.Service, ingestSecret, schedulerSecret string, logger *slog.Logger) {
	mux.Handle("GET /ingest", ListHandler{Runs: runs})
	mux.Handle("POST /ingest", TriggerHandler{
		Svc:             pipelineSvc,
		IngestSecret:    ingestSecret,
		SchedulerSecret: schedulerSecret,
		Logger:          logger,
	})
}
