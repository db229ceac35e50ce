package ingestrun

import (
	"net/http"

	"companionradar/internal/domain/entity"
	"companionradar/internal/handler/http/respond"
	"companionradar/internal/repository"
)

const historyLimit = 10

// ListHandler serves GET /ingest: the most recent pipeline run history.
type ListHandler struct {
	Runs repository.IngestRunRepository
}

func (h ListHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	runs, err := h.Runs.List(r.Context(), historyLimit)
	if err != nil {
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]RunDTO, 0, len(runs))
	for _, run := range runs {
		out = append(out, toRunDTO(run))
	}
	respond.JSON(w, http.StatusOK, out)
}

func toRunDTO(run *entity.IngestRun) RunDTO {
	return RunDTO{
		ID:              run.ID,
		StartedAt:       run.StartedAt,
		FinishedAt:      run.FinishedAt,
		Status:          string(run.Status),
		SignalsFetched:  run.Fetched,
		SignalsAccepted: run.Accepted,
		SignalsRejected: run.Rejected,
		ErrorCount:      len(run.Errors),
	}
}
