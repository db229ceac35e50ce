package ingestrun

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"companionradar/internal/domain/entity"
	"companionradar/internal/handler/http/requestid"
	"companionradar/internal/handler/http/respond"
	"companionradar/internal/observability/logging"
	"companionradar/internal/usecase/pipeline"
)

// TriggerHandler serves POST /ingest: runs one pipeline cycle synchronously
// and reports its outcome. Authorized by a shared secret, accepted as a
// bearer token, an x-cron-secret header, or a secret query parameter (the
// last two exist so a managed cron scheduler that can't set headers can
// still trigger a cycle).
type TriggerHandler struct {
	Svc             *pipeline.Service
	IngestSecret    string
	SchedulerSecret string
	Logger          *slog.Logger
}

func (h TriggerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := requestid.FromContext(ctx)
	logger := logging.WithRequestID(ctx, h.Logger)

	mode, ok := h.authorize(r)
	if !ok {
		respond.Error(w, http.StatusUnauthorized, entity.ErrInvalidInput)
		return
	}

	start := time.Now()
	run, err := h.Svc.Run(ctx, mode)
	if err != nil {
		logger.Error("ingest run failed", slog.Any("error", err), slog.String("request_id", reqID))
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}

	respond.JSON(w, http.StatusOK, TriggerResponse{
		RunID:           run.ID,
		Status:          string(run.Status),
		Mode:            mode,
		SignalsFetched:  run.Fetched,
		SignalsAccepted: run.Accepted,
		SignalsRejected: run.Rejected,
		ErrorCount:      len(run.Errors),
		DurationMs:      time.Since(start).Milliseconds(),
	})
}

// authorize checks the request's credential against the configured
// secrets and reports which mode the request should be tagged with.
func (h TriggerHandler) authorize(r *http.Request) (mode string, ok bool) {
	token := bearerToken(r)
	if token == "" {
		token = r.Header.Get("x-cron-secret")
	}
	if token == "" {
		token = r.URL.Query().Get("secret")
	}
	if token == "" {
		return "", false
	}
	if h.SchedulerSecret != "" && secretsEqual(token, h.SchedulerSecret) {
		return "scheduled", true
	}
	if h.IngestSecret != "" && secretsEqual(token, h.IngestSecret) {
		return "direct", true
	}
	return "", false
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return ""
}

func secretsEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
