package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"ledger-service/internal/events"
	"ledger-service/internal/logger"
	"ledger-service/internal/models"
	"ledger-service/internal/services"
)

type Publisher interface {
	Publish(ctx context.Context, n events.Notification) error
}

type RebuildReporter interface {
	GetStatistics(ctx context.Context) (*services.RebuildStatistics, error)
	ListRuns(ctx context.Context, limit int) ([]*models.RebuildRun, error)
}

// RebuildHandler accepts change notifications and manual rebuild requests. Both are
// queued; the response never waits for, or reports on, the rebuild itself.
type RebuildHandler struct {
	publisher Publisher
	reporter  RebuildReporter
}

func NewRebuildHandler(publisher Publisher, reporter RebuildReporter) *RebuildHandler {
	return &RebuildHandler{
		publisher: publisher,
		reporter:  reporter,
	}
}

type acceptedResponse struct {
	EventID string `json:"event_id"`
	Kind    string `json:"kind"`
	Queued  bool   `json:"queued"`
}

// enqueue always answers 202. A notification that could not be queued is logged;
// the next trigger covers it.
func (h *RebuildHandler) enqueue(w http.ResponseWriter, r *http.Request, n events.Notification) {
	queued := true
	if err := h.publisher.Publish(r.Context(), n); err != nil {
		queued = false
		log := logger.FromContext(r.Context())
		log.Warn().Err(err).Str("event_id", n.EventID().String()).Str("kind", n.Kind()).Msg("Failed to queue notification")
	}
	respondWithJSON(w, http.StatusAccepted, acceptedResponse{
		EventID: n.EventID().String(),
		Kind:    n.Kind(),
		Queued:  queued,
	})
}

func (h *RebuildHandler) HistoricalImportNotification(w http.ResponseWriter, r *http.Request) {
	var request struct {
		RecordsImported int       `json:"recordsImported"`
		ImportTime      time.Time `json:"importTime"`
		DataSourceLabel string    `json:"dataSourceLabel"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if request.ImportTime.IsZero() {
		respondWithError(w, http.StatusBadRequest, "importTime is required")
		return
	}

	h.enqueue(w, r, events.NewHistoricalImported(request.RecordsImported, request.ImportTime, request.DataSourceLabel))
}

func (h *RebuildHandler) PlatformSyncNotification(w http.ResponseWriter, r *http.Request) {
	var request struct {
		RecordsProcessed int       `json:"recordsProcessed"`
		SyncTime         time.Time `json:"syncTime"`
		SyncType         string    `json:"syncType"`
		Success          bool      `json:"success"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if request.SyncTime.IsZero() {
		respondWithError(w, http.StatusBadRequest, "syncTime is required")
		return
	}

	h.enqueue(w, r, events.NewPlatformSynced(request.RecordsProcessed, request.SyncTime, request.SyncType, request.Success))
}

func (h *RebuildHandler) TriggerRebuild(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Mode  models.RebuildMode `json:"mode"`
		Since *time.Time         `json:"since,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if request.Mode != models.RebuildFull && request.Mode != models.RebuildIncremental {
		respondWithError(w, http.StatusBadRequest, "mode must be 'full' or 'incremental'")
		return
	}

	h.enqueue(w, r, events.NewRebuildRequested(request.Mode, request.Since))
}

func (h *RebuildHandler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.reporter.GetStatistics(r.Context())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, stats)
}

func (h *RebuildHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			respondWithError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	runs, err := h.reporter.ListRuns(r.Context(), limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, runs)
}
