package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"ledger-service/internal/services"
)

// SourceIngester stores source batches
type SourceIngester interface {
	IngestHistorical(ctx context.Context, req services.HistoricalImportRequest) (*services.IngestionResult, error)
	IngestPlatform(ctx context.Context, req services.PlatformSyncRequest) (*services.IngestionResult, error)
}

type DataHandler struct {
	ingester SourceIngester
}

func NewDataHandler(ingester SourceIngester) *DataHandler {
	return &DataHandler{ingester: ingester}
}

func (h *DataHandler) ImportHistorical(w http.ResponseWriter, r *http.Request) {
	var req services.HistoricalImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if len(req.Transactions) == 0 {
		respondWithError(w, http.StatusBadRequest, "No transactions provided")
		return
	}

	result, err := h.ingester.IngestHistorical(r.Context(), req)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondWithJSON(w, ingestionStatus(result), result)
}

func (h *DataHandler) SyncPlatform(w http.ResponseWriter, r *http.Request) {
	var req services.PlatformSyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if req.SyncType == "" {
		respondWithError(w, http.StatusBadRequest, "sync_type is required")
		return
	}

	result, err := h.ingester.IngestPlatform(r.Context(), req)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondWithJSON(w, ingestionStatus(result), result)
}

func ingestionStatus(result *services.IngestionResult) int {
	if !result.Success {
		return http.StatusPartialContent
	}
	return http.StatusOK
}
