package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"ledger-service/internal/models"
	"ledger-service/internal/repositories"
	"ledger-service/internal/services"
)

type StatementComputer interface {
	ComputeStatement(ctx context.Context, scope models.Scope, start, end time.Time) (*models.BalanceSnapshot, error)
}

type LinkBackfiller interface {
	BackfillLinks(ctx context.Context, id int64, links models.Links) (*models.Transaction, bool, error)
}

type StatementHandler struct {
	statements StatementComputer
	links      LinkBackfiller
}

func NewStatementHandler(statements StatementComputer, links LinkBackfiller) *StatementHandler {
	return &StatementHandler{
		statements: statements,
		links:      links,
	}
}

func (h *StatementHandler) GetStatement(w http.ResponseWriter, r *http.Request) {
	kind, err := models.ParseScopeKind(mux.Vars(r)["scope"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "scope must be one of lease, property, owner")
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid id")
		return
	}

	query := r.URL.Query()
	if query.Get("from") == "" || query.Get("to") == "" {
		respondWithError(w, http.StatusBadRequest, "Both from and to are required")
		return
	}
	from, err := queryDate(r, "from", time.Time{})
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid from format. Use YYYY-MM-DD")
		return
	}
	to, err := queryDate(r, "to", time.Time{})
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid to format. Use YYYY-MM-DD")
		return
	}

	snapshot, err := h.statements.ComputeStatement(r.Context(), models.Scope{Kind: kind, ID: id}, from, to)
	if errors.Is(err, services.ErrInvalidPeriod) {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, snapshot)
}

type linksRequest struct {
	PropertyID     *int64 `json:"property_id"`
	InvoiceID      *int64 `json:"invoice_id"`
	TenantID       *int64 `json:"tenant_id"`
	OwnerID        *int64 `json:"owner_id"`
	BeneficiaryID  *int64 `json:"beneficiary_id"`
	PaymentBatchID string `json:"payment_batch_id"`
}

func (req linksRequest) links() models.Links {
	ref := func(v *int64) sql.NullInt64 {
		if v == nil {
			return sql.NullInt64{}
		}
		return sql.NullInt64{Int64: *v, Valid: true}
	}
	return models.Links{
		PropertyID:     ref(req.PropertyID),
		InvoiceID:      ref(req.InvoiceID),
		TenantID:       ref(req.TenantID),
		OwnerID:        ref(req.OwnerID),
		BeneficiaryID:  ref(req.BeneficiaryID),
		PaymentBatchID: sql.NullString{String: req.PaymentBatchID, Valid: req.PaymentBatchID != ""},
	}
}

// PatchLinks back-fills empty relationship links on one canonical transaction
func (h *StatementHandler) PatchLinks(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid transaction id")
		return
	}
	var req linksRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	links := req.links()
	if links.Empty() {
		respondWithError(w, http.StatusBadRequest, "No links provided")
		return
	}

	t, changed, err := h.links.BackfillLinks(r.Context(), id, links)
	if errors.Is(err, repositories.ErrNotFound) {
		respondWithError(w, http.StatusNotFound, "Transaction not found")
		return
	}
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	message := "Links back-filled"
	if !changed {
		message = "No empty links to fill"
	}
	respondWithJSON(w, http.StatusOK, SuccessResponse{Message: message, Data: t})
}
