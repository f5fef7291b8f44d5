package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"ledger-service/internal/models"
	"ledger-service/internal/services"
)

type BalanceReporter interface {
	Dashboard(ctx context.Context, asOf time.Time) (*models.DashboardSummary, error)
	Overdrawn(ctx context.Context, asOf time.Time) ([]models.PropertyBalance, error)
	BalancesDue(ctx context.Context, asOf time.Time, threshold decimal.Decimal) ([]models.PropertyBalance, error)
	OwnerSummary(ctx context.Context, ownerID int64, asOf time.Time) (*models.OwnerBalanceSummary, error)
	PropertySettlement(ctx context.Context, propertyID int64, start, end time.Time) (*models.BalanceSnapshot, error)
}

type BalanceHandler struct {
	reports          BalanceReporter
	defaultThreshold decimal.Decimal
}

func NewBalanceHandler(reports BalanceReporter, defaultThreshold decimal.Decimal) *BalanceHandler {
	return &BalanceHandler{
		reports:          reports,
		defaultThreshold: defaultThreshold,
	}
}

var accountOpened = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

func (h *BalanceHandler) asOf(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	asOf, err := queryDate(r, "as_of", today())
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid as_of format. Use YYYY-MM-DD")
		return time.Time{}, false
	}
	return asOf, true
}

func (h *BalanceHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	asOf, ok := h.asOf(w, r)
	if !ok {
		return
	}
	summary, err := h.reports.Dashboard(r.Context(), asOf)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, summary)
}

func (h *BalanceHandler) Overdrawn(w http.ResponseWriter, r *http.Request) {
	asOf, ok := h.asOf(w, r)
	if !ok {
		return
	}
	balances, err := h.reports.Overdrawn(r.Context(), asOf)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, balances)
}

func (h *BalanceHandler) BalancesDue(w http.ResponseWriter, r *http.Request) {
	asOf, ok := h.asOf(w, r)
	if !ok {
		return
	}
	threshold := h.defaultThreshold
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		t, err := decimal.NewFromString(raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid threshold")
			return
		}
		threshold = t
	}

	balances, err := h.reports.BalancesDue(r.Context(), asOf, threshold)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, balances)
}

func (h *BalanceHandler) OwnerSummary(w http.ResponseWriter, r *http.Request) {
	ownerID, err := pathID(r, "id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid owner id")
		return
	}
	asOf, ok := h.asOf(w, r)
	if !ok {
		return
	}
	summary, err := h.reports.OwnerSummary(r.Context(), ownerID, asOf)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, summary)
}

// PropertySettlement returns the owner account view of one property. The period
// defaults to everything up to today.
func (h *BalanceHandler) PropertySettlement(w http.ResponseWriter, r *http.Request) {
	propertyID, err := pathID(r, "id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid property id")
		return
	}
	from, err := queryDate(r, "from", accountOpened)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid from format. Use YYYY-MM-DD")
		return
	}
	to, err := queryDate(r, "to", today())
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid to format. Use YYYY-MM-DD")
		return
	}

	snapshot, err := h.reports.PropertySettlement(r.Context(), propertyID, from, to)
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
