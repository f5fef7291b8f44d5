package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"ledger-service/internal/logger"
)

// Handlers groups the HTTP handlers mounted by SetupRouter
type Handlers struct {
	Data      *DataHandler
	Rebuild   *RebuildHandler
	Statement *StatementHandler
	Balance   *BalanceHandler
}

func SetupRouter(h Handlers, log zerolog.Logger) *mux.Router {
	router := mux.NewRouter()

	api := router.PathPrefix("/api/v1").Subrouter()

	api.Use(loggingMiddleware(log))
	api.Use(jsonContentTypeMiddleware)

	api.HandleFunc("/historical/import", h.Data.ImportHistorical).Methods(http.MethodPost)
	api.HandleFunc("/platform/sync", h.Data.SyncPlatform).Methods(http.MethodPost)

	api.HandleFunc("/notifications/historical-import", h.Rebuild.HistoricalImportNotification).Methods(http.MethodPost)
	api.HandleFunc("/notifications/platform-sync", h.Rebuild.PlatformSyncNotification).Methods(http.MethodPost)
	api.HandleFunc("/rebuild", h.Rebuild.TriggerRebuild).Methods(http.MethodPost)
	api.HandleFunc("/rebuild/statistics", h.Rebuild.GetStatistics).Methods(http.MethodGet)
	api.HandleFunc("/rebuild/runs", h.Rebuild.ListRuns).Methods(http.MethodGet)

	api.HandleFunc("/statements/{scope}/{id:[0-9]+}", h.Statement.GetStatement).Methods(http.MethodGet)
	api.HandleFunc("/transactions/{id:[0-9]+}/links", h.Statement.PatchLinks).Methods(http.MethodPatch)

	api.HandleFunc("/balances/dashboard", h.Balance.Dashboard).Methods(http.MethodGet)
	api.HandleFunc("/balances/overdrawn", h.Balance.Overdrawn).Methods(http.MethodGet)
	api.HandleFunc("/balances/due", h.Balance.BalancesDue).Methods(http.MethodGet)
	api.HandleFunc("/balances/owners/{id:[0-9]+}", h.Balance.OwnerSummary).Methods(http.MethodGet)
	api.HandleFunc("/balances/properties/{id:[0-9]+}", h.Balance.PropertySettlement).Methods(http.MethodGet)

	router.HandleFunc("/health", healthCheckHandler).Methods(http.MethodGet)

	return router
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware puts a request-scoped logger into the request context and logs
// every request once it completes
func loggingMiddleware(log zerolog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqLog := log.With().Str("request_id", uuid.NewString()).Logger()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(logger.WithContext(r.Context(), reqLog)))
			reqLog.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("remote_addr", r.RemoteAddr).
				Int("status", rec.status).
				Dur("duration", time.Since(start)).
				Msg("HTTP request")
		})
	}
}

func jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]string{
		"status": "healthy",
	}
	respondWithJSON(w, http.StatusOK, response)
}
