// Package api exposes the serve-mode HTTP surface: the current status
// document, a manual refresh trigger, status history, health, metrics, and
// the static dashboard files.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flightline/pa-status/internal/config"
	"github.com/flightline/pa-status/internal/refresher"
	"github.com/flightline/pa-status/internal/storage/sqlite"
	"github.com/flightline/pa-status/internal/websocket"
	"github.com/flightline/pa-status/pkg/logger"
)

// Router wires the serve-mode HTTP handlers
type Router struct {
	refresher *refresher.Service
	history   *sqlite.HistoryStorage
	wsServer  *websocket.Server
	cfg       *config.Config
	logger    *logger.Logger
}

// NewRouter creates a new API router. history may be nil when the history
// store is disabled.
func NewRouter(svc *refresher.Service, history *sqlite.HistoryStorage, wsServer *websocket.Server, cfg *config.Config, log *logger.Logger) *Router {
	return &Router{
		refresher: svc,
		history:   history,
		wsServer:  wsServer,
		cfg:       cfg,
		logger:    log.Named("api"),
	}
}

// Routes returns the HTTP handler for all endpoints
func (rt *Router) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", rt.Healthz)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", rt.wsServer.HandleConnection)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", rt.GetStatus)
		r.Post("/refresh", rt.TriggerRefresh)
		r.Get("/history/{code}", rt.GetHistory)
	})

	// Everything else is the static dashboard
	r.NotFound(NewStaticFileHandler(rt.cfg.Server.StaticFilesDir, rt.logger).ServeHTTP)

	return r
}

// Healthz reports readiness: healthy once a refresh run has completed
func (rt *Router) Healthz(w http.ResponseWriter, r *http.Request) {
	if rt.refresher.Latest() == nil {
		http.Error(w, "no refresh run has completed yet", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// GetStatus returns the latest generated document
func (rt *Router) GetStatus(w http.ResponseWriter, r *http.Request) {
	doc := rt.refresher.Latest()
	if doc == nil {
		http.Error(w, "status not generated yet", http.StatusServiceUnavailable)
		return
	}
	rt.writeJSON(w, doc)
}

// TriggerRefresh runs a refresh immediately and returns the new document
func (rt *Router) TriggerRefresh(w http.ResponseWriter, r *http.Request) {
	rt.logger.Info("Manual refresh triggered", logger.String("remote_addr", r.RemoteAddr))

	doc, err := rt.refresher.Run(r.Context(), false)
	if err != nil {
		rt.logger.Error("Manual refresh failed", logger.Error(err))
		http.Error(w, "refresh failed", http.StatusInternalServerError)
		return
	}

	rt.wsServer.BroadcastStatus(doc)
	rt.writeJSON(w, doc)
}

// GetHistory returns recent status changes for one airport
func (rt *Router) GetHistory(w http.ResponseWriter, r *http.Request) {
	if rt.history == nil {
		http.Error(w, "history storage is disabled", http.StatusNotFound)
		return
	}

	code := chi.URLParam(r, "code")

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 || parsed > 500 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	records, err := rt.history.RecentByCode(code, limit)
	if err != nil {
		rt.logger.Error("Failed to query history", logger.Error(err), logger.String("code", code))
		http.Error(w, "failed to query history", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []*sqlite.HistoryRecord{}
	}

	rt.writeJSON(w, map[string]interface{}{
		"code":    code,
		"history": records,
	})
}

func (rt *Router) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		rt.logger.Error("Failed to encode response", logger.Error(err))
	}
}
