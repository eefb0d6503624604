package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"hostinventory/core-go/internal/db"
	"hostinventory/core-go/internal/metrics"
	"hostinventory/core-go/internal/sqlcgen"
	"hostinventory/core-go/internal/syncworker"
)

// HostQueries is the read side of the host store used by the API.
type HostQueries interface {
	ListHosts(ctx context.Context) ([]sqlcgen.Host, error)
	GetHost(ctx context.Context, id int64) (sqlcgen.Host, error)
	ListHostComponentChanges(ctx context.Context, arg sqlcgen.ListHostComponentChangesParams) ([]sqlcgen.ComponentChange, error)
}

// SyncEngine is the trigger surface of the sync worker.
type SyncEngine interface {
	Status() syncworker.Status
	RunManualRosterSync(ctx context.Context) (int, error)
	TriggerCycle(ctx context.Context) (string, bool)
	ForceHostResync(ctx context.Context, hostID int64) (syncworker.HostResult, error)
}

type Handler struct {
	log     zerolog.Logger
	pool    *db.Pool
	hosts   HostQueries
	sync    SyncEngine
	metrics *metrics.Metrics
}

func NewHandler(log zerolog.Logger, pool *db.Pool, engine SyncEngine, m *metrics.Metrics) *Handler {
	h := &Handler{log: log, pool: pool, sync: engine, metrics: m}
	if pool != nil {
		h.hosts = pool.Queries()
	}
	return h
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.accessLog)

	readTimeout := middleware.Timeout(15 * time.Second)
	// Roster refreshes and forced resyncs wait on the remote API.
	remoteTimeout := middleware.Timeout(2 * time.Minute)

	// Health
	r.Get("/healthz", h.handleHealthz)
	r.Get("/readyz", h.handleReadyZ)
	r.Method(http.MethodGet, "/metrics", h.metrics.Handler())

	// API
	r.Route("/api", func(r chi.Router) {
		r.Route("/v1", func(r chi.Router) {
			r.Route("/sync", func(r chi.Router) {
				r.With(readTimeout).Get("/status", h.handleSyncStatus)
				r.With(remoteTimeout).Post("/roster", h.handleRosterSync)
				r.With(readTimeout).Post("/run", h.handleSyncRun)
			})

			r.Route("/hosts", func(r chi.Router) {
				r.With(readTimeout).Get("/", h.handleListHosts)
				r.Route("/{id}", func(r chi.Router) {
					r.With(readTimeout).Get("/", h.handleGetHost)
					r.With(readTimeout).Get("/changes", h.handleListHostChanges)
					r.With(remoteTimeout).Post("/resync", h.handleHostResync)
				})
			})
		})
	})

	return r
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start)
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		h.metrics.ObserveHTTPRequest(r.Method, route, ww.Status(), duration)

		h.log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Int64("duration_ms", duration.Milliseconds()).
			Msg("http_request")
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, msg string, details map[string]any) {
	resp := map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": msg,
		},
	}
	if details != nil {
		resp["error"].(map[string]any)["details"] = details
	}
	h.writeJSON(w, status, resp)
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleReadyZ(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.pool == nil {
		h.writeError(w, http.StatusServiceUnavailable, "db_unavailable", "database not configured", nil)
		return
	}

	if err := h.pool.Ping(ctx); err != nil {
		h.writeError(w, http.StatusServiceUnavailable, "db_unavailable", "database not ready", map[string]any{"error": err.Error()})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"ready": true})
}

func (h *Handler) ensureQueries(w http.ResponseWriter) bool {
	if h.hosts == nil {
		h.writeError(w, http.StatusServiceUnavailable, "db_unavailable", "database not configured", nil)
		return false
	}
	return true
}

func (h *Handler) ensureSync(w http.ResponseWriter) bool {
	if h.sync == nil {
		h.writeError(w, http.StatusServiceUnavailable, "sync_disabled", "synchronization is not enabled", nil)
		return false
	}
	return true
}

func (h *Handler) hostIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, http.StatusBadRequest, "invalid_id", "host id must be a positive integer", map[string]any{"id": raw})
		return 0, false
	}
	return id, true
}
