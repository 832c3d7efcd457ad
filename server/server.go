package server

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"propsync/models"
	"propsync/services"
	"propsync/storage"
)

// Server is the operations HTTP surface: health, metrics, run history and
// command enqueueing. Sync work itself is picked up by the scheduler.
type Server struct {
	store   *storage.Store
	engine  *services.Engine
	sources func() []string
}

func New(store *storage.Store, engine *services.Engine, sources func() []string) *Server {
	return &Server{store: store, engine: engine, sources: sources}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", s.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/stats", s.stats)
	r.Get("/executions/latest", s.latestExecution)

	r.Post("/sync", s.enqueue(models.CmdSyncNow))
	r.Post("/sync/{source}", s.syncSource)
	r.Post("/pause", s.enqueue(models.CmdPause))
	r.Post("/resume", s.enqueue(models.CmdResume))

	r.Put("/listings/{ref}/flags", s.setFlags)
	return r
}

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("ops server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.GetStatistics())
}

func (s *Server) latestExecution(w http.ResponseWriter, r *http.Request) {
	rec, err := s.engine.Executions().Latest(r.Context(), r.URL.Query().Get("source"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if rec == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no executions recorded"})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) enqueue(cmd models.CommandType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.enqueueCommand(w, r, cmd, models.CommandParams{})
	}
}

func (s *Server) syncSource(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")
	if !slices.Contains(s.sources(), source) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown source: " + source})
		return
	}

	params := models.CommandParams{Source: source}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		params.Limit = limit
	}
	s.enqueueCommand(w, r, models.CmdSyncSource, params)
}

func (s *Server) enqueueCommand(w http.ResponseWriter, r *http.Request, cmd models.CommandType, params models.CommandParams) {
	id, err := s.store.EnqueueCommand(r.Context(), cmd, params)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"command_id": id, "command": cmd})
}

func (s *Server) setFlags(w http.ResponseWriter, r *http.Request) {
	ref, err := strconv.ParseInt(chi.URLParam(r, "ref"), 10, 64)
	if err != nil || ref <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid ref"})
		return
	}

	var patch flagsPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	if patch.empty() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no flags given"})
		return
	}

	l, err := s.store.GetListingByRef(r.Context(), ref)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if l == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "listing not found"})
		return
	}

	flags := patch.apply(l.Flags())
	if err := s.engine.Overrides().SetFlags(r.Context(), ref, flags); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, flags)
}

// flagsPatch is a partial flag update; omitted flags keep their value.
type flagsPatch struct {
	Active   *bool `json:"active"`
	Featured *bool `json:"featured"`
	Hot      *bool `json:"hot"`
}

func (p flagsPatch) empty() bool {
	return p.Active == nil && p.Featured == nil && p.Hot == nil
}

func (p flagsPatch) apply(f models.Flags) models.Flags {
	if p.Active != nil {
		f.Active = *p.Active
	}
	if p.Featured != nil {
		f.Featured = *p.Featured
	}
	if p.Hot != nil {
		f.Hot = *p.Hot
	}
	return f
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("write response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	log.Error().Err(err).Msg("request failed")
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
