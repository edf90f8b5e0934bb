package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"curator/internal/api"
	"curator/internal/catalog"
	"curator/internal/logging"
	"curator/internal/media"
	"curator/internal/services"
	"curator/internal/workflow"
)

const maxRequestBody = 1 << 20

type apiServer struct {
	bind    string
	logger  *slog.Logger
	daemon  *Daemon
	handler http.Handler

	listener net.Listener
	server   *http.Server
}

func newAPIServer(bind string, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(bind),
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}
	srv.handler = srv.routes()
	return srv
}

func (s *apiServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(s.requestContext)
	r.Use(chimw.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Post("/trigger", s.handleTrigger)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/entries", s.handleEntries)
		r.Post("/entries/retry", s.handleRetry)
		r.Get("/titles", s.handleTitles)
		r.Get("/titles/{id}/seasons", s.handleSeasons)
		r.Get("/mappings", s.handleMappings)
		r.Post("/resolve", s.handleResolve)
		r.Post("/rebuild", s.handleRebuild)
	})
	return r
}

// requestContext stamps the chi request id into the services context so
// downstream logs carry it as the correlation id.
func (s *apiServer) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := chimw.GetReqID(ctx); id != "" {
			ctx = services.WithRequestID(ctx, id)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil || s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil || s.server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
	s.server = nil
	s.listener = nil
}

func (s *apiServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *apiServer) handleTrigger(w http.ResponseWriter, _ *http.Request) {
	s.daemon.Trigger("webhook")
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status(r.Context())
	held, err := LockHeld(status.LockFilePath)
	if err != nil {
		s.logger.Debug("daemon lock check failed", logging.Error(err))
	}
	payload := api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		DatabasePath: status.DatabasePath,
		LockFilePath: status.LockFilePath,
		LockHeld:     held || status.Running,
		Workflow:     status.Workflow,
	}
	if status.Stats != nil {
		stats := api.FromStats(*status.Stats)
		payload.Stats = &stats
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *apiServer) handleEntries(w http.ResponseWriter, r *http.Request) {
	filter, err := parseEntryFilter(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	entries, err := s.daemon.store.ListEntries(r.Context(), filter)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromEntries(entries))
}

func parseEntryFilter(r *http.Request) (catalog.EntryFilter, error) {
	var filter catalog.EntryFilter
	query := r.URL.Query()
	for _, field := range []struct {
		name string
		dst  **bool
	}{{"archived", &filter.Archived}, {"manual", &filter.Manual}} {
		raw := strings.TrimSpace(query.Get(field.name))
		if raw == "" {
			continue
		}
		value, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, badRequest(fmt.Sprintf("invalid %s value %q", field.name, raw))
		}
		*field.dst = &value
	}
	for _, raw := range query["state"] {
		for _, part := range strings.Split(raw, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			state, err := catalog.ParseState(part)
			if err != nil {
				return filter, badRequest(err.Error())
			}
			filter.States = append(filter.States, state)
		}
	}
	return filter, nil
}

func (s *apiServer) handleTitles(w http.ResponseWriter, r *http.Request) {
	titles, err := s.daemon.store.ListTitles(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromTitles(titles))
}

func (s *apiServer) handleSeasons(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, badRequest("title id must be a positive integer"))
		return
	}
	seasons, err := s.daemon.store.ListSeasons(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromSeasons(seasons))
}

func (s *apiServer) handleMappings(w http.ResponseWriter, r *http.Request) {
	mappings, err := s.daemon.store.ListAllMappings(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromMappings(mappings))
}

func (s *apiServer) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req api.ResolveRequest
	if !s.decode(w, r, &req) {
		return
	}
	result, err := s.daemon.workflow.ManualResolve(r.Context(), workflow.ManualRequest{
		Ref:        req.Ref,
		ExternalID: req.ExternalID,
		Kind:       media.Kind(strings.TrimSpace(req.Kind)),
		Season:     req.Season,
		Episode:    req.Episode,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ResolveResponse{
		Mapping: api.FromMapping(result.Mapping),
		Links:   api.FromLinkReport(result.Links),
	})
}

func (s *apiServer) handleRetry(w http.ResponseWriter, r *http.Request) {
	var req api.RetryRequest
	if !s.decode(w, r, &req) {
		return
	}
	entry, err := s.daemon.workflow.Retry(r.Context(), req.Ref)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.daemon.Trigger("retry")
	s.writeJSON(w, http.StatusOK, api.FromEntry(entry))
}

func (s *apiServer) handleRebuild(w http.ResponseWriter, r *http.Request) {
	report, err := s.daemon.workflow.Rebuild(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromLinkReport(report))
}

func (s *apiServer) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		s.writeError(w, badRequest("invalid request body: "+err.Error()))
		return false
	}
	return true
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, err error) {
	status := api.StatusCode(err)
	if status >= http.StatusInternalServerError {
		logging.WarnWithContext(s.logger, "api request failed", "api_request_failed",
			logging.Error(err),
			logging.Int("status", status),
		)
	}
	s.writeJSON(w, status, api.FromError(err))
}

func badRequest(message string) error {
	return services.Wrap(services.ErrValidation, "api", "decode request", message, nil)
}
