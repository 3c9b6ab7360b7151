// Package api exposes the local HTTP control surface: health, sync
// status, record reads/writes through the engine, a manual sync
// trigger, and forecast fetches. It binds to loopback by default and
// carries no authentication of its own; the engine's identity state
// gates the actual remote calls.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dukkanhq/dukkan/internal/engine"
	"github.com/dukkanhq/dukkan/internal/remote"
)

// Syncer is the engine surface the control API drives.
type Syncer interface {
	FetchCollection(ctx context.Context, key string, forceFresh bool) (json.RawMessage, error)
	Write(ctx context.Context, table string, payload engine.Payload, action engine.Action, skipQueue bool) (json.RawMessage, error)
	Delete(ctx context.Context, table, id, imageURL, recordType string, skipQueue bool) error
	LogActivity(ctx context.Context, action, details, logType string) error
	ProcessQueue(ctx context.Context) error
	QueueCount(ctx context.Context) (int, error)
	Online() bool
}

// SessionState reports who, if anyone, is signed in.
type SessionState interface {
	UserID() string
	LoggedIn() bool
}

// Forecaster issues abortable forecast requests.
type Forecaster interface {
	Fetch(ctx context.Context, prompt string) (string, error)
}

// Server is the control-surface HTTP handler.
type Server struct {
	syncer   Syncer
	session  SessionState
	forecast Forecaster
	router   chi.Router
}

// New assembles the router. forecast may be nil when no generation
// endpoint is configured.
func New(syncer Syncer, session SessionState, forecast Forecaster) *Server {
	s := &Server{
		syncer:   syncer,
		session:  session,
		forecast: forecast,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Post("/sync", s.handleSync)
		r.Get("/records/{table}", s.handleList)
		r.Post("/records/{table}", s.handleWrite)
		r.Delete("/records/{table}/{id}", s.handleDelete)
		r.Post("/activity", s.handleActivity)
		r.Get("/forecast", s.handleForecast)
	})
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	LoggedIn   bool   `json:"logged_in"`
	UserID     string `json:"user_id,omitempty"`
	Online     bool   `json:"online"`
	QueueDepth int    `json:"queue_depth"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	depth, err := s.syncer.QueueCount(r.Context())
	if err != nil && !errors.Is(err, engine.ErrUnauthenticated) {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		LoggedIn:   s.session.LoggedIn(),
		UserID:     s.session.UserID(),
		Online:     s.syncer.Online(),
		QueueDepth: depth,
	})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if err := s.syncer.ProcessQueue(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	depth, err := s.syncer.QueueCount(r.Context())
	if err != nil && !errors.Is(err, engine.ErrUnauthenticated) {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"queue_depth": depth})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	col, ok := engine.CollectionByTable(table)
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("unknown table"))
		return
	}

	fresh := r.URL.Query().Get("fresh") == "1"
	data, err := s.syncer.FetchCollection(r.Context(), col.Key, fresh)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	action, ok := engine.ActionForTable(table)
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("unknown table"))
		return
	}

	var payload engine.Payload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	echo, err := s.syncer.Write(r.Context(), table, payload, action, false)
	if err != nil {
		writeWriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(echo)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	id := chi.URLParam(r, "id")
	q := r.URL.Query()

	err := s.syncer.Delete(r.Context(), table, id, q.Get("image_url"), q.Get("record_type"), false)
	if err != nil {
		writeWriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

type activityRequest struct {
	Action  string `json:"action"`
	Details string `json:"details"`
	Type    string `json:"type"`
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	var req activityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Action == "" {
		writeError(w, http.StatusBadRequest, errors.New("action is required"))
		return
	}

	if err := s.syncer.LogActivity(r.Context(), req.Action, req.Details, req.Type); err != nil {
		writeWriteError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"logged": req.Action})
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	if s.forecast == nil {
		writeError(w, http.StatusNotImplemented, errors.New("no forecast endpoint configured"))
		return
	}
	prompt := r.URL.Query().Get("prompt")
	if prompt == "" {
		writeError(w, http.StatusBadRequest, errors.New("prompt is required"))
		return
	}

	text, err := s.forecast.Fetch(r.Context(), prompt)
	if err != nil {
		writeWriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

// writeWriteError maps engine/remote error kinds onto HTTP statuses.
func writeWriteError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrUnauthenticated), remote.IsUnauthenticated(err):
		writeError(w, http.StatusUnauthorized, err)
	case remote.IsPermanent(err):
		writeError(w, http.StatusUnprocessableEntity, err)
	case remote.IsCancelled(err):
		writeError(w, http.StatusBadRequest, err)
	default:
		writeError(w, http.StatusBadGateway, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
