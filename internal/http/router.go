// Package http exposes the service's REST surface.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"dictation-orchestrator/internal/app"
	"dictation-orchestrator/internal/service/orchestrator"
	"dictation-orchestrator/internal/service/segment"
)

// DecisionTimeout bounds a routing decision request.
const DecisionTimeout = 200 * time.Millisecond

// NewRouter constructs the HTTP router for the service.
func NewRouter(application *app.Application, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(AccessLog(logger))
	r.Use(middleware.Recoverer)

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		if !application.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("warming up"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	h := &handlers{app: application}

	// API routes
	r.Route("/v1", func(r chi.Router) {
		r.Get("/sessions", h.listSessions)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", h.getSession)
			r.Delete("/", h.closeSession)
			r.Post("/selections", h.applySelections)
			r.Get("/sentences/{sentenceID}", h.getSentence)
		})
		r.Post("/engine/decision", h.decide)
	})

	return r
}

// AccessLog attaches logger to each request and logs one line per request.
func AccessLog(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		h := hlog.NewHandler(logger)
		accessLog := hlog.AccessHandler(func(r *http.Request, status, size int, dur time.Duration) {
			hlog.FromRequest(r).Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("requestId", middleware.GetReqID(r.Context())).
				Int("status", status).
				Int("size", size).
				Dur("duration", dur).
				Msg("HTTP request")
		})
		return h(accessLog(next))
	}
}

type handlers struct {
	app *app.Application
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func (h *handlers) session(w http.ResponseWriter, r *http.Request) (*orchestrator.RealtimeSessionHandle, bool) {
	s, ok := h.app.Sessions.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
	}
	return s, ok
}

func (h *handlers) listSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": h.app.Sessions.Snapshots(),
	})
}

func (h *handlers) getSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (h *handlers) closeSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	s.Close()
	w.WriteHeader(http.StatusNoContent)
}

type selectionsRequest struct {
	Selections []segment.Selection `json:"selections"`
}

func (h *handlers) applySelections(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req selectionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid selections: "+err.Error())
		return
	}
	if len(req.Selections) == 0 {
		writeError(w, http.StatusBadRequest, "no selections")
		return
	}

	if err := s.ApplySentenceSelections(r.Context(), req.Selections); err != nil {
		if errors.Is(err, orchestrator.ErrSessionClosed) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type sentenceResponse struct {
	SentenceID        uint64          `json:"sentenceId"`
	ActiveVariant     segment.Variant `json:"activeVariant"`
	UserOverride      bool            `json:"userOverride"`
	PolishedText      string          `json:"polishedText,omitempty"`
	PolishedWithinSLA bool            `json:"polishedWithinSla"`
}

func (h *handlers) getSentence(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	id, err := strconv.ParseUint(chi.URLParam(r, "sentenceID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid sentence id")
		return
	}
	rec, ok := s.Sentence(id)
	if !ok {
		writeError(w, http.StatusNotFound, "sentence not found")
		return
	}

	polished, _ := rec.PolishedText()
	writeJSON(w, http.StatusOK, sentenceResponse{
		SentenceID:        id,
		ActiveVariant:     rec.ActiveVariant(),
		UserOverride:      rec.UserOverride(),
		PolishedText:      polished,
		PolishedWithinSLA: rec.PolishedWithinSLA(),
	})
}

type decisionRequest struct {
	SessionID string `json:"session_id"`
}

func (h *handlers) decide(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), DecisionTimeout)
	defer cancel()

	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	result := make(chan app.EngineDecision, 1)
	go func() { result <- h.app.Decide(req.SessionID) }()

	select {
	case d := <-result:
		writeJSON(w, http.StatusOK, d)
	case <-ctx.Done():
		writeError(w, http.StatusGatewayTimeout, "decision timeout")
	}
}
