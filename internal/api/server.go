// Package api exposes the conversation operations over HTTP. The caller
// identity arrives as a bearer token from an upstream authentication
// handshake; it is trusted and scoped, never validated here.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/coachvault/coachd/internal/coach"
	"github.com/coachvault/coachd/internal/entity"
	"github.com/coachvault/coachd/internal/repo"
	"github.com/coachvault/coachd/internal/store"
)

type ctxKey int

const identityKey ctxKey = 0

type Server struct {
	router  *chi.Mux
	port    int
	manager *coach.Manager
}

func NewServer(port int, manager *coach.Manager) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:  router,
		port:    port,
		manager: manager,
	}

	router.Get("/health", s.health)

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(RequireIdentity)
		r.Post("/conversations", s.createConversation)
		r.Get("/conversations", s.listConversations)
		r.Delete("/conversations/{conversationID}", s.deleteConversation)
		r.Post("/turns", s.submitTurn)
		r.Get("/conversations/{conversationID}/messages", s.listMessages)
		r.Get("/conversations/{conversationID}/messages/{messageID}", s.pollTurn)
	})

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	slog.Info("API server starting", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

// RequireIdentity extracts the verified caller identity from the bearer
// token. Requests without one are rejected before reaching any handler.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(auth, "Bearer ")
		token = strings.TrimSpace(token)
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer identity")
			return
		}
		ctx := context.WithValue(r.Context(), identityKey, entity.Identity(token))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func identityFrom(r *http.Request) entity.Identity {
	id, _ := r.Context().Value(identityKey).(entity.Identity)
	return id
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Code: code, Error: msg})
}

// writeDomainError maps the error taxonomy onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repo.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "conversation or message not found")
	case errors.Is(err, repo.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "identity does not own this conversation")
	case errors.Is(err, repo.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", "a turn is already pending on this conversation")
	case errors.Is(err, store.ErrExhausted):
		writeError(w, http.StatusInsufficientStorage, "storage_exhausted", "store capacity exhausted")
	default:
		slog.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
