package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

type createConversationRequest struct {
	Title string `json:"title"`
}

type submitTurnRequest struct {
	ConversationID string `json:"conversation_id"`
	Text           string `json:"text"`
}

type submitTurnResponse struct {
	ConversationID string `json:"conversation_id"`
	MessageID      uint64 `json:"message_id"`
}

func (s *Server) createConversation(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON")
			return
		}
	}

	c, err := s.manager.CreateConversation(r.Context(), identityFrom(r), req.Title)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c.Summary())
}

func (s *Server) listConversations(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.manager.ListConversations(r.Context(), identityFrom(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) deleteConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")
	if err := s.manager.DeleteConversation(r.Context(), identityFrom(r), id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// submitTurn accepts a user message and returns the pending assistant
// message id without waiting on inference. An absent conversation_id
// starts a new conversation.
func (s *Server) submitTurn(w http.ResponseWriter, r *http.Request) {
	var req submitTurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "text is required")
		return
	}

	conversationID, messageID, err := s.manager.SubmitUserTurn(r.Context(), identityFrom(r), req.ConversationID, req.Text)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, submitTurnResponse{
		ConversationID: conversationID,
		MessageID:      messageID,
	})
}

func (s *Server) pollTurn(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	messageID, err := strconv.ParseUint(chi.URLParam(r, "messageID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid message id")
		return
	}

	m, err := s.manager.PollTurn(r.Context(), identityFrom(r), conversationID, messageID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// listMessages pages the history newest-first; cursor is the id to scroll
// back from, zero (or absent) for the latest page.
func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	var cursor uint64
	if v := r.URL.Query().Get("cursor"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid cursor")
			return
		}
		cursor = n
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid limit")
			return
		}
		limit = n
	}

	msgs, err := s.manager.ListMessages(r.Context(), identityFrom(r), conversationID, cursor, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}
