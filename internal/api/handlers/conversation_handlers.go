package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agentdeck/agentdeck/internal/api/middleware"
	"github.com/agentdeck/agentdeck/pkg/models"
)

// ListConversations pages a team's conversations, newest first.
func (h *Handlers) ListConversations(w http.ResponseWriter, r *http.Request) {
	pageSize, lastSeenID := pageParams(r)
	convs, err := h.Store.ListConversationsPage(r.Context(), r.URL.Query().Get("team_id"), pageSize, lastSeenID)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if convs == nil {
		convs = []models.Conversation{}
	}
	// list rows carry the preview, not the full transcript
	for i := range convs {
		convs[i].Messages = nil
	}
	respondData(w, http.StatusOK, convs)
}

// GetConversation returns one conversation with its messages.
func (h *Handlers) GetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := h.Store.GetConversation(r.Context(), chi.URLParam(r, "conversationID"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondData(w, http.StatusOK, conv)
}

// ListMessages pages a conversation's history by thread id, newest
// first, for backfill scrolling.
func (h *Handlers) ListMessages(w http.ResponseWriter, r *http.Request) {
	pageSize, lastSeenID := pageParams(r)
	msgs, err := h.Store.ListMessagesPage(r.Context(), chi.URLParam(r, "threadID"), pageSize, lastSeenID)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	respondData(w, http.StatusOK, msgs)
}

// CreateChatSession opens a panel session for the caller and returns
// its id, which later sends pass in X-Session-ID.
func (h *Handlers) CreateChatSession(w http.ResponseWriter, r *http.Request) {
	sess := h.Sessions.Create(middleware.GetUserID(r.Context()), r.URL.Query().Get("team_id"))
	respondData(w, http.StatusCreated, map[string]string{"session_id": sess.ID})
}

// DeleteChatSession closes a panel session, dropping its subscription
// and thread cache.
func (h *Handlers) DeleteChatSession(w http.ResponseWriter, r *http.Request) {
	if err := h.Sessions.Delete(chi.URLParam(r, "sessionID")); err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondData(w, http.StatusOK, map[string]string{"status": "closed"})
}
