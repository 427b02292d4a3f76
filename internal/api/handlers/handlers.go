// Package handlers implements the HTTP handlers for the AgentDeck
// control plane. All handlers depend on the Store interface, so the
// same code serves the memory and PostgreSQL backends.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/agentdeck/agentdeck/internal/auth"
	"github.com/agentdeck/agentdeck/internal/catalog"
	"github.com/agentdeck/agentdeck/internal/chat"
	"github.com/agentdeck/agentdeck/internal/store"
)

// DefaultPageSize is used when a paginated endpoint gets no page_size.
const DefaultPageSize = 20

// MaxPageSize caps client-requested page sizes.
const MaxPageSize = 200

// Handlers holds all handler dependencies.
type Handlers struct {
	Store        store.Store
	Orchestrator *chat.Orchestrator
	Sessions     *chat.Manager
	Catalog      *catalog.Catalog
	Tokens       *auth.TokenService
	OTP          *auth.OTPService
	Version      string

	wizards *wizardRegistry
}

// New creates a Handlers instance with all dependencies.
func New(s store.Store, orch *chat.Orchestrator, sessions *chat.Manager, cat *catalog.Catalog, tokens *auth.TokenService, version string) *Handlers {
	return &Handlers{
		Store:        s,
		Orchestrator: orch,
		Sessions:     sessions,
		Catalog:      cat,
		Tokens:       tokens,
		OTP:          auth.NewOTPService(s),
		Version:      version,
		wizards:      newWizardRegistry(),
	}
}

// Health reports liveness and store reachability.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.Version,
	})
}

// ── Helpers ──────────────────────────────────────────────────

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondData wraps payloads in the {"data": ...} envelope the
// dashboard expects.
func respondData(w http.ResponseWriter, status int, data interface{}) {
	respondJSON(w, status, map[string]interface{}{"data": data})
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondStoreError maps store errors to HTTP codes.
func respondStoreError(w http.ResponseWriter, err error) {
	if store.IsNotFound(err) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondError(w, http.StatusInternalServerError, err.Error())
}

// pageParams reads page_size and last_seen_id query parameters.
func pageParams(r *http.Request) (pageSize int, lastSeenID string) {
	pageSize = DefaultPageSize
	if raw := r.URL.Query().Get("page_size"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			pageSize = n
		}
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return pageSize, r.URL.Query().Get("last_seen_id")
}
