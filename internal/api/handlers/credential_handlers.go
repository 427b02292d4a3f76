package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/agentdeck/agentdeck/pkg/models"
)

type createCredentialRequest struct {
	TeamID string `json:"team_id"`
	Key    string `json:"key"`
	Name   string `json:"name"`
	Secret string `json:"secret"`
}

// CreateCredential saves a secret under a credential key for a team.
func (h *Handlers) CreateCredential(w http.ResponseWriter, r *http.Request) {
	var req createCredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Key = strings.TrimSpace(req.Key)
	if req.Key == "" || req.Secret == "" {
		respondError(w, http.StatusBadRequest, "key and secret are required")
		return
	}

	cred := &models.Credential{
		ID:        uuid.NewString(),
		TeamID:    req.TeamID,
		Key:       req.Key,
		Name:      req.Name,
		Secret:    req.Secret,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.Store.CreateCredential(r.Context(), cred); err != nil {
		respondStoreError(w, err)
		return
	}
	log.Info().Str("credential_id", cred.ID).Str("key", cred.Key).Msg("credential saved")
	respondData(w, http.StatusCreated, maskCredential(*cred))
}

// ListCredentials lists a team's credentials, optionally narrowed to
// one key. Secrets are masked.
func (h *Handlers) ListCredentials(w http.ResponseWriter, r *http.Request) {
	creds, err := h.Store.ListCredentials(r.Context(), r.URL.Query().Get("team_id"), r.URL.Query().Get("key"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	masked := make([]models.Credential, len(creds))
	for i, c := range creds {
		masked[i] = maskCredential(c)
	}
	respondData(w, http.StatusOK, masked)
}

// DeleteCredential removes a stored credential.
func (h *Handlers) DeleteCredential(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "credentialID")
	if err := h.Store.DeleteCredential(r.Context(), id); err != nil {
		respondStoreError(w, err)
		return
	}
	respondData(w, http.StatusOK, map[string]string{"status": "deleted", "credential_id": id})
}

// ListTools returns the tool catalog.
func (h *Handlers) ListTools(w http.ResponseWriter, r *http.Request) {
	respondData(w, http.StatusOK, h.Catalog.List())
}

// maskCredential redacts the secret before it leaves the API.
func maskCredential(c models.Credential) models.Credential {
	if len(c.Secret) > 4 {
		c.Secret = c.Secret[:4] + "****"
	} else if c.Secret != "" {
		c.Secret = "****"
	}
	return c
}
