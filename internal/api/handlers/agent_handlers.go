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

// ListAgents pages a team's agents by name.
func (h *Handlers) ListAgents(w http.ResponseWriter, r *http.Request) {
	pageSize, lastSeenID := pageParams(r)
	agents, err := h.Store.ListAgentsPage(r.Context(), r.URL.Query().Get("team_id"), pageSize, lastSeenID)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if agents == nil {
		agents = []models.Agent{}
	}
	respondData(w, http.StatusOK, agents)
}

type createAgentRequest struct {
	TeamID      string            `json:"team_id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Tools       []string          `json:"tools,omitempty"`       // tool ids, makes a tool agent
	ToolAgents  []string          `json:"tool_agents,omitempty"` // agent ids, makes a super agent
	Character   map[string]string `json:"character,omitempty"`
	Prompt      string            `json:"prompt,omitempty"`
}

// CreateAgent registers an agent directly, outside the wizard. Tool
// agents and super agents are distinguished by which list is set;
// setting both is rejected because composition never mixes with
// direct tool ownership.
func (h *Handlers) CreateAgent(w http.ResponseWriter, r *http.Request) {
	var req createAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "agent name is required")
		return
	}
	if len(req.Tools) > 0 && len(req.ToolAgents) > 0 {
		respondError(w, http.StatusBadRequest, "an agent owns tools or composes tool agents, not both")
		return
	}

	now := time.Now().UTC()
	agent := models.Agent{
		TeamID:      req.TeamID,
		Name:        req.Name,
		Description: req.Description,
		Status:      models.AgentStatusActive,
		Character:   req.Character,
		Prompt:      req.Prompt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if len(req.ToolAgents) > 0 {
		for _, id := range req.ToolAgents {
			sub, err := h.Store.GetAgent(r.Context(), id)
			if err != nil {
				respondStoreError(w, err)
				return
			}
			if !sub.IsToolAgent() {
				respondError(w, http.StatusBadRequest, "super agents compose tool agents only")
				return
			}
		}
		agent.ID = models.SuperAgentPrefix + uuid.NewString()
		agent.ToolAgents = req.ToolAgents
	} else {
		for _, id := range req.Tools {
			tool, ok := h.Catalog.Get(id)
			if !ok {
				respondError(w, http.StatusBadRequest, "unknown tool "+id)
				return
			}
			agent.Tools = append(agent.Tools, tool)
		}
		agent.ID = models.ToolAgentPrefix + uuid.NewString()
	}

	if err := h.Store.CreateAgent(r.Context(), &agent); err != nil {
		respondStoreError(w, err)
		return
	}
	log.Info().Str("agent_id", agent.ID).Str("team_id", agent.TeamID).Msg("agent registered")
	respondData(w, http.StatusCreated, agent)
}

// GetAgent returns one agent.
func (h *Handlers) GetAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := h.Store.GetAgent(r.Context(), chi.URLParam(r, "agentID"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondData(w, http.StatusOK, agent)
}

type updateAgentRequest struct {
	Name        *string            `json:"name,omitempty"`
	Description *string            `json:"description,omitempty"`
	Status      *string            `json:"status,omitempty"`
	Character   *map[string]string `json:"character,omitempty"`
	Prompt      *string            `json:"prompt,omitempty"`
}

// UpdateAgent edits an agent's mutable fields.
func (h *Handlers) UpdateAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := h.Store.GetAgent(r.Context(), chi.URLParam(r, "agentID"))
	if err != nil {
		respondStoreError(w, err)
		return
	}

	var req updateAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) != "" {
		agent.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		agent.Description = *req.Description
	}
	if req.Status != nil {
		switch models.AgentStatus(*req.Status) {
		case models.AgentStatusDraft, models.AgentStatusActive, models.AgentStatusDisabled:
			agent.Status = models.AgentStatus(*req.Status)
		default:
			respondError(w, http.StatusBadRequest, "unknown status "+*req.Status)
			return
		}
	}
	if req.Character != nil {
		agent.Character = *req.Character
	}
	if req.Prompt != nil {
		agent.Prompt = *req.Prompt
	}
	agent.UpdatedAt = time.Now().UTC()

	if err := h.Store.UpdateAgent(r.Context(), agent); err != nil {
		respondStoreError(w, err)
		return
	}
	respondData(w, http.StatusOK, agent)
}

// DeleteAgent removes an agent.
func (h *Handlers) DeleteAgent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "agentID")
	if err := h.Store.DeleteAgent(r.Context(), id); err != nil {
		respondStoreError(w, err)
		return
	}
	log.Info().Str("agent_id", id).Msg("agent deleted")
	respondData(w, http.StatusOK, map[string]string{"status": "deleted", "agent_id": id})
}
