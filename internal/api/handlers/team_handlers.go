package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/agentdeck/agentdeck/internal/api/middleware"
	"github.com/agentdeck/agentdeck/pkg/models"
)

// GetUserTeams lists the teams the caller owns or belongs to.
func (h *Handlers) GetUserTeams(w http.ResponseWriter, r *http.Request) {
	teams, err := h.Store.ListTeamsByUser(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if teams == nil {
		teams = []models.Team{}
	}
	respondData(w, http.StatusOK, teams)
}

// GetUserTeamByID returns one of the caller's teams.
func (h *Handlers) GetUserTeamByID(w http.ResponseWriter, r *http.Request) {
	team, err := h.Store.GetTeam(r.Context(), chi.URLParam(r, "teamID"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if !teamHasMember(team, middleware.GetUserID(r.Context())) {
		respondError(w, http.StatusForbidden, "not a member of this team")
		return
	}
	respondData(w, http.StatusOK, team)
}

type createTeamRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CreateTeam creates a team owned by the caller.
func (h *Handlers) CreateTeam(w http.ResponseWriter, r *http.Request) {
	var req createTeamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "team name is required")
		return
	}

	userID := middleware.GetUserID(r.Context())
	team := &models.Team{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Description: req.Description,
		OwnerID:     userID,
		MemberIDs:   []string{userID},
		CreatedAt:   time.Now().UTC(),
	}
	if err := h.Store.CreateTeam(r.Context(), team); err != nil {
		respondStoreError(w, err)
		return
	}
	log.Info().Str("team_id", team.ID).Str("owner_id", userID).Msg("team created")
	respondData(w, http.StatusCreated, team)
}

func teamHasMember(team *models.Team, userID string) bool {
	if team.OwnerID == userID {
		return true
	}
	for _, id := range team.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}
