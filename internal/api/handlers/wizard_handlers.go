package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/agentdeck/agentdeck/internal/wizard"
)

// wizardRegistry tracks in-flight wizard instances per id. Wizards
// are in-memory only; an abandoned one simply ages out with the
// process.
type wizardRegistry struct {
	mu      sync.Mutex
	wizards map[string]*wizard.Wizard
}

func newWizardRegistry() *wizardRegistry {
	return &wizardRegistry{wizards: make(map[string]*wizard.Wizard)}
}

func (r *wizardRegistry) add(w *wizard.Wizard) string {
	id := uuid.NewString()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wizards[id] = w
	return id
}

func (r *wizardRegistry) get(id string) (*wizard.Wizard, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wizards[id]
	return w, ok
}

type wizardStateResponse struct {
	WizardID    string   `json:"wizard_id"`
	Step        string   `json:"step"`
	MissingKeys []string `json:"missing_keys,omitempty"`
}

// StartWizard opens a new agent creation wizard for a team.
func (h *Handlers) StartWizard(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TeamID string `json:"team_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	wz := wizard.New(h.Catalog, h.Store, req.TeamID)
	id := h.wizards.add(wz)
	respondData(w, http.StatusCreated, wizardStateResponse{WizardID: id, Step: wz.Step().String()})
}

// GetWizard reports the wizard's current step and unbound keys.
func (h *Handlers) GetWizard(w http.ResponseWriter, r *http.Request) {
	id, wz, ok := h.wizardFrom(w, r)
	if !ok {
		return
	}
	respondData(w, http.StatusOK, wizardStateResponse{
		WizardID:    id,
		Step:        wz.Step().String(),
		MissingKeys: wz.MissingKeys(),
	})
}

// WizardSelectTools sets the tool selection.
func (h *Handlers) WizardSelectTools(w http.ResponseWriter, r *http.Request) {
	id, wz, ok := h.wizardFrom(w, r)
	if !ok {
		return
	}
	var req struct {
		ToolIDs []string `json:"tool_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := wz.SelectTools(req.ToolIDs); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondData(w, http.StatusOK, wizardStateResponse{WizardID: id, Step: wz.Step().String(), MissingKeys: wz.MissingKeys()})
}

// WizardSetDetails records name and description.
func (h *Handlers) WizardSetDetails(w http.ResponseWriter, r *http.Request) {
	id, wz, ok := h.wizardFrom(w, r)
	if !ok {
		return
	}
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := wz.SetDetails(req.Name, req.Description); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondData(w, http.StatusOK, wizardStateResponse{WizardID: id, Step: wz.Step().String(), MissingKeys: wz.MissingKeys()})
}

// WizardBindCredential binds a stored credential to a required key.
func (h *Handlers) WizardBindCredential(w http.ResponseWriter, r *http.Request) {
	id, wz, ok := h.wizardFrom(w, r)
	if !ok {
		return
	}
	var req struct {
		Key          string `json:"key"`
		CredentialID string `json:"credential_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := wz.Bind(r.Context(), req.Key, req.CredentialID); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondData(w, http.StatusOK, wizardStateResponse{WizardID: id, Step: wz.Step().String(), MissingKeys: wz.MissingKeys()})
}

// WizardSetTrait records one character trait.
func (h *Handlers) WizardSetTrait(w http.ResponseWriter, r *http.Request) {
	id, wz, ok := h.wizardFrom(w, r)
	if !ok {
		return
	}
	var req struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := wz.SetTrait(req.Name, req.Value); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondData(w, http.StatusOK, wizardStateResponse{WizardID: id, Step: wz.Step().String()})
}

// WizardSkipTraits skips the character step entirely.
func (h *Handlers) WizardSkipTraits(w http.ResponseWriter, r *http.Request) {
	id, wz, ok := h.wizardFrom(w, r)
	if !ok {
		return
	}
	if err := wz.SkipTraits(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondData(w, http.StatusOK, wizardStateResponse{WizardID: id, Step: wz.Step().String()})
}

// WizardNext advances one step.
func (h *Handlers) WizardNext(w http.ResponseWriter, r *http.Request) {
	id, wz, ok := h.wizardFrom(w, r)
	if !ok {
		return
	}
	if err := wz.Next(); err != nil {
		var missing *wizard.ErrMissingCredentials
		if errors.As(err, &missing) {
			respondJSON(w, http.StatusConflict, map[string]interface{}{
				"error":        err.Error(),
				"missing_keys": missing.Keys,
			})
			return
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondData(w, http.StatusOK, wizardStateResponse{WizardID: id, Step: wz.Step().String(), MissingKeys: wz.MissingKeys()})
}

// WizardBack steps backward, keeping entries.
func (h *Handlers) WizardBack(w http.ResponseWriter, r *http.Request) {
	id, wz, ok := h.wizardFrom(w, r)
	if !ok {
		return
	}
	if err := wz.Back(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondData(w, http.StatusOK, wizardStateResponse{WizardID: id, Step: wz.Step().String()})
}

// WizardPreview returns the agent as it would be created.
func (h *Handlers) WizardPreview(w http.ResponseWriter, r *http.Request) {
	_, wz, ok := h.wizardFrom(w, r)
	if !ok {
		return
	}
	respondData(w, http.StatusOK, wz.Preview())
}

// WizardSubmit creates the agent. A repeat submit returns 409.
func (h *Handlers) WizardSubmit(w http.ResponseWriter, r *http.Request) {
	_, wz, ok := h.wizardFrom(w, r)
	if !ok {
		return
	}
	agent, err := wz.Submit(r.Context())
	if err != nil {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	respondData(w, http.StatusCreated, agent)
}

func (h *Handlers) wizardFrom(w http.ResponseWriter, r *http.Request) (string, *wizard.Wizard, bool) {
	id := chi.URLParam(r, "wizardID")
	wz, ok := h.wizards.get(id)
	if !ok {
		respondError(w, http.StatusNotFound, "wizard "+id+" not found")
		return "", nil, false
	}
	return id, wz, true
}
