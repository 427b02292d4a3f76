// Package wizard implements the agent creation flow: a strictly
// linear sequence of steps ending in a single agent submission.
package wizard

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/agentdeck/agentdeck/internal/catalog"
	"github.com/agentdeck/agentdeck/internal/store"
	"github.com/agentdeck/agentdeck/pkg/models"
)

// Step identifies the wizard's current position. Movement is linear:
// Next and Back shift one step at a time, and nothing moves after
// Submitted.
type Step int

const (
	StepToolSelection Step = iota
	StepDetails
	StepCharacter
	StepPreview
	StepSubmitted
)

func (s Step) String() string {
	switch s {
	case StepToolSelection:
		return "tool_selection"
	case StepDetails:
		return "details"
	case StepCharacter:
		return "character"
	case StepPreview:
		return "preview"
	case StepSubmitted:
		return "submitted"
	}
	return "unknown"
}

// ErrMissingCredentials blocks the details step until every
// credential key required by the selected tools is bound.
type ErrMissingCredentials struct {
	Keys []string
}

func (e *ErrMissingCredentials) Error() string {
	return fmt.Sprintf("missing credentials for keys: %s", strings.Join(e.Keys, ", "))
}

// Wizard is one in-flight agent creation. Not safe to share across
// users; each open wizard panel gets its own instance.
type Wizard struct {
	cat *catalog.Catalog
	st  store.Store

	mu       sync.Mutex
	step     Step
	teamID   string
	toolIDs  []string
	name     string
	desc     string
	bindings map[string]string // credential key -> credential id
	traits   map[string]string
	skipped  bool
}

// New starts a wizard at tool selection for the given team.
func New(cat *catalog.Catalog, st store.Store, teamID string) *Wizard {
	return &Wizard{
		cat:      cat,
		st:       st,
		teamID:   teamID,
		step:     StepToolSelection,
		bindings: make(map[string]string),
		traits:   make(map[string]string),
	}
}

// Step returns the current step.
func (w *Wizard) Step() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

// SelectTools replaces the tool selection. Unknown tool ids are
// rejected. Bindings for keys no longer required are kept; they are
// simply ignored at validation.
func (w *Wizard) SelectTools(toolIDs []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step != StepToolSelection {
		return fmt.Errorf("tools can only be changed at the %s step", StepToolSelection)
	}
	for _, id := range toolIDs {
		if _, ok := w.cat.Get(id); !ok {
			return fmt.Errorf("unknown tool %q", id)
		}
	}
	w.toolIDs = append([]string(nil), toolIDs...)
	return nil
}

// SetDetails records the agent's name and description.
func (w *Wizard) SetDetails(name, description string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step != StepDetails {
		return fmt.Errorf("details can only be set at the %s step", StepDetails)
	}
	w.name = strings.TrimSpace(name)
	w.desc = strings.TrimSpace(description)
	return nil
}

// Bind attaches a stored credential to a required key. The credential
// must exist, belong to the wizard's team, and carry the same key.
func (w *Wizard) Bind(ctx context.Context, key, credentialID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step != StepDetails {
		return fmt.Errorf("credentials can only be bound at the %s step", StepDetails)
	}
	cred, err := w.st.GetCredential(ctx, credentialID)
	if err != nil {
		return fmt.Errorf("credential lookup: %w", err)
	}
	if cred.TeamID != w.teamID {
		return fmt.Errorf("credential %s belongs to another team", credentialID)
	}
	if cred.Key != key {
		return fmt.Errorf("credential %s holds key %q, not %q", credentialID, cred.Key, key)
	}
	w.bindings[key] = credentialID
	return nil
}

// MissingKeys lists the required credential keys not yet bound. Empty
// means the details step can be left.
func (w *Wizard) MissingKeys() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.missingKeysLocked()
}

func (w *Wizard) missingKeysLocked() []string {
	var missing []string
	for _, key := range w.cat.RequiredKeys(w.toolIDs) {
		if _, ok := w.bindings[key]; !ok {
			missing = append(missing, key)
		}
	}
	return missing
}

// SetTrait records one character trait. Setting any trait undoes a
// previous skip.
func (w *Wizard) SetTrait(name, value string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step != StepCharacter {
		return fmt.Errorf("traits can only be set at the %s step", StepCharacter)
	}
	w.traits[name] = value
	w.skipped = false
	return nil
}

// SkipTraits marks the character step skipped: the agent is created
// without traits and without a generated prompt.
func (w *Wizard) SkipTraits() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step != StepCharacter {
		return fmt.Errorf("traits can only be skipped at the %s step", StepCharacter)
	}
	w.traits = make(map[string]string)
	w.skipped = true
	return nil
}

// Next advances one step, validating the step being left:
//   - leaving tool selection requires at least one tool,
//   - leaving details requires a name and every required credential
//     key bound (*ErrMissingCredentials lists what's missing),
//   - leaving character has no requirement,
//   - preview is left through Submit, not Next.
func (w *Wizard) Next() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch w.step {
	case StepToolSelection:
		if len(w.toolIDs) == 0 {
			return fmt.Errorf("select at least one tool")
		}
		w.step = StepDetails
	case StepDetails:
		if w.name == "" {
			return fmt.Errorf("agent name is required")
		}
		if missing := w.missingKeysLocked(); len(missing) > 0 {
			return &ErrMissingCredentials{Keys: missing}
		}
		w.step = StepCharacter
	case StepCharacter:
		w.step = StepPreview
	case StepPreview:
		return fmt.Errorf("use Submit to finish the wizard")
	case StepSubmitted:
		return fmt.Errorf("wizard already submitted")
	}
	return nil
}

// Back moves one step backward, keeping everything entered so far.
// It does nothing at tool selection and fails after submission.
func (w *Wizard) Back() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch w.step {
	case StepToolSelection:
		return nil
	case StepSubmitted:
		return fmt.Errorf("wizard already submitted")
	default:
		w.step--
		return nil
	}
}

// Preview builds the agent as it would be created, without persisting.
func (w *Wizard) Preview() models.Agent {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.draftLocked()
}

func (w *Wizard) draftLocked() models.Agent {
	agent := models.Agent{
		TeamID:      w.teamID,
		Name:        w.name,
		Description: w.desc,
		Status:      models.AgentStatusActive,
	}
	for _, id := range w.toolIDs {
		if t, ok := w.cat.Get(id); ok {
			agent.Tools = append(agent.Tools, t)
		}
	}
	if !w.skipped && len(w.traits) > 0 {
		agent.Character = make(map[string]string, len(w.traits))
		for k, v := range w.traits {
			agent.Character[k] = v
		}
		agent.Prompt = generatePrompt(w.name, w.traits)
	}
	return agent
}

// Submit creates the agent and seals the wizard. A second call fails:
// the submit action is disabled the moment the first one starts.
func (w *Wizard) Submit(ctx context.Context) (*models.Agent, error) {
	w.mu.Lock()
	if w.step == StepSubmitted {
		w.mu.Unlock()
		return nil, fmt.Errorf("wizard already submitted")
	}
	if w.step != StepPreview {
		w.mu.Unlock()
		return nil, fmt.Errorf("submit is only available at the %s step", StepPreview)
	}
	w.step = StepSubmitted
	agent := w.draftLocked()
	w.mu.Unlock()

	now := time.Now().UTC()
	agent.ID = models.ToolAgentPrefix + uuid.NewString()
	agent.CreatedAt = now
	agent.UpdatedAt = now
	if err := w.st.CreateAgent(ctx, &agent); err != nil {
		w.mu.Lock()
		w.step = StepPreview
		w.mu.Unlock()
		return nil, fmt.Errorf("create agent: %w", err)
	}
	log.Info().Str("agent_id", agent.ID).Str("team_id", agent.TeamID).Msg("agent created")
	return &agent, nil
}

// generatePrompt renders the character traits into a system prompt.
// Trait order is fixed so the same inputs give the same prompt.
func generatePrompt(name string, traits map[string]string) string {
	keys := make([]string, 0, len(traits))
	for k := range traits {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "You are %s.", name)
	for _, k := range keys {
		fmt.Fprintf(&b, " Your %s is %s.", k, traits[k])
	}
	return b.String()
}
