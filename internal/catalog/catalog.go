// Package catalog provides the tool registry backing the agent
// creation wizard: every tool an agent can be bound to, together with
// the credential keys the tool requires before an agent using it may
// be created.
//
// The catalog ships with a built-in tool set and accepts runtime
// registration of additional tools. Lookups are thread-safe.
package catalog

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/agentdeck/agentdeck/pkg/models"
)

// Catalog is a thread-safe tool registry.
type Catalog struct {
	mu    sync.RWMutex
	tools map[string]models.Tool // key: tool ID
}

// New creates a catalog seeded with the built-in tools.
func New() *Catalog {
	c := &Catalog{tools: make(map[string]models.Tool)}
	for _, t := range builtinTools {
		c.tools[t.ID] = t
	}
	log.Info().Int("tools", len(c.tools)).Msg("Tool catalog seeded")
	return c
}

// Register adds or replaces a tool.
func (c *Catalog) Register(tool models.Tool) {
	c.mu.Lock()
	c.tools[tool.ID] = tool
	c.mu.Unlock()
	log.Info().Str("tool", tool.ID).Msg("Tool registered")
}

// Get returns the tool with the given ID.
func (c *Catalog) Get(id string) (models.Tool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tools[id]
	return t, ok
}

// List returns all tools ordered by name.
func (c *Catalog) List() []models.Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]models.Tool, 0, len(c.tools))
	for _, t := range c.tools {
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// RequiredKeys returns the union of credential keys required by the
// given tool IDs. Unknown IDs are skipped. The result is sorted and
// de-duplicated.
func (c *Catalog) RequiredKeys(toolIDs []string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	seen := make(map[string]bool)
	for _, id := range toolIDs {
		t, ok := c.tools[id]
		if !ok {
			continue
		}
		for _, k := range t.RequiredKeys {
			seen[k] = true
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// builtinTools is the default tool set available to every team.
var builtinTools = []models.Tool{
	{
		ID:          "tool_web_search",
		Name:        "Web Search",
		Description: "Search the web and return ranked results",
		Category:    "research",
		RequiredKeys: []string{
			"SEARCH_API_KEY",
		},
	},
	{
		ID:          "tool_email",
		Name:        "Email",
		Description: "Send email on the user's behalf",
		Category:    "communication",
		RequiredKeys: []string{
			"SMTP_CREDENTIALS",
		},
	},
	{
		ID:          "tool_slack",
		Name:        "Slack",
		Description: "Post messages and read channels",
		Category:    "communication",
		RequiredKeys: []string{
			"SLACK_BOT_TOKEN",
		},
	},
	{
		ID:          "tool_github",
		Name:        "GitHub",
		Description: "Read repositories, open issues and pull requests",
		Category:    "development",
		RequiredKeys: []string{
			"GITHUB_TOKEN",
		},
	},
	{
		ID:          "tool_calendar",
		Name:        "Calendar",
		Description: "Read and create calendar events",
		Category:    "productivity",
		RequiredKeys: []string{
			"CALENDAR_OAUTH",
		},
	},
	{
		ID:          "tool_sheets",
		Name:        "Spreadsheets",
		Description: "Read and write spreadsheet data",
		Category:    "productivity",
		RequiredKeys: []string{
			"SHEETS_OAUTH",
		},
	},
	{
		ID:          "tool_scraper",
		Name:        "Page Reader",
		Description: "Fetch and summarize a web page",
		Category:    "research",
		// No credentials required.
	},
}
