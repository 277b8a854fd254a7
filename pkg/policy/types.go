package policy

import "regexp"

// AdminIdentity is the only identity type allowed to run restricted intents.
const AdminIdentity = "admin"

// Wildcard grants access to every tool in the manifest.
const Wildcard = "*"

// Memory save actions.
const (
	ActionSaveEpisodic = "save_episodic"
	ActionSaveSemantic = "save_semantic"
)

// Decision is the outcome of one authorization check. Reason is always set.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

func allow(reason string) Decision { return Decision{Allowed: true, Reason: reason} }
func deny(reason string) Decision  { return Decision{Allowed: false, Reason: reason} }

// Tool is one capability the agent may invoke.
type Tool struct {
	ID          string `yaml:"id"`
	Description string `yaml:"description"`
	Category    string `yaml:"category"`
}

// Identity describes the tool access of one caller identity type.
type Identity struct {
	Description string   `yaml:"description"`
	ToolAccess  []string `yaml:"tool_access"`
}

// Manifest is the capability manifest: known tools and identity types.
type Manifest struct {
	Tools      []Tool              `yaml:"tools"`
	Identities map[string]Identity `yaml:"identities"`
}

// Guardrail attaches an extra constraint to one tool.
type Guardrail struct {
	ToolID           string `yaml:"tool_id"`
	RequiresApproval bool   `yaml:"requires_approval"`
	Reason           string `yaml:"reason"`
}

// SaveRule decides whether an interaction is worth remembering.
type SaveRule struct {
	Type     string   `yaml:"type"`
	Patterns []string `yaml:"patterns"`
	Priority int      `yaml:"priority"`
	Action   string   `yaml:"action"`

	re *regexp.Regexp
}

// SaveMatch is the first save rule that matched a text.
type SaveMatch struct {
	Type     string `json:"type"`
	Action   string `json:"action"`
	Priority int    `json:"priority"`
}

// Governance holds guardrails and memory-save rules.
type Governance struct {
	Guardrails      []Guardrail `yaml:"guardrails"`
	MemorySaveRules []SaveRule  `yaml:"memory_save_rules"`
}
