package policy

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed defaults/*.yaml
var defaultFiles embed.FS

// Config is an immutable, validated policy configuration. Build one with
// LoadConfig, ParseConfig or DefaultConfig and hand it to an Engine; never
// mutate it afterwards.
type Config struct {
	Manifest   Manifest
	Governance Governance

	tools      map[string]Tool
	guardrails map[string]Guardrail
	// rules are sorted by descending priority, declaration order for ties.
	rules []SaveRule

	manifestPath   string
	governancePath string
}

// LoadConfig reads and validates the manifest and governance files.
// An empty path selects the bundled default for that file.
func LoadConfig(manifestPath, governancePath string) (*Config, error) {
	manifest, err := readPolicyFile(manifestPath, "defaults/manifest.yaml")
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	governance, err := readPolicyFile(governancePath, "defaults/governance.yaml")
	if err != nil {
		return nil, fmt.Errorf("read governance: %w", err)
	}

	cfg, err := ParseConfig(manifest, governance)
	if err != nil {
		return nil, err
	}
	cfg.manifestPath = manifestPath
	cfg.governancePath = governancePath
	return cfg, nil
}

// DefaultConfig returns the bundled capability manifest and governance rules.
func DefaultConfig() (*Config, error) {
	return LoadConfig("", "")
}

// ParseConfig decodes and validates raw manifest and governance YAML.
func ParseConfig(manifestYAML, governanceYAML []byte) (*Config, error) {
	cfg := &Config{}

	if err := decodeStrict(manifestYAML, &cfg.Manifest); err != nil {
		return nil, fmt.Errorf("%w: parse manifest: %v", ErrInvalidConfig, err)
	}
	if err := decodeStrict(governanceYAML, &cfg.Governance); err != nil {
		return nil, fmt.Errorf("%w: parse governance: %v", ErrInvalidConfig, err)
	}

	if err := cfg.compile(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readPolicyFile(path, fallback string) ([]byte, error) {
	if strings.TrimSpace(path) == "" {
		return defaultFiles.ReadFile(fallback)
	}
	return os.ReadFile(filepath.Clean(path))
}

func decodeStrict(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// compile validates the decoded documents and builds the lookup tables used
// during evaluation.
func (c *Config) compile() error {
	if len(c.Manifest.Identities) == 0 {
		return fmt.Errorf("%w: manifest declares no identities", ErrInvalidConfig)
	}

	c.tools = make(map[string]Tool, len(c.Manifest.Tools))
	for i, t := range c.Manifest.Tools {
		id := strings.TrimSpace(t.ID)
		if id == "" {
			return fmt.Errorf("%w: tool #%d has no id", ErrInvalidConfig, i)
		}
		if _, dup := c.tools[id]; dup {
			return fmt.Errorf("%w: duplicate tool id %q", ErrInvalidConfig, id)
		}
		c.tools[id] = t
	}

	for name := range c.Manifest.Identities {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: identity with empty name", ErrInvalidConfig)
		}
	}

	c.guardrails = make(map[string]Guardrail, len(c.Governance.Guardrails))
	for _, g := range c.Governance.Guardrails {
		if _, ok := c.tools[g.ToolID]; !ok {
			return fmt.Errorf("%w: guardrail references unknown tool %q", ErrInvalidConfig, g.ToolID)
		}
		c.guardrails[g.ToolID] = g
	}

	rules := make([]SaveRule, 0, len(c.Governance.MemorySaveRules))
	for _, r := range c.Governance.MemorySaveRules {
		if strings.TrimSpace(r.Type) == "" {
			return fmt.Errorf("%w: memory save rule with empty type", ErrInvalidConfig)
		}
		if len(r.Patterns) == 0 {
			return fmt.Errorf("%w: memory save rule %q has no patterns", ErrInvalidConfig, r.Type)
		}
		switch r.Action {
		case "", ActionSaveEpisodic, ActionSaveSemantic:
		default:
			return fmt.Errorf("%w: memory save rule %q has unknown action %q", ErrInvalidConfig, r.Type, r.Action)
		}
		re, err := regexp.Compile("(?i)(?:" + strings.Join(r.Patterns, "|") + ")")
		if err != nil {
			return fmt.Errorf("%w: memory save rule %q: %v", ErrInvalidConfig, r.Type, err)
		}
		r.re = re
		rules = append(rules, r)
	}
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].Priority > rules[j].Priority })
	c.rules = rules

	return nil
}

// Tool returns the manifest entry for id.
func (c *Config) Tool(id string) (Tool, bool) {
	t, ok := c.tools[id]
	return t, ok
}

// Rules returns the save rules in evaluation order.
func (c *Config) Rules() []SaveRule {
	out := make([]SaveRule, len(c.rules))
	copy(out, c.rules)
	return out
}
