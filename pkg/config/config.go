package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/sensei/pkg/dotdir"
)

const (
	configFile = "sensei.toml"

	// v0 is the alpha version of the config
	v0 = 0

	// CurrentV is the currently supported version, points to v0
	CurrentV = v0
)

type Configer struct {
	ddm        *dotdir.Manager
	targetPath string
}

func NewConfiger(override string) (*Configer, error) {
	cfger := &Configer{}

	cfger.ddm = dotdir.NewManager()
	target, err := cfger.ddm.Target(override)
	if err != nil {
		return nil, err
	}

	if target == "" {
		return cfger, nil
	}

	path := filepath.Join(target, configFile)
	_, err = os.Stat(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfger.targetPath = path

	return cfger, nil
}

// ValidConfigKeys returns the sorted list of all supported configuration key names.
func ValidConfigKeys() []string {
	ordered := []string{
		"storage.driver",
		"storage.sqlite_path",
		"storage.postgres_dsn",
		"api.listen",
		"vector_store.provider",
		"vector_store.target",
		"vector_store.collection",
		"embedding.provider",
		"embedding.target",
		"embedding.model",
		"embedding.dimensions",
		"llm.provider",
		"llm.base_url",
		"llm.model",
		"policy.manifest_path",
		"policy.governance_path",
		"aperture.timeout",
		"aperture.partial_on_timeout",
		"aperture.memory_limit",
		"aperture.artifact_limit",
		"episode.close_threshold",
		"summarizer.raw_buffer",
		"summarizer.chunk_words",
		"summarizer.token_budget",
		"summarizer.max_depth",
		"summarizer.schedule",
		"queue.backend",
		"queue.target",
		"queue.stream",
		"queue.group",
		"queue.workers",
		"resource.provider",
		"resource.index_path",
		"graph.provider",
		"graph.merge_threshold",
	}

	result := make([]string, 0, len(configKeys))
	seen := make(map[string]bool, len(configKeys))
	for _, k := range ordered {
		if _, ok := configKeys[k]; ok {
			result = append(result, k)
			seen[k] = true
		}
	}

	for k := range configKeys {
		if !seen[k] {
			result = append(result, k)
		}
	}

	return result
}

// IsValidConfigKey returns true if the given key is a supported configuration key.
func IsValidConfigKey(key string) bool {
	_, ok := configKeys[key]
	return ok
}

func (c *Configer) GetTarget() string {
	return c.targetPath
}

// LoadConfig loads the configuration from sensei.toml in the target .sensei/ directory.
// If the file does not exist, returns NewDefaultConfig() so callers always receive
// a fully-populated Config. Fields explicitly set in the file override the defaults.
func (c *Configer) LoadConfig() (*Config, error) {
	if c.targetPath == "" {
		return NewDefaultConfig(), nil
	}

	data, err := os.ReadFile(c.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewDefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg, err := ParseConfigTOML(data)
	if err != nil {
		return nil, err
	}

	applyDefaults(cfg)

	return cfg, nil
}

func orString(v *string, d string) {
	if *v == "" {
		*v = d
	}
}

func orInt(v *int, d int) {
	if *v == 0 {
		*v = d
	}
}

// applyDefaults fills zero-value fields in cfg with values from NewDefaultConfig().
func applyDefaults(cfg *Config) {
	d := NewDefaultConfig()

	orString(&cfg.Storage.Driver, d.Storage.Driver)
	orString(&cfg.API.Listen, d.API.Listen)

	orString(&cfg.VectorStore.Provider, d.VectorStore.Provider)
	orString(&cfg.VectorStore.Collection, d.VectorStore.Collection)

	orString(&cfg.Embedding.Provider, d.Embedding.Provider)
	orString(&cfg.Embedding.Target, d.Embedding.Target)
	orString(&cfg.Embedding.Model, d.Embedding.Model)
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = d.Embedding.Dimensions
	}

	orString(&cfg.LLM.Provider, d.LLM.Provider)
	orString(&cfg.LLM.BaseURL, d.LLM.BaseURL)
	orString(&cfg.LLM.Model, d.LLM.Model)

	orString(&cfg.Aperture.Timeout, d.Aperture.Timeout)
	orInt(&cfg.Aperture.MemoryLimit, d.Aperture.MemoryLimit)
	orInt(&cfg.Aperture.ArtifactLimit, d.Aperture.ArtifactLimit)

	orInt(&cfg.Episode.CloseThreshold, d.Episode.CloseThreshold)

	orInt(&cfg.Summarizer.RawBuffer, d.Summarizer.RawBuffer)
	orInt(&cfg.Summarizer.ChunkWords, d.Summarizer.ChunkWords)
	orInt(&cfg.Summarizer.TokenBudget, d.Summarizer.TokenBudget)
	orInt(&cfg.Summarizer.MaxDepth, d.Summarizer.MaxDepth)
	orString(&cfg.Summarizer.Schedule, d.Summarizer.Schedule)

	orString(&cfg.Queue.Backend, d.Queue.Backend)
	orString(&cfg.Queue.Stream, d.Queue.Stream)
	orString(&cfg.Queue.Group, d.Queue.Group)
	if cfg.Queue.Workers == 0 {
		cfg.Queue.Workers = d.Queue.Workers
	}

	orString(&cfg.Resource.Provider, d.Resource.Provider)

	orString(&cfg.Graph.Provider, d.Graph.Provider)
	if cfg.Graph.MergeThreshold == 0 {
		cfg.Graph.MergeThreshold = d.Graph.MergeThreshold
	}
}

// SaveConfig persists the configuration to sensei.toml in the target .sensei/ directory.
func (c *Configer) SaveConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("cannot save nil config")
	}

	if c.targetPath == "" {
		return errors.New("cannot save empty target path")
	}

	var buf bytes.Buffer
	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(c.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// SetConfigValue loads the config, sets the given key to the given value, and saves it.
// Returns an error if the key is not a valid config key.
func (c *Configer) SetConfigValue(key string, value string) error {
	info, ok := configKeys[key]
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return err
	}

	if err := info.set(cfg, value); err != nil {
		return err
	}

	return c.SaveConfig(cfg)
}

// GetConfigValue loads the config and returns the string representation of the given key.
func (c *Configer) GetConfigValue(key string) (string, error) {
	info, ok := configKeys[key]
	if !ok {
		return "", fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return "", err
	}

	return info.get(cfg), nil
}

// PresetConfig returns a Config with the model settings for the named provider preset.
// Supported presets: "openai", "anthropic", "ollama".
func PresetConfig(name string) (*Config, error) {
	cfg := NewDefaultConfig()

	switch strings.ToLower(name) {
	case "openai":
		cfg.LLM = LLMConfig{Provider: "openai", BaseURL: "https://api.openai.com", Model: "gpt-4o-mini"}
	case "anthropic":
		cfg.LLM = LLMConfig{Provider: "anthropic", BaseURL: "https://api.anthropic.com", Model: "claude-haiku-4-5"}
	case "ollama":
		cfg.LLM = LLMConfig{Provider: "ollama", BaseURL: defaultOllamaTarget, Model: defaultLLMModel}
	default:
		return nil, fmt.Errorf("unknown preset: %q (available: openai, anthropic, ollama)", name)
	}

	return cfg, nil
}

// ValidPresetNames returns the list of recognized preset names.
func ValidPresetNames() []string {
	return []string{"openai", "anthropic", "ollama"}
}

// ParseConfigTOML parses raw TOML bytes into a Config.
// Returns an error if the version field is present and not equal to CurrentV.
func ParseConfigTOML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config TOML: %w", err)
	}

	if cfg.Version != 0 && cfg.Version != CurrentV {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentV)
	}

	return cfg, nil
}

// ApertureTimeout parses the configured assembly deadline.
func (c *Config) ApertureTimeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.Aperture.Timeout)
	if err != nil {
		return 0, fmt.Errorf("parsing aperture.timeout: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("aperture.timeout must be positive, got %s", c.Aperture.Timeout)
	}
	return d, nil
}
